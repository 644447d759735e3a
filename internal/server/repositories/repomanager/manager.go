package repomanager

import (
	"context"
	"database/sql"

	"github.com/Chanzhaoyu/nest-blog-api/internal/dbx"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or an open
// transaction, and owns schema migrations.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
