// Command admin runs operator tasks against the blog API database:
//
//	admin create-admin [-d dsn]
//	admin set-role <username> <role> [-d dsn]
//	admin list [-d dsn]
package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/Chanzhaoyu/nest-blog-api/internal/admincli"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/auth"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/config"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/repositories/repomanager"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	db, err := repomanager.OpenDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	app := admincli.New(rm.Users(db), auth.NewArgon2Hasher(), os.Stdin, os.Stdout)
	if err := app.Run(ctx, os.Args[1:]); err != nil {
		if !errors.Is(err, admincli.ErrUsage) {
			log.Printf("%v", err)
		}
		db.Close()
		os.Exit(1)
	}
}
