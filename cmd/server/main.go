// Command server runs the blog API: the REST endpoints under /api and the
// gRPC health service.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/Chanzhaoyu/nest-blog-api/internal/server"
	"github.com/Chanzhaoyu/nest-blog-api/internal/server/config"
)

const startupTimeout = 30 * time.Second

func main() {
	cfg := config.LoadConfig()

	// bounds the database connect and migrations only
	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	app, err := server.NewApp(startCtx, cfg)
	cancel()
	if err != nil {
		log.Printf("startup failed: %v", err)
		os.Exit(1)
	}

	app.Run(context.Background())
}
