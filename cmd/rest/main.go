package main

import (
	"context"
	"log"

	"ai-voicechat-be/internal/bootstrap"
	"ai-voicechat-be/internal/config"
	"ai-voicechat-be/internal/server"
	"ai-voicechat-be/internal/tracer"
	"ai-voicechat-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database (optional; only the turn archive needs it)
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)

	// 4. Start Background Services
	if container.ArchiveService != nil {
		go func() {
			log.Println("Background: Starting Archive Service...")
			if err := container.ArchiveService.Consume(context.Background()); err != nil {
				log.Printf("Background Archive Error: %v", err)
			}
		}()
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run Server
	log.Fatal(srv.Run())
}
