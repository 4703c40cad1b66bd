package main

import (
	"context"
	"log"

	"study-assistant/core"
)

// seed prepares a fresh environment: schema, initial admin, and learning
// path content from the YAML seed file.
func main() {
	cfg := core.Load()
	ctx := context.Background()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	if err := core.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	userRepo := core.NewPgUserRepository(db)
	pathRepo := core.NewPgLearningPathRepository(db)

	if err := core.BootstrapAdmin(ctx, userRepo, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	if err := core.SeedLearningPaths(ctx, cfg.SeedFile, userRepo, pathRepo); err != nil {
		log.Fatalf("seed learning paths failed: %v", err)
	}

	log.Printf("seed completed")
}
