package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/sessions"

	"study-assistant/core"
)

func main() {
	cfg := core.Load()
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	if err := core.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	codec := core.NewTokenCodec(cfg.JWTSecret, time.Duration(cfg.TokenLifetimeHours)*time.Hour)

	userRepo := core.NewPgUserRepository(db)
	pathRepo := core.NewPgLearningPathRepository(db)
	progressRepo := core.NewPgProgressRepository(db)
	authService := core.NewRepositoryAuthService(userRepo)
	sessionStore := core.NewSessionStore(redisClient)

	provider := core.NewGeminiClient(cfg)
	presence := core.NewPresenceRegistry()
	relay := core.NewRelay(presence, provider, sessionStore)

	// Cookie store holds only the short-lived OAuth state nonce.
	cookieStore := sessions.NewCookieStore([]byte(cfg.SessionKey))

	oauth, err := core.NewGoogleOAuth(ctx, cfg, cookieStore, userRepo, codec)
	if err != nil {
		log.Fatalf("failed to configure google oauth: %v", err)
	}
	if oauth == nil {
		log.Printf("google oauth credentials not found; google authentication disabled")
	}

	router := core.NewRouter(cfg, codec, authService, userRepo, pathRepo, progressRepo, sessionStore, presence, provider, oauth, relay)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
