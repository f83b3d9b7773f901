package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raindrop/identity-service/internal/api"
	"github.com/raindrop/identity-service/internal/config"
	"github.com/raindrop/identity-service/internal/infrastructure/kafka"
	"github.com/raindrop/identity-service/internal/infrastructure/redis"
	"github.com/raindrop/identity-service/internal/observability"
	"github.com/raindrop/identity-service/internal/repository"
	core "github.com/raindrop/identity-service/internal/repository/postgres"
	"github.com/raindrop/identity-service/internal/repository/redisrepo"
	"github.com/raindrop/identity-service/internal/scheduler"
	service "github.com/raindrop/identity-service/internal/services"
	"github.com/raindrop/identity-service/internal/token"

	_ "github.com/lib/pq"
)

func main() {
	shutdown, _ := observability.Setup("identity-service")
	defer shutdown(context.Background())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	userRepo := core.NewPostgresUserRepository(db)
	refreshRepo := core.NewPostgresRefreshTokenRepository(db)

	var invalidatedRepo repository.InvalidatedTokenRepository
	if cfg.RevocationBackend == "redis" {
		redisClient := redis.NewClient(cfg.RedisAddr)
		defer redisClient.Close()
		invalidatedRepo = redisrepo.NewRedisInvalidatedTokenRepository(redisClient)
	} else {
		invalidatedRepo = core.NewPostgresInvalidatedTokenRepository(db)
	}

	signer, err := token.NewSigner(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("Failed to create signer: %v", err)
	}
	issuer := token.NewIssuer(signer, refreshRepo, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	verifier := token.NewVerifier(signer, invalidatedRepo)

	kafkaProducer := kafka.NewProducer(cfg.KafkaBrokers)
	defer kafkaProducer.Close()

	svc := service.NewAuthService(userRepo, refreshRepo, invalidatedRepo, issuer, verifier, kafkaProducer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "user-events", "identity-service-group", refreshRepo)
	go userConsumer.Consume(ctx)
	defer userConsumer.Close()

	cleanup := scheduler.NewCleanup(invalidatedRepo, refreshRepo, cfg.CleanupInterval, cfg.DeepCleanupInterval)
	go cleanup.Run(ctx)

	mux := api.SetupRouter(svc, verifier)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
