package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-token-service/internal/config"
	"github.com/iliyamo/auth-token-service/internal/database"
	"github.com/iliyamo/auth-token-service/internal/handler"
	"github.com/iliyamo/auth-token-service/internal/queue"
	"github.com/iliyamo/auth-token-service/internal/repository"
	"github.com/iliyamo/auth-token-service/internal/router"
	"github.com/iliyamo/auth-token-service/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting disabled")
	}

	// Security-wipe events flow out through RabbitMQ; the consumer turns
	// them into logs/security.log for audit.
	go func() {
		if err := queue.StartSecurityConsumer(); err != nil {
			log.Printf("security consumer stopped: %v", err)
		}
	}()

	auth := service.NewAuthService(cfg,
		repository.NewUserRepo(db),
		repository.NewTokenRepo(db),
		queue.NewPublisher())

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, auth), config.LoadRateLimitConfig(), rdb)
	router.RegisterUsers(e, handler.NewUserHandler(auth), cfg.AccessSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
