package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tenantwise/dbgovernor/internal/config"
	"github.com/tenantwise/dbgovernor/internal/server"
	"github.com/tenantwise/dbgovernor/internal/storage"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	postgres, err := storage.NewPostgres(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Connected to postgres successfully")

	redis, err := storage.NewRedis(
		cfg.Redis.GetRedisAddr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redis.Close()

	log.Println("Connected to redis successfully")

	srv, err := server.New(cfg, postgres, redis)
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.SeedTiers(startupCtx); err != nil {
		log.Fatalf("Failed to seed tier catalog: %v", err)
	}
	if err := srv.BootstrapOperator(startupCtx); err != nil {
		log.Fatalf("Failed to bootstrap operator account: %v", err)
	}
	cancelStartup()

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
