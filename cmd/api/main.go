package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"voucherhub-api/internal/config"
	"voucherhub-api/internal/handler"
	"voucherhub-api/internal/ingest"
	"voucherhub-api/internal/middleware"
	"voucherhub-api/internal/repository"
	"voucherhub-api/internal/router"
	"voucherhub-api/internal/service"
	"voucherhub-api/internal/source"

	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting VoucherHub API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize voucher repository based on config
	var voucherRepo repository.VoucherRepository
	switch cfg.VoucherDB.Type {
	case "mysql":
		mysqlRepo, err := repository.NewMySQLVoucherRepository(cfg.VoucherDB.MySQLDSN())
		if err != nil {
			log.Fatalf("Failed to initialize MySQL: %v", err)
		}
		defer mysqlRepo.Close()
		voucherRepo = mysqlRepo
		log.Println("MySQL voucher repository initialized")
	default: // sqlite
		if dir := filepath.Dir(cfg.VoucherDB.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Fatalf("Failed to create data dir: %v", err)
			}
		}
		sqliteRepo, err := repository.NewSQLiteVoucherRepository(cfg.VoucherDB.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		defer sqliteRepo.Close()
		voucherRepo = sqliteRepo
		log.Println("SQLite voucher repository initialized")
	}

	// Initialize Redis client (session tokens; optional)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddress(),
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v", err)
		redisClient = nil
	} else {
		log.Println("Redis client initialized")
	}
	cancel()

	// Initialize services
	allocService := service.NewAllocationService(voucherRepo)
	negotiator := service.NewNegotiator(voucherRepo, allocService, cfg.Chat.MaxAmount)

	var tokenService *service.TokenService
	if redisClient != nil {
		tokenService = service.NewTokenService(redisClient)
	}

	// Ingestion: batch importer (always) and mail sweeper (when configured)
	fetcher := source.NewHTTPPageFetcher(cfg.Fetch.Timeout)
	importer := ingest.NewBatchImporter(voucherRepo, fetcher, cfg.Fetch.BarcodeDir)

	var sweeper *ingest.MailSweeper
	if cfg.Mail.Enabled() {
		provider := source.NewIMAPProvider(source.IMAPConfig{
			Addr:     cfg.Mail.IMAPAddr,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		})
		defer provider.Close()

		sweeper = ingest.NewMailSweeper(provider, voucherRepo, ingest.MailSweeperConfig{
			SubjectKeyword: cfg.Mail.SubjectKeyword,
			PollInterval:   cfg.Mail.PollInterval,
			BarcodeDir:     cfg.Fetch.BarcodeDir,
		})
		sweeper.Start()
	} else {
		log.Println("Mail ingestion disabled (MAIL_IMAP_ADDR not set)")
	}

	// Initialize handlers
	healthHandler := handler.New(voucherRepo)
	chatHandler := handler.NewChatHandler(negotiator, importer, cfg.Chat.AllowedRequesters)
	voucherHandler := handler.NewVoucherHandler(voucherRepo)
	adminHandler := handler.NewAdminHandler(voucherRepo, sweeper, cfg.VoucherDB.Type)

	var authHandler *handler.AuthHandler
	if tokenService != nil {
		authHandler = handler.NewAuthHandler(tokenService, cfg.App.LoginKey)
	}

	// Create auth middleware with injected dependencies
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		TokenService: tokenService,
		APIKeys:      cfg.Chat.APIKeys,
	})

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		ChatHandler:    chatHandler,
		VoucherHandler: voucherHandler,
		AdminHandler:   adminHandler,
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
		BarcodeDir:     cfg.Fetch.BarcodeDir,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if sweeper != nil {
		sweeper.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
