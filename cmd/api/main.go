package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stackguard/template-validator/internal/application"
	appai "github.com/stackguard/template-validator/internal/application/ai"
	appexc "github.com/stackguard/template-validator/internal/application/exceptions"
	appvalidate "github.com/stackguard/template-validator/internal/application/validate"
	"github.com/stackguard/template-validator/internal/config"
	"github.com/stackguard/template-validator/internal/domain/accounts"
	domexc "github.com/stackguard/template-validator/internal/domain/exceptions"
	"github.com/stackguard/template-validator/internal/domain/report"
	openaiClient "github.com/stackguard/template-validator/internal/infra/ai/openai"
	"github.com/stackguard/template-validator/internal/infra/conformity"
	mysqlp "github.com/stackguard/template-validator/internal/infra/db/mysql"
	postgresp "github.com/stackguard/template-validator/internal/infra/db/postgres"
	"github.com/stackguard/template-validator/internal/infra/httpserver"
	"github.com/stackguard/template-validator/internal/infra/secrets"
	minioStore "github.com/stackguard/template-validator/internal/infra/storage"
	"github.com/stackguard/template-validator/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect exception store
	var db *sql.DB
	var repo domexc.Repository
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		repo = postgresp.NewExceptionRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		repo = mysqlp.NewExceptionRepository(db)
	}
	defer db.Close()

	// Conformity API key source
	var provider secrets.Provider = secrets.Env{}
	if cfg.Conformity.APIKeyFile != "" {
		provider = secrets.File{Path: cfg.Conformity.APIKeyFile}
	}

	// Conformity client doubles as scanner and accounts source
	cc := conformity.New(cfg.ConformityBaseURL(), provider)
	cc.OnUpstreamError = middleware.IncrementUpstreamErrors
	resolver := accounts.NewResolver(cc)

	// optional report archive
	var artifacts report.ArchiveStore
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		artifacts = store
	}

	validateSvc := &appvalidate.Service{
		Scanner:    cc,
		Resolver:   resolver,
		Exceptions: repo,
		Artifacts:  artifacts,
		Clock:      application.SystemClock{},
	}
	excSvc := appexc.NewService(repo)

	// optional AI summaries
	var aiSvc *appai.Service
	if cfg.OpenAI.APIKey != "" {
		aiSvc = appai.NewService(openaiClient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model))
	}

	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}

	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	if len(cfg.Auth.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	}
	if cfg.RateLimit.Capacity > 0 {
		mux.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate))
	}
	mux.Mount("/", httpserver.NewRouter(validateSvc, excSvc, aiSvc, checkers))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
