package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/identity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/presence"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	// load .env file if present, then the real environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// init logger
	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-auth-go")

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// init db
	sqlDB, err := database.Connect(cfg.Database)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	// wrap with sqlx for convenience in repos/services
	sqlxDB := sqlx.NewDb(sqlDB, cfg.Database.Driver)

	accounts := repo.NewAccountRepo(sqlxDB, cfg.Tables, sugar)
	if cfg.AutoMigrate {
		if err := accounts.EnsureTables(ctx); err != nil {
			sugar.Fatalf("ensure tables: %v", err)
		}
	}

	// presence is best-effort; keep the client so writes resume once redis is up
	rdb, err := presence.Dial(ctx, cfg.Presence)
	if err != nil {
		sugar.Warnw("redis unavailable; presence mirroring will fail until it is reachable", "err", err, "addr", cfg.Presence.Addr)
	}
	defer rdb.Close()
	mirror := presence.NewMirror(rdb, cfg.Presence.Prefix)

	// the key set context lives for the whole process
	verifier, err := identity.NewGoogleVerifier(context.Background(), cfg.GoogleClientID)
	if err != nil {
		sugar.Fatalf("google verifier: %v", err)
	}

	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}

	issuer, err := token.NewIssuer(cfg.Token)
	if err != nil {
		sugar.Fatalf("token issuer: %v", err)
	}

	svc := account.NewService(accounts, account.BcryptHasher{Cost: account.DefaultBcryptCost}, issuer, verifier, mirror, ids, sugar)
	handler := router.RegisterRoutes(sugar, account.NewHandler(svc, sugar), issuer)

	// mount http server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// run server in background
	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// shutdown http server
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
