package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gad.kz/internal/audit"
	"gad.kz/internal/dispatch"
	"gad.kz/internal/httpapi"
	"gad.kz/internal/identity"
	"gad.kz/internal/obs"
	"gad.kz/internal/ratelimit"
	"gad.kz/internal/stream"
	"gad.kz/internal/token"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("GAD_COMMIT"))

	secret := os.Getenv("GAD_AUTH_SECRET")
	if secret == "" {
		log.Fatal("GAD_AUTH_SECRET is required")
	}

	tokenOpts := []token.Option{token.WithSecret(secret)}
	if raw := os.Getenv("GAD_TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("parse GAD_TOKEN_TTL: %v", err)
		}
		tokenOpts = append(tokenOpts, token.WithAccessTTL(ttl))
	}
	tokens, err := token.NewService(tokenOpts...)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	// Postgres is optional: without a DSN everything runs in memory, which
	// is enough for local development and the telegram bot sandbox.
	var db *sql.DB
	if dsn := os.Getenv("GAD_PG_DSN"); dsn != "" {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var (
		auditStore audit.Store
		userStore  identity.Store
		taskStore  dispatch.Store
	)
	if db != nil {
		auditStore = audit.NewPGStore(db)
		userStore = identity.NewPGStore(db)
		taskStore = dispatch.NewPGStore(db)
	} else {
		auditStore = audit.NewInMemory()
		userStore = identity.NewInMemory()
		taskStore = dispatch.NewInMemory()
	}

	feed := stream.New()
	trail := audit.NewTrail(auditStore, audit.WithBroadcaster(feed.Publish))
	users := identity.NewService(userStore, trail)
	tasks := dispatch.NewService(taskStore, trail)

	limiter := ratelimit.New(envFloat("GAD_RATE_RPS", 20), envInt("GAD_RATE_BURST", 40))

	api := httpapi.New(httpapi.Deps{
		Tokens:  tokens,
		Users:   users,
		Tasks:   tasks,
		Trail:   trail,
		Stream:  feed,
		Limiter: limiter,
		Ready:   httpapi.ReadyProbe{DB: db},
		Version: version,
	})

	addr := os.Getenv("GAD_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting gad-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Fatalf("parse %s: %q is not a positive integer", name, raw)
	}
	return v
}

func envFloat(name string, def float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		log.Fatalf("parse %s: %q is not a positive number", name, raw)
	}
	return v
}
