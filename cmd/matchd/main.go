package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mingle/matchd/internal/config"
	"github.com/mingle/matchd/internal/database"
	"github.com/mingle/matchd/internal/history"
	"github.com/mingle/matchd/internal/httpapi"
	"github.com/mingle/matchd/internal/match"
	"github.com/mingle/matchd/internal/messaging"
	"github.com/mingle/matchd/internal/points"
	"github.com/mingle/matchd/internal/profile"
	"github.com/mingle/matchd/internal/ratelimit"
	"github.com/mingle/matchd/internal/scoring"
	"github.com/mingle/matchd/internal/session"
	"github.com/mingle/matchd/internal/store"
)

func main() {
	log.Println("Starting matchd matchmaking service...")

	cfg := config.Load()

	// --- PostgreSQL ---
	db, err := database.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.MigrationsDir); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()
	defer rdb.Close()

	// --- NATS ---
	// Lifecycle events are fire-and-forget extras; the engine runs without
	// them when NATS is unreachable.
	var events match.Publisher
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Printf("NATS unavailable, lifecycle events disabled: %v", err)
	} else {
		events = natsClient
		defer natsClient.Close()
	}

	log.Printf("matchd configuration")
	log.Printf("  http_addr:     %s", cfg.HTTPAddr)
	log.Printf("  redis_addr:    %s", cfg.RedisAddr)
	log.Printf("  nats_url:      %s", cfg.NATSURL)
	log.Printf("  seeking_ttl:   %s", cfg.SeekingTTL)
	log.Printf("  result_ttl:    %s", cfg.ResultTTL)
	log.Printf("  rejected_ttl:  %s", cfg.RejectedTTL)
	log.Printf("  accel_cost:    %d", cfg.BaseAccelCost)

	// --- Wiring ---
	st := store.New(rdb, store.TTLs{
		Seeking:  cfg.SeekingTTL,
		Result:   cfg.ResultTTL,
		Rejected: cfg.RejectedTTL,
	})
	profiles := profile.NewStore(db)
	histories := history.NewStore(db)
	ledger := points.NewLedger(db)
	engine := scoring.NewEngine(profiles)

	orch := match.NewOrchestrator(st, engine, profiles, histories, events, match.OrchestratorConfig{
		SampleSize:            cfg.SampleSize,
		AcceleratedSampleSize: cfg.AcceleratedSampleSize,
	})
	svc := match.NewService(st, orch, ledger, histories, events, match.ServiceConfig{
		BaseAccelCost:  cfg.BaseAccelCost,
		TriggerDelay:   cfg.TriggerDelay,
		RetriggerAfter: cfg.RetriggerAfter,
	})

	sessions := session.NewStore(rdb)
	limiter := ratelimit.NewLimiter(rdb)
	api := httpapi.NewServer(svc, profiles, histories, sessions, limiter)

	// Background queue hygiene.
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go match.StartJanitor(janitorCtx, st)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		stopJanitor()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("matchd listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	log.Println("matchd stopped")
}
