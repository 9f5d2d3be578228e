package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/voyagen/tvvault/internal/cache"
	"github.com/voyagen/tvvault/internal/config"
	"github.com/voyagen/tvvault/internal/server"
	"github.com/voyagen/tvvault/internal/service"
	"github.com/voyagen/tvvault/internal/store"
	"github.com/voyagen/tvvault/internal/xtream"
)

func main() {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use env DATABASE_URL")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Run migrations. The catalog writers assume the schema exists.
	absMigrations, err := filepath.Abs("migrations")
	if err != nil {
		absMigrations = "migrations"
	}
	if _, err := os.Stat(absMigrations); err != nil {
		if exe, e := os.Executable(); e == nil {
			absMigrations = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	if err := store.RunMigrations(cfg.DatabaseURL, "file://"+absMigrations); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	// Connect to Redis if REDIS_URL is configured.
	var rds *cache.Redis
	var appStore store.Store = pg
	if cfg.RedisURL != "" {
		rds, err = cache.New(cfg.RedisURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer rds.Close()

		if err := rds.Ping(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "redis ping: %v\n", err)
			os.Exit(1)
		}

		appStore = store.NewCachedStore(pg, rds)
		fmt.Fprintln(os.Stderr, "redis connected (caching enabled)")
	} else {
		fmt.Fprintln(os.Stderr, "redis disabled (REDIS_URL not set)")
	}

	xc := xtream.NewClient(cfg.UserAgent, cfg.Timeout)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the background refresh worker when Redis is available.
	if rds != nil {
		go runRefreshWorker(ctx, rds, appStore, xc, cfg)
	}

	srv := server.New(appStore, cfg, xc, rds)
	if err := srv.ListenAndServe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

// runRefreshWorker continuously dequeues refresh jobs from Redis and runs
// the ingestion pipeline with the stored account credentials. It stops when
// ctx is cancelled (graceful shutdown).
func runRefreshWorker(ctx context.Context, rds *cache.Redis, s store.Store, xc *xtream.Client, cfg *config.Config) {
	log.Println("refresh worker started")
	httpClient := &http.Client{Timeout: cfg.Timeout}
	for {
		select {
		case <-ctx.Done():
			log.Println("refresh worker stopping")
			return
		default:
		}

		job, err := cache.Dequeue(ctx, rds, cache.RefreshQueue, 5*time.Second)
		if err != nil {
			log.Printf("refresh worker: dequeue error: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}
		if job == nil {
			continue // timeout, loop back to check ctx
		}

		creds, err := s.GetAccount(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Printf("refresh worker: no stored account, dropping job")
				continue
			}
			log.Printf("refresh worker: load account: %v", err)
			continue
		}

		unlock, err := cache.TryLock(ctx, rds, cache.RefreshLockKey, 15*time.Minute)
		if err != nil {
			if errors.Is(err, cache.ErrLocked) {
				log.Printf("refresh worker: refresh already running, dropping job")
			} else {
				log.Printf("refresh worker: lock: %v", err)
			}
			continue
		}

		log.Printf("refresh worker: processing job requested at %s", job.RequestedAt.Format(time.RFC3339))
		err = service.Refresh(ctx, s, xc, httpClient, cfg.UserAgent, *creds, func(st service.Status) {
			log.Printf("refresh worker: %s", st.Message)
		})
		unlock()
		if err != nil {
			log.Printf("refresh worker: refresh failed: %v", err)
		}
	}
}
