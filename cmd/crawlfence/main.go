package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/crawlfence/crawlfence/internal/audit"
	"github.com/crawlfence/crawlfence/internal/cache"
	"github.com/crawlfence/crawlfence/internal/credential"
	"github.com/crawlfence/crawlfence/internal/detect"
	"github.com/crawlfence/crawlfence/internal/httpx"
	"github.com/crawlfence/crawlfence/internal/metrics"
	"github.com/crawlfence/crawlfence/internal/ratelimit"
	"github.com/crawlfence/crawlfence/internal/session"
	"github.com/crawlfence/crawlfence/pkg/config"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := cache.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := credential.Migrate(db); err != nil {
		log.Fatalf("database: migrate: %v", err)
	}

	m := metrics.NewMetrics()

	sinks, err := audit.FromConfig(cfg)
	if err != nil {
		log.Fatalf("audit: %v", err)
	}
	for _, s := range sinks {
		if err := s.Start(ctx); err != nil {
			log.Fatalf("audit: start %s: %v", s.Name(), err)
		}
		log.Printf("audit: sink %s started", s.Name())
	}

	emit := func(rec audit.Record) error {
		var firstErr error
		for _, s := range sinks {
			if err := s.Enqueue(rec); err != nil {
				m.SinkErrors.WithLabelValues(s.Name(), "enqueue").Inc()
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			m.AuditRecords.WithLabelValues(s.Name()).Inc()
		}
		return firstErr
	}

	limiter := ratelimit.New(rdb)

	detector := detect.NewDetector(rdb)
	detector.Emit = emit
	detector.Metrics = m
	detector.TrustProxy = cfg.TrustProxy

	creds := credential.NewStore(db, rdb, limiter)
	creds.Emit = emit
	creds.Metrics = m

	sessions := session.NewStore(rdb, cfg.SessionTTL)

	metricsSrv := metrics.NewServer(metrics.LoadConfig(), m)
	if err := metricsSrv.Start(ctx); err != nil {
		log.Fatalf("metrics: %v", err)
	}

	env := httpx.Env{
		Cfg:          cfg,
		Detector:     detector,
		Credentials:  creds,
		SessionStore: sessions,
		Metrics:      m,
		Ready: func() error {
			return rdb.Ping(ctx).Err()
		},
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      httpx.NewMux(env),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("crawlfence listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Printf("audit: close %s: %v", s.Name(), err)
		}
	}
	if err := rdb.Close(); err != nil {
		log.Printf("cache: close: %v", err)
	}
}
