package metrics

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the Prometheus metrics for crawlfence. Each instance
// carries its own registry so tests can construct them freely.
type Metrics struct {
	Registry *prometheus.Registry

	// Counters
	DetectionsTotal     *prometheus.CounterVec
	SignalFires         *prometheus.CounterVec
	ValidationsTotal    *prometheus.CounterVec
	RateLimitRejections *prometheus.CounterVec
	AuditRecords        *prometheus.CounterVec
	SinkErrors          *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec

	// Gauges
	QueueDepth *prometheus.GaugeVec

	// Histograms
	HTTPDuration *prometheus.HistogramVec
}

// Config holds configuration for the metrics server
type Config struct {
	Enabled    bool
	Addr       string
	TLSCert    string
	TLSKey     string
	RequireTLS bool
}

// LoadConfig loads metrics configuration from environment variables
func LoadConfig() Config {
	return Config{
		Enabled:    getBool("METRICS_ENABLED", false),
		Addr:       getOr("METRICS_ADDR", "127.0.0.1:9090"),
		TLSCert:    getOr("METRICS_TLS_CERT", ""),
		TLSKey:     getOr("METRICS_TLS_KEY", ""),
		RequireTLS: getBool("METRICS_REQUIRE_TLS", false),
	}
}

// NewMetrics creates and registers all crawlfence metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		DetectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlfence_detections_total",
				Help: "Total detection verdicts by outcome and agent category",
			},
			[]string{"outcome", "category"},
		),

		SignalFires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlfence_signal_fires_total",
				Help: "Total individual detection signal contributions by method",
			},
			[]string{"method"},
		),

		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlfence_validations_total",
				Help: "Total credential validations by outcome and rejection reason",
			},
			[]string{"outcome", "reason"},
		),

		RateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlfence_rate_limit_rejections_total",
				Help: "Total rate-limit rejections by window kind",
			},
			[]string{"window"},
		),

		AuditRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlfence_audit_records_total",
				Help: "Total audit records enqueued by sink",
			},
			[]string{"sink"},
		),

		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlfence_sink_errors_total",
				Help: "Total errors writing to an audit sink",
			},
			[]string{"sink", "error_type"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlfence_http_requests_total",
				Help: "Total HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crawlfence_queue_depth",
				Help: "Current depth of the audit record queue",
			},
			[]string{"sink"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawlfence_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method"},
		),
	}

	m.Registry.MustRegister(m.DetectionsTotal)
	m.Registry.MustRegister(m.SignalFires)
	m.Registry.MustRegister(m.ValidationsTotal)
	m.Registry.MustRegister(m.RateLimitRejections)
	m.Registry.MustRegister(m.AuditRecords)
	m.Registry.MustRegister(m.SinkErrors)
	m.Registry.MustRegister(m.HTTPRequests)
	m.Registry.MustRegister(m.QueueDepth)
	m.Registry.MustRegister(m.HTTPDuration)

	return m
}

// ObserveDetection records one verdict.
func (m *Metrics) ObserveDetection(isBot bool, category string) {
	outcome := "human"
	if isBot {
		outcome = "bot"
	}
	if category == "" {
		category = "none"
	}
	m.DetectionsTotal.WithLabelValues(outcome, category).Inc()
}

// ObserveValidation records one credential validation outcome.
func (m *Metrics) ObserveValidation(allowed bool, reason string) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	if reason == "" {
		reason = "none"
	}
	m.ValidationsTotal.WithLabelValues(outcome, reason).Inc()
}

// Server represents the metrics HTTP server
type Server struct {
	server *http.Server
	config Config
}

// NewServer creates a new metrics server exposing the given registry
func NewServer(config Config, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if config.RequireTLS && config.TLSCert != "" && config.TLSKey != "" {
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Server{
		server: srv,
		config: config,
	}
}

// Start starts the metrics server in a separate goroutine
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		log.Printf("metrics: disabled (METRICS_ENABLED=false)")
		return nil
	}

	go func() {
		var err error
		if s.config.RequireTLS && s.config.TLSCert != "" && s.config.TLSKey != "" {
			log.Printf("metrics: HTTPS server listening on %s", s.config.Addr)
			err = s.server.ListenAndServeTLS(s.config.TLSCert, s.config.TLSKey)
		} else {
			log.Printf("metrics: HTTP server listening on %s", s.config.Addr)
			err = s.server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			log.Printf("metrics: server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	log.Printf("metrics: shutting down server...")
	return s.server.Shutdown(ctx)
}

// Helper functions
func getOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
