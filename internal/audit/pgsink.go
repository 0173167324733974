package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// PGConfig holds configuration for the Postgres audit sink
type PGConfig struct {
	DSN           string
	Table         string
	BatchSize     int
	FlushInterval time.Duration
}

// PGSink writes audit records to Postgres in batches. Records accumulate in
// memory and are flushed when the batch fills or the interval elapses.
type PGSink struct {
	config PGConfig
	db     *sql.DB
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	batch []Record

	done chan struct{}
}

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateTableName rejects anything that could smuggle SQL into DDL/DML,
// since table names cannot be bound as parameters.
func validateTableName(name string) error {
	if len(name) > 63 {
		return fmt.Errorf("table name %q exceeds 63 characters", name)
	}
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

func NewPGSink(config PGConfig) *PGSink {
	if config.Table == "" {
		config.Table = "audit_records"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 2 * time.Second
	}
	return &PGSink{config: config, done: make(chan struct{})}
}

func (s *PGSink) Start(ctx context.Context) error {
	if err := validateTableName(s.config.Table); err != nil {
		return err
	}

	db, err := sql.Open("postgres", s.config.DSN)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	s.db = db
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return err
	}

	go s.flushLoop()
	return nil
}

func (s *PGSink) ensureSchema() error {
	t := s.config.Table
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL DEFAULT now(),
		record JSONB NOT NULL
	)`, t)
	if _, err := s.db.ExecContext(s.ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t, err)
	}

	tsIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s (ts)`, t, t)
	if _, err := s.db.ExecContext(s.ctx, tsIndex); err != nil {
		return fmt.Errorf("failed to create index idx_%s_ts: %w", t, err)
	}

	ginIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_gin ON %s USING GIN (record)`, t, t)
	if _, err := s.db.ExecContext(s.ctx, ginIndex); err != nil {
		return fmt.Errorf("failed to create index idx_%s_gin: %w", t, err)
	}

	return nil
}

func (s *PGSink) Enqueue(rec Record) error {
	s.mu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.config.BatchSize
	s.mu.Unlock()

	if full {
		return s.Flush()
	}
	return nil
}

// Flush writes any buffered records immediately. Before Start there is
// no connection; records stay buffered until the sink comes up.
func (s *PGSink) Flush() error {
	s.mu.Lock()
	if s.db == nil || len(s.batch) == 0 {
		s.mu.Unlock()
		return nil
	}
	pending := s.batch
	s.batch = nil
	s.mu.Unlock()

	if err := s.insert(pending); err != nil {
		// Put the records back so a transient failure doesn't lose them.
		s.mu.Lock()
		s.batch = append(pending, s.batch...)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *PGSink) insert(recs []Record) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (ts, record) VALUES ", s.config.Table)
	args := make([]interface{}, 0, len(recs))
	for i, rec := range recs {
		if i > 0 {
			sb.WriteString(", ")
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to serialize record %s: %w", rec.ID, err)
		}
		fmt.Fprintf(&sb, "(now(), $%d)", i+1)
		args = append(args, string(b))
	}

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert batch of %d: %w", len(recs), err)
	}
	return nil
}

func (s *PGSink) flushLoop() {
	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				log.Printf("audit: pg flush: %v", err)
			}
		}
	}
}

func (s *PGSink) Close() error {
	var flushErr error
	if s.db != nil {
		flushErr = s.Flush()
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && flushErr == nil {
			flushErr = err
		}
	}
	return flushErr
}

func (s *PGSink) Name() string { return "postgres" }
