package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// TestValidateTableName tests SQL injection prevention
func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name      string
		tableName string
		wantError bool
	}{
		{
			name:      "valid simple name",
			tableName: "audit_records",
			wantError: false,
		},
		{
			name:      "valid with numbers",
			tableName: "audit_2026",
			wantError: false,
		},
		{
			name:      "valid starting with underscore",
			tableName: "_private_audit",
			wantError: false,
		},
		{
			name:      "empty string",
			tableName: "",
			wantError: true,
		},
		{
			name:      "SQL injection attempt with semicolon",
			tableName: "audit; DROP TABLE users;--",
			wantError: true,
		},
		{
			name:      "SQL injection with quotes",
			tableName: "audit' OR '1'='1",
			wantError: true,
		},
		{
			name:      "contains spaces",
			tableName: "my audit",
			wantError: true,
		},
		{
			name:      "contains dash",
			tableName: "audit-records",
			wantError: true,
		},
		{
			name:      "starts with number",
			tableName: "2026_audit",
			wantError: true,
		},
		{
			name:      "too long (>63 chars)",
			tableName: "this_is_a_very_long_table_name_that_exceeds_the_postgresql_limit_of_63_characters",
			wantError: true,
		},
		{
			name:      "exactly 63 chars (valid)",
			tableName: "abcdefghijklmnopqrstuvwxyz_abcdefghijklmnopqrstuvwxyz_1234567",
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTableName(tt.tableName)
			if (err != nil) != tt.wantError {
				t.Errorf("validateTableName(%q) error = %v, wantError = %v", tt.tableName, err, tt.wantError)
			}
		})
	}
}

// TestNewPGSinkDefaults tests config defaulting
func TestNewPGSinkDefaults(t *testing.T) {
	s := NewPGSink(PGConfig{DSN: "postgres://localhost/x"})

	if s.config.Table != "audit_records" {
		t.Errorf("Table = %q, want audit_records", s.config.Table)
	}
	if s.config.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", s.config.BatchSize)
	}
	if s.config.FlushInterval <= 0 {
		t.Errorf("FlushInterval = %v, want positive", s.config.FlushInterval)
	}
	if s.Name() != "postgres" {
		t.Errorf("Name = %q, want postgres", s.Name())
	}
}

func mockedSink(t *testing.T, cfg PGConfig) (*PGSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := NewPGSink(cfg)
	s.db = db
	s.ctx = context.Background()
	return s, mock
}

// TestPGSinkFlush tests batch buffering and flushing
func TestPGSinkFlush(t *testing.T) {
	t.Run("flush writes the buffered batch", func(t *testing.T) {
		s, mock := mockedSink(t, PGConfig{})
		mock.ExpectExec("INSERT INTO audit_records").
			WillReturnResult(sqlmock.NewResult(0, 2))

		_ = s.Enqueue(NewRecord(KindDetection))
		_ = s.Enqueue(NewRecord(KindUsage))
		if err := s.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("empty flush is a no-op", func(t *testing.T) {
		s, mock := mockedSink(t, PGConfig{})
		if err := s.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("full batch triggers an immediate flush", func(t *testing.T) {
		s, mock := mockedSink(t, PGConfig{BatchSize: 2})
		mock.ExpectExec("INSERT INTO audit_records").
			WillReturnResult(sqlmock.NewResult(0, 2))

		if err := s.Enqueue(NewRecord(KindDetection)); err != nil {
			t.Fatal(err)
		}
		if err := s.Enqueue(NewRecord(KindDetection)); err != nil {
			t.Fatal(err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("failed flush re-queues the batch", func(t *testing.T) {
		s, mock := mockedSink(t, PGConfig{})
		mock.ExpectExec("INSERT INTO audit_records").
			WillReturnError(errors.New("connection reset"))
		mock.ExpectExec("INSERT INTO audit_records").
			WillReturnResult(sqlmock.NewResult(0, 1))

		_ = s.Enqueue(NewRecord(KindDetection))
		if err := s.Flush(); err == nil {
			t.Fatal("Flush succeeded, want error")
		}

		// The record survived the failure and flushes on retry.
		if err := s.Flush(); err != nil {
			t.Fatalf("retry Flush: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("custom table name is used", func(t *testing.T) {
		s, mock := mockedSink(t, PGConfig{Table: "audit_custom"})
		mock.ExpectExec("INSERT INTO audit_custom").
			WillReturnResult(sqlmock.NewResult(0, 1))

		_ = s.Enqueue(NewRecord(KindUsage))
		if err := s.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}

// TestPGSinkEnqueueBeforeStart tests that buffering past the batch size
// without a connection does not panic and keeps the records
func TestPGSinkEnqueueBeforeStart(t *testing.T) {
	s := NewPGSink(PGConfig{BatchSize: 2})

	for i := 0; i < 3; i++ {
		if err := s.Enqueue(NewRecord(KindDetection)); err != nil {
			t.Fatalf("Enqueue %d: %v", i+1, err)
		}
	}

	s.mu.Lock()
	buffered := len(s.batch)
	s.mu.Unlock()
	if buffered != 3 {
		t.Errorf("buffered = %d, want 3 records retained until Start", buffered)
	}

	// Once a connection exists the retained batch flushes normally.
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s.db = db
	s.ctx = context.Background()

	mock.ExpectExec("INSERT INTO audit_records").
		WillReturnResult(sqlmock.NewResult(0, 3))
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush after connect: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// TestPGSinkStartRejectsBadTable tests that startup fails fast on an
// unusable table name
func TestPGSinkStartRejectsBadTable(t *testing.T) {
	s := NewPGSink(PGConfig{Table: "bad; DROP TABLE x"})
	if err := s.Start(context.Background()); err == nil {
		t.Error("Start succeeded with malicious table name")
	}
}
