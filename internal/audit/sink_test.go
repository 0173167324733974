package audit

import (
	"context"
	"strings"
	"testing"

	"github.com/crawlfence/crawlfence/pkg/config"
)

// TestFromConfig tests sink construction from the configured outputs
func TestFromConfig(t *testing.T) {
	t.Run("log only", func(t *testing.T) {
		sinks, err := FromConfig(config.Config{AuditOutputs: []string{"log"}})
		if err != nil {
			t.Fatalf("FromConfig: %v", err)
		}
		if len(sinks) != 1 || sinks[0].Name() != "log" {
			t.Errorf("sinks = %v, want [log]", sinkNames(sinks))
		}
	})

	t.Run("all outputs", func(t *testing.T) {
		sinks, err := FromConfig(config.Config{
			AuditOutputs: []string{"log", "kafka", "postgres"},
			DatabaseURL:  "postgres://localhost/x",
			AuditTable:   "audit_records",
		})
		if err != nil {
			t.Fatalf("FromConfig: %v", err)
		}
		got := sinkNames(sinks)
		if got != "log,kafka,postgres" {
			t.Errorf("sinks = %q, want log,kafka,postgres", got)
		}
	})

	t.Run("unknown output fails at startup", func(t *testing.T) {
		if _, err := FromConfig(config.Config{AuditOutputs: []string{"lgo"}}); err == nil {
			t.Error("FromConfig accepted an unknown output")
		}
	})
}

func sinkNames(sinks []Sink) string {
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

// TestLogSink tests the always-available fallback sink
func TestLogSink(t *testing.T) {
	s := NewLogSink()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Enqueue(NewRecord(KindDetection)); err != nil {
		t.Errorf("Enqueue: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if s.Name() != "log" {
		t.Errorf("Name = %q, want log", s.Name())
	}
}

// TestNewRecord tests record identity stamping
func TestNewRecord(t *testing.T) {
	a := NewRecord(KindDetection)
	b := NewRecord(KindUsage)

	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Errorf("ids = %q/%q, want distinct non-empty", a.ID, b.ID)
	}
	if a.Kind != KindDetection || b.Kind != KindUsage {
		t.Errorf("kinds = %q/%q", a.Kind, b.Kind)
	}
	if a.TS == "" {
		t.Error("TS not stamped")
	}
}
