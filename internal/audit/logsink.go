package audit

import (
	"context"
	"encoding/json"
	"log"
)

type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Start(ctx context.Context) error { return nil }

func (s *LogSink) Enqueue(rec Record) error {
	b, _ := json.Marshal(rec)
	log.Printf("audit %s", string(b))
	return nil
}

func (s *LogSink) Close() error { return nil }

func (s *LogSink) Name() string { return "log" }
