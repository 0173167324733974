package audit

import (
	"context"
	"fmt"

	"github.com/crawlfence/crawlfence/pkg/config"
)

type Sink interface {
	Start(ctx context.Context) error
	Enqueue(rec Record) error
	Close() error
	Name() string // Returns the sink name for metrics and logging
}

// FromConfig builds the configured sinks. Unknown output names are an error
// so a typo in AUDIT_OUTPUTS fails at startup rather than dropping records.
func FromConfig(cfg config.Config) ([]Sink, error) {
	var sinks []Sink
	for _, out := range cfg.AuditOutputs {
		switch out {
		case "log":
			sinks = append(sinks, NewLogSink())
		case "kafka":
			sinks = append(sinks, NewKafkaSinkFromEnv())
		case "postgres":
			sinks = append(sinks, NewPGSink(PGConfig{
				DSN:   cfg.DatabaseURL,
				Table: cfg.AuditTable,
			}))
		default:
			return nil, fmt.Errorf("audit: unknown output %q", out)
		}
	}
	return sinks, nil
}
