// Package detect implements the multi-signal bot classifier: user-agent
// profiling, known-agent catalog lookup, header fingerprinting, behavioral
// window analysis and IP reputation, aggregated into a single
// confidence-scored verdict.
package detect

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crawlfence/crawlfence/internal/audit"
	"github.com/crawlfence/crawlfence/internal/metrics"
)

// Verdict is the outcome of analyzing one request. It is created fresh per
// request and never mutated after being returned.
type Verdict struct {
	IsBot         bool     `json:"is_bot"`
	Confidence    float64  `json:"confidence_score"`
	Methods       []string `json:"detection_methods"`
	AgentName     string   `json:"bot_name,omitempty"`
	AgentCategory string   `json:"bot_type,omitempty"`
	IsAICrawler   bool     `json:"is_ai_crawler"`
	Profile       Profile  `json:"client_info"`
}

// Detector aggregates the individual signals into a verdict and owns the
// history/reputation side effects.
type Detector struct {
	rdb     *redis.Client
	catalog *Catalog

	// Emit hands the detection record to the audit pipeline. Optional;
	// failures are logged and never fail the request.
	Emit func(audit.Record) error

	// Metrics is optional.
	Metrics *metrics.Metrics

	// TrustProxy controls whether X-Forwarded-For/X-Real-IP are believed
	// when deriving the client address.
	TrustProxy bool

	now func() time.Time
}

// NewDetector builds a Detector around the shared cache handle.
func NewDetector(rdb *redis.Client) *Detector {
	return &Detector{
		rdb:     rdb,
		catalog: NewCatalog(),
		now:     time.Now,
	}
}

// Detect runs the full signal pipeline for an inbound request directed at
// the given publisher. Individual signal failures contribute nothing; the
// pipeline itself never fails.
func (d *Detector) Detect(ctx context.Context, r *http.Request, publisher string) Verdict {
	v := Verdict{Methods: []string{}}

	addr := clientIP(r, d.TrustProxy)
	userAgent := r.Header.Get("User-Agent")

	// 1. User-agent profile.
	v.Profile = ParseUserAgent(userAgent)
	if v.Profile.IsBotByName {
		v.IsBot = true
		v.Confidence = maxf(v.Confidence, 0.8)
		v.Methods = append(v.Methods, "ua_parser")
		if v.AgentCategory == "" {
			v.AgentCategory = CategoryGenericBot
		}
	}

	// 2. Known agent catalog, first match wins.
	if entry, ok := d.catalog.Match(userAgent); ok {
		v.IsBot = true
		v.Confidence = maxf(v.Confidence, entry.Confidence)
		v.Methods = append(v.Methods, "known_pattern")
		v.AgentName = entry.Operator
		v.AgentCategory = entry.Category
		if entry.Category == CategoryAITraining {
			v.IsAICrawler = true
			v.Methods = append(v.Methods, "ai_crawler")
		}
	}

	// 3. Header fingerprint.
	d.merge(&v, analyzeFingerprint(r.Header, v.Profile))

	// 4. Behavioral window.
	d.merge(&v, analyzeBehavior(ctx, d.rdb, publisher, addr))

	// 5. IP reputation.
	d.merge(&v, checkReputation(ctx, d.rdb, addr))

	// 6. Record this request into history/reputation and emit the audit
	// record using the pre-corroboration verdict. A later downgrade does
	// not rewrite what was observed.
	d.persist(ctx, r, addr, publisher, v)

	// 7. Corroboration gate: a single weak signal is never sufficient to
	// label traffic as bot.
	if distinctCount(v.Methods) < 2 || v.Confidence < 0.8 {
		v.IsBot = false
		v.Confidence = 0.0
		v.Methods = []string{}
	}

	if v.IsBot {
		log.Printf("detect: bot publisher=%s addr=%s confidence=%.2f methods=%v agent=%q category=%q",
			publisher, addr, v.Confidence, v.Methods, v.AgentName, v.AgentCategory)
	}
	if d.Metrics != nil {
		d.Metrics.ObserveDetection(v.IsBot, v.AgentCategory)
	}

	return v
}

// merge folds signal contributions into the verdict: confidence via max(),
// method tags appended in order, bot flag only when the signal asserts it.
func (d *Detector) merge(v *Verdict, contribs []contribution) {
	for _, c := range contribs {
		if c.flagsBot {
			v.IsBot = true
		}
		v.Confidence = maxf(v.Confidence, c.confidence)
		v.Methods = append(v.Methods, c.method)
		if d.Metrics != nil {
			d.Metrics.SignalFires.WithLabelValues(c.method).Inc()
		}
	}
}

// persist appends the request to the sliding history window, updates IP
// reputation on high-confidence detections, and emits the durable audit
// record. All three are best-effort.
func (d *Detector) persist(ctx context.Context, r *http.Request, addr, publisher string, v Verdict) {
	now := d.now()

	entry := historyEntry{
		Timestamp:  float64(now.UnixNano()) / 1e9,
		Path:       r.URL.Path,
		Method:     r.Method,
		IsBot:      v.IsBot,
		Confidence: v.Confidence,
	}
	b, _ := json.Marshal(entry)

	key := historyKey(publisher, addr)
	_, err := d.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, historyDepth-1)
		pipe.Expire(ctx, key, historyTTLSeconds*time.Second)
		return nil
	})
	if err != nil {
		log.Printf("detect: history write: %v", err)
	}

	if v.IsBot && v.Confidence > 0.8 {
		writeReputation(ctx, d.rdb, addr, v.Methods, now)
	}

	if d.Emit != nil {
		rec := audit.NewRecord(audit.KindDetection)
		rec.PublisherID = publisher
		rec.IPAddress = addr
		rec.UserAgent = r.Header.Get("User-Agent")
		rec.Path = r.URL.Path
		rec.Method = r.Method
		rec.IsBot = v.IsBot
		rec.IsAICrawler = v.IsAICrawler
		rec.AgentName = v.AgentName
		rec.AgentCategory = v.AgentCategory
		rec.Confidence = v.Confidence
		rec.DetectionMethods = v.Methods
		if err := d.Emit(rec); err != nil {
			log.Printf("detect: audit emit: %v", err)
		}
	}
}

func distinctCount(methods []string) int {
	seen := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		seen[m] = struct{}{}
	}
	return len(seen)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
