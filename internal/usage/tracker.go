// Package usage keeps per-model LLM usage counters in memory and mirrors
// every observation to the model repository.
package usage

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"annotext/internal/domain"
	"annotext/internal/logger"
	"annotext/internal/port"
)

const storeTimeout = 5 * time.Second

// cost is held in nano-units so it can be added atomically.
const costScale = 1e9

type counters struct {
	requests  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64
	tokens    atomic.Int64
	costNanos atomic.Int64
	latencyNs atomic.Int64
	entities  atomic.Int64
	unmatched atomic.Int64
	lastUsed  atomic.Int64 // unix nanos
}

// ModelUsage is a point-in-time copy of one model's counters.
type ModelUsage struct {
	ModelID                uuid.UUID  `json:"model_id"`
	TotalRequests          int64      `json:"total_requests"`
	SuccessfulRequests     int64      `json:"successful_requests"`
	FailedRequests         int64      `json:"failed_requests"`
	CacheHits              int64      `json:"cache_hits"`
	TotalTokens            int64      `json:"total_tokens"`
	TotalCost              float64    `json:"total_cost"`
	AverageResponseTimeMs  float64    `json:"average_response_time_ms"`
	SuccessRate            float64    `json:"success_rate"`
	TotalEntitiesExtracted int64      `json:"total_entities_extracted"`
	HallucinatedCandidates int64      `json:"hallucinated_candidates"`
	LastUsedAt             *time.Time `json:"last_used_at,omitempty"`
}

// Tracker implements port.UsageRecorder. Counters cover the life of the
// process; the persisted totals live on the llm_models rows.
type Tracker struct {
	models sync.Map // uuid.UUID -> *counters
	store  port.LLMModelRepository
	log    *logger.Logger
}

var _ port.UsageRecorder = (*Tracker)(nil)

// NewTracker creates a Tracker. store may be nil.
func NewTracker(store port.LLMModelRepository, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{store: store, log: log}
}

func (t *Tracker) counters(id uuid.UUID) *counters {
	if c, ok := t.models.Load(id); ok {
		return c.(*counters)
	}
	c, _ := t.models.LoadOrStore(id, &counters{})
	return c.(*counters)
}

// Record applies ev to the in-memory counters and persists it. Persistence
// errors are logged, never returned.
func (t *Tracker) Record(ctx context.Context, ev domain.UsageEvent) {
	if ev.ModelID == uuid.Nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	c := t.counters(ev.ModelID)
	switch ev.Kind {
	case domain.UsageRequest:
		c.requests.Add(1)
		if ev.Success {
			c.successes.Add(1)
		} else {
			c.failures.Add(1)
		}
		c.tokens.Add(int64(ev.Tokens))
		c.costNanos.Add(int64(ev.Cost * costScale))
		c.latencyNs.Add(int64(ev.Latency))
	case domain.UsageCacheHit:
		c.cacheHits.Add(1)
	case domain.UsageOutcome:
		c.entities.Add(int64(ev.Entities))
		c.unmatched.Add(int64(ev.Unmatched))
	}
	c.lastUsed.Store(ev.At.UnixNano())

	if t.store == nil {
		return
	}
	// The job context may already be cancelled; the observation still counts.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := t.store.RecordUsage(sctx, ev); err != nil {
		t.log.Warn("failed to persist llm usage", "model_id", ev.ModelID, "kind", ev.Kind, "error", err)
	}
}

// Snapshot returns a copy of the counters for every model seen, ordered by model id.
func (t *Tracker) Snapshot() []ModelUsage {
	var out []ModelUsage
	t.models.Range(func(k, v any) bool {
		out = append(out, snapshotOf(k.(uuid.UUID), v.(*counters)))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID.String() < out[j].ModelID.String() })
	return out
}

// ForModel returns the counters for one model; ok is false if it was never used.
func (t *Tracker) ForModel(id uuid.UUID) (ModelUsage, bool) {
	v, ok := t.models.Load(id)
	if !ok {
		return ModelUsage{}, false
	}
	return snapshotOf(id, v.(*counters)), true
}

func snapshotOf(id uuid.UUID, c *counters) ModelUsage {
	u := ModelUsage{
		ModelID:                id,
		TotalRequests:          c.requests.Load(),
		SuccessfulRequests:     c.successes.Load(),
		FailedRequests:         c.failures.Load(),
		CacheHits:              c.cacheHits.Load(),
		TotalTokens:            c.tokens.Load(),
		TotalCost:              float64(c.costNanos.Load()) / costScale,
		TotalEntitiesExtracted: c.entities.Load(),
		HallucinatedCandidates: c.unmatched.Load(),
	}
	if u.TotalRequests > 0 {
		u.AverageResponseTimeMs = float64(c.latencyNs.Load()) / float64(u.TotalRequests) / float64(time.Millisecond)
		u.SuccessRate = float64(u.SuccessfulRequests) / float64(u.TotalRequests) * 100
	}
	if ns := c.lastUsed.Load(); ns > 0 {
		ts := time.Unix(0, ns).UTC()
		u.LastUsedAt = &ts
	}
	return u
}
