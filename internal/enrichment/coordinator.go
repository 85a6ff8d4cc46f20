package enrichment

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/roadwatch/internal/metrics"
	"github.com/good-yellow-bee/roadwatch/internal/storage"
)

// CoordinatorOptions configures the enrichment coordinator.
type CoordinatorOptions struct {
	// MaxConcurrent bounds parallel provider calls.
	MaxConcurrent int64
	// CallTimeout is the hard deadline for a single provider call.
	CallTimeout time.Duration
	// RateLimit caps outbound provider calls per second (0 = none).
	RateLimit float64
}

// DefaultCoordinatorOptions returns default coordinator options.
func DefaultCoordinatorOptions() CoordinatorOptions {
	return CoordinatorOptions{
		MaxConcurrent: 4,
		CallTimeout:   20 * time.Second,
		RateLimit:     2,
	}
}

// CoordinatorStats tracks enrichment outcomes using atomics.
type CoordinatorStats struct {
	Submitted atomic.Int64
	Succeeded atomic.Int64
	Retried   atomic.Int64
	Fallbacks atomic.Int64
}

// Coordinator runs enrichment asynchronously. Submit returns
// immediately; the provider call happens on a worker goroutine
// bounded by a semaphore, with one retry and a deterministic fallback
// so every incident ends up fully populated. Enrichment outcome never
// propagates to the ingestion path.
type Coordinator struct {
	provider  Provider
	incidents storage.IncidentRepository
	metrics   *metrics.Collector
	opts      CoordinatorOptions

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats CoordinatorStats
}

// NewCoordinator creates a coordinator. A nil provider is allowed:
// every incident then receives fallback analysis immediately, which
// keeps deployments without an API key fully functional. The metrics
// collector is optional.
func NewCoordinator(provider Provider, incidents storage.IncidentRepository, mc *metrics.Collector, opts CoordinatorOptions) *Coordinator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultCoordinatorOptions().MaxConcurrent
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCoordinatorOptions().CallTimeout
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		provider:  provider,
		incidents: incidents,
		metrics:   mc,
		opts:      opts,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		limiter:   limiter,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Stats returns the coordinator counters.
func (c *Coordinator) Stats() *CoordinatorStats {
	return &c.stats
}

// Online reports whether a real provider is configured.
func (c *Coordinator) Online() bool {
	return c.provider != nil
}

// ProviderName reports the configured provider, or "fallback" when
// none is set.
func (c *Coordinator) ProviderName() string {
	if c.provider == nil {
		return "fallback"
	}
	return c.provider.Name()
}

// Submit schedules enrichment for a newly created incident. Called
// exactly once per creation, never on refresh. The call returns
// before enrichment completes; resolution of the incident while
// enrichment is in flight does not cancel it, because the analysis
// is additive context either way.
func (c *Coordinator) Submit(req Request) {
	c.stats.Submitted.Add(1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(req)
	}()
}

func (c *Coordinator) run(req Request) {
	if c.provider == nil {
		c.applyFallback(req)
		return
	}

	if c.metrics != nil {
		c.metrics.EnrichmentInFlight.Inc()
		defer c.metrics.EnrichmentInFlight.Dec()
	}

	if err := c.sem.Acquire(c.ctx, 1); err != nil {
		// Shutting down; make sure the incident is still populated.
		c.applyFallback(req)
		return
	}
	defer c.sem.Release(1)

	if c.limiter != nil {
		if err := c.limiter.Wait(c.ctx); err != nil {
			c.applyFallback(req)
			return
		}
	}

	// One attempt plus at most one retry, each bounded by the call
	// timeout, then the fallback path fires.
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.stats.Retried.Add(1)
		}

		callCtx, cancel := context.WithTimeout(c.ctx, c.opts.CallTimeout)
		analysis, err := c.provider.Analyze(callCtx, req)
		cancel()

		if err == nil {
			c.apply(req, analysis)
			c.stats.Succeeded.Add(1)
			if c.metrics != nil {
				c.metrics.EnrichmentCalls.WithLabelValues("success").Inc()
			}
			return
		}
		log.Printf("enrichment attempt %d failed for incident %s: %v", attempt+1, req.Incident.ID, err)
	}

	c.applyFallback(req)
}

func (c *Coordinator) applyFallback(req Request) {
	c.stats.Fallbacks.Add(1)
	if c.metrics != nil {
		c.metrics.EnrichmentCalls.WithLabelValues("fallback").Inc()
	}
	c.apply(req, Fallback(req.Incident))
}

// apply writes the analysis onto the incident. Last write wins: a
// late provider success may overwrite previously recorded fallback
// text, which is fine because the fields are additive context and
// never carry lifecycle state.
func (c *Coordinator) apply(req Request, analysis Analysis) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.incidents.SetAnalysis(ctx, req.Incident.ID, analysis.Summary, analysis.Cause, analysis.Recommendation)
	if err != nil {
		log.Printf("write enrichment for incident %s: %v", req.Incident.ID, err)
	}
}

// Close stops accepting work and waits for in-flight enrichment to
// finish writing.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until all submitted enrichment has completed. Useful in
// tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
