package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// poolTracer is the OTel tracer for pool-slot spans. It uses the global
// provider, which is a no-op until a process wires up a real one.
var poolTracer = otel.Tracer("github.com/dataplane-tools/xrm-migrate/pool")

// poolMetrics holds the OTel instruments for the bounded pool, mirroring
// the teacher's doltMetrics: a histogram of held-slot latency and a
// histogram of time spent waiting to acquire a slot.
var poolMetrics struct {
	holdMs      metric.Float64Histogram
	acquireWait metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/dataplane-tools/xrm-migrate/pool")
	poolMetrics.holdMs, _ = m.Float64Histogram("xrm.pool.hold_ms",
		metric.WithDescription("time a caller held a pool slot before releasing it"),
		metric.WithUnit("ms"),
	)
	poolMetrics.acquireWait, _ = m.Float64Histogram("xrm.pool.acquire_wait_ms",
		metric.WithDescription("time spent waiting for a pool slot to become free"),
		metric.WithUnit("ms"),
	)
}

// Bounded backs Pool with a degree-of-parallelism semaphore, mirroring
// the teacher's cooperative acquire/release-via-closer idiom. A single
// underlying Client is shared across all acquired slots; the semaphore
// is what actually limits concurrency, not a per-slot client instance,
// since most real CRM clients are themselves safe for concurrent use
// once rate-limited.
type Bounded struct {
	sem    *semaphore.Weighted
	client Client
	dop    int

	mu    sync.Mutex
	stats Stats
}

// NewBounded returns a Pool that allows up to dop concurrent Acquire
// holders against client.
func NewBounded(client Client, dop int) *Bounded {
	if dop < 1 {
		dop = 1
	}
	return &Bounded{
		sem:    semaphore.NewWeighted(int64(dop)),
		client: client,
		dop:    dop,
	}
}

// Acquire blocks until a slot is free or ctx is cancelled. The wait gets
// a span and a histogram observation; the eventual hold gets a
// histogram observation only. This is the
// same "time spent waiting vs. time spent holding" split the teacher
// tracks for its dolt access lock (internal/storage/dolt/access_lock.go).
func (b *Bounded) Acquire(ctx context.Context) (Client, func(), error) {
	waitStart := time.Now()
	ctx, span := poolTracer.Start(ctx, "pool.acquire", trace.WithSpanKind(trace.SpanKindInternal))
	if err := b.sem.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, nil, fmt.Errorf("pool: acquire: %w", err)
	}
	poolMetrics.acquireWait.Record(ctx, float64(time.Since(waitStart).Milliseconds()))
	span.End()

	start := time.Now()
	released := int32(0)
	release := func() {
		if !atomic.CompareAndSwapInt32(&released, 0, 1) {
			return
		}
		held := time.Since(start)
		poolMetrics.holdMs.Record(ctx, float64(held.Milliseconds()),
			metric.WithAttributes(attribute.Int("pool.dop", b.dop)))
		b.mu.Lock()
		b.stats.Calls++
		b.stats.TotalLatency += held
		b.mu.Unlock()
		b.sem.Release(1)
	}
	return b.client, release, nil
}

// DOP returns the configured degree of parallelism, so callers that
// size their own concurrency off the pool (e.g. MaxParallelEntities'
// default) don't have to duplicate the configured value.
func (b *Bounded) DOP() int { return b.dop }

// Stats returns a snapshot of accumulated call statistics.
func (b *Bounded) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

var _ Pool = (*Bounded)(nil)
