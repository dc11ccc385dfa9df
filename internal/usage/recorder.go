package usage

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Monotonic increments applied to one (tenant, period) aggregate row.
type AggregateDelta struct {
	TenantID        uuid.UUID
	Period          string
	Requests        int64
	CostUnits       float64
	MemoryUnitMBs   float64
	Errors          int64
	Timeouts        int64
	PeakConcurrency int
}

// Durable sink for aggregate increments. The postgres repository
// implements it; tests use an in-memory fake.
type AggregateStore interface {
	Apply(ctx context.Context, delta AggregateDelta) error
}

// Reports and resets a tenant's peak concurrency since the last
// flush. Implemented by the gatekeeper.
type PeakSource interface {
	PeakAndReset(tenantID uuid.UUID) int
}

// Asynchronously batches per-request usage events into per-tenant,
// per-period aggregates. The request path only ever does a
// non-blocking channel send; a single background loop drains the
// queue on a fixed interval.
type Recorder struct {
	queue    chan Event
	store    AggregateStore
	peaks    PeakSource
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}

	dropped      atomic.Int64
	onDrop       func() // optional queue-loss metric hook
	onFlushError func()
	pendingRetry []AggregateDelta
}

func NewRecorder(store AggregateStore, peaks PeakSource, queueSize int, interval time.Duration) *Recorder {
	return &Recorder{
		queue:    make(chan Event, queueSize),
		store:    store,
		peaks:    peaks,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Registers callbacks for queue loss and batch-write failure metrics.
func (r *Recorder) OnDrop(fn func())       { r.onDrop = fn }
func (r *Recorder) OnFlushError(fn func()) { r.onFlushError = fn }

// Enqueues an event without ever blocking the request path. When the
// queue is full the oldest event is dropped and counted: bounded
// memory with auditable loss, never unbounded growth.
func (r *Recorder) Record(e Event) {
	select {
	case r.queue <- e:
		return
	default:
	}

	// Queue full: evict the oldest entry to make room.
	select {
	case <-r.queue:
		r.dropped.Add(1)
		if r.onDrop != nil {
			r.onDrop()
		}
	default:
	}

	select {
	case r.queue <- e:
	default:
		// Lost the race to another producer; drop the new event.
		r.dropped.Add(1)
		if r.onDrop != nil {
			r.onDrop()
		}
	}
}

// Total events lost to queue overflow since startup.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Begins the background drain loop.
func (r *Recorder) Start() {
	go func() {
		defer close(r.doneChan)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.Flush(context.Background())
			case <-r.stopChan:
				// Final drain so shutdown does not lose queued events
				r.Flush(context.Background())
				return
			}
		}
	}()
}

// Stops the drain loop after a final flush.
func (r *Recorder) Stop() {
	close(r.stopChan)
	<-r.doneChan
}

// Drains everything currently queued, folds events into per-(tenant,
// period) deltas and applies them to the store. Failed deltas are
// kept and retried on the next flush; recording failures never fail
// the originating request.
func (r *Recorder) Flush(ctx context.Context) {
	deltas := make(map[string]*AggregateDelta)

	// Fold retries from the previous failed flush first
	for _, d := range r.pendingRetry {
		delta := d
		deltas[deltaKey(d.TenantID, d.Period)] = &delta
	}
	r.pendingRetry = nil

	for {
		select {
		case e := <-r.queue:
			key := deltaKey(e.TenantID, Period(e.Timestamp))
			delta, ok := deltas[key]
			if !ok {
				delta = &AggregateDelta{TenantID: e.TenantID, Period: Period(e.Timestamp)}
				deltas[key] = delta
			}

			delta.Requests++
			delta.CostUnits += CostUnits(e)
			delta.MemoryUnitMBs += MemoryUnits(e)

			switch e.Outcome {
			case OutcomeTimeout:
				delta.Timeouts++
			case OutcomeError:
				delta.Errors++
			}
		default:
			r.apply(ctx, deltas)
			return
		}
	}
}

func (r *Recorder) apply(ctx context.Context, deltas map[string]*AggregateDelta) {
	for _, delta := range deltas {
		if r.peaks != nil {
			// Max-merge so a retried delta keeps its recorded peak
			if peak := r.peaks.PeakAndReset(delta.TenantID); peak > delta.PeakConcurrency {
				delta.PeakConcurrency = peak
			}
		}

		if err := r.store.Apply(ctx, *delta); err != nil {
			log.Printf("Failed to apply usage aggregate for tenant %s period %s, will retry: %v",
				delta.TenantID, delta.Period, err)
			if r.onFlushError != nil {
				r.onFlushError()
			}
			r.pendingRetry = append(r.pendingRetry, *delta)
		}
	}
}

func deltaKey(tenantID uuid.UUID, period string) string {
	return tenantID.String() + "/" + period
}
