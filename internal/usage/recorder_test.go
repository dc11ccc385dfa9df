package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu     sync.Mutex
	deltas []AggregateDelta
	fail   bool
}

func (f *fakeStore) Apply(ctx context.Context, delta AggregateDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return errors.New("store unavailable")
	}
	f.deltas = append(f.deltas, delta)
	return nil
}

func (f *fakeStore) applied() []AggregateDelta {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]AggregateDelta, len(f.deltas))
	copy(out, f.deltas)
	return out
}

type fakePeaks struct {
	peaks map[uuid.UUID]int
}

func (f *fakePeaks) PeakAndReset(tenantID uuid.UUID) int {
	peak := f.peaks[tenantID]
	f.peaks[tenantID] = 0
	return peak
}

func event(tenant uuid.UUID, d time.Duration, outcome string) Event {
	return Event{
		TenantID:    tenant,
		Timestamp:   time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC),
		Duration:    d,
		Parallelism: 1,
		Outcome:     outcome,
	}
}

func TestFlushFoldsEventsIntoOneDelta(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil, 100, time.Minute)

	tenant := uuid.New()
	r.Record(event(tenant, time.Second, OutcomeSuccess))
	r.Record(event(tenant, 2*time.Second, OutcomeError))
	r.Record(event(tenant, time.Second, OutcomeTimeout))

	r.Flush(context.Background())

	deltas := store.applied()
	if len(deltas) != 1 {
		t.Fatalf("expected one folded delta, got %d", len(deltas))
	}

	d := deltas[0]
	if d.TenantID != tenant || d.Period != "2026-08" {
		t.Fatalf("unexpected delta key: %s/%s", d.TenantID, d.Period)
	}
	if d.Requests != 3 {
		t.Fatalf("expected 3 requests, got %d", d.Requests)
	}
	if d.Errors != 1 || d.Timeouts != 1 {
		t.Fatalf("expected 1 error and 1 timeout, got %d/%d", d.Errors, d.Timeouts)
	}
	if d.CostUnits <= 0 {
		t.Fatalf("expected positive cost units, got %f", d.CostUnits)
	}
}

func TestFlushSeparatesTenants(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil, 100, time.Minute)

	a := uuid.New()
	b := uuid.New()
	r.Record(event(a, time.Second, OutcomeSuccess))
	r.Record(event(b, time.Second, OutcomeSuccess))

	r.Flush(context.Background())

	if len(store.applied()) != 2 {
		t.Fatalf("expected a delta per tenant, got %d", len(store.applied()))
	}
}

func TestRecordDropsOldestWhenFull(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil, 2, time.Minute)

	dropped := 0
	r.OnDrop(func() { dropped++ })

	tenant := uuid.New()
	r.Record(event(tenant, time.Second, OutcomeSuccess))
	r.Record(event(tenant, time.Second, OutcomeSuccess))
	r.Record(event(tenant, time.Second, OutcomeSuccess)) // overflows, evicts oldest

	if r.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", r.Dropped())
	}
	if dropped != 1 {
		t.Fatalf("expected 1 drop callback, got %d", dropped)
	}

	r.Flush(context.Background())

	deltas := store.applied()
	if len(deltas) != 1 || deltas[0].Requests != 2 {
		t.Fatalf("expected 2 surviving events, got %+v", deltas)
	}
}

func TestFlushRetriesFailedDeltas(t *testing.T) {
	store := &fakeStore{fail: true}
	r := NewRecorder(store, nil, 100, time.Minute)

	failures := 0
	r.OnFlushError(func() { failures++ })

	tenant := uuid.New()
	r.Record(event(tenant, time.Second, OutcomeSuccess))
	r.Flush(context.Background())

	if failures != 1 {
		t.Fatalf("expected 1 flush failure, got %d", failures)
	}
	if len(store.applied()) != 0 {
		t.Fatal("nothing should be applied while the store fails")
	}

	// Store recovers; the delta survives into the next flush
	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()

	r.Flush(context.Background())

	deltas := store.applied()
	if len(deltas) != 1 || deltas[0].Requests != 1 {
		t.Fatalf("expected the retried delta to apply, got %+v", deltas)
	}
}

func TestFlushMergesPeakConcurrency(t *testing.T) {
	tenant := uuid.New()
	store := &fakeStore{}
	peaks := &fakePeaks{peaks: map[uuid.UUID]int{tenant: 7}}
	r := NewRecorder(store, peaks, 100, time.Minute)

	r.Record(event(tenant, time.Second, OutcomeSuccess))
	r.Flush(context.Background())

	deltas := store.applied()
	if len(deltas) != 1 || deltas[0].PeakConcurrency != 7 {
		t.Fatalf("expected peak 7 in delta, got %+v", deltas)
	}
}

// Sums applied deltas per tenant so batch boundaries disappear.
func foldDeltas(deltas []AggregateDelta) map[uuid.UUID]AggregateDelta {
	out := make(map[uuid.UUID]AggregateDelta)
	for _, d := range deltas {
		total := out[d.TenantID]
		total.TenantID = d.TenantID
		total.Period = d.Period
		total.Requests += d.Requests
		total.CostUnits += d.CostUnits
		total.MemoryUnitMBs += d.MemoryUnitMBs
		total.Errors += d.Errors
		total.Timeouts += d.Timeouts
		if d.PeakConcurrency > total.PeakConcurrency {
			total.PeakConcurrency = d.PeakConcurrency
		}
		out[d.TenantID] = total
	}
	return out
}

func TestFlushGroupingIsOrderIndependent(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	events := []Event{
		event(a, time.Second, OutcomeSuccess),
		event(b, 2*time.Second, OutcomeError),
		event(a, 3*time.Second, OutcomeTimeout),
		event(b, time.Second, OutcomeSuccess),
	}

	single := &fakeStore{}
	one := NewRecorder(single, nil, 100, time.Minute)
	for _, e := range events {
		one.Record(e)
	}
	one.Flush(context.Background())

	// The same events split across two flushes must add up to the
	// same totals as one flush.
	split := &fakeStore{}
	two := NewRecorder(split, nil, 100, time.Minute)
	two.Record(events[0])
	two.Record(events[1])
	two.Flush(context.Background())
	two.Record(events[2])
	two.Record(events[3])
	two.Flush(context.Background())

	want := foldDeltas(single.applied())
	got := foldDeltas(split.applied())
	for tenant, w := range want {
		if got[tenant] != w {
			t.Fatalf("tenant %s diverged across batch groupings: %+v vs %+v", tenant, got[tenant], w)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("expected totals for %d tenants, got %d", len(want), len(got))
	}
}

func TestStartStopDrainsQueue(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil, 100, time.Hour)

	r.Start()
	r.Record(event(uuid.New(), time.Second, OutcomeSuccess))
	r.Stop()

	if len(store.applied()) != 1 {
		t.Fatal("stop must flush queued events")
	}
}
