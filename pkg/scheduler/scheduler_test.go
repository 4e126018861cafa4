package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-pool/pkg/adapters"
	"trust-pool/pkg/model"
	"trust-pool/pkg/store"
)

// recordingAdapter counts evaluations and serves a configurable verdict.
type recordingAdapter struct {
	mu    sync.Mutex
	calls int
	level model.TrustLevel
	auth  bool
	err   error
	delay time.Duration
}

func (r *recordingAdapter) Name() string { return adapters.AttestationName }

func (r *recordingAdapter) Evaluate(ctx context.Context, _ string) (model.TrustLevel, bool, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return model.TrustUnknown, false, ctx.Err()
		}
	}
	return r.level, r.auth, r.err
}

func (r *recordingAdapter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestScheduler(t *testing.T, ad adapters.Adapter, tick time.Duration) (*Scheduler, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	_, err := st.NodeUpsert(model.Node{Host: "h1"})
	require.NoError(t, err)
	reg := adapters.NewRegistry()
	reg.Register(adapters.AttestationName, func() (adapters.Adapter, error) { return ad, nil })
	s, err := New(st, reg, tick)
	require.NoError(t, err)
	return s, st
}

func TestNewSeedsCacheAndChecks(t *testing.T) {
	ad := &recordingAdapter{level: model.TrustTrusted, auth: true}
	s, st := newTestScheduler(t, ad, 10*time.Second)

	got := s.Cache().Get("h1")
	assert.Equal(t, model.TrustUnknown, got.Level)

	// A definition was auto-created for the discovered adapter.
	check, err := st.CheckGet(adapters.AttestationName)
	require.NoError(t, err)
	assert.Equal(t, defaultSpacing, check.Spacing)
	assert.Equal(t, defaultTimeout, check.Timeout)
}

func TestFirstTickRunsAndUpdatesCache(t *testing.T) {
	ad := &recordingAdapter{level: model.TrustTrusted, auth: true}
	s, st := newTestScheduler(t, ad, 10*time.Second)

	s.Tick(context.Background())

	got := s.Cache().Get("h1")
	assert.Equal(t, model.TrustTrusted, got.Level)
	assert.True(t, got.VTime.After(epoch), "verdict timestamp must advance")

	results, err := st.ResultsGet(0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.StatusOn, results[0].Status)
	assert.Equal(t, "h1", results[0].Node)
}

func TestSpacingGatesDispatch(t *testing.T) {
	ad := &recordingAdapter{level: model.TrustTrusted, auth: true}
	s, _ := newTestScheduler(t, ad, 10*time.Second) // check spacing is 60s

	ctx := context.Background()
	s.Tick(ctx) // first sight: due immediately
	assert.Equal(t, 1, ad.callCount())

	for i := 0; i < 5; i++ { // 50s elapsed, still under spacing
		s.Tick(ctx)
	}
	assert.Equal(t, 1, ad.callCount(), "ticks below spacing must not dispatch")

	s.Tick(ctx) // 60s elapsed
	assert.Equal(t, 2, ad.callCount())
}

func TestTimeoutLeavesCacheUntouched(t *testing.T) {
	ad := &recordingAdapter{level: model.TrustTrusted, auth: true, delay: 5 * time.Second}
	s, st := newTestScheduler(t, ad, 10*time.Second)
	timeout := 1
	_, err := st.CheckUpdate(adapters.AttestationName, model.CheckPatch{Timeout: &timeout})
	require.NoError(t, err)

	s.Tick(context.Background())

	assert.Equal(t, model.TrustUnknown, s.Cache().Get("h1").Level)
	results, err := st.ResultsGet(0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.StatusTimeout, results[0].Status)

	// Elapsed was reset: the very next tick must not retry.
	s.Tick(context.Background())
	results, _ = st.ResultsGet(0)
	assert.Len(t, results, 1)
}

func TestDisabledTickProducesNothing(t *testing.T) {
	ad := &recordingAdapter{level: model.TrustTrusted, auth: true}
	s, st := newTestScheduler(t, ad, 10*time.Second)
	s.SetPeriodicEnabled(false)

	for i := 0; i < 10; i++ {
		s.Tick(context.Background())
	}

	assert.Equal(t, 0, ad.callCount())
	results, err := st.ResultsGet(0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, model.TrustUnknown, s.Cache().Get("h1").Level)
}

func TestManualRunBypassesFlagAndSpacing(t *testing.T) {
	ad := &recordingAdapter{level: model.TrustTrusted, auth: true}
	s, st := newTestScheduler(t, ad, 10*time.Second)
	s.SetPeriodicEnabled(false)

	require.NoError(t, s.RunChecksOnNodes(context.Background(), []string{"h9"}))

	assert.Equal(t, model.TrustTrusted, s.Cache().Get("h9").Level)
	results, err := st.ResultsGet(0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "h9", results[0].Node)
}

func TestAdapterErrorIsRecordedNotFatal(t *testing.T) {
	ad := &recordingAdapter{err: errors.New("attestation service unreachable")}
	s, st := newTestScheduler(t, ad, 10*time.Second)

	s.Tick(context.Background())

	assert.Equal(t, model.TrustUnknown, s.Cache().Get("h1").Level)
	results, err := st.ResultsGet(0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.StatusError, results[0].Status)
}

func TestNonAuthoritativeResultDoesNotUpdateCache(t *testing.T) {
	ad := &recordingAdapter{level: model.TrustTrusted, auth: false}
	s, st := newTestScheduler(t, ad, 10*time.Second)

	s.Tick(context.Background())

	assert.Equal(t, model.TrustUnknown, s.Cache().Get("h1").Level)
	results, _ := st.ResultsGet(0)
	require.Len(t, results, 1)
	assert.Equal(t, model.StatusOff, results[0].Status)
}

func TestMissingAdapterRecordsError(t *testing.T) {
	ad := &recordingAdapter{level: model.TrustTrusted, auth: true}
	s, st := newTestScheduler(t, ad, 10*time.Second)
	_, err := s.Catalog().Create(model.Check{Name: "ghost", Spacing: 60})
	require.NoError(t, err)

	s.Tick(context.Background())

	results, err := st.ResultsGet(0)
	require.NoError(t, err)
	var ghost []model.CheckResult
	for _, r := range results {
		if r.CheckName == "ghost" {
			ghost = append(ghost, r)
		}
	}
	require.Len(t, ghost, 1)
	assert.Equal(t, model.StatusError, ghost[0].Status)
}

func TestVerdictTimestampStrictlyIncreases(t *testing.T) {
	ad := &recordingAdapter{level: model.TrustTrusted, auth: true}
	s, _ := newTestScheduler(t, ad, 10*time.Second)

	ctx := context.Background()
	require.NoError(t, s.RunChecksOnNodes(ctx, []string{"h1"}))
	first := s.Cache().Get("h1").VTime
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.RunChecksOnNodes(ctx, []string{"h1"}))
	second := s.Cache().Get("h1").VTime
	assert.True(t, second.After(first))
}

func TestEventsPublished(t *testing.T) {
	ad := &recordingAdapter{level: model.TrustTrusted, auth: true}
	s, _ := newTestScheduler(t, ad, 10*time.Second)

	var mu sync.Mutex
	var events []Event
	s.SetPublisher(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	s.Tick(context.Background())

	mu.Lock()
	defer mu.Unlock()
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, "trust_change")
	assert.Contains(t, types, "check_result")
}
