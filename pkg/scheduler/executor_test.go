package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trust-pool/pkg/model"
)

type stubAdapter struct {
	name  string
	level model.TrustLevel
	auth  bool
	err   error
	delay time.Duration
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Evaluate(ctx context.Context, _ string) (model.TrustLevel, bool, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return model.TrustUnknown, false, ctx.Err()
		}
	}
	return s.level, s.auth, s.err
}

func TestExecuteAuthoritativeResult(t *testing.T) {
	ad := &stubAdapter{name: "stub", level: model.TrustTrusted, auth: true}
	out := Execute(context.Background(), ad, "h1", time.Second)
	assert.Equal(t, model.StatusOn, out.Status)
	assert.Equal(t, model.TrustTrusted, out.Level)
	assert.True(t, out.Authoritative)
}

func TestExecuteNonAuthoritativeResult(t *testing.T) {
	ad := &stubAdapter{name: "stub", level: model.TrustTrusted, auth: false}
	out := Execute(context.Background(), ad, "h1", time.Second)
	assert.Equal(t, model.StatusOff, out.Status)
	assert.False(t, out.Authoritative)
}

func TestExecuteAdapterError(t *testing.T) {
	ad := &stubAdapter{name: "stub", err: errors.New("backend down")}
	out := Execute(context.Background(), ad, "h1", time.Second)
	assert.Equal(t, model.StatusError, out.Status)
	assert.Equal(t, model.TrustUnknown, out.Level)
}

func TestExecuteTimeout(t *testing.T) {
	ad := &stubAdapter{name: "stub", level: model.TrustTrusted, auth: true, delay: time.Second}
	start := time.Now()
	out := Execute(context.Background(), ad, "h1", 50*time.Millisecond)
	assert.Equal(t, model.StatusTimeout, out.Status)
	assert.Equal(t, model.TrustUnknown, out.Level)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "caller must stop waiting at the deadline")
}

func TestExecuteZeroTimeoutWaits(t *testing.T) {
	ad := &stubAdapter{name: "stub", level: model.TrustUntrusted, auth: true, delay: 50 * time.Millisecond}
	out := Execute(context.Background(), ad, "h1", 0)
	assert.Equal(t, model.StatusOn, out.Status)
	assert.Equal(t, model.TrustUntrusted, out.Level)
}

func TestExecuteParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ad := &stubAdapter{name: "stub", delay: time.Second}
	out := Execute(ctx, ad, "h1", time.Minute)
	assert.Equal(t, model.StatusError, out.Status)
}
