package scheduler

import (
	"context"
	"errors"
	"time"

	"trust-pool/pkg/adapters"
	"trust-pool/pkg/model"
)

// Outcome is the bounded-time result of one adapter execution.
// Only an authoritative outcome (status "on") may update the trust cache.
type Outcome struct {
	Level         model.TrustLevel
	Authoritative bool
	Status        string
}

type evalReply struct {
	level model.TrustLevel
	auth  bool
	err   error
}

// Execute runs the adapter against one node in its own goroutine and waits
// at most timeout (0 = wait forever). On expiry the caller stops waiting and
// the in-flight evaluation is abandoned: its goroutine keeps running until
// the adapter honours ctx cancellation, and its late reply is discarded via
// the buffered channel. Adapters that ignore ctx therefore leak the
// goroutine for as long as their backend call takes.
func Execute(ctx context.Context, ad adapters.Adapter, host string, timeout time.Duration) Outcome {
	ectx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ch := make(chan evalReply, 1)
	go func() {
		level, auth, err := ad.Evaluate(ectx, host)
		ch <- evalReply{level: level, auth: auth, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return Outcome{Level: model.TrustUnknown, Status: model.StatusError}
		}
		status := model.StatusOff
		if r.auth {
			status = model.StatusOn
		}
		return Outcome{Level: r.level, Authoritative: r.auth, Status: status}
	case <-ectx.Done():
		if errors.Is(ectx.Err(), context.DeadlineExceeded) {
			return Outcome{Level: model.TrustUnknown, Status: model.StatusTimeout}
		}
		return Outcome{Level: model.TrustUnknown, Status: model.StatusError}
	}
}
