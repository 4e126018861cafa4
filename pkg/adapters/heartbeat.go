package adapters

import (
	"context"
	"net"
	"strconv"

	"trust-pool/pkg/model"
)

// HeartbeatName is the built-in reachability probe.
const HeartbeatName = "heartbeat"

// AddrResolver maps a node identifier to its registered probe address
// (host:port). An empty return means no address is on record.
type AddrResolver func(host string) string

// Heartbeat treats a node as untrusted when its agent port is unreachable.
// It is a coarse liveness signal, not a cryptographic attestation; a node
// that answers keeps whatever level the attestation check gave it, so the
// up-verdict is reported non-authoritative.
type Heartbeat struct {
	port    int
	resolve AddrResolver
}

// NewHeartbeatFactory builds heartbeat adapters. resolve supplies a node's
// registered probe address; when it yields nothing the probe falls back to
// dialing the node identifier on the default port.
func NewHeartbeatFactory(port int, resolve AddrResolver) Factory {
	return func() (Adapter, error) {
		if port <= 0 {
			port = 9411
		}
		return &Heartbeat{port: port, resolve: resolve}, nil
	}
}

func (h *Heartbeat) Name() string { return HeartbeatName }

func (h *Heartbeat) Evaluate(ctx context.Context, host string) (model.TrustLevel, bool, error) {
	addr := ""
	if h.resolve != nil {
		addr = h.resolve(host)
	}
	if addr == "" {
		addr = net.JoinHostPort(host, strconv.Itoa(h.port))
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		// Unreachable nodes drop out of the trusted pool.
		return model.TrustUntrusted, true, nil
	}
	_ = conn.Close()
	return model.TrustTrusted, false, nil
}
