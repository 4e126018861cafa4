package adapters

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-pool/pkg/model"
)

func attestationServer(t *testing.T, handler http.HandlerFunc) Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ad, err := NewAttestationFactory(srv.URL)()
	require.NoError(t, err)
	return ad
}

func TestAttestationTrusted(t *testing.T) {
	ad := attestationServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/hosts/h1/trust", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"host":"h1","trustLvl":"trusted"}`))
	})

	level, auth, err := ad.Evaluate(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, model.TrustTrusted, level)
	assert.True(t, auth)
}

func TestAttestationUntrusted(t *testing.T) {
	ad := attestationServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"host":"h1","trustLvl":"untrusted"}`))
	})

	level, auth, err := ad.Evaluate(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, model.TrustUntrusted, level)
	assert.True(t, auth)
}

func TestAttestationUnknownVerdictIsNotAuthoritative(t *testing.T) {
	ad := attestationServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"host":"h1","trustLvl":"unknown"}`))
	})

	level, auth, err := ad.Evaluate(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, model.TrustUnknown, level)
	assert.False(t, auth)
}

func TestAttestationServerError(t *testing.T) {
	ad := attestationServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	level, auth, err := ad.Evaluate(context.Background(), "h1")
	assert.Error(t, err)
	assert.Equal(t, model.TrustUnknown, level)
	assert.False(t, auth)
}

func TestAttestationRequiresServer(t *testing.T) {
	_, err := NewAttestationFactory("")()
	assert.Error(t, err)
}

// heartbeatListener accepts and closes probe connections on a loopback port.
func heartbeatListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestHeartbeatReachable(t *testing.T) {
	ln := heartbeatListener(t)
	port := ln.Addr().(*net.TCPAddr).Port
	ad, err := NewHeartbeatFactory(port, nil)()
	require.NoError(t, err)

	level, auth, err := ad.Evaluate(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, model.TrustTrusted, level)
	assert.False(t, auth, "liveness alone must not promote trust")
}

func TestHeartbeatUnreachable(t *testing.T) {
	ad, err := NewHeartbeatFactory(freePort(t), nil)()
	require.NoError(t, err)

	level, auth, err := ad.Evaluate(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, model.TrustUntrusted, level)
	assert.True(t, auth)
}

func TestHeartbeatPrefersRegisteredAddr(t *testing.T) {
	ln := heartbeatListener(t)

	// Default port has no listener; only the registered address answers.
	resolve := func(host string) string {
		if host == "node-1" {
			return ln.Addr().String()
		}
		return ""
	}
	ad, err := NewHeartbeatFactory(freePort(t), resolve)()
	require.NoError(t, err)

	level, _, err := ad.Evaluate(context.Background(), "node-1")
	require.NoError(t, err)
	assert.Equal(t, model.TrustTrusted, level)

	// A node without a registered address falls back to host:port.
	level, _, err = ad.Evaluate(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, model.TrustUntrusted, level)
}
