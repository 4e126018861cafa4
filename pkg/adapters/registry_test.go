package adapters

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-pool/pkg/model"
)

type fakeAdapter struct{ name string }

func (f fakeAdapter) Name() string { return f.name }

func (f fakeAdapter) Evaluate(context.Context, string) (model.TrustLevel, bool, error) {
	return model.TrustTrusted, true, nil
}

func okFactory(name string) Factory {
	return func() (Adapter, error) { return fakeAdapter{name: name}, nil }
}

func TestRegisterTakesEffectOnRefresh(t *testing.T) {
	r := NewRegistry()
	r.Register("attestation", okFactory("attestation"))

	assert.Empty(t, r.Discover(), "registration is invisible before refresh")

	r.Refresh()
	ds := r.Discover()
	require.Len(t, ds, 1)
	assert.Equal(t, "attestation", ds[0].Name)
}

func TestDiscoverSortedByName(t *testing.T) {
	r := NewRegistry()
	r.Register("heartbeat", okFactory("heartbeat"))
	r.Register("attestation", okFactory("attestation"))
	r.Refresh()

	ds := r.Discover()
	require.Len(t, ds, 2)
	assert.Equal(t, "attestation", ds[0].Name)
	assert.Equal(t, "heartbeat", ds[1].Name)
}

func TestRefreshSkipsFailingFactory(t *testing.T) {
	r := NewRegistry()
	r.Register("attestation", okFactory("attestation"))
	r.Register("broken", func() (Adapter, error) { return nil, errors.New("no backend configured") })
	r.Refresh()

	ds := r.Discover()
	require.Len(t, ds, 1)
	assert.Equal(t, "attestation", ds[0].Name)

	_, err := r.Resolve("broken")
	assert.Error(t, err)
}

func TestDeregisterTakesEffectOnRefresh(t *testing.T) {
	r := NewRegistry()
	r.Register("attestation", okFactory("attestation"))
	r.Refresh()
	require.Len(t, r.Discover(), 1)

	r.Deregister("attestation")
	require.Len(t, r.Discover(), 1, "working set holds until refresh")

	r.Refresh()
	assert.Empty(t, r.Discover())
	_, err := r.Resolve("attestation")
	assert.Error(t, err)
}

func TestResolveReturnsFreshInstance(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("attestation", func() (Adapter, error) {
		calls++
		return fakeAdapter{name: "attestation"}, nil
	})
	r.Refresh() // probes the factory once

	_, err := r.Resolve("attestation")
	require.NoError(t, err)
	_, err = r.Resolve("attestation")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
