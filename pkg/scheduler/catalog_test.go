package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trust-pool/pkg/adapters"
	"trust-pool/pkg/model"
	"trust-pool/pkg/store"
)

func newTestCatalog(t *testing.T) (*Catalog, *adapters.Registry, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	reg := adapters.NewRegistry()
	reg.Register(adapters.AttestationName, func() (adapters.Adapter, error) {
		return &stubAdapter{name: adapters.AttestationName, level: model.TrustTrusted, auth: true}, nil
	})
	reg.Refresh()
	return NewCatalog(st, reg), reg, st
}

func TestCatalogCreateValidation(t *testing.T) {
	cat, _, st := newTestCatalog(t)

	tests := []struct {
		name  string
		check model.Check
	}{
		{"empty name", model.Check{Name: "", Spacing: 60}},
		{"zero spacing", model.Check{Name: "x", Spacing: 0}},
		{"negative spacing", model.Check{Name: "x", Spacing: -5}},
		{"negative timeout", model.Check{Name: "x", Spacing: 60, Timeout: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := cat.Create(tc.check)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	// Nothing persisted on rejection.
	all, err := st.CheckGetAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCatalogCreateConflict(t *testing.T) {
	cat, _, _ := newTestCatalog(t)
	_, err := cat.Create(model.Check{Name: "ima", Spacing: 60, Timeout: 10})
	require.NoError(t, err)
	_, err = cat.Create(model.Check{Name: "ima", Spacing: 30})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestCatalogUpdate(t *testing.T) {
	cat, _, _ := newTestCatalog(t)
	_, err := cat.Create(model.Check{Name: "ima", Spacing: 60, Timeout: 10})
	require.NoError(t, err)

	spacing := 120
	saved, err := cat.Update("ima", model.CheckPatch{Spacing: &spacing})
	require.NoError(t, err)
	assert.Equal(t, 120, saved.Spacing)
	assert.Equal(t, 10, saved.Timeout)

	bad := 0
	_, err = cat.Update("ima", model.CheckPatch{Spacing: &bad})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = cat.Update("missing", model.CheckPatch{Spacing: &spacing})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCatalogDeleteProtectedCheck(t *testing.T) {
	cat, _, st := newTestCatalog(t)
	_, err := st.CheckCreate(model.Check{Name: adapters.AttestationName, Spacing: 60})
	require.NoError(t, err)

	err = cat.Delete(adapters.AttestationName)
	assert.ErrorIs(t, err, ErrForbidden)

	// Still present.
	_, err = cat.Get(adapters.AttestationName)
	assert.NoError(t, err)
}

func TestCatalogDelete(t *testing.T) {
	cat, reg, _ := newTestCatalog(t)
	reg.Register("extra", func() (adapters.Adapter, error) {
		return &stubAdapter{name: "extra"}, nil
	})
	reg.Refresh()
	_, err := cat.Create(model.Check{Name: "extra", Spacing: 60})
	require.NoError(t, err)

	require.NoError(t, cat.Delete("extra"))
	_, err = cat.Get("extra")
	assert.ErrorIs(t, err, store.ErrNotFound)
	// Backing adapter gone from the working set too.
	_, err = reg.Resolve("extra")
	assert.Error(t, err)

	assert.ErrorIs(t, cat.Delete("extra"), store.ErrNotFound)
}
