package scheduler

import (
	"errors"
	"strings"

	"trust-pool/pkg/adapters"
	"trust-pool/pkg/model"
	"trust-pool/pkg/store"
)

var (
	// ErrInvalid rejects a definition before any mutation happens.
	ErrInvalid = errors.New("invalid check definition")
	// ErrForbidden guards the baseline attestation check against deletion.
	ErrForbidden = errors.New("check is protected")
)

// Catalog is the durable set of check definitions. Every mutation is written
// through the store before any in-memory state changes, and create/delete
// refresh the adapter registry so the backing adapter is (un)available
// before the next tick.
type Catalog struct {
	st  store.Store
	reg *adapters.Registry
}

func NewCatalog(st store.Store, reg *adapters.Registry) *Catalog {
	return &Catalog{st: st, reg: reg}
}

func (c *Catalog) Get(name string) (model.Check, error) {
	return c.st.CheckGet(name)
}

func (c *Catalog) List() ([]model.Check, error) {
	return c.st.CheckGetAll()
}

func (c *Catalog) Create(def model.Check) (model.Check, error) {
	if strings.TrimSpace(def.Name) == "" || def.Spacing <= 0 || def.Timeout < 0 {
		return model.Check{}, ErrInvalid
	}
	saved, err := c.st.CheckCreate(def)
	if err != nil {
		return model.Check{}, err
	}
	c.reg.Refresh()
	return saved, nil
}

func (c *Catalog) Update(name string, patch model.CheckPatch) (model.Check, error) {
	if patch.Spacing != nil && *patch.Spacing <= 0 {
		return model.Check{}, ErrInvalid
	}
	if patch.Timeout != nil && *patch.Timeout < 0 {
		return model.Check{}, ErrInvalid
	}
	return c.st.CheckUpdate(name, patch)
}

func (c *Catalog) Delete(name string) error {
	if name == adapters.AttestationName {
		return ErrForbidden
	}
	if err := c.st.CheckDelete(name); err != nil {
		return err
	}
	c.reg.Deregister(name)
	c.reg.Refresh()
	return nil
}
