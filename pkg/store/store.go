package store

import (
	"errors"

	"trust-pool/pkg/model"
)

// Sentinel errors surfaced by every Store implementation.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("already exists")
	ErrUnavailable = errors.New("storage unavailable")
)

// Store defines the persistence layer for check definitions, execution
// results and the node roster. Backends: memory (dev/demo), MySQL via gorm,
// sqlite, Consul KV (build tag consul).
type Store interface {
	CheckGet(name string) (model.Check, error)
	CheckGetAll() ([]model.Check, error)
	CheckCreate(c model.Check) (model.Check, error)
	CheckUpdate(name string, patch model.CheckPatch) (model.Check, error)
	CheckDelete(name string) error

	ResultStore(r model.CheckResult) error
	ResultsGet(limit int) ([]model.CheckResult, error)

	NodeUpsert(n model.Node) (model.Node, error)
	NodeGetAll() ([]model.Node, error)

	AppendAudit(e model.AuditEntry) error
	ListAudit(limit int) ([]model.AuditEntry, error)
}

// NewMemory is a helper to construct the in-memory implementation without
// importing it directly.
func NewMemory() Store {
	return NewMemoryStore()
}
