package store

import (
	"sort"
	"sync"
	"time"

	"trust-pool/pkg/model"
)

// Keep a bounded tail of results in memory; older records are dropped.
const maxResults = 1000

// MemoryStore is a simple in-memory implementation, intended for dev/demo.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  uint
	checks  map[string]model.Check
	results []model.CheckResult
	nodes   map[string]model.Node
	audit   []model.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checks: make(map[string]model.Check),
		nodes:  make(map[string]model.Node),
	}
}

func (m *MemoryStore) CheckGet(name string) (model.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checks[name]
	if !ok {
		return model.Check{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) CheckGetAll() ([]model.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Check, 0, len(m.checks))
	for _, c := range m.checks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) CheckCreate(c model.Check) (model.Check, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checks[c.Name]; ok {
		return model.Check{}, ErrConflict
	}
	m.nextID++
	c.ID = m.nextID
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	m.checks[c.Name] = c
	return c, nil
}

func (m *MemoryStore) CheckUpdate(name string, patch model.CheckPatch) (model.Check, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.checks[name]
	if !ok {
		return model.Check{}, ErrNotFound
	}
	if patch.Desc != nil {
		c.Desc = *patch.Desc
	}
	if patch.Spacing != nil {
		c.Spacing = *patch.Spacing
	}
	if patch.Timeout != nil {
		c.Timeout = *patch.Timeout
	}
	c.UpdatedAt = time.Now()
	m.checks[name] = c
	return c, nil
}

func (m *MemoryStore) CheckDelete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checks[name]; !ok {
		return ErrNotFound
	}
	delete(m.checks, name)
	return nil
}

func (m *MemoryStore) ResultStore(r model.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	m.results = append(m.results, r)
	if len(m.results) > maxResults {
		m.results = m.results[len(m.results)-maxResults:]
	}
	return nil
}

// ResultsGet returns the most recent records, newest first, matching the
// ordering of the relational backends.
func (m *MemoryStore) ResultsGet(limit int) ([]model.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.results) {
		limit = len(m.results)
	}
	out := make([]model.CheckResult, 0, limit)
	for i := len(m.results) - 1; i >= len(m.results)-limit; i-- {
		out = append(out, m.results[i])
	}
	return out, nil
}

func (m *MemoryStore) NodeUpsert(n model.Node) (model.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if existing, ok := m.nodes[n.Host]; ok {
		n.ID = existing.ID
		n.CreatedAt = existing.CreatedAt
	} else {
		m.nextID++
		n.ID = m.nextID
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	m.nodes[n.Host] = n
	return n, nil
}

func (m *MemoryStore) NodeGetAll() ([]model.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out, nil
}

func (m *MemoryStore) AppendAudit(e model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.audit = append(m.audit, e)
	return nil
}

// ListAudit returns the most recent entries, newest first.
func (m *MemoryStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.audit) {
		limit = len(m.audit)
	}
	out := make([]model.AuditEntry, 0, limit)
	for i := len(m.audit) - 1; i >= len(m.audit)-limit; i-- {
		out = append(out, m.audit[i])
	}
	return out, nil
}
