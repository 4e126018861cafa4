//go:build consul

package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"trust-pool/pkg/model"
	"trust-pool/pkg/store"
)

// Store is a Consul KV-backed implementation of store.Store.
type Store struct {
	cli *consulapi.Client
}

const (
	checkPrefix  = "trust-pool/checks/"
	resultPrefix = "trust-pool/results/"
	nodePrefix   = "trust-pool/nodes/"
	auditPrefix  = "trust-pool/audit/"
	idKey        = "trust-pool/meta/next-id"
)

func NewStore(addr string) *Store {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, _ := consulapi.NewClient(cfg) // ignore error for build; runtime will report
	return &Store{cli: cli}
}

func (s *Store) ready() error {
	if s.cli == nil {
		return fmt.Errorf("%w: consul client not configured", store.ErrUnavailable)
	}
	return nil
}

func (s *Store) nextID() uint {
	kv, _, err := s.cli.KV().Get(idKey, nil)
	var v uint64
	if err == nil && kv != nil {
		_, _ = fmt.Sscanf(string(kv.Value), "%d", &v)
	}
	v++
	_, _ = s.cli.KV().Put(&consulapi.KVPair{Key: idKey, Value: []byte(fmt.Sprintf("%d", v))}, nil)
	return uint(v)
}

func (s *Store) CheckGet(name string) (model.Check, error) {
	if err := s.ready(); err != nil {
		return model.Check{}, err
	}
	kv, _, err := s.cli.KV().Get(checkPrefix+name, nil)
	if err != nil {
		return model.Check{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if kv == nil {
		return model.Check{}, store.ErrNotFound
	}
	var c model.Check
	if err := json.Unmarshal(kv.Value, &c); err != nil {
		return model.Check{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return c, nil
}

func (s *Store) CheckGetAll() ([]model.Check, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	pairs, _, err := s.cli.KV().List(checkPrefix, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	var out []model.Check
	for _, p := range pairs {
		var c model.Check
		if err := json.Unmarshal(p.Value, &c); err == nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CheckCreate(c model.Check) (model.Check, error) {
	if _, err := s.CheckGet(c.Name); err == nil {
		return model.Check{}, store.ErrConflict
	} else if err != store.ErrNotFound {
		return model.Check{}, err
	}
	now := time.Now()
	c.ID = s.nextID()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.putCheck(c); err != nil {
		return model.Check{}, err
	}
	return c, nil
}

func (s *Store) putCheck(c model.Check) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if _, err := s.cli.KV().Put(&consulapi.KVPair{Key: checkPrefix + c.Name, Value: b}, nil); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) CheckUpdate(name string, patch model.CheckPatch) (model.Check, error) {
	c, err := s.CheckGet(name)
	if err != nil {
		return model.Check{}, err
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
	if err := s.putCheck(c); err != nil {
		return model.Check{}, err
	}
	return c, nil
}

func (s *Store) CheckDelete(name string) error {
	if _, err := s.CheckGet(name); err != nil {
		return err
	}
	if _, err := s.cli.KV().Delete(checkPrefix+name, nil); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) ResultStore(r model.CheckResult) error {
	if err := s.ready(); err != nil {
		return err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	key := fmt.Sprintf("%s%020d-%s", resultPrefix, r.Timestamp.UnixNano(), r.Node)
	if _, err := s.cli.KV().Put(&consulapi.KVPair{Key: key, Value: b}, nil); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) ResultsGet(limit int) ([]model.CheckResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	pairs, _, err := s.cli.KV().List(resultPrefix, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	var out []model.CheckResult
	// Keys are zero-padded nanos, so List returns chronological order.
	for i := len(pairs) - 1; i >= 0; i-- {
		var r model.CheckResult
		if err := json.Unmarshal(pairs[i].Value, &r); err == nil {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) NodeUpsert(n model.Node) (model.Node, error) {
	if err := s.ready(); err != nil {
		return model.Node{}, err
	}
	now := time.Now()
	existing, _, err := s.cli.KV().Get(nodePrefix+n.Host, nil)
	if err != nil {
		return model.Node{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if existing != nil {
		var old model.Node
		if json.Unmarshal(existing.Value, &old) == nil {
			n.ID = old.ID
			n.CreatedAt = old.CreatedAt
		}
	} else {
		n.ID = s.nextID()
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	b, err := json.Marshal(n)
	if err != nil {
		return model.Node{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if _, err := s.cli.KV().Put(&consulapi.KVPair{Key: nodePrefix + n.Host, Value: b}, nil); err != nil {
		return model.Node{}, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return n, nil
}

func (s *Store) NodeGetAll() ([]model.Node, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	pairs, _, err := s.cli.KV().List(nodePrefix, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	var out []model.Node
	for _, p := range pairs {
		var n model.Node
		if err := json.Unmarshal(p.Value, &n); err == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Store) AppendAudit(e model.AuditEntry) error {
	if err := s.ready(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	key := fmt.Sprintf("%s%020d-%s", auditPrefix, e.Timestamp.UnixNano(), e.Target)
	if _, err := s.cli.KV().Put(&consulapi.KVPair{Key: key, Value: b}, nil); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) ListAudit(limit int) ([]model.AuditEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	pairs, _, err := s.cli.KV().List(auditPrefix, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	var out []model.AuditEntry
	for i := len(pairs) - 1; i >= 0; i-- {
		var e model.AuditEntry
		if err := json.Unmarshal(pairs[i].Value, &e); err == nil {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LeaderGuard runs cb while holding the named Consul lock, so only one
// controller instance drives the scheduling loop in an HA deployment.
func (s *Store) LeaderGuard(ctx context.Context, key string, retry time.Duration, cb func(context.Context)) {
	if s.cli == nil || cb == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		lock, err := s.cli.LockKey(key)
		if err != nil {
			time.Sleep(retry)
			continue
		}
		stopCh := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(stopCh)
		}()
		lostCh, err := lock.Lock(stopCh)
		if err != nil || lostCh == nil {
			time.Sleep(retry)
			continue
		}
		lctx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-lostCh:
			case <-ctx.Done():
			}
			cancel()
		}()
		cb(lctx)
		_ = lock.Unlock()
		cancel()
	}
}
