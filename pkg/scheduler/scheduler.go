package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"trust-pool/pkg/adapters"
	"trust-pool/pkg/model"
	"trust-pool/pkg/store"
)

// Defaults for check definitions auto-created from discovered adapters.
const (
	defaultSpacing = 60
	defaultTimeout = 10
)

// Event is published after each execution and on trust-level transitions.
type Event struct {
	Type    string      `json:"type"` // check_result / trust_change
	Node    string      `json:"node,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Scheduler owns the periodic attestation loop and the shared state around
// it: the check catalog, the adapter registry and the trust cache. It is
// constructed once by the composition root and handed to the API layer.
type Scheduler struct {
	st      store.Store
	reg     *adapters.Registry
	catalog *Catalog
	cache   *TrustCache
	tick    time.Duration

	mu               sync.Mutex
	periodicEnabled  bool
	trustedPoolSaved bool
	publish          func(Event)

	// elapsed counters are touched only by the loop goroutine (Tick).
	elapsed map[string]time.Duration
}

// New builds a scheduler: refreshes the registry, seeds the trust cache from
// the node roster and makes sure every discovered adapter has a check
// definition on record.
func New(st store.Store, reg *adapters.Registry, tick time.Duration) (*Scheduler, error) {
	if tick <= 0 {
		tick = 10 * time.Second
	}
	s := &Scheduler{
		st:              st,
		reg:             reg,
		cache:           NewTrustCache(),
		tick:            tick,
		periodicEnabled: true,
		elapsed:         make(map[string]time.Duration),
	}
	s.catalog = NewCatalog(st, reg)
	reg.Refresh()

	nodes, err := st.NodeGetAll()
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		s.cache.Seed(n.Host)
	}
	s.ensureChecks()
	return s, nil
}

// ensureChecks creates a definition for every discovered adapter missing one.
func (s *Scheduler) ensureChecks() {
	for _, d := range s.reg.Discover() {
		if _, err := s.st.CheckGet(d.Name); err == nil {
			continue
		}
		_, err := s.st.CheckCreate(model.Check{
			Name:    d.Name,
			Desc:    d.Name + " adapter",
			Spacing: defaultSpacing,
			Timeout: defaultTimeout,
		})
		if err != nil {
			log.Printf("seed check %s failed: %v", d.Name, err)
		}
	}
}

func (s *Scheduler) Catalog() *Catalog  { return s.catalog }
func (s *Scheduler) Cache() *TrustCache { return s.cache }

// SetPublisher installs a sink for execution events (e.g. the websocket hub).
func (s *Scheduler) SetPublisher(fn func(Event)) {
	s.mu.Lock()
	s.publish = fn
	s.mu.Unlock()
}

func (s *Scheduler) emit(e Event) {
	s.mu.Lock()
	fn := s.publish
	s.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func (s *Scheduler) PeriodicEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.periodicEnabled
}

func (s *Scheduler) SetPeriodicEnabled(v bool) {
	s.mu.Lock()
	s.periodicEnabled = v
	s.mu.Unlock()
	log.Printf("periodic checks enabled=%v", v)
}

func (s *Scheduler) TrustedPoolSaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trustedPoolSaved
}

func (s *Scheduler) SetTrustedPoolSaved(v bool) {
	s.mu.Lock()
	s.trustedPoolSaved = v
	s.mu.Unlock()
	log.Printf("trusted pool saved=%v", v)
}

// Options returns both administrative flags as one snapshot.
func (s *Scheduler) Options() model.CheckOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CheckOptions{
		PeriodicChecksEnabled: s.periodicEnabled,
		TrustedPoolSaved:      s.trustedPoolSaved,
	}
}

// RegisterNode persists a node and seeds its trust cache entry.
func (s *Scheduler) RegisterNode(n model.Node) (model.Node, error) {
	saved, err := s.st.NodeUpsert(n)
	if err != nil {
		return model.Node{}, err
	}
	s.cache.Seed(saved.Host)
	return saved, nil
}

// TrustedPool returns the current per-node verdict snapshot.
func (s *Scheduler) TrustedPool() map[string]model.NodeTrust {
	return s.cache.Snapshot()
}

// Start runs the loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		log.Printf("scheduling loop started, tick=%s", s.tick)
		for {
			select {
			case <-ctx.Done():
				log.Printf("scheduling loop stopped")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Tick advances every check's elapsed counter by one tick and dispatches the
// due ones against all known nodes. Decision-making is single-threaded; only
// the dispatched executions run concurrently. A check first seen by the loop
// starts due so a new definition runs without waiting a full spacing.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.PeriodicEnabled() {
		return
	}
	checks, err := s.catalog.List()
	if err != nil {
		log.Printf("tick skipped, catalog unavailable: %v", err)
		return
	}
	hosts := s.cache.Hosts()

	var wg sync.WaitGroup
	seen := make(map[string]bool, len(checks))
	for _, check := range checks {
		seen[check.Name] = true
		spacing := time.Duration(check.Spacing) * time.Second
		e, ok := s.elapsed[check.Name]
		if !ok {
			e = spacing
		} else {
			e += s.tick
		}
		if e >= spacing {
			e = 0
			for _, host := range hosts {
				wg.Add(1)
				go func(c model.Check, h string) {
					defer wg.Done()
					s.runOne(ctx, c, h)
				}(check, host)
			}
		}
		s.elapsed[check.Name] = e
	}
	for name := range s.elapsed {
		if !seen[name] {
			delete(s.elapsed, name)
		}
	}
	wg.Wait()
}

// RunChecksOnNodes executes every check against the given nodes immediately,
// bypassing the enabled flag and the spacing gate. Used to re-admit a node
// that was previously evicted from the trusted pool.
func (s *Scheduler) RunChecksOnNodes(ctx context.Context, hosts []string) error {
	checks, err := s.catalog.List()
	if err != nil {
		return err
	}
	var wg sync.WaitGroup
	for _, host := range hosts {
		s.cache.Seed(host)
		for _, check := range checks {
			wg.Add(1)
			go func(c model.Check, h string) {
				defer wg.Done()
				s.runOne(ctx, c, h)
			}(check, host)
		}
	}
	wg.Wait()
	return nil
}

// runOne executes a single (check, node) pair, updates the cache on an
// authoritative result and appends the result record. Failures never
// propagate; the loop is self-healing.
func (s *Scheduler) runOne(ctx context.Context, check model.Check, host string) {
	var out Outcome
	ad, err := s.reg.Resolve(check.Name)
	if err != nil {
		log.Printf("check %s on %s: %v", check.Name, host, err)
		out = Outcome{Level: model.TrustUnknown, Status: model.StatusError}
	} else {
		out = Execute(ctx, ad, host, time.Duration(check.Timeout)*time.Second)
	}
	now := time.Now()

	if out.Status == model.StatusOn {
		if rec, prev, applied := s.cache.Update(host, out.Level, now); applied && prev != rec.Level {
			s.emit(Event{Type: "trust_change", Node: host, Payload: rec})
		}
	}

	result := model.CheckResult{
		ID:        uuid.NewString(),
		CheckID:   check.ID,
		CheckName: check.Name,
		Node:      host,
		Result:    out.Level,
		Status:    out.Status,
		Timestamp: now,
	}
	if err := s.st.ResultStore(result); err != nil {
		// An in-memory trust update without a durable record is tolerated.
		log.Printf("store result %s/%s failed: %v", check.Name, host, err)
	}
	s.emit(Event{Type: "check_result", Node: host, Payload: result})
}
