package scheduler

import (
	"sort"
	"sync"
	"time"

	"trust-pool/pkg/model"
)

// Verdict timestamps start at the epoch so any real result wins.
var epoch = time.Unix(0, 0).UTC()

// TrustCache holds the last-known trust verdict per node. Updates are
// last-writer-wins by verdict timestamp, applied atomically per node.
// Entries are never removed; decommissioning a node is an external event.
type TrustCache struct {
	mu    sync.RWMutex
	nodes map[string]model.NodeTrust
}

func NewTrustCache() *TrustCache {
	return &TrustCache{nodes: make(map[string]model.NodeTrust)}
}

// Seed creates an unknown/epoch entry for a node if it has not been seen.
func (c *TrustCache) Seed(host string) {
	c.mu.Lock()
	if _, ok := c.nodes[host]; !ok {
		c.nodes[host] = model.NodeTrust{Node: host, Level: model.TrustUnknown, VTime: epoch}
	}
	c.mu.Unlock()
}

// Get returns the node's record, defaulting to unknown/epoch for unseen nodes.
func (c *TrustCache) Get(host string) model.NodeTrust {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.nodes[host]; ok {
		return t
	}
	return model.NodeTrust{Node: host, Level: model.TrustUnknown, VTime: epoch}
}

// Snapshot returns a point-in-time copy of the whole cache.
func (c *TrustCache) Snapshot() map[string]model.NodeTrust {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]model.NodeTrust, len(c.nodes))
	for k, v := range c.nodes {
		out[k] = v
	}
	return out
}

// Hosts returns the known node set, sorted for stable iteration.
func (c *TrustCache) Hosts() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.nodes))
	for k := range c.nodes {
		out = append(out, k)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Update applies a verdict unless a newer one is already recorded. It
// returns the stored record, the level it replaced and whether the verdict
// was applied, all from the same critical section, so a caller can detect a
// transition without racing other writers.
func (c *TrustCache) Update(host string, level model.TrustLevel, when time.Time) (model.NodeTrust, model.TrustLevel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := model.TrustUnknown
	if cur, ok := c.nodes[host]; ok {
		prev = cur.Level
		if cur.VTime.After(when) {
			return cur, prev, false
		}
	}
	rec := model.NodeTrust{Node: host, Level: level, VTime: when}
	c.nodes[host] = rec
	return rec, prev, true
}
