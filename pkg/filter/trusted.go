package filter

import (
	"trust-pool/pkg/model"
)

// Pool is the trust snapshot source, satisfied by scheduler.TrustCache.
type Pool interface {
	Snapshot() map[string]model.NodeTrust
}

// TrustedFilter excludes nodes outside the trusted pool from placement.
// A node that has never been evaluated is "unknown" and does not pass.
type TrustedFilter struct {
	pool Pool
}

func NewTrustedFilter(pool Pool) *TrustedFilter {
	return &TrustedFilter{pool: pool}
}

// HostPasses reports whether a single host is currently trusted.
func (f *TrustedFilter) HostPasses(host string) bool {
	snap := f.pool.Snapshot()
	t, ok := snap[host]
	return ok && t.Level == model.TrustTrusted
}

// FilterHosts returns the subset of candidates in the trusted pool, using a
// single snapshot so the decision is consistent across the whole candidate
// list.
func (f *TrustedFilter) FilterHosts(candidates []string) []string {
	snap := f.pool.Snapshot()
	out := make([]string, 0, len(candidates))
	for _, h := range candidates {
		if t, ok := snap[h]; ok && t.Level == model.TrustTrusted {
			out = append(out, h)
		}
	}
	return out
}
