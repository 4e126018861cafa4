package api

import "trust-pool/pkg/model"

// NodeRegistrationRequest is sent by agents during bootstrap.
type NodeRegistrationRequest struct {
	Host string `json:"host"`
	Addr string `json:"addr,omitempty"` // host:port for probe adapters
	Desc string `json:"desc,omitempty"`
}

// NodeRegistrationResponse echoes the stored node and its trust entry.
type NodeRegistrationResponse struct {
	Node  model.Node      `json:"node"`
	Trust model.NodeTrust `json:"trust"`
}

// RunChecksRequest asks for an immediate run against specific nodes.
type RunChecksRequest struct {
	Targets []string `json:"targets"`
}

// CheckOptionRequest toggles one scheduler-wide flag.
type CheckOptionRequest struct {
	Name  string `json:"name"` // periodic_checks_enabled / trusted_pool_saved
	Value bool   `json:"value"`
}
