package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trust-pool/pkg/model"
)

// AttestationName is the baseline check backed by the remote attestation
// service. Its definition cannot be deleted through the catalog.
const AttestationName = "attestation"

// Attestation polls a remote attestation service for a node's trust level.
type Attestation struct {
	server string
	client *http.Client
}

// NewAttestationFactory builds attestation adapters against the given
// service base URL, e.g. http://oat.example:8443.
func NewAttestationFactory(server string) Factory {
	return func() (Adapter, error) {
		if server == "" {
			return nil, fmt.Errorf("attestation server not configured")
		}
		return &Attestation{
			server: server,
			client: &http.Client{Timeout: 30 * time.Second},
		}, nil
	}
}

func (a *Attestation) Name() string { return AttestationName }

type attestationReply struct {
	Host     string `json:"host"`
	TrustLvl string `json:"trustLvl"`
	VTime    string `json:"vtime,omitempty"`
}

// Evaluate asks the attestation service for the host's verdict. Anything
// other than a clean trusted/untrusted answer is reported non-authoritative
// so stale cached state is never overwritten by noise.
func (a *Attestation) Evaluate(ctx context.Context, host string) (model.TrustLevel, bool, error) {
	url := a.server + "/v1/hosts/" + host + "/trust"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.TrustUnknown, false, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return model.TrustUnknown, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.TrustUnknown, false, fmt.Errorf("attestation service returned %d for %s", resp.StatusCode, host)
	}
	var reply attestationReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return model.TrustUnknown, false, err
	}
	switch model.TrustLevel(reply.TrustLvl) {
	case model.TrustTrusted:
		return model.TrustTrusted, true, nil
	case model.TrustUntrusted:
		return model.TrustUntrusted, true, nil
	default:
		return model.TrustUnknown, false, nil
	}
}
