package model

import "time"

// TrustLevel is the attestation verdict for a node.
type TrustLevel string

const (
	TrustUnknown   TrustLevel = "unknown"
	TrustTrusted   TrustLevel = "trusted"
	TrustUntrusted TrustLevel = "untrusted"
)

// Check result statuses. "on" means the adapter answered authoritatively,
// "off" means it answered but the verdict must not overwrite cached state.
const (
	StatusOn      = "on"
	StatusOff     = "off"
	StatusTimeout = "timeout"
	StatusError   = "error"
)

// Check is a periodic attestation check definition. Name doubles as the
// adapter lookup key.
type Check struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:64" json:"name"`
	Desc      string    `gorm:"size:255" json:"desc"`
	Spacing   int       `json:"spacing"` // seconds between runs, must be > 0
	Timeout   int       `json:"timeout"` // seconds, 0 = wait forever
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CheckPatch carries partial updates for a check; nil fields are untouched.
type CheckPatch struct {
	Desc    *string `json:"desc,omitempty"`
	Spacing *int    `json:"spacing,omitempty"`
	Timeout *int    `json:"timeout,omitempty"`
}

// CheckResult is one append-only execution record for a (check, node) pair.
type CheckResult struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	CheckID   uint       `json:"checkId"`
	CheckName string     `gorm:"index;size:64" json:"checkName"`
	Node      string     `gorm:"index;size:128" json:"node"`
	Result    TrustLevel `gorm:"size:16" json:"result"`
	Status    string     `gorm:"size:16" json:"status"` // on/off/timeout/error
	Timestamp time.Time  `json:"timestamp"`
}

// NodeTrust is the cached verdict for one node.
type NodeTrust struct {
	Node  string     `json:"node"`
	Level TrustLevel `json:"trustLvl"`
	VTime time.Time  `json:"vtime"`
}
