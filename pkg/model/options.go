package model

// CheckOptions are the scheduler-wide flags exposed to administrators.
type CheckOptions struct {
	PeriodicChecksEnabled bool `json:"periodicChecksEnabled"`
	TrustedPoolSaved      bool `json:"trustedPoolSaved"`
}
