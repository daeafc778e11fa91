package domain

import "time"

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// DependencyStatus is the outcome of probing one dependency.
type DependencyStatus struct {
	Status    string        `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Latency   time.Duration `json:"latencyNs"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// HealthReport aggregates dependency probes for /readyz.
type HealthReport struct {
	Status      string                      `json:"status"`
	Version     string                      `json:"version,omitempty"`
	CommitSHA   string                      `json:"commitSha,omitempty"`
	Environment string                      `json:"environment,omitempty"`
	Uptime      time.Duration               `json:"uptimeNs"`
	Checks      map[string]DependencyStatus `json:"checks"`
	GeneratedAt time.Time                   `json:"generatedAt"`
}
