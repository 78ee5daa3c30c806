package model

import (
	"time"
)

// Severity is the normalized severity of a log entry.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// NormalizeSeverity maps ingestion-time aliases onto the canonical set.
// Unknown values degrade to info rather than failing.
func NormalizeSeverity(s string) Severity {
	switch s {
	case "critical", "high":
		return SeverityCritical
	case "warning", "medium", "content":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Kind classifies the origin of a log entry.
type Kind string

const (
	KindRuntime          Kind = "runtime"
	KindPromiseRejection Kind = "promise-rejection"
	KindContent          Kind = "content"
	KindSecurity         Kind = "security"
)

// HealthState is the three-level derived health indicator.
type HealthState string

const (
	HealthGreen  HealthState = "green"
	HealthYellow HealthState = "yellow"
	HealthRed    HealthState = "red"
)

// LogEntry is one classified fault observation.
type LogEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Stack     string            `json:"stack,omitempty"`
	Component string            `json:"component,omitempty"`
	Severity  Severity          `json:"severity"`
	Kind      Kind              `json:"kind"`
	Resolved  bool              `json:"resolved"`
	Context   map[string]string `json:"context,omitempty"`
}

// Intervention is one automated remediation or security event, append-only.
type Intervention struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// MtdState is the security-rotation state owned by the MTD scheduler.
type MtdState struct {
	SessionNonce  string    `json:"session_nonce"`
	RotationCount int       `json:"rotation_count"`
	LastRotation  time.Time `json:"last_rotation"`
}

// AuditRecord is the outbound row schema for the remote audit store.
type AuditRecord struct {
	ID         string                 `json:"id"`
	ActorID    string                 `json:"actor_id,omitempty"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Severity   Severity               `json:"severity"`
	Source     string                 `json:"source"`
	CreatedAt  time.Time              `json:"created_at"`
}

// EntityTypeSecurityIntervention filters audit rows belonging to this subsystem.
const EntityTypeSecurityIntervention = "security_intervention"

// ToIntervention converts a remote audit row into the local cache shape.
func (r AuditRecord) ToIntervention() Intervention {
	return Intervention{
		ID:        r.ID,
		Timestamp: r.CreatedAt,
		Type:      r.Action,
		Message:   stringMeta(r.Metadata, "message"),
		Details:   r.Metadata,
	}
}

func stringMeta(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
