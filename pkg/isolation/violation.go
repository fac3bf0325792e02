package isolation

import (
	"time"

	"github.com/google/uuid"
)

// Field names where a tenant reference was found.
type Field string

const (
	FieldPath  Field = "path"
	FieldQuery Field = "query"
	FieldBody  Field = "body"
)

// Severity grades a violation for alerting.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Reasons recorded with a violation.
const (
	ReasonCrossTenant = "cross_tenant_access"
	ReasonUnresolved  = "unresolved_context"
)

// Violation is an immutable record of a denied operation.
type Violation struct {
	ID                uuid.UUID `json:"id"`
	RequestID         string    `json:"request_id,omitempty"`
	ClientIP          string    `json:"client_ip,omitempty"`
	AttemptedTenantID string    `json:"attempted_tenant_id,omitempty"`
	ActualTenantID    string    `json:"actual_tenant_id,omitempty"`
	Field             Field     `json:"field"`
	Severity          Severity  `json:"severity"`
	Reason            string    `json:"reason"`
	Timestamp         time.Time `json:"timestamp"`
}
