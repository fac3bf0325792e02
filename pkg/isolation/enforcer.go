package isolation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantgate/pkg/clientip"
	"github.com/dmitrymomot/tenantgate/pkg/logger"
	"github.com/dmitrymomot/tenantgate/pkg/requestid"
	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

// Reference is a tenant identifier the caller extracted from a request,
// along with where it was found. An empty TenantID means the operation is
// implicitly scoped to the resolved tenant.
type Reference struct {
	TenantID string
	Field    Field
	// Write marks operations that mutate data.
	Write bool
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed   bool
	Err       error
	Violation *Violation
}

// Enforcer compares the tenant a request was resolved to with the tenant an
// operation references. Every denial is recorded to the monitor before
// Authorize returns.
type Enforcer struct {
	monitor *Monitor
	clock   clock.Clock
	logger  *slog.Logger
}

// EnforcerOption configures an Enforcer.
type EnforcerOption func(*Enforcer)

// WithEnforcerClock replaces the wall clock used for violation timestamps.
func WithEnforcerClock(c clock.Clock) EnforcerOption {
	return func(e *Enforcer) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithEnforcerLogger sets the enforcer logger.
func WithEnforcerLogger(l *slog.Logger) EnforcerOption {
	return func(e *Enforcer) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEnforcer creates an enforcer that reports to monitor.
func NewEnforcer(monitor *Monitor, opts ...EnforcerOption) *Enforcer {
	if monitor == nil {
		panic("isolation: monitor cannot be nil")
	}

	e := &Enforcer{
		monitor: monitor,
		clock:   clock.New(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logger.Component("isolation.enforcer"))

	return e
}

// Authorize decides whether an operation referencing ref may run under rc.
//
// Super-admins are always allowed. A context without a tenant is always
// denied. Otherwise an absent reference is allowed and a reference to any
// other tenant is denied.
func (e *Enforcer) Authorize(ctx context.Context, rc tenant.ResolutionContext, ref Reference) Decision {
	switch {
	case rc.IsSuperAdmin:
		return Decision{Allowed: true}
	case !rc.HasTenant():
		return e.deny(ctx, ErrUnresolvedContext, Violation{
			AttemptedTenantID: strings.TrimSpace(ref.TenantID),
			Field:             ref.Field,
			Severity:          SeverityCritical,
			Reason:            ReasonUnresolved,
		})
	}

	attempted := strings.TrimSpace(ref.TenantID)
	if attempted == "" || sameTenant(attempted, rc.TenantID) {
		return Decision{Allowed: true}
	}

	return e.deny(ctx, ErrCrossTenantAccess, Violation{
		AttemptedTenantID: attempted,
		ActualTenantID:    rc.TenantID.String(),
		Field:             ref.Field,
		Severity:          severity(ref),
		Reason:            ReasonCrossTenant,
	})
}

// AuthorizeContext is Authorize with the resolution attached to ctx.
func (e *Enforcer) AuthorizeContext(ctx context.Context, ref Reference) Decision {
	rc, _ := tenant.FromContext(ctx)
	return e.Authorize(ctx, rc, ref)
}

// Check is AuthorizeContext reduced to an error for data-access code.
func (e *Enforcer) Check(ctx context.Context, ref Reference) error {
	return e.AuthorizeContext(ctx, ref).Err
}

func (e *Enforcer) deny(ctx context.Context, err error, v Violation) Decision {
	v.ID = uuid.New()
	v.RequestID = requestid.FromContext(ctx)
	v.ClientIP = clientip.FromContext(ctx)
	v.Timestamp = e.clock.Now()

	e.monitor.Record(ctx, v)
	return Decision{Err: err, Violation: &v}
}

func sameTenant(ref string, id uuid.UUID) bool {
	parsed, err := uuid.Parse(ref)
	return err == nil && parsed == id
}

// severity grades a cross-tenant reference: anything that can mutate data is
// critical, path references are high and query references medium.
func severity(ref Reference) Severity {
	switch {
	case ref.Write, ref.Field == FieldBody:
		return SeverityCritical
	case ref.Field == FieldPath:
		return SeverityHigh
	case ref.Field == FieldQuery:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// IsViolation reports whether err is an isolation denial.
func IsViolation(err error) bool {
	return errors.Is(err, ErrCrossTenantAccess) || errors.Is(err, ErrUnresolvedContext)
}
