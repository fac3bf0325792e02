package main

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/tenantgate/pkg/isolation"
	"github.com/dmitrymomot/tenantgate/pkg/logger"
	"github.com/dmitrymomot/tenantgate/pkg/tenant"
	"github.com/dmitrymomot/tenantgate/pkg/trustedorigin"
)

const defaultViolationLimit = 50

// admin serves the operator endpoints. Routes are mounted behind
// tenant.RequireSuperAdmin.
type admin struct {
	resolver *tenant.Resolver
	registry *trustedorigin.Registry
	monitor  *isolation.Monitor
	log      *slog.Logger
}

func (a *admin) clearCache(w http.ResponseWriter, r *http.Request) {
	a.resolver.ClearCache(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *admin) invalidateDomain(w http.ResponseWriter, r *http.Request) {
	domain := tenant.NormalizeDomain(chi.URLParam(r, "domain"))
	if domain == "" {
		http.Error(w, "invalid domain", http.StatusBadRequest)
		return
	}
	a.resolver.InvalidateDomain(r.Context(), domain)
	w.WriteHeader(http.StatusNoContent)
}

type originsResponse struct {
	Source      trustedorigin.Source `json:"source"`
	GeneratedAt time.Time            `json:"generated_at"`
	ExtendedAt  *time.Time           `json:"extended_at,omitempty"`
	Origins     []string             `json:"origins"`
}

func (a *admin) origins(w http.ResponseWriter, _ *http.Request) {
	s := a.registry.Snapshot()
	if s == nil {
		respondJSON(w, http.StatusOK, originsResponse{Origins: []string{}})
		return
	}

	res := originsResponse{
		Source:      s.Source,
		GeneratedAt: s.GeneratedAt,
		Origins:     s.Origins(),
	}
	if !s.ExtendedAt.IsZero() {
		res.ExtendedAt = &s.ExtendedAt
	}
	respondJSON(w, http.StatusOK, res)
}

func (a *admin) refreshOrigins(w http.ResponseWriter, r *http.Request) {
	if err := a.registry.Refresh(r.Context()); err != nil {
		a.log.WarnContext(r.Context(), "forced origin refresh failed", logger.Error(err))
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	a.origins(w, r)
}

func (a *admin) isolationStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, a.monitor.Stats())
}

func (a *admin) recentViolations(w http.ResponseWriter, r *http.Request) {
	limit := defaultViolationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, a.monitor.Recent(limit))
}

func (a *admin) clearViolations(w http.ResponseWriter, r *http.Request) {
	a.monitor.Clear()
	a.log.InfoContext(r.Context(), "isolation violations cleared")
	w.WriteHeader(http.StatusNoContent)
}
