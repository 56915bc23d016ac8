// Package httpapi is the HTTP surface over the compliance kernel. Handlers
// authenticate via bearer tokens, run the access guards, and translate domain
// sentinels to status codes.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"corevault.org/internal/access"
	"corevault.org/internal/audit"
	"corevault.org/internal/document"
	"corevault.org/internal/entity"
	"corevault.org/internal/identity"
	"corevault.org/internal/obs"
	"corevault.org/internal/report"
	"corevault.org/internal/workflow"
)

// ReadyProbe reports dependency readiness, currently a DB ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the services the API dispatches into.
type Deps struct {
	Identity  *identity.Service
	Tokens    *identity.TokenService
	Documents *document.Service
	Workflows *workflow.Service
	Trail     audit.Recorder
	Views     audit.ViewLedger
	Reports   *report.Service
	Registry  *entity.Registry
}

// Limits bound request intake.
type Limits struct {
	RatePerSecond float64
	RateBurst     int
	MaxBodyBytes  int64
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	deps       Deps
	limits     Limits
	readyProbe ReadyProbe
	version    string
}

func New(deps Deps, limits Limits, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		deps:       deps,
		limits:     limits,
		readyProbe: rp,
		version:    version,
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// authn
	a.mux.HandleFunc("POST /v1/auth/token", a.IssueToken)
	a.mux.HandleFunc("GET /v1/me", a.Me)

	// organisations and identities
	a.mux.HandleFunc("POST /v1/organisations", a.CreateOrganisation)
	a.mux.HandleFunc("GET /v1/organisations", a.ListOrganisations)
	a.mux.HandleFunc("GET /v1/organisations/{id}", a.GetOrganisation)
	a.mux.HandleFunc("GET /v1/organisations/{id}/profiles", a.ListOrganisationProfiles)
	a.mux.HandleFunc("POST /v1/identities", a.CreateIdentity)
	a.mux.HandleFunc("GET /v1/identities/{id}", a.GetIdentity)
	a.mux.HandleFunc("PATCH /v1/identities/{id}", a.UpdateIdentity)

	// documents
	a.mux.HandleFunc("POST /v1/documents", a.UploadDocument)
	a.mux.HandleFunc("GET /v1/documents", a.ListDocuments)
	a.mux.HandleFunc("GET /v1/documents/{id}", a.GetDocument)
	a.mux.HandleFunc("GET /v1/documents/{id}/download", a.DownloadDocument)
	a.mux.HandleFunc("GET /v1/documents/{id}/views", a.ListDocumentViews)
	a.mux.HandleFunc("DELETE /v1/documents/{id}", a.DeleteDocument)

	// workflows
	a.mux.HandleFunc("POST /v1/workflows", a.SubmitWorkflow)
	a.mux.HandleFunc("GET /v1/workflows", a.ListWorkflows)
	a.mux.HandleFunc("GET /v1/workflows/{id}", a.GetWorkflow)
	a.mux.HandleFunc("POST /v1/workflows/{id}/resolve", a.ResolveWorkflow)

	// audit trail
	a.mux.HandleFunc("GET /v1/audit", a.QueryAudit)

	// reports
	a.mux.HandleFunc("POST /v1/reports", a.GenerateReport)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	if a.limits.MaxBodyBytes > 0 {
		h = MaxBodyBytes(h, a.limits.MaxBodyBytes)
	}
	if a.limits.RatePerSecond > 0 {
		h = RateLimit(h, a.limits.RateBurst, a.limits.RatePerSecond)
	}
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "corevault-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "corevault-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// respondDomainError maps domain sentinels onto status codes. Access denials
// collapse to one uniform message; the distinguishing detail stays in logs.
func respondDomainError(w http.ResponseWriter, err error) {
	var dup *document.DuplicateContentError
	switch {
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "duplicate content",
			"digest": dup.Digest,
		})
	case errors.Is(err, access.ErrAccessDenied):
		respondError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, workflow.ErrUnauthorizedApproval):
		respondError(w, http.StatusForbidden, "not authorized to approve this workflow type")
	case errors.Is(err, workflow.ErrInvalidStateTransition):
		respondError(w, http.StatusConflict, "workflow is not pending")
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, identity.ErrConflict):
		respondError(w, http.StatusConflict, "resource conflict")
	case errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, document.ErrInvalidInput),
		errors.Is(err, workflow.ErrInvalidInput),
		errors.Is(err, audit.ErrInvalidInput),
		errors.Is(err, entity.ErrUnknownKind):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, document.ErrNotFound),
		errors.Is(err, workflow.ErrNotFound),
		errors.Is(err, audit.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	default:
		obs.LogRequest(map[string]any{
			"level": "error",
			"msg":   "internal error",
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
