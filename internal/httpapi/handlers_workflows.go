package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"corevault.org/internal/access"
	"corevault.org/internal/audit"
	"corevault.org/internal/entity"
	"corevault.org/internal/identity"
	"corevault.org/internal/workflow"
)

func (a *API) SubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequirePrincipal(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	var req struct {
		TargetKind string `json:"target_kind"`
		TargetID   string `json:"target_id"`
		Type       string `json:"workflow_type"`
		Notes      string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	target := entity.Ref{Kind: entity.Kind(req.TargetKind), ID: req.TargetID}
	if err := target.Validate(a.deps.Registry); err != nil {
		respondDomainError(w, err)
		return
	}
	created, err := a.deps.Workflows.Submit(r.Context(), target, workflow.Type(req.Type), principal, req.Notes)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	if _, err := access.RequirePrincipal(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	wf, err := a.deps.Workflows.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (a *API) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	if _, err := access.RequirePrincipal(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	q := r.URL.Query()
	var (
		flows []workflow.Workflow
		err   error
	)
	if kind, id := q.Get("target_kind"), q.Get("target_id"); kind != "" || id != "" {
		flows, err = a.deps.Workflows.ListByTarget(r.Context(), entity.Ref{Kind: entity.Kind(kind), ID: id})
	} else {
		flows, err = a.deps.Workflows.ListPending(r.Context())
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": flows})
}

// ResolveWorkflow applies one terminal decision. Entitlement failures come
// back 403 regardless of workflow state; a lost race on an already resolved
// workflow comes back 409.
func (a *API) ResolveWorkflow(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequirePrincipal(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	var req struct {
		Decision string `json:"decision"`
		Notes    string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	resolved, err := a.deps.Workflows.Resolve(r.Context(), r.PathValue("id"), principal,
		workflow.Status(req.Decision), req.Notes,
		workflow.RequestContext{IP: clientIP(r), UserAgent: r.UserAgent()})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "workflow.resolved", map[string]any{
		"workflow_id": resolved.ID,
		"decision":    resolved.Status,
		"target":      resolved.Target.String(),
	})
	writeJSON(w, http.StatusOK, resolved)
}

// QueryAudit exposes the trail to governance roles only.
func (a *API) QueryAudit(w http.ResponseWriter, r *http.Request) {
	if _, err := access.RequireRole(r.Context(),
		identity.RoleAdmin, identity.RoleDataManager, identity.RoleOpsManager); err != nil {
		respondDomainError(w, err)
		return
	}
	q := r.URL.Query()
	query := audit.Query{
		Target:  entity.Ref{Kind: entity.Kind(q.Get("target_kind")), ID: q.Get("target_id")},
		ActorID: q.Get("actor_id"),
		Action:  audit.Action(q.Get("action")),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "malformed 'since' timestamp")
			return
		}
		query.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "malformed 'until' timestamp")
			return
		}
		query.Until = t
	}
	query.Limit, _ = strconv.Atoi(q.Get("limit"))
	query.Offset, _ = strconv.Atoi(q.Get("offset"))

	entries, err := a.deps.Trail.Query(r.Context(), query)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// GenerateReport renders a project summary over the documents the caller is
// allowed to see. Backend failures degrade to the local fallback; this
// endpoint never surfaces them.
func (a *API) GenerateReport(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequirePrincipal(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if a.deps.Reports == nil {
		respondError(w, http.StatusNotImplemented, "report generation is not configured")
		return
	}
	var req struct {
		ProcessID   string `json:"process_id"`
		ProcessName string `json:"process_name"`
		Mode        string `json:"mode"`
		Commodity   string `json:"commodity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	bundle, err := a.deps.Reports.FetchBundle(r.Context(), req.ProcessID, req.ProcessName, req.Mode, req.Commodity)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	visible := bundle.Documents[:0]
	for _, d := range bundle.Documents {
		if access.CanAccess(principal.Profile, d) {
			visible = append(visible, d)
		}
	}
	bundle.Documents = visible

	result := a.deps.Reports.Generate(r.Context(), bundle)
	writeJSON(w, http.StatusOK, result)
}
