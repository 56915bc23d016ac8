package httpapi

import (
	"net/http"

	"corevault.org/internal/access"
	"corevault.org/internal/audit"
	"corevault.org/internal/document"
	"corevault.org/internal/entity"
	"corevault.org/internal/identity"
)

// UploadDocument ingests a multipart upload. The content is fingerprinted
// and duplicate content is refused with 409 and the conflicting digest.
func (a *API) UploadDocument(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequirePrincipal(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	orgID := r.FormValue("organisation_id")
	if orgID == "" {
		orgID = principal.Profile.OrganisationID
	}
	doc := document.Document{
		Title:           r.FormValue("title"),
		OrganisationID:  orgID,
		ProcessID:       r.FormValue("process_id"),
		DocType:         r.FormValue("doc_type"),
		Confidentiality: r.FormValue("confidentiality"),
		CreatedBy:       principal.Account.ID,
	}
	created, err := a.deps.Documents.Ingest(r.Context(), doc, file)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := a.recordAudit(r, principal, audit.ActionCreate,
		entity.Ref{Kind: entity.KindDocument, ID: created.ID}, "document uploaded"); err != nil {
		respondDomainError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "document.ingested", map[string]any{
		"document_id": created.ID,
		"checksum":    created.Checksum,
	})
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) ListDocuments(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequirePrincipal(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var docs []document.Document
	switch {
	case r.URL.Query().Get("process_id") != "":
		docs, err = a.deps.Documents.ListByProcess(r.Context(), r.URL.Query().Get("process_id"))
	case r.URL.Query().Get("organisation_id") != "":
		docs, err = a.deps.Documents.ListByOrganisation(r.Context(), r.URL.Query().Get("organisation_id"))
	default:
		orgID, scopeErr := access.RequireOrganisationScope(r.Context())
		if scopeErr != nil {
			respondDomainError(w, scopeErr)
			return
		}
		docs, err = a.deps.Documents.ListByOrganisation(r.Context(), orgID)
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}

	// The listing never shows rows the caller could not open.
	visible := make([]document.Document, 0, len(docs))
	for _, d := range docs {
		if access.CanAccess(principal.Profile, d) {
			visible = append(visible, d)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": visible})
}

// GetDocument is the audited read path: a successful read appends a VIEW
// trail entry and a view-ledger row. Either write failing fails the read.
func (a *API) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, principal, ok := a.openDocument(w, r, audit.ActionView, "document viewed")
	if !ok {
		return
	}
	if _, err := a.deps.Views.RecordView(r.Context(), audit.ViewEntry{
		ViewerID:   principal.Account.ID,
		DocumentID: doc.ID,
		IP:         clientIP(r),
	}); err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DownloadDocument audits as DOWNLOAD and returns the metadata row with an
// attachment disposition. The artifact bytes live in the object store, which
// is outside this service; clients fetch them with the returned checksum.
func (a *API) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	doc, _, ok := a.openDocument(w, r, audit.ActionDownload, "document downloaded")
	if !ok {
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.ID+`.json"`)
	writeJSON(w, http.StatusOK, doc)
}

// openDocument loads the document, runs the access decision and appends the
// audit entry shared by the read paths.
func (a *API) openDocument(w http.ResponseWriter, r *http.Request, action audit.Action, description string) (document.Document, identity.Principal, bool) {
	principal, err := access.RequirePrincipal(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return document.Document{}, identity.Principal{}, false
	}
	doc, err := a.deps.Documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return document.Document{}, identity.Principal{}, false
	}
	if !access.CanAccess(principal.Profile, doc) {
		respondError(w, http.StatusForbidden, "access denied")
		return document.Document{}, identity.Principal{}, false
	}
	if err := a.recordAudit(r, principal, action,
		entity.Ref{Kind: entity.KindDocument, ID: doc.ID}, description); err != nil {
		respondDomainError(w, err)
		return document.Document{}, identity.Principal{}, false
	}
	return doc, principal, true
}

func (a *API) ListDocumentViews(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequirePrincipal(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	doc, err := a.deps.Documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if !access.CanAccess(principal.Profile, doc) {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}
	views, err := a.deps.Views.QueryViews(r.Context(), doc.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"views": views})
}

func (a *API) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	principal, err := access.RequireRole(r.Context(), identity.RoleAdmin, identity.RoleDataManager)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	id := r.PathValue("id")
	if _, err := a.deps.Documents.Get(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	// Audit first: a delete that cannot be audited does not happen.
	if err := a.recordAudit(r, principal, audit.ActionDelete,
		entity.Ref{Kind: entity.KindDocument, ID: id}, "document deleted"); err != nil {
		respondDomainError(w, err)
		return
	}
	if err := a.deps.Documents.Delete(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
