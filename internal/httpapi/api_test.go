package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"corevault.org/internal/audit"
	"corevault.org/internal/document"
	"corevault.org/internal/entity"
	"corevault.org/internal/identity"
	"corevault.org/internal/workflow"
)

type testEnv struct {
	api      *API
	handler  http.Handler
	identity *identity.Service
	tokens   *identity.TokenService
	trail    *audit.InMemory
	orgID    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	idSvc, err := identity.NewService(identity.NewInMemory())
	if err != nil {
		t.Fatalf("identity.NewService: %v", err)
	}
	tokens, err := identity.NewTokenService("test-secret")
	if err != nil {
		t.Fatalf("identity.NewTokenService: %v", err)
	}
	docSvc, err := document.NewService(document.NewInMemory())
	if err != nil {
		t.Fatalf("document.NewService: %v", err)
	}
	trail := audit.NewInMemory()
	wfSvc, err := workflow.NewService(workflow.NewInMemory(trail))
	if err != nil {
		t.Fatalf("workflow.NewService: %v", err)
	}

	registry := entity.NewRegistry()
	registry.Register(entity.KindDocument, func(ctx context.Context, id string) (any, error) {
		return docSvc.Get(ctx, id)
	})
	registry.Register(entity.KindProcess, func(ctx context.Context, id string) (any, error) {
		return id, nil
	})

	org, err := idSvc.CreateOrganisation(context.Background(), "Test Org", identity.ModeExploration)
	if err != nil {
		t.Fatalf("CreateOrganisation: %v", err)
	}

	api := New(Deps{
		Identity:  idSvc,
		Tokens:    tokens,
		Documents: docSvc,
		Workflows: wfSvc,
		Trail:     trail,
		Views:     trail,
		Registry:  registry,
	}, Limits{}, ReadyProbe{}, "test")

	return &testEnv{
		api:      api,
		handler:  api.Handler(),
		identity: idSvc,
		tokens:   tokens,
		trail:    trail,
		orgID:    org.ID,
	}
}

var userSeq int

func (e *testEnv) newUser(t *testing.T, mutate func(*identity.NewIdentity)) (identity.Account, string) {
	t.Helper()
	userSeq++
	req := identity.NewIdentity{
		Username:       fmt.Sprintf("user%d", userSeq),
		Password:       "correct horse battery staple",
		OrganisationID: e.orgID,
		Role:           identity.RoleViewer,
		Clearance:      identity.ClearanceInternal,
	}
	if mutate != nil {
		mutate(&req)
	}
	acct, _, err := e.identity.CreateIdentity(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	token, _, err := e.tokens.Issue(acct.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return acct, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return e.do(t, method, path, token, bytes.NewReader(raw), "application/json")
}

func multipartUpload(t *testing.T, fields map[string]string, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", "upload.pdf")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatalf("write content: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestAuthTokenFlow(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.newUser(t, func(req *identity.NewIdentity) {
		req.Username = "tokenuser"
	})

	rec := env.doJSON(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"username": "tokenuser",
		"password": "correct horse battery staple",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("token issue: %d %s", rec.Code, rec.Body.String())
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(t, rec, &out)
	if out.AccessToken == "" {
		t.Fatal("no access token in response")
	}

	rec = env.do(t, http.MethodGet, "/v1/me", out.AccessToken, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me: %d %s", rec.Code, rec.Body.String())
	}
	var me struct {
		Account identity.Account `json:"account"`
	}
	decodeBody(t, rec, &me)
	if me.Account.ID != acct.ID {
		t.Fatalf("token resolved wrong account: %s", me.Account.ID)
	}
}

func TestAuthTokenRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)
	env.newUser(t, func(req *identity.NewIdentity) { req.Username = "victim" })

	rec := env.doJSON(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"username": "victim",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	// Unknown usernames fail identically.
	rec = env.doJSON(t, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"username": "nobody",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d", rec.Code)
	}
}

func TestProtectedPathsRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/documents", "", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/documents", "not-a-jwt", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/healthz", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz must stay public, got %d", rec.Code)
	}
}

func TestUploadDocumentAndDuplicate(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.newUser(t, nil)

	body, ct := multipartUpload(t, map[string]string{"title": "Drill log"}, "identical content")
	rec := env.do(t, http.MethodPost, "/v1/documents", token, body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var first document.Document
	decodeBody(t, rec, &first)
	if first.Checksum == "" {
		t.Fatal("uploaded document has no checksum")
	}
	if first.OrganisationID != env.orgID {
		t.Fatalf("upload did not default to the uploader's organisation: %q", first.OrganisationID)
	}

	// Same bytes, different metadata: still a duplicate.
	body, ct = multipartUpload(t, map[string]string{"title": "Renamed drill log"}, "identical content")
	rec = env.do(t, http.MethodPost, "/v1/documents", token, body, ct)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate content, got %d %s", rec.Code, rec.Body.String())
	}
	var conflict struct {
		Digest string `json:"digest"`
	}
	decodeBody(t, rec, &conflict)
	if conflict.Digest != first.Checksum {
		t.Fatalf("conflict response digest %q != stored checksum %q", conflict.Digest, first.Checksum)
	}
}

func TestGetDocumentAuditsViewAndLedger(t *testing.T) {
	env := newTestEnv(t)
	viewer, token := env.newUser(t, nil)

	body, ct := multipartUpload(t, map[string]string{"title": "Assay results"}, "assay content")
	rec := env.do(t, http.MethodPost, "/v1/documents", token, body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var doc document.Document
	decodeBody(t, rec, &doc)

	rec = env.do(t, http.MethodGet, "/v1/documents/"+doc.ID, token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}

	entries, err := env.trail.Query(context.Background(), audit.Query{
		Target: entity.Ref{Kind: entity.KindDocument, ID: doc.ID},
		Action: audit.ActionView,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].ActorID != viewer.ID {
		t.Fatalf("expected one VIEW entry by the viewer, got %+v", entries)
	}
	seen, err := env.trail.HasViewed(context.Background(), viewer.ID, doc.ID)
	if err != nil || !seen {
		t.Fatalf("view ledger did not record the read: seen=%v err=%v", seen, err)
	}
}

func TestGetDocumentDeniedByClearance(t *testing.T) {
	env := newTestEnv(t)
	_, uploaderToken := env.newUser(t, func(req *identity.NewIdentity) {
		req.Clearance = identity.ClearanceJORCApproved
	})
	lowViewer, lowToken := env.newUser(t, func(req *identity.NewIdentity) {
		req.Clearance = identity.ClearancePublic
	})

	body, ct := multipartUpload(t, map[string]string{
		"title":           "Restricted estimate",
		"confidentiality": "jorc_restricted",
	}, "restricted content")
	rec := env.do(t, http.MethodPost, "/v1/documents", uploaderToken, body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var doc document.Document
	decodeBody(t, rec, &doc)

	rec = env.do(t, http.MethodGet, "/v1/documents/"+doc.ID, lowToken, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for insufficient clearance, got %d", rec.Code)
	}

	// A denied read leaves no view trace.
	seen, err := env.trail.HasViewed(context.Background(), lowViewer.ID, doc.ID)
	if err != nil {
		t.Fatalf("HasViewed: %v", err)
	}
	if seen {
		t.Fatal("denied read must not appear in the view ledger")
	}
}

func TestGetDocumentDeniedAcrossOrganisations(t *testing.T) {
	env := newTestEnv(t)
	_, uploaderToken := env.newUser(t, nil)

	otherOrg, err := env.identity.CreateOrganisation(context.Background(), "Other Org", identity.ModeMining)
	if err != nil {
		t.Fatalf("CreateOrganisation: %v", err)
	}
	_, outsiderToken := env.newUser(t, func(req *identity.NewIdentity) {
		req.OrganisationID = otherOrg.ID
		req.Clearance = identity.ClearanceJORCApproved
	})

	body, ct := multipartUpload(t, map[string]string{"title": "Org scoped"}, "org scoped content")
	rec := env.do(t, http.MethodPost, "/v1/documents", uploaderToken, body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var doc document.Document
	decodeBody(t, rec, &doc)

	rec = env.do(t, http.MethodGet, "/v1/documents/"+doc.ID, outsiderToken, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("clearance does not cross organisations: expected 403, got %d", rec.Code)
	}
}

func TestWorkflowSubmitAndResolve(t *testing.T) {
	env := newTestEnv(t)
	_, submitterToken := env.newUser(t, nil)
	_, approverToken := env.newUser(t, func(req *identity.NewIdentity) {
		req.CanApproveJORC = true
	})
	_, bystanderToken := env.newUser(t, func(req *identity.NewIdentity) {
		// ADMIN role alone does not carry the JORC entitlement.
		req.Role = identity.RoleAdmin
	})

	body, ct := multipartUpload(t, map[string]string{"title": "Resource estimate"}, "estimate content")
	rec := env.do(t, http.MethodPost, "/v1/documents", submitterToken, body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var doc document.Document
	decodeBody(t, rec, &doc)

	rec = env.doJSON(t, http.MethodPost, "/v1/workflows", submitterToken, map[string]string{
		"target_kind":   "document",
		"target_id":     doc.ID,
		"workflow_type": "JORC",
		"notes":         "ready for sign-off",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	var wf workflow.Workflow
	decodeBody(t, rec, &wf)
	if wf.Status != workflow.StatusPending {
		t.Fatalf("submission must start pending, got %s", wf.Status)
	}

	rec = env.doJSON(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/resolve", bystanderToken, map[string]string{
		"decision": "APPROVED",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without the JORC entitlement, got %d %s", rec.Code, rec.Body.String())
	}

	rec = env.doJSON(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/resolve", approverToken, map[string]string{
		"decision": "APPROVED",
		"notes":    "tables check out",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: %d %s", rec.Code, rec.Body.String())
	}
	var resolved workflow.Workflow
	decodeBody(t, rec, &resolved)
	if resolved.Status != workflow.StatusApproved || resolved.ReviewedAt == nil {
		t.Fatalf("unexpected resolved state: %+v", resolved)
	}

	// Second resolution loses: exactly once.
	rec = env.doJSON(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/resolve", approverToken, map[string]string{
		"decision": "REJECTED",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for an already resolved workflow, got %d", rec.Code)
	}

	entries, err := env.trail.Query(context.Background(), audit.Query{
		Target: entity.Ref{Kind: entity.KindDocument, ID: doc.ID},
		Action: audit.ActionApprove,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("resolution must leave exactly one APPROVE entry, got %d", len(entries))
	}
}

func TestWorkflowSubmitRejectsUnknownTargetKind(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.newUser(t, nil)

	rec := env.doJSON(t, http.MethodPost, "/v1/workflows", token, map[string]string{
		"target_kind":   "spaceship",
		"target_id":     "x-1",
		"workflow_type": "GENERAL",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unregistered kind, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuditQueryRequiresGovernanceRole(t *testing.T) {
	env := newTestEnv(t)
	_, viewerToken := env.newUser(t, nil)
	_, adminToken := env.newUser(t, func(req *identity.NewIdentity) {
		req.Role = identity.RoleAdmin
	})

	rec := env.do(t, http.MethodGet, "/v1/audit", viewerToken, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/audit", adminToken, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit query as admin: %d %s", rec.Code, rec.Body.String())
	}
}

func TestIdentityAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, viewerToken := env.newUser(t, nil)
	_, adminToken := env.newUser(t, func(req *identity.NewIdentity) {
		req.Role = identity.RoleAdmin
	})

	rec := env.doJSON(t, http.MethodPost, "/v1/identities", viewerToken, map[string]any{
		"username": "sneaky", "password": "pw12345678",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin identity creation, got %d", rec.Code)
	}

	rec = env.doJSON(t, http.MethodPost, "/v1/identities", adminToken, map[string]any{
		"username":        "newgeo",
		"password":        "a long password",
		"organisation_id": env.orgID,
		"role":            "GEOLOGIST_EXPL",
		"clearance_level": "CONFIDENTIAL",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("identity create: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Account identity.Account `json:"account"`
		Profile identity.Profile `json:"profile"`
	}
	decodeBody(t, rec, &created)
	if created.Profile.Role != identity.RoleGeologistExpl {
		t.Fatalf("unexpected role: %s", created.Profile.Role)
	}

	rec = env.doJSON(t, http.MethodPatch, "/v1/identities/"+created.Account.ID, adminToken, map[string]any{
		"can_approve_jorc": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("identity update: %d %s", rec.Code, rec.Body.String())
	}
	var updated identity.Profile
	decodeBody(t, rec, &updated)
	if !updated.CanApproveJORC {
		t.Fatal("entitlement update not applied")
	}

	// Non-admins can read themselves but not others.
	rec = env.do(t, http.MethodGet, "/v1/identities/"+created.Account.ID, viewerToken, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 reading another profile, got %d", rec.Code)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	acct, _ := env.newUser(t, nil)

	shortLived, err := identity.NewTokenService("test-secret", identity.WithTokenTTL(time.Millisecond))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	token, _, err := shortLived.Issue(acct.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	rec := env.do(t, http.MethodGet, "/v1/me", token, nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimit(inner, 2, 1)

	var last int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:4567"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected burst exhaustion to return 429, got %d", last)
	}

	// A different client IP has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.9.9.9:4567"
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh client should pass, got %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("missing frame options header")
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer abc", "abc", false},
		{"Bearer   abc  ", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr != (err != nil) {
			t.Fatalf("header %q: unexpected error state: %v", tc.header, err)
		}
		if got != tc.want {
			t.Fatalf("header %q: got %q want %q", tc.header, got, tc.want)
		}
	}
}

func TestMaxBodyBytes(t *testing.T) {
	env := newTestEnv(t)
	env.api.limits.MaxBodyBytes = 64
	handler := env.api.Handler()
	_, token := env.newUser(t, nil)

	big := strings.Repeat("x", 4096)
	req := httptest.NewRequest(http.MethodPost, "/v1/workflows", strings.NewReader(`{"notes":"`+big+`"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized body should fail decoding, got %d", rec.Code)
	}
}
