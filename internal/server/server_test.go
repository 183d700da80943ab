package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/trustbridge/ngoverify/internal/auth"
	"github.com/trustbridge/ngoverify/internal/blob"
	"github.com/trustbridge/ngoverify/internal/gate"
	"github.com/trustbridge/ngoverify/internal/login"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store/memory"
	"github.com/trustbridge/ngoverify/internal/verification"
	"golang.org/x/crypto/bcrypt"
)

var pdfData = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

const (
	orgEmail      = "org@example.org"
	orgPassword   = "correct-horse"
	adminEmail    = "reviewer@example.org"
	adminPassword = "admin-password"
)

type upload struct {
	name        string
	contentType string
	data        []byte
}

func pdfUpload(name string) upload {
	return upload{name: name, contentType: "application/pdf", data: pdfData}
}

type testServer struct {
	*httptest.Server
	t          *testing.T
	tokens     *auth.TokenManager
	adminToken string
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()

	apps := memory.NewApplicationStore()
	accounts := memory.NewAccountStore()
	tokens, err := auth.NewTokenManager([]byte(strings.Repeat("k", auth.MinSecretLength)), time.Hour)
	require.NoError(t, err)

	verify := verification.NewService(apps, accounts, blob.NewMemoryStore(), nil, verification.Config{BcryptCost: bcrypt.MinCost})
	loginSvc := login.NewService(accounts, gate.New(apps), tokens, login.Config{BcryptCost: bcrypt.MinCost})

	_, err = loginSvc.CreateAdmin(context.Background(), adminEmail, adminPassword)
	require.NoError(t, err)

	srv := NewServer(verify, loginSvc, tokens, cfg)
	ts := &testServer{Server: httptest.NewServer(srv.Handler(zerolog.Nop())), t: t, tokens: tokens}
	t.Cleanup(ts.Close)

	resp := ts.postJSON("/api/v1/auth/login", "", map[string]string{"email": adminEmail, "password": adminPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lr loginResponse
	decode(t, resp, &lr)
	ts.adminToken = lr.Token

	return ts
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]upload) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+f.name+`"`)
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func registrationFields(email string) map[string]string {
	return map[string]string{
		"organizationName": "Helping Hands",
		"contactName":      "Jo Smith",
		"email":            email,
		"password":         orgPassword,
		"country":          "Ghana",
	}
}

func registrationFiles() map[string]upload {
	return map[string]upload{
		string(models.DocRegistrationCertificate): pdfUpload("registration.pdf"),
		string(models.DocTaxExemptionCertificate): pdfUpload("tax.pdf"),
		string(models.DocOrganizationalLicense):   pdfUpload("license.pdf"),
	}
}

func (ts *testServer) do(method, path string, body io.Reader, contentType string, setAuth func(*http.Request)) *http.Response {
	ts.t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(ts.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if setAuth != nil {
		setAuth(req)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func basic(email, password string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(email, password) }
}

func (ts *testServer) postJSON(path, token string, v any) *http.Response {
	ts.t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(ts.t, err)
		body = bytes.NewReader(data)
	}
	var setAuth func(*http.Request)
	if token != "" {
		setAuth = bearer(token)
	}
	return ts.do(http.MethodPost, path, body, "application/json", setAuth)
}

func (ts *testServer) register(email string) *models.NGOApplication {
	ts.t.Helper()
	body, ct := multipartBody(ts.t, registrationFields(email), registrationFiles())
	resp := ts.do(http.MethodPost, "/api/v1/applications", body, ct, nil)
	require.Equal(ts.t, http.StatusCreated, resp.StatusCode)
	var app models.NGOApplication
	decode(ts.t, resp, &app)
	return &app
}

func (ts *testServer) login(email, password string) *http.Response {
	ts.t.Helper()
	return ts.postJSON("/api/v1/auth/login", "", map[string]string{"email": email, "password": password})
}

func docPath(appID uuid.UUID, dt models.DocumentType, action string) string {
	return "/api/v1/admin/applications/" + appID.String() + "/documents/" + string(dt) + "/" + action
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type errorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

func requireError(t *testing.T, resp *http.Response, status int, code string) errorBody {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	var body errorBody
	decode(t, resp, &body)
	require.Equal(t, code, body.Code, body.Message)
	return body
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, Config{})
	resp := ts.do(http.MethodGet, "/healthz", nil, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVerificationWorkflow(t *testing.T) {
	ts := newTestServer(t, Config{})
	app := ts.register(orgEmail)
	require.Equal(t, models.StatusPending, app.VerificationStatus)

	// pending organizations cannot sign in
	body := requireError(t, ts.login(orgEmail, orgPassword), http.StatusForbidden, string(gate.CodePendingApproval))
	require.JSONEq(t, `{"organizationName":"Helping Hands","email":"org@example.org"}`, string(body.Payload))

	resp := ts.postJSON(docPath(app.ID, models.DocRegistrationCertificate, "approve"), ts.adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var approved approveDocumentResponse
	decode(t, resp, &approved)
	require.False(t, approved.AggregateApproved)

	// reason is mandatory
	resp = ts.postJSON(docPath(app.ID, models.DocOrganizationalLicense, "reject"), ts.adminToken, nil)
	requireError(t, resp, http.StatusBadRequest, "MissingReason")

	resp = ts.postJSON(docPath(app.ID, models.DocOrganizationalLicense, "reject"), ts.adminToken, reasonRequest{Reason: "expired"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body = requireError(t, ts.login(orgEmail, orgPassword), http.StatusForbidden, string(gate.CodeDocumentsRejected))
	require.JSONEq(t, `[{"docType":"organizationalLicense","rejectionReason":"expired"}]`, string(body.Payload))

	// the blocked organization can still see and fix its application
	resp = ts.do(http.MethodGet, "/api/v1/me/application", nil, "", basic(orgEmail, orgPassword))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine models.NGOApplication
	decode(t, resp, &mine)
	require.Equal(t, "expired", mine.Documents[models.DocOrganizationalLicense].RejectionReason)

	mp, ct := multipartBody(t, nil, map[string]upload{"file": pdfUpload("license-2026.pdf")})
	resp = ts.do(http.MethodPut, "/api/v1/me/application/documents/organizationalLicense", mp, ct, basic(orgEmail, orgPassword))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &mine)
	require.Equal(t, models.StatusPending, mine.Documents[models.DocOrganizationalLicense].Status)
	require.Equal(t, "license-2026.pdf", mine.Documents[models.DocOrganizationalLicense].OriginalName)

	requireError(t, ts.login(orgEmail, orgPassword), http.StatusForbidden, string(gate.CodePendingApproval))

	for i, dt := range []models.DocumentType{models.DocTaxExemptionCertificate, models.DocOrganizationalLicense} {
		resp = ts.postJSON(docPath(app.ID, dt, "approve"), ts.adminToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		decode(t, resp, &approved)
		require.Equal(t, i == 1, approved.AggregateApproved)
	}
	require.Equal(t, models.StatusApproved, approved.Application.VerificationStatus)

	resp = ts.login(orgEmail, orgPassword)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lr loginResponse
	decode(t, resp, &lr)
	require.Equal(t, models.RoleOrganization, lr.Role)

	resp = ts.do(http.MethodGet, "/api/v1/me/application", nil, "", bearer(lr.Token))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// organizations never reach admin routes
	resp = ts.do(http.MethodGet, "/api/v1/admin/applications", nil, "", bearer(lr.Token))
	requireError(t, resp, http.StatusForbidden, "Forbidden")
}

func TestAdminRejection(t *testing.T) {
	ts := newTestServer(t, Config{})
	app := ts.register(orgEmail)

	path := "/api/v1/admin/applications/" + app.ID.String() + "/reject"
	requireError(t, ts.postJSON(path, ts.adminToken, reasonRequest{Reason: " "}), http.StatusBadRequest, "MissingReason")

	resp := ts.postJSON(path, ts.adminToken, reasonRequest{Reason: "Fraudulent registration number"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.NGOApplication
	decode(t, resp, &got)
	require.Equal(t, models.StatusRejected, got.VerificationStatus)

	body := requireError(t, ts.login(orgEmail, orgPassword), http.StatusForbidden, string(gate.CodeRejected))
	require.JSONEq(t, `{"reason":"Fraudulent registration number"}`, string(body.Payload))

	requireError(t, ts.postJSON(path, ts.adminToken, reasonRequest{Reason: "again"}), http.StatusConflict, "AlreadyDecided")
	requireError(t, ts.postJSON("/api/v1/admin/applications/"+app.ID.String()+"/approve", ts.adminToken, notesRequest{}), http.StatusConflict, "AlreadyDecided")

	mp, ct := multipartBody(t, nil, map[string]upload{"file": pdfUpload("tax.pdf")})
	resp = ts.do(http.MethodPut, "/api/v1/me/application/documents/taxExemptionCertificate", mp, ct, basic(orgEmail, orgPassword))
	requireError(t, resp, http.StatusConflict, "AlreadyDecided")
}

func TestBearerTokenAccountMismatch(t *testing.T) {
	ts := newTestServer(t, Config{})
	app := ts.register(orgEmail)
	resp := ts.postJSON("/api/v1/admin/applications/"+app.ID.String()+"/approve", ts.adminToken, notesRequest{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.login(orgEmail, orgPassword)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lr loginResponse
	decode(t, resp, &lr)
	p, err := ts.tokens.Verify(lr.Token)
	require.NoError(t, err)

	other := uuid.New()
	tests := []struct {
		name    string
		account *models.Account
	}{
		{
			name:    "unknown account",
			account: &models.Account{AccountID: uuid.New(), Email: "ghost@example.org", Role: models.RoleOrganization, ApplicationID: &app.ID},
		},
		{
			name:    "different application",
			account: &models.Account{AccountID: p.AccountID, Email: orgEmail, Role: models.RoleOrganization, ApplicationID: &other},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := ts.tokens.IssueToken(tt.account)
			require.NoError(t, err)

			resp := ts.do(http.MethodGet, "/api/v1/me/application", nil, "", bearer(token))
			requireError(t, resp, http.StatusUnauthorized, "Unauthorized")
		})
	}

	resp = ts.do(http.MethodGet, "/api/v1/me/application", nil, "", bearer(lr.Token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminApproveOverride(t *testing.T) {
	ts := newTestServer(t, Config{})
	app := ts.register(orgEmail)

	resp := ts.postJSON("/api/v1/admin/applications/"+app.ID.String()+"/approve", ts.adminToken, notesRequest{Notes: "verified by phone"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.NGOApplication
	decode(t, resp, &got)
	require.Equal(t, models.StatusApproved, got.VerificationStatus)
	require.Equal(t, "verified by phone", got.ReviewNotes)

	require.Equal(t, http.StatusOK, ts.login(orgEmail, orgPassword).StatusCode)
}

func TestListApplications(t *testing.T) {
	ts := newTestServer(t, Config{})
	first := ts.register("first@example.org")
	second := ts.register("second@example.org")
	require.Equal(t, http.StatusOK, ts.postJSON("/api/v1/admin/applications/"+second.ID.String()+"/reject", ts.adminToken, reasonRequest{Reason: "duplicate"}).StatusCode)

	tests := []struct {
		name  string
		query string
		want  []uuid.UUID
	}{
		{name: "all", query: "", want: []uuid.UUID{second.ID, first.ID}},
		{name: "all keyword", query: "?status=all", want: []uuid.UUID{second.ID, first.ID}},
		{name: "pending", query: "?status=pending", want: []uuid.UUID{first.ID}},
		{name: "search", query: "?q=SECOND", want: []uuid.UUID{second.ID}},
		{name: "none", query: "?status=approved", want: []uuid.UUID{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(http.MethodGet, "/api/v1/admin/applications"+tt.query, nil, "", bearer(ts.adminToken))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var lr listResponse
			decode(t, resp, &lr)
			got := make([]uuid.UUID, 0, len(lr.Applications))
			for _, app := range lr.Applications {
				got = append(got, app.ID)
			}
			require.Equal(t, tt.want, got)
		})
	}

	resp := ts.do(http.MethodGet, "/api/v1/admin/applications?status=archived", nil, "", bearer(ts.adminToken))
	requireError(t, resp, http.StatusBadRequest, "BadRequest")
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, Config{})
	app := ts.register(orgEmail)
	appPath := "/api/v1/admin/applications/" + app.ID.String()

	_ = ts.postJSON(docPath(app.ID, models.DocRegistrationCertificate, "approve"), ts.adminToken, nil)

	tests := []struct {
		name       string
		resp       func() *http.Response
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown document type",
			resp:       func() *http.Response { return ts.postJSON(appPath+"/documents/passport/approve", ts.adminToken, nil) },
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidDocType",
		},
		{
			name: "unknown application",
			resp: func() *http.Response {
				return ts.postJSON(docPath(uuid.New(), models.DocRegistrationCertificate, "approve"), ts.adminToken, nil)
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "NotFound",
		},
		{
			name: "malformed application id",
			resp: func() *http.Response {
				return ts.do(http.MethodGet, "/api/v1/admin/applications/not-a-uuid", nil, "", bearer(ts.adminToken))
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "NotFound",
		},
		{
			name: "already reviewed",
			resp: func() *http.Response {
				return ts.postJSON(docPath(app.ID, models.DocRegistrationCertificate, "reject"), ts.adminToken, reasonRequest{Reason: "late"})
			},
			wantStatus: http.StatusConflict,
			wantCode:   "AlreadyReviewed",
		},
		{
			name: "resubmit pending document",
			resp: func() *http.Response {
				mp, ct := multipartBody(t, nil, map[string]upload{"file": pdfUpload("tax.pdf")})
				return ts.do(http.MethodPut, "/api/v1/me/application/documents/taxExemptionCertificate", mp, ct, basic(orgEmail, orgPassword))
			},
			wantStatus: http.StatusConflict,
			wantCode:   "NotRejected",
		},
		{
			name: "unknown field in body",
			resp: func() *http.Response {
				return ts.postJSON(appPath+"/reject", ts.adminToken, map[string]string{"why": "x"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BadRequest",
		},
		{
			name: "admin route without token",
			resp: func() *http.Response {
				return ts.do(http.MethodGet, "/api/v1/admin/applications", nil, "", nil)
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "Unauthorized",
		},
		{
			name: "org route without credentials",
			resp: func() *http.Response {
				return ts.do(http.MethodGet, "/api/v1/me/application", nil, "", nil)
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "Unauthorized",
		},
		{
			name: "org route with wrong password",
			resp: func() *http.Response {
				return ts.do(http.MethodGet, "/api/v1/me/application", nil, "", basic(orgEmail, "nope-nope"))
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "InvalidCredentials",
		},
		{
			name: "org route as admin",
			resp: func() *http.Response {
				return ts.do(http.MethodGet, "/api/v1/me/application", nil, "", bearer(ts.adminToken))
			},
			wantStatus: http.StatusForbidden,
			wantCode:   "Forbidden",
		},
		{
			name:       "login with wrong password",
			resp:       func() *http.Response { return ts.login(orgEmail, "battery-staple") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "InvalidCredentials",
		},
		{
			name: "duplicate registration",
			resp: func() *http.Response {
				body, ct := multipartBody(t, registrationFields(orgEmail), registrationFiles())
				return ts.do(http.MethodPost, "/api/v1/applications", body, ct, nil)
			},
			wantStatus: http.StatusConflict,
			wantCode:   "EmailTaken",
		},
		{
			name: "registration missing a document",
			resp: func() *http.Response {
				files := registrationFiles()
				delete(files, string(models.DocTaxExemptionCertificate))
				body, ct := multipartBody(t, registrationFields("new@example.org"), files)
				return ts.do(http.MethodPost, "/api/v1/applications", body, ct, nil)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MissingDocument",
		},
		{
			name: "registration with invalid email",
			resp: func() *http.Response {
				body, ct := multipartBody(t, registrationFields("nope"), registrationFiles())
				return ts.do(http.MethodPost, "/api/v1/applications", body, ct, nil)
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidRegistration",
		},
		{
			name: "registration with text document",
			resp: func() *http.Response {
				files := registrationFiles()
				files[string(models.DocOrganizationalLicense)] = upload{name: "license.txt", contentType: "text/plain", data: []byte("hello")}
				body, ct := multipartBody(t, registrationFields("new@example.org"), files)
				return ts.do(http.MethodPost, "/api/v1/applications", body, ct, nil)
			},
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   "InvalidType",
		},
		{
			name: "registration with oversized document",
			resp: func() *http.Response {
				files := registrationFiles()
				big := append(append([]byte(nil), pdfData...), make([]byte, 5<<20)...)
				files[string(models.DocOrganizationalLicense)] = upload{name: "license.pdf", contentType: "application/pdf", data: big}
				body, ct := multipartBody(t, registrationFields("new@example.org"), files)
				return ts.do(http.MethodPost, "/api/v1/applications", body, ct, nil)
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "TooLarge",
		},
		{
			name: "registration that is not multipart",
			resp: func() *http.Response {
				return ts.postJSON("/api/v1/applications", "", map[string]string{"email": "x@example.org"})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BadRequest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireError(t, tt.resp(), tt.wantStatus, tt.wantCode)
		})
	}
}

func TestRequestBodyLimit(t *testing.T) {
	ts := newTestServer(t, Config{MaxRequestBytes: 4 << 10})

	body, ct := multipartBody(t, registrationFields(orgEmail), map[string]upload{
		string(models.DocRegistrationCertificate): {name: "big.pdf", contentType: "application/pdf", data: make([]byte, 8<<10)},
	})
	resp := ts.do(http.MethodPost, "/api/v1/applications", body, ct, nil)
	requireError(t, resp, http.StatusRequestEntityTooLarge, "TooLarge")
}

func TestWriteErrorUnmapped(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(rec, req, io.ErrUnexpectedEOF)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"code":"Internal","message":"internal error"}`, rec.Body.String())
}
