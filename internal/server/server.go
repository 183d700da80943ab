// Package server exposes the verification workflow over JSON and multipart HTTP.
package server

import (
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/trustbridge/ngoverify/internal/auth"
	httpmiddleware "github.com/trustbridge/ngoverify/internal/http"
	"github.com/trustbridge/ngoverify/internal/login"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/validate"
	"github.com/trustbridge/ngoverify/internal/verification"
)

// Config holds HTTP surface settings.
type Config struct {
	// CORSOrigins are the browser origins allowed to call the API.
	CORSOrigins []string

	// MaxRequestBytes caps a request body. Default: three documents plus 1 MiB of form fields.
	MaxRequestBytes int64
}

func (c *Config) applyDefaults() {
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = int64(len(models.RequiredDocumentTypes))*validate.MaxDocumentSize + 1<<20
	}
}

// Server wires the verification and login services to HTTP routes.
type Server struct {
	verify *verification.Service
	login  *login.Service
	tokens *auth.TokenManager
	cfg    Config
}

func NewServer(verify *verification.Service, loginSvc *login.Service, tokens *auth.TokenManager, cfg Config) *Server {
	cfg.applyDefaults()
	return &Server{
		verify: verify,
		login:  loginSvc,
		tokens: tokens,
		cfg:    cfg,
	}
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Public
	mux.HandleFunc("POST /api/v1/applications", s.createApplication)
	mux.HandleFunc("POST /api/v1/auth/login", s.loginHandler)

	// Organization: bearer token or basic credentials
	org := func(h http.HandlerFunc) http.Handler {
		return s.requireOrganization(h)
	}
	mux.Handle("GET /api/v1/me/application", org(s.myApplication))
	mux.Handle("PUT /api/v1/me/application/documents/{docType}", org(s.resubmitDocument))

	// Admin
	admin := func(h http.HandlerFunc) http.Handler {
		return httpmiddleware.Chain(h, s.tokens.Middleware(), auth.RequireRole(models.RoleAdmin))
	}
	mux.Handle("GET /api/v1/admin/applications", admin(s.listApplications))
	mux.Handle("GET /api/v1/admin/applications/{id}", admin(s.getApplication))
	mux.Handle("POST /api/v1/admin/applications/{id}/documents/{docType}/approve", admin(s.approveDocument))
	mux.Handle("POST /api/v1/admin/applications/{id}/documents/{docType}/reject", admin(s.rejectDocument))
	mux.Handle("POST /api/v1/admin/applications/{id}/approve", admin(s.approveApplication))
	mux.Handle("POST /api/v1/admin/applications/{id}/reject", admin(s.rejectApplication))

	return httpmiddleware.Chain(mux,
		httpmiddleware.RequestLogger(log),
		httpmiddleware.Recoverer(),
		withCORS(s.cfg.CORSOrigins),
		httpmiddleware.ClientIPMiddleware(),
		s.limitBody,
	)
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
		next.ServeHTTP(w, r)
	})
}

func withCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
	})
	return middleware.Handler
}
