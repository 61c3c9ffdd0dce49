package capture

import (
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultMaxUploadBytes bounds multipart and JSON request bodies
const DefaultMaxUploadBytes = 50 << 20

// Server handles HTTP requests for the capture UI and API
type Server struct {
	dispatcher     *Dispatcher
	service        *Service
	basicAuth      BasicAuth
	mux            *http.ServeMux
	maxUploadBytes int64
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Option configures a Server
type Option func(*Server)

// WithMaxUploadBytes overrides DefaultMaxUploadBytes
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// NewServer creates a new Server with default mux
func NewServer(dispatcher *Dispatcher, service *Service, basicAuth BasicAuth, opts ...Option) *Server {
	return NewServerWithMux(dispatcher, service, basicAuth, http.NewServeMux(), opts...)
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(dispatcher *Dispatcher, service *Service, basicAuth BasicAuth, mux *http.ServeMux, opts ...Option) *Server {
	s := &Server{
		dispatcher:     dispatcher,
		service:        service,
		basicAuth:      basicAuth,
		mux:            mux,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Data Capture"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /static/app.css", s.requireAuth(s.handleStaticCSS))
	s.mux.HandleFunc("GET /static/app.js", s.requireAuth(s.handleStaticJS))

	// Dispatch
	s.mux.HandleFunc("POST /api/query", s.requireAuth(s.handleQuery))
	s.mux.HandleFunc("POST /api/images/analyze", s.requireAuth(s.handleImageAnalyze))
	s.mux.HandleFunc("POST /api/documents/analyze", s.requireAuth(s.handleDocumentAnalyze))
	s.mux.HandleFunc("POST /api/handwriting/transcribe", s.requireAuth(s.handleHandwriting))
	s.mux.HandleFunc("POST /api/tables/import", s.requireAuth(s.handleTableImport))
	s.mux.HandleFunc("POST /api/uploads", s.requireAuth(s.handleUpload))

	// Captured photos
	s.mux.HandleFunc("GET /api/captures/files/{name}", s.requireAuth(s.handleGetCaptureFile))
	s.mux.HandleFunc("DELETE /api/captures/{id}", s.requireAuth(s.handleDeleteCapture))
	s.mux.HandleFunc("GET /api/captures", s.requireAuth(s.handleListCaptures))
	s.mux.HandleFunc("POST /api/captures", s.requireAuth(s.handleUploadCapture))

	s.mux.HandleFunc("POST /api/export/{format}", s.requireAuth(s.handleExport))
	s.mux.HandleFunc("POST /api/device-errors", s.requireAuth(s.handleDeviceError))

	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
