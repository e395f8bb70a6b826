package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"boleta/internal/log"
	"boleta/internal/middleware/ratelimit"
	"boleta/internal/middleware/security"
	"boleta/internal/middleware/trace"
	"boleta/internal/services"
	appweb "boleta/web"
)

// ReadyCheck reports whether a dependency can serve requests.
type ReadyCheck func(ctx context.Context) error

// Server serves the payslip API and the printable payslip pages.
type Server struct {
	http.Server
	templates *template.Template
	payslips  *services.PayslipService
	ready     map[string]ReadyCheck

	logger     *log.Logger
	structured *log.StructuredLogger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	now          func() time.Time
	shutdownOnce sync.Once
}

// appMetrics holds counters exposed on /metrics.
type appMetrics struct {
	uptime         time.Time
	recalculations int64
	exports        int64
}

// Option customizes a Server.
type Option func(*Server)

// WithReadyCheck adds a named dependency check to /readyz.
func WithReadyCheck(name string, check ReadyCheck) Option {
	return func(s *Server) {
		if check != nil {
			s.ready[name] = check
		}
	}
}

// WithRateLimit overrides the per-client limit on mutating requests.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		s.rateLimiter = ratelimit.NewLimiter(cfg)
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, payslips *services.PayslipService, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		payslips:         payslips,
		ready:            make(map[string]ReadyCheck),
		logger:           log.Default(log.ComponentHTTP),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.structured = log.NewStructuredLogger(s.logger)
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /payslips", s.handleListPayslips)
	mux.HandleFunc("POST /payslips", s.handleCreatePayslip)
	mux.HandleFunc("GET /payslips/{id}", s.handleGetPayslip)
	mux.HandleFunc("DELETE /payslips/{id}", s.handleDeletePayslip)
	mux.HandleFunc("GET /payslips/{id}/print", s.handlePrintPayslip)
	mux.HandleFunc("POST /payslips/{id}/lines", s.handleAddLine)
	mux.HandleFunc("PUT /payslips/{id}/lines/{index}", s.handleUpdateLine)
	mux.HandleFunc("DELETE /payslips/{id}/lines/{index}", s.handleRemoveLine)
	mux.HandleFunc("PUT /payslips/{id}/contribution", s.handleSetContribution)
	mux.HandleFunc("POST /payslips/{id}/recalculate", s.handleRecalculate)
	mux.HandleFunc("GET /payslips/{id}/totals", s.handleTotals)
	mux.HandleFunc("GET /payslips/{id}/export.xlsx", s.handleExportXLSX)
	mux.HandleFunc("GET /payslips/{id}/export.csv", s.handleExportCSV)

	s.Handler = s.middleware(mux)
	return s
}

// middleware wraps the mux, outermost first: security headers, suspicious
// request detection, tracing, request-scoped logger, rate limiting.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, nil,
		http.MethodPost, http.MethodPut, http.MethodDelete)(next)
	h = log.RequestIDMiddleware(trace.RequestIDFromRequest)(h)
	h = log.Middleware(s.logger)(h)
	h = s.traceMiddleware.Middleware(h)
	h = s.securityDetector.Middleware(h)
	return security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

var templateFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			log.FieldOperation, log.OpRender,
			"template", name)
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}
