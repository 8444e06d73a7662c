// Package http serves the charging log: a JSON API, CSV transfer endpoints
// and an HTMX front end rendered from embedded templates.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"chargelog/internal/core"
	applog "chargelog/internal/log"
	"chargelog/internal/middleware/ratelimit"
	"chargelog/internal/middleware/security"
	"chargelog/internal/middleware/trace"
	"chargelog/internal/services"
	appweb "chargelog/web"
)

const staticMaxAge = 3600

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	// Policies used by the import endpoints when ?policy= is absent.
	RecordsPolicy     services.ImportPolicy
	MaintenancePolicy services.ImportPolicy

	Logger    *applog.Logger
	RateLimit ratelimit.Config
	Now       func() time.Time

	// TrustedProxies are CIDRs whose forwarding headers name the client.
	TrustedProxies []string
}

// Server is the HTTP front of a LogService.
type Server struct {
	http.Server

	svc       *services.LogService
	templates *template.Template
	logger    *applog.Logger
	events    *applog.StructuredLogger

	detector *security.Detector
	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter

	recordsPolicy     services.ImportPolicy
	maintenancePolicy services.ImportPolicy

	now          func() time.Time
	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.LogService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.FromContext(context.Background())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RecordsPolicy == "" {
		opts.RecordsPolicy = services.PolicyReplace
	}
	if opts.MaintenancePolicy == "" {
		opts.MaintenancePolicy = services.PolicyAppend
	}
	if len(opts.RateLimit.Methods) == 0 {
		opts.RateLimit.Methods = ratelimit.DefaultConfig().Methods
	}

	logger := opts.Logger.WithComponent(applog.ComponentHTTP)
	s := &Server{
		svc:               svc,
		logger:            logger,
		events:            applog.NewStructuredLogger(logger),
		detector:          security.NewDetector(),
		limiter:           ratelimit.NewLimiter(opts.RateLimit),
		recordsPolicy:     opts.RecordsPolicy,
		maintenancePolicy: opts.MaintenancePolicy,
		now:               opts.Now,
	}
	s.started = s.now()
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(staticMaxAge)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ui/month-overview", s.handleMonthOverview)

	mux.HandleFunc("GET /api/records", s.handleListRecords)
	mux.HandleFunc("POST /api/records", s.handleCreateRecord)
	mux.HandleFunc("POST /api/records/preview", s.handlePreviewRecord)
	mux.HandleFunc("GET /api/records/{id}", s.handleGetRecord)
	mux.HandleFunc("PUT /api/records/{id}", s.handleUpdateRecord)
	mux.HandleFunc("DELETE /api/records/{id}", s.handleDeleteRecord)

	mux.HandleFunc("GET /api/months", s.handleMonths)
	mux.HandleFunc("GET /api/stats", s.handleMonthlyStats)
	mux.HandleFunc("GET /api/stats/total", s.handleTotalStats)
	mux.HandleFunc("GET /api/stats/report", s.handleStatsReport)

	mux.HandleFunc("GET /api/vehicles", s.handleListVehicles)
	mux.HandleFunc("POST /api/vehicles", s.handleCreateVehicle)
	mux.HandleFunc("PUT /api/vehicles/{id}", s.handleUpdateVehicle)
	mux.HandleFunc("DELETE /api/vehicles/{id}", s.handleDeleteVehicle)
	mux.HandleFunc("POST /api/vehicles/{id}/default", s.handleSetDefaultVehicle)
	mux.HandleFunc("POST /api/vehicles/{id}/photo", s.handleVehiclePhoto)

	mux.HandleFunc("GET /api/stations", s.handleListStations)
	mux.HandleFunc("POST /api/stations", s.handleCreateStation)

	mux.HandleFunc("GET /api/maintenance", s.handleListMaintenance)
	mux.HandleFunc("POST /api/maintenance", s.handleCreateMaintenance)
	mux.HandleFunc("GET /api/maintenance/due", s.handleDueMaintenance)
	mux.HandleFunc("PUT /api/maintenance/{id}", s.handleUpdateMaintenance)
	mux.HandleFunc("DELETE /api/maintenance/{id}", s.handleDeleteMaintenance)

	mux.Handle("GET /export/records.csv", security.NoStore(http.HandlerFunc(s.handleExportRecords)))
	mux.Handle("GET /export/maintenance.csv", security.NoStore(http.HandlerFunc(s.handleExportMaintenance)))
	mux.HandleFunc("POST /export/drive", s.handleDriveBackup)
	mux.HandleFunc("POST /import/records", s.handleImportRecords)
	mux.HandleFunc("POST /import/maintenance", s.handleImportMaintenance)
}

// middleware wraps h, outermost first: tracing, scanner filter, security
// headers, then the write rate limit.
func (s *Server) middleware(h http.Handler) http.Handler {
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(func(r *http.Request, reason string) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request blocked",
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			"reason", reason)
	})(h)
	return s.tracer.Middleware(h)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	s.writeMessage(w, r, http.StatusTooManyRequests, "too many requests, try again later")
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) today() core.Date {
	return core.DateOf(s.now())
}
