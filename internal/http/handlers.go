package http

import (
	"fmt"
	"net/http"
	"time"

	"chargelog/internal/core"
	applog "chargelog/internal/log"
	"chargelog/internal/stats"
)

// monthOverviewRows caps the session list of the overview partial.
const monthOverviewRows = 100

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"templates": "ok", "store": "ok"}
	status := http.StatusOK
	if s.templates == nil {
		checks["templates"] = "not loaded"
		status = http.StatusServiceUnavailable
	}
	if err := s.svc.Ping(r.Context()); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
			applog.FieldComponent, applog.ComponentStorage, applog.FieldError, err)
		checks["store"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]any{
		"status":    state,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_microseconds", "gauge", "Weighted average response time", traceMetrics.AverageResponseTime)
	metric("rate_limit_hits_total", "counter", "Requests refused by the rate limiter", limitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", limitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Requests blocked as suspicious", securityMetrics.BlockedRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", s.now().Sub(s.started).Seconds()))
}

type indexData struct {
	Today          string
	Month          string
	Months         []string
	Vehicles       []core.Vehicle
	DefaultVehicle string
	Stations       []core.Station
	Specifications []core.Specification
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	if s.templates == nil {
		logger.ErrorContext(ctx, "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			applog.FieldComponent, applog.ComponentTemplate,
			"error_type", applog.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	today := s.today()
	data := indexData{
		Today:          today.String(),
		Month:          today.MonthKey(),
		Specifications: core.Specifications(),
	}

	var err error
	if data.Vehicles, err = s.svc.ListVehicles(ctx); err != nil {
		logger.ErrorContext(ctx, "Vehicle list error", applog.FieldError, err)
	}
	for _, v := range data.Vehicles {
		if v.IsDefault {
			data.DefaultVehicle = v.ID
		}
	}
	if data.Stations, err = s.svc.ListStations(ctx); err != nil {
		logger.ErrorContext(ctx, "Station list error", applog.FieldError, err)
	}
	if data.Months, err = s.svc.Months(ctx); err != nil {
		logger.ErrorContext(ctx, "Month list error", applog.FieldError, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		logger.ErrorContext(ctx, "Index template execution failed", applog.FieldError, err, "template", "index.html")
	}
}

type overviewData struct {
	Month    string
	Summary  core.Stats
	Lifetime core.Stats
	Daily    []stats.DayPoint
	MaxDaily float64
	Stations []stats.StationCount
	Records  []core.ChargingRecord
	More     int
}

// handleMonthOverview renders the monthly overview partial
func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	month, err := s.monthParam(r)
	if err != nil {
		logger.WarnContext(ctx, "Invalid month parameter", applog.FieldMonth, r.URL.Query().Get("month"))
		month = s.today().MonthKey()
	}

	rep, err := s.svc.StatsReport(ctx, month)
	if err != nil {
		logger.ErrorContext(ctx, "Month overview error", applog.FieldError, err, applog.FieldMonth, month)
		_, _ = w.Write([]byte(`<section id="month-overview" class="month-overview"><div class="placeholder">Error loading overview</div></section>`))
		return
	}
	page, err := s.svc.ListRecords(ctx, stats.Query{Month: month, PageSize: monthOverviewRows})
	if err != nil {
		logger.ErrorContext(ctx, "List records error", applog.FieldError, err, applog.FieldMonth, month)
	}

	data := overviewData{
		Month:    month,
		Summary:  rep.Summary,
		Lifetime: rep.Lifetime,
		Daily:    rep.Daily,
		Stations: rep.Stations,
		Records:  page.Records,
		More:     page.Total - len(page.Records),
	}
	for _, d := range rep.Daily {
		if d.Cost > data.MaxDaily {
			data.MaxDaily = d.Cost
		}
	}

	if s.templates == nil {
		_, _ = fmt.Fprintf(w, `<section id="month-overview" class="month-overview"><div class="placeholder">%s: %s</div></section>`,
			month, formatMoney(rep.Summary.TotalCost))
		return
	}
	if err := s.templates.ExecuteTemplate(w, "month_overview.html", data); err != nil {
		logger.ErrorContext(ctx, "Template execution error", applog.FieldError, err, "template", "month_overview.html", applog.FieldMonth, month)
	}
}
