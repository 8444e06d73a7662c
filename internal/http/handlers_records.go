package http

import (
	"net/http"
	"strings"

	"chargelog/internal/core"
	"chargelog/internal/derive"
	applog "chargelog/internal/log"
	"chargelog/internal/services"
	"chargelog/internal/stats"
)

// recordFromRequest reads a charging session from a JSON or form body.
// Derived fields are ignored; the service recomputes them.
func recordFromRequest(r *http.Request) (core.ChargingRecord, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return core.ChargingRecord{}, err
	}
	f := p.Fields()
	rec := core.ChargingRecord{
		VehicleID:      f.String("vehicleId"),
		Date:           f.Date("date"),
		StartTime:      f.Time("startTime"),
		EndTime:        f.Time("endTime"),
		Duration:       f.Int("duration"),
		Vendor:         f.String("vendor"),
		StationName:    f.String("stationName"),
		Specification:  f.Specification("specification"),
		Power:          f.Decimal("power"),
		Unit:           f.String("unit"),
		PricePerUnit:   f.Decimal("pricePerUnit"),
		PricePerMinute: f.Decimal("pricePerMinute"),
		ChargingFee:    f.Decimal("chargingFee"),
		ParkingFee:     f.Decimal("parkingFee"),
		CurrentMileage: f.Decimal("currentMileage"),
		Notes:          f.String("notes"),
	}
	return rec, f.Err()
}

func warningStrings(ws []derive.Warning) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = string(w)
	}
	return out
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month, err := core.NormalizeMonth(q.Get("month"))
	if err != nil {
		s.writeError(w, r, applog.OpList, badRequest("%v", err))
		return
	}
	year, err := intParam(r, "year")
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	page, err := intParam(r, "page")
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	size, err := intParam(r, "pageSize")
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}

	res, err := s.svc.ListRecords(r.Context(), stats.Query{
		Month:     month,
		Year:      year,
		Keyword:   sanitizeInput(q.Get("keyword")),
		VehicleID: strings.TrimSpace(q.Get("vehicleId")),
		Page:      page,
		PageSize:  size,
	})
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := recordFromRequest(r)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	saved, err := s.svc.AddRecord(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	s.recordSaved(w, r, applog.OpCreate, http.StatusCreated, saved)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := recordFromRequest(r)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	rec.ID = r.PathValue("id")
	saved, err := s.svc.UpdateRecord(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.recordSaved(w, r, applog.OpUpdate, http.StatusOK, saved)
}

func (s *Server) recordSaved(w http.ResponseWriter, r *http.Request, op string, status int, saved services.SavedRecord) {
	rec := saved.Record
	warnings := warningStrings(saved.Derivation.Warnings)
	s.events.LogRecordSaved(r.Context(), op, rec.ID, rec.VehicleID, rec.StationName, rec.Power, rec.ChargingFee, warnings)

	b := NewHTMXResponse().
		Status(status).
		TriggerRecordSaved(rec.Date.MonthKey()).
		JSON(saved)
	if op == applog.OpCreate {
		b.TriggerFormReset()
	}
	if saved.Derivation.HasWarning(derive.WarnNegativeMileage) {
		b.TriggerNotification(NotificationWarning, "Odometer is lower than the previous session", 5000)
	} else {
		b.TriggerSuccessNotification("Charging record saved")
	}
	b.Write(w)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.DeleteRecord(r.Context(), id); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Charging record deleted", applog.FieldRecordID, id)
	NewHTMXResponse().
		Status(http.StatusNoContent).
		TriggerRecordDeleted(id).
		Write(w)
}

// handlePreviewRecord derives the dependent fields of a form in progress.
// Nothing is validated or stored.
func (s *Server) handlePreviewRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := recordFromRequest(r)
	if err != nil {
		s.writeError(w, r, applog.OpValidate, err)
		return
	}
	if rec.VehicleID == "" {
		if v, ok, err := s.svc.DefaultVehicle(r.Context()); err == nil && ok {
			rec.VehicleID = v.ID
		}
	}
	if rec.Date.IsZero() {
		rec.Date = s.today()
	}
	res, err := s.svc.PreviewRecord(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, applog.OpValidate, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	months, err := s.svc.Months(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"months": months})
}

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	st, err := s.svc.MonthlyStats(r.Context(), month)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Month string `json:"month"`
		core.Stats
	}{month, st})
}

func (s *Server) handleTotalStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.TotalStats(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStatsReport(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	rep, err := s.svc.StatsReport(r.Context(), month)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
