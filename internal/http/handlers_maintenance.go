package http

import (
	"net/http"

	"chargelog/internal/core"
	applog "chargelog/internal/log"
)

// maintenanceRequest is the editable part of a maintenance record. Line
// totals and the record total are computed by the service.
type maintenanceRequest struct {
	VehicleID       string                 `json:"vehicleId"`
	Date            core.Date              `json:"date"`
	Mileage         float64                `json:"mileage"`
	Type            string                 `json:"type"`
	Location        string                 `json:"location"`
	Description     string                 `json:"description"`
	Items           []core.MaintenanceItem `json:"items"`
	TotalCost       float64                `json:"totalCost"`
	NextMaintenance float64                `json:"nextMaintenance"`
	NextDate        core.Date              `json:"nextDate"`
	Notes           string                 `json:"notes"`
}

func (m maintenanceRequest) record() core.MaintenanceRecord {
	items := make([]core.MaintenanceItem, len(m.Items))
	for i, item := range m.Items {
		item.Name = sanitizeInput(item.Name)
		items[i] = item
	}
	return core.MaintenanceRecord{
		VehicleID:       m.VehicleID,
		Date:            m.Date,
		Mileage:         m.Mileage,
		Type:            sanitizeInput(m.Type),
		Location:        sanitizeInput(m.Location),
		Description:     sanitizeInput(m.Description),
		Items:           items,
		TotalCost:       m.TotalCost,
		NextMaintenance: m.NextMaintenance,
		NextDate:        m.NextDate,
		Notes:           sanitizeInput(m.Notes),
	}
}

func (s *Server) handleListMaintenance(w http.ResponseWriter, r *http.Request) {
	ms, err := s.svc.ListMaintenance(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleCreateMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	m, err := s.svc.AddMaintenance(r.Context(), req.record())
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerMaintenanceChanged().
		JSON(m).
		Write(w)
}

func (s *Server) handleUpdateMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	m := req.record()
	m.ID = r.PathValue("id")
	m, err := s.svc.UpdateMaintenance(r.Context(), m)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewHTMXResponse().TriggerMaintenanceChanged().JSON(m).Write(w)
}

func (s *Server) handleDeleteMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteMaintenance(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	NewHTMXResponse().Status(http.StatusNoContent).TriggerMaintenanceChanged().Write(w)
}

func (s *Server) handleDueMaintenance(w http.ResponseWriter, r *http.Request) {
	due, err := s.svc.DueMaintenance(r.Context(), s.now())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, due)
}
