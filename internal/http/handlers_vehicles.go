package http

import (
	"errors"
	"io"
	"net/http"

	"chargelog/internal/core"
	applog "chargelog/internal/log"
	"chargelog/internal/photo"
)

// multipart overhead allowed on top of the photo itself
const photoFormSlack = 1 << 20

func vehicleFromRequest(r *http.Request) (core.Vehicle, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return core.Vehicle{}, err
	}
	f := p.Fields()
	v := core.Vehicle{
		Name:         f.String("name"),
		PurchaseDate: f.Date("purchaseDate"),
	}
	return v, f.Err()
}

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vs, err := s.svc.ListVehicles(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := vehicleFromRequest(r)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	v, err = s.svc.AddVehicle(r.Context(), v)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Vehicle added",
		applog.FieldVehicleID, v.ID, "is_default", v.IsDefault)
	NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerVehiclesChanged().
		JSON(v).
		Write(w)
}

func (s *Server) handleUpdateVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := vehicleFromRequest(r)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	v.ID = r.PathValue("id")
	v, err = s.svc.UpdateVehicle(r.Context(), v)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewHTMXResponse().TriggerVehiclesChanged().JSON(v).Write(w)
}

func (s *Server) handleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteVehicle(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	NewHTMXResponse().Status(http.StatusNoContent).TriggerVehiclesChanged().Write(w)
}

func (s *Server) handleSetDefaultVehicle(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.SetDefaultVehicle(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	vs, err := s.svc.ListVehicles(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	NewHTMXResponse().TriggerVehiclesChanged().JSON(vs).Write(w)
}

// handleVehiclePhoto accepts a multipart upload in the "photo" field.
func (s *Server) handleVehiclePhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, photo.MaxUploadBytes+photoFormSlack)
	if err := r.ParseMultipartForm(photo.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeMessage(w, r, http.StatusRequestEntityTooLarge, "photo too large")
			return
		}
		s.writeError(w, r, applog.OpUpdate, badRequest("invalid upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("photo")
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, badRequest("missing photo field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, badRequest("read photo: %v", err))
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	v, err := s.svc.SetVehiclePhoto(r.Context(), r.PathValue("id"), data, contentType)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewHTMXResponse().TriggerVehiclesChanged().JSON(v).Write(w)
}

func (s *Server) handleListStations(w http.ResponseWriter, r *http.Request) {
	sts, err := s.svc.ListStations(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, sts)
}

func (s *Server) handleCreateStation(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	f := p.Fields()
	st := core.Station{
		Vendor:               f.String("vendor"),
		Name:                 f.String("name"),
		DefaultSpecification: f.Specification("specification"),
		DefaultPricePerUnit:  f.Decimal("pricePerUnit"),
	}
	if err := f.Err(); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	st, err := s.svc.AddStation(r.Context(), st)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}
