package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	applog "chargelog/internal/log"
	"chargelog/internal/services"
)

// CSV uploads are bounded well above any realistic personal log.
const maxImportBytes = 8 << 20

type importResponse struct {
	Policy   services.ImportPolicy `json:"policy"`
	Imported int                   `json:"imported"`
	Rejected int                   `json:"rejected"`
	Errors   []string              `json:"errors,omitempty"`
}

func (s *Server) handleExportRecords(w http.ResponseWriter, r *http.Request) {
	s.writeExport(w, r, "records", s.svc.ExportRecordsCSV)
}

func (s *Server) handleExportMaintenance(w http.ResponseWriter, r *http.Request) {
	s.writeExport(w, r, "maintenance", s.svc.ExportMaintenanceCSV)
}

func (s *Server) writeExport(w http.ResponseWriter, r *http.Request, kind string, export func(context.Context) (services.Export, error)) {
	exp, err := export(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpExport, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "CSV exported",
		applog.FieldOperation, applog.OpExport, "kind", kind, "file", exp.Name, "bytes", len(exp.Content))

	NewHTMXResponse().
		Header("Content-Type", "text/csv; charset=utf-8").
		Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Name)).
		Header("Content-Length", strconv.Itoa(len(exp.Content))).
		Body(exp.Content).
		Write(w)
}

func (s *Server) handleImportRecords(w http.ResponseWriter, r *http.Request) {
	s.runImport(w, r, "records", s.recordsPolicy, s.svc.ImportRecordsCSV)
}

func (s *Server) handleImportMaintenance(w http.ResponseWriter, r *http.Request) {
	s.runImport(w, r, "maintenance", s.maintenancePolicy, s.svc.ImportMaintenanceCSV)
}

type importFunc func(context.Context, io.Reader, services.ImportPolicy) (services.ImportResult, error)

func (s *Server) runImport(w http.ResponseWriter, r *http.Request, kind string, fallback services.ImportPolicy, run importFunc) {
	data, err := readUpload(w, r)
	if err != nil {
		s.writeError(w, r, applog.OpImport, err)
		return
	}

	policy := fallback
	raw := r.URL.Query().Get("policy")
	if raw == "" && r.MultipartForm != nil {
		if vs := r.MultipartForm.Value["policy"]; len(vs) > 0 {
			raw = vs[0]
		}
	}
	if raw != "" {
		p, err := services.ParseImportPolicy(raw)
		if err != nil {
			s.writeError(w, r, applog.OpImport, invalid(err))
			return
		}
		policy = p
	}

	res, err := run(r.Context(), bytes.NewReader(data), policy)
	if err != nil {
		s.writeError(w, r, applog.OpImport, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "CSV imported",
		applog.FieldOperation, applog.OpImport,
		applog.FieldPolicy, string(res.Policy),
		applog.FieldCount, res.Imported,
		"kind", kind,
		"rejected", len(res.Rejected))

	b := NewHTMXResponse().TriggerDataImported(kind, res.Imported)
	msg := fmt.Sprintf("Imported %d %s rows", res.Imported, kind)
	if len(res.Rejected) > 0 {
		b.TriggerNotification(NotificationWarning, fmt.Sprintf("%s, skipped %d", msg, len(res.Rejected)), 5000)
	} else {
		b.TriggerSuccessNotification(msg)
	}
	b.JSON(importResponse{
		Policy:   res.Policy,
		Imported: res.Imported,
		Rejected: len(res.Rejected),
		Errors:   res.Errors(),
	}).Write(w)
}

// readUpload returns the CSV from the "file" field of a multipart form, or
// the raw body for any other content type. A multipart form may also carry
// the import policy in its "policy" field.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImportBytes); err != nil {
			return nil, uploadError(err)
		}
		defer r.MultipartForm.RemoveAll()
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, badRequest("missing file field")
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, uploadError(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, badRequest("empty upload")
	}
	return data, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return badRequest("upload exceeds %d bytes", tooLarge.Limit)
	}
	return badRequest("invalid upload: %v", err)
}

// handleDriveBackup queues a backup to Google Drive. The worker performs it.
func (s *Server) handleDriveBackup(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RequestBackup(r.Context()); err != nil {
		s.writeError(w, r, applog.OpBackup, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Backup requested", applog.FieldOperation, applog.OpBackup)
	NewHTMXResponse().
		Status(http.StatusAccepted).
		TriggerSuccessNotification("Backup queued").
		JSON(map[string]string{"status": "queued"}).
		Write(w)
}
