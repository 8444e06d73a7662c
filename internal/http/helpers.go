package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"chargelog/internal/core"
	"chargelog/internal/csvio"
	applog "chargelog/internal/log"
	"chargelog/internal/middleware/trace"
	"chargelog/internal/services"
	"chargelog/internal/store"
)

const maxJSONBody = 1 << 20

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", services.ErrValidation, err)
}

var templateFuncs = template.FuncMap{
	"money":   formatMoney,
	"decimal": func(v float64) string { return core.FormatDecimal(v, 3) },
	"percent": func(v, max float64) int { return barWidth(v, max) },
}

// formatMoney renders an amount with two decimals.
func formatMoney(v float64) string {
	return core.FormatFixed(v, 2)
}

// barWidth scales v against max as a rounded percentage, keeping non-zero
// values visible.
func barWidth(v, max float64) int {
	if max <= 0 || v <= 0 {
		return 0
	}
	w := int(v*100/max + 0.5)
	if w < 2 {
		w = 2
	}
	if w > 100 {
		w = 100
	}
	return w
}

// sanitizeInput strips control characters and bounds the length of free
// text coming from forms.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\t' {
			return ' '
		}
		if r < 0x20 && r != '\n' || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > 1000 {
		s = s[:1000]
	}
	return strings.TrimSpace(s)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewHTMXResponse().Status(status).JSON(v).Write(w)
}

// writeMessage reports a failure as an HTML fragment to HTMX and as
// {"error": msg} to everyone else.
func (s *Server) writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if isHTMX(r) {
		ErrorResponse(status, msg).TriggerErrorNotification(msg).Write(w)
		return
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors to status codes. Internal failures are
// logged and reported with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	var ie *csvio.ImportError
	switch {
	case errors.As(err, &ie):
		logger.WarnContext(ctx, "Import rejected", applog.FieldOperation, op, applog.FieldCount, len(ie.Rows))
		rows := make([]string, len(ie.Rows))
		for i, row := range ie.Rows {
			rows[i] = row.Error()
		}
		if isHTMX(r) {
			s.writeMessage(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "no valid rows to import", "errors": rows})
	case errors.Is(err, errBadRequest):
		s.writeMessage(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrValidation):
		logger.InfoContext(ctx, "Validation failed", applog.FieldOperation, op, applog.FieldError, err)
		s.writeMessage(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.writeMessage(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrBackupUnavailable):
		s.writeMessage(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		s.events.LogError(ctx, "Request failed", err, applog.ComponentHTTP, op,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", ""))
		msg := "internal error, nothing was changed"
		if id := trace.GetRequestID(ctx); id != "" {
			msg += " (request " + id + ")"
		}
		s.writeMessage(w, r, http.StatusInternalServerError, msg)
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("body exceeds %d bytes", tooLarge.Limit)
		}
		if errors.Is(err, core.ErrInvalidDate) || errors.Is(err, core.ErrInvalidTime) {
			return invalid(err)
		}
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

// monthParam reads ?month=YYYY-MM, defaulting to the current month.
func (s *Server) monthParam(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("month")
	if strings.TrimSpace(raw) == "" {
		return s.today().MonthKey(), nil
	}
	month, err := core.NormalizeMonth(raw)
	if err != nil {
		return "", badRequest("%v", err)
	}
	return month, nil
}

// intParam reads a positive integer query parameter, 0 when absent.
func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return n, nil
}
