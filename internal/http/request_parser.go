// This file implements utilities for parsing and validating HTTP request data.
// Record, vehicle and station forms arrive either as JSON from API clients
// or form-encoded from HTMX, and are read through the same parser.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chargelog/internal/core"
)

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads at most maxJSONBody bytes once and stores them for parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
	if p.err == nil && len(p.body) > maxJSONBody {
		p.err = badRequest("body exceeds %d bytes", maxJSONBody)
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = badRequest("invalid JSON: %v", err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(body)
	if p.err != nil {
		p.err = badRequest("invalid form: %v", p.err)
	}
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was sent, even if empty.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	_, ok := p.formData[key]
	return ok
}

// GetRaw returns the raw body bytes.
func (p *RequestBodyParser) GetRaw() []byte {
	return p.body
}

// ContentType returns the Content-Type header value.
func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// Fields returns a typed reader over the parsed body.
func (p *RequestBodyParser) Fields() *FieldReader {
	return &FieldReader{p: p}
}

// FieldReader reads typed values and keeps the first conversion failure,
// so a handler can read a whole form and check once.
type FieldReader struct {
	p   *RequestBodyParser
	err error
}

func (f *FieldReader) fail(key string, err error) {
	if f.err == nil {
		f.err = invalid(fmt.Errorf("%s: %w", key, err))
	}
}

// String returns the sanitized text value of key.
func (f *FieldReader) String(key string) string {
	return f.p.Get(key)
}

// Date parses key as a calendar day; empty yields the zero date.
func (f *FieldReader) Date(key string) core.Date {
	v := f.p.Get(key)
	if v == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(v)
	if err != nil {
		f.fail(key, err)
	}
	return d
}

// Time parses key as HH:mm; empty yields an unset time.
func (f *FieldReader) Time(key string) core.TimeOfDay {
	t, err := core.ParseTimeOfDay(f.p.Get(key))
	if err != nil {
		f.fail(key, err)
	}
	return t
}

// Decimal parses key as a number; empty yields 0.
func (f *FieldReader) Decimal(key string) float64 {
	v, err := core.ParseDecimal(f.p.Get(key))
	if err != nil {
		f.fail(key, err)
	}
	return v
}

// Int parses key as a whole number; empty yields 0.
func (f *FieldReader) Int(key string) int {
	raw := f.p.Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		f.fail(key, core.ErrInvalidNumber)
	}
	return n
}

// Specification parses key as a connector type.
func (f *FieldReader) Specification(key string) core.Specification {
	spec, err := core.ParseSpecification(f.p.Get(key))
	if err != nil {
		f.fail(key, err)
	}
	return spec
}

// Err returns the first conversion failure, wrapped as a validation error.
func (f *FieldReader) Err() error {
	return f.err
}
