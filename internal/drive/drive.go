// Package drive uploads CSV backups to Google Drive with the user's OAuth
// token. Only files created by the application are visible to it
// (drive.file scope).
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
)

const csvMimeType = "text/csv"

var (
	ErrMissingClient = errors.New("missing OAuth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	ErrMissingToken  = errors.New("missing OAuth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE, or run oauth-init)")
)

// Credentials locate the OAuth client and token. Inline JSON wins over files.
type Credentials struct {
	ClientJSON string
	ClientFile string
	TokenJSON  string
	TokenFile  string
}

type Client struct {
	svc      *gdrive.Service
	folderID string
}

// New builds a Drive client for the given credentials. Files are created in
// folderID, or in the Drive root when it is empty.
func New(ctx context.Context, creds Credentials, folderID string) (*Client, error) {
	cfg, err := LoadOAuthConfig(creds.ClientJSON, creds.ClientFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(creds.TokenJSON, creds.TokenFile)
	if err != nil {
		return nil, err
	}

	// refreshes go through the pooled client too
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	svc, err := gdrive.NewService(ctx, goption.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	slog.InfoContext(ctx, "Google Drive service created", "component", "drive", "folder_id", folderID)
	return NewWithService(svc, folderID), nil
}

// NewWithService wraps an existing service.
func NewWithService(svc *gdrive.Service, folderID string) *Client {
	return &Client{svc: svc, folderID: strings.TrimSpace(folderID)}
}

// LoadOAuthConfig reads an OAuth client definition, as downloaded from the
// Google Cloud console, and requests the drive.file scope.
func LoadOAuthConfig(inline, file string) (*oauth2.Config, error) {
	b, err := readSecret(inline, file)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if b == nil {
		return nil, ErrMissingClient
	}
	cfg, err := google.ConfigFromJSON(b, gdrive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// LoadToken reads a token saved by oauth-init.
func LoadToken(inline, file string) (*oauth2.Token, error) {
	b, err := readSecret(inline, file)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if b == nil {
		return nil, ErrMissingToken
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrMissingToken
	}
	return &tok, nil
}

func readSecret(inline, file string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if f := strings.TrimSpace(file); f != "" {
		return os.ReadFile(f)
	}
	return nil, nil
}

// Upload stores content as a CSV file called name. A file of the same name
// created earlier by the application is overwritten, so repeated backups on
// one day keep a single file. It returns the Drive file ID.
func (c *Client) Upload(ctx context.Context, name string, content []byte) (string, error) {
	if c.svc == nil {
		return "", errors.New("drive service not initialized")
	}

	existing, err := c.find(ctx, name)
	if err != nil {
		return "", err
	}

	var f *gdrive.File
	if existing != "" {
		f, err = c.svc.Files.Update(existing, &gdrive.File{}).
			Media(bytes.NewReader(content), googleapi.ContentType(csvMimeType)).
			Fields("id").
			Context(ctx).
			Do()
	} else {
		meta := &gdrive.File{Name: name, MimeType: csvMimeType}
		if c.folderID != "" {
			meta.Parents = []string{c.folderID}
		}
		f, err = c.svc.Files.Create(meta).
			Media(bytes.NewReader(content), googleapi.ContentType(csvMimeType)).
			Fields("id").
			Context(ctx).
			Do()
	}
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}

	slog.InfoContext(ctx, "Uploaded backup to Drive",
		"component", "drive",
		"file", name,
		"drive_file_id", f.Id,
		"bytes", len(content),
		"replaced", existing != "")
	return f.Id, nil
}

func (c *Client) find(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	if c.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(c.folderID))
	}
	list, err := c.svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("look up %s: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// newHTTPClientWithPooling creates an HTTP client for the Drive API with
// connection pooling and timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   2 * time.Minute,
	}
}
