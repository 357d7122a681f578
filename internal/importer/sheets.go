package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// DefaultSheetsBaseURL is where spreadsheets are exported from.
const DefaultSheetsBaseURL = "https://docs.google.com"

// maxSheetBytes caps a downloaded export.
const maxSheetBytes = 20 << 20

// Errors returned for Google Sheets imports.
var (
	ErrInvalidSheetURL = errors.New("not a Google Sheets URL")
	ErrSheetNotPublic  = errors.New("spreadsheet is not shared publicly")
	ErrSheetTooLarge   = errors.New("spreadsheet export is too large")
)

var (
	sheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([A-Za-z0-9_-]{10,})`)
	gidPattern     = regexp.MustCompile(`(?:^|[#&?])gid=(\d+)`)
)

// SheetRef identifies one worksheet of a spreadsheet.
type SheetRef struct {
	ID  string
	GID string
}

// ParseSheetURL extracts the spreadsheet id and optional gid from a share or
// edit URL such as https://docs.google.com/spreadsheets/d/ID/edit#gid=0.
func ParseSheetURL(raw string) (*SheetRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil, ErrInvalidSheetURL
	}
	if host := strings.ToLower(u.Hostname()); host != "docs.google.com" {
		return nil, ErrInvalidSheetURL
	}

	m := sheetIDPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return nil, ErrInvalidSheetURL
	}
	ref := &SheetRef{ID: m[1]}

	if gid := u.Query().Get("gid"); gid != "" {
		ref.GID = gid
	} else if g := gidPattern.FindStringSubmatch(u.Fragment); g != nil {
		ref.GID = g[1]
	}
	return ref, nil
}

// SheetsClient downloads spreadsheets as xlsx.
type SheetsClient struct {
	http    *http.Client
	baseURL string
}

// NewSheetsClient creates a SheetsClient. An empty baseURL uses Google.
func NewSheetsClient(baseURL string, timeout time.Duration) *SheetsClient {
	if baseURL == "" {
		baseURL = DefaultSheetsBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SheetsClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// ExportURL returns the xlsx export URL of ref.
func (c *SheetsClient) ExportURL(ref *SheetRef) string {
	q := url.Values{"format": {"xlsx"}}
	if ref.GID != "" {
		q.Set("gid", ref.GID)
	}
	return c.baseURL + "/spreadsheets/d/" + ref.ID + "/export?" + q.Encode()
}

// Download fetches the spreadsheet behind sheetURL as an xlsx workbook.
func (c *SheetsClient) Download(ctx context.Context, sheetURL string) ([]byte, error) {
	ref, err := ParseSheetURL(sheetURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ExportURL(ref), nil)
	if err != nil {
		return nil, fmt.Errorf("build export request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download spreadsheet: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrSheetNotPublic
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("download spreadsheet: unexpected status %d", resp.StatusCode)
	}
	// Private sheets answer 200 with the sign-in page
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		return nil, ErrSheetNotPublic
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSheetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	if len(data) > maxSheetBytes {
		return nil, ErrSheetTooLarge
	}
	return data, nil
}
