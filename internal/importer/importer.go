// Package importer loads Reddit accounts in bulk from xlsx workbooks and
// Google Sheets exports.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/xuri/excelize/v2"

	"github.com/cabinet/cabinet/internal/metrics"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/reddit"
)

// DefaultMaxRows bounds how many data rows one import reads.
const DefaultMaxRows = 1000

// Errors returned by the importer.
var (
	ErrEmptyWorkbook   = errors.New("workbook has no worksheets")
	ErrInvalidWorkbook = errors.New("file is not a valid xlsx workbook")
)

// Column layout of the first worksheet. Row 1 is a header.
const (
	colRedditURL = iota
	colLogin
	colPassword
	colSessionCookie
	colBearerToken
	colNotes
	colStatus
)

// Row is one data row of the worksheet. Number is the 1-based sheet row.
type Row struct {
	Number        int
	RedditURL     string
	Login         string
	Password      string
	SessionCookie string
	BearerToken   string
	Notes         string
	Status        string
}

// Sheet is the parsed worksheet.
type Sheet struct {
	Rows []Row
	// Truncated is set when reading stopped at the row limit.
	Truncated bool
}

// ParseXLSX reads the first worksheet of an xlsx workbook. Reading stops at
// the first row whose first column is empty or after maxRows data rows.
func ParseXLSX(r io.Reader, maxRows int) (*Sheet, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	sheet := &Sheet{}
	number := 0
	for rows.Next() {
		number++
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", number, err)
		}
		if number == 1 {
			continue
		}

		row := Row{
			Number:        number,
			RedditURL:     cell(cols, colRedditURL),
			Login:         cell(cols, colLogin),
			Password:      cell(cols, colPassword),
			SessionCookie: cell(cols, colSessionCookie),
			BearerToken:   cell(cols, colBearerToken),
			Notes:         cell(cols, colNotes),
			Status:        strings.ToLower(cell(cols, colStatus)),
		}
		if row.RedditURL == "" {
			break
		}
		if len(sheet.Rows) == maxRows {
			sheet.Truncated = true
			break
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", sheets[0], err)
	}

	return sheet, nil
}

func cell(cols []string, i int) string {
	if i >= len(cols) {
		return ""
	}
	return strings.TrimSpace(cols[i])
}

// RowError reports why one row was not imported.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Result summarizes an import.
type Result struct {
	Imported  int        `json:"imported"`
	Updated   int        `json:"updated"`
	Skipped   int        `json:"skipped"`
	Truncated bool       `json:"truncated"`
	Errors    []RowError `json:"errors"`
}

// AccountUpserter stores one account, reporting whether it was new.
type AccountUpserter interface {
	UpsertAccount(ctx context.Context, acc *model.RedditAccount) (bool, error)
}

// Importer turns parsed worksheets into stored accounts.
type Importer struct {
	store   AccountUpserter
	maxRows int
	metrics metrics.Recorder
}

// New creates an Importer.
func New(store AccountUpserter, maxRows int, rec metrics.Recorder) *Importer {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Importer{store: store, maxRows: maxRows, metrics: rec}
}

// ImportXLSX parses an xlsx workbook and upserts every row into ownerID's
// cabinet. Row failures are collected and never abort the import.
func (im *Importer) ImportXLSX(ctx context.Context, ownerID string, r io.Reader) (*Result, error) {
	sheet, err := ParseXLSX(r, im.maxRows)
	if err != nil {
		return nil, err
	}
	return im.importRows(ctx, ownerID, sheet)
}

// ImportBytes is ImportXLSX over an in-memory workbook.
func (im *Importer) ImportBytes(ctx context.Context, ownerID string, data []byte) (*Result, error) {
	return im.ImportXLSX(ctx, ownerID, bytes.NewReader(data))
}

func (im *Importer) importRows(ctx context.Context, ownerID string, sheet *Sheet) (*Result, error) {
	result := &Result{Truncated: sheet.Truncated, Errors: []RowError{}}
	seen := make(map[string]bool, len(sheet.Rows))

	for _, row := range sheet.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		acc, err := accountFromRow(ownerID, row)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: row.Number, Error: err.Error()})
			continue
		}
		// Later duplicates in the same sheet are ignored
		if seen[acc.RedditURL] {
			result.Skipped++
			continue
		}
		seen[acc.RedditURL] = true

		inserted, err := im.store.UpsertAccount(ctx, acc)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: row.Number, Error: err.Error()})
			continue
		}
		if inserted {
			result.Imported++
		} else {
			result.Updated++
		}
	}

	im.metrics.AddImportedRows("imported", result.Imported)
	im.metrics.AddImportedRows("updated", result.Updated)
	im.metrics.AddImportedRows("skipped", result.Skipped)
	im.metrics.AddImportedRows("failed", len(result.Errors))
	return result, nil
}

func accountFromRow(ownerID string, row Row) (*model.RedditAccount, error) {
	redditURL, username, err := reddit.NormalizeAccountURL(row.RedditURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %q", err.Error(), row.RedditURL)
	}

	status := model.AccountStatus(row.Status)
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("unknown status %q", row.Status)
	}

	return &model.RedditAccount{
		ID:            ulid.Make().String(),
		UserID:        ownerID,
		RedditURL:     redditURL,
		Username:      username,
		Login:         row.Login,
		Password:      row.Password,
		SessionCookie: row.SessionCookie,
		BearerToken:   row.BearerToken,
		Notes:         model.TrimNotes(row.Notes),
		Status:        status,
	}, nil
}
