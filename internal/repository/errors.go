package repository

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrInvalidCursor is returned when a pagination cursor cannot be decoded.
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// SQLSTATE codes the repository translates into domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func isUniqueViolation(err error) bool     { return hasSQLState(err, pgUniqueViolation) }
func isForeignKeyViolation(err error) bool { return hasSQLState(err, pgForeignKeyViolation) }
func isCheckViolation(err error) bool      { return hasSQLState(err, pgCheckViolation) }

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// PaginationCursor is the keyset position after the last row of a page.
type PaginationCursor struct {
	ID        string
	CreatedAt time.Time
}

// encodeCursor renders c as "<unix nanos>.<id>" in unpadded URL-safe base64.
func encodeCursor(c *PaginationCursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + "." + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*PaginationCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), ".")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &PaginationCursor{ID: id, CreatedAt: time.Unix(0, n).UTC()}, nil
}
