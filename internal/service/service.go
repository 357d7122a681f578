// Package service provides business logic for the application.
package service

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

func newID() string {
	return ulid.Make().String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
