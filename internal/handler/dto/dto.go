// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// ErrorResponse is the error envelope every failed request returns.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pagination provides cursor-based pagination info.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ListResponse wraps a list of items.
type ListResponse[T any] struct {
	Data []T `json:"data"`
}

// NewListResponse converts models with fn, never returning a nil Data slice.
func NewListResponse[M any, T any](items []M, fn func(M) T) ListResponse[T] {
	out := make([]T, 0, len(items))
	for _, it := range items {
		out = append(out, fn(it))
	}
	return ListResponse[T]{Data: out}
}
