// Package syncclient is a Go client for the sync API. Poller keeps a local
// copy of a user's keys current without clobbering fresh local edits.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cabinet/cabinet/internal/handler/dto"
	"github.com/cabinet/cabinet/internal/model"
)

const (
	// ClientTimeout is the total request timeout.
	ClientTimeout = 15 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 5 * time.Second

	maxResponseBytes = 8 << 20
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("sync key not found")

// ConflictError is returned by Put when the server holds a newer value.
type ConflictError struct {
	Current *model.SyncEntry
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("sync conflict: server has %q at %d", e.Current.Key, e.Current.UpdatedAt)
}

// APIError is any other non-2xx answer.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sync api: %d %s: %s", e.Status, e.Code, e.Message)
}

// NewHTTPClient creates an HTTP client with bounded timeouts.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 5 * time.Second,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Client calls the sync endpoints with a bearer credential (session JWT or
// API key).
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client. A nil httpClient uses NewHTTPClient.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// List returns entries updated after since together with the server clock.
func (c *Client) List(ctx context.Context, since int64) ([]*model.SyncEntry, int64, error) {
	path := "/api/sync"
	if since > 0 {
		path += "?since=" + strconv.FormatInt(since, 10)
	}

	var body dto.SyncListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, 0, err
	}

	entries := make([]*model.SyncEntry, 0, len(body.Data))
	for _, e := range body.Data {
		entries = append(entries, fromResponse(e))
	}
	return entries, body.ServerTime, nil
}

// Get returns one key.
func (c *Client) Get(ctx context.Context, key string) (*model.SyncEntry, error) {
	var body dto.SyncEntryResponse
	if err := c.do(ctx, http.MethodGet, "/api/sync/"+url.PathEscape(key), nil, &body); err != nil {
		return nil, err
	}
	return fromResponse(body), nil
}

// Put writes a key stamped with updatedAt (unix ms). A *ConflictError
// carries the newer server value.
func (c *Client) Put(ctx context.Context, key string, value json.RawMessage, updatedAt int64) (*model.SyncEntry, error) {
	payload, err := json.Marshal(dto.PutSyncRequest{Value: value, UpdatedAt: updatedAt})
	if err != nil {
		return nil, fmt.Errorf("encode sync value: %w", err)
	}

	var body dto.SyncEntryResponse
	if err := c.do(ctx, http.MethodPut, "/api/sync/"+url.PathEscape(key), payload, &body); err != nil {
		return nil, err
	}
	return fromResponse(body), nil
}

// Delete removes a key.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/api/sync/"+url.PathEscape(key), nil, nil)
}

func fromResponse(e dto.SyncEntryResponse) *model.SyncEntry {
	return &model.SyncEntry{Key: e.Key, Value: e.Value, UpdatedAt: e.UpdatedAt, ChangedAt: e.ChangedAt}
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusConflict:
		var conflict dto.SyncConflictResponse
		if err := json.Unmarshal(data, &conflict); err == nil && conflict.Current.Key != "" {
			return &ConflictError{Current: fromResponse(conflict.Current)}
		}
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	}

	var envelope dto.ErrorResponse
	_ = json.Unmarshal(data, &envelope)
	return &APIError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
}
