// Package remote implements the HTTP client for the sync server.
//
// The server is an external collaborator: it stores one envelope per key
// in a per-user namespace, aggregates resources shared by other accounts,
// and issues invitations and notifications. All calls are scoped by a
// bearer credential; without one the client reports itself unavailable
// and the persistence layer runs local-only.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xdeelord24/ar-task-generator-sub000/internal/schema"
)

// SharedListing is the server's aggregation of every resource shared
// with the authenticated user, as returned by GET /api/shared.
type SharedListing struct {
	Spaces  []*schema.Space  `json:"spaces"`
	Folders []*schema.Folder `json:"folders"`
	Lists   []*schema.List   `json:"lists"`
	Tasks   []*schema.Task   `json:"tasks"`
}

// HTTPError reports a non-2xx server response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Client talks to the sync server. A nil *Client is valid and reports
// unavailable everywhere, so callers can hold one unconditionally.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a client for baseURL authenticated by token. A nil
// httpClient gets a 15 second timeout default. An empty token yields a
// client whose Available() is false.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

// Available reports whether the client holds a credential and can be
// used at all.
func (c *Client) Available() bool {
	return c != nil && c.baseURL != "" && c.token != ""
}

// do issues one JSON request. A nil out skips decoding the body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetEnvelope fetches the server's copy of key. A missing or null value
// returns (nil, nil). Double-encoded envelopes are healed transparently.
func (c *Client) GetEnvelope(ctx context.Context, key string) (*schema.Envelope, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/storage/"+url.PathEscape(key), nil, &raw)
	if err != nil {
		if he, ok := err.(*HTTPError); ok && he.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	env, err := schema.DecodeEnvelope(raw)
	if err != nil {
		// Malformed payloads are treated as absent rather than fatal.
		return nil, nil
	}
	return env, nil
}

// PutEnvelope uploads an envelope under key.
func (c *Client) PutEnvelope(ctx context.Context, key string, env *schema.Envelope) error {
	return c.do(ctx, http.MethodPost, "/api/storage/"+url.PathEscape(key), env, nil)
}

// FetchShared retrieves every resource shared with the current user.
func (c *Client) FetchShared(ctx context.Context) (*SharedListing, error) {
	var listing SharedListing
	if err := c.do(ctx, http.MethodGet, "/api/shared", nil, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// Propagate pushes a changed entity into the owning account's namespace
// so the owner converges even when they are not a live room member.
func (c *Client) Propagate(ctx context.Context, ownerID, entityType string, data any) error {
	body := map[string]any{
		"ownerId": ownerID,
		"type":    entityType,
		"data":    data,
	}
	return c.do(ctx, http.MethodPost, "/api/shared/propagate", body, nil)
}

// LeaveShared abandons the caller's membership of a shared resource.
func (c *Client) LeaveShared(ctx context.Context, resourceType, resourceID string) error {
	body := map[string]string{
		"resourceType": resourceType,
		"resourceId":   resourceID,
	}
	return c.do(ctx, http.MethodPost, "/api/shared/leave", body, nil)
}

// Invitations lists pending invitations addressed to the current user.
func (c *Client) Invitations(ctx context.Context) ([]schema.Invitation, error) {
	var out []schema.Invitation
	if err := c.do(ctx, http.MethodGet, "/api/invitations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AcceptInvitation accepts a pending invitation by id.
func (c *Client) AcceptInvitation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/invitations/"+url.PathEscape(id)+"/accept", nil, nil)
}

// Notifications lists server-generated notifications for the current user.
func (c *Client) Notifications(ctx context.Context) ([]schema.Notification, error) {
	var out []schema.Notification
	if err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
