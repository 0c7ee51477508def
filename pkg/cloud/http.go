// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cloud

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

	"github.com/jeremyhahn/go-docvault/pkg/correlation"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

// TokenSource supplies the bearer token for outbound requests.
// *identity.TokenProvider satisfies it.
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// HTTPConfig configures an HTTPStore.
type HTTPConfig struct {
	// BaseURL of the sync server, e.g. https://sync.example.com
	BaseURL string

	// Tokens authenticates requests (optional)
	Tokens TokenSource

	// Client defaults to an http.Client with Timeout
	Client *http.Client

	// Timeout for the default client (default: 30s)
	Timeout time.Duration
}

// HTTPStore uploads records to a docvault sync server.
type HTTPStore struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
}

// UpsertRequest is the body of a record PUT.
type UpsertRequest struct {
	Payload types.EncryptedPayload `json:"payload"`
}

// NewHTTPStore creates an HTTP adapter.
func NewHTTPStore(cfg *HTTPConfig) (*HTTPStore, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("cloud: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("cloud: invalid base url: %w", err)
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPStore{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  cfg.Tokens,
		client:  client,
	}, nil
}

// Name returns "http".
func (h *HTTPStore) Name() string { return "http" }

// UpsertEncrypted PUTs the record. Any non-2xx response is a failure.
func (h *HTTPStore) UpsertEncrypted(ctx context.Context, userID, category, id string, payload *types.EncryptedPayload) (err error) {
	start := time.Now()
	defer func() { observe(h.Name(), start, err) }()

	if err := checkUpsert(userID, category, id, payload); err != nil {
		return err
	}

	body, err := json.Marshal(UpsertRequest{Payload: *payload})
	if err != nil {
		return syncErr(h.Name(), err)
	}

	endpoint := fmt.Sprintf("%s/v1/users/%s/records/%s/%s", h.baseURL,
		url.PathEscape(userID), url.PathEscape(category), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return syncErr(h.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cid := correlation.GetCorrelationID(ctx); cid != "" {
		req.Header.Set(correlation.CorrelationIDHeader, cid)
	}
	if h.tokens != nil {
		token, err := h.tokens.BearerToken(ctx)
		if err != nil {
			return syncErr(h.Name(), err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return syncErr(h.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return syncErr(h.Name(), fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var _ Adapter = (*HTTPStore)(nil)
