// Package api implements the HTTP clients for the three upstreams: the
// metadata API, the streaming API and the application backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/animotaku/animotaku/internal/util"
	"github.com/pkg/errors"
)

var (
	// ErrRateLimited marks an HTTP 429 from an upstream. Callers either
	// retry after a fixed pause (last-watch resolution) or stay silent
	// (the known-flaky endpoints).
	ErrRateLimited = errors.New("rate limited by upstream")

	// ErrNotFound marks an HTTP 404. Grouped with ErrRateLimited under the
	// silent-ignore policy in several flows.
	ErrNotFound = errors.New("not found")

	// ErrUpstream marks a 200 response whose payload carried success=false.
	ErrUpstream = errors.New("upstream reported failure")
)

// IsRateLimited reports whether err is (or wraps) an HTTP 429.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsSilent reports whether err falls under the silent-ignore policy for
// known-flaky endpoints: 404 and 429 are swallowed, everything else surfaces.
func IsSilent(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNotFound)
}

// TokenSource supplies the bearer token for authenticated backend calls.
// An empty string means anonymous; no header is attached.
type TokenSource interface {
	Token() string
}

// Client is a thin JSON-over-HTTPS wrapper around one upstream base URL.
// It owns no retry logic; retry policies are layered by callers.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewClient builds a client for baseURL. httpClient may be nil, in which case
// the shared pooled client is used. tokens may be nil for upstreams that
// never authenticate.
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = util.GetSharedClient()
	}
	return &Client{baseURL: baseURL, http: httpClient, tokens: tokens}
}

// Get issues a GET for path with optional query parameters and decodes the
// JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST with a JSON body and decodes the JSON response into out.
// out may be nil when the response body does not matter.
func (c *Client) Post(ctx context.Context, path string, body interface{}, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Delete issues a DELETE with an optional JSON body.
func (c *Client) Delete(ctx context.Context, path string, body interface{}, out interface{}) error {
	return c.do(ctx, http.MethodDelete, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	util.Debugf("%s %s", method, u)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer safeClose(resp.Body, path)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.Wrapf(ErrRateLimited, "%s %s", method, path)
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(ErrNotFound, "%s %s", method, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.Errorf("%s %s returned %s", method, path, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", path)
	}
	return nil
}

func safeClose(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		util.Warnf("failed to close %s response body: %v", what, err)
	}
}
