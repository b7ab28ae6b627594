// Package client calls a JSON-RPC 2.0 server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/mnehpets/onerpc/jsonrpc"
)

// maxResponseSize bounds the response body read for one call.
const maxResponseSize = 8 << 20

// Client sends JSON-RPC requests to a single URL. It is safe for concurrent use.
type Client struct {
	url    string
	http   *http.Client
	tokens oauth2.TokenSource
	header http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. The default is
// http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sends "Authorization: Bearer" with a token from ts on
// every call.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithStaticToken is WithTokenSource for a fixed bearer token.
func WithStaticToken(token string) Option {
	return WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Add(key, value) }
}

// New returns a client for the endpoint at url.
func New(url string, opts ...Option) *Client {
	c := &Client{url: url, http: http.DefaultClient, header: make(http.Header)}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens != nil {
		base := c.http.Transport
		hc := *c.http
		hc.Transport = &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, c.tokens), Base: base}
		c.http = &hc
	}
	return c
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonrpc.Error  `json:"error"`
	ID      json.RawMessage `json:"id"`
}

// Call invokes method with params and decodes the result into result, which
// may be nil to discard it. params may be nil, a value encodable as JSON, or
// a json.RawMessage.
//
// Errors reported by the server are returned as *jsonrpc.Error.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	id := uuid.NewString()
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return fmt.Errorf("client: encoding request: %w", err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("client: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("client: decoding response: %w", err)
	}
	if r.Error != nil {
		return r.Error
	}
	var gotID string
	if err := json.Unmarshal(r.ID, &gotID); err != nil || gotID != id {
		return fmt.Errorf("client: response id %s does not match request id %q", r.ID, id)
	}
	if result == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, result); err != nil {
		return fmt.Errorf("client: decoding result: %w", err)
	}
	return nil
}

// Notify sends a notification. The server sends no response.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	body, err := json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{"2.0", method, params})
	if err != nil {
		return fmt.Errorf("client: encoding request: %w", err)
	}
	resp, err := c.post(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return resp, nil
}

// HTTPError is a non-JSON-RPC failure, such as a 429 from a rate limiter.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("client: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("client: http status %d: %s", e.StatusCode, e.Body)
}

// Code returns the JSON-RPC code of err, if err is or wraps a *jsonrpc.Error.
func Code(err error) (int, bool) {
	var je *jsonrpc.Error
	if errors.As(err, &je) {
		return je.Code, true
	}
	return 0, false
}
