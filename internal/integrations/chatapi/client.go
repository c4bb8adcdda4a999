package chatapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultPath    = "/api/chat"
)

// Preset is a named pair of request field and reply path used by a known
// backend.
type Preset struct {
	RequestField string
	ReplyPath    string
}

// Presets are the request/response shapes the widget has been deployed against.
var Presets = map[string]Preset{
	"openai": {RequestField: "content", ReplyPath: "choices.0.message.content"},
	"simple": {RequestField: "message", ReplyPath: "response"},
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("chatapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts one user message to a chat backend and extracts the reply.
// The request field and reply path are gjson/sjson paths, so nested shapes
// such as "choices.0.message.content" work.
type Client struct {
	baseURL      string
	path         string
	requestField string
	replyPath    string
	headers      map[string]string
	httpClient   *http.Client
	timeout      time.Duration
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithPath(path string) Option {
	return func(c *Client) {
		c.path = strings.TrimSpace(path)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each request. Zero means no timeout. It applies on top of
// a client given with WithHTTPClient regardless of option order; the caller's
// client is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHeader adds a static header to every request.
func WithHeader(name, value string) Option {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[name] = value
	}
}

// NewClient creates a Client that sends the user text under requestField and
// reads the reply from replyPath.
func NewClient(requestField, replyPath string, opts ...Option) (*Client, error) {
	requestField = strings.TrimSpace(requestField)
	if requestField == "" {
		return nil, errors.New("chatapi: request field must not be empty")
	}
	replyPath = strings.TrimSpace(replyPath)
	if replyPath == "" {
		return nil, errors.New("chatapi: reply path must not be empty")
	}
	c := &Client{
		baseURL:      DefaultBaseURL,
		path:         DefaultPath,
		requestField: requestField,
		replyPath:    replyPath,
		httpClient:   &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := http.Client{}
		if c.httpClient != nil {
			hc = *c.httpClient
		}
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

// NewPresetClient creates a Client using a named preset.
func NewPresetClient(preset string, opts ...Option) (*Client, error) {
	p, ok := Presets[strings.ToLower(strings.TrimSpace(preset))]
	if !ok {
		return nil, fmt.Errorf("chatapi: unknown preset %q", preset)
	}
	return NewClient(p.RequestField, p.ReplyPath, opts...)
}

// URL returns the endpoint the client posts to.
func (c *Client) URL() string {
	return endpointURL(c.baseURL, c.path)
}

func endpointURL(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// resolvedHTTPClient returns the configured HTTP client, or a default without
// a timeout if none was set.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{}
}

// Send posts text and returns the reply found at the configured path.
func (c *Client) Send(ctx context.Context, text string) (string, error) {
	body, err := sjson.SetBytes([]byte(`{}`), c.requestField, text)
	if err != nil {
		return "", fmt.Errorf("chatapi: build request: %w", err)
	}

	url := c.URL()
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("chatapi: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", fmt.Errorf("chatapi: request failed: %w", err)
	}

	return extractReply(raw, c.replyPath)
}

func extractReply(raw []byte, path string) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", errors.New("chatapi: decode response: invalid JSON")
	}
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return "", fmt.Errorf("chatapi: reply field %q missing from response", path)
	}
	if res.Type != gjson.String {
		return "", fmt.Errorf("chatapi: reply field %q is %s, not a string", path, res.Type)
	}
	return res.String(), nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
