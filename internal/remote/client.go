// Package remote talks to the snapshot storage service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kittclouds/leakr/internal/snapshot"
)

// ErrUnauthorized is returned when the service rejects the bearer token.
var ErrUnauthorized = errors.New("remote: unauthorized")

// ErrNoToken is returned when the TokenSource has nothing to offer.
var ErrNoToken = errors.New("remote: no access token")

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote: %s failed: %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("remote: %s failed: %d", e.Op, e.Status)
}

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenSource
	Logger  *slog.Logger
}

type Option func(*Client)

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.Tokens = ts
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.HTTP = httpClient
		}
	}
}

// WithTimeout sets the request timeout on a copy of the client's
// http.Client, so a client passed to WithHTTPClient is left as is.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.HTTP
			hc.Timeout = d
			c.HTTP = &hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type fileInfo struct {
	Filename  string `json:"filename"`
	UserID    string `json:"userID"`
	Timestamp string `json:"timestamp"`
	Iteration string `json:"iteration"`
}

// List returns the snapshots stored for owner. Entries whose filename does
// not follow the snapshot scheme are dropped. An owner with nothing stored
// yields an empty list.
func (c *Client) List(ctx context.Context, owner string) ([]snapshot.Info, error) {
	resp, err := c.do(ctx, http.MethodGet, "/info/user/"+url.PathEscape(owner), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := checkStatus("list", resp); err != nil {
		return nil, err
	}

	var raw []fileInfo
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("remote: list: decode response: %w", err)
	}
	out := make([]snapshot.Info, 0, len(raw))
	for _, fi := range raw {
		info, err := snapshot.Parse(fi.Filename)
		if err != nil {
			c.Logger.Warn("ignoring remote file", "filename", fi.Filename, "error", err)
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// Download fetches one snapshot by filename.
func (c *Client) Download(ctx context.Context, filename string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/download/file/"+url.PathEscape(filename), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus("download", resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: download %s: %w", filename, err)
	}
	return data, nil
}

// Upload stores data under filename.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("filename", filename); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/upload", &body, mw.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus("upload", resp)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	if c.BaseURL == "" {
		return nil, errors.New("remote: no storage URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := c.applyHeaders(ctx, req); err != nil {
		return nil, err
	}
	return c.HTTP.Do(req)
}

func (c *Client) applyHeaders(ctx context.Context, req *http.Request) error {
	if c.Tokens == nil {
		return nil
	}
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	se := &StatusError{Op: op, Status: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if b, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		if json.Unmarshal(b, &payload) == nil && payload.Error != "" {
			se.Message = payload.Error
		} else {
			se.Message = strings.TrimSpace(string(b))
		}
	}
	return se
}
