// Package client talks to the shipyard daemon over its HTTP API and
// health socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RevCBH/shipyard/internal/events"
)

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the API served at baseURL
// (e.g. "http://127.0.0.1:8420").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health reports whether the API answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// ListProjects returns the projects visible to the caller.
func (c *Client) ListProjects(ctx context.Context) ([]*Project, error) {
	var out []*Project
	if err := c.do(ctx, http.MethodGet, "/api/v1/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateProject clones a repository into a new project.
func (c *Client) CreateProject(ctx context.Context, req CreateRequest) (*Project, error) {
	var out Project
	if err := c.do(ctx, http.MethodPost, "/api/v1/projects", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadProject creates a project from a zip archive on disk.
func (c *Client) UploadProject(ctx context.Context, name, archivePath string, autoRestart bool) (*Project, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("name", name); err != nil {
		return nil, err
	}
	if err := mw.WriteField("auto_restart", strconv.FormatBool(autoRestart)); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("archive", filepath.Base(archivePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/projects", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out Project
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProject returns a project with its live status.
func (c *Client) GetProject(ctx context.Context, id string) (*ProjectDetails, error) {
	var out ProjectDetails
	if err := c.do(ctx, http.MethodGet, projectPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProject stops and removes a project.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, projectPath(id, ""), nil, nil)
}

// Operation runs "start", "stop" or "restart". When async is set the
// daemon answers PENDING without waiting.
func (c *Client) Operation(ctx context.Context, id, operation string, async bool) (*OperationResult, error) {
	path := projectPath(id, "/"+url.PathEscape(strings.ToLower(operation)))
	if async {
		path += "?async=true"
	}
	var out OperationResult
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns a project's container status.
func (c *Client) Status(ctx context.Context, id string) (*Info, error) {
	var out Info
	if err := c.do(ctx, http.MethodGet, projectPath(id, "/status"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetAutoRestart turns automatic restarts on or off.
func (c *Client) SetAutoRestart(ctx context.Context, id string, enabled bool) error {
	body := map[string]bool{"enabled": enabled}
	return c.do(ctx, http.MethodPut, projectPath(id, "/autorestart"), body, nil)
}

// Logs returns the last tail lines of a project's container output.
func (c *Client) Logs(ctx context.Context, id string, tail int) (string, error) {
	path := projectPath(id, "/logs")
	if tail > 0 {
		path += "?tail=" + strconv.Itoa(tail)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", responseError(resp)
	}
	out, err := io.ReadAll(resp.Body)
	return string(out), err
}

// Events returns a project's most recent recorded events, newest first.
func (c *Client) Events(ctx context.Context, id string, limit int) ([]events.Event, error) {
	path := projectPath(id, "/events")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []events.JSONEvent
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return jsonEventsToEvents(out), nil
}

// Watch streams live events, calling handler for each one. With an empty
// projectID all projects are watched. It blocks until ctx is cancelled
// (returns nil) or the stream fails.
func (c *Client) Watch(ctx context.Context, projectID string, handler func(events.Event)) error {
	path := "/api/v1/events"
	if projectID != "" {
		path = projectPath(projectID, "/events/stream")
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return responseError(resp)
	}

	err = readEventStream(resp.Body, handler)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func projectPath(id, suffix string) string {
	return "/api/v1/projects/" + url.PathEscape(id) + suffix
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// defaultTimeout bounds calls made without a deadline by the CLI.
const defaultTimeout = 2 * time.Minute

// WithDefaultTimeout returns ctx bounded by the CLI's request timeout
// unless it already has a deadline.
func WithDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}
