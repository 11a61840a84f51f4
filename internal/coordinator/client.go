// Package coordinator is the HTTP client for the coordinating server: node
// and library-file lookups, file record updates, and runner lifecycle
// reports.
package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"flowrunner/internal/jobstate"
	"flowrunner/internal/library"
	"flowrunner/internal/node"
	"flowrunner/internal/services"
)

const (
	defaultUserAgent   = "FlowRunner-Go/0.1.0"
	defaultHTTPTimeout = 30 * time.Second
)

// Config describes the client configuration.
type Config struct {
	BaseURL    string
	APIToken   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client wraps the coordinator REST API.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("coordinator: base url is required")
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("coordinator: parse base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, token: strings.TrimSpace(cfg.APIToken), http: client}, nil
}

// NodeByAddress looks up the processing node registered for address.
func (c *Client) NodeByAddress(ctx context.Context, address string) (*node.Node, error) {
	var n node.Node
	if err := c.do(ctx, http.MethodGet, []string{"api", "node", "by-address", address}, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// LibraryFile fetches a file record. A missing file returns an error
// matching services.ErrNotFound.
func (c *Client) LibraryFile(ctx context.Context, uid uuid.UUID) (*library.File, error) {
	var f library.File
	if err := c.do(ctx, http.MethodGet, []string{"api", "library-file", uid.String()}, nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// UpdateLibraryFile stores a file record.
func (c *Client) UpdateLibraryFile(ctx context.Context, f *library.File) error {
	return c.do(ctx, http.MethodPut, []string{"api", "library-file"}, f, nil)
}

// DeleteLibraryFile removes a file record.
func (c *Client) DeleteLibraryFile(ctx context.Context, uid uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, []string{"api", "library-file", uid.String()}, nil, nil)
}

// ExistsOnServer reports whether the coordinator can see the file on its
// own storage.
func (c *Client) ExistsOnServer(ctx context.Context, uid uuid.UUID) (bool, error) {
	var exists bool
	err := c.do(ctx, http.MethodGet, []string{"api", "library-file", uid.String(), "exists-on-server"}, nil, &exists)
	return exists, err
}

// Start announces a new runner.
func (c *Client) Start(ctx context.Context, snap jobstate.Snapshot) error {
	return c.do(ctx, http.MethodPost, []string{"api", "runner", "start"}, snap, nil)
}

// Update reports runner progress.
func (c *Client) Update(ctx context.Context, snap jobstate.Snapshot) error {
	return c.do(ctx, http.MethodPost, []string{"api", "runner", "update"}, snap, nil)
}

// Complete reports the final runner state.
func (c *Client) Complete(ctx context.Context, snap jobstate.Snapshot) error {
	return c.do(ctx, http.MethodPost, []string{"api", "runner", "complete"}, snap, nil)
}

type fullLog struct {
	RunnerUID uuid.UUID `json:"RunnerUid"`
	FileUID   uuid.UUID `json:"LibraryFileUid"`
	Log       string    `json:"Log"`
}

// SaveFullLog uploads the complete job log.
func (c *Client) SaveFullLog(ctx context.Context, runnerUID, fileUID uuid.UUID, log string) error {
	return c.do(ctx, http.MethodPost, []string{"api", "runner", "log"}, fullLog{RunnerUID: runnerUID, FileUID: fileUID, Log: log}, nil)
}

func (c *Client) do(ctx context.Context, method string, path []string, in, out any) error {
	endpoint := c.baseURL.JoinPath(path...)
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("coordinator: encode %s request: %w", endpoint.Path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("coordinator: build request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "coordinator", method+" "+endpoint.Path, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return services.Wrap(services.ErrNotFound, "coordinator", method+" "+endpoint.Path, "", nil)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		marker := services.ErrTransient
		if resp.StatusCode < 500 {
			marker = services.ErrConfiguration
		}
		return services.Wrap(marker, "coordinator", method+" "+endpoint.Path, fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(msg))), nil)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("coordinator: decode %s response: %w", endpoint.Path, err)
	}
	return nil
}
