// Package transport is the HTTP and websocket client for the appgen API,
// used by the CLI's client commands.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/agentstation/appgen/internal/runs"
	"github.com/agentstation/appgen/internal/store"
	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultTimeout

// Client talks to one appgen server.
type Client struct {
	baseURL *url.URL
	prefix  string
	http    *http.Client
	auth    Authenticator
	apiKey  string
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends apiKey with every request using auth.
func WithAPIKey(apiKey string, auth Authenticator) Option {
	return func(c *Client) {
		c.apiKey = apiKey
		if auth != nil {
			c.auth = auth
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithPrefix sets the REST path prefix.
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = "/" + strings.Trim(prefix, "/")
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.WrapValidation("server_url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NewValidationError("server_url", baseURL, "scheme must be http or https")
	}
	c := &Client{
		baseURL: u,
		prefix:  constants.DefaultPathPrefix,
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
		auth:    &HeaderAuth{Header: "X-API-Key"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Project endpoints

// Nodes lists the pipeline nodes the server can run.
func (c *Client) Nodes(ctx context.Context) ([]NodeInfo, error) {
	var out struct {
		Nodes []NodeInfo `json:"nodes"`
	}
	if err := c.do(ctx, http.MethodGet, c.api("nodes"), nil, &out); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

// CreateProject creates a project and returns its record.
func (c *Client) CreateProject(ctx context.Context, name, requirements string) (*store.Project, error) {
	body := map[string]string{"name": name, "requirements": requirements}
	var project store.Project
	if err := c.do(ctx, http.MethodPost, c.api("projects"), body, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// ListProjects lists every project.
func (c *Client) ListProjects(ctx context.Context) ([]*store.Project, error) {
	var out struct {
		Projects []*store.Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, c.api("projects"), nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// GetProject returns one project's current status.
func (c *Client) GetProject(ctx context.Context, projectID string) (*store.Project, error) {
	var project store.Project
	if err := c.do(ctx, http.MethodGet, c.api("projects", projectID), nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// Run endpoints

// RunStarted is the answer to a run request.
type RunStarted struct {
	Status    string `json:"status"`
	ProjectID string `json:"project_id"`
	RunID     string `json:"run_id"`
}

// StartRun asks the server to run the project's pipeline, optionally
// restricted to nodes.
func (c *Client) StartRun(ctx context.Context, projectID string, nodes []string) (*RunStarted, error) {
	var out RunStarted
	body := map[string]any{}
	if len(nodes) > 0 {
		body["nodes"] = nodes
	}
	if err := c.do(ctx, http.MethodPost, c.api("projects", projectID, "run"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelRun cancels the project's active run.
func (c *Client) CancelRun(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodPost, c.api("projects", projectID, "cancel"), nil, nil)
}

// Runs lists the active runs.
func (c *Client) Runs(ctx context.Context) ([]runs.Info, error) {
	var out struct {
		Runs []runs.Info `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, c.api("runs"), nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

// NodeInfo mirrors a pipeline node as listed by the server.
type NodeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Timeout     string `json:"timeout"`
	Command     bool   `json:"command"`
}

// api builds an absolute URL below the REST prefix.
func (c *Client) api(parts ...string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + c.prefix + "/" + strings.Join(parts, "/")
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.WrapParse("json", "request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.WrapResource("create", "request", method+" "+target, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		c.auth.Apply(req, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WrapIO("request", target, err)
	}
	return DecodeResponse(resp, out)
}
