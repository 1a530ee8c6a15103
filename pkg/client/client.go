// Package client talks to a coordinator over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/3leaps/gocrack/pkg/api"
	"github.com/3leaps/gocrack/pkg/directory"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

// DefaultTimeout bounds each request when no http.Client is supplied.
const DefaultTimeout = 10 * time.Second

var (
	// ErrTransport indicates the coordinator could not be reached or failed
	// with a server error. Callers retry these.
	ErrTransport = errors.New("coordinator unavailable")

	// ErrNotFound indicates an unknown minion or task.
	ErrNotFound = errors.New("not found")

	// ErrNotAssigned indicates a task held by another minion.
	ErrNotAssigned = errors.New("task not assigned to this minion")

	// ErrRejected indicates a request the coordinator refused as invalid.
	ErrRejected = errors.New("request rejected")
)

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("coordinator returned %d", e.StatusCode)
	}
	return fmt.Sprintf("coordinator returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the response onto one of the package sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode >= 500:
		return ErrTransport
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return ErrNotAssigned
	default:
		return ErrRejected
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// Client is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for the coordinator at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse coordinator url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("coordinator url must be http or https, got %q", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: DefaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the coordinator address.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) Register(ctx context.Context, req api.RegisterRequest) error {
	return c.do(ctx, http.MethodPost, api.PathRegister, nil, req, nil)
}

func (c *Client) Heartbeat(ctx context.Context, minionID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf(api.HeartbeatTemplate, url.PathEscape(minionID)), nil, nil, nil)
}

func (c *Client) Disconnect(ctx context.Context, minionID string) error {
	return c.do(ctx, http.MethodPost, api.PathDisconnect, nil, api.DisconnectRequest{MinionID: minionID}, nil)
}

func (c *Client) Minions(ctx context.Context) ([]directory.Record, error) {
	var resp api.MinionsResponse
	err := c.do(ctx, http.MethodGet, api.PathMinions, nil, nil, &resp)
	return resp.Minions, err
}

// UploadHashes sends r as a multipart .txt upload.
func (c *Client) UploadHashes(ctx context.Context, filename string, r io.Reader) (api.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(api.UploadFormField, filename)
	if err != nil {
		return api.UploadResponse{}, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return api.UploadResponse{}, fmt.Errorf("read hashes: %w", err)
	}
	if err := mw.Close(); err != nil {
		return api.UploadResponse{}, err
	}

	var resp api.UploadResponse
	err = c.send(ctx, http.MethodPost, api.PathUploadHashes, nil, &buf, mw.FormDataContentType(), &resp)
	return resp, err
}

// GetTask claims the next task. It returns false when none is pending.
func (c *Client) GetTask(ctx context.Context, minionID string) (api.TaskAssignment, bool, error) {
	var task api.TaskAssignment
	q := url.Values{api.QueryMinionID: {minionID}}
	err := c.do(ctx, http.MethodGet, api.PathGetTask, q, nil, &task)
	if err != nil {
		return api.TaskAssignment{}, false, err
	}
	return task, task.TaskID != "", nil
}

// TaskStatus returns the status and current holder of a task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (api.TaskStatusResponse, error) {
	var resp api.TaskStatusResponse
	q := url.Values{api.QueryTaskID: {taskID}}
	if err := c.do(ctx, http.MethodGet, api.PathTaskStatus, q, nil, &resp); err != nil {
		return api.TaskStatusResponse{}, err
	}
	return resp, nil
}

func (c *Client) SubmitResult(ctx context.Context, minionID, taskID, result string) (api.TaskUpdateResponse, error) {
	var resp api.TaskUpdateResponse
	req := api.SubmitResultRequest{MinionID: minionID, TaskID: taskID, Result: result}
	err := c.do(ctx, http.MethodPost, api.PathSubmitResult, nil, req, &resp)
	return resp, err
}

func (c *Client) FailTask(ctx context.Context, minionID, taskID, reason string) (api.TaskUpdateResponse, error) {
	var resp api.TaskUpdateResponse
	req := api.FailTaskRequest{MinionID: minionID, TaskID: taskID, Reason: reason}
	err := c.do(ctx, http.MethodPost, api.PathFailTask, nil, req, &resp)
	return resp, err
}

func (c *Client) AllTasks(ctx context.Context) (map[string]taskstore.Task, error) {
	var resp api.AllTasksResponse
	err := c.do(ctx, http.MethodGet, api.PathAllTasks, nil, nil, &resp)
	return resp.Tasks, err
}

func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	var resp api.StatusResponse
	err := c.do(ctx, http.MethodGet, api.PathStatus, nil, nil, &resp)
	return resp, err
}

func (c *Client) Version(ctx context.Context) (api.VersionResponse, error) {
	var resp api.VersionResponse
	err := c.do(ctx, http.MethodGet, api.PathVersion, nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, query, body, contentType, out)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrTransport, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var env struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.RequestID = env.Error.RequestID
	}
	return apiErr
}
