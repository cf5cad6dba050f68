package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"

	"studyboard/board"
	"studyboard/domain"
)

// HTTPClient talks to the board API on behalf of one bearer token.
type HTTPClient struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

var (
	_ Remote     = (*HTTPClient)(nil)
	_ Subscriber = (*HTTPClient)(nil)
)

// NewHTTPClient creates a client for the API at baseURL.
func NewHTTPClient(baseURL, bearer string) *HTTPClient {
	return &HTTPClient{BaseURL: baseURL, Bearer: bearer, HTTP: &http.Client{}}
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends a JSON request and decodes a successful response into out.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrTransient, err)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrTransient, err)
	}
	return nil
}

// responseError maps an API error response to a domain sentinel.
func responseError(resp *http.Response) error {
	var body apiError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err := sonic.Unmarshal(data, &body); err != nil || body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}
	var kind error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		kind = domain.ErrInvalidArgument
	case http.StatusNotFound:
		kind = domain.ErrNotFound
	case http.StatusUnauthorized:
		kind = domain.ErrUnauthenticated
	default:
		kind = domain.ErrTransient
	}
	return fmt.Errorf("%w: %s (status %d)", kind, body.Message, resp.StatusCode)
}

func (c *HTTPClient) GetBoard(ctx context.Context) (domain.Board, error) {
	var b domain.Board
	if err := c.do(ctx, http.MethodGet, "/api/board", nil, &b); err != nil {
		return domain.Board{}, err
	}
	return b, nil
}

func (c *HTTPClient) CreateTask(ctx context.Context, in board.CreateInput) (domain.Task, error) {
	body := map[string]any{"title": in.Title}
	if in.Description != "" {
		body["description"] = in.Description
	}
	if in.Status != "" {
		body["status"] = in.Status
	}
	if in.Priority != "" {
		body["priority"] = in.Priority
	}
	if in.DueDate != nil {
		body["dueDate"] = in.DueDate.UTC().Format(time.RFC3339)
	}
	var task domain.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", body, &task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (c *HTTPClient) UpdateTask(ctx context.Context, taskID string, in board.UpdateInput) (domain.Task, error) {
	body := map[string]any{}
	if in.Title != nil {
		body["title"] = *in.Title
	}
	if in.Priority != nil {
		body["priority"] = *in.Priority
	}
	switch {
	case in.ClearDescription:
		body["description"] = nil
	case in.Description != nil:
		body["description"] = *in.Description
	}
	switch {
	case in.ClearDueDate:
		body["dueDate"] = nil
	case in.DueDate != nil:
		body["dueDate"] = in.DueDate.UTC().Format(time.RFC3339)
	}
	var task domain.Task
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(taskID), body, &task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (c *HTTPClient) MoveTask(ctx context.Context, taskID string, toStatus domain.Status, toIndex int) (domain.Task, error) {
	body := map[string]any{"toStatus": toStatus, "toIndex": toIndex}
	var task domain.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/move", body, &task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func (c *HTTPClient) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(taskID), nil, nil)
}
