package habitbuildersdk

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

	"habitbuilder/internal/calendar"
	"habitbuilder/internal/routine"
)

// Client is a minimal HabitBuilder HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Status    int    `json:"status"`
	CreatedAt string `json:"created_at"`
}

// CategoryAverage is one row of the progress aggregate.
type CategoryAverage struct {
	Category      string  `json:"category"`
	AverageStatus float64 `json:"averageStatus"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// TasksByWeek lists tasks created within [start, end], both inclusive.
func (c *Client) TasksByWeek(ctx context.Context, start, end calendar.Date) ([]Task, error) {
	endpoint := fmt.Sprintf("tasks-by-week?start=%s&end=%s",
		url.QueryEscape(start.String()), url.QueryEscape(end.String()))
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CurrentWeekTasks lists the tasks of the week containing ref.
func (c *Client) CurrentWeekTasks(ctx context.Context, ref time.Time) ([]Task, error) {
	window := calendar.ComputeWeek(ref)
	return c.TasksByWeek(ctx, window.StartDate(), window.EndDate())
}

// AddTask creates one task and returns it with the assigned id.
func (c *Client) AddTask(ctx context.Context, name, category string, status int, createdAt calendar.Date) (Task, error) {
	body := map[string]any{
		"name":     name,
		"category": category,
		"status":   status,
	}
	if !createdAt.IsZero() {
		body["created_at"] = createdAt.String()
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// AddRoutine expands a weekly routine into dated tasks and posts them one
// by one in date order. It stops at the first failed create: earlier tasks
// remain persisted, later ones are never attempted. The returned count is
// the number of tasks that were created.
func (c *Client) AddRoutine(ctx context.Context, name, category string, status int, start calendar.Date, repeatWeekly bool, end *calendar.Date) (int, error) {
	reqs, err := routine.Expand(routine.Template{
		Name:     name,
		Category: category,
		Status:   status,
	}, start, end, repeatWeekly)
	if err != nil {
		return 0, err
	}
	return routine.Submit(ctx, reqs, func(ctx context.Context, r routine.CreateRequest) error {
		_, cerr := c.AddTask(ctx, r.Name, r.Category, r.Status, r.CreatedAt)
		return cerr
	})
}

// UpdateTask rewrites a task's name, category and status.
func (c *Client) UpdateTask(ctx context.Context, id int64, name, category string, status int) error {
	body := map[string]any{
		"name":     name,
		"category": category,
		"status":   status,
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("tasks/%d", id), body, nil)
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("tasks/%d", id), nil, nil)
}

// AverageStatus returns the per-category mean status over [start, end].
func (c *Client) AverageStatus(ctx context.Context, start, end calendar.Date) ([]CategoryAverage, error) {
	endpoint := fmt.Sprintf("average-status?start=%s&end=%s",
		url.QueryEscape(start.String()), url.QueryEscape(end.String()))
	var resp []CategoryAverage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Health checks service liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
