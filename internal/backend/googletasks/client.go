// Package googletasks implements service.Remote using the Google Tasks API.
//
// Google Tasks identifies tasks by opaque strings. The client maps each one to
// a stable numeric id and keeps a reverse map, refreshed by listing, to send
// updates and deletes.
package googletasks

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"offtask/internal/config"
	"offtask/internal/service"
)

const (
	// DefaultListID is the special ID for the default list.
	DefaultListID = "@default"

	// PageSize is the number of tasks per page.
	PageSize = 100

	// DefaultAPITimeout bounds each API call unless configured otherwise.
	DefaultAPITimeout = 10 * time.Second

	// TasksScope is the OAuth scope for Google Tasks.
	TasksScope = "https://www.googleapis.com/auth/tasks"

	// ids stay below 2^53 so they survive a round trip through JSON numbers.
	idMask = 1<<53 - 1
)

// Client implements service.Remote using Google Tasks API.
type Client struct {
	svc     *tasks.Service
	listID  string
	timeout time.Duration

	mu  sync.Mutex
	ids map[int64]string
}

// New creates a client authorised by the stored login.
// Requires oauth_client.json and token.json in the config directory.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	oauthConfig, err := OAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	token, err := LoadToken(cfg.TokenPath())
	if err != nil {
		return nil, err
	}
	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, token))

	c, err := NewWithHTTPClient(ctx, httpClient, cfg.Settings.Google.ListID)
	if err != nil {
		return nil, err
	}
	if cfg.Settings.APITimeout > 0 {
		c.timeout = cfg.Settings.APITimeout
	}
	return c, nil
}

// NewWithHTTPClient creates a client with a custom HTTP client.
// Extra options (such as option.WithEndpoint) are passed to the API service.
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, listID string, opts ...option.ClientOption) (*Client, error) {
	if listID == "" {
		listID = DefaultListID
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return &Client{
		svc:     svc,
		listID:  listID,
		timeout: DefaultAPITimeout,
		ids:     make(map[int64]string),
	}, nil
}

// ListTasks returns the open tasks of the configured list.
func (c *Client) ListTasks(ctx context.Context) ([]service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result []service.Task
	seen := make(map[int64]string)
	err := c.svc.Tasks.List(c.listID).
		MaxResults(PageSize).
		ShowCompleted(false).
		ShowDeleted(false).
		ShowHidden(false).
		Pages(ctx, func(resp *tasks.Tasks) error {
			for _, task := range resp.Items {
				id := numericID(task.Id)
				seen[id] = task.Id
				result = append(result, service.Task{ID: id, Text: task.Title})
			}
			return nil
		})
	if err != nil {
		return nil, wrapError(err)
	}

	c.mu.Lock()
	c.ids = seen
	c.mu.Unlock()
	return result, nil
}

// CreateTask creates a new task in the configured list.
func (c *Client) CreateTask(ctx context.Context, text string) (service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	created, err := c.svc.Tasks.Insert(c.listID, &tasks.Task{Title: text}).Context(ctx).Do()
	if err != nil {
		return service.Task{}, wrapError(err)
	}
	id := numericID(created.Id)
	c.mu.Lock()
	c.ids[id] = created.Id
	c.mu.Unlock()
	return service.Task{ID: id, Text: created.Title}, nil
}

// UpdateTask replaces the title of a task.
func (c *Client) UpdateTask(ctx context.Context, id int64, text string) error {
	taskID, err := c.resolve(ctx, id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = c.svc.Tasks.Patch(c.listID, taskID, &tasks.Task{Title: text}).Context(ctx).Do()
	return wrapError(err)
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	taskID, err := c.resolve(ctx, id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.svc.Tasks.Delete(c.listID, taskID).Context(ctx).Do(); err != nil {
		return wrapError(err)
	}
	c.mu.Lock()
	delete(c.ids, id)
	c.mu.Unlock()
	return nil
}

// resolve maps a numeric id back to the Google task id, listing once on a miss.
func (c *Client) resolve(ctx context.Context, id int64) (string, error) {
	c.mu.Lock()
	taskID, ok := c.ids[id]
	c.mu.Unlock()
	if ok {
		return taskID, nil
	}

	if _, err := c.ListTasks(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	taskID, ok = c.ids[id]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: task %d not found", service.ErrRejected, id)
	}
	return taskID, nil
}

// numericID hashes a Google task id with FNV-1a.
func numericID(taskID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(taskID))
	return int64(h.Sum64() & idMask)
}

// wrapError classifies API errors as rejected or unreachable.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: request timed out", service.ErrUnreachable)
		}
		return fmt.Errorf("%w: %v", service.ErrUnreachable, err)
	}

	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: token expired or revoked (run: offtask login)", service.ErrRejected)
	case http.StatusNotFound:
		return fmt.Errorf("%w: not found", service.ErrRejected)
	}
	return fmt.Errorf("%w: %v", service.ErrRejected, err)
}
