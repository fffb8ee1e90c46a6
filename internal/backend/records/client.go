// Package records implements service.Remote on a kintone-style records REST API.
//
// Each task is one record of a single app. The record's $id is the task id and
// one text field holds the task text.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"offtask/internal/config"
	"offtask/internal/service"
)

const (
	// DefaultField is the record field holding the task text.
	DefaultField = "task_text"

	// PageSize is the number of records per page; the API caps it at 500.
	PageSize = 500

	// DefaultAPITimeout bounds each API call unless configured otherwise.
	DefaultAPITimeout = 10 * time.Second

	tokenHeader = "X-Cybozu-API-Token"
	recordPath  = "/k/v1/record.json"
	recordsPath = "/k/v1/records.json"
)

// Options configure a Client.
type Options struct {
	BaseURL  string
	AppID    string
	APIToken string
	Field    string
	Timeout  time.Duration

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client implements service.Remote against the records API.
type Client struct {
	base    *url.URL
	app     string
	token   string
	field   string
	timeout time.Duration
	http    *http.Client
}

// New creates a client from the records section of the settings.
func New(cfg *config.Config) (*Client, error) {
	s := cfg.Settings.Records
	return NewWithOptions(Options{
		BaseURL:  s.BaseURL,
		AppID:    s.AppID,
		APIToken: s.APIToken,
		Field:    s.Field,
		Timeout:  cfg.Settings.APITimeout,
	})
}

// NewWithOptions creates a client from explicit options.
func NewWithOptions(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid records base url %q", opts.BaseURL)
	}
	if opts.AppID == "" {
		return nil, errors.New("records app id is required")
	}
	c := &Client{
		base:    base,
		app:     opts.AppID,
		token:   opts.APIToken,
		field:   opts.Field,
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
	}
	if c.field == "" {
		c.field = DefaultField
	}
	if c.timeout <= 0 {
		c.timeout = DefaultAPITimeout
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	return c, nil
}

type fieldValue struct {
	Value string `json:"value"`
}

type listResponse struct {
	Records []map[string]fieldValue `json:"records"`
}

type createResponse struct {
	ID       string `json:"id"`
	Revision string `json:"revision"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListTasks returns every record of the app in ascending id order.
func (c *Client) ListTasks(ctx context.Context) ([]service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result []service.Task
	for offset := 0; ; offset += PageSize {
		q := url.Values{}
		q.Set("app", c.app)
		q.Set("query", fmt.Sprintf("order by $id asc limit %d offset %d", PageSize, offset))
		q.Set("fields[0]", "$id")
		q.Set("fields[1]", c.field)

		var resp listResponse
		if err := c.do(ctx, http.MethodGet, recordsPath, q, nil, &resp); err != nil {
			return nil, err
		}
		for _, rec := range resp.Records {
			id, err := strconv.ParseInt(rec["$id"].Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad record id %q", service.ErrRejected, rec["$id"].Value)
			}
			result = append(result, service.Task{ID: id, Text: rec[c.field].Value})
		}
		if len(resp.Records) < PageSize {
			return result, nil
		}
	}
}

// CreateTask adds a record and returns the task with its assigned id.
func (c *Client) CreateTask(ctx context.Context, text string) (service.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]any{
		"app":    c.app,
		"record": map[string]fieldValue{c.field: {Value: text}},
	}
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, recordPath, nil, body, &resp); err != nil {
		return service.Task{}, err
	}
	id, err := strconv.ParseInt(resp.ID, 10, 64)
	if err != nil {
		return service.Task{}, fmt.Errorf("%w: bad record id %q", service.ErrRejected, resp.ID)
	}
	return service.Task{ID: id, Text: text}, nil
}

// UpdateTask replaces the text field of a record.
func (c *Client) UpdateTask(ctx context.Context, id int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]any{
		"app":    c.app,
		"id":     id,
		"record": map[string]fieldValue{c.field: {Value: text}},
	}
	return c.do(ctx, http.MethodPut, recordPath, nil, body, nil)
}

// DeleteTask deletes a record.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("app", c.app)
	q.Set("ids[0]", strconv.FormatInt(id, 10))
	return c.do(ctx, http.MethodDelete, recordsPath, q, nil, nil)
}

// do sends one request. Transport failures wrap service.ErrUnreachable and
// non-2xx responses wrap service.ErrRejected.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set(tokenHeader, c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s: request timed out", service.ErrUnreachable, method, path)
		}
		return fmt.Errorf("%w: %s %s: %v", service.ErrUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &ae) != nil || ae.Message == "" {
			ae.Message = strings.TrimSpace(string(data))
		}
		return fmt.Errorf("%w: %s %s: %d %s", service.ErrRejected, method, path, resp.StatusCode, ae.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: decode response: %v", service.ErrRejected, method, path, err)
	}
	return nil
}
