// Package rest implements the record store against the hosted tabular
// store's HTTP API. Collections map to URL segments; the API key travels
// as a bearer header on every call.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reservo.org/internal/store"
)

const defaultTimeout = 10 * time.Second

// Client talks to the hosted store.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ store.Store = (*Client)(nil)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying http.Client (used by tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New builds a client for the given base URL and API key.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("rest: base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("rest: invalid base URL: %w", err)
	}
	c := &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type recordPayload struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
}

type listPayload struct {
	Records []recordPayload `json:"records"`
}

func (c *Client) FindOneByField(ctx context.Context, collection, field string, value any) (store.Record, error) {
	query := url.Values{}
	query.Set("field", field)
	query.Set("value", fmt.Sprint(value))
	query.Set("limit", "1")

	var payload listPayload
	if err := c.do(ctx, http.MethodGet, c.collectionURL(collection)+"?"+query.Encode(), nil, &payload); err != nil {
		return store.Record{}, err
	}
	if len(payload.Records) == 0 {
		return store.Record{}, store.ErrNotFound
	}
	return toRecord(payload.Records[0]), nil
}

func (c *Client) FindByID(ctx context.Context, collection, id string) (store.Record, error) {
	var payload recordPayload
	if err := c.do(ctx, http.MethodGet, c.recordURL(collection, id), nil, &payload); err != nil {
		return store.Record{}, err
	}
	return toRecord(payload), nil
}

func (c *Client) List(ctx context.Context, collection string) ([]store.Record, error) {
	var payload listPayload
	if err := c.do(ctx, http.MethodGet, c.collectionURL(collection), nil, &payload); err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(payload.Records))
	for _, rec := range payload.Records {
		out = append(out, toRecord(rec))
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, collection string, fields map[string]any) (store.Record, error) {
	var payload recordPayload
	body := map[string]any{"fields": fields}
	if err := c.do(ctx, http.MethodPost, c.collectionURL(collection), body, &payload); err != nil {
		return store.Record{}, err
	}
	return toRecord(payload), nil
}

func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) (store.Record, error) {
	var payload recordPayload
	body := map[string]any{"fields": fields}
	if err := c.do(ctx, http.MethodPatch, c.recordURL(collection, id), body, &payload); err != nil {
		return store.Record{}, err
	}
	return toRecord(payload), nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, c.recordURL(collection, id), nil, nil)
}

// Ping checks reachability of the hosted store.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: store returned %d", store.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) collectionURL(collection string) string {
	return c.baseURL + "/" + url.PathEscape(collection)
}

func (c *Client) recordURL(collection, id string) string {
	return c.collectionURL(collection) + "/" + url.PathEscape(id)
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, dst any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures, DNS, timeouts: infrastructure, not denial.
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return store.ErrNotFound
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		return store.ErrConflict
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: store returned %d", store.ErrUnavailable, resp.StatusCode)
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode response: %v", store.ErrUnavailable, err)
	}
	return nil
}

func toRecord(p recordPayload) store.Record {
	if p.Fields == nil {
		p.Fields = map[string]any{}
	}
	return store.Record{ID: p.ID, Fields: p.Fields, CreatedAt: p.CreatedAt}
}
