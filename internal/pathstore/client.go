package pathstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotFound is returned by GetNode when the key does not exist.
var ErrNotFound = errors.New("pathstore: node not found")

// Client communicates with the pathstore HTTP API.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Client{http: c}
}

// NodeRequest is the body for PUT /kv/{key}.
type NodeRequest struct {
	Value      any     `json:"value"`
	MergeMode  string  `json:"merge_mode,omitempty"`
	MemoryType string  `json:"memory_type,omitempty"`
	Salience   float64 `json:"salience,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// Node is a stored key and its raw JSON value.
type Node struct {
	Key   string          `json:"key_path"`
	Value json.RawMessage `json:"value"`
}

// PutNode stores or updates a node at the given path.
func (c *Client) PutNode(ctx context.Context, key string, req NodeRequest) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetRawPathParam("key", key).
		Put("/kv/{key}")
	if err != nil {
		return fmt.Errorf("put node: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return fmt.Errorf("put node %s: status %d: %s", key, resp.StatusCode(), truncate(resp.String(), 1024))
	}
	return nil
}

// GetNode retrieves a node by key.
func (c *Client) GetNode(ctx context.Context, key string) (*Node, error) {
	var out Node
	resp, err := c.http.R().
		SetContext(ctx).
		SetRawPathParam("key", key).
		Get("/kv/{key}")
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get node %s: status %d: %s", key, resp.StatusCode(), truncate(resp.String(), 1024))
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	return &out, nil
}

// DeleteNode deletes a node and optionally its children.
func (c *Client) DeleteNode(ctx context.Context, key string, recursive bool) error {
	req := c.http.R().SetContext(ctx).SetRawPathParam("key", key)
	if recursive {
		req.SetQueryParam("children", "true")
	}
	resp, err := req.Delete("/kv/{key}")
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return fmt.Errorf("delete node %s: status %d: %s", key, resp.StatusCode(), truncate(resp.String(), 1024))
}

// ListChildren does a prefix scan under the given key.
func (c *Client) ListChildren(ctx context.Context, key string, limit int) ([]Node, error) {
	var out struct {
		Nodes []Node `json:"nodes"`
	}
	req := c.http.R().SetContext(ctx).SetRawPathParam("key", key)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := req.Get("/kv/{key}/*")
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list children %s: status %d: %s", key, resp.StatusCode(), truncate(resp.String(), 1024))
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode children: %w", err)
	}
	return out.Nodes, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.GetClient().CloseIdleConnections()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
