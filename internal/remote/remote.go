// Package remote implements the sync engine's remote authority over a
// plain JSON/HTTP API.
//
// Outcome classification is the whole point of this package: the engine
// retries only what retrying can fix. Timeouts, transport errors, 408,
// 429 and every 5xx are transient; any other 4xx is permanent.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/driftsync/drift/internal/engine"
	"github.com/driftsync/drift/internal/store"
)

// Config holds HTTP client configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com/v1
	BaseURL string

	// AuthToken is sent as a bearer token when non-empty
	AuthToken string

	// HTTPClient overrides the default client (default: 30s timeout)
	HTTPClient *http.Client

	// Logger for request activity
	Logger *log.Logger
}

// Client talks to the remote API. It satisfies engine.Remote.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	logger    *log.Logger
}

// NewClient creates a remote API client.
func NewClient(config *Config) (*Client, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid remote base URL: %w", err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	return &Client{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		authToken: config.AuthToken,
		http:      httpClient,
		logger:    logger,
	}, nil
}

// Create posts a new entity. The response body is expected to carry the
// entity with its server-assigned ID.
func (c *Client) Create(ctx context.Context, table string, todo *store.Todo) engine.Result {
	// The server assigns the real ID; the temp one stays client-side.
	body := todo.Clone()
	body.ID = ""
	return c.do(ctx, http.MethodPost, c.baseURL+"/"+url.PathEscape(table), body, true)
}

// Update patches an existing entity.
func (c *Client) Update(ctx context.Context, table, id string, patch *store.TodoPatch) engine.Result {
	endpoint := c.baseURL + "/" + url.PathEscape(table) + "/" + url.PathEscape(id)
	return c.do(ctx, http.MethodPatch, endpoint, patch, false)
}

// Delete removes an entity. A 404 counts as success: the entity is gone
// either way, and treating it as a rejection would roll back a delete the
// user already made.
func (c *Client) Delete(ctx context.Context, table, id string) engine.Result {
	endpoint := c.baseURL + "/" + url.PathEscape(table) + "/" + url.PathEscape(id)
	result := c.do(ctx, http.MethodDelete, endpoint, nil, false)
	if result.Outcome == engine.OutcomePermanent && result.StatusCode == http.StatusNotFound {
		return engine.Result{Outcome: engine.OutcomeSuccess, StatusCode: result.StatusCode}
	}
	return result
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any, wantEntity bool) engine.Result {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return engine.Result{Outcome: engine.OutcomePermanent, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return engine.Result{Outcome: engine.OutcomePermanent, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts, DNS failures, refused connections: the network may
		// recover, so the intent keeps its place in the queue.
		c.logger.Printf("%s %s: transport error: %v", method, endpoint, err)
		return engine.Result{Outcome: engine.OutcomeTransient, Err: err}
	}
	defer resp.Body.Close()

	if outcome := classify(resp.StatusCode); outcome != engine.OutcomeSuccess {
		c.logger.Printf("%s %s: HTTP %d (%s)", method, endpoint, resp.StatusCode, outcome)
		return engine.Result{
			Outcome:    outcome,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("remote returned HTTP %d", resp.StatusCode),
		}
	}

	result := engine.Result{Outcome: engine.OutcomeSuccess, StatusCode: resp.StatusCode}
	if wantEntity {
		var confirmed store.Todo
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&confirmed); err != nil {
			// A 2xx without a usable body cannot confirm a create: the
			// temp ID would never resolve. Retry it.
			c.logger.Printf("%s %s: unreadable success body: %v", method, endpoint, err)
			return engine.Result{Outcome: engine.OutcomeTransient, StatusCode: resp.StatusCode, Err: err}
		}
		result.Todo = &confirmed
	}
	return result
}

// classify maps an HTTP status to a sync outcome.
func classify(status int) engine.Outcome {
	switch {
	case status >= 200 && status < 300:
		return engine.OutcomeSuccess
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return engine.OutcomeTransient
	case status >= 500:
		return engine.OutcomeTransient
	default:
		return engine.OutcomePermanent
	}
}
