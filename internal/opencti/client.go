package opencti

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// DefaultURL is used when no endpoint URL is configured.
const DefaultURL = "http://localhost:8080"

// ErrMissingToken is returned by NewClient when no API token is configured.
// The process must not start without credentials.
var ErrMissingToken = errors.New("opencti: API token is required (set OPENCTI_TOKEN)")

// Config holds the connection settings for an OpenCTI instance.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client is the single authenticated handle to an OpenCTI instance. It is
// built once at process start and reused by every operation; it does not
// retry and does not translate platform failures.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates an OpenCTI API client. The URL falls back to DefaultURL
// when empty; a missing token is a configuration error.
func NewClient(config Config, logger *log.Logger) (*Client, error) {
	if config.Token == "" {
		return nil, ErrMissingToken
	}
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	return &Client{
		baseURL:    strings.TrimRight(config.URL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []APIError      `json:"errors"`
}

// query executes a GraphQL document against /api/graphql and decodes the
// data payload into out. Transport and platform failures propagate to the
// caller unmodified beyond wrapping.
func (c *Client) query(ctx context.Context, document string, variables map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(graphQLRequest{Query: document, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/graphql", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "opencti-mcp/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graphql query failed with status %d: %s", resp.StatusCode, string(body))
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("graphql errors: %v", envelope.Errors)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode data payload: %w", err)
		}
	}
	return nil
}

// get issues an authenticated GET against a REST endpoint. Used only by the
// connectivity probes.
func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "opencti-mcp/1.0")
	return c.httpClient.Do(req)
}

// HealthCheck performs a health check against OpenCTI.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.get(ctx, "/api/settings/about")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// ValidateToken validates the OpenCTI API token.
func (c *Client) ValidateToken(ctx context.Context) error {
	resp, err := c.get(ctx, "/api/me")
	if err != nil {
		return fmt.Errorf("token validation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid or expired token")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("token validation failed with status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Println("OpenCTI token validation successful")
	return nil
}
