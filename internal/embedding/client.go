package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client talks to an ollama-compatible embedding server. Every call goes
// through a rate limiter and a circuit breaker: the limiter keeps a long
// batch of scenes from flooding a local model server, the breaker keeps a
// dead server from stalling the run on timeouts.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	breaker *Breaker
}

// ClientConfig holds the embedding client configuration.
type ClientConfig struct {
	// BaseURL of the embedding server (default http://localhost:11434).
	BaseURL string

	// Model name sent with each request (default bge-m3).
	Model string

	// Timeout per request (default 5s).
	Timeout time.Duration

	// RequestsPerSecond caps the request rate (default 4).
	RequestsPerSecond float64

	// Burst is the limiter burst size (default 2).
	Burst int
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// The embeddings field is a 2D array; the first row is the vector for our
// single input.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewClient builds a client, filling unset config fields with defaults.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "bge-m3"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = 4
	}
	if config.Burst == 0 {
		config.Burst = 2
	}

	return &Client{
		baseURL: config.BaseURL,
		model:   config.Model,
		http:    &http.Client{Timeout: config.Timeout},
		timeout: config.Timeout,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		breaker: NewBreaker(BreakerConfig{}),
	}
}

// Name implements Provider.
func (c *Client) Name() string { return "ollama:" + c.model }

// Embed implements Provider. It waits for a limiter slot, then runs the HTTP
// call through the circuit breaker.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vector, err := c.breaker.Execute(ctx, func() ([]float32, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	return vector, nil
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedder returned status %d: %s", resp.StatusCode, string(payload))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embedder returned empty vector")
	}

	return respData.Embeddings[0], nil
}
