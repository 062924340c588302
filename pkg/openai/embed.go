// Package openai provides an OpenAI-backed embedding client.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/chunkforge/chunkforge/engine/domain"
	"github.com/chunkforge/chunkforge/pkg/fn"
	"github.com/chunkforge/chunkforge/pkg/resilience"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Config configures the embedding client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond bounds outbound embedding calls. Zero disables limiting.
	RequestsPerSecond float64
}

// Client calls the OpenAI embeddings endpoint. Requests pass through a
// rate limiter and a circuit breaker, with retries on transient failures.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *resilience.Limiter
	breaker *resilience.Breaker
	retry   fn.RetryOpts
}

// NewClient creates an OpenAI embedding client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		retry:   fn.DefaultRetry,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = resilience.NewLimiter(resilience.LimiterOpts{
			Rate:  cfg.RequestsPerSecond,
			Burst: int(cfg.RequestsPerSecond) + 1,
		})
	}
	return c
}

type embedReq struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embedResp struct {
	Data []embedData `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed returns one vector per input, in input order. model is the provider
// model name and dimensions, when nonzero, is forwarded to the API.
func (c *Client) Embed(ctx context.Context, model string, input []string, dimensions int) ([][]float32, error) {
	if len(input) == 0 {
		return nil, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var out [][]float32
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		res := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[[][]float32] {
			vecs, err := c.embed(ctx, model, input, dimensions)
			if err != nil {
				return fn.Err[[][]float32](err)
			}
			return fn.Ok(vecs)
		})
		vecs, err := res.Unwrap()
		if err != nil {
			return err
		}
		out = vecs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) embed(ctx context.Context, model string, input []string, dimensions int) ([][]float32, error) {
	body, _ := json.Marshal(embedReq{Model: model, Input: input, Dimensions: dimensions})
	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w: %w", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ae apiError
		if json.Unmarshal(data, &ae) == nil && ae.Error.Message != "" {
			return nil, fmt.Errorf("openai embed: %w: status %d: %s", domain.ErrProvider, resp.StatusCode, ae.Error.Message)
		}
		return nil, fmt.Errorf("openai embed: %w: status %d", domain.ErrProvider, resp.StatusCode)
	}

	var result embedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("openai embed decode: %w", err)
	}
	if len(result.Data) != len(input) {
		return nil, fmt.Errorf("openai embed: %w: got %d vectors for %d inputs", domain.ErrProvider, len(result.Data), len(input))
	}

	// The API may return items out of order; index restores input order.
	sort.Slice(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })
	out := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
