package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-enricher/internal/resilience"
)

const (
	defaultLocalBaseURL = "http://localhost:11434"
	defaultLocalModel   = "llama3:8b"
)

// generateRequest is the body for POST /api/generate.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the non-streaming response from POST /api/generate.
type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// LocalClient talks to an Ollama-compatible inference endpoint.
type LocalClient struct {
	baseURL string
	model   string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewLocal creates a client for a local inference endpoint.
func NewLocal(cfg Config) *LocalClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultLocalBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultLocalModel
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RatePerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), 1)
	}

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("inference", "complete")

	return &LocalClient{
		baseURL: baseURL,
		model:   model,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
		retry:   retry,
	}
}

// Complete runs one completion. Transient failures (connection errors,
// 5xx, 429) are retried with backoff; anything else surfaces once.
func (c *LocalClient) Complete(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = c.model
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "inference: rate limit wait")
		}
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (string, error) {
		return c.completeOnce(ctx, prompt, model)
	})
}

func (c *LocalClient) completeOnce(ctx context.Context, prompt, model string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", eris.Wrap(err, "inference: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "inference: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "inference: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "inference: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("inference: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", err
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", eris.Wrap(err, "inference: unmarshal response")
	}

	return result.Response, nil
}
