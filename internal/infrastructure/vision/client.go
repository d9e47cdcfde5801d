package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vatsight/pipeline/internal/core/domain"
	"github.com/vatsight/pipeline/internal/core/ports"
	"github.com/vatsight/pipeline/internal/infrastructure/resilience"
)

type Options struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	RequestsPerSec float64
	Executor       *resilience.Executor
}

// Client talks to the external document-understanding model. It selects a
// prompt template through the selector, enforces a hard per-call timeout and
// bounded retries, and returns the raw response text without interpreting it.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

func New(opts Options) *Client {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 2
	}
	executor := opts.Executor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultPolicy())
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		executor:   executor,
	}
}

type pagePayload struct {
	MediaType string `json:"media_type"`
	Text      string `json:"text,omitempty"`
	Data      string `json:"data,omitempty"`
}

type extractRequest struct {
	Model  string        `json:"model"`
	Prompt string        `json:"prompt"`
	Pages  []pagePayload `json:"pages"`
}

type extractResponse struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

func (c *Client) Extract(ctx context.Context, req ports.ModelRequest) (ports.ModelResponse, error) {
	if len(req.Pages) == 0 {
		return ports.ModelResponse{}, domain.WrapError(domain.ErrInput, "vision extract", fmt.Errorf("no pages to send"))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return ports.ModelResponse{}, err
	}

	body := extractRequest{
		Model:  c.model,
		Prompt: renderPrompt(req.Template, req.Category),
		Pages:  encodePages(req.Pages),
	}

	start := time.Now()
	var decoded extractResponse
	err := c.executor.Execute(ctx, "vision_extract", func(callCtx context.Context) error {
		timeoutCtx, cancel := context.WithTimeout(callCtx, c.timeout)
		defer cancel()
		return c.postJSON(timeoutCtx, "/v1/extract", body, &decoded)
	}, classifyModelError)
	if err != nil {
		return ports.ModelResponse{}, wrapExternal("vision extract", err)
	}

	return ports.ModelResponse{
		Text:       decoded.Text,
		TemplateID: req.Template.ID,
		TokensUsed: decoded.TokensUsed,
		Duration:   time.Since(start),
	}, nil
}

func encodePages(pages []domain.NormalizedPage) []pagePayload {
	out := make([]pagePayload, 0, len(pages))
	for _, p := range pages {
		payload := pagePayload{MediaType: p.MediaType, Text: p.Text}
		if len(p.Data) > 0 {
			payload.Data = base64.StdEncoding.EncodeToString(p.Data)
		}
		out = append(out, payload)
	}
	return out
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newStatusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

func newStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
