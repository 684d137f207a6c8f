package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/crawlagent/config"
)

// Message is one chat turn sent to the reasoning service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMProvider is the reasoning capability. Planning and final analysis are
// the same "ask a black box for text" call with different prompts, so one
// interface covers both shapes.
type LLMProvider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Model() string
}

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	cfg    config.LLMConfig
	client *http.Client
	logger *log.Logger
	sleep  func(context.Context, time.Duration)
}

func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	cfg = cfg.Normalize()
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.New(log.Writer(), "[LLM] ", log.LstdFlags),
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}
}

func (p *OpenAIProvider) Model() string { return p.cfg.Model }

// Complete sends the messages and returns the first choice's content.
// Throttling statuses (403, 429, 503) are retried with linear backoff.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := p.cfg.Validate(); err != nil {
		return "", err
	}

	body, err := json.Marshal(struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature"`
		MaxTokens   int       `json:"max_tokens"`
	}{
		Model:       p.cfg.Model,
		Messages:    messages,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		content, retryable, err := p.call(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable || attempt == p.cfg.MaxRetries {
			break
		}
		wait := time.Duration(attempt) * 3 * time.Second
		p.logger.Printf("attempt %d/%d failed: %v, retrying in %s", attempt, p.cfg.MaxRetries, err, wait)
		p.sleep(ctx, wait)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (p *OpenAIProvider) call(ctx context.Context, body []byte) (content string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		io.Copy(io.Discard, resp.Body)
		return "", true, fmt.Errorf("reasoning service status %d", resp.StatusCode)
	default:
		io.Copy(io.Discard, resp.Body)
		return "", false, fmt.Errorf("reasoning service status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) > 0 {
		return out.Choices[0].Message.Content, false, nil
	}
	if out.Content != "" {
		return out.Content, false, nil
	}
	return "", false, fmt.Errorf("no choices in response")
}
