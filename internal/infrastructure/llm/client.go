package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/tokenizer"
)

// maxAttempts 429 / 5xx 的最大尝试次数
const maxAttempts = 3

// ProviderError 调用模型服务失败，Invoke 返回的所有错误都是该类型
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error 实现 error
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm provider error (status %d): %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("llm provider error: %s: %v", e.Message, e.Err)
	}
	return "llm provider error: " + e.Message
}

// Unwrap 返回底层错误
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable 是否值得重试
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client OpenAI 兼容的 Chat 客户端
type Client struct {
	baseURL          string
	apiKey           string
	model            string
	temperature      float64
	defaultMaxTokens int
	httpClient       *http.Client
	limiter          *rate.Limiter
	counter          *tokenizer.Counter
	backoff          time.Duration
	logger           *slog.Logger
}

// ChatRequest Chat API 请求
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

// Message Chat 消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse Chat API 响应
type ChatResponse struct {
	ID      string `json:"id,omitempty"`
	Model   string `json:"model,omitempty"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewClient 创建 LLM 客户端，counter 可为空
func NewClient(cfg *config.LLMConfig, counter *tokenizer.Counter) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		baseURL:          baseURL,
		apiKey:           cfg.APIKey,
		model:            cfg.Model,
		temperature:      cfg.Temperature,
		defaultMaxTokens: cfg.MaxTokens,
		httpClient:       &http.Client{Timeout: timeout},
		limiter:          limiter,
		counter:          counter,
		backoff:          time.Second,
		logger:           log.NewModuleLogger("llm", "client"),
	}
}

// Invoke 同步补全；system 为空时不发送系统消息，maxTokens <= 0 使用配置默认
func (c *Client) Invoke(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = c.defaultMaxTokens
	}

	messages := make([]Message, 0, 2)
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	body, err := json.Marshal(ChatRequest{
		Messages:    messages,
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", &ProviderError{Message: "failed to marshal request", Err: err}
	}

	logger := log.FromContext(ctx, c.logger)
	if c.counter != nil {
		logger.Debug("Sending LLM request",
			"model", c.model,
			"prompt_tokens_estimate", c.counter.Count(system)+c.counter.Count(prompt),
			"max_tokens", maxTokens,
		)
	}

	var lastErr *ProviderError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		content, perr := c.send(ctx, body)
		if perr == nil {
			return content, nil
		}
		lastErr = perr
		if !perr.Retryable() || attempt == maxAttempts {
			break
		}
		logger.Warn("LLM request failed, retrying",
			"attempt", attempt,
			"status_code", perr.StatusCode,
		)
		select {
		case <-ctx.Done():
			return "", &ProviderError{Message: "request cancelled", Err: ctx.Err()}
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}

	logger.Error("LLM request failed", "error", lastErr)
	return "", lastErr
}

// send 发送一次请求
func (c *Client) send(ctx context.Context, body []byte) (string, *ProviderError) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &ProviderError{Message: "rate limiter wait failed", Err: err}
		}
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &ProviderError{Message: "failed to decode response", Err: err}
	}
	if len(chatResp.Choices) == 0 {
		return "", &ProviderError{Message: "response contained no choices"}
	}

	c.logger.Debug("LLM request completed",
		"model", chatResp.Model,
		"total_tokens", chatResp.Usage.TotalTokens,
		"finish_reason", chatResp.Choices[0].FinishReason,
	)
	return chatResp.Choices[0].Message.Content, nil
}

// TestConnection 测试连接
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.Invoke(ctx, "Reply with OK.", "", 5)
	if err != nil {
		return fmt.Errorf("LLM connection test failed: %w", err)
	}
	c.logger.Info("LLM connection test successful", "model", c.model)
	return nil
}

// IsProviderError 判断错误链中是否有 ProviderError
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
