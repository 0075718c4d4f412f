package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// DefaultMaxInputChars 查询文本截断长度（字符）
const DefaultMaxInputChars = 2048

// Client Embedding API 客户端
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	maxInputChars int
	maxRetries    int
	backoff       time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewClient 创建 Embedding 客户端
func NewClient(cfg *config.EmbeddingConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxChars := cfg.MaxInputChars
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}

	return &Client{
		// 规范化 baseURL：移除末尾斜杠
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		maxInputChars: maxChars,
		maxRetries:    3,
		backoff:       time.Second,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        log.NewModuleLogger("embedding", "client"),
	}
}

// buildEmbeddingURL 构建 Embedding API URL
// 支持多种输入格式，智能拼接 /v1/embeddings 路径
func buildEmbeddingURL(baseURL string) string {
	// 1. 如果已经包含完整路径 /v1/embeddings，直接使用
	if strings.Contains(baseURL, "/v1/embeddings") {
		return baseURL
	}

	// 2. 如果以 /v1 结尾，只追加 /embeddings
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL + "/embeddings"
	}

	// 3. 其他情况，追加完整的 /v1/embeddings
	return fmt.Sprintf("%s/v1/embeddings", baseURL)
}

// EmbeddingRequest Embedding 请求
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse Embedding 响应
type EmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Model 模型名
func (c *Client) Model() string {
	return c.model
}

// Embed 向量化单条查询，超长文本截断到 maxInputChars 个字符
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	vectors, err := c.EmbedTexts(ctx, []string{c.truncate(text)})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// truncate 按字符截断
func (c *Client) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= c.maxInputChars {
		return text
	}
	return string(runes[:c.maxInputChars])
}

// EmbedTexts 批量向量化文本
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	// OpenAI embeddings API 批量限制：每次最多 2048 个文本
	const maxBatchSize = 2048

	allVectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatchSize {
		end := min(i+maxBatchSize, len(texts))
		vectors, err := c.embedWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d: %w", i/maxBatchSize+1, err)
		}
		allVectors = append(allVectors, vectors...)
	}
	return allVectors, nil
}

// embedWithRetry 带重试的嵌入处理
func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	jsonData, err := json.Marshal(EmbeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := buildEmbeddingURL(c.baseURL)
	c.logger.Debug("Sending embedding request",
		"url", url,
		"batch_size", len(texts),
		"model", c.model,
	)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.backoff): // 递增延迟
			}
		}

		vectors, retryable, err := c.post(ctx, url, jsonData, len(texts))
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.logger.Warn("Embedding request failed, retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"error", err,
		)
	}
	return nil, lastErr
}

// post 发送一次请求，返回是否可重试
func (c *Client) post(ctx context.Context, url string, body []byte, expected int) ([][]float32, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(data))
	}

	var embeddingResp EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(embeddingResp.Data) != expected {
		return nil, false, fmt.Errorf("API returned %d embeddings for %d inputs", len(embeddingResp.Data), expected)
	}

	vectors := make([][]float32, expected)
	for _, data := range embeddingResp.Data {
		if data.Index < 0 || data.Index >= expected {
			return nil, false, fmt.Errorf("API returned out of range index %d", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, false, nil
}
