package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// 在包初始化时设置离线加载器
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Counter 使用 tiktoken 计算 Token 数量
type Counter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

var (
	counterInstance *Counter
	counterOnce     sync.Once
	counterErr      error
)

// Get 获取 Counter 单例，避免重复加载编码文件
func Get() (*Counter, error) {
	counterOnce.Do(func() {
		// cl100k_base 与主流对话模型兼容
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			counterErr = err
			return
		}
		counterInstance = &Counter{encoding: enc}
	})

	if counterErr != nil {
		return nil, counterErr
	}
	return counterInstance, nil
}

// NewCounter 供 wire 注入
func NewCounter() (*Counter, error) {
	return Get()
}

// Count 计算文本的 Token 数量
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.encoding.Encode(text, nil, nil))
}

// Truncate 截断到最多 maxTokens 个 Token，返回截断后的文本与是否发生截断
func (c *Counter) Truncate(text string, maxTokens int) (string, bool) {
	if text == "" || maxTokens <= 0 {
		return text, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, false
	}
	return c.encoding.Decode(tokens[:maxTokens]), true
}
