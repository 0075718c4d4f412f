package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/log"
)

// Func 工具实现，val 在出错时也可以携带部分结果
type Func func(ctx context.Context, params Params) (val any, err error)

// Tool 一个可独立调用的工具
type Tool struct {
	Name        string
	Description string
	fn          Func
}

// NewTool 创建工具
func NewTool(name, description string, fn Func) *Tool {
	return &Tool{Name: name, Description: description, fn: fn}
}

// Result 工具调用结果，失败以值返回
type Result struct {
	Success bool   `json:"success"`
	Tool    string `json:"tool"`
	Value   any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Info 工具列表项
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Execute 调用工具，错误与 panic 都转换为失败结果
func (t *Tool) Execute(ctx context.Context, params Params) (res Result) {
	res.Tool = t.Name
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("tool %s panicked: %v", t.Name, r)
		}
	}()

	val, err := t.fn(ctx, params)
	res.Value = val
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// Registry 工具注册表
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: log.NewModuleLogger("tools", "registry"),
	}
}

// Register 注册工具，名称重复返回错误
func (r *Registry) Register(t *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get 按名称取工具
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List 按名称排序列出工具
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Info{Name: t.Name, Description: t.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute 按名称调用工具，未知名称返回失败结果
func (r *Registry) Execute(ctx context.Context, name string, params Params) Result {
	t, ok := r.Get(name)
	if !ok {
		return Result{Tool: name, Error: fmt.Sprintf("tool %s not found", name)}
	}

	res := t.Execute(ctx, params)
	if !res.Success {
		log.FromContext(ctx, r.logger).Warn("Tool execution failed", "tool", name, "error", res.Error)
	} else {
		log.FromContext(ctx, r.logger).Debug("Tool executed", "tool", name)
	}
	return res
}
