package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Params 工具参数，值可能来自 Go 调用方或 JSON 解码
type Params map[string]any

// String 读取字符串参数
func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int 读取整数参数，缺失或非法时返回 def
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Strings 读取字符串列表参数，支持逗号分隔的字符串
func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Decode 将参数值转换为 out 指向的类型
// 同类型直接赋值之外的情况经 JSON 往返转换
func (p Params) Decode(key string, out any) error {
	v, ok := p[key]
	if !ok || v == nil {
		return fmt.Errorf("missing parameter %s", key)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode parameter %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid parameter %s: %w", key, err)
	}
	return nil
}
