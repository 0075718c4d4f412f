package middleware

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// EnsureUTF8Body 将非 UTF-8 请求体转换为 UTF-8
// 优先使用 Content-Type 声明的 charset；未声明且内容不是合法 UTF-8 时按 Windows-1252 解码
// 国家名等带重音字符的问题常由这类客户端发出
func EnsureUTF8Body() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		_ = c.Request.Body.Close()
		if err != nil {
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
			c.Next()
			return
		}

		if converted, ok := toUTF8(body, declaredCharset(c.GetHeader("Content-Type"))); ok {
			body = converted
			c.Request.ContentLength = int64(len(body))
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// declaredCharset Content-Type 中的 charset 参数
func declaredCharset(header string) string {
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}

// toUTF8 按声明的字符集或默认 Windows-1252 转换，已是 UTF-8 时不转换
func toUTF8(body []byte, charset string) ([]byte, bool) {
	var enc encoding.Encoding
	switch {
	case charset != "" && charset != "utf-8" && charset != "utf8":
		e, err := htmlindex.Get(charset)
		if err != nil {
			return nil, false
		}
		enc = e
	case utf8.Valid(body):
		return nil, false
	default:
		enc = charmap.Windows1252
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
	if err != nil || !utf8.Valid(out) {
		return nil, false
	}
	return out, true
}
