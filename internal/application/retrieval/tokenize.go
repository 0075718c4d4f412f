package retrieval

import (
	"strings"
	"unicode"
)

// Tokenize 小写化后按连续字母数字（含下划线）切分
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}
