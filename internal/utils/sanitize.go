package utils

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	ugcPolicy    = bluemonday.UGCPolicy()
)

// SanitizeText 去除所有 HTML 标签，用于名称、标题、申请留言等纯文本字段
func SanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// SanitizeRichText 保留安全的排版标签，用于小组介绍
func SanitizeRichText(s string) string {
	return strings.TrimSpace(ugcPolicy.Sanitize(s))
}

// RuneLen 按字符计数，中文/韩文字符按 1 计
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
