package services

import (
	"net/url"
	"strings"
	"time"

	"github.com/Gopher0727/StudyGroup/internal/clock"
	"github.com/Gopher0727/StudyGroup/internal/utils"
)

const (
	maxNameLen    = 80
	maxTitleLen   = 64
	maxContentLen = 3000
	maxMessageLen = 200
	maxLabelLen   = 20
	maxTags       = 10
	maxImageURL   = 512
)

// plainText 清洗后按字符数校验 1..max
func plainText(field, raw string, max int) (string, error) {
	s := utils.SanitizeText(raw)
	if s == "" {
		return "", fieldError(field, "不能为空")
	}
	if n := utils.RuneLen(s); n > max {
		return "", fieldError(field, "长度不能超过 %d 个字符", max)
	}
	return s, nil
}

func richText(field, raw string, max int) (string, error) {
	s := utils.SanitizeRichText(raw)
	if s == "" {
		return "", fieldError(field, "不能为空")
	}
	if n := utils.RuneLen(s); n > max {
		return "", fieldError(field, "长度不能超过 %d 个字符", max)
	}
	return s, nil
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fieldError(field, "日期格式应为 YYYY-MM-DD")
	}
	return clock.DateOf(t), nil
}

func headImage(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	u, err := url.ParseRequestURI(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fieldError("head_image", "必须是 http(s) 地址")
	}
	if len(s) > maxImageURL {
		return "", fieldError("head_image", "地址过长")
	}
	return s, nil
}

// labels 去除空白和重复，保持原有顺序
func labels(field string, raw []string, max int) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		name := utils.SanitizeText(r)
		if name == "" || seen[name] {
			continue
		}
		if utils.RuneLen(name) > maxLabelLen {
			return nil, fieldError(field, "%q 超过 %d 个字符", name, maxLabelLen)
		}
		seen[name] = true
		out = append(out, name)
	}
	if max > 0 && len(out) > max {
		return nil, fieldError(field, "最多 %d 个", max)
	}
	return out, nil
}
