package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello  ", "hello"},
		{"<b>bold</b> move", "bold move"},
		{`<script>alert("x")</script>go`, "go"},
		{"Tom & Jerry", "Tom & Jerry"},
		{"스터디 모집", "스터디 모집"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeText(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeRichText(t *testing.T) {
	out := SanitizeRichText(`<p onclick="evil()">weekly <a href="javascript:alert(1)">link</a></p><script>x</script>`)
	assert.Contains(t, out, "<p>weekly")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "javascript:")
	assert.NotContains(t, out, "<script>")
}

func TestRuneLen(t *testing.T) {
	assert.Equal(t, 5, RuneLen("hello"))
	assert.Equal(t, 2, RuneLen("모집"))
}
