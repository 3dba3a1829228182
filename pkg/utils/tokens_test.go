package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "single char", text: "a", want: 1},
		{name: "exactly one token", text: "abcd", want: 1},
		{name: "rounds up", text: "abcde", want: 2},
		{name: "forty chars", text: strings.Repeat("x", 40), want: 10},
		{name: "multibyte runes count once", text: "日本語のテキスト", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.text))
		})
	}
}

func TestTruncateText(t *testing.T) {
	t.Run("short text untouched", func(t *testing.T) {
		assert.Equal(t, "hello", TruncateText("hello", 10))
	})

	t.Run("long text capped", func(t *testing.T) {
		long := strings.Repeat("x", 100)
		got := TruncateText(long, 10)
		assert.Len(t, got, 40)
		assert.LessOrEqual(t, EstimateTokens(got), 10)
	})

	t.Run("multibyte boundary is safe", func(t *testing.T) {
		long := strings.Repeat("語", 100)
		got := TruncateText(long, 5)
		assert.Equal(t, strings.Repeat("語", 20), got)
	})
}
