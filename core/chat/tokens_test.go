package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		prompt, output string
		want           int
	}{
		{"", "", 0},
		{"a", "", 1},
		{"abcd", "", 1},
		{"abcd", "e", 2},
		{strings.Repeat("x", 398), "yy", 100},
		{strings.Repeat("x", 398), "yyz", 101},
		{"héllo", "wörld", 3}, // characters, not bytes
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.prompt, tt.output), "EstimateTokens(%q, %q)", tt.prompt, tt.output)
	}
}

func TestEstimateTokens_RoundTrip(t *testing.T) {
	for l1 := 0; l1 < 20; l1++ {
		for l2 := 0; l2 < 20; l2++ {
			got := EstimateTokens(strings.Repeat("p", l1), strings.Repeat("o", l2))
			want := (l1 + l2 + 3) / 4 // ceil((l1+l2)/4)
			assert.Equal(t, want, got)
		}
	}
}

func TestPromptText(t *testing.T) {
	req := CompletionRequest{
		SystemPrompt: "sys.",
		History: []Turn{
			{Role: RoleUser, Parts: []Part{{Text: "q1"}, {InlineData: &InlineData{Data: "AA==", MimeType: "image/png"}}}},
			{Role: RoleModel, Parts: []Part{{Text: "a1"}}},
		},
		Current: Turn{Role: RoleUser, Parts: []Part{{Text: "q2"}}},
	}
	assert.Equal(t, "sys.q1a1q2", PromptText(req))
}
