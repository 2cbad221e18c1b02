package echo

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/stream"
)

func TestLastHumanTurn(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		stops  []string
		want   string
	}{
		{"claude", "\n\nHuman: hi\n\nAssistant: hello\n\nHuman: bye\n\nAssistant:", []string{"\n\nHuman:"}, " bye"},
		{"no stops", "raw text", nil, "raw text"},
		{"stop absent", "abc\ndef", []string{"\nUser:"}, "abc\ndef"},
		{"multi-line turn", "\nUser: a\nb\nBot:", []string{"\nUser:"}, " a\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LastHumanTurn(tt.prompt, tt.stops))
		})
	}
}

func TestBackend_Stream(t *testing.T) {
	b := New("echo", 3)

	s, err := b.Stream(context.Background(), &ports.Invocation{
		Prompt:        "\n\nHuman: héllo\n\nAssistant:",
		StopSequences: []string{"\n\nHuman:"},
	})
	require.NoError(t, err)

	chunks, err := stream.Collect(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, " héllo", strings.Join(chunks, ""))
	assert.Greater(t, len(chunks), 1)
}

func TestBackend_CompleteMaxTokens(t *testing.T) {
	b := New("echo", 0)

	got, err := b.Complete(context.Background(), &ports.Invocation{Prompt: "abcdef", MaxTokens: 3})
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Text)
	assert.Equal(t, domain.FinishReasonLength, got.FinishReason)
	assert.Nil(t, got.Usage)
}

func TestSplitKeepsRunes(t *testing.T) {
	for _, piece := range split("日本語テキスト", 2) {
		assert.True(t, len(piece) > 0)
		assert.Equal(t, piece, strings.ToValidUTF8(piece, "?"))
	}
}
