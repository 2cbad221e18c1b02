package chathistory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
)

func mustProfile(t *testing.T, id string) Profile {
	t.Helper()
	p, ok := LookupProfile(id)
	require.True(t, ok, "profile %q not registered", id)
	return p
}

func TestFormat_Claude(t *testing.T) {
	p := mustProfile(t, "claude")

	tests := []struct {
		name     string
		messages []domain.Message
		want     string
	}{
		{
			name:     "system and human",
			messages: []domain.Message{domain.System("Be brief."), domain.Human("hi")},
			want:     "\n\nBe brief.\n\nHuman: hi\n\nAssistant:",
		},
		{
			name:     "lone human is still decorated",
			messages: []domain.Message{domain.Human("hi")},
			want:     "\n\nHuman: hi\n\nAssistant:",
		},
		{
			name:     "assistant prefill is continued",
			messages: []domain.Message{domain.System("s"), domain.Human("u"), domain.AI("a")},
			want:     "\n\ns\n\nHuman: u\n\nAssistant: a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.messages, p)
			assert.Equal(t, tt.want, got.Text)
			assert.Equal(t, []string{"\n\nHuman:"}, got.StopSequences)
		})
	}
}

func TestFormat_DefaultPrelude(t *testing.T) {
	p := mustProfile(t, "default")

	got := Format([]domain.Message{
		domain.System("Be brief."),
		domain.Human("hi"),
		domain.AI("hello"),
		domain.System("Now be verbose."),
		domain.Human("why?"),
	}, p)

	require.Len(t, got.Entries, 7)
	assert.Nil(t, got.Entries[0].Source)
	assert.Contains(t, got.Entries[0].Text, `start with "Human:"`)
	assert.Contains(t, got.Entries[0].Text, `start with "Assistant:"`)
	assert.Equal(t, "\n\nBe brief.", got.Entries[1].Text)
	assert.Equal(t, "\n\nSystem: Now be verbose.", got.Entries[4].Text)
	assert.Equal(t, "\n\nAssistant:", got.Entries[6].Text)
	assert.True(t, strings.HasSuffix(got.Text, "\n\nHuman: why?\n\nAssistant:"))
}

func TestFormat_FallbackToCompletion(t *testing.T) {
	p := mustProfile(t, "default")

	got := Format([]domain.Message{domain.Human("2 + 2 =")}, p)
	assert.Equal(t, "2 + 2 =", got.Text)
	assert.Empty(t, got.StopSequences)
	require.Len(t, got.Entries, 1)
	assert.True(t, got.Entries[0].Important)

	// A lone system message is not a raw completion.
	got = Format([]domain.Message{domain.System("s")}, p)
	assert.NotEqual(t, "s", got.Text)
}

func TestFormat_CueAllExceptFirst(t *testing.T) {
	p := Profile{
		Cues:      map[domain.Role]string{domain.RoleHuman: "Q:", domain.RoleAI: "A:"},
		CuePolicy: CueAllExceptFirst,
		Separator: "\n",
	}

	got := Format([]domain.Message{domain.Human("context"), domain.Human("question")}, p)
	assert.Equal(t, "context\nQ: question", got.Text)
	assert.Equal(t, []string{"\nQ:"}, got.StopSequences)
}

func TestFormat_EntriesConcatenateToText(t *testing.T) {
	messages := []domain.Message{
		domain.System("s"),
		domain.Human("one"),
		domain.AI("two"),
		domain.Human("three"),
	}

	for _, id := range ProfileIDs() {
		t.Run(id, func(t *testing.T) {
			got := Format(messages, mustProfile(t, id))

			var sb strings.Builder
			for _, e := range got.Entries {
				sb.WriteString(e.Text)
			}
			assert.Equal(t, got.Text, sb.String())

			for _, e := range got.Entries {
				if e.Source == nil {
					continue
				}
				wantImportant := e.Source.Role == domain.RoleSystem || e.Source == &messages[len(messages)-1]
				assert.Equal(t, wantImportant, e.Important, "entry %q", e.Text)
			}
		})
	}
}

func TestFormat_EmptyList(t *testing.T) {
	got := Format(nil, mustProfile(t, "claude"))
	assert.Equal(t, "\n\nAssistant:", got.Text)
}

func TestProfileIDs(t *testing.T) {
	assert.Equal(t, []string{"claude", "default", "plain", "titan"}, ProfileIDs())
	assert.Equal(t, "Assistant:", mustProfile(t, "claude").EchoedCue())
	assert.Empty(t, mustProfile(t, "plain").EchoedCue())
}
