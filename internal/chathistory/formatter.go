// Package chathistory flattens a structured dialog into the single prompt a
// text-completion backend accepts.
package chathistory

import (
	"strings"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
)

// Prompt is a rendered dialog. Text is always the concatenation of the
// entry texts.
type Prompt struct {
	Text          string
	StopSequences []string
	Entries       []domain.FormattedMessage
}

// Format renders messages according to the profile. An empty message list is
// not an error here; callers validate the request before formatting.
func Format(messages []domain.Message, p Profile) Prompt {
	if p.FallbackToCompletion && len(messages) == 1 && messages[0].Role == domain.RoleHuman {
		return Prompt{
			Text: messages[0].Text,
			Entries: []domain.FormattedMessage{
				{Text: messages[0].Text, Source: &messages[0], Important: true},
			},
		}
	}

	entries := make([]domain.FormattedMessage, 0, len(messages)+2)
	add := func(text string, src *domain.Message, important bool) {
		if len(entries) == 0 {
			text = p.Leading + text
		} else {
			text = p.Separator + text
		}
		entries = append(entries, domain.FormattedMessage{Text: text, Source: src, Important: important})
	}

	if p.Prelude != "" {
		add(p.renderPrelude(), nil, true)
	}

	last := len(messages) - 1
	for i := range messages {
		msg := &messages[i]
		add(p.render(msg, i), msg, msg.Role == domain.RoleSystem || i == last)
	}

	// A trailing AI message is a prefill the backend continues in place.
	if p.Invitation && (last < 0 || messages[last].Role != domain.RoleAI) {
		if cue := p.Cue(domain.RoleAI); cue != "" {
			add(cue, nil, true)
		}
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.Text)
	}

	return Prompt{
		Text:          sb.String(),
		StopSequences: p.StopSequences(),
		Entries:       entries,
	}
}

// StopSequences returns the sequences that mark the backend starting to
// impersonate the next human turn.
func (p Profile) StopSequences() []string {
	cue := p.Cue(domain.RoleHuman)
	if cue == "" {
		return nil
	}
	return []string{p.Separator + cue}
}

func (p Profile) renderPrelude() string {
	return strings.NewReplacer(
		"{system}", p.Cue(domain.RoleSystem),
		"{human}", p.Cue(domain.RoleHuman),
		"{ai}", p.Cue(domain.RoleAI),
	).Replace(p.Prelude)
}

func (p Profile) render(msg *domain.Message, index int) string {
	cue := p.Cue(msg.Role)
	if cue == "" || !p.cued(msg, index) {
		return msg.Text
	}
	if msg.Text == "" {
		return cue
	}
	return cue + " " + msg.Text
}

func (p Profile) cued(msg *domain.Message, index int) bool {
	switch p.CuePolicy {
	case CueAllExceptLeadingSystem:
		return index != 0 || msg.Role != domain.RoleSystem
	case CueAllExceptFirst:
		return index != 0
	default:
		return true
	}
}
