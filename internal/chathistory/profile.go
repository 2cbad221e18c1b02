package chathistory

import (
	"sort"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
)

// CuePolicy decides which messages are prefixed with their role cue.
type CuePolicy int

const (
	// CueAll prefixes every message with its role cue.
	CueAll CuePolicy = iota
	// CueAllExceptLeadingSystem renders a system message in first position
	// without a cue.
	CueAllExceptLeadingSystem
	// CueAllExceptFirst renders the first message without a cue.
	CueAllExceptFirst
)

// Profile is the data-only description of how a backend expects a dialog
// flattened into a single prompt.
type Profile struct {
	ID string `koanf:"id" yaml:"id"`

	// Prelude is rendered before the first message. {system}, {human} and
	// {ai} are replaced with the role cues.
	Prelude string `koanf:"prelude" yaml:"prelude"`

	// Cues maps a role to the prefix placed before its messages. A missing or
	// empty cue renders the text bare.
	Cues map[domain.Role]string `koanf:"cues" yaml:"cues"`

	CuePolicy CuePolicy `koanf:"cue_policy" yaml:"cue_policy"`

	// Invitation appends the AI cue after the last message so the backend
	// continues as the assistant.
	Invitation bool `koanf:"invitation" yaml:"invitation"`

	Separator string `koanf:"separator" yaml:"separator"`
	Leading   string `koanf:"leading" yaml:"leading"`

	// FallbackToCompletion sends a lone human message as a raw completion
	// prompt without any chat decoration.
	FallbackToCompletion bool `koanf:"fallback_to_completion" yaml:"fallback_to_completion"`
}

// Cue returns the cue for a role.
func (p Profile) Cue(role domain.Role) string {
	return p.Cues[role]
}

// EchoedCue is the prefix a backend may repeat at the start of its output.
func (p Profile) EchoedCue() string {
	return p.Cue(domain.RoleAI)
}

const pseudoChatPrelude = `You are a helpful assistant participating in a dialog with a user.
The messages from the user start with "{human}".
The messages from you start with "{ai}".
Reply to the last message from the user taking into account the preceding dialog history.
====================`

var profiles = map[string]Profile{
	"default": {
		ID:      "default",
		Prelude: pseudoChatPrelude,
		Cues: map[domain.Role]string{
			domain.RoleSystem: "System:",
			domain.RoleHuman:  "Human:",
			domain.RoleAI:     "Assistant:",
		},
		CuePolicy:            CueAllExceptLeadingSystem,
		Invitation:           true,
		Separator:            "\n\n",
		FallbackToCompletion: true,
	},
	"claude": {
		ID: "claude",
		Cues: map[domain.Role]string{
			domain.RoleHuman: "Human:",
			domain.RoleAI:    "Assistant:",
		},
		CuePolicy:  CueAll,
		Invitation: true,
		Separator:  "\n\n",
		Leading:    "\n\n",
	},
	"titan": {
		ID: "titan",
		Cues: map[domain.Role]string{
			domain.RoleHuman: "User:",
			domain.RoleAI:    "Bot:",
		},
		CuePolicy:            CueAll,
		Invitation:           true,
		Separator:            "\n",
		FallbackToCompletion: true,
	},
	"plain": {
		ID:                   "plain",
		Separator:            "\n",
		FallbackToCompletion: true,
	},
}

// LookupProfile returns the built-in profile registered under id.
func LookupProfile(id string) (Profile, bool) {
	p, ok := profiles[id]
	return p, ok
}

// ProfileIDs lists the built-in profile ids in sorted order.
func ProfileIDs() []string {
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
