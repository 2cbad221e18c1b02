package registration

import (
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/backend/echo"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/backend/textcompletion"
)

// RegisterBuiltins registers the built-in backend factories explicitly.
// This replaces init-based side effects and is intended to be called from
// cmd/gateway and tests before wiring registries.
func RegisterBuiltins() {
	textcompletion.RegisterFactory()
	echo.RegisterFactory()
}
