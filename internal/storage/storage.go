// Package storage holds the usage ledger shared types. Implementations live
// in the memory and sqlite subpackages.
package storage

import (
	"errors"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
)

// Re-export storage interfaces and types from core/ports.
type (
	UsageStore       = ports.UsageStore
	CompletionRecord = ports.CompletionRecord
	ListOptions      = ports.ListOptions
)

// ErrNotFound is returned for unknown record ids.
var ErrNotFound = errors.New("record not found")

// Page applies offset and limit to an already ordered slice.
func Page[T any](items []T, opts ListOptions) []T {
	start := opts.Offset
	if start >= len(items) {
		return []T{}
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
