// Package toolemu emulates tool calling for text-completion backends: tool
// declarations and tool traffic are rendered into the prompt as tagged text
// and a single call is parsed back out of the generated completion.
package toolemu

import (
	"fmt"
	"sort"
)

const (
	StartTag = "<function_calls>"
	EndTag   = "</function_calls>"
)

// Protocol is a variant of the tagged calling convention.
type Protocol struct {
	ID string `koanf:"id" yaml:"id"`

	// StopOnEndTag adds the end tag to the stop sequences so generation ends
	// right after the call. When false the backend may keep generating past
	// the call and the trailing text is ignored.
	StopOnEndTag bool `koanf:"stop_on_end_tag" yaml:"stop_on_end_tag"`
}

// StopSequences returns the extra stop sequences the variant requires.
func (p Protocol) StopSequences() []string {
	if p.StopOnEndTag {
		return []string{EndTag}
	}
	return nil
}

var protocols = map[string]Protocol{
	"legacy":  {ID: "legacy", StopOnEndTag: true},
	"current": {ID: "current", StopOnEndTag: false},
}

// LookupProtocol returns the built-in variant registered under id.
func LookupProtocol(id string) (Protocol, bool) {
	p, ok := protocols[id]
	return p, ok
}

// ProtocolIDs lists the built-in variants in sorted order.
func ProtocolIDs() []string {
	ids := make([]string, 0, len(protocols))
	for id := range protocols {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DecodeError reports generated text that opened a tool call which could not
// be parsed. It is a backend output defect, not a caller error.
type DecodeError struct {
	Reason string
	Output string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed tool call in model output: %s", e.Reason)
}
