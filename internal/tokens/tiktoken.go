package tokens

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// DefaultMargin is the share added on top of tiktoken counts. Backends
// behind the gateway rarely share an OpenAI vocabulary, so the exact count is
// only a baseline.
const DefaultMargin = 0.1

var encodings = map[string]tokenizer.Encoding{
	"o200k_base":  tokenizer.O200kBase,
	"cl100k_base": tokenizer.Cl100kBase,
	"p50k_base":   tokenizer.P50kBase,
	"r50k_base":   tokenizer.R50kBase,
}

// TiktokenCounter counts tokens with tiktoken encodings. The model is either
// an encoding name (cl100k_base, o200k_base, ...) or an OpenAI model name.
type TiktokenCounter struct {
	// Margin inflates every count so it stays an over-estimate.
	Margin float64

	matcher *ModelMatcher

	mu     sync.RWMutex
	codecs map[string]tokenizer.Codec
}

// NewTiktokenCounter creates a counter with DefaultMargin.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{
		Margin: DefaultMargin,
		matcher: NewModelMatcher(
			[]string{"gpt-", "o1", "o3", "o4", "text-davinci"},
			[]string{"o200k_base", "cl100k_base", "p50k_base", "r50k_base", "davinci", "curie", "babbage", "ada"},
		),
		codecs: make(map[string]tokenizer.Codec),
	}
}

// SupportsModel reports whether model names an encoding or an OpenAI model.
func (c *TiktokenCounter) SupportsModel(model string) bool {
	return c.matcher.Matches(strings.ToLower(model))
}

// CountText counts the tokens of text, inflated by the margin.
func (c *TiktokenCounter) CountText(_ context.Context, model, text string) (int, error) {
	codec, err := c.codec(strings.ToLower(model))
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}
	return int(math.Ceil(float64(len(ids)) * (1 + c.Margin))), nil
}

func (c *TiktokenCounter) codec(model string) (tokenizer.Codec, error) {
	c.mu.RLock()
	codec, ok := c.codecs[model]
	c.mu.RUnlock()
	if ok {
		return codec, nil
	}

	var err error
	if enc, ok := encodings[model]; ok {
		codec, err = tokenizer.Get(enc)
	} else {
		codec, err = tokenizer.ForModel(tokenizer.Model(model))
		if err != nil {
			// Unknown or future models: the newest encoding is the best guess.
			codec, err = tokenizer.Get(tokenizer.O200kBase)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load tokenizer for %q: %w", model, err)
	}

	c.mu.Lock()
	c.codecs[model] = codec
	c.mu.Unlock()
	return codec, nil
}
