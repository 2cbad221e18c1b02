// Package consumer holds the ports.Consumer implementations that turn engine
// events into HTTP responses.
package consumer

import (
	"sort"
	"strings"
	"sync"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/domain"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
)

// CollectedChoice is a finished choice of a non-streaming response.
type CollectedChoice struct {
	Index        int
	Content      string
	ToolCalls    []domain.ToolCall
	FinishReason domain.FinishReason
}

// Collector accumulates a complete response.
type Collector struct {
	mu        sync.Mutex
	choices   map[int]*choiceCollector
	usage     domain.Usage
	discarded *int
}

var _ ports.Consumer = (*Collector)(nil)

func NewCollector() *Collector {
	return &Collector{choices: make(map[int]*choiceCollector)}
}

func (c *Collector) Choice(index int) ports.ChoiceConsumer {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.choices[index]
	if !ok {
		ch = &choiceCollector{index: index}
		c.choices[index] = ch
	}
	return ch
}

func (c *Collector) AddUsage(usage domain.Usage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.Add(usage)
	return nil
}

func (c *Collector) SetDiscardedMessages(count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discarded = &count
	return nil
}

// Choices returns the collected choices ordered by index.
func (c *Collector) Choices() []CollectedChoice {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CollectedChoice, 0, len(c.choices))
	for _, ch := range c.choices {
		out = append(out, ch.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (c *Collector) Usage() domain.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// DiscardedMessages reports the discarded count, if one was set.
func (c *Collector) DiscardedMessages() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discarded == nil {
		return 0, false
	}
	return *c.discarded, true
}

type choiceCollector struct {
	mu      sync.Mutex
	index   int
	content strings.Builder
	calls   []domain.ToolCall
	finish  domain.FinishReason
}

func (c *choiceCollector) AppendContent(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content.WriteString(text)
	return nil
}

func (c *choiceCollector) AddToolCall(call domain.ToolCall) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return nil
}

func (c *choiceCollector) CloseContent(reason domain.FinishReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish = reason
	return nil
}

func (c *choiceCollector) snapshot() CollectedChoice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CollectedChoice{
		Index:        c.index,
		Content:      c.content.String(),
		ToolCalls:    append([]domain.ToolCall(nil), c.calls...),
		FinishReason: c.finish,
	}
}
