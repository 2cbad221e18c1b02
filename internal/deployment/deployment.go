// Package deployment resolves configured deployment ids to everything a chat
// request needs: the formatter profile, the tool protocol, the token counter,
// the limits and the backend.
package deployment

import (
	"fmt"
	"sort"
	"sync"

	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/backend/textcompletion"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/chathistory"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/core/ports"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/pkg/config"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/tokens"
	"github.com/epam/ai-dial-adapter-bedrock-sub000/internal/toolemu"
)

// Tokenizer selectors understood in deployment configuration.
const (
	TokenizerRemote   = "remote"
	TokenizerEstimate = "estimate"
)

// Deployment is one resolved entry of the deployment table.
type Deployment struct {
	ID      string
	Model   string
	Profile chathistory.Profile

	// Protocol is nil when the deployment does not emulate tools.
	Protocol *toolemu.Protocol

	// ModelLimit is the prompt token ceiling. Zero means none.
	ModelLimit int
	MaxTokens  int

	Counter        tokens.Counter
	TokenizerModel string
	Backend        ports.Invoker
}

// Table is an immutable set of deployments.
type Table struct {
	byID map[string]*Deployment
	ids  []string
}

// Build resolves the deployments of cfg against the given backends.
// counters selects counters for tokenizer model names.
func Build(cfg *config.Config, backends map[string]ports.Invoker, counters *tokens.Registry) (*Table, error) {
	t := &Table{byID: make(map[string]*Deployment, len(cfg.Deployments))}

	for _, dc := range cfg.Deployments {
		d, err := resolve(dc, backends, counters)
		if err != nil {
			return nil, fmt.Errorf("deployment %s: %w", dc.ID, err)
		}
		t.byID[d.ID] = d
		t.ids = append(t.ids, d.ID)
	}
	sort.Strings(t.ids)
	return t, nil
}

func resolve(dc config.DeploymentConfig, backends map[string]ports.Invoker, counters *tokens.Registry) (*Deployment, error) {
	backend, ok := backends[dc.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", dc.Backend)
	}

	profile, ok := chathistory.LookupProfile(dc.Profile)
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (known: %v)", dc.Profile, chathistory.ProfileIDs())
	}

	d := &Deployment{
		ID:             dc.ID,
		Model:          dc.Model,
		Profile:        profile,
		ModelLimit:     dc.ModelLimit,
		MaxTokens:      dc.MaxTokens,
		TokenizerModel: dc.Tokenizer,
		Backend:        backend,
	}
	if d.TokenizerModel == "" {
		d.TokenizerModel = dc.Model
	}

	if dc.ToolProtocol != "" {
		p, ok := toolemu.LookupProtocol(dc.ToolProtocol)
		if !ok {
			return nil, fmt.Errorf("unknown tool protocol %q (known: %v)", dc.ToolProtocol, toolemu.ProtocolIDs())
		}
		d.Protocol = &p
	}

	switch dc.Tokenizer {
	case TokenizerRemote:
		client, ok := backend.(*textcompletion.Client)
		if !ok {
			return nil, fmt.Errorf("backend %q cannot tokenize remotely", dc.Backend)
		}
		d.Counter = textcompletion.NewRemoteCounter(client)
		d.TokenizerModel = dc.Model
	case TokenizerEstimate:
		d.Counter = tokens.NewEstimator()
	default:
		d.Counter = counters.CounterFor(d.TokenizerModel)
	}

	return d, nil
}

// Lookup returns the deployment with the given id.
func (t *Table) Lookup(id string) (*Deployment, bool) {
	d, ok := t.byID[id]
	return d, ok
}

// IDs returns the deployment ids in sorted order.
func (t *Table) IDs() []string {
	out := make([]string, len(t.ids))
	copy(out, t.ids)
	return out
}

// Registry holds the current table and lets configuration reloads swap it.
type Registry struct {
	mu    sync.RWMutex
	table *Table
}

// NewRegistry returns a registry serving t.
func NewRegistry(t *Table) *Registry {
	if t == nil {
		t = &Table{byID: map[string]*Deployment{}}
	}
	return &Registry{table: t}
}

// Current returns the table in effect.
func (r *Registry) Current() *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table
}

// Replace installs a new table. In-flight requests keep the old one.
func (r *Registry) Replace(t *Table) {
	r.mu.Lock()
	r.table = t
	r.mu.Unlock()
}

// Lookup resolves id against the current table.
func (r *Registry) Lookup(id string) (*Deployment, bool) {
	return r.Current().Lookup(id)
}
