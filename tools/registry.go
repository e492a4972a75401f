package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/PipeOpsHQ/agent-backend/types"
)

var ErrUnknownTool = errors.New("tools: unknown tool")

// Registry holds the tools exposed to the agent runtime, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is required")
	}
	name := strings.TrimSpace(t.Definition().Name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

func (r *Registry) MustRegister(ts ...Tool) {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[strings.TrimSpace(name)]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Catalog returns every tool definition sorted by name.
func (r *Registry) Catalog() []types.ToolDefinition {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolDefinition, 0, len(names))
	for _, n := range names {
		out = append(out, r.tools[n].Definition())
	}
	return out
}

// Select returns a registry restricted to the named tools. An empty
// selection or "*" keeps everything.
func (r *Registry) Select(selection []string) (*Registry, error) {
	out := NewRegistry()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(selection) == 0 || (len(selection) == 1 && strings.TrimSpace(selection[0]) == "*") {
		for n, t := range r.tools {
			out.tools[n] = t
		}
		return out, nil
	}
	for _, name := range selection {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		t, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownTool, name)
		}
		out.tools[name] = t
	}
	return out, nil
}

// Wrap replaces every registered tool with wrap(t).
func (r *Registry) Wrap(wrap func(Tool) Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n, t := range r.tools {
		r.tools[n] = wrap(t)
	}
}

func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTool, name)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return t.Execute(ctx, args)
}
