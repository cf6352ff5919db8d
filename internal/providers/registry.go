package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry routes model identifiers to adapters.
type Registry struct {
	mu           sync.RWMutex
	byName       map[string]Adapter
	byModel      map[string]Adapter
	defaultModel string
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Adapter),
		byModel: make(map[string]Adapter),
	}
}

// Register adds adapter under its name and each listed model. Registering a
// model twice replaces the earlier route.
func (r *Registry) Register(adapter Adapter, models ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[adapter.Name()] = adapter
	for _, m := range models {
		m = normalizeModel(m)
		if m != "" {
			r.byModel[m] = adapter
		}
	}
}

// SetDefaultModel names the model used when a request names none.
func (r *Registry) SetDefaultModel(model string) {
	r.mu.Lock()
	r.defaultModel = normalizeModel(model)
	r.mu.Unlock()
}

// Route resolves model, or the default when empty, to its canonical
// identifier and adapter.
func (r *Registry) Route(model string) (string, Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := normalizeModel(model)
	if m == "" {
		m = r.defaultModel
	}
	if a, ok := r.byModel[m]; ok {
		return m, a, nil
	}
	return "", nil, fmt.Errorf("providers: no adapter for model %q", model)
}

// ForModel returns the adapter serving model.
func (r *Registry) ForModel(model string) (Adapter, error) {
	_, a, err := r.Route(model)
	return a, err
}

// RequiresInput reports whether model, or the default when empty, needs at
// least one input image.
func (r *Registry) RequiresInput(model string) bool {
	m, a, err := r.Route(model)
	if err != nil {
		return false
	}
	if req, ok := a.(InputRequirer); ok {
		return req.RequiresInput(m)
	}
	return false
}

// ByName returns the adapter registered under name.
func (r *Registry) ByName(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// Models lists routable model identifiers, sorted.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byModel))
	for m := range r.byModel {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func normalizeModel(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}
