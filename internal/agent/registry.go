package agent

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/metrics"
	"github.com/joseph-ayodele/essaycoach/internal/repository"
)

// Deps are the collaborators handed to a provider factory.
type Deps struct {
	Config  common.AgentConfig
	Rubrics repository.RubricRepository
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Factory builds a configured agent.
type Factory func(deps Deps) (EssayAgent, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// New builds the agent registered under name.
func (r *Registry) New(name string, deps Deps) (EssayAgent, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if !ok {
		return nil, common.ConfigurationError(
			fmt.Sprintf("unknown AI provider %q (available: %s)", name, strings.Join(r.Names(), ", ")),
			"AI_PROVIDER",
		)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return f(deps)
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
