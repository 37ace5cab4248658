package component

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/veesix-networks/linkshaper/pkg/config"
	"github.com/veesix-networks/linkshaper/pkg/events"
)

// Dependencies is what a component factory gets to work with.
type Dependencies struct {
	EventBus events.Bus
	Config   *config.Config

	// Health endpoints supplied by the watchdog; exporters mount them
	// when present.
	Health http.Handler
	Ready  http.Handler
}

type Factory func(deps Dependencies) (Component, error)

var (
	registry = make(map[string]Factory)
	mu       sync.RWMutex
)

// Register adds a factory; plugins call this from init.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("component %s already registered", name))
	}

	registry[name] = factory
}

// LoadAll instantiates every registered factory. A factory may return
// a nil component to opt out (feature disabled in config).
func LoadAll(deps Dependencies) ([]Component, error) {
	mu.RLock()
	defer mu.RUnlock()

	components := make([]Component, 0, len(registry))
	for name, factory := range registry {
		comp, err := factory(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to create component %s: %w", name, err)
		}
		if comp != nil {
			components = append(components, comp)
		}
	}

	return components, nil
}

// Orchestrator starts components in order and stops them in reverse.
type Orchestrator struct {
	components []Component
	mu         sync.RWMutex
}

func NewOrchestrator() *Orchestrator {
	return &Orchestrator{}
}

func (o *Orchestrator) Register(comp Component) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.components = append(o.components, comp)
}

func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, comp := range o.components {
		if err := comp.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s: %w", comp.Name(), err)
		}
	}
	return nil
}

func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for i := len(o.components) - 1; i >= 0; i-- {
		comp := o.components[i]
		if err := comp.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop %s: %w", comp.Name(), err)
		}
	}
	return nil
}
