package watch

import (
	"fmt"

	"reconagent/internal/domain"
)

// Registry keeps a mapping from handoff stages to their adapters.
type Registry struct {
	adapters map[domain.Stage]StageAdapter
	order    []domain.Stage
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[domain.Stage]StageAdapter{}}
}

// Register adds or replaces a stage adapter.
func (r *Registry) Register(adapter StageAdapter) {
	if r.adapters == nil {
		r.adapters = map[domain.Stage]StageAdapter{}
	}
	stage := adapter.Stage()
	if _, ok := r.adapters[stage]; !ok {
		r.order = append(r.order, stage)
	}
	r.adapters[stage] = adapter
}

// Resolve returns an adapter by stage or an error if it is absent.
func (r *Registry) Resolve(stage domain.Stage) (StageAdapter, error) {
	if adapter, ok := r.adapters[stage]; ok {
		return adapter, nil
	}
	return nil, fmt.Errorf("stage %s is not registered", stage)
}

// All returns the registered adapters in registration order.
func (r *Registry) All() []StageAdapter {
	out := make([]StageAdapter, 0, len(r.order))
	for _, stage := range r.order {
		out = append(out, r.adapters[stage])
	}
	return out
}
