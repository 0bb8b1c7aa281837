// Package library exposes the catalogue of reusable intake steps. Workflow
// steps reference a library step by id; the compiler pulls the referenced
// components from a Provider when building the runtime schema.
package library

import (
	"context"
	"sort"
	"sync"

	"intakeflow/pkg/schema"
)

// StepSummary is a catalogue listing entry.
type StepSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// StepDetail is a full library step with its authored components.
type StepDetail struct {
	ID         int64              `json:"id"`
	Name       string             `json:"name"`
	Components []schema.Component `json:"components"`
}

// Provider serves the step catalogue. The production implementation is
// store-backed; StaticProvider covers tests and embedded catalogues.
type Provider interface {
	ListSteps(ctx context.Context) ([]StepSummary, error)
	GetStep(ctx context.Context, id int64) (*StepDetail, error)
}

// StaticProvider is an immutable in-memory catalogue.
type StaticProvider struct {
	mu    sync.RWMutex
	steps map[int64]StepDetail
}

// NewStaticProvider builds a provider over the given steps.
func NewStaticProvider(steps ...StepDetail) *StaticProvider {
	m := make(map[int64]StepDetail, len(steps))
	for _, s := range steps {
		m[s.ID] = s
	}
	return &StaticProvider{steps: m}
}

// ListSteps returns the catalogue sorted by id.
func (p *StaticProvider) ListSteps(_ context.Context) ([]StepSummary, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]StepSummary, 0, len(p.steps))
	for _, s := range p.steps {
		out = append(out, StepSummary{ID: s.ID, Name: s.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetStep returns one step or a NOT_FOUND error.
func (p *StaticProvider) GetStep(_ context.Context, id int64) (*StepDetail, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.steps[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "library step %d not found", id)
	}
	detail := s
	detail.Components = append([]schema.Component(nil), s.Components...)
	return &detail, nil
}

// Put inserts or replaces a step. Intended for test fixtures.
func (p *StaticProvider) Put(step StepDetail) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps[step.ID] = step
}

var _ Provider = (*StaticProvider)(nil)
