package library

import (
	"context"

	"intakeflow/internal/store"
)

// StoreProvider serves the catalogue from the persistence layer.
type StoreProvider struct {
	store store.Store
}

// NewStoreProvider wraps a Store as a catalogue Provider.
func NewStoreProvider(s store.Store) *StoreProvider {
	return &StoreProvider{store: s}
}

func (p *StoreProvider) ListSteps(ctx context.Context) ([]StepSummary, error) {
	steps, err := p.store.ListSteps(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]StepSummary, 0, len(steps))
	for _, s := range steps {
		out = append(out, StepSummary{ID: s.ID, Name: s.Name})
	}
	return out, nil
}

func (p *StoreProvider) GetStep(ctx context.Context, id int64) (*StepDetail, error) {
	s, err := p.store.GetStep(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StepDetail{ID: s.ID, Name: s.Name, Components: s.Components}, nil
}

var _ Provider = (*StoreProvider)(nil)
