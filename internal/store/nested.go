package store

import (
	"context"
	"fmt"
	"sort"

	"facility-calls-backend/internal/model"
)

// nestedWrite is a create that spans several tables, decomposed into single-table steps.
// Steps run in dependency order inside one transaction.
type nestedWrite struct {
	steps []writeStep
}

type writeStep struct {
	entity *model.Entity
	run    func(ctx context.Context, tx *Store) error
}

// addRow schedules the creation of row through the repository pick returns.
func addRow[T any](w *nestedWrite, e *model.Entity, pick func(tx *Store) *Repository[T], row *T) {
	w.steps = append(w.steps, writeStep{
		entity: e,
		run: func(ctx context.Context, tx *Store) error {
			return pick(tx).Create(ctx, row)
		},
	})
}

func (w *nestedWrite) run(ctx context.Context, s *Store) error {
	sort.SliceStable(w.steps, func(i, j int) bool {
		return w.steps[i].entity.Rank < w.steps[j].entity.Rank
	})
	return s.Transaction(ctx, func(ctx context.Context, tx *Store) error {
		for i, step := range w.steps {
			if err := step.run(ctx, tx); err != nil {
				return fmt.Errorf("nested %s create (step %d): %w", step.entity.Name, i, err)
			}
		}
		return nil
	})
}

func presetID(id *string) string {
	if *id == "" {
		*id = model.NewID()
	}
	return *id
}
