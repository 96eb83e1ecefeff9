package platform

import (
	"context"
	"fmt"

	"genelab/internal/model"
)

func (l *Lab) GetRun(ctx context.Context, runID string) (model.RunRecord, error) {
	run, ok, err := l.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit lists all.
func (l *Lab) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	runs, err := l.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (l *Lab) FitnessHistory(ctx context.Context, runID string) ([]float64, error) {
	history, ok, err := l.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: fitness history for %s", ErrRunNotFound, runID)
	}
	return history, nil
}

func (l *Lab) Diagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, error) {
	diagnostics, ok, err := l.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: diagnostics for %s", ErrRunNotFound, runID)
	}
	return diagnostics, nil
}

func (l *Lab) TopGenomes(ctx context.Context, runID string) ([]model.TopGenomeRecord, error) {
	top, ok, err := l.store.GetTopGenomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: top genomes for %s", ErrRunNotFound, runID)
	}
	return top, nil
}

func (l *Lab) Snapshot(ctx context.Context, runID string, generation int) (model.PopulationSnapshot, error) {
	snapshot, ok, err := l.store.GetSnapshot(ctx, runID, generation)
	if err != nil {
		return model.PopulationSnapshot{}, err
	}
	if !ok {
		return model.PopulationSnapshot{}, fmt.Errorf("%w: snapshot %d for %s", ErrRunNotFound, generation, runID)
	}
	return snapshot, nil
}

func (l *Lab) SnapshotGenerations(ctx context.Context, runID string) ([]int, error) {
	return l.store.ListSnapshotGenerations(ctx, runID)
}

// DeleteRun removes a finished run and everything stored under it.
// The lock is held through the store delete so no run can register the id meanwhile.
func (l *Lab) DeleteRun(ctx context.Context, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, active := l.runs[runID]; active {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	if err := l.store.DeleteRun(ctx, runID); err != nil {
		return err
	}
	l.metrics.ForgetRun(runID)
	return nil
}
