package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// RunStorage implements interfaces.RunStorage for Badger
type RunStorage struct {
	db       *BadgerDB
	logger   arbor.ILogger
	keepRuns int
}

// NewRunStorage creates a new RunStorage. keepRuns bounds history; 0 keeps all.
func NewRunStorage(db *BadgerDB, logger arbor.ILogger, keepRuns int) interfaces.RunStorage {
	return &RunStorage{
		db:       db,
		logger:   logger,
		keepRuns: keepRuns,
	}
}

// SaveRun upserts a run and prunes history beyond keepRuns
func (s *RunStorage) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	s.logger.Debug().
		Str("run_id", run.ID).
		Int("results", len(run.Results)).
		Int("incomplete", len(run.Incomplete)).
		Msg("Run saved")

	if s.keepRuns > 0 {
		s.prune()
	}
	return nil
}

func (s *RunStorage) prune() {
	var runs []models.RunRecord
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse().Skip(s.keepRuns)
	if err := s.db.Store().Find(&runs, query); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list runs for pruning")
		return
	}

	pruned := 0
	for _, run := range runs {
		if err := s.db.Store().Delete(run.ID, models.RunRecord{}); err != nil {
			s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to prune run")
			continue
		}
		pruned++
	}
	if pruned == 0 {
		return
	}

	s.logger.Debug().Int("pruned", pruned).Int("keep_runs", s.keepRuns).Msg("Old runs pruned")
	if err := s.db.CollectGarbage(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to reclaim space after pruning")
	}
}

// GetRun returns a run by ID
func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var run models.RunRecord
	err := s.db.Store().Get(id, &run)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &run, nil
}

// LatestRun returns the most recently started run
func (s *RunStorage) LatestRun(ctx context.Context) (*models.RunRecord, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return runs[0], nil
}

// ListRuns returns runs newest first
func (s *RunStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.RunRecord
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.RunRecord, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}
