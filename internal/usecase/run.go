package usecase

import (
	"context"
	"fmt"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/repository"
)

// RunUsecase exposes read-only access to Run history, scoped through
// the owning Task so a caller can never read another owner's runs.
type RunUsecase struct {
	taskRepo repository.TaskRepository
	runRepo  repository.RunRepository
}

func NewRunUsecase(taskRepo repository.TaskRepository, runRepo repository.RunRepository) *RunUsecase {
	return &RunUsecase{taskRepo: taskRepo, runRepo: runRepo}
}

func (u *RunUsecase) ListRuns(ctx context.Context, taskID, ownerID string, limit int) ([]*domain.Run, error) {
	if _, err := u.taskRepo.GetByID(ctx, taskID, ownerID); err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	runs, err := u.runRepo.ListByTaskID(ctx, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (u *RunUsecase) GetRun(ctx context.Context, taskID, ownerID, runID string) (*domain.Run, error) {
	if _, err := u.taskRepo.GetByID(ctx, taskID, ownerID); err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	run, err := u.runRepo.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run == nil || run.TaskID != taskID {
		return nil, domain.ErrTaskNotFound
	}
	return run, nil
}
