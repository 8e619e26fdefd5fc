package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/repository"
	"github.com/edgeworks-labs/orbiter/internal/usecase"
)

type fakeRunTaskRepo struct {
	repository.TaskRepository
	getByID func(ctx context.Context, id, ownerID string) (*domain.Task, error)
}

func (r *fakeRunTaskRepo) GetByID(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	return r.getByID(ctx, id, ownerID)
}

type fakeRunRepo struct {
	listByTaskID func(ctx context.Context, taskID string, limit int) ([]*domain.Run, error)
	getByID      func(ctx context.Context, id string) (*domain.Run, error)
}

func (r *fakeRunRepo) ListByTaskID(ctx context.Context, taskID string, limit int) ([]*domain.Run, error) {
	return r.listByTaskID(ctx, taskID, limit)
}

func (r *fakeRunRepo) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	return r.getByID(ctx, id)
}

func TestListRuns_UnknownTask_ReturnsError(t *testing.T) {
	taskRepo := &fakeRunTaskRepo{getByID: func(_ context.Context, _, _ string) (*domain.Task, error) {
		return nil, domain.ErrTaskNotFound
	}}
	runRepo := &fakeRunRepo{}
	uc := usecase.NewRunUsecase(taskRepo, runRepo)

	if _, err := uc.ListRuns(context.Background(), "task-1", "owner-1", 10); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestListRuns_ClampsLimitToMax(t *testing.T) {
	var gotLimit int
	taskRepo := &fakeRunTaskRepo{getByID: func(_ context.Context, _, _ string) (*domain.Task, error) {
		return &domain.Task{ID: "task-1"}, nil
	}}
	runRepo := &fakeRunRepo{listByTaskID: func(_ context.Context, _ string, limit int) ([]*domain.Run, error) {
		gotLimit = limit
		return nil, nil
	}}
	uc := usecase.NewRunUsecase(taskRepo, runRepo)

	if _, err := uc.ListRuns(context.Background(), "task-1", "owner-1", 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 100 {
		t.Errorf("limit = %d, want clamped to 100", gotLimit)
	}
}

func TestListRuns_DefaultsNonPositiveLimit(t *testing.T) {
	var gotLimit int
	taskRepo := &fakeRunTaskRepo{getByID: func(_ context.Context, _, _ string) (*domain.Task, error) {
		return &domain.Task{ID: "task-1"}, nil
	}}
	runRepo := &fakeRunRepo{listByTaskID: func(_ context.Context, _ string, limit int) ([]*domain.Run, error) {
		gotLimit = limit
		return nil, nil
	}}
	uc := usecase.NewRunUsecase(taskRepo, runRepo)

	if _, err := uc.ListRuns(context.Background(), "task-1", "owner-1", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != 20 {
		t.Errorf("limit = %d, want default 20", gotLimit)
	}
}

func TestGetRun_RunBelongsToDifferentTask_ReturnsNotFound(t *testing.T) {
	taskRepo := &fakeRunTaskRepo{getByID: func(_ context.Context, _, _ string) (*domain.Task, error) {
		return &domain.Task{ID: "task-1"}, nil
	}}
	runRepo := &fakeRunRepo{getByID: func(_ context.Context, id string) (*domain.Run, error) {
		return &domain.Run{ID: id, TaskID: "some-other-task"}, nil
	}}
	uc := usecase.NewRunUsecase(taskRepo, runRepo)

	if _, err := uc.GetRun(context.Background(), "task-1", "owner-1", "run-1"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestGetRun_Success(t *testing.T) {
	taskRepo := &fakeRunTaskRepo{getByID: func(_ context.Context, _, _ string) (*domain.Task, error) {
		return &domain.Task{ID: "task-1"}, nil
	}}
	runRepo := &fakeRunRepo{getByID: func(_ context.Context, id string) (*domain.Run, error) {
		return &domain.Run{ID: id, TaskID: "task-1"}, nil
	}}
	uc := usecase.NewRunUsecase(taskRepo, runRepo)

	run, err := uc.GetRun(context.Background(), "task-1", "owner-1", "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.ID != "run-1" {
		t.Errorf("ID = %q, want run-1", run.ID)
	}
}
