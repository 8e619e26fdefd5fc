package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

type fakeRunUsecase struct {
	listRuns func(ctx context.Context, taskID, ownerID string, limit int) ([]*domain.Run, error)
	getRun   func(ctx context.Context, taskID, ownerID, runID string) (*domain.Run, error)
}

func (f *fakeRunUsecase) ListRuns(ctx context.Context, taskID, ownerID string, limit int) ([]*domain.Run, error) {
	return f.listRuns(ctx, taskID, ownerID, limit)
}

func (f *fakeRunUsecase) GetRun(ctx context.Context, taskID, ownerID, runID string) (*domain.Run, error) {
	return f.getRun(ctx, taskID, ownerID, runID)
}

func newTestRunEngine(uc *fakeRunUsecase) *gin.Engine {
	h := handler.NewRunHandler(uc, testLogger())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("ownerID", testOwnerID)
		c.Next()
	})
	r.GET("/tasks/:id/runs", h.List)
	r.GET("/tasks/:id/runs/:run_id", h.GetByID)
	return r
}

func TestRunList_TaskNotFound_Returns404(t *testing.T) {
	uc := &fakeRunUsecase{
		listRuns: func(_ context.Context, _, _ string, _ int) ([]*domain.Run, error) {
			return nil, domain.ErrTaskNotFound
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/missing/runs", nil)
	newTestRunEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRunList_Success_Returns200(t *testing.T) {
	uc := &fakeRunUsecase{
		listRuns: func(_ context.Context, taskID, ownerID string, _ int) ([]*domain.Run, error) {
			if ownerID != testOwnerID {
				t.Errorf("ownerID = %q, want %q", ownerID, testOwnerID)
			}
			return []*domain.Run{{ID: "run-1", TaskID: taskID}}, nil
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/task-1/runs", nil)
	newTestRunEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestRunGetByID_NotFound_Returns404(t *testing.T) {
	uc := &fakeRunUsecase{
		getRun: func(_ context.Context, _, _, _ string) (*domain.Run, error) {
			return nil, domain.ErrTaskNotFound
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/task-1/runs/run-1", nil)
	newTestRunEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRunGetByID_Success_Returns200(t *testing.T) {
	uc := &fakeRunUsecase{
		getRun: func(_ context.Context, taskID, _, runID string) (*domain.Run, error) {
			return &domain.Run{ID: runID, TaskID: taskID}, nil
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/task-1/runs/run-1", nil)
	newTestRunEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
