package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/transport/http/handler"
	"github.com/edgeworks-labs/orbiter/internal/usecase"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testOwnerID = "owner-1"

type fakeTaskUsecase struct {
	createTask func(ctx context.Context, input usecase.CreateTaskInput) (*domain.Task, error)
	getTask    func(ctx context.Context, id, ownerID string) (*domain.Task, error)
	listTasks  func(ctx context.Context, input usecase.ListTasksInput) (usecase.ListTasksResult, error)
	updateTask func(ctx context.Context, input usecase.UpdateTaskInput) (*domain.Task, error)
	pauseTask  func(ctx context.Context, id, ownerID string) error
	resumeTask func(ctx context.Context, id, ownerID string) error
	cancelTask func(ctx context.Context, id, ownerID string) error
	snoozeTask func(ctx context.Context, id, ownerID string, delaySeconds int64) error
	runNowTask func(ctx context.Context, id, ownerID string) (*domain.DueWork, error)
}

func (f *fakeTaskUsecase) CreateTask(ctx context.Context, input usecase.CreateTaskInput) (*domain.Task, error) {
	return f.createTask(ctx, input)
}
func (f *fakeTaskUsecase) GetTask(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	return f.getTask(ctx, id, ownerID)
}
func (f *fakeTaskUsecase) ListTasks(ctx context.Context, input usecase.ListTasksInput) (usecase.ListTasksResult, error) {
	return f.listTasks(ctx, input)
}
func (f *fakeTaskUsecase) UpdateTask(ctx context.Context, input usecase.UpdateTaskInput) (*domain.Task, error) {
	return f.updateTask(ctx, input)
}
func (f *fakeTaskUsecase) PauseTask(ctx context.Context, id, ownerID string) error {
	return f.pauseTask(ctx, id, ownerID)
}
func (f *fakeTaskUsecase) ResumeTask(ctx context.Context, id, ownerID string) error {
	return f.resumeTask(ctx, id, ownerID)
}
func (f *fakeTaskUsecase) CancelTask(ctx context.Context, id, ownerID string) error {
	return f.cancelTask(ctx, id, ownerID)
}
func (f *fakeTaskUsecase) SnoozeTask(ctx context.Context, id, ownerID string, delaySeconds int64) error {
	return f.snoozeTask(ctx, id, ownerID, delaySeconds)
}
func (f *fakeTaskUsecase) RunNowTask(ctx context.Context, id, ownerID string) (*domain.DueWork, error) {
	return f.runNowTask(ctx, id, ownerID)
}

func newTestTaskEngine(uc *fakeTaskUsecase) *gin.Engine {
	h := handler.NewTaskHandler(uc, testLogger())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("ownerID", testOwnerID)
		c.Next()
	})
	r.POST("/tasks", h.Create)
	r.GET("/tasks/:id", h.GetByID)
	r.GET("/tasks", h.List)
	r.PUT("/tasks/:id", h.Update)
	r.POST("/tasks/:id/pause", h.Pause)
	r.POST("/tasks/:id/resume", h.Resume)
	r.POST("/tasks/:id/cancel", h.Cancel)
	r.POST("/tasks/:id/snooze", h.Snooze)
	r.POST("/tasks/:id/run-now", h.RunNow)
	return r
}

const validCreateBody = `{
	"title": "every-minute",
	"schedule": {"kind": "cron", "expression": "* * * * *", "timezone": "UTC"},
	"payload": {"pipeline": [{"id": "s1", "uses": "http"}]}
}`

func TestCreate_Success_Returns201(t *testing.T) {
	uc := &fakeTaskUsecase{
		createTask: func(_ context.Context, input usecase.CreateTaskInput) (*domain.Task, error) {
			if input.OwnerID != testOwnerID {
				t.Errorf("OwnerID = %q, want %q", input.OwnerID, testOwnerID)
			}
			return &domain.Task{ID: "task-1", OwnerID: input.OwnerID, Title: input.Title}, nil
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(validCreateBody))
	req.Header.Set("Content-Type", "application/json")
	newTestTaskEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}
}

func TestCreate_InvalidJSON_Returns400(t *testing.T) {
	uc := &fakeTaskUsecase{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	newTestTaskEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreate_DuplicateTask_Returns409(t *testing.T) {
	uc := &fakeTaskUsecase{
		createTask: func(_ context.Context, _ usecase.CreateTaskInput) (*domain.Task, error) {
			return nil, domain.ErrDuplicateTask
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(validCreateBody))
	req.Header.Set("Content-Type", "application/json")
	newTestTaskEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestCreate_InvalidSchedule_Returns400(t *testing.T) {
	uc := &fakeTaskUsecase{
		createTask: func(_ context.Context, _ usecase.CreateTaskInput) (*domain.Task, error) {
			return nil, domain.ErrInvalidSchedule
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(validCreateBody))
	req.Header.Set("Content-Type", "application/json")
	newTestTaskEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetByID_NotFound_Returns404(t *testing.T) {
	uc := &fakeTaskUsecase{
		getTask: func(_ context.Context, _, _ string) (*domain.Task, error) {
			return nil, domain.ErrTaskNotFound
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/missing", nil)
	newTestTaskEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPause_AlreadyPaused_Returns409(t *testing.T) {
	uc := &fakeTaskUsecase{
		pauseTask: func(_ context.Context, _, _ string) error {
			return domain.ErrTaskAlreadyPaused
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks/task-1/pause", nil)
	newTestTaskEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestPause_Success_Returns204(t *testing.T) {
	uc := &fakeTaskUsecase{
		pauseTask: func(_ context.Context, id, ownerID string) error {
			if id != "task-1" || ownerID != testOwnerID {
				t.Errorf("pauseTask called with (%q, %q)", id, ownerID)
			}
			return nil
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks/task-1/pause", nil)
	newTestTaskEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestRunNow_Suppressed_ReturnsOKWithFlag(t *testing.T) {
	uc := &fakeTaskUsecase{
		runNowTask: func(_ context.Context, _, _ string) (*domain.DueWork, error) {
			return nil, nil
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks/task-1/run-now", nil)
	newTestTaskEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"suppressed":true`) {
		t.Errorf("body %q should report suppressed:true", w.Body.String())
	}
}

func TestRunNow_Enqueued_Returns202(t *testing.T) {
	uc := &fakeTaskUsecase{
		runNowTask: func(_ context.Context, _, _ string) (*domain.DueWork, error) {
			return &domain.DueWork{ID: "work-1", RunAt: time.Now()}, nil
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks/task-1/run-now", nil)
	newTestTaskEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
}

func TestSnooze_RejectsInvalidJSON(t *testing.T) {
	uc := &fakeTaskUsecase{}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks/task-1/snooze", strings.NewReader(`{bad`))
	req.Header.Set("Content-Type", "application/json")
	newTestTaskEngine(uc).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
