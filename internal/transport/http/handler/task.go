package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/usecase"
	"github.com/gin-gonic/gin"
)

// taskUsecaser is the subset of *usecase.TaskUsecase the handler
// drives; narrowed to an interface so fakes can stand in for tests.
type taskUsecaser interface {
	CreateTask(ctx context.Context, input usecase.CreateTaskInput) (*domain.Task, error)
	GetTask(ctx context.Context, id, ownerID string) (*domain.Task, error)
	ListTasks(ctx context.Context, input usecase.ListTasksInput) (usecase.ListTasksResult, error)
	UpdateTask(ctx context.Context, input usecase.UpdateTaskInput) (*domain.Task, error)
	PauseTask(ctx context.Context, id, ownerID string) error
	ResumeTask(ctx context.Context, id, ownerID string) error
	CancelTask(ctx context.Context, id, ownerID string) error
	SnoozeTask(ctx context.Context, id, ownerID string, delaySeconds int64) error
	RunNowTask(ctx context.Context, id, ownerID string) (*domain.DueWork, error)
}

type TaskHandler struct {
	uc     taskUsecaser
	logger *slog.Logger
}

func NewTaskHandler(uc taskUsecaser, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{uc: uc, logger: logger.With("component", "task_handler")}
}

type scheduleRequest struct {
	Kind       domain.ScheduleKind `json:"kind"       binding:"required,oneof=cron rrule once event"`
	Expression string              `json:"expression" binding:"required"`
	Timezone   string              `json:"timezone"`
}

type policyRequest struct {
	Priority            int            `json:"priority"              binding:"omitempty,min=1,max=9"`
	MaxRetries          int            `json:"max_retries"           binding:"omitempty,min=0,max=50"`
	BackoffStrategy     domain.Backoff `json:"backoff_strategy"      binding:"omitempty,oneof=exponential_jitter linear fixed"`
	DedupeKey           *string        `json:"dedupe_key,omitempty"`
	DedupeWindowSeconds int            `json:"dedupe_window_seconds" binding:"omitempty,min=0"`
	ConcurrencyKey      *string        `json:"concurrency_key,omitempty"`
}

type createTaskRequest struct {
	Title    string             `json:"title"    binding:"required,max=256"`
	Schedule scheduleRequest    `json:"schedule" binding:"required"`
	Payload  domain.Payload     `json:"payload"  binding:"required"`
	Policy   policyRequest      `json:"policy"`
}

type taskResponse struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Title     string            `json:"title"`
	Schedule  domain.Schedule   `json:"schedule"`
	Payload   domain.Payload    `json:"payload"`
	Policy    domain.Policy     `json:"policy"`
	Status    domain.TaskStatus `json:"status"`
	NextRun   *time.Time        `json:"next_run,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func toTaskResponse(t *domain.Task) taskResponse {
	return taskResponse{
		ID:        t.ID,
		OwnerID:   t.OwnerID,
		Title:     t.Title,
		Schedule:  t.Schedule,
		Payload:   t.Payload,
		Policy:    t.Policy,
		Status:    t.Status,
		NextRun:   t.NextRun,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func toPolicy(req policyRequest) domain.Policy {
	return domain.Policy{
		Priority:            req.Priority,
		MaxRetries:          req.MaxRetries,
		BackoffStrategy:     req.BackoffStrategy,
		DedupeKey:           req.DedupeKey,
		DedupeWindowSeconds: req.DedupeWindowSeconds,
		ConcurrencyKey:      req.ConcurrencyKey,
	}
}

func (h *TaskHandler) writeTaskError(ctx *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": errTaskNotFound})
	case errors.Is(err, domain.ErrDuplicateTask):
		ctx.JSON(http.StatusConflict, gin.H{"error": errDuplicateTask})
	case errors.Is(err, domain.ErrInvalidSchedule):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidSchedule})
	case errors.Is(err, domain.ErrTaskAlreadyPaused):
		ctx.JSON(http.StatusConflict, gin.H{"error": errTaskAlreadyPaused})
	case errors.Is(err, domain.ErrTaskNotPaused):
		ctx.JSON(http.StatusConflict, gin.H{"error": errTaskNotPaused})
	case errors.Is(err, domain.ErrTaskNotActive):
		ctx.JSON(http.StatusConflict, gin.H{"error": errTaskNotActive})
	default:
		h.logger.Error(op, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}

func (h *TaskHandler) Create(ctx *gin.Context) {
	var req createTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.uc.CreateTask(ctx.Request.Context(), usecase.CreateTaskInput{
		OwnerID: ctx.GetString("ownerID"),
		Title:   req.Title,
		Schedule: domain.Schedule{
			Kind:       req.Schedule.Kind,
			Expression: req.Schedule.Expression,
			Timezone:   req.Schedule.Timezone,
		},
		Payload: req.Payload,
		Policy:  toPolicy(req.Policy),
	})
	if err != nil {
		h.writeTaskError(ctx, "create task", err)
		return
	}

	ctx.JSON(http.StatusCreated, toTaskResponse(t))
}

func (h *TaskHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")
	t, err := h.uc.GetTask(ctx.Request.Context(), id, ctx.GetString("ownerID"))
	if err != nil {
		h.writeTaskError(ctx, "get task", err)
		return
	}
	ctx.JSON(http.StatusOK, toTaskResponse(t))
}

func (h *TaskHandler) List(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	result, err := h.uc.ListTasks(ctx.Request.Context(), usecase.ListTasksInput{
		OwnerID: ctx.GetString("ownerID"),
		Status:  domain.TaskStatus(ctx.Query("status")),
		Cursor:  ctx.Query("cursor"),
		Limit:   limit,
	})
	if err != nil {
		h.writeTaskError(ctx, "list tasks", err)
		return
	}

	items := make([]taskResponse, len(result.Tasks))
	for i, t := range result.Tasks {
		items[i] = toTaskResponse(t)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"tasks":       items,
		"next_cursor": result.NextCursor,
	})
}

func (h *TaskHandler) Update(ctx *gin.Context) {
	id := ctx.Param("id")

	var req createTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.uc.UpdateTask(ctx.Request.Context(), usecase.UpdateTaskInput{
		ID:      id,
		OwnerID: ctx.GetString("ownerID"),
		Title:   req.Title,
		Schedule: domain.Schedule{
			Kind:       req.Schedule.Kind,
			Expression: req.Schedule.Expression,
			Timezone:   req.Schedule.Timezone,
		},
		Payload: req.Payload,
		Policy:  toPolicy(req.Policy),
	})
	if err != nil {
		h.writeTaskError(ctx, "update task", err)
		return
	}

	ctx.JSON(http.StatusOK, toTaskResponse(t))
}

func (h *TaskHandler) Pause(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := h.uc.PauseTask(ctx.Request.Context(), id, ctx.GetString("ownerID")); err != nil {
		h.writeTaskError(ctx, "pause task", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *TaskHandler) Resume(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := h.uc.ResumeTask(ctx.Request.Context(), id, ctx.GetString("ownerID")); err != nil {
		h.writeTaskError(ctx, "resume task", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *TaskHandler) Cancel(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := h.uc.CancelTask(ctx.Request.Context(), id, ctx.GetString("ownerID")); err != nil {
		h.writeTaskError(ctx, "cancel task", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

type snoozeRequest struct {
	DelaySeconds int64 `json:"delay_seconds"`
}

func (h *TaskHandler) Snooze(ctx *gin.Context) {
	id := ctx.Param("id")

	var req snoozeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.uc.SnoozeTask(ctx.Request.Context(), id, ctx.GetString("ownerID"), req.DelaySeconds); err != nil {
		h.writeTaskError(ctx, "snooze task", err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *TaskHandler) RunNow(ctx *gin.Context) {
	id := ctx.Param("id")

	work, err := h.uc.RunNowTask(ctx.Request.Context(), id, ctx.GetString("ownerID"))
	if err != nil {
		h.writeTaskError(ctx, "run task now", err)
		return
	}
	if work == nil {
		ctx.JSON(http.StatusOK, gin.H{"suppressed": true})
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{"due_work_id": work.ID, "run_at": work.RunAt})
}
