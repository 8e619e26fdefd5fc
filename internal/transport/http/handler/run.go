package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/gin-gonic/gin"
)

type runUsecaser interface {
	ListRuns(ctx context.Context, taskID, ownerID string, limit int) ([]*domain.Run, error)
	GetRun(ctx context.Context, taskID, ownerID, runID string) (*domain.Run, error)
}

type RunHandler struct {
	uc     runUsecaser
	logger *slog.Logger
}

func NewRunHandler(uc runUsecaser, logger *slog.Logger) *RunHandler {
	return &RunHandler{uc: uc, logger: logger.With("component", "run_handler")}
}

type runResponse struct {
	ID          string        `json:"id"`
	TaskID      string        `json:"task_id"`
	DueWorkID   string        `json:"due_work_id"`
	LeaseOwner  string        `json:"lease_owner"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	Success     bool          `json:"success"`
	Skipped     bool          `json:"skipped,omitempty"`
	Attempt     int           `json:"attempt"`
	Error       *string       `json:"error,omitempty"`
	ErrorKind   *string       `json:"error_kind,omitempty"`
	Output      *domain.Value `json:"output,omitempty"`
}

func toRunResponse(r *domain.Run) runResponse {
	return runResponse{
		ID:         r.ID,
		TaskID:     r.TaskID,
		DueWorkID:  r.DueWorkID,
		LeaseOwner: r.LeaseOwner,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Success:    r.Success,
		Skipped:    r.Skipped,
		Attempt:    r.Attempt,
		Error:      r.Error,
		ErrorKind:  r.ErrorKind,
		Output:     r.Output,
	}
}

func (h *RunHandler) List(ctx *gin.Context) {
	taskID := ctx.Param("id")
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	runs, err := h.uc.ListRuns(ctx.Request.Context(), taskID, ctx.GetString("ownerID"), limit)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTaskNotFound})
			return
		}
		h.logger.Error("list runs", "task_id", taskID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]runResponse, len(runs))
	for i, r := range runs {
		items[i] = toRunResponse(r)
	}
	ctx.JSON(http.StatusOK, gin.H{"runs": items})
}

func (h *RunHandler) GetByID(ctx *gin.Context) {
	taskID := ctx.Param("id")
	runID := ctx.Param("run_id")

	run, err := h.uc.GetRun(ctx.Request.Context(), taskID, ctx.GetString("ownerID"), runID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTaskNotFound})
			return
		}
		h.logger.Error("get run", "task_id", taskID, "run_id", runID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, toRunResponse(run))
}
