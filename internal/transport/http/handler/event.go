package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/edgeworks-labs/orbiter/internal/usecase"
	"github.com/gin-gonic/gin"
)

type eventUsecaser interface {
	PublishEvent(ctx context.Context, input usecase.PublishEventInput) (string, error)
}

type EventHandler struct {
	uc     eventUsecaser
	logger *slog.Logger
}

func NewEventHandler(uc eventUsecaser, logger *slog.Logger) *EventHandler {
	return &EventHandler{uc: uc, logger: logger.With("component", "event_handler")}
}

type publishEventRequest struct {
	Topic   string       `json:"topic"   binding:"required"`
	Source  string       `json:"source"  binding:"required"`
	Payload domain.Value `json:"payload"`
}

// Publish appends the event to the Redis stream and returns once the
// append is durable; Scheduler.OnEvent runs later, off the standalone
// scheduler process's consumer loop.
func (h *EventHandler) Publish(ctx *gin.Context) {
	var req publishEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.uc.PublishEvent(ctx.Request.Context(), usecase.PublishEventInput{
		Topic:   req.Topic,
		Source:  req.Source,
		Payload: req.Payload,
	})
	if err != nil {
		h.logger.Error("publish event", "topic", req.Topic, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"event_id": id})
}
