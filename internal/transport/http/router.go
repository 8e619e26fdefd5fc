// Package httptransport assembles the gin.Engine for the server
// process, generalizing the teacher's internal/http.NewRouter to the
// full Task/Run/Event surface plus health endpoints.
package httptransport

import (
	"log/slog"

	"github.com/edgeworks-labs/orbiter/internal/health"
	"github.com/edgeworks-labs/orbiter/internal/transport/http/handler"
	"github.com/edgeworks-labs/orbiter/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

func NewRouter(
	logger *slog.Logger,
	taskHandler *handler.TaskHandler,
	runHandler *handler.RunHandler,
	eventHandler *handler.EventHandler,
	checker *health.Checker,
	jwtSecret []byte,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", gin.WrapF(checker.LivenessHandler))
	r.GET("/readyz", gin.WrapF(checker.ReadinessHandler))

	authMW := middleware.Auth(jwtSecret)

	tasks := r.Group("/tasks", authMW)
	tasks.POST("", taskHandler.Create)
	tasks.GET("", taskHandler.List)
	tasks.GET("/:id", taskHandler.GetByID)
	tasks.PUT("/:id", taskHandler.Update)
	tasks.DELETE("/:id", taskHandler.Cancel)
	tasks.POST("/:id/pause", taskHandler.Pause)
	tasks.POST("/:id/resume", taskHandler.Resume)
	tasks.POST("/:id/snooze", taskHandler.Snooze)
	tasks.POST("/:id/run_now", taskHandler.RunNow)
	tasks.GET("/:id/runs", runHandler.List)
	tasks.GET("/:id/runs/:run_id", runHandler.GetByID)

	events := r.Group("/events", authMW)
	events.POST("", eventHandler.Publish)

	return r
}
