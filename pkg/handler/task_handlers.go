// Background task API handlers
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/localpulse/localpulse/pkg/service"
)

// TaskHandler handles background task API requests
type TaskHandler struct {
	tasks *service.TaskService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// RegisterRoutes registers task routes
func (h *TaskHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/tasks", h.List)
	r.POST("/tasks/:id/cancel", h.Cancel)
}

// List returns active and recently finished tasks.
// GET /api/tasks?history=50
func (h *TaskHandler) List(c *gin.Context) {
	historyLimit := 50
	if v := c.Query("history"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			historyLimit = n
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"active":  h.tasks.ListActive(),
		"history": h.tasks.ListHistory(historyLimit),
	})
}

// Cancel cancels a queued or running task.
// POST /api/tasks/:id/cancel
func (h *TaskHandler) Cancel(c *gin.Context) {
	if err := h.tasks.Cancel(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
