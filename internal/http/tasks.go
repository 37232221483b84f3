package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/library/internal/auth"
)

// TaskStatusReader looks up queued task state.
type TaskStatusReader interface {
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// MaintenanceRunner triggers a named maintenance job outside its schedule.
type MaintenanceRunner interface {
	RunNow(name string) error
}

// TasksController exposes background maintenance to administrators.
type TasksController struct {
	*views
	statuses    TaskStatusReader
	maintenance MaintenanceRunner
}

// NewTasksController creates a new TasksController. Either dependency may be nil.
func NewTasksController(v *views, statuses TaskStatusReader, maintenance MaintenanceRunner) *TasksController {
	return &TasksController{views: v, statuses: statuses, maintenance: maintenance}
}

// GetTaskStatus handles GET /api/tasks/:id
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	if !tc.requireAdmin(c) {
		return
	}
	if tc.statuses == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "background tasks are disabled"})
		return
	}

	taskID := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.statuses.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": taskStatusToString(status),
	})
}

// RunMaintenance handles POST /maintenance/:job/run
func (tc *TasksController) RunMaintenance(c *gin.Context) {
	if !tc.requireAdmin(c) {
		return
	}
	job := c.Param("job")
	if tc.maintenance == nil {
		respondNotFound(c, "maintenance job")
		return
	}

	if err := tc.maintenance.RunNow(job); err != nil {
		if tc.wantsJSON(c) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Redirect: "/audit"})
			return
		}
		tc.flash(c, auth.FlashError, err.Error())
		c.Redirect(http.StatusSeeOther, "/audit")
		return
	}
	tc.respondAction(c, nil, job+" started", "/audit")
}

func taskStatusToString(status backlite.TaskStatus) string {
	switch status {
	case backlite.TaskStatusPending:
		return "pending"
	case backlite.TaskStatusRunning:
		return "running"
	case backlite.TaskStatusSuccess:
		return "success"
	case backlite.TaskStatusFailure:
		return "failure"
	case backlite.TaskStatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
