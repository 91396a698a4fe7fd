package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/harrisonrobin/jarvis/pkg/model"
	"github.com/harrisonrobin/jarvis/pkg/taskstore"
)

func parseFilter(c *gin.Context) (taskstore.Filter, error) {
	var f taskstore.Filter
	if v := c.Query("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("%w: completed must be true or false", model.ErrValidation)
		}
		f.Completed = &b
	}
	if v := c.Query("priority"); v != "" {
		p, err := model.ParsePriority(v)
		if err != nil {
			return f, err
		}
		f.Priority = p
	}
	f.DueDate = c.Query("due_date")
	if v := c.Query("overdue"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("%w: overdue must be true or false", model.ErrValidation)
		}
		f.Overdue = b
	}
	return f, nil
}

func (s *Server) listTasks(c *gin.Context) {
	f, err := parseFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "tasks": s.deps.Tasks.Query(f)})
}

func (s *Server) getTask(c *gin.Context) {
	task, err := s.deps.Tasks.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "task": task})
}

func (s *Server) createTask(c *gin.Context) {
	var n model.NewTask
	if err := c.ShouldBindJSON(&n); err != nil {
		s.badRequest(c, "invalid task: "+err.Error())
		return
	}
	task, err := s.deps.Tasks.Create(c.Request.Context(), n)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "task": task})
}

type updateTaskRequest struct {
	ID string `json:"id"`
	model.TaskPatch
}

// updateTask serves both PUT /tasks with the id in the body and PUT /tasks/:id.
func (s *Server) updateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid task update: "+err.Error())
		return
	}
	id := c.Param("id")
	if id == "" {
		id = req.ID
	}
	if id == "" {
		s.badRequest(c, "Task ID is required")
		return
	}
	task, err := s.deps.Tasks.Update(c.Request.Context(), id, req.TaskPatch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "task": task})
}

func (s *Server) deleteTask(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		var req struct {
			ID string `json:"id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
			s.badRequest(c, "Task ID is required")
			return
		}
		id = req.ID
	}

	deleted, err := s.deps.Tasks.Delete(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if deleted && s.deps.Calendar != nil {
		if err := s.deps.Calendar.UnsyncTask(c.Request.Context(), id); err != nil {
			s.log.Warn("could not remove calendar event of deleted task", "task", id, "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "deleted": deleted})
}

// scheduleTask puts the task on the calendar, or refreshes its event.
func (s *Server) scheduleTask(c *gin.Context) {
	if s.deps.Calendar == nil {
		s.fail(c, fmt.Errorf("%w: calendar", errNotConfigured))
		return
	}
	task, err := s.deps.Tasks.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ev, err := s.deps.Calendar.SyncTask(c.Request.Context(), task)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "event": ev})
}
