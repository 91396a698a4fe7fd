package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/harrisonrobin/jarvis/pkg/google"
	"github.com/harrisonrobin/jarvis/pkg/model"
)

func (s *Server) calendarOrFail(c *gin.Context) (Calendar, bool) {
	if s.deps.Calendar == nil {
		s.fail(c, fmt.Errorf("%w: calendar", errNotConfigured))
		return nil, false
	}
	return s.deps.Calendar, true
}

func (s *Server) listEvents(c *gin.Context) {
	cal, ok := s.calendarOrFail(c)
	if !ok {
		return
	}
	var limit int64
	if v := c.Query("max_results"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			s.fail(c, fmt.Errorf("%w: max_results must be a positive integer", model.ErrValidation))
			return
		}
		limit = n
	}
	events, err := cal.ListEvents(c.Request.Context(), c.Query("start_date"), c.Query("end_date"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "events": events})
}

func (s *Server) createEvent(c *gin.Context) {
	cal, ok := s.calendarOrFail(c)
	if !ok {
		return
	}
	var req google.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Event summary and start time are required")
		return
	}
	ev, err := cal.CreateEvent(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "event": ev})
}

func (s *Server) updateEvent(c *gin.Context) {
	cal, ok := s.calendarOrFail(c)
	if !ok {
		return
	}
	var p google.EventPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		s.badRequest(c, "invalid event update: "+err.Error())
		return
	}
	if p.Empty() {
		s.badRequest(c, "nothing to update")
		return
	}
	ev, err := cal.UpdateEvent(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "event": ev})
}

func (s *Server) deleteEvent(c *gin.Context) {
	cal, ok := s.calendarOrFail(c)
	if !ok {
		return
	}
	if err := cal.DeleteEvent(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "deleted": true})
}
