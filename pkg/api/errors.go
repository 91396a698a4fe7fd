package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/harrisonrobin/jarvis/pkg/model"
)

// errNotConfigured is returned for routes whose collaborator was not set up.
var errNotConfigured = errors.New("service not configured")

func statusFor(err error) int {
	switch {
	case errors.Is(err, errNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrExternalService):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Request.URL.Path, "status", status, "err", err)
	}
	c.JSON(status, gin.H{"status": "error", "message": err.Error()})
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": msg})
}
