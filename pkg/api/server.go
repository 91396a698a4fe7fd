// Package api exposes the assistant, the task list and the calendar over HTTP for
// the web client.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/harrisonrobin/jarvis/pkg/config"
	"github.com/harrisonrobin/jarvis/pkg/conversation"
	"github.com/harrisonrobin/jarvis/pkg/google"
	"github.com/harrisonrobin/jarvis/pkg/model"
	"github.com/harrisonrobin/jarvis/pkg/taskstore"
	"github.com/harrisonrobin/jarvis/pkg/voice"
	"google.golang.org/api/calendar/v3"
)

// SessionHeader picks the conversation; requests without it share the default one.
const SessionHeader = "X-Session-ID"

type TaskStore interface {
	Create(ctx context.Context, n model.NewTask) (model.Task, error)
	Get(id string) (model.Task, error)
	Update(ctx context.Context, id string, p model.TaskPatch) (model.Task, error)
	Delete(ctx context.Context, id string) (bool, error)
	Query(f taskstore.Filter) []model.Task
}

type Calendar interface {
	ListEvents(ctx context.Context, startDate, endDate string, maxResults int64) ([]*calendar.Event, error)
	CreateEvent(ctx context.Context, req google.EventRequest) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, eventID string, p google.EventPatch) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
	SyncTask(ctx context.Context, task model.Task) (*calendar.Event, error)
	UnsyncTask(ctx context.Context, taskID string) error
}

// Speaker turns a reply into an audio URL.
type Speaker interface {
	Speak(ctx context.Context, text string) (string, error)
}

// Deps are the collaborators behind the routes. Only Tasks is required; routes
// whose collaborator is nil answer 503.
type Deps struct {
	Tasks      TaskStore
	Sessions   *conversation.Registry
	Calendar   Calendar
	Recognizer voice.Recognizer
	Speaker    Speaker
	AudioDir   string
	Logger     *slog.Logger
}

type Server struct {
	cfg     *config.Config
	deps    Deps
	engine  *gin.Engine
	limiter *clientLimiter
	log     *slog.Logger
}

func New(cfg *config.Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{cfg: cfg, deps: deps, log: log}
	if cfg.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
	}

	e := gin.New()
	e.Use(recovery(log), requestLogger(log), cors.New(corsConfig(cfg.Server.CORSOrigins)))
	s.engine = e
	s.routes()
	return s
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", SessionHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

func (s *Server) routes() {
	e := s.engine
	if s.deps.AudioDir != "" {
		e.Static("/static/audio", s.deps.AudioDir)
	}

	api := e.Group("/api")
	api.GET("/ping", s.ping)

	assistant := api.Group("")
	if s.limiter != nil {
		assistant.Use(s.limiter.middleware())
	}
	assistant.POST("/process_text", s.processText)
	assistant.POST("/process_voice", s.processVoice)
	api.POST("/session/clear", s.clearSession)

	api.GET("/tasks", s.listTasks)
	api.POST("/tasks", s.createTask)
	api.PUT("/tasks", s.updateTask)
	api.DELETE("/tasks", s.deleteTask)
	api.GET("/tasks/:id", s.getTask)
	api.PUT("/tasks/:id", s.updateTask)
	api.DELETE("/tasks/:id", s.deleteTask)
	api.POST("/tasks/:id/calendar", s.scheduleTask)

	api.GET("/calendar/events", s.listEvents)
	api.POST("/calendar/events", s.createEvent)
	api.PUT("/calendar/events/:id", s.updateEvent)
	api.DELETE("/calendar/events/:id", s.deleteEvent)
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ServerAddr(),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: s.cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  s.cfg.Server.IdleTimeout.Duration,
	}
	if s.limiter != nil {
		go s.limiter.run(ctx, s.cfg.RateLimit.CleanupInterval.Duration)
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Jarvis API is running"})
}
