// Package taskstore owns the user's task collection. The whole collection lives in
// memory and is written through to a Backend on every mutation.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/jarvis/pkg/model"
)

type Store struct {
	mu      sync.RWMutex
	backend Backend
	tasks   []model.Task
	now     func() time.Time
	log     *slog.Logger
}

type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// Open loads the collection from backend. A missing or malformed document yields
// an empty store; a backend that can't be read at all is an ErrPersistence.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		now:     time.Now,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	tasks, err := backend.Load(ctx)
	switch {
	case errors.Is(err, ErrCorrupt):
		s.log.Warn("task collection is malformed, starting empty", "err", err)
		tasks = nil
	case err != nil:
		return nil, fmt.Errorf("%w: load tasks: %w", model.ErrPersistence, err)
	}
	for i := range tasks {
		tasks[i].Normalize()
	}
	s.tasks = tasks
	return s, nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) stamp() model.Timestamp {
	return model.NewTimestamp(s.now())
}

// persist saves next and only then makes it the current collection, so a failed
// write leaves memory as it was before the mutation.
func (s *Store) persist(ctx context.Context, next []model.Task) error {
	if err := s.backend.Save(ctx, next); err != nil {
		return fmt.Errorf("%w: save tasks: %w", model.ErrPersistence, err)
	}
	s.tasks = next
	return nil
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.tasks, func(t model.Task) bool { return t.ID == id })
}

func (s *Store) newID() string {
	for {
		id := uuid.New().String()
		if s.indexOf(id) < 0 {
			return id
		}
	}
}

// Create validates n, appends a new pending task and persists the collection.
func (s *Store) Create(ctx context.Context, n model.NewTask) (model.Task, error) {
	if err := n.Validate(); err != nil {
		return model.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := model.Task{
		ID:          s.newID(),
		Title:       n.Title,
		Description: n.Description,
		CreatedAt:   s.stamp(),
		Priority:    n.Priority,
	}
	if n.DueDate != nil && !n.DueDate.IsZero() {
		due := *n.DueDate
		t.DueDate = &due
	}

	next := append(slices.Clone(s.tasks), t)
	if err := s.persist(ctx, next); err != nil {
		return model.Task{}, err
	}
	s.log.Debug("task created", "id", t.ID, "priority", t.Priority)
	return t.Clone(), nil
}

func (s *Store) Get(id string) (model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Task{}, fmt.Errorf("%w: task %s", model.ErrNotFound, id)
	}
	return s.tasks[i].Clone(), nil
}

// Update applies the provided fields of p to the task with the given id.
func (s *Store) Update(ctx context.Context, id string, p model.TaskPatch) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Task{}, fmt.Errorf("%w: task %s", model.ErrNotFound, id)
	}

	t := s.tasks[i].Clone()
	if err := applyPatch(&t, p, s.stamp()); err != nil {
		return model.Task{}, err
	}

	next := slices.Clone(s.tasks)
	next[i] = t
	if err := s.persist(ctx, next); err != nil {
		return model.Task{}, err
	}
	return t.Clone(), nil
}

// applyPatch follows these rules for explicit nulls: title is rejected,
// description becomes "", priority goes back to medium, due date is cleared and
// completed becomes false.
func applyPatch(t *model.Task, p model.TaskPatch, now model.Timestamp) error {
	if p.Title.Set {
		title := strings.TrimSpace(p.Title.Value)
		if p.Title.Null || title == "" {
			return fmt.Errorf("%w: task title can't be empty", model.ErrValidation)
		}
		t.Title = title
	}
	if p.Description.Set {
		t.Description = p.Description.Value
	}
	if p.DueDate.Set {
		if p.DueDate.Null || p.DueDate.Value.IsZero() {
			t.DueDate = nil
		} else {
			due := p.DueDate.Value
			t.DueDate = &due
		}
	}
	if p.Priority.Set {
		priority := model.PriorityMedium
		if !p.Priority.Null {
			parsed, err := model.ParsePriority(string(p.Priority.Value))
			if err != nil {
				return err
			}
			priority = parsed
		}
		t.Priority = priority
	}
	if p.Completed.Set {
		done := !p.Completed.Null && p.Completed.Value
		switch {
		case done && !t.Completed:
			completedAt := now
			t.CompletedAt = &completedAt
		case !done:
			t.CompletedAt = nil
		}
		t.Completed = done
	}

	updatedAt := now
	t.UpdatedAt = &updatedAt
	return nil
}

// Delete reports whether a task was removed. Unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	next := slices.Delete(slices.Clone(s.tasks), i, i+1)
	if err := s.persist(ctx, next); err != nil {
		return false, err
	}
	s.log.Debug("task deleted", "id", id)
	return true, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
