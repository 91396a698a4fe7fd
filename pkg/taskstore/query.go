package taskstore

import (
	"strings"
	"time"

	"github.com/harrisonrobin/jarvis/pkg/model"
)

// Filter combines the read-only queries. Zero fields don't filter.
type Filter struct {
	Completed *bool
	Priority  model.Priority
	DueDate   string
	Overdue   bool
}

// All returns every task in insertion order.
func (s *Store) All() []model.Task {
	return s.Query(Filter{})
}

func (s *Store) ByStatus(completed bool) []model.Task {
	return s.Query(Filter{Completed: &completed})
}

func (s *Store) ByPriority(p model.Priority) []model.Task {
	return s.Query(Filter{Priority: p})
}

// ByDueDate matches tasks whose stored due date starts with prefix, typically a
// YYYY-MM-DD date.
func (s *Store) ByDueDate(prefix string) []model.Task {
	return s.Query(Filter{DueDate: prefix})
}

// Overdue returns pending tasks whose due date falls on a day before today. A task
// due today is never overdue, whatever the hour.
func (s *Store) Overdue() []model.Task {
	return s.Query(Filter{Overdue: true})
}

func (s *Store) Query(f Filter) []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := civilDate(s.now())
	out := []model.Task{}
	for _, t := range s.tasks {
		if f.matches(t, today) {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (f Filter) matches(t model.Task, today time.Time) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.DueDate != "" && (!t.HasDueDate() || !strings.HasPrefix(t.DueDate.String(), f.DueDate)) {
		return false
	}
	if f.Overdue && (t.Completed || !t.HasDueDate() || !civilDate(t.DueDate.Time).Before(today)) {
		return false
	}
	return true
}

// civilDate drops the clock so dates compare by calendar day.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
