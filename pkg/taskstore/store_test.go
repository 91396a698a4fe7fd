package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/jarvis/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type failingBackend struct {
	loadErr error
	saveErr error
	saved   [][]model.Task
}

func (f *failingBackend) Load(ctx context.Context) ([]model.Task, error) {
	return nil, f.loadErr
}

func (f *failingBackend) Save(ctx context.Context, tasks []model.Task) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, tasks)
	return nil
}

func (f *failingBackend) Close() error { return nil }

func newTestStore(t *testing.T) (*Store, *fakeClock, string) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 10, 15, 0, 0, 0, time.Local)}
	path := filepath.Join(t.TempDir(), "data", "tasks.json")
	s, err := Open(context.Background(), NewFileBackend(path), WithClock(clock.Now))
	require.NoError(t, err)
	return s, clock, path
}

func mustTimestamp(t *testing.T, s string) *model.Timestamp {
	t.Helper()
	ts, err := model.ParseTimestamp(s)
	require.NoError(t, err)
	return &ts
}

func TestCreateAssignsFreshIdentity(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		task, err := s.Create(ctx, model.NewTask{Title: "task"})
		require.NoError(t, err)
		assert.NotEmpty(t, task.ID)
		assert.False(t, seen[task.ID], "Expected unique id, got duplicate %s", task.ID)
		seen[task.ID] = true

		assert.False(t, task.Completed)
		assert.Nil(t, task.CompletedAt)
		assert.Equal(t, model.PriorityMedium, task.Priority)
		assert.False(t, task.CreatedAt.IsZero())
	}
	assert.Equal(t, 20, s.Len())
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	s, _, path := newTestStore(t)

	_, err := s.Create(context.Background(), model.NewTask{Title: ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrValidation))
	assert.Equal(t, 0, s.Len())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "a rejected create must not touch the document")
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	keep, err := s.Create(ctx, model.NewTask{Title: "keep"})
	require.NoError(t, err)
	gone, err := s.Create(ctx, model.NewTask{Title: "gone"})
	require.NoError(t, err)

	removed, err := s.Delete(ctx, gone.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, gone.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, 1, s.Len())
	_, err = s.Get(keep.ID)
	assert.NoError(t, err)
	_, err = s.Get(gone.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestCompletedToggleKeepsCompletedAtInSync(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, model.NewTask{Title: "toggle"})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	done, err := s.Update(ctx, task.ID, model.TaskPatch{Completed: model.Some(true)})
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.UpdatedAt)
	firstUpdate := done.UpdatedAt.Time

	clock.Advance(time.Minute)
	undone, err := s.Update(ctx, task.ID, model.TaskPatch{Completed: model.Some(false)})
	require.NoError(t, err)
	assert.False(t, undone.Completed)
	assert.Nil(t, undone.CompletedAt)
	require.NotNil(t, undone.UpdatedAt)
	assert.True(t, undone.UpdatedAt.After(firstUpdate), "Expected updated_at to advance on each toggle")

	for _, task := range s.All() {
		assert.Equal(t, task.Completed, task.CompletedAt != nil)
	}
}

func TestCompletingTwiceKeepsFirstCompletedAt(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, model.NewTask{Title: "twice"})
	require.NoError(t, err)
	first, err := s.Update(ctx, task.ID, model.TaskPatch{Completed: model.Some(true)})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := s.Update(ctx, task.ID, model.TaskPatch{Completed: model.Some(true)})
	require.NoError(t, err)
	assert.True(t, first.CompletedAt.Equal(second.CompletedAt.Time))
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt.Time))
}

func TestBuyMilkScenario(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, model.NewTask{Title: "Buy milk", Priority: model.PriorityHigh})
	require.NoError(t, err)

	stored, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, stored.Priority)
	assert.False(t, stored.Completed)

	clock.Advance(5 * time.Second)
	updated, err := s.Update(ctx, task.ID, model.TaskPatch{Completed: model.Some(true)})
	require.NoError(t, err)
	assert.NotNil(t, updated.CompletedAt)
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, updated.UpdatedAt.After(task.CreatedAt.Time))
	assert.Equal(t, "Buy milk", updated.Title)
}

func TestUpdateUnknownID(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Update(context.Background(), "missing", model.TaskPatch{Title: model.Some("x")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestUpdateAbsentVersusNull(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	task, err := s.Create(ctx, model.NewTask{
		Title:       "Dentist",
		Description: "call first",
		DueDate:     mustTimestamp(t, "2025-03-20T09:30:00"),
		Priority:    model.PriorityLow,
	})
	require.NoError(t, err)

	// Absent fields stay as they are.
	updated, err := s.Update(ctx, task.ID, model.TaskPatch{Title: model.Some("Dentist appointment")})
	require.NoError(t, err)
	assert.Equal(t, "Dentist appointment", updated.Title)
	assert.Equal(t, "call first", updated.Description)
	require.NotNil(t, updated.DueDate)
	assert.Equal(t, model.PriorityLow, updated.Priority)

	// Explicit nulls clear.
	cleared, err := s.Update(ctx, task.ID, model.TaskPatch{
		Description: model.Null[string](),
		DueDate:     model.Null[model.Timestamp](),
		Priority:    model.Null[model.Priority](),
	})
	require.NoError(t, err)
	assert.Equal(t, "", cleared.Description)
	assert.Nil(t, cleared.DueDate)
	assert.Equal(t, model.PriorityMedium, cleared.Priority)

	_, err = s.Update(ctx, task.ID, model.TaskPatch{Title: model.Null[string]()})
	assert.True(t, errors.Is(err, model.ErrValidation))

	_, err = s.Update(ctx, task.ID, model.TaskPatch{Priority: model.Some(model.Priority("urgent"))})
	assert.True(t, errors.Is(err, model.ErrValidation))

	current, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dentist appointment", current.Title, "rejected patches must not be applied")
}

func TestRoundTripPreservesCollection(t *testing.T) {
	s, clock, path := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, model.NewTask{Title: "Acheter du café", Description: "arabica", DueDate: mustTimestamp(t, "2025-03-12T08:00:00")})
	require.NoError(t, err)
	second, err := s.Create(ctx, model.NewTask{Title: "Pay rent", Priority: model.PriorityHigh})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.NewTask{Title: "Call mum", Priority: model.PriorityLow})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = s.Update(ctx, second.ID, model.TaskPatch{Completed: model.Some(true)})
	require.NoError(t, err)

	reopened, err := Open(ctx, NewFileBackend(path), WithClock(clock.Now))
	require.NoError(t, err)

	before, err := json.Marshal(s.All())
	require.NoError(t, err)
	after, err := json.Marshal(reopened.All())
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))

	titles := []string{}
	for _, task := range reopened.All() {
		titles = append(titles, task.Title)
	}
	assert.Equal(t, []string{"Acheter du café", "Pay rent", "Call mum"}, titles)
}

func TestDocumentFormat(t *testing.T) {
	s, _, path := newTestStore(t)
	_, err := s.Create(context.Background(), model.NewTask{Title: "Réserver l'hôtel"})
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(b)
	assert.True(t, strings.HasPrefix(doc, "[\n  {\n    \"id\": "), "Expected two-space indented array, got:\n%s", doc)
	assert.Contains(t, doc, `"title": "Réserver l'hôtel"`)
	assert.Contains(t, doc, `"due_date": null`)
	assert.NotContains(t, doc, "completed_at")
}

func TestOverdue(t *testing.T) {
	s, clock, _ := newTestStore(t)
	ctx := context.Background()

	yesterday, err := s.Create(ctx, model.NewTask{Title: "late", DueDate: mustTimestamp(t, "2025-03-09T23:59:00")})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.NewTask{Title: "due this morning", DueDate: mustTimestamp(t, "2025-03-10T08:00:00")})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.NewTask{Title: "tomorrow", DueDate: mustTimestamp(t, "2025-03-11")})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.NewTask{Title: "no due date"})
	require.NoError(t, err)
	done, err := s.Create(ctx, model.NewTask{Title: "done long ago", DueDate: mustTimestamp(t, "2025-03-01")})
	require.NoError(t, err)
	_, err = s.Update(ctx, done.ID, model.TaskPatch{Completed: model.Some(true)})
	require.NoError(t, err)

	overdue := s.Overdue()
	require.Len(t, overdue, 1)
	assert.Equal(t, yesterday.ID, overdue[0].ID)

	// Late in the evening the morning task is still only due today.
	clock.Advance(8 * time.Hour)
	assert.Len(t, s.Overdue(), 1)

	clock.Advance(24 * time.Hour)
	assert.Len(t, s.Overdue(), 2)
}

func TestFilters(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, model.NewTask{Title: "a", Priority: model.PriorityHigh, DueDate: mustTimestamp(t, "2025-03-12T10:00:00")})
	require.NoError(t, err)
	_, err = s.Create(ctx, model.NewTask{Title: "b", DueDate: mustTimestamp(t, "2025-03-13")})
	require.NoError(t, err)
	c, err := s.Create(ctx, model.NewTask{Title: "c", Priority: model.PriorityHigh})
	require.NoError(t, err)
	_, err = s.Update(ctx, c.ID, model.TaskPatch{Completed: model.Some(true)})
	require.NoError(t, err)

	assert.Len(t, s.ByStatus(false), 2)
	assert.Len(t, s.ByStatus(true), 1)
	assert.Len(t, s.ByPriority(model.PriorityHigh), 2)
	assert.Len(t, s.ByPriority(model.PriorityLow), 0)

	due := s.ByDueDate("2025-03-12")
	require.Len(t, due, 1)
	assert.Equal(t, a.ID, due[0].ID)
	assert.Len(t, s.ByDueDate("2025-03"), 2)

	pending := false
	combined := s.Query(Filter{Completed: &pending, Priority: model.PriorityHigh})
	require.Len(t, combined, 1)
	assert.Equal(t, a.ID, combined[0].ID)

	assert.NotNil(t, s.ByPriority(model.PriorityLow), "empty results are an empty slice")
}

func TestReturnedTasksAreCopies(t *testing.T) {
	s, _, _ := newTestStore(t)
	task, err := s.Create(context.Background(), model.NewTask{Title: "original"})
	require.NoError(t, err)

	all := s.All()
	all[0].Title = "mutated"

	got, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Title)
}

func TestOpenMalformedDocumentStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte("{this is not json"), 0600))

	s, err := Open(context.Background(), NewFileBackend(path))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	_, err = s.Create(context.Background(), model.NewTask{Title: "fresh start"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestOpenEmptyDueDateMeansNoDueDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	doc := `[
  {
    "id": "a",
    "title": "Appeler le plombier",
    "description": "",
    "created_at": "2025-03-01T09:00:00.123456",
    "due_date": "",
    "priority": "medium",
    "completed": false
  }
]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	clock := &fakeClock{t: time.Date(2025, 3, 10, 15, 0, 0, 0, time.Local)}
	s, err := Open(context.Background(), NewFileBackend(path), WithClock(clock.Now))
	require.NoError(t, err)

	task, err := s.Get("a")
	require.NoError(t, err)
	assert.Nil(t, task.DueDate)
	assert.False(t, task.HasDueDate())
	assert.Empty(t, s.Overdue())
	assert.Empty(t, s.ByDueDate("0001"))

	// Writing the collection back stores the missing due date as null.
	_, err = s.Update(context.Background(), "a", model.TaskPatch{Priority: model.Some(model.PriorityHigh)})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"due_date": null`)
}

func TestOpenUnreadableBackend(t *testing.T) {
	_, err := Open(context.Background(), &failingBackend{loadErr: errors.New("permission denied")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrPersistence))
}

func TestPersistenceFailureIsReportedAndRolledBack(t *testing.T) {
	backend := &failingBackend{}
	s, err := Open(context.Background(), backend)
	require.NoError(t, err)
	ctx := context.Background()

	task, err := s.Create(ctx, model.NewTask{Title: "survivor"})
	require.NoError(t, err)

	backend.saveErr = errors.New("disk full")

	_, err = s.Create(ctx, model.NewTask{Title: "lost"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrPersistence))
	assert.False(t, errors.Is(err, model.ErrValidation))
	assert.Equal(t, 1, s.Len())

	_, err = s.Update(ctx, task.ID, model.TaskPatch{Title: model.Some("renamed")})
	assert.True(t, errors.Is(err, model.ErrPersistence))
	got, _ := s.Get(task.ID)
	assert.Equal(t, "survivor", got.Title)

	removed, err := s.Delete(ctx, task.ID)
	assert.True(t, errors.Is(err, model.ErrPersistence))
	assert.False(t, removed)
	assert.Equal(t, 1, s.Len())
}

func TestConcurrentCreatesAreNotLost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	s, err := Open(context.Background(), NewFileBackend(path))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(context.Background(), model.NewTask{Title: "parallel"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	reopened, err := Open(context.Background(), NewFileBackend(path))
	require.NoError(t, err)
	assert.Equal(t, 25, reopened.Len())
}
