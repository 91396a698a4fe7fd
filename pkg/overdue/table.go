// Package overdue remembers the calendar events of pending tasks so their titles
// can be flagged once the due day has passed.
package overdue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Entry struct {
	EventID string    `json:"event_id"`
	Summary string    `json:"summary"`
	Due     time.Time `json:"due"`
}

type Table struct {
	Entries map[string]Entry `json:"entries"`
	Path    string           `json:"-"`
	mu      sync.Mutex
	dirty   bool
}

// Open loads the table at path; a missing file gives an empty table.
func Open(path string) (*Table, error) {
	t := &Table{
		Path:    path,
		Entries: make(map[string]Entry),
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(t); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if t.Entries == nil {
		t.Entries = make(map[string]Entry)
	}
	return t, nil
}

func (t *Table) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0700); err != nil {
		return err
	}

	f, err := os.Create(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(t); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// Track records the event of a pending task due on a later day. A zero due time
// removes the task instead.
func (t *Table) Track(taskID, eventID, summary string, due time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if due.IsZero() {
		t.remove(taskID)
		return
	}
	old, exists := t.Entries[taskID]
	if !exists || !old.Due.Equal(due) || old.EventID != eventID || old.Summary != summary {
		t.Entries[taskID] = Entry{EventID: eventID, Summary: summary, Due: due}
		t.dirty = true
	}
}

func (t *Table) Remove(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(taskID)
}

func (t *Table) remove(taskID string) {
	if _, exists := t.Entries[taskID]; exists {
		delete(t.Entries, taskID)
		t.dirty = true
	}
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Entries)
}

// Sweep returns and forgets the entries whose due day is before now's day. A task
// due today is not overdue yet.
func (t *Table) Sweep(now time.Time) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := now.Format("2006-01-02")
	var swept []Entry
	for id, e := range t.Entries {
		if e.Due.In(now.Location()).Format("2006-01-02") < today {
			swept = append(swept, e)
			delete(t.Entries, id)
			t.dirty = true
		}
	}
	return swept
}
