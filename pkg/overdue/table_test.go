package overdue

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSweep(t *testing.T) {
	tbl, err := Open(filepath.Join(t.TempDir(), "overdue.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	tbl.Track("late", "ev1", "Pay rent", time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC))
	tbl.Track("today", "ev2", "Call mum", time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	tbl.Track("later", "ev3", "Dentist", time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC))
	tbl.Track("cleared", "ev4", "Nothing", time.Time{})

	swept := tbl.Sweep(now)
	if len(swept) != 1 || swept[0].EventID != "ev1" || swept[0].Summary != "Pay rent" {
		t.Fatalf("Expected only ev1 to be swept, got %+v", swept)
	}
	if tbl.Len() != 2 {
		t.Errorf("Expected 2 entries left, got %d", tbl.Len())
	}
	if again := tbl.Sweep(now); len(again) != 0 {
		t.Errorf("Expected swept entries to be forgotten, got %+v", again)
	}
}

func TestSaveAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "overdue.json")
	tbl, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	due := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	tbl.Track("t1", "ev1", "Dentist", due)
	if err := tbl.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	e, ok := reopened.Entries["t1"]
	if !ok || e.EventID != "ev1" || !e.Due.Equal(due) {
		t.Errorf("Expected t1 to survive the round trip, got %+v", reopened.Entries)
	}

	reopened.Remove("t1")
	reopened.Remove("unknown")
	if reopened.Len() != 0 {
		t.Errorf("Expected empty table after remove, got %d", reopened.Len())
	}
}
