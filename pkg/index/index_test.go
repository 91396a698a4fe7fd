package index

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIndexRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jarvis", "events.json")

	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := idx.Get("task-1"); got != "" {
		t.Errorf("Expected empty mapping, got %q", got)
	}

	// Nothing changed yet, so nothing is written.
	if err := idx.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected no file before the first change, stat err = %v", err)
	}

	idx.Set("task-1", "event-a")
	idx.Set("task-2", "event-b")
	if err := idx.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Get("task-2"); got != "event-b" {
		t.Errorf("Expected event-b, got %q", got)
	}
	if taskID, ok := reopened.TaskFor("event-a"); !ok || taskID != "task-1" {
		t.Errorf("Expected reverse lookup to find task-1, got %q %v", taskID, ok)
	}

	reopened.Remove("task-1")
	if _, ok := reopened.TaskFor("event-a"); ok {
		t.Error("Expected event-a to be gone after Remove")
	}
}

func TestOpenCorruptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Expected an error for a corrupt index")
	}
}
