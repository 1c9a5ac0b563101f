package pipeline

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRegistry_CancelSignalsAndRemoves(t *testing.T) {
	r := NewRegistry()
	taskID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	r.Add(taskID, cancel)

	if !r.Cancel(taskID) {
		t.Fatalf("cancel should report an in-flight pipeline")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("context was not cancelled")
	}
	if r.Len() != 0 {
		t.Fatalf("cancel should remove the entry")
	}
	if r.Cancel(taskID) {
		t.Fatalf("second cancel should find nothing")
	}
}

func TestRegistry_RemoveUnknownIsSafe(t *testing.T) {
	r := NewRegistry()
	r.Remove(uuid.New())
	if r.Len() != 0 {
		t.Fatalf("registry should stay empty")
	}
}

func TestWorkspace_SaveAndRemove(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	taskID := uuid.New()

	path, err := ws.SaveSource(taskID, "lecture.mp4", strings.NewReader("videobytes"))
	if err != nil {
		t.Fatalf("save source: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "videobytes" {
		t.Fatalf("source not stored: %v %q", err, data)
	}

	if err := ws.Remove(taskID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(ws.TaskDir(taskID)); !os.IsNotExist(err) {
		t.Fatalf("task dir should be gone, stat err: %v", err)
	}
}

func TestWorkspace_SourceExtensionDefaults(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	path, err := ws.SaveSource(uuid.New(), "noextension", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("save source: %v", err)
	}
	if !strings.HasSuffix(path, "source.mp4") {
		t.Fatalf("expected default extension, got %s", path)
	}
}
