package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Workspace owns the on-disk artifacts of every task: source video, extracted
// audio, frame stills, and the rendered document, all under one directory per
// task so deletion is a single rm.
type Workspace struct {
	root string
}

func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Workspace{root: root}, nil
}

func (w *Workspace) TaskDir(taskID uuid.UUID) string {
	return filepath.Join(w.root, taskID.String())
}

// SaveSource streams an uploaded video into the task's directory and returns
// the stored path.
func (w *Workspace) SaveSource(taskID uuid.UUID, filename string, r io.Reader) (string, error) {
	dir := w.TaskDir(taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".mp4"
	}
	path := filepath.Join(dir, "source"+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create source file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write source file: %w", err)
	}
	return path, nil
}

// Remove deletes every artifact of the task.
func (w *Workspace) Remove(taskID uuid.UUID) error {
	return os.RemoveAll(w.TaskDir(taskID))
}
