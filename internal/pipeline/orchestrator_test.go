package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lecturelens-backend/internal/domain"
	"github.com/yungbote/lecturelens-backend/internal/media"
	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
	"github.com/yungbote/lecturelens-backend/internal/repos"
	"github.com/yungbote/lecturelens-backend/internal/sse"
	"github.com/yungbote/lecturelens-backend/internal/timeline"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// memTaskRepo mirrors the SQLite-backed repo, including the forward-only
// transition check, so orchestrator tests run without a database.
type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (r *memTaskRepo) Create(ctx context.Context, tx *gorm.DB, task *domain.Task) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *task
	r.tasks[task.ID] = &cp
	return task, nil
}

func (r *memTaskRepo) GetByID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return nil, repos.ErrTaskNotFound
	}
	cp := *task
	return &cp, nil
}

func (r *memTaskRepo) List(ctx context.Context, tx *gorm.DB) ([]*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		cp := *task
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memTaskRepo) UpdateFields(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, updates map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return repos.ErrTaskNotFound
	}
	for k, v := range updates {
		switch k {
		case "status":
			task.Status = v.(domain.TaskStatus)
		case "stage_progress":
			task.StageProgress = v.(int)
		case "error_kind":
			task.ErrorKind = v.(string)
		case "error_message":
			task.ErrorMessage = v.(string)
		case "output_path":
			task.OutputPath = v.(string)
		case "updated_at":
		}
	}
	task.UpdatedAt = time.Now()
	return nil
}

func (r *memTaskRepo) AdvanceStatus(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, next domain.TaskStatus) error {
	r.mu.Lock()
	task, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return repos.ErrTaskNotFound
	}
	if !task.Status.CanTransition(next) {
		r.mu.Unlock()
		return fmt.Errorf("illegal status transition %s -> %s", task.Status, next)
	}
	task.Status = next
	if next != domain.StatusFailed {
		task.StageProgress = 0
	}
	r.mu.Unlock()
	return nil
}

func (r *memTaskRepo) Delete(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskID]; !ok {
		return repos.ErrTaskNotFound
	}
	delete(r.tasks, taskID)
	return nil
}

type fakeExtractor struct{}

func (fakeExtractor) AssertReady(ctx context.Context) error { return nil }

func (fakeExtractor) Extract(ctx context.Context, sourcePath, workDir string) (*media.Extraction, error) {
	return &media.Extraction{
		AudioPath: filepath.Join(workDir, "audio.wav"),
		Frames: []media.Frame{
			{TimestampSeconds: 0, Path: filepath.Join(workDir, "frames", "frame_000001.jpg")},
			{TimestampSeconds: 2, Path: filepath.Join(workDir, "frames", "frame_000002.jpg")},
		},
	}, nil
}

type fakeSelector struct{}

func (fakeSelector) SelectKeyframes(ctx context.Context, frames []media.Frame) ([]domain.Keyframe, error) {
	out := make([]domain.Keyframe, 0, len(frames))
	for _, f := range frames {
		out = append(out, domain.Keyframe{TimestampSeconds: f.TimestampSeconds, ImagePath: f.Path})
	}
	return out, nil
}

type fakeTranscriber struct {
	fn      func(ctx context.Context) ([]domain.TranscriptSegment, error)
	gotLang chan string
}

func (f fakeTranscriber) Transcribe(ctx context.Context, audioPath, languageHint string) ([]domain.TranscriptSegment, error) {
	if f.gotLang != nil {
		f.gotLang <- languageHint
	}
	if f.fn != nil {
		return f.fn(ctx)
	}
	return []domain.TranscriptSegment{
		{StartSeconds: 0, EndSeconds: 4, Text: "welcome to the course"},
		{StartSeconds: 5, EndSeconds: 9, Text: "first topic"},
	}, nil
}

type fakeAnnotator struct{}

func (fakeAnnotator) Annotate(ctx context.Context, keyframes []domain.Keyframe) ([]domain.Keyframe, error) {
	out := make([]domain.Keyframe, len(keyframes))
	copy(out, keyframes)
	for i := range out {
		out[i].Description = "a slide"
	}
	return out, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(ctx context.Context, title string, sections []domain.TimelineSection, workDir string) (string, error) {
	path := filepath.Join(workDir, "notes.docx")
	if err := os.WriteFile(path, []byte("docx"), 0o644); err != nil {
		return "", domain.NewRenderError(err)
	}
	return path, nil
}

type testEnv struct {
	orch *Orchestrator
	repo *memTaskRepo
	hub  *sse.Hub
	ws   *Workspace
}

func newTestEnv(t *testing.T, transcriber fakeTranscriber) *testEnv {
	t.Helper()
	log := testLogger(t)
	repo := newMemTaskRepo()
	hub := sse.NewHub(log)
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	orch, err := NewOrchestrator(log, Deps{
		Tasks:           repo,
		Hub:             hub,
		Workspace:       ws,
		Extractor:       fakeExtractor{},
		Selector:        fakeSelector{},
		Transcriber:     transcriber,
		Annotator:       fakeAnnotator{},
		Renderer:        fakeRenderer{},
		DefaultLanguage: "en-US",
		TimelineOpts:    timeline.Options{},
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return &testEnv{orch: orch, repo: repo, hub: hub, ws: ws}
}

func waitForStatus(t *testing.T, repo *memTaskRepo, taskID uuid.UUID, want domain.TaskStatus) *domain.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := repo.GetByID(context.Background(), nil, taskID)
		if err == nil && task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, err := repo.GetByID(context.Background(), nil, taskID)
	t.Fatalf("task never reached %s (last: %+v, err: %v)", want, task, err)
	return nil
}

func TestOrchestrator_HappyPathCompletes(t *testing.T) {
	env := newTestEnv(t, fakeTranscriber{})

	task, err := env.orch.CreateTask(context.Background(), "Lecture 1", "en-US", "lecture.mp4", strings.NewReader("video"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	final := waitForStatus(t, env.repo, task.ID, domain.StatusCompleted)
	if final.OutputPath == "" {
		t.Fatalf("completed task has no output path")
	}
	if _, err := os.Stat(final.OutputPath); err != nil {
		t.Fatalf("rendered document missing: %v", err)
	}
	if final.ErrorKind != "" {
		t.Fatalf("completed task carries an error: %s", final.ErrorKind)
	}
}

func TestOrchestrator_EmitsSingleTerminalEvent(t *testing.T) {
	// Hold transcription until the test has subscribed, so the terminal
	// event cannot fire before anyone is listening.
	release := make(chan struct{})
	env := newTestEnv(t, fakeTranscriber{fn: func(ctx context.Context) ([]domain.TranscriptSegment, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, domain.NewCancelledError(ctx.Err())
		}
		return []domain.TranscriptSegment{{StartSeconds: 0, EndSeconds: 4, Text: "intro"}}, nil
	}})

	task, err := env.orch.CreateTask(context.Background(), "Lecture", "", "l.mp4", strings.NewReader("video"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	client := env.hub.Subscribe(task.ID)
	defer env.hub.Unsubscribe(client)
	close(release)

	terminals := 0
	keyframesDone := 0
	var done sse.Event
	deadline := time.After(5 * time.Second)
	for terminals == 0 {
		select {
		case ev := <-client.Outbound:
			if ev.Event == sse.EventProgress &&
				ev.Stage == string(domain.StatusExtractingKeyframe) && ev.Progress == 100 {
				keyframesDone++
			}
			if ev.Event == sse.EventDone || ev.Event == sse.EventError {
				terminals++
				done = ev
			}
		case <-deadline:
			t.Fatalf("no terminal event observed")
		}
	}
	if keyframesDone != 1 {
		t.Fatalf("keyframe completion should be reported once, got %d events", keyframesDone)
	}
	if done.Event != sse.EventDone {
		t.Fatalf("expected done, got %+v", done)
	}
	if done.DownloadURL != fmt.Sprintf("/api/tasks/%s/document", task.ID) {
		t.Fatalf("done event has wrong download URL: %q", done.DownloadURL)
	}
	// Nothing follows the terminal event.
	select {
	case ev := <-client.Outbound:
		t.Fatalf("event after terminal: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOrchestrator_TranscriptionFailureFailsTask(t *testing.T) {
	env := newTestEnv(t, fakeTranscriber{fn: func(ctx context.Context) ([]domain.TranscriptSegment, error) {
		return nil, domain.NewTranscriptionError(errors.New("retries exhausted"))
	}})

	task, err := env.orch.CreateTask(context.Background(), "Lecture", "", "l.mp4", strings.NewReader("video"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	final := waitForStatus(t, env.repo, task.ID, domain.StatusFailed)
	if final.ErrorKind != string(domain.KindTranscription) {
		t.Fatalf("expected TranscriptionError, got %q", final.ErrorKind)
	}
	if final.OutputPath != "" {
		t.Fatalf("failed task must not have an output document")
	}
}

func TestOrchestrator_DeleteCancelsAndRemovesArtifacts(t *testing.T) {
	started := make(chan struct{})
	env := newTestEnv(t, fakeTranscriber{fn: func(ctx context.Context) ([]domain.TranscriptSegment, error) {
		close(started)
		<-ctx.Done()
		return nil, domain.NewCancelledError(ctx.Err())
	}})

	task, err := env.orch.CreateTask(context.Background(), "Lecture", "", "l.mp4", strings.NewReader("video"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("pipeline never reached transcription")
	}

	if err := env.orch.Delete(context.Background(), task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := env.repo.GetByID(context.Background(), nil, task.ID); !errors.Is(err, repos.ErrTaskNotFound) {
		t.Fatalf("deleted task still readable: %v", err)
	}
	if _, err := os.Stat(env.ws.TaskDir(task.ID)); !os.IsNotExist(err) {
		t.Fatalf("artifacts should be removed, stat err: %v", err)
	}

	// The cancelled pipeline must not resurrect the row as failed.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := env.repo.GetByID(context.Background(), nil, task.ID); !errors.Is(err, repos.ErrTaskNotFound) {
			t.Fatalf("cancelled pipeline wrote the task back")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestOrchestrator_DefaultLanguageAppliedWhenUnset(t *testing.T) {
	gotLang := make(chan string, 1)
	env := newTestEnv(t, fakeTranscriber{gotLang: gotLang})

	task, err := env.orch.CreateTask(context.Background(), "Lecture", "  ", "l.mp4", strings.NewReader("video"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Language != "en-US" {
		t.Fatalf("configured default language not applied: %q", task.Language)
	}
	select {
	case lang := <-gotLang:
		if lang != "en-US" {
			t.Fatalf("transcriber got %q, want configured default", lang)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("transcriber never called")
	}
}

func TestOrchestrator_ExplicitLanguagePassesThrough(t *testing.T) {
	gotLang := make(chan string, 1)
	env := newTestEnv(t, fakeTranscriber{gotLang: gotLang})

	if _, err := env.orch.CreateTask(context.Background(), "Lecture", "de-DE", "l.mp4", strings.NewReader("video")); err != nil {
		t.Fatalf("create: %v", err)
	}
	select {
	case lang := <-gotLang:
		if lang != "de-DE" {
			t.Fatalf("transcriber got %q, want the request language", lang)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("transcriber never called")
	}
}

func TestOrchestrator_DeleteUnknownTask(t *testing.T) {
	env := newTestEnv(t, fakeTranscriber{})
	if err := env.orch.Delete(context.Background(), uuid.New()); !errors.Is(err, repos.ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
