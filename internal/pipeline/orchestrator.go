package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lecturelens-backend/internal/domain"
	"github.com/yungbote/lecturelens-backend/internal/media"
	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
	"github.com/yungbote/lecturelens-backend/internal/repos"
	"github.com/yungbote/lecturelens-backend/internal/scene"
	"github.com/yungbote/lecturelens-backend/internal/sse"
	"github.com/yungbote/lecturelens-backend/internal/timeline"
	"github.com/yungbote/lecturelens-backend/internal/transcribe"
	"github.com/yungbote/lecturelens-backend/internal/vision"
)

// Orchestrator drives one conversion task through the stage machine:
// extracting_audio, then transcribing and extracting_keyframes together,
// then annotating, merging, rendering, completed. Transitions only move
// forward; failed is reachable from any non-terminal stage.
type Orchestrator struct {
	log       *logger.Logger
	tasks     repos.TaskRepo
	hub       *sse.Hub
	workspace *Workspace
	inflight  *Registry

	extractor   media.Extractor
	selector    scene.Selector
	transcriber transcribe.Transcriber
	annotator   vision.Annotator
	renderer    Renderer

	defaultLanguage string
	timelineOpts    timeline.Options
}

// Renderer is the document stage as the orchestrator sees it. Declared here
// so tests can substitute a fake without touching docx machinery.
type Renderer interface {
	Render(ctx context.Context, title string, sections []domain.TimelineSection, workDir string) (string, error)
}

type Deps struct {
	Tasks       repos.TaskRepo
	Hub         *sse.Hub
	Workspace   *Workspace
	Extractor   media.Extractor
	Selector    scene.Selector
	Transcriber transcribe.Transcriber
	Annotator   vision.Annotator
	Renderer    Renderer

	// DefaultLanguage is the transcription language hint applied when a task
	// is created without one.
	DefaultLanguage string
	TimelineOpts    timeline.Options
}

func NewOrchestrator(log *logger.Logger, deps Deps) (*Orchestrator, error) {
	if deps.Tasks == nil || deps.Hub == nil || deps.Workspace == nil {
		return nil, fmt.Errorf("tasks, hub and workspace are required")
	}
	if deps.Extractor == nil || deps.Selector == nil || deps.Transcriber == nil ||
		deps.Annotator == nil || deps.Renderer == nil {
		return nil, fmt.Errorf("all pipeline stages are required")
	}
	return &Orchestrator{
		log:          log.With("service", "PipelineOrchestrator"),
		tasks:        deps.Tasks,
		hub:          deps.Hub,
		workspace:    deps.Workspace,
		inflight:     NewRegistry(),
		extractor:    deps.Extractor,
		selector:     deps.Selector,
		transcriber:  deps.Transcriber,
		annotator:    deps.Annotator,
		renderer:        deps.Renderer,
		defaultLanguage: deps.DefaultLanguage,
		timelineOpts:    deps.TimelineOpts,
	}, nil
}

// CreateTask persists the uploaded video, records the task as pending and
// starts its pipeline in the background.
func (o *Orchestrator) CreateTask(ctx context.Context, title, language, filename string, upload io.Reader) (*domain.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		base := filepath.Base(filename)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if title == "" {
		title = "Untitled lecture"
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = o.defaultLanguage
	}

	task := &domain.Task{
		ID:       uuid.New(),
		Title:    title,
		Language: language,
		Status:   domain.StatusPending,
	}

	sourcePath, err := o.workspace.SaveSource(task.ID, filename, upload)
	if err != nil {
		_ = o.workspace.Remove(task.ID)
		return nil, fmt.Errorf("store upload: %w", err)
	}
	task.SourcePath = sourcePath

	if _, err := o.tasks.Create(ctx, nil, task); err != nil {
		_ = o.workspace.Remove(task.ID)
		return nil, fmt.Errorf("create task: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.inflight.Add(task.ID, cancel)
	go o.run(runCtx, task.ID)

	o.log.Info("Task created", "taskID", task.ID, "title", title)
	return task, nil
}

// Delete cancels the task's pipeline if it is still running, removes its
// artifacts from disk and drops the row. Cancellation is silent: no failed
// status and no error event.
func (o *Orchestrator) Delete(ctx context.Context, taskID uuid.UUID) error {
	if _, err := o.tasks.GetByID(ctx, nil, taskID); err != nil {
		return err
	}
	o.inflight.Cancel(taskID)
	if err := o.workspace.Remove(taskID); err != nil {
		o.log.Warn("Failed to remove task artifacts", "taskID", taskID, "error", err)
	}
	if err := o.tasks.Delete(ctx, nil, taskID); err != nil {
		return err
	}
	o.log.Info("Task deleted", "taskID", taskID)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, taskID uuid.UUID) {
	defer o.inflight.Remove(taskID)
	log := o.log.With("taskID", taskID)

	fail := func(stage domain.TaskStatus, err error) {
		if domain.IsCancelled(err) {
			// Cancellation is user intent, not failure. The row is usually
			// gone already; artifacts go with the delete.
			log.Info("Pipeline cancelled", "stage", stage)
			return
		}
		kind := domain.KindOf(err)
		if kind == "" {
			kind = domain.KindMedia
		}
		log.Error("Pipeline failed", "stage", stage, "kind", kind, "error", err)
		updCtx := context.Background()
		if advErr := o.tasks.AdvanceStatus(updCtx, nil, taskID, domain.StatusFailed); advErr != nil {
			log.Warn("Could not mark task failed", "error", advErr)
		}
		if updErr := o.tasks.UpdateFields(updCtx, nil, taskID, map[string]any{
			"error_kind":    string(kind),
			"error_message": err.Error(),
		}); updErr != nil {
			log.Warn("Could not record task error", "error", updErr)
		}
		o.hub.Broadcast(taskID, sse.Event{
			Event:   sse.EventError,
			Stage:   string(stage),
			Message: fmt.Sprintf("%s: %s", kind, err.Error()),
		})
	}

	progress := func(stage domain.TaskStatus, pct int, msg string) {
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		if err := o.tasks.UpdateFields(context.Background(), nil, taskID, map[string]any{
			"stage_progress": pct,
		}); err != nil && err != repos.ErrTaskNotFound {
			log.Warn("Could not persist stage progress", "error", err)
		}
		o.hub.Broadcast(taskID, sse.Event{
			Event:    sse.EventProgress,
			Stage:    string(stage),
			Progress: pct,
			Message:  msg,
		})
	}

	advance := func(next domain.TaskStatus) error {
		if err := ctx.Err(); err != nil {
			return domain.NewCancelledError(err)
		}
		if err := o.tasks.AdvanceStatus(ctx, nil, taskID, next); err != nil {
			if err == repos.ErrTaskNotFound {
				// Deleted while running; stop quietly.
				return domain.NewCancelledError(context.Canceled)
			}
			return err
		}
		progress(next, 0, "stage started")
		return nil
	}

	task, err := o.tasks.GetByID(ctx, nil, taskID)
	if err != nil {
		log.Warn("Task vanished before pipeline start", "error", err)
		return
	}

	// Stage 1: media extraction.
	if err := advance(domain.StatusExtractingAudio); err != nil {
		fail(domain.StatusPending, err)
		return
	}
	extraction, err := o.extractor.Extract(ctx, task.SourcePath, o.workspace.TaskDir(taskID))
	if err != nil {
		fail(domain.StatusExtractingAudio, err)
		return
	}
	progress(domain.StatusExtractingAudio, 100, "audio and frames extracted")

	// Stages 2 and 3 run concurrently; both stage starts are announced up
	// front so observers see the overlap, while the status column still
	// walks transcribing then extracting_keyframes in order.
	if err := advance(domain.StatusTranscribing); err != nil {
		fail(domain.StatusExtractingAudio, err)
		return
	}
	progress(domain.StatusExtractingKeyframe, 0, "stage started")

	var (
		segments  []domain.TranscriptSegment
		keyframes []domain.Keyframe
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := o.transcriber.Transcribe(gctx, extraction.AudioPath, task.Language)
		if err != nil {
			return err
		}
		segments = transcribe.Normalize(raw)
		progress(domain.StatusTranscribing, 100, "transcript ready")
		return nil
	})
	g.Go(func() error {
		kf, err := o.selector.SelectKeyframes(gctx, extraction.Frames)
		if err != nil {
			return err
		}
		keyframes = kf
		return nil
	})
	if err := g.Wait(); err != nil {
		// Either branch failing discards the other branch's output.
		fail(domain.StatusTranscribing, err)
		return
	}
	if err := advance(domain.StatusExtractingKeyframe); err != nil {
		fail(domain.StatusTranscribing, err)
		return
	}
	progress(domain.StatusExtractingKeyframe, 100, "keyframes selected")

	// Stage 4: vision annotation. Per-frame failures degrade to a sentinel
	// description inside the annotator; only cancellation aborts here.
	if err := advance(domain.StatusAnnotating); err != nil {
		fail(domain.StatusExtractingKeyframe, err)
		return
	}
	annotated, err := o.annotator.Annotate(ctx, keyframes)
	if err != nil {
		fail(domain.StatusAnnotating, err)
		return
	}
	progress(domain.StatusAnnotating, 100, "keyframes annotated")

	// Stage 5: timeline merge. Pure and fast.
	if err := advance(domain.StatusMerging); err != nil {
		fail(domain.StatusAnnotating, err)
		return
	}
	sections := timeline.Merge(segments, annotated, o.timelineOpts)
	progress(domain.StatusMerging, 100, fmt.Sprintf("%d sections", len(sections)))

	// Stage 6: document rendering.
	if err := advance(domain.StatusRendering); err != nil {
		fail(domain.StatusMerging, err)
		return
	}
	outPath, err := o.renderer.Render(ctx, task.Title, sections, o.workspace.TaskDir(taskID))
	if err != nil {
		fail(domain.StatusRendering, err)
		return
	}
	if err := o.tasks.UpdateFields(ctx, nil, taskID, map[string]any{"output_path": outPath}); err != nil {
		fail(domain.StatusRendering, err)
		return
	}
	progress(domain.StatusRendering, 100, "document rendered")

	if err := advance(domain.StatusCompleted); err != nil {
		fail(domain.StatusRendering, err)
		return
	}
	if err := o.tasks.UpdateFields(context.Background(), nil, taskID, map[string]any{
		"stage_progress": 100,
	}); err != nil && err != repos.ErrTaskNotFound {
		log.Warn("Could not persist final progress", "error", err)
	}
	o.hub.Broadcast(taskID, sse.Event{
		Event:       sse.EventDone,
		Stage:       string(domain.StatusCompleted),
		Progress:    100,
		DownloadURL: fmt.Sprintf("/api/tasks/%s/document", taskID),
	})
	log.Info("Pipeline completed", "sections", len(sections), "document", outPath)
}
