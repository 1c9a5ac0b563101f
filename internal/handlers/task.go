package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lecturelens-backend/internal/domain"
	"github.com/yungbote/lecturelens-backend/internal/pipeline"
	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
	"github.com/yungbote/lecturelens-backend/internal/repos"
	"github.com/yungbote/lecturelens-backend/internal/sse"
)

type TaskHandler struct {
	log          *logger.Logger
	orchestrator *pipeline.Orchestrator
	tasks        repos.TaskRepo
	hub          *sse.Hub
}

func NewTaskHandler(log *logger.Logger, orch *pipeline.Orchestrator, tasks repos.TaskRepo, hub *sse.Hub) *TaskHandler {
	return &TaskHandler{
		log:          log.With("handler", "TaskHandler"),
		orchestrator: orch,
		tasks:        tasks,
		hub:          hub,
	}
}

// POST /api/tasks
// Accepts a multipart video upload and starts the conversion pipeline.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	fileHeader, err := c.FormFile("video")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_video", fmt.Errorf("multipart field 'video' required: %w", err))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_upload", err)
		return
	}
	defer src.Close()

	title := c.PostForm("title")
	language := c.PostForm("language")

	task, err := h.orchestrator.CreateTask(c.Request.Context(), title, language, fileHeader.Filename, src)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}
	RespondCreated(c, task)
}

// GET /api/tasks
func (h *TaskHandler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context(), nil)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"tasks": tasks})
}

// GET /api/tasks/:id/status
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	taskID, ok := h.taskID(c)
	if !ok {
		return
	}
	task, err := h.tasks.GetByID(c.Request.Context(), nil, taskID)
	if errors.Is(err, repos.ErrTaskNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "status_failed", err)
		return
	}
	RespondOK(c, task)
}

// GET /api/tasks/:id/events
// SSE stream of pipeline progress. A subscriber that arrives after the task
// reached a terminal state still gets exactly one terminal event.
func (h *TaskHandler) StreamTaskEvents(c *gin.Context) {
	taskID, ok := h.taskID(c)
	if !ok {
		return
	}
	// Subscribe before the status read: a terminal event broadcast between
	// the two would otherwise be lost, leaving the stream on heartbeats
	// forever. A task that went terminal before the read gets a synthesized
	// terminal event instead; duplicates are fine under at-least-once.
	client := h.hub.Subscribe(taskID)
	defer h.hub.Unsubscribe(client)

	task, err := h.tasks.GetByID(c.Request.Context(), nil, taskID)
	if errors.Is(err, repos.ErrTaskNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "events_failed", err)
		return
	}

	if task.Status.Terminal() {
		client.Outbound <- terminalEvent(task)
	}
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

// GET /api/tasks/:id/document
// Only available once the task has completed.
func (h *TaskHandler) DownloadDocument(c *gin.Context) {
	taskID, ok := h.taskID(c)
	if !ok {
		return
	}
	task, err := h.tasks.GetByID(c.Request.Context(), nil, taskID)
	if errors.Is(err, repos.ErrTaskNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "document_failed", err)
		return
	}
	if task.Status != domain.StatusCompleted || task.OutputPath == "" {
		RespondError(c, http.StatusConflict, "not_ready", fmt.Errorf("task is %s, document not available", task.Status))
		return
	}
	if _, err := os.Stat(task.OutputPath); err != nil {
		h.log.Error("Rendered document missing on disk", "taskID", taskID, "path", task.OutputPath)
		RespondError(c, http.StatusInternalServerError, "document_missing", fmt.Errorf("document artifact missing"))
		return
	}
	c.FileAttachment(task.OutputPath, "notes.docx")
}

// DELETE /api/tasks/:id
// Cancels the pipeline if still running and removes the task with all of its
// artifacts.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	taskID, ok := h.taskID(c)
	if !ok {
		return
	}
	err := h.orchestrator.Delete(c.Request.Context(), taskID)
	if errors.Is(err, repos.ErrTaskNotFound) {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "delete_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_task_id", fmt.Errorf("invalid task id: %w", err))
		return uuid.Nil, false
	}
	return id, true
}

func terminalEvent(task *domain.Task) sse.Event {
	if task.Status == domain.StatusCompleted {
		return sse.Event{
			Event:       sse.EventDone,
			TaskID:      task.ID.String(),
			Stage:       string(task.Status),
			Progress:    100,
			DownloadURL: fmt.Sprintf("/api/tasks/%s/document", task.ID),
		}
	}
	msg := task.ErrorMessage
	if task.ErrorKind != "" {
		msg = fmt.Sprintf("%s: %s", task.ErrorKind, task.ErrorMessage)
	}
	return sse.Event{
		Event:   sse.EventError,
		TaskID:  task.ID.String(),
		Stage:   string(task.Status),
		Message: msg,
	}
}
