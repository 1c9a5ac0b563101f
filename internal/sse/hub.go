package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
)

type EventType string

const (
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is one progress-stream message for a task. Delivery is at-least-once:
// consumers must accept duplicates and resynchronize via the status read.
type Event struct {
	Event       EventType `json:"event"`
	TaskID      string    `json:"task_id"`
	Stage       string    `json:"stage,omitempty"`
	Progress    int       `json:"progress,omitempty"`
	Message     string    `json:"message,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
}

type Client struct {
	ID       uuid.UUID
	TaskID   uuid.UUID
	Outbound chan Event
	done     chan struct{}
}

// Hub fans task progress events out to connected clients, keyed by task id.
type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[uuid.UUID]map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:           log.With("component", "SSEHub"),
		subscriptions: make(map[uuid.UUID]map[*Client]bool),
	}
}

func (hub *Hub) Subscribe(taskID uuid.UUID) *Client {
	client := &Client{
		ID:       uuid.New(),
		TaskID:   taskID,
		Outbound: make(chan Event, 16),
		done:     make(chan struct{}),
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	clients, ok := hub.subscriptions[taskID]
	if !ok {
		clients = make(map[*Client]bool)
		hub.subscriptions[taskID] = clients
	}
	clients[client] = true
	hub.log.Debug("SSE client subscribed", "clientID", client.ID, "taskID", taskID)
	return client
}

func (hub *Hub) Unsubscribe(client *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if clients, ok := hub.subscriptions[client.TaskID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(hub.subscriptions, client.TaskID)
		}
	}
	select {
	case <-client.done:
	default:
		close(client.done)
	}
}

// Broadcast pushes an event to every client watching the task. Slow clients
// drop events rather than block the pipeline; they recover via status reads.
func (hub *Hub) Broadcast(taskID uuid.UUID, ev Event) {
	ev.TaskID = taskID.String()

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for c := range hub.subscriptions[taskID] {
		select {
		case c.Outbound <- ev:
		default:
			hub.log.Warn("Dropping SSE event; outbound buffer full", "clientID", c.ID, "taskID", taskID)
		}
	}
}

func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-client.Outbound:
			data, err := json.Marshal(ev)
			if err != nil {
				hub.log.Warn("Failed to marshal SSE event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, data)
			flusher.Flush()
			if ev.Event == EventDone || ev.Event == EventError {
				// Terminal event: the stream contract is exactly one of
				// done or error, then the connection closes.
				return
			}
		}
	}
}
