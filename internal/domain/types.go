package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus walks strictly forward through the pipeline stages; failed is a
// parallel terminal state reachable from any non-terminal one.
type TaskStatus string

const (
	StatusPending            TaskStatus = "pending"
	StatusExtractingAudio    TaskStatus = "extracting_audio"
	StatusTranscribing       TaskStatus = "transcribing"
	StatusExtractingKeyframe TaskStatus = "extracting_keyframes"
	StatusAnnotating         TaskStatus = "annotating"
	StatusMerging            TaskStatus = "merging"
	StatusRendering          TaskStatus = "rendering"
	StatusCompleted          TaskStatus = "completed"
	StatusFailed             TaskStatus = "failed"
)

var statusOrder = map[TaskStatus]int{
	StatusPending:            0,
	StatusExtractingAudio:    1,
	StatusTranscribing:       2,
	StatusExtractingKeyframe: 3,
	StatusAnnotating:         4,
	StatusMerging:            5,
	StatusRendering:          6,
	StatusCompleted:          7,
}

func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next respects the forward-only
// state machine. failed is reachable from any non-terminal state.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	from, okFrom := statusOrder[s]
	to, okTo := statusOrder[next]
	return okFrom && okTo && to > from
}

// Task is the registry record for one video→document conversion job.
type Task struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title         string     `json:"title"`
	Language      string     `json:"language"`
	Status        TaskStatus `gorm:"index" json:"status"`
	StageProgress int        `json:"stage_progress"`
	ErrorKind     string     `json:"error_kind,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	SourcePath    string     `json:"-"`
	OutputPath    string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TranscriptSegment is a timestamped span of recognized speech. Segments are
// ordered by StartSeconds and non-overlapping once normalized.
type TranscriptSegment struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
}

// Keyframe is one still image chosen to represent a visually distinct moment.
// Description stays empty until annotation has run; ImagePath is owned by the
// task for its lifetime.
type Keyframe struct {
	TimestampSeconds float64 `json:"timestamp_seconds"`
	ImagePath        string  `json:"image_path"`
	Description      string  `json:"description"`
}

// TimelineSection groups consecutive transcript segments and keyframes into
// one unit of the final document. AnchorTimestamp is the minimum timestamp
// among its items; sections partition the full input set.
type TimelineSection struct {
	AnchorTimestamp float64             `json:"anchor_timestamp"`
	Heading         string              `json:"heading"`
	TextBlocks      []TranscriptSegment `json:"text_blocks"`
	Images          []Keyframe          `json:"images"`
}
