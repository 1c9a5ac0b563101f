package transcribe

import (
	"context"
	"sort"
	"strings"

	"github.com/yungbote/lecturelens-backend/internal/domain"
)

// Transcriber turns an extracted audio track into ordered, non-overlapping
// transcript segments. Implementations classify transient provider failures
// and retry internally; an error returned here is fatal for the task.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, languageHint string) ([]domain.TranscriptSegment, error)
}

// Normalize converts whatever chunk boundaries the speech service returned
// into the canonical segment shape: ordered by start, non-overlapping, no
// empty text. Overlapping spans are trimmed; fully contained spans are merged
// into their container.
func Normalize(segments []domain.TranscriptSegment) []domain.TranscriptSegment {
	cleaned := make([]domain.TranscriptSegment, 0, len(segments))
	for _, s := range segments {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		if s.EndSeconds < s.StartSeconds {
			s.EndSeconds = s.StartSeconds
		}
		cleaned = append(cleaned, s)
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].StartSeconds < cleaned[j].StartSeconds
	})

	out := make([]domain.TranscriptSegment, 0, len(cleaned))
	for _, s := range cleaned {
		if len(out) == 0 {
			out = append(out, s)
			continue
		}
		prev := &out[len(out)-1]
		if s.StartSeconds >= prev.EndSeconds {
			out = append(out, s)
			continue
		}
		if s.EndSeconds <= prev.EndSeconds {
			// Fully contained in the previous span: fold the text in.
			prev.Text = prev.Text + " " + s.Text
			continue
		}
		s.StartSeconds = prev.EndSeconds
		out = append(out, s)
	}
	return out
}
