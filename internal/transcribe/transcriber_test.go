package transcribe

import (
	"testing"

	"github.com/yungbote/lecturelens-backend/internal/domain"
)

func TestNormalize_OrdersAndTrims(t *testing.T) {
	in := []domain.TranscriptSegment{
		{StartSeconds: 10, EndSeconds: 12, Text: "second"},
		{StartSeconds: 0, EndSeconds: 4, Text: "  first  "},
		{StartSeconds: 5, EndSeconds: 5, Text: "   "},
	}
	out := Normalize(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(out))
	}
	if out[0].Text != "first" || out[1].Text != "second" {
		t.Fatalf("unexpected order or text: %+v", out)
	}
}

func TestNormalize_TrimsPartialOverlap(t *testing.T) {
	in := []domain.TranscriptSegment{
		{StartSeconds: 0, EndSeconds: 6, Text: "a"},
		{StartSeconds: 4, EndSeconds: 10, Text: "b"},
	}
	out := Normalize(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(out))
	}
	if out[1].StartSeconds != 6 {
		t.Fatalf("overlap should be trimmed to previous end, got start=%v", out[1].StartSeconds)
	}
}

func TestNormalize_FoldsContainedSegment(t *testing.T) {
	in := []domain.TranscriptSegment{
		{StartSeconds: 0, EndSeconds: 10, Text: "outer"},
		{StartSeconds: 2, EndSeconds: 5, Text: "inner"},
	}
	out := Normalize(in)
	if len(out) != 1 {
		t.Fatalf("contained segment should fold into container, got %d segments", len(out))
	}
	if out[0].Text != "outer inner" {
		t.Fatalf("folded text mismatch: %q", out[0].Text)
	}
}

func TestNormalize_ClampsNegativeDuration(t *testing.T) {
	out := Normalize([]domain.TranscriptSegment{{StartSeconds: 8, EndSeconds: 3, Text: "x"}})
	if len(out) != 1 || out[0].EndSeconds != out[0].StartSeconds {
		t.Fatalf("negative duration should clamp to zero length: %+v", out)
	}
}
