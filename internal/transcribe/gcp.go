package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/lecturelens-backend/internal/domain"
	"github.com/yungbote/lecturelens-backend/internal/platform/gcp"
	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
)

type GCPOptions struct {
	SampleRateHz float64
	// MaxRetries bounds transient-failure attempts; exhausting them turns
	// the failure fatal for the task.
	MaxRetries     int
	InitialBackoff time.Duration
	// SegmentWindowSeconds groups word offsets into segments of roughly this
	// span when the service does not return natural boundaries.
	SegmentWindowSeconds float64
}

type gcpTranscriber struct {
	log    *logger.Logger
	client *speech.Client
	opts   GCPOptions
}

// NewGCP builds a Transcriber backed by Google Cloud Speech long-running
// recognition with word time offsets.
func NewGCP(log *logger.Logger, opts GCPOptions) (Transcriber, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 750 * time.Millisecond
	}
	if opts.SegmentWindowSeconds <= 0 {
		opts.SegmentWindowSeconds = 10.0
	}

	c, err := speech.NewClient(context.Background(), gcp.ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &gcpTranscriber{
		log:    log.With("service", "gcp.Transcriber"),
		client: c,
		opts:   opts,
	}, nil
}

func (t *gcpTranscriber) Transcribe(ctx context.Context, audioPath string, languageHint string) ([]domain.TranscriptSegment, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, domain.NewTranscriptionError(fmt.Errorf("read audio: %w", err))
	}
	if languageHint == "" {
		languageHint = "en-US"
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               languageHint,
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(t.opts.SampleRateHz),
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	resp, err := t.recognizeWithRetry(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewCancelledError(ctx.Err())
		}
		return nil, domain.NewTranscriptionError(err)
	}
	return Normalize(t.segmentsFromResponse(resp)), nil
}

func (t *gcpTranscriber) recognizeWithRetry(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	backoff := t.opts.InitialBackoff
	var last error
	for attempt := 0; attempt <= t.opts.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		op, err := t.client.LongRunningRecognize(ctx, req)
		if err == nil {
			var resp *speechpb.LongRunningRecognizeResponse
			resp, err = op.Wait(ctx)
			if err == nil {
				return resp, nil
			}
		}
		last = err

		if !transientSpeechError(err) {
			return nil, err
		}
		if attempt == t.opts.MaxRetries {
			break
		}
		t.log.Warn("Transient speech failure, backing off",
			"attempt", attempt+1, "backoff", backoff.String(), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, fmt.Errorf("speech recognize failed after %d attempts: %w", t.opts.MaxRetries+1, last)
}

func transientSpeechError(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

func (t *gcpTranscriber) segmentsFromResponse(resp *speechpb.LongRunningRecognizeResponse) []domain.TranscriptSegment {
	if resp == nil {
		return nil
	}

	segs := []domain.TranscriptSegment{}
	var buf strings.Builder
	var curStart, curEnd float64
	open := false

	flush := func() {
		txt := strings.TrimSpace(buf.String())
		if txt != "" {
			segs = append(segs, domain.TranscriptSegment{
				StartSeconds: curStart,
				EndSeconds:   curEnd,
				Text:         txt,
			})
		}
		buf.Reset()
		open = false
	}

	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if len(alt.Words) == 0 {
			// No offsets for this result; emit its transcript as one span
			// anchored at the current position.
			if txt := strings.TrimSpace(alt.Transcript); txt != "" {
				flush()
				segs = append(segs, domain.TranscriptSegment{StartSeconds: curEnd, EndSeconds: curEnd, Text: txt})
			}
			continue
		}
		for _, w := range alt.Words {
			if w == nil {
				continue
			}
			ws := durToSec(w.StartTime)
			we := durToSec(w.EndTime)
			if !open {
				curStart = ws
				curEnd = we
				open = true
			}
			if ws-curStart >= t.opts.SegmentWindowSeconds && buf.Len() > 0 {
				flush()
				curStart = ws
				curEnd = we
				open = true
			}
			if buf.Len() > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString(w.Word)
			if we > curEnd {
				curEnd = we
			}
		}
	}
	flush()
	return segs
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}
