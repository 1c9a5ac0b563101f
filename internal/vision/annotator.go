package vision

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lecturelens-backend/internal/domain"
	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
)

// SentinelDescription replaces the caption of a keyframe whose annotation
// failed permanently. Annotation is enrichment: the document still ships.
const SentinelDescription = "description unavailable"

// Captioner produces a natural-language description for one still image.
type Captioner interface {
	Caption(ctx context.Context, img []byte) (string, error)
}

// Annotator attaches descriptions to keyframes with a fixed worker pool, so
// fan-out to the external vision service stays bounded regardless of how many
// keyframes a video yields.
type Annotator interface {
	Annotate(ctx context.Context, keyframes []domain.Keyframe) ([]domain.Keyframe, error)
}

type Options struct {
	Workers         int
	RetriesPerFrame int
	RetryDelay      time.Duration
}

type annotator struct {
	log       *logger.Logger
	captioner Captioner
	opts      Options
}

func NewAnnotator(log *logger.Logger, captioner Captioner, opts Options) Annotator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.RetriesPerFrame < 0 {
		opts.RetriesPerFrame = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	return &annotator{
		log:       log.With("service", "VisionAnnotator"),
		captioner: captioner,
		opts:      opts,
	}
}

func (a *annotator) Annotate(ctx context.Context, keyframes []domain.Keyframe) ([]domain.Keyframe, error) {
	out := make([]domain.Keyframe, len(keyframes))
	copy(out, keyframes)

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < a.opts.Workers; w++ {
		g.Go(func() error {
			for idx := range jobs {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Workers write disjoint indexes; no lock needed.
				out[idx].Description = a.annotateOne(gctx, out[idx])
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for i := range out {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, domain.NewCancelledError(err)
	}
	return out, nil
}

// annotateOne retries within the keyframe's own small budget and degrades to
// the sentinel; a single caption failure never fails the task.
func (a *annotator) annotateOne(ctx context.Context, kf domain.Keyframe) string {
	img, err := os.ReadFile(kf.ImagePath)
	if err != nil {
		a.log.Warn("Keyframe unreadable, using sentinel caption",
			"image", kf.ImagePath, "error", err)
		return SentinelDescription
	}

	var last error
	for attempt := 0; attempt <= a.opts.RetriesPerFrame; attempt++ {
		if ctx.Err() != nil {
			return SentinelDescription
		}
		desc, err := a.captioner.Caption(ctx, img)
		if err == nil && desc != "" {
			return desc
		}
		if err == nil {
			err = fmt.Errorf("empty caption")
		}
		last = err
		if attempt < a.opts.RetriesPerFrame {
			select {
			case <-ctx.Done():
				return SentinelDescription
			case <-time.After(a.opts.RetryDelay):
			}
		}
	}

	annErr := domain.NewAnnotationError(last)
	a.log.Warn("Annotation failed permanently, using sentinel caption",
		"image", kf.ImagePath, "timestamp", kf.TimestampSeconds, "error", annErr)
	return SentinelDescription
}
