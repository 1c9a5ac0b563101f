package scene

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/yungbote/lecturelens-backend/internal/domain"
	"github.com/yungbote/lecturelens-backend/internal/media"
	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
)

// Selector reduces the sampled frame sequence to visually distinct keyframes.
// Pure CPU stage: no external service, no retryable failure mode.
type Selector interface {
	SelectKeyframes(ctx context.Context, frames []media.Frame) ([]domain.Keyframe, error)
}

// DecodeFunc loads one frame image; swapped out in tests.
type DecodeFunc func(path string) (image.Image, error)

type Options struct {
	// DiffThreshold is the dHash Hamming distance (0..64) a frame must reach
	// against the rolling reference before it is emitted.
	DiffThreshold int
	// MinSpacingSeconds suppresses emissions closer than this to the last
	// keyframe, so flickering content cannot flood the output.
	MinSpacingSeconds float64
	Decode            DecodeFunc
}

type selector struct {
	log  *logger.Logger
	opts Options
}

func NewSelector(log *logger.Logger, opts Options) Selector {
	if opts.DiffThreshold <= 0 {
		opts.DiffThreshold = 14
	}
	if opts.Decode == nil {
		opts.Decode = decodeFile
	}
	return &selector{log: log.With("service", "SceneSelector"), opts: opts}
}

func (s *selector) SelectKeyframes(ctx context.Context, frames []media.Frame) ([]domain.Keyframe, error) {
	if len(frames) == 0 {
		return nil, domain.NewMediaError(fmt.Errorf("empty frame sequence"))
	}

	out := make([]domain.Keyframe, 0, 8)
	var refHash uint64
	var lastEmitted float64

	for i, f := range frames {
		if ctx.Err() != nil {
			return nil, domain.NewCancelledError(ctx.Err())
		}
		img, err := s.opts.Decode(f.Path)
		if err != nil {
			// Corrupt frame: fatal, the decoder already produced it once.
			return nil, domain.NewMediaError(fmt.Errorf("decode frame %s: %w", f.Path, err))
		}
		h := dhash(img)

		if i == 0 {
			// The first frame is always a keyframe, even for static video.
			out = append(out, domain.Keyframe{TimestampSeconds: f.TimestampSeconds, ImagePath: f.Path})
			refHash = h
			lastEmitted = f.TimestampSeconds
			continue
		}

		dist := bits.OnesCount64(refHash ^ h)
		if dist < s.opts.DiffThreshold {
			continue
		}
		if f.TimestampSeconds-lastEmitted < s.opts.MinSpacingSeconds {
			// Distinct but too close to the previous keyframe. The reference
			// stays on the last emitted frame so a sustained change still
			// scores as distinct once spacing allows.
			continue
		}
		out = append(out, domain.Keyframe{TimestampSeconds: f.TimestampSeconds, ImagePath: f.Path})
		refHash = h
		lastEmitted = f.TimestampSeconds
	}

	s.log.Debug("Keyframes selected", "candidates", len(frames), "selected", len(out))
	return out, nil
}

const (
	hashCols = 9
	hashRows = 8
)

// dhash is a 64-bit difference hash: scale to 9x8 grayscale, compare each
// pixel to its right neighbor. Cheap, order-independent, monotone under
// increasing visual dissimilarity.
func dhash(img image.Image) uint64 {
	small := image.NewGray(image.Rect(0, 0, hashCols, hashRows))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	var h uint64
	var bit uint
	for y := 0; y < hashRows; y++ {
		for x := 0; x < hashCols-1; x++ {
			left := small.GrayAt(x, y).Y
			right := small.GrayAt(x+1, y).Y
			if left > right {
				h |= 1 << bit
			}
			bit++
		}
	}
	return h
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
