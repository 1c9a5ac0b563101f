package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/lecturelens-backend/internal/domain"
	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
)

// Frame is one sampled still from the source video.
type Frame struct {
	TimestampSeconds float64
	Path             string
}

// Extraction is the media extractor's output: a mono audio track plus a
// time-ordered finite sequence of candidate frames.
type Extraction struct {
	AudioPath string
	Frames    []Frame
}

// Extractor pulls audio and candidate frames out of a source video with an
// external ffmpeg subprocess. Any failure here is a fatal MediaError: codec
// and container problems are not transient, so nothing is retried.
type Extractor interface {
	AssertReady(ctx context.Context) error
	Extract(ctx context.Context, sourcePath string, workDir string) (*Extraction, error)
}

type Options struct {
	FFmpegPath           string
	FrameIntervalSeconds float64
	AudioSampleRateHz    int
	Timeout              time.Duration
}

type extractor struct {
	log  *logger.Logger
	opts Options
}

func NewExtractor(log *logger.Logger, opts Options) Extractor {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FrameIntervalSeconds <= 0 {
		opts.FrameIntervalSeconds = 2.0
	}
	if opts.AudioSampleRateHz <= 0 {
		opts.AudioSampleRateHz = 16000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	return &extractor{log: log.With("service", "MediaExtractor"), opts: opts}
}

func (m *extractor) AssertReady(ctx context.Context) error {
	if _, err := exec.LookPath(m.opts.FFmpegPath); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", m.opts.FFmpegPath, err)
	}
	return nil
}

func (m *extractor) Extract(ctx context.Context, sourcePath string, workDir string) (*Extraction, error) {
	if sourcePath == "" {
		return nil, domain.NewMediaError(fmt.Errorf("sourcePath required"))
	}
	if workDir == "" {
		return nil, domain.NewMediaError(fmt.Errorf("workDir required"))
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, domain.NewMediaError(fmt.Errorf("source unreadable: %w", err))
	}

	audioPath, err := m.extractAudio(ctx, sourcePath, workDir)
	if err != nil {
		return nil, err
	}
	frames, err := m.sampleFrames(ctx, sourcePath, workDir)
	if err != nil {
		return nil, err
	}
	return &Extraction{AudioPath: audioPath, Frames: frames}, nil
}

func (m *extractor) extractAudio(ctx context.Context, sourcePath, workDir string) (string, error) {
	outPath := filepath.Join(workDir, "audio.wav")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", domain.NewMediaError(fmt.Errorf("mkdir workDir: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	// Mono 16 kHz WAV is what the speech service expects. ffmpeg exits
	// non-zero when the container has no audio stream, which is exactly the
	// no-audio-track fatal case.
	args := []string{
		"-y",
		"-i", sourcePath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(m.opts.AudioSampleRateHz),
		"-f", "wav",
		outPath,
	}
	cmd := exec.CommandContext(ctx, m.opts.FFmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.Canceled {
		return "", domain.NewCancelledError(ctx.Err())
	}
	if err != nil {
		return "", domain.NewMediaError(fmt.Errorf("ffmpeg extract audio: %w; out=%s", err, tail(out)))
	}
	if st, err := os.Stat(outPath); err != nil || st.Size() == 0 {
		return "", domain.NewMediaError(fmt.Errorf("no audio track extracted from %s", filepath.Base(sourcePath)))
	}
	return outPath, nil
}

var frameNameRe = regexp.MustCompile(`^frame_(\d+)\.jpg$`)

func (m *extractor) sampleFrames(ctx context.Context, sourcePath, workDir string) ([]Frame, error) {
	frameDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(frameDir, 0o755); err != nil {
		return nil, domain.NewMediaError(fmt.Errorf("mkdir frameDir: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	interval := m.opts.FrameIntervalSeconds
	fps := 1.0 / interval
	outPattern := filepath.Join(frameDir, "frame_%06d.jpg")
	args := []string{
		"-y",
		"-i", sourcePath,
		"-vf", fmt.Sprintf("fps=%0.6f", fps),
		"-q:v", "3",
		outPattern,
	}
	cmd := exec.CommandContext(ctx, m.opts.FFmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.Canceled {
		return nil, domain.NewCancelledError(ctx.Err())
	}
	if err != nil {
		return nil, domain.NewMediaError(fmt.Errorf("ffmpeg sample frames: %w; out=%s", err, tail(out)))
	}

	entries, err := os.ReadDir(frameDir)
	if err != nil {
		return nil, domain.NewMediaError(fmt.Errorf("read frameDir: %w", err))
	}
	frames := make([]Frame, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := frameNameRe.FindStringSubmatch(strings.ToLower(e.Name()))
		if match == nil {
			continue
		}
		// ffmpeg numbers output frames from 1; with fps=1/interval the Nth
		// frame sits at (N-1)*interval.
		n, convErr := strconv.Atoi(match[1])
		if convErr != nil || n < 1 {
			continue
		}
		frames = append(frames, Frame{
			TimestampSeconds: float64(n-1) * interval,
			Path:             filepath.Join(frameDir, e.Name()),
		})
	}
	if len(frames) == 0 {
		return nil, domain.NewMediaError(fmt.Errorf("no frames produced from %s; out=%s", filepath.Base(sourcePath), tail(out)))
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].TimestampSeconds < frames[j].TimestampSeconds })
	return frames, nil
}

// tail keeps ffmpeg error output short enough for logs and task errors.
func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	const keep = 400
	if len(s) > keep {
		return "..." + s[len(s)-keep:]
	}
	return s
}
