package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/retry"
)

var audioCodecs = map[string][]string{
	"mp3":  {"-codec:a", "libmp3lame", "-b:a", "320k"},
	"m4a":  {"-codec:a", "aac", "-b:a", "320k"},
	"opus": {"-codec:a", "libopus", "-b:a", "320k"},
	"wav":  {"-codec:a", "pcm_s16le"},
	"flac": {"-codec:a", "flac"},
}

// Processor wraps ffmpeg and ffprobe.
type Processor struct {
	ffmpeg  string
	ffprobe string
	policy  retry.Policy
	logger  *zap.Logger
}

func NewProcessor(logger *zap.Logger) *Processor {
	return &Processor{
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
		policy:  retry.Default(),
		logger:  logger.Named("ffmpeg"),
	}
}

// Run executes ffmpeg with args. The last 500 bytes of stderr are logged on
// failure.
func (p *Processor) Run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, p.ffmpeg, append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return wrapError(KindTimeout, "ffmpeg", ctx.Err())
		}
		errStr := stderr.String()
		if len(errStr) > 500 {
			errStr = errStr[len(errStr)-500:]
		}
		p.logger.Warn("ffmpeg failed", zap.String("stderr", errStr))
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		return newError(KindConversionFailed, "ffmpeg", fmt.Sprintf("Encoding failed (code %d)", code))
	}
	return nil
}

// Reencode converts in to an audio file at out and removes in on success.
// It retries while in is not yet on disk or ffmpeg fails.
func (p *Processor) Reencode(ctx context.Context, in, out, format string) error {
	codec, ok := audioCodecs[format]
	if !ok {
		codec = []string{"-codec:a", "copy"}
	}
	args := append([]string{"-i", in, "-vn"}, codec...)
	args = append(args, out)

	err := retry.Run(ctx, p.policy, func(ctx context.Context) error {
		if _, err := os.Stat(in); err != nil {
			return fmt.Errorf("input not ready: %w", err)
		}
		return p.Run(ctx, args)
	})
	if err != nil {
		os.Remove(out)
		if k := KindOf(err); k == KindTimeout || k == KindConversionFailed {
			return err
		}
		return wrapError(KindConversionFailed, "reencode", err)
	}
	os.Remove(in)
	return nil
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *Processor) probe(ctx context.Context, path string) (*probeOutput, error) {
	cmd := exec.CommandContext(ctx, p.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams", "-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &probe, nil
}

// Duration returns the container duration of path.
func (p *Processor) Duration(ctx context.Context, path string) (time.Duration, error) {
	probe, err := p.probe(ctx, path)
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("no duration for %s", path)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Dimensions returns the size of the first video stream.
func (p *Processor) Dimensions(ctx context.Context, path string) (int, int, error) {
	probe, err := p.probe(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	for _, s := range probe.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return s.Width, s.Height, nil
		}
	}
	return 0, 0, fmt.Errorf("no video stream in %s", path)
}

// SquareCover crops the largest centered square out of in and writes it as
// a JPEG to out.
func (p *Processor) SquareCover(ctx context.Context, in, out string) error {
	w, h, err := p.Dimensions(ctx, in)
	if err != nil {
		return err
	}
	side := min(w, h)
	crop := fmt.Sprintf("crop=%d:%d:%d:%d", side, side, (w-side)/2, (h-side)/2)
	return p.Run(ctx, []string{"-i", in, "-vf", crop, "-frames:v", "1", "-q:v", "2", out})
}
