package convert

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	MaxGifDuration = 60 * time.Second
	paletteFilter  = "split[s0][s1];[s0]palettegen=max_colors=256[p];[s1][p]paletteuse=dither=bayer:bayer_scale=5"
)

var (
	ErrAlreadyTarget = errors.New("file is already in the target format")
	ErrGifTooLong    = errors.New("video duration exceeds 60 seconds")
)

// gifRates picks the frame rate for a clip: the first bucket whose limit is
// above the duration wins, and the final bucket also takes exactly 60s.
var gifRates = []struct {
	limit time.Duration
	fps   int
}{
	{10 * time.Second, 20},
	{18 * time.Second, 15},
	{24 * time.Second, 10},
	{30 * time.Second, 8},
	{60 * time.Second, 8},
}

// GifFPS returns the frame rate used for a clip of length d. Callers must
// reject clips longer than MaxGifDuration first.
func GifFPS(d time.Duration) int {
	for _, r := range gifRates {
		if d < r.limit {
			return r.fps
		}
	}
	return gifRates[len(gifRates)-1].fps
}

type alreadyTargetError struct {
	format string
}

func (e *alreadyTargetError) Error() string {
	return fmt.Sprintf("File is already in %s format", strings.ToUpper(e.format))
}

func (e *alreadyTargetError) Is(target error) bool { return target == ErrAlreadyTarget }

// UnsupportedConversion is returned for a source and target pair that the
// decider will not attempt.
type UnsupportedConversion struct {
	From, To string
}

func (e *UnsupportedConversion) Error() string {
	return fmt.Sprintf("Conversion from %s to %s is not possible.", strings.ToUpper(e.From), strings.ToUpper(e.To))
}

// UserMessage returns the chat reply for a failed conversion.
func UserMessage(err error) string {
	var already *alreadyTargetError
	var unsupported *UnsupportedConversion
	switch {
	case errors.As(err, &already):
		return already.Error()
	case errors.As(err, &unsupported):
		return unsupported.Error()
	case errors.Is(err, ErrGifTooLong):
		return "Video duration exceeds 60 seconds."
	case errors.Is(err, context.DeadlineExceeded):
		return "Conversion timed out, try again"
	}
	return "Conversion failed."
}

// Transcoder runs ffmpeg and probes media. services.Processor satisfies it.
type Transcoder interface {
	Run(ctx context.Context, args []string) error
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Report compares the sizes of a conversion's input and output.
type Report struct {
	OriginalSize int64
	NewSize      int64
}

func (r *Report) String() string {
	diff := r.NewSize - r.OriginalSize
	sign := "-"
	if diff > 0 {
		sign = "+"
	}
	pct := 0.0
	if r.OriginalSize > 0 {
		pct = math.Abs(float64(diff)) / float64(r.OriginalSize) * 100
	}
	return fmt.Sprintf("%s -> %s (%s%s/%s%.2f%%)",
		kb(r.OriginalSize), kb(r.NewSize), sign, kb(abs(diff)), sign, pct)
}

func kb(n int64) string {
	return fmt.Sprintf("%.2f KB", float64(n)/1024)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// Decider validates a conversion and hands it to the transcoder.
type Decider struct {
	tc     Transcoder
	logger *zap.Logger
}

func NewDecider(tc Transcoder, logger *zap.Logger) *Decider {
	return &Decider{tc: tc, logger: logger.Named("convert")}
}

// Check reports whether src may be converted to target without doing any
// work. It returns the same errors Decide would before transcoding.
func (d *Decider) Check(src, target string) error {
	from := normalize(filepath.Ext(src))
	to := normalize(target)
	if from == to {
		return &alreadyTargetError{format: to}
	}
	if !Allowed(from, to) {
		return &UnsupportedConversion{From: from, To: to}
	}
	return nil
}

// Decide converts src into out as target. out is removed when conversion
// fails.
func (d *Decider) Decide(ctx context.Context, src, out, target string) (*Report, error) {
	if err := d.Check(src, target); err != nil {
		return nil, err
	}
	from := normalize(filepath.Ext(src))
	to := normalize(target)
	log := d.logger.With(zap.String("from", from), zap.String("to", to))

	args, err := d.plan(ctx, src, out, from, to)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := d.tc.Run(ctx, args); err != nil {
		os.Remove(out)
		log.Warn("conversion failed", zap.Error(err))
		return nil, fmt.Errorf("convert %s to %s: %w", from, to, err)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	outInfo, err := os.Stat(out)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}
	report := &Report{OriginalSize: srcInfo.Size(), NewSize: outInfo.Size()}
	log.Info("converted", zap.Duration("took", time.Since(start)), zap.Stringer("size", report))
	return report, nil
}

func (d *Decider) plan(ctx context.Context, src, out, from, to string) ([]string, error) {
	if to == "gif" {
		args := []string{"-i", src}
		if ClassOf(from) == ClassVideo {
			dur, err := d.tc.Duration(ctx, src)
			if err != nil {
				return nil, fmt.Errorf("probe duration: %w", err)
			}
			if dur > MaxGifDuration {
				return nil, ErrGifTooLong
			}
			args = append(args, "-r", fmt.Sprint(GifFPS(dur)))
		} else {
			args = append(args, "-frames:v", "1")
		}
		return append(args, "-compression_level", "6", "-vf", paletteFilter, "-f", "gif", out), nil
	}

	enc, ok := encodings[to]
	if !ok {
		return nil, &UnsupportedConversion{From: from, To: to}
	}
	args := append([]string{"-i", src}, enc.codec...)
	if enc.format == "image2" {
		args = append(args, "-update", "1")
	}
	return append(args, "-f", enc.format, out), nil
}
