package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTranscoder struct {
	duration      time.Duration
	outSize       int
	runErr        error
	runs          [][]string
	durationCalls int
}

func (f *fakeTranscoder) Run(ctx context.Context, args []string) error {
	f.runs = append(f.runs, args)
	if f.runErr != nil {
		return f.runErr
	}
	return os.WriteFile(args[len(args)-1], make([]byte, f.outSize), 0o644)
}

func (f *fakeTranscoder) Duration(ctx context.Context, path string) (time.Duration, error) {
	f.durationCalls++
	return f.duration, nil
}

func writeInput(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, ClassImage, ClassOf("PNG"))
	assert.Equal(t, ClassImage, ClassOf(".heic"))
	assert.Equal(t, ClassAudio, ClassOf("opus"))
	assert.Equal(t, ClassVideo, ClassOf("3gp"))
	assert.Equal(t, ClassUnknown, ClassOf("docx"))
}

func TestTargets(t *testing.T) {
	video := Targets("mp4")
	assert.Contains(t, video, "gif")
	assert.Contains(t, video, "mp3")
	assert.Contains(t, video, "webm")
	assert.NotContains(t, video, "mp4")
	assert.NotContains(t, video, "png")

	audio := Targets("mp3")
	assert.NotContains(t, audio, "mp3")
	assert.NotContains(t, audio, "gif")
	assert.NotContains(t, audio, "mp4")
	assert.Len(t, audio, len(audioFormats)-1)

	image := Targets("png")
	assert.Contains(t, image, "gif")
	assert.Contains(t, image, "jpg")
	assert.NotContains(t, image, "png")
	assert.NotContains(t, image, "mp4")

	assert.Empty(t, Targets("txt"))
}

func TestGifFPS(t *testing.T) {
	cases := []struct {
		d   time.Duration
		fps int
	}{
		{9 * time.Second, 20},
		{10 * time.Second, 15},
		{17 * time.Second, 15},
		{20 * time.Second, 10},
		{29 * time.Second, 8},
		{45 * time.Second, 8},
		{60 * time.Second, 8},
	}
	for _, c := range cases {
		assert.Equal(t, c.fps, GifFPS(c.d), c.d.String())
	}
}

func TestDecideSameFormat(t *testing.T) {
	tc := &fakeTranscoder{}
	d := NewDecider(tc, zap.NewNop())
	src := writeInput(t, "song.mp3", 10)

	_, err := d.Decide(t.Context(), src, filepath.Join(t.TempDir(), "out.mp3"), "MP3")
	require.ErrorIs(t, err, ErrAlreadyTarget)
	assert.Equal(t, "File is already in MP3 format", UserMessage(err))
	assert.Empty(t, tc.runs)
}

func TestDecideDisallowedPair(t *testing.T) {
	tc := &fakeTranscoder{}
	d := NewDecider(tc, zap.NewNop())

	cases := []struct{ src, to string }{
		{"clip.mp4", "png"},
		{"song.mp3", "mp4"},
		{"song.mp3", "gif"},
		{"photo.png", "mp3"},
		{"notes.txt", "mp3"},
	}
	for _, c := range cases {
		_, err := d.Decide(t.Context(), writeInput(t, c.src, 1), filepath.Join(t.TempDir(), "out."+c.to), c.to)
		var unsupported *UnsupportedConversion
		require.ErrorAs(t, err, &unsupported, c.src+" -> "+c.to)
		assert.Equal(t, c.to, unsupported.To)
	}
	assert.Equal(t, "Conversion from MP4 to PNG is not possible.", UserMessage(&UnsupportedConversion{From: "mp4", To: "png"}))
	assert.Empty(t, tc.runs)
	assert.Zero(t, tc.durationCalls)
}

func TestDecideGifFromShortVideo(t *testing.T) {
	tc := &fakeTranscoder{duration: 9 * time.Second, outSize: 100}
	d := NewDecider(tc, zap.NewNop())
	src := writeInput(t, "clip.mp4", 400)
	out := filepath.Join(t.TempDir(), "clip.gif")

	report, err := d.Decide(t.Context(), src, out, "gif")
	require.NoError(t, err)
	require.Len(t, tc.runs, 1)

	args := tc.runs[0]
	assert.Equal(t, "20", argAfter(args, "-r"))
	assert.Equal(t, paletteFilter, argAfter(args, "-vf"))
	assert.Equal(t, "gif", argAfter(args, "-f"))
	assert.Equal(t, out, args[len(args)-1])
	assert.Equal(t, int64(400), report.OriginalSize)
	assert.Equal(t, int64(100), report.NewSize)
}

func TestDecideGifFromLongerVideo(t *testing.T) {
	tc := &fakeTranscoder{duration: 45 * time.Second, outSize: 1}
	d := NewDecider(tc, zap.NewNop())

	_, err := d.Decide(t.Context(), writeInput(t, "clip.webm", 1), filepath.Join(t.TempDir(), "clip.gif"), "gif")
	require.NoError(t, err)
	assert.Equal(t, "8", argAfter(tc.runs[0], "-r"))
}

func TestDecideGifTooLong(t *testing.T) {
	tc := &fakeTranscoder{duration: 70 * time.Second}
	d := NewDecider(tc, zap.NewNop())
	out := filepath.Join(t.TempDir(), "clip.gif")

	_, err := d.Decide(t.Context(), writeInput(t, "clip.mp4", 1), out, "gif")
	require.ErrorIs(t, err, ErrGifTooLong)
	assert.Equal(t, "Video duration exceeds 60 seconds.", UserMessage(err))
	assert.Empty(t, tc.runs)
	assert.NoFileExists(t, out)
}

func TestDecideGifFromImage(t *testing.T) {
	tc := &fakeTranscoder{outSize: 1}
	d := NewDecider(tc, zap.NewNop())

	_, err := d.Decide(t.Context(), writeInput(t, "photo.png", 1), filepath.Join(t.TempDir(), "photo.gif"), "gif")
	require.NoError(t, err)
	assert.Zero(t, tc.durationCalls)
	assert.Equal(t, "1", argAfter(tc.runs[0], "-frames:v"))
	assert.Equal(t, paletteFilter, argAfter(tc.runs[0], "-vf"))
}

func TestDecideCodecTable(t *testing.T) {
	tc := &fakeTranscoder{outSize: 1}
	d := NewDecider(tc, zap.NewNop())

	_, err := d.Decide(t.Context(), writeInput(t, "song.wav", 1), filepath.Join(t.TempDir(), "song.mp3"), "mp3")
	require.NoError(t, err)
	args := tc.runs[0]
	assert.Equal(t, "libmp3lame", argAfter(args, "-c:a"))
	assert.Equal(t, "320k", argAfter(args, "-b:a"))
	assert.Equal(t, "mp3", argAfter(args, "-f"))
}

func TestDecideRunFailureRemovesOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "clip.webm")
	require.NoError(t, os.WriteFile(out, []byte("partial"), 0o644))

	tc := &fakeTranscoder{runErr: errors.New("Encoding failed (code 1)")}
	d := NewDecider(tc, zap.NewNop())

	_, err := d.Decide(t.Context(), writeInput(t, "clip.mp4", 1), out, "webm")
	require.Error(t, err)
	assert.NoFileExists(t, out)
	assert.Equal(t, "Conversion failed.", UserMessage(err))
}

func TestReportString(t *testing.T) {
	r := &Report{OriginalSize: 12 * 1024, NewSize: 8 * 1024}
	assert.Equal(t, "12.00 KB -> 8.00 KB (-4.00 KB/-33.33%)", r.String())

	grew := &Report{OriginalSize: 1024, NewSize: 1536}
	assert.Equal(t, "1.00 KB -> 1.50 KB (+0.50 KB/+50.00%)", grew.String())
}
