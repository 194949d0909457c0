package services

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/platform"
)

// recordingStrategy stands in for a platform strategy and remembers how it
// was last called.
type recordingStrategy struct {
	mu      sync.Mutex
	calls   int
	lastURL string
	opts    Options
	result  func(rawURL string, opts Options) (*ExtractionResult, error)
}

func (r *recordingStrategy) Extract(_ context.Context, rawURL string, opts Options) (*ExtractionResult, error) {
	r.mu.Lock()
	r.calls++
	r.lastURL = rawURL
	r.opts = opts
	r.mu.Unlock()
	if r.result == nil {
		return writeLocal(opts, "webm")
	}
	return r.result(rawURL, opts)
}

type fakePlaylistStrategy struct {
	recordingStrategy
	source *PlaylistSource
}

func (f *fakePlaylistStrategy) Enumerate(context.Context, string) (*PlaylistSource, error) {
	if f.source == nil {
		return nil, newError(KindNotFound, "playlist", "Playlist is empty or could not be fetched.")
	}
	return f.source, nil
}

type writingFetcher struct {
	mu    sync.Mutex
	calls int
}

func (w *writingFetcher) Materialize(_ context.Context, _, dest string) (*MediaArtifact, error) {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	if err := os.WriteFile(dest, []byte("remote media"), 0o644); err != nil {
		return nil, err
	}
	return &MediaArtifact{Path: dest, Ext: strings.TrimPrefix(filepath.Ext(dest), ".")}, nil
}

type fakeEncoder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEncoder) Reencode(_ context.Context, in, out, _ string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if err := os.WriteFile(out, []byte("mp3 data"), 0o644); err != nil {
		return err
	}
	return os.Remove(in)
}

type fakeTagger struct {
	mu   sync.Mutex
	tags []*MetadataTags
}

func (f *fakeTagger) Tag(_ context.Context, _ string, tags *MetadataTags, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, tags)
}

type testDispatcher struct {
	*Dispatcher
	fetcher *writingFetcher
	encoder *fakeEncoder
	tagger  *fakeTagger
}

func newTestDispatcher(t *testing.T, dir string, overrides map[platform.Platform]Strategy) *testDispatcher {
	t.Helper()
	strategies := map[platform.Platform]Strategy{}
	for _, p := range allPlatforms {
		strategies[p] = &fakePlaylistStrategy{}
	}
	for p, s := range overrides {
		strategies[p] = s
	}

	td := &testDispatcher{fetcher: &writingFetcher{}, encoder: &fakeEncoder{}, tagger: &fakeTagger{}}
	d, err := NewDispatcher(strategies, td.fetcher, td.encoder, td.tagger, DispatcherConfig{
		TempDir:          dir,
		Concurrency:      3,
		MaxPlaylistItems: 20,
	}, zap.NewNop())
	require.NoError(t, err)
	td.Dispatcher = d
	return td
}

func writeLocal(opts Options, ext string) (*ExtractionResult, error) {
	path := opts.StagingBase + "." + ext
	if err := os.WriteFile(path, []byte("local media"), 0o644); err != nil {
		return nil, err
	}
	return &ExtractionResult{LocalPath: path, Ext: ext, Title: "Some Video"}, nil
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewDispatcher_RequiresEveryPlatform(t *testing.T) {
	_, err := NewDispatcher(map[platform.Platform]Strategy{
		platform.YouTube: &recordingStrategy{},
	}, &writingFetcher{}, &fakeEncoder{}, &fakeTagger{}, DispatcherConfig{TempDir: t.TempDir()}, zap.NewNop())
	assert.Error(t, err)

	strategies := map[platform.Platform]Strategy{}
	for _, p := range allPlatforms {
		strategies[p] = &recordingStrategy{}
	}
	_, err = NewDispatcher(strategies, &writingFetcher{}, &fakeEncoder{}, &fakeTagger{}, DispatcherConfig{TempDir: t.TempDir()}, zap.NewNop())
	assert.ErrorContains(t, err, "cannot enumerate")
}

func TestDispatcher_VideoWithIdentifier(t *testing.T) {
	dir := t.TempDir()
	yt := &recordingStrategy{result: func(_ string, o Options) (*ExtractionResult, error) { return writeLocal(o, "mp4") }}
	d := newTestDispatcher(t, dir, map[platform.Platform]Strategy{platform.YouTube: yt})

	res := d.Download(t.Context(), DownloadRequest{
		URL:           "https://music.youtube.com/watch?v=dQw4w9WgXcQ",
		OwnerID:       "1234",
		Kind:          MediaVideo,
		Purpose:       "DOWN",
		UseIdentifier: true,
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Some Video", res.Title)
	assert.Regexp(t, `^1234-DOWN-\d{5}\.mp4$`, filepath.Base(res.Artifact.Path))
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", yt.lastURL)
	assert.False(t, yt.opts.WantAudio)
	assert.Zero(t, d.encoder.calls)
	assert.Empty(t, d.tagger.tags)
	assert.Equal(t, []string{filepath.Base(res.Artifact.Path)}, listDir(t, dir))
}

func TestDispatcher_AudioFromStreamIsReencodedAndTagged(t *testing.T) {
	dir := t.TempDir()
	tw := &recordingStrategy{result: func(string, Options) (*ExtractionResult, error) {
		return &ExtractionResult{MediaURL: "https://cdn.example/v.mp4", Ext: "mp4", Title: "my_clip", Artist: "someone"}, nil
	}}
	d := newTestDispatcher(t, dir, map[platform.Platform]Strategy{platform.Twitter: tw})

	res := d.Download(t.Context(), DownloadRequest{
		URL:     "https://fxtwitter.com/someone/status/1",
		OwnerID: "1234",
		Kind:    MediaAudio,
		Purpose: "DOWN",
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "my_clip.mp3", filepath.Base(res.Artifact.Path))
	assert.Equal(t, "mp3", res.Artifact.Ext)
	assert.Equal(t, 1, d.fetcher.calls)
	assert.Equal(t, 1, d.encoder.calls)
	require.Len(t, d.tagger.tags, 1)
	assert.Equal(t, "my_clip", d.tagger.tags[0].Title)
	assert.Equal(t, "someone", d.tagger.tags[0].Artist)
	assert.Equal(t, []string{"my_clip.mp3"}, listDir(t, dir))
}

func TestDispatcher_ReencodeFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	tw := &recordingStrategy{result: func(_ string, o Options) (*ExtractionResult, error) { return writeLocal(o, "webm") }}
	d := newTestDispatcher(t, dir, map[platform.Platform]Strategy{platform.YouTube: tw})
	d.encoder.err = newError(KindConversionFailed, "ffmpeg", "Encoding failed (code 1)")

	res := d.Download(t.Context(), DownloadRequest{
		URL:     "https://youtu.be/dQw4w9WgXcQ",
		OwnerID: "1234",
		Kind:    MediaAudio,
		Purpose: "DOWN",
	})

	assert.False(t, res.Success)
	assert.Equal(t, "Encoding failed (code 1)", res.Message)
	assert.Empty(t, listDir(t, dir))
}

func TestDispatcher_RejectsBadInput(t *testing.T) {
	d := newTestDispatcher(t, t.TempDir(), nil)

	res := d.Download(t.Context(), DownloadRequest{URL: "https://www.microsoft.com/x", OwnerID: "1", Kind: MediaVideo, Purpose: "DOWN"})
	assert.False(t, res.Success)
	assert.Equal(t, "This link isn't supported", res.Message)

	res = d.Download(t.Context(), DownloadRequest{URL: "ftp://youtube.com/x", OwnerID: "1", Kind: MediaVideo, Purpose: "DOWN"})
	assert.False(t, res.Success)
	assert.Equal(t, "That doesn't look like a valid link", res.Message)

	res = d.Download(t.Context(), DownloadRequest{URL: "https://youtu.be/x", OwnerID: "1", Kind: "gif", Purpose: "DOWN"})
	assert.False(t, res.Success)
}

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	boom := &recordingStrategy{result: func(string, Options) (*ExtractionResult, error) { panic("nil map") }}
	d := newTestDispatcher(t, t.TempDir(), map[platform.Platform]Strategy{platform.TikTok: boom})

	var res Result
	require.NotPanics(t, func() {
		res = d.Download(t.Context(), DownloadRequest{URL: "https://www.tiktok.com/@a/video/1", OwnerID: "1", Kind: MediaVideo, Purpose: "DOWN"})
	})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
}

func TestDispatcher_PlaylistItemPanicIsContained(t *testing.T) {
	items := []PlaylistItem{
		{URL: "https://www.youtube.com/watch?v=a", Title: "a"},
		{URL: "https://www.youtube.com/watch?v=b", Title: "b"},
		{URL: "https://www.youtube.com/watch?v=c", Title: "c"},
	}
	pl := &fakePlaylistStrategy{source: &PlaylistSource{Title: "Mixed", Items: items}}
	pl.result = func(rawURL string, o Options) (*ExtractionResult, error) {
		if strings.HasSuffix(rawURL, "=b") {
			var seen map[string]bool
			seen[rawURL] = true
		}
		return writeLocal(o, "mp4")
	}
	d := newTestDispatcher(t, t.TempDir(), map[platform.Platform]Strategy{platform.YouTubePlaylist: pl})

	var res Result
	require.NotPanics(t, func() {
		res = d.Download(t.Context(), DownloadRequest{URL: "https://www.youtube.com/playlist?list=PLmix", OwnerID: "1", Kind: MediaVideo, Purpose: "DOWN"})
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 2, res.Playlist.SuccessCount)
	require.Len(t, res.Playlist.Failures, 1)
	assert.Equal(t, 2, res.Playlist.Failures[0].Index)
}

func TestDispatcher_ForwardsProgress(t *testing.T) {
	single := &recordingStrategy{result: func(_ string, o Options) (*ExtractionResult, error) {
		require.NotNil(t, o.OnProgress)
		o.OnProgress(Progress{Percent: 42, Speed: "1.0MiB/s", ETA: "00:03"})
		return writeLocal(o, "mp4")
	}}
	items := []PlaylistItem{{URL: "https://www.youtube.com/watch?v=a"}, {URL: "https://www.youtube.com/watch?v=b"}}
	pl := &fakePlaylistStrategy{source: &PlaylistSource{Title: "Two", Items: items}}
	d := newTestDispatcher(t, t.TempDir(), map[platform.Platform]Strategy{platform.TikTok: single, platform.YouTubePlaylist: pl})

	var mu sync.Mutex
	var got []Progress
	record := func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p)
	}

	res := d.Download(t.Context(), DownloadRequest{URL: "https://www.tiktok.com/@a/video/1", OwnerID: "1", Kind: MediaVideo, Purpose: "DOWN", OnProgress: record})
	require.True(t, res.Success, res.Message)
	require.Len(t, got, 1)
	assert.InDelta(t, 42, got[0].Percent, 0.001)

	got = nil
	res = d.Download(t.Context(), DownloadRequest{URL: "https://www.youtube.com/playlist?list=PLtwo", OwnerID: "1", Kind: MediaVideo, Purpose: "DOWN", OnProgress: record})
	require.True(t, res.Success, res.Message)
	require.Len(t, got, 2)
	assert.Equal(t, Progress{Percent: 50, Done: 1, Total: 2}, got[0])
	assert.Equal(t, Progress{Percent: 100, Done: 2, Total: 2}, got[1])
	assert.Nil(t, pl.opts.OnProgress)
}

func TestDispatcher_OnFailureOnlyForUpstreamErrors(t *testing.T) {
	var alerted []error
	ig := &recordingStrategy{result: func(string, Options) (*ExtractionResult, error) {
		return nil, newError(KindNotFound, "instagram", "couldn't find a video or it's marked as private")
	}}
	tt := &recordingStrategy{result: func(string, Options) (*ExtractionResult, error) {
		return nil, wrapError(KindUpstream, "cobalt", errors.New("All Cobalt instances failed"))
	}}
	d := newTestDispatcher(t, t.TempDir(), map[platform.Platform]Strategy{platform.Instagram: ig, platform.TikTok: tt})
	d.OnFailure = func(_ DownloadRequest, err error) { alerted = append(alerted, err) }

	res := d.Download(t.Context(), DownloadRequest{URL: "https://www.instagram.com/reel/x", OwnerID: "1", Kind: MediaVideo, Purpose: "DOWN"})
	assert.Equal(t, "couldn't find a video or it's marked as private", res.Message)
	assert.Empty(t, alerted)

	res = d.Download(t.Context(), DownloadRequest{URL: "https://www.tiktok.com/@a/video/1", OwnerID: "1", Kind: MediaVideo, Purpose: "DOWN"})
	assert.False(t, res.Success)
	assert.Len(t, alerted, 1)
}

func TestDispatcher_PlaylistPartialFailure(t *testing.T) {
	dir := t.TempDir()
	var items []PlaylistItem
	for i := 1; i <= 10; i++ {
		items = append(items, PlaylistItem{URL: fmt.Sprintf("https://www.youtube.com/watch?v=vid%02d", i), Title: fmt.Sprintf("Track %d", i)})
	}
	pl := &fakePlaylistStrategy{source: &PlaylistSource{Title: "Road Trip", Items: items, Total: 10}}
	pl.result = func(rawURL string, o Options) (*ExtractionResult, error) {
		if strings.HasSuffix(rawURL, "vid03") || strings.HasSuffix(rawURL, "vid07") {
			return nil, newError(KindNotFound, "youtube", "This video is unavailable or has been removed")
		}
		return writeLocal(o, "mp4")
	}
	d := newTestDispatcher(t, dir, map[platform.Platform]Strategy{platform.YouTubePlaylist: pl})

	res := d.Download(t.Context(), DownloadRequest{
		URL:     "https://www.youtube.com/playlist?list=PL123",
		OwnerID: "1234",
		Kind:    MediaVideo,
		Purpose: "DOWN",
	})

	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Playlist)
	assert.Equal(t, 8, res.Playlist.SuccessCount)
	assert.Equal(t, 2, res.Playlist.ErrorCount)
	require.Len(t, res.Playlist.Failures, 2)
	assert.Equal(t, 3, res.Playlist.Failures[0].Index)
	assert.Equal(t, "Track 3", res.Playlist.Failures[0].Title)
	assert.Equal(t, 7, res.Playlist.Failures[1].Index)

	assert.Equal(t, "Road Trip.zip", filepath.Base(res.Artifact.Path))
	zr, err := zip.OpenReader(res.Artifact.Path)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 8)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "01_Track 1.mp4")
	assert.NotContains(t, names, "03_Track 3.mp4")

	assert.Equal(t, []string{"Road Trip.zip"}, listDir(t, dir))
}

func TestDispatcher_PlaylistAllFail(t *testing.T) {
	dir := t.TempDir()
	pl := &fakePlaylistStrategy{source: &PlaylistSource{Title: "Dead", Items: []PlaylistItem{{URL: "https://soundcloud.com/a/b"}}}}
	pl.result = func(string, Options) (*ExtractionResult, error) {
		return nil, wrapError(KindUpstream, "download", errors.New("HTTP Error 500"))
	}
	d := newTestDispatcher(t, dir, map[platform.Platform]Strategy{platform.SoundCloudPlaylist: pl})

	res := d.Download(t.Context(), DownloadRequest{URL: "https://soundcloud.com/a/sets/dead", OwnerID: "1", Kind: MediaVideo, Purpose: "DOWN"})
	assert.False(t, res.Success)
	assert.Equal(t, "No items were successfully downloaded", res.Message)
	assert.True(t, pl.opts.WantAudio)
	assert.Empty(t, listDir(t, dir))
}

func TestDispatcher_PlaylistTooLarge(t *testing.T) {
	pl := &fakePlaylistStrategy{source: &PlaylistSource{Title: "Huge", Items: []PlaylistItem{{URL: "https://youtu.be/a"}}, Total: 500}}
	d := newTestDispatcher(t, t.TempDir(), map[platform.Platform]Strategy{platform.YouTubePlaylist: pl})

	res := d.Download(t.Context(), DownloadRequest{URL: "https://www.youtube.com/playlist?list=PLbig", OwnerID: "1", Kind: MediaVideo, Purpose: "DOWN"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Playlist too large")
	assert.Zero(t, pl.calls)
}
