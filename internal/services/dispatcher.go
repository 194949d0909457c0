package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/platform"
	"github.com/coah80/chocbot/internal/util"
)

var allPlatforms = []platform.Platform{
	platform.YouTube,
	platform.YouTubePlaylist,
	platform.Twitter,
	platform.Instagram,
	platform.TikTok,
	platform.SoundCloud,
	platform.SoundCloudPlaylist,
	platform.Spotify,
}

type mediaFetcher interface {
	Materialize(ctx context.Context, mediaURL, dest string) (*MediaArtifact, error)
}

type reencoder interface {
	Reencode(ctx context.Context, in, out, format string) error
}

type tagWriter interface {
	Tag(ctx context.Context, path string, tags *MetadataTags, thumbnailURL string)
}

type DispatcherConfig struct {
	TempDir          string
	Concurrency      int
	MaxPlaylistItems int
}

// Dispatcher routes a request to the strategy for its platform and runs the
// result through materialization, re-encoding and tagging.
type Dispatcher struct {
	strategies map[platform.Platform]Strategy
	fetcher    mediaFetcher
	encoder    reencoder
	tagger     tagWriter
	playlists  *PlaylistRunner
	cfg        DispatcherConfig
	logger     *zap.Logger

	// OnFailure, when set, is called for failures that are not the user's
	// fault, such as upstream outages.
	OnFailure func(req DownloadRequest, err error)
}

// NewDispatcher fails unless every platform has a strategy and both playlist
// platforms have one that can enumerate.
func NewDispatcher(strategies map[platform.Platform]Strategy, fetcher mediaFetcher, encoder reencoder, tagger tagWriter, cfg DispatcherConfig, logger *zap.Logger) (*Dispatcher, error) {
	for _, p := range allPlatforms {
		s, ok := strategies[p]
		if !ok || s == nil {
			return nil, fmt.Errorf("no strategy for %s", p)
		}
		if _, ok := s.(PlaylistStrategy); p.IsPlaylist() && !ok {
			return nil, fmt.Errorf("strategy for %s cannot enumerate playlists", p)
		}
	}
	if cfg.MaxPlaylistItems <= 0 {
		cfg.MaxPlaylistItems = 100
	}
	logger = logger.Named("dispatch")
	return &Dispatcher{
		strategies: strategies,
		fetcher:    fetcher,
		encoder:    encoder,
		tagger:     tagger,
		playlists:  NewPlaylistRunner(cfg.Concurrency, logger),
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Download handles one request end to end. It never returns an error and
// never panics; every failure becomes a Result with Success false.
func (d *Dispatcher) Download(ctx context.Context, req DownloadRequest) (res Result) {
	jobID := uuid.NewString()[:8]
	log := d.logger.With(zap.String("job", jobID), zap.String("owner", req.OwnerID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in download pipeline", zap.Any("panic", r), zap.Stack("stack"))
			res = Result{Success: false, Message: "Something went wrong, try again"}
		}
	}()

	if err := util.Validator().Struct(req); err != nil {
		log.Info("invalid request", zap.Error(err))
		return Result{Message: "That doesn't look like a valid link"}
	}

	p := platform.Identify(req.URL)
	if p == platform.Unsupported {
		return Result{Message: "This link isn't supported"}
	}
	if !util.HasFreeSpace(d.cfg.TempDir) {
		log.Error("scratch disk is nearly full", zap.String("dir", d.cfg.TempDir))
		return Result{Message: "The server is low on disk space, try again later"}
	}

	rawURL := platform.Normalize(req.URL)
	log = log.With(zap.Stringer("platform", p), zap.String("url", rawURL))
	log.Info("download started", zap.String("kind", string(req.Kind)))
	start := time.Now()

	if p.IsPlaylist() {
		res = d.downloadPlaylist(ctx, req, p, rawURL, log)
	} else {
		res = d.downloadSingle(ctx, req, p, rawURL, log)
	}

	if res.Success {
		log.Info("download finished", zap.Duration("took", time.Since(start)), zap.String("title", res.Title))
	}
	return res
}

func (d *Dispatcher) downloadSingle(ctx context.Context, req DownloadRequest, p platform.Platform, rawURL string, log *zap.Logger) Result {
	opts := Options{WantAudio: req.WantAudio(), OwnerID: req.OwnerID, OnProgress: req.OnProgress}
	namer := func(res *ExtractionResult, ext string) string {
		if req.UseIdentifier {
			return util.ArtifactName(req.OwnerID, req.Purpose, ext)
		}
		return util.TitleName(d.cfg.TempDir, res.Title, ext)
	}

	art, found, err := d.produce(ctx, d.strategies[p], rawURL, opts, d.cfg.TempDir, namer)
	if err != nil {
		return d.fail(req, err, log)
	}
	return Result{Success: true, Title: found.Title, Artifact: art}
}

func (d *Dispatcher) downloadPlaylist(ctx context.Context, req DownloadRequest, p platform.Platform, rawURL string, log *zap.Logger) Result {
	strategy := d.strategies[p].(PlaylistStrategy)

	src, err := strategy.Enumerate(ctx, rawURL)
	if err != nil {
		return d.fail(req, err, log)
	}
	total := max(src.Total, len(src.Items))
	if total > d.cfg.MaxPlaylistItems {
		return Result{Message: fmt.Sprintf("Playlist too large. Maximum %d items allowed. This playlist has %d items.", d.cfg.MaxPlaylistItems, total)}
	}
	if len(src.Items) == 0 {
		return Result{Message: "Playlist is empty or could not be fetched."}
	}

	title := OrDefault(src.Title, "playlist")
	stagingDir := filepath.Join(d.cfg.TempDir, "playlist-"+uuid.NewString())
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return d.fail(req, err, log)
	}
	defer os.RemoveAll(stagingDir)

	log.Info("playlist enumerated", zap.String("title", title), zap.Int("items", len(src.Items)))

	opts := Options{WantAudio: req.WantAudio() || p == platform.SoundCloudPlaylist, OwnerID: req.OwnerID}
	files, report := d.playlists.Run(ctx, title, src.Items, func(ctx context.Context, i int, item PlaylistItem) (string, error) {
		namer := func(res *ExtractionResult, ext string) string {
			name := OrDefault(item.Title, res.Title)
			return fmt.Sprintf("%02d_%s.%s", i+1, util.SanitizeFilename(name, util.MaxPlaylistItemLength), ext)
		}
		art, _, err := d.produce(ctx, strategy, item.URL, opts, stagingDir, namer)
		if err != nil {
			return "", err
		}
		return art.Path, nil
	}, func(done, total int) {
		if req.OnProgress != nil {
			req.OnProgress(Progress{Percent: float64(done) / float64(total) * 100, Done: done, Total: total})
		}
	})

	if report.SuccessCount == 0 {
		log.Warn("playlist produced nothing", zap.Int("errors", report.ErrorCount))
		return Result{Title: title, Message: "No items were successfully downloaded", Playlist: report}
	}

	zipName := util.TitleName(d.cfg.TempDir, title, "zip")
	if req.UseIdentifier {
		zipName = util.ArtifactName(req.OwnerID, req.Purpose, "zip")
	}
	zipPath := filepath.Join(d.cfg.TempDir, zipName)
	if err := CreateZip(zipPath, files); err != nil {
		return d.fail(req, wrapError(KindUpstream, "zip", err), log)
	}
	info, err := os.Stat(zipPath)
	if err != nil {
		return d.fail(req, err, log)
	}

	log.Info("playlist archived",
		zap.String("zip", zipName),
		zap.Int("ok", report.SuccessCount),
		zap.Int("failed", report.ErrorCount))

	return Result{
		Success:  true,
		Title:    title,
		Playlist: report,
		Artifact: &MediaArtifact{
			Path:      zipPath,
			Size:      info.Size(),
			Ext:       "zip",
			CreatedAt: time.Now(),
		},
	}
}

// produce runs one URL through extraction, materialization, optional audio
// re-encoding and tagging. The finished file lands in dir under the name
// namer picks; intermediate files are removed on every path.
func (d *Dispatcher) produce(ctx context.Context, s Strategy, rawURL string, opts Options, dir string, namer func(*ExtractionResult, string) string) (*MediaArtifact, *ExtractionResult, error) {
	staging := filepath.Join(dir, "stage-"+uuid.NewString())
	opts.StagingBase = staging
	defer removeMatching(staging)

	res, err := s.Extract(ctx, rawURL, opts)
	if err != nil {
		return nil, nil, err
	}

	path := res.LocalPath
	ext := strings.ToLower(OrDefault(res.Ext, strings.TrimPrefix(filepath.Ext(path), ".")))
	if res.MediaURL != "" {
		ext = OrDefault(ext, "mp4")
		art, err := d.fetcher.Materialize(ctx, res.MediaURL, staging+"."+ext)
		if err != nil {
			return nil, nil, err
		}
		path = art.Path
	}
	if path == "" {
		return nil, nil, newError(KindUpstream, "produce", "Downloaded file not found")
	}

	audio := opts.WantAudio || res.ForceAudio
	finalExt := ext
	if audio {
		finalExt = "mp3"
	}
	finalPath := filepath.Join(dir, namer(res, finalExt))

	switch {
	case audio && ext != "mp3":
		if err := d.encoder.Reencode(ctx, path, finalPath, "mp3"); err != nil {
			os.Remove(path)
			return nil, nil, err
		}
	default:
		if err := os.Rename(path, finalPath); err != nil {
			os.Remove(path)
			return nil, nil, wrapError(KindUpstream, "produce", err)
		}
	}

	if audio {
		tags := res.Tags
		if tags == nil {
			tags = &MetadataTags{Title: res.Title, Artist: res.Artist, AlbumArtist: res.Artist}
		}
		d.tagger.Tag(ctx, finalPath, tags, res.Thumbnail)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, nil, wrapError(KindUpstream, "produce", err)
	}
	return &MediaArtifact{
		Path:      finalPath,
		Size:      info.Size(),
		Ext:       finalExt,
		CreatedAt: time.Now(),
	}, res, nil
}

func (d *Dispatcher) fail(req DownloadRequest, err error, log *zap.Logger) Result {
	msg := UserMessage(err)
	if errors.Is(err, context.Canceled) {
		msg = "Download cancelled"
	}
	if Deterministic(err) {
		log.Info("download rejected", zap.Error(err))
	} else {
		log.Warn("download failed", zap.Stringer("kind", KindOf(err)), zap.Error(err))
		if d.OnFailure != nil {
			d.OnFailure(req, err)
		}
	}
	return Result{Message: msg}
}
