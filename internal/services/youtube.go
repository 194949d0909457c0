package services

import (
	"context"
	"fmt"

	"github.com/ytget/ytdlp/v2"
	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/platform"
)

const youtubeWatchURL = "https://www.youtube.com/watch?v=%s"

// YouTubeStrategy downloads with yt-dlp and falls back to Cobalt when
// yt-dlp fails for a reason that might not apply to Cobalt.
type YouTubeStrategy struct {
	ytdlp  *Ytdlp
	cobalt *Cobalt
	// listPlaylist enumerates a playlist by ID without shelling out.
	listPlaylist func(ctx context.Context, id string) ([]PlaylistItem, error)
	logger       *zap.Logger
}

func NewYouTubeStrategy(y *Ytdlp, c *Cobalt, logger *zap.Logger) *YouTubeStrategy {
	return &YouTubeStrategy{
		ytdlp:        y,
		cobalt:       c,
		listPlaylist: listYouTubePlaylist,
		logger:       logger.Named("youtube"),
	}
}

func (s *YouTubeStrategy) Extract(ctx context.Context, rawURL string, opts Options) (*ExtractionResult, error) {
	info, err := s.ytdlp.Probe(ctx, rawURL)
	if err != nil {
		if Deterministic(err) {
			return nil, err
		}
		s.logger.Warn("probe failed, trying cobalt", zap.String("url", rawURL), zap.Error(err))
		return s.viaCobalt(ctx, rawURL, opts, nil)
	}
	if info.Duration == 0 && info.Title == "" {
		return nil, newError(KindNotFound, "youtube", "This video is unavailable or has been removed")
	}

	dl, err := s.ytdlp.Download(ctx, rawURL, DownloadOpts{
		Audio:      opts.WantAudio,
		OutputBase: opts.StagingBase,
		OnProgress: opts.OnProgress,
	})
	if err != nil {
		if Deterministic(err) || ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("yt-dlp failed, trying cobalt", zap.String("url", rawURL), zap.Error(err))
		return s.viaCobalt(ctx, rawURL, opts, info)
	}

	return &ExtractionResult{
		LocalPath: dl.Path,
		Ext:       dl.Ext,
		Title:     info.Title,
		Artist:    info.Author(),
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
	}, nil
}

func (s *YouTubeStrategy) viaCobalt(ctx context.Context, rawURL string, opts Options, info *VideoInfo) (*ExtractionResult, error) {
	req := CobaltRequest{URL: rawURL, VideoQuality: "1080"}
	if opts.WantAudio {
		req.DownloadMode = "audio"
	}
	resp, err := s.cobalt.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	stream := resp.StreamURL()
	if stream == "" {
		return nil, newError(KindNotFound, "youtube", "No downloadable formats found")
	}

	res := &ExtractionResult{
		MediaURL: stream,
		Ext:      OrDefault(resp.Ext(), "mp4"),
		Title:    OrDefault(resp.Title(), "download"),
	}
	if info != nil {
		res.Title = OrDefault(info.Title, res.Title)
		res.Artist = info.Author()
		res.Thumbnail = info.Thumbnail
		res.Duration = info.Duration
	}
	return res, nil
}

// Enumerate lists a playlist through the ytdlp library and falls back to
// yt-dlp's flat playlist output.
func (s *YouTubeStrategy) Enumerate(ctx context.Context, rawURL string) (*PlaylistSource, error) {
	id := platform.PlaylistID(rawURL)
	if id != "" && s.listPlaylist != nil {
		items, err := s.listPlaylist(ctx, id)
		if err == nil && len(items) > 0 {
			return &PlaylistSource{
				Title: "youtube_playlist_" + id,
				Items: items,
				Total: len(items),
			}, nil
		}
		s.logger.Warn("playlist api failed, using yt-dlp", zap.String("playlist", id), zap.Error(err))
	}

	info, err := s.ytdlp.FlatPlaylist(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	src := &PlaylistSource{Title: info.Title, Total: info.Count}
	for _, e := range info.Entries {
		u := e.URL
		if e.ID != "" {
			u = fmt.Sprintf(youtubeWatchURL, e.ID)
		}
		src.Items = append(src.Items, PlaylistItem{URL: u, Title: e.Title})
	}
	return src, nil
}

func listYouTubePlaylist(ctx context.Context, id string) ([]PlaylistItem, error) {
	found, err := ytdlp.New().GetPlaylistItemsAll(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("get playlist items: %w", err)
	}
	items := make([]PlaylistItem, 0, len(found))
	for _, it := range found {
		items = append(items, PlaylistItem{
			URL:   fmt.Sprintf(youtubeWatchURL, it.VideoID),
			Title: it.Title,
		})
	}
	return items, nil
}
