package services

import (
	"context"

	"go.uber.org/zap"
)

type metadataLookup interface {
	Lookup(ctx context.Context, title, artist string) (*MetadataTags, error)
}

// SoundCloudStrategy downloads tracks as mp3 with yt-dlp and enriches their
// tags from MusicBrainz.
type SoundCloudStrategy struct {
	ytdlp  *Ytdlp
	meta   metadataLookup
	logger *zap.Logger
}

func NewSoundCloudStrategy(y *Ytdlp, meta metadataLookup, logger *zap.Logger) *SoundCloudStrategy {
	return &SoundCloudStrategy{ytdlp: y, meta: meta, logger: logger.Named("soundcloud")}
}

func (s *SoundCloudStrategy) Extract(ctx context.Context, rawURL string, opts Options) (*ExtractionResult, error) {
	info, err := s.ytdlp.Probe(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	dl, err := s.ytdlp.Download(ctx, rawURL, DownloadOpts{
		Audio:       true,
		AudioFormat: "mp3",
		OutputBase:  opts.StagingBase,
		OnProgress:  opts.OnProgress,
	})
	if err != nil {
		return nil, err
	}

	return &ExtractionResult{
		LocalPath:  dl.Path,
		Ext:        dl.Ext,
		Title:      info.Title,
		Artist:     info.Author(),
		Thumbnail:  info.Thumbnail,
		Duration:   info.Duration,
		Tags:       s.enrich(ctx, info.Title, info.Author()),
		ForceAudio: true,
	}, nil
}

// enrich keeps the platform title and fills the rest from MusicBrainz when a
// recording matches.
func (s *SoundCloudStrategy) enrich(ctx context.Context, title, artist string) *MetadataTags {
	tags := &MetadataTags{Title: title, Artist: artist, AlbumArtist: artist}
	if s.meta == nil {
		return tags
	}
	found, err := s.meta.Lookup(ctx, title, artist)
	if err != nil {
		s.logger.Warn("musicbrainz lookup failed", zap.String("title", title), zap.Error(err))
		return tags
	}
	if found == nil {
		return tags
	}
	if found.Artist != "" {
		tags.Artist = found.Artist
	}
	if found.AlbumArtist != "" {
		tags.AlbumArtist = found.AlbumArtist
	}
	tags.Album = found.Album
	tags.Year = found.Year
	tags.Track = found.Track
	return tags
}

func (s *SoundCloudStrategy) Enumerate(ctx context.Context, rawURL string) (*PlaylistSource, error) {
	info, err := s.ytdlp.FlatPlaylist(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	src := &PlaylistSource{Title: info.Title, Total: info.Count}
	for _, e := range info.Entries {
		if e.URL == "" {
			continue
		}
		src.Items = append(src.Items, PlaylistItem{URL: e.URL, Title: e.Title})
	}
	return src, nil
}
