package services

import (
	"context"
	"fmt"
	"os"

	"github.com/bogem/id3v2/v2"
	"go.uber.org/zap"
)

type coverCropper interface {
	SquareCover(ctx context.Context, in, out string) error
}

type fileFetcher interface {
	Materialize(ctx context.Context, mediaURL, dest string) (*MediaArtifact, error)
}

// Tagger writes ID3v2.3 frames and a square front cover into mp3 files.
type Tagger struct {
	cropper coverCropper
	fetcher fileFetcher
	logger  *zap.Logger
}

func NewTagger(cropper coverCropper, fetcher fileFetcher, logger *zap.Logger) *Tagger {
	return &Tagger{cropper: cropper, fetcher: fetcher, logger: logger.Named("tagger")}
}

// Tag embeds tags into path, fetching and cropping thumbnailURL as the cover
// when tags carry none. Failures are logged and never reach the caller.
func (t *Tagger) Tag(ctx context.Context, path string, tags *MetadataTags, thumbnailURL string) {
	if tags == nil {
		return
	}
	if len(tags.Cover) == 0 && thumbnailURL != "" {
		cover, err := t.cover(ctx, path, thumbnailURL)
		if err != nil {
			t.logger.Warn("cover art skipped", zap.String("path", path), zap.Error(err))
		} else {
			tags.Cover = cover
		}
	}
	if err := WriteTags(path, tags); err != nil {
		t.logger.Warn("tagging failed", zap.String("path", path), zap.Error(err))
		return
	}
	got, err := ReadTags(path)
	if err != nil || got.Title != tags.Title || got.Artist != tags.Artist {
		t.logger.Warn("tags did not read back", zap.String("path", path), zap.Error(err))
		return
	}
	t.logger.Debug("tagged",
		zap.String("path", path),
		zap.String("title", got.Title),
		zap.Bool("cover", len(got.Cover) > 0))
}

func (t *Tagger) cover(ctx context.Context, path, thumbnailURL string) ([]byte, error) {
	raw := path + ".thumb"
	cropped := path + ".cover.jpg"
	defer os.Remove(raw)
	defer os.Remove(cropped)

	if _, err := t.fetcher.Materialize(ctx, thumbnailURL, raw); err != nil {
		return nil, fmt.Errorf("fetch thumbnail: %w", err)
	}
	if err := t.cropper.SquareCover(ctx, raw, cropped); err != nil {
		return nil, fmt.Errorf("crop thumbnail: %w", err)
	}
	return os.ReadFile(cropped)
}

// WriteTags replaces the ID3 tag of path with tags.
func WriteTags(path string, tags *MetadataTags) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: false})
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer tag.Close()

	tag.SetVersion(3)
	tag.SetDefaultEncoding(id3v2.EncodingUTF16)

	if tags.Title != "" {
		tag.SetTitle(tags.Title)
	}
	if tags.Artist != "" {
		tag.SetArtist(tags.Artist)
	}
	if tags.AlbumArtist != "" {
		tag.AddTextFrame(tag.CommonID("Band/Orchestra/Accompaniment"), tag.DefaultEncoding(), tags.AlbumArtist)
	}
	if tags.Album != "" {
		tag.SetAlbum(tags.Album)
	}
	if tags.Year != "" {
		tag.SetYear(tags.Year)
	}
	if tags.Track != "" {
		tag.AddTextFrame(tag.CommonID("Track number/Position in set"), tag.DefaultEncoding(), tags.Track)
	}
	if len(tags.Cover) > 0 {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    tag.DefaultEncoding(),
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     tags.Cover,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save tags: %w", err)
	}
	return nil
}

// ReadTags reads back the frames WriteTags knows about.
func ReadTags(path string) (*MetadataTags, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer tag.Close()

	out := &MetadataTags{
		Title:  tag.Title(),
		Artist: tag.Artist(),
		Album:  tag.Album(),
		Year:   tag.Year(),
	}
	if f := tag.GetTextFrame(tag.CommonID("Band/Orchestra/Accompaniment")); f.Text != "" {
		out.AlbumArtist = f.Text
	}
	if f := tag.GetTextFrame(tag.CommonID("Track number/Position in set")); f.Text != "" {
		out.Track = f.Text
	}
	for _, f := range tag.GetFrames(tag.CommonID("Attached picture")) {
		if pic, ok := f.(id3v2.PictureFrame); ok {
			out.Cover = pic.Picture
			break
		}
	}
	return out, nil
}
