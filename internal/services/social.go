package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/util"
)

var (
	hashtagRe = regexp.MustCompile(`#\S+`)
	emojiRe   = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}\x{FE0F}\x{200D}\x{1F1E6}-\x{1F1FF}]`)
)

func fallbackTitle(prefix, owner string) string {
	return fmt.Sprintf("%s_video_%s_%d", prefix, owner, util.RandomSuffix())
}

// TwitterStrategy resolves posts through Cobalt, standard definition first.
type TwitterStrategy struct {
	cobalt *Cobalt
	logger *zap.Logger
}

func NewTwitterStrategy(c *Cobalt, logger *zap.Logger) *TwitterStrategy {
	return &TwitterStrategy{cobalt: c, logger: logger.Named("twitter")}
}

func (s *TwitterStrategy) Extract(ctx context.Context, rawURL string, opts Options) (*ExtractionResult, error) {
	var resp *CobaltResponse
	var lastErr error
	for _, quality := range []string{"480", "max"} {
		r, err := s.cobalt.Resolve(ctx, CobaltRequest{URL: rawURL, VideoQuality: quality})
		if err != nil {
			lastErr = err
			if Deterministic(err) || ctx.Err() != nil {
				break
			}
			continue
		}
		if r.StreamURL() != "" {
			resp = r
			break
		}
	}
	if resp == nil {
		if lastErr != nil && !Deterministic(lastErr) {
			return nil, lastErr
		}
		return nil, &Error{Kind: KindNotFound, Op: "twitter", Msg: "couldn't find a video or it's marked as NSFW", Err: lastErr}
	}

	return &ExtractionResult{
		MediaURL: resp.StreamURL(),
		Ext:      "mp4",
		Title:    util.SocialTitle(resp.Title(), fallbackTitle("twitter", opts.OwnerID)),
	}, nil
}

// InstagramStrategy resolves reels and posts through Cobalt. Captions are
// not used for naming.
type InstagramStrategy struct {
	cobalt *Cobalt
	logger *zap.Logger
}

func NewInstagramStrategy(c *Cobalt, logger *zap.Logger) *InstagramStrategy {
	return &InstagramStrategy{cobalt: c, logger: logger.Named("instagram")}
}

func (s *InstagramStrategy) Extract(ctx context.Context, rawURL string, opts Options) (*ExtractionResult, error) {
	resp, err := s.cobalt.Resolve(ctx, CobaltRequest{URL: rawURL})
	if err != nil && !Deterministic(err) {
		return nil, err
	}
	if err != nil || resp.StreamURL() == "" {
		return nil, &Error{Kind: KindNotFound, Op: "instagram", Msg: "couldn't find a video or it's marked as private", Err: err}
	}
	return &ExtractionResult{
		MediaURL: resp.StreamURL(),
		Ext:      "mp4",
		Title:    fallbackTitle("instagram", opts.OwnerID),
	}, nil
}

// TikTokStrategy resolves videos through Cobalt. Slideshows come back as a
// picker without video items and are rejected.
type TikTokStrategy struct {
	cobalt *Cobalt
	logger *zap.Logger
}

func NewTikTokStrategy(c *Cobalt, logger *zap.Logger) *TikTokStrategy {
	return &TikTokStrategy{cobalt: c, logger: logger.Named("tiktok")}
}

func (s *TikTokStrategy) Extract(ctx context.Context, rawURL string, opts Options) (*ExtractionResult, error) {
	resp, err := s.cobalt.Resolve(ctx, CobaltRequest{URL: rawURL})
	if err != nil && !Deterministic(err) {
		return nil, err
	}
	if err != nil || resp.StreamURL() == "" {
		return nil, &Error{Kind: KindNotFound, Op: "tiktok", Msg: "couldn't find the video", Err: err}
	}
	return &ExtractionResult{
		MediaURL: resp.StreamURL(),
		Ext:      "mp4",
		Title:    util.SocialTitle(cleanCaption(resp.Title()), fallbackTitle("tiktok", opts.OwnerID)),
	}, nil
}

func cleanCaption(s string) string {
	s = hashtagRe.ReplaceAllString(s, "")
	s = emojiRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
