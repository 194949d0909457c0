package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/coah80/chocbot/internal/retry"
)

const musicBrainzAPI = "https://musicbrainz.org/ws/2"

// MusicBrainz looks up recording metadata. Requests are limited to one per
// second as the service asks.
type MusicBrainz struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	policy    retry.Policy
	logger    *zap.Logger
}

func NewMusicBrainz(userAgent string, client *http.Client, logger *zap.Logger) *MusicBrainz {
	return &MusicBrainz{
		baseURL:   musicBrainzAPI,
		userAgent: userAgent,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
		policy:    retry.Default().WithPredicate(Retryable),
		logger:    logger.Named("musicbrainz"),
	}
}

type mbSearchResponse struct {
	Recordings []struct {
		Title            string `json:"title"`
		FirstReleaseDate string `json:"first-release-date"`
		ArtistCredit     []struct {
			Name string `json:"name"`
		} `json:"artist-credit"`
		Releases []struct {
			Title        string `json:"title"`
			ArtistCredit []struct {
				Name string `json:"name"`
			} `json:"artist-credit"`
			Media []struct {
				TrackOffset *int `json:"track-offset"`
			} `json:"media"`
		} `json:"releases"`
	} `json:"recordings"`
}

// Lookup returns tags for the best matching recording, or nil when there is
// no match.
func (m *MusicBrainz) Lookup(ctx context.Context, title, artist string) (*MetadataTags, error) {
	if strings.TrimSpace(title) == "" {
		return nil, nil
	}
	return retry.Do(ctx, m.policy, func(ctx context.Context) (*MetadataTags, error) {
		return m.lookupOnce(ctx, title, artist)
	})
}

func (m *MusicBrainz) lookupOnce(ctx context.Context, title, artist string) (*MetadataTags, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, retry.Permanent(err)
	}

	query := fmt.Sprintf(`recording:"%s"`, escapeLucene(title))
	if artist != "" {
		query += fmt.Sprintf(` AND artist:"%s"`, escapeLucene(artist))
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("fmt", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/recording/?"+params.Encode(), nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", m.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, classified("musicbrainz", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("musicbrainz", resp.StatusCode)
	}

	var data mbSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode musicbrainz response: %w", err))
	}
	if len(data.Recordings) == 0 {
		m.logger.Debug("no match", zap.String("title", title), zap.String("artist", artist))
		return nil, nil
	}

	rec := data.Recordings[0]
	tags := &MetadataTags{Title: rec.Title}
	if len(rec.ArtistCredit) > 0 {
		tags.Artist = rec.ArtistCredit[0].Name
	}
	if len(rec.FirstReleaseDate) >= 4 {
		tags.Year = rec.FirstReleaseDate[:4]
	}
	if len(rec.Releases) > 0 {
		rel := rec.Releases[0]
		tags.Album = rel.Title
		if len(rel.ArtistCredit) > 0 {
			tags.AlbumArtist = rel.ArtistCredit[0].Name
		}
		if len(rel.Media) > 0 && rel.Media[0].TrackOffset != nil {
			tags.Track = strconv.Itoa(*rel.Media[0].TrackOffset + 1)
		}
	}
	if tags.AlbumArtist == "" {
		tags.AlbumArtist = tags.Artist
	}
	return tags, nil
}

var luceneEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeLucene(s string) string {
	return luceneEscaper.Replace(s)
}
