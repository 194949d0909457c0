package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/coah80/chocbot/internal/platform"
	"github.com/coah80/chocbot/internal/retry"
)

const (
	spotifyAPI      = "https://api.spotify.com/v1"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// SpotifyTrack is the metadata needed to find a YouTube equivalent.
type SpotifyTrack struct {
	ID       string
	Title    string
	Artists  []string
	Album    string
	Year     string
	Track    int
	CoverURL string
}

func (t *SpotifyTrack) Artist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// SearchQuery is the bridge query sent to YouTube search.
func (t *SpotifyTrack) SearchQuery() string {
	return fmt.Sprintf(`"%s - %s"`, t.Artist(), t.Title)
}

type TrackResolver interface {
	Track(ctx context.Context, id string) (*SpotifyTrack, error)
}

type VideoSearcher interface {
	Search(ctx context.Context, query string) (*VideoInfo, error)
}

// SpotifyClient reads track metadata from the Web API using the client
// credentials flow.
type SpotifyClient struct {
	baseURL string
	client  *http.Client
	policy  retry.Policy
}

// NewSpotifyClient returns a client whose HTTP transport fetches and renews
// app tokens on its own.
func NewSpotifyClient(ctx context.Context, clientID, clientSecret string) *SpotifyClient {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyTokenURL,
	}
	return &SpotifyClient{
		baseURL: spotifyAPI,
		client:  cfg.Client(ctx),
		policy:  retry.Default().WithPredicate(Retryable),
	}
}

type spotifyTrackResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TrackNumber int    `json:"track_number"`
	Artists     []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name        string `json:"name"`
		ReleaseDate string `json:"release_date"`
		Images      []struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"images"`
	} `json:"album"`
}

func (s *SpotifyClient) Track(ctx context.Context, id string) (*SpotifyTrack, error) {
	return retry.Do(ctx, s.policy, func(ctx context.Context) (*SpotifyTrack, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/tracks/"+id, nil)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, classified("spotify", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, statusError("spotify", resp.StatusCode)
		}

		var data spotifyTrackResponse
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return nil, retry.Permanent(fmt.Errorf("decode spotify track: %w", err))
		}

		track := &SpotifyTrack{
			ID:    data.ID,
			Title: data.Name,
			Album: data.Album.Name,
			Track: data.TrackNumber,
		}
		for _, a := range data.Artists {
			track.Artists = append(track.Artists, a.Name)
		}
		if len(data.Album.ReleaseDate) >= 4 {
			track.Year = data.Album.ReleaseDate[:4]
		}
		if len(data.Album.Images) > 0 {
			track.CoverURL = data.Album.Images[0].URL
		}
		return track, nil
	})
}

// SpotifyStrategy finds the YouTube upload of a Spotify track and hands it to
// the YouTube strategy as audio.
type SpotifyStrategy struct {
	tracks  TrackResolver
	search  VideoSearcher
	youtube Strategy
	logger  *zap.Logger
}

func NewSpotifyStrategy(tracks TrackResolver, search VideoSearcher, youtube Strategy, logger *zap.Logger) *SpotifyStrategy {
	return &SpotifyStrategy{tracks: tracks, search: search, youtube: youtube, logger: logger.Named("spotify")}
}

func (s *SpotifyStrategy) Extract(ctx context.Context, rawURL string, opts Options) (*ExtractionResult, error) {
	if s.tracks == nil {
		return nil, newError(KindUnsupported, "spotify", "Spotify support isn't configured on this bot")
	}
	id, ok := platform.SpotifyTrackID(rawURL)
	if !ok {
		return nil, newError(KindUnsupported, "spotify", "Only Spotify track links are supported")
	}

	track, err := s.tracks.Track(ctx, id)
	if err != nil {
		return nil, err
	}

	hit, err := s.search.Search(ctx, track.SearchQuery())
	if err != nil {
		return nil, err
	}
	if hit == nil || hit.WebpageURL == "" {
		s.logger.Info("no youtube match", zap.String("track", id), zap.String("query", track.SearchQuery()))
		return nil, newError(KindNotFound, "spotify", "Could not find a YouTube equivalent for this Spotify track")
	}
	s.logger.Debug("bridged", zap.String("track", id), zap.String("youtube", hit.WebpageURL))

	opts.WantAudio = true
	res, err := s.youtube.Extract(ctx, hit.WebpageURL, opts)
	if err != nil {
		return nil, err
	}

	artist := strings.Join(track.Artists, ", ")
	res.ForceAudio = true
	res.Title = fmt.Sprintf("%s - %s", track.Artist(), track.Title)
	res.Artist = artist
	if track.CoverURL != "" {
		res.Thumbnail = track.CoverURL
	}
	res.Tags = &MetadataTags{
		Title:       track.Title,
		Artist:      artist,
		AlbumArtist: track.Artist(),
		Album:       track.Album,
		Year:        track.Year,
	}
	if track.Track > 0 {
		res.Tags.Track = strconv.Itoa(track.Track)
	}
	return res, nil
}
