package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/coah80/chocbot/internal/retry"
)

func newTestMusicBrainz(baseURL string) *MusicBrainz {
	mb := NewMusicBrainz("chocbot-test/1.0", http.DefaultClient, zap.NewNop())
	mb.baseURL = baseURL
	mb.limiter = rate.NewLimiter(rate.Inf, 1)
	mb.policy = retry.Policy{Attempts: 1}
	return mb
}

func TestMusicBrainz_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recording/", r.URL.Path)
		assert.Equal(t, "chocbot-test/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, `recording:"Around the World" AND artist:"Daft Punk"`, r.URL.Query().Get("query"))
		assert.Equal(t, "json", r.URL.Query().Get("fmt"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"recordings":[{
			"title":"Around the World",
			"first-release-date":"1997-03-17",
			"artist-credit":[{"name":"Daft Punk"}],
			"releases":[{"title":"Homework","artist-credit":[{"name":"Daft Punk"}],"media":[{"track-offset":6}]}]
		}]}`))
	}))
	defer srv.Close()

	tags, err := newTestMusicBrainz(srv.URL).Lookup(t.Context(), "Around the World", "Daft Punk")
	require.NoError(t, err)
	require.NotNil(t, tags)

	assert.Equal(t, "Daft Punk", tags.Artist)
	assert.Equal(t, "Daft Punk", tags.AlbumArtist)
	assert.Equal(t, "Homework", tags.Album)
	assert.Equal(t, "1997", tags.Year)
	assert.Equal(t, "7", tags.Track)
}

func TestMusicBrainz_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"recordings":[]}`))
	}))
	defer srv.Close()

	tags, err := newTestMusicBrainz(srv.URL).Lookup(t.Context(), "Unknown", "Nobody")
	require.NoError(t, err)
	assert.Nil(t, tags)
}

func TestMusicBrainz_EmptyTitleSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	tags, err := newTestMusicBrainz(srv.URL).Lookup(t.Context(), "  ", "x")
	require.NoError(t, err)
	assert.Nil(t, tags)
}

func TestMusicBrainz_ServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestMusicBrainz(srv.URL).Lookup(t.Context(), "a", "b")
	assert.Error(t, err)
}

type fakeLookup struct {
	tags *MetadataTags
	err  error
}

func (f fakeLookup) Lookup(context.Context, string, string) (*MetadataTags, error) {
	return f.tags, f.err
}

func TestSoundCloudEnrich(t *testing.T) {
	s := NewSoundCloudStrategy(nil, fakeLookup{tags: &MetadataTags{
		Title:  "Different Title",
		Artist: "Real Artist",
		Album:  "LP",
		Year:   "2019",
		Track:  "2",
	}}, zap.NewNop())

	tags := s.enrich(t.Context(), "upload title", "uploader")
	assert.Equal(t, "upload title", tags.Title)
	assert.Equal(t, "Real Artist", tags.Artist)
	assert.Equal(t, "uploader", tags.AlbumArtist)
	assert.Equal(t, "LP", tags.Album)
	assert.Equal(t, "2019", tags.Year)
	assert.Equal(t, "2", tags.Track)

	s = NewSoundCloudStrategy(nil, fakeLookup{err: assert.AnError}, zap.NewNop())
	tags = s.enrich(t.Context(), "upload title", "uploader")
	assert.Equal(t, &MetadataTags{Title: "upload title", Artist: "uploader", AlbumArtist: "uploader"}, tags)
}
