package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentify(t *testing.T) {
	tests := []struct {
		url  string
		want Platform
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", YouTube},
		{"https://youtu.be/dQw4w9WgXcQ", YouTube},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ", YouTube},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", YouTube},
		{"HTTPS://WWW.YOUTUBE.COM/watch?v=dQw4w9WgXcQ", YouTube},
		{"https://www.youtube.com/playlist?list=PL123", YouTubePlaylist},
		{"https://www.youtube.com/watch?v=abc&list=PL123", YouTubePlaylist},
		{"https://twitter.com/user/status/1", Twitter},
		{"https://x.com/user/status/1", Twitter},
		{"https://t.co/abc", Twitter},
		{"https://fxtwitter.com/user/status/1", Twitter},
		{"https://vxtwitter.com/user/status/1", Twitter},
		{"https://fixupx.com/user/status/1", Twitter},
		{"https://stupidpenisx.com/user/status/1", Twitter},
		{"https://www.instagram.com/reel/abc/", Instagram},
		{"https://www.tiktok.com/@user/video/123", TikTok},
		{"https://vm.tiktok.com/ZMabc/", TikTok},
		{"https://soundcloud.com/artist/track", SoundCloud},
		{"https://on.soundcloud.com/abc", SoundCloud},
		{"https://soundcloud.com/artist/sets/album", SoundCloudPlaylist},
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", Spotify},
		{"https://microsoft.com/t.co", Unsupported},
		{"https://example.com/video.mp4", Unsupported},
		{"https://notyoutube.com/watch?v=1", Unsupported},
		{"ftp://youtube.com/watch?v=1", Unsupported},
		{"youtube.com/watch?v=1", Unsupported},
		{"", Unsupported},
		{"::not a url::", Unsupported},
		{"%%%", Unsupported},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, Identify(tt.url))
			})
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", Normalize("https://music.youtube.com/watch?v=abc"))
	assert.Equal(t, "https://x.com/u/status/1", Normalize("https://fxtwitter.com/u/status/1"))
	assert.Equal(t, "https://x.com/u/status/1", Normalize("https://stupidpenisx.com/u/status/1"))
	assert.Equal(t, "https://x.com/u/status/1", Normalize("https://twitter.com/u/status/1"))
	assert.Equal(t, "https://soundcloud.com/a/b", Normalize("https://soundcloud.com/a/b?si=xyz"))
	assert.Equal(t, "not a url", Normalize("  not a url "))
}

func TestSpotifyTrackID(t *testing.T) {
	id, ok := SpotifyTrackID("https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc")
	assert.True(t, ok)
	assert.Equal(t, "4uLU6hMCjMI75M1A2tKUQC", id)

	_, ok = SpotifyTrackID("https://open.spotify.com/album/123")
	assert.False(t, ok)
}

func TestPlaylistID(t *testing.T) {
	assert.Equal(t, "PL123", PlaylistID("https://www.youtube.com/playlist?list=PL123"))
	assert.Equal(t, "", PlaylistID("https://www.youtube.com/watch?v=abc"))
}

func TestPlatformString(t *testing.T) {
	assert.Equal(t, "soundcloud-playlist", SoundCloudPlaylist.String())
	assert.Equal(t, "unknown", Platform(99).String())
	assert.True(t, YouTubePlaylist.IsPlaylist())
	assert.False(t, Spotify.IsPlaylist())
}
