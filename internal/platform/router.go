// Package platform identifies which media platform a URL belongs to.
package platform

import (
	"net/url"
	"strings"
)

type Platform int

const (
	Unsupported Platform = iota
	YouTube
	YouTubePlaylist
	Twitter
	Instagram
	TikTok
	SoundCloud
	SoundCloudPlaylist
	Spotify
)

var names = map[Platform]string{
	Unsupported:        "unsupported",
	YouTube:            "youtube",
	YouTubePlaylist:    "youtube-playlist",
	Twitter:            "twitter",
	Instagram:          "instagram",
	TikTok:             "tiktok",
	SoundCloud:         "soundcloud",
	SoundCloudPlaylist: "soundcloud-playlist",
	Spotify:            "spotify",
}

func (p Platform) String() string {
	if n, ok := names[p]; ok {
		return n
	}
	return "unknown"
}

// IsPlaylist reports whether p is handled by the many-item flow.
func (p Platform) IsPlaylist() bool {
	return p == YouTubePlaylist || p == SoundCloudPlaylist
}

var (
	youtubeHosts    = []string{"youtube.com", "youtu.be", "youtube-nocookie.com"}
	twitterHosts    = []string{"twitter.com", "x.com", "t.co", "fxtwitter.com", "vxtwitter.com", "fixupx.com", "fixvx.com", "stupidpenisx.com"}
	twitterMirrors  = []string{"fxtwitter.com", "vxtwitter.com", "fixupx.com", "fixvx.com", "stupidpenisx.com", "twitter.com"}
	instagramHosts  = []string{"instagram.com", "instagr.am"}
	tiktokHosts     = []string{"tiktok.com"}
	soundcloudHosts = []string{"soundcloud.com", "snd.sc"}
	spotifyHosts    = []string{"spotify.com", "spotify.link"}
)

type rule struct {
	platform Platform
	match    func(host string, u *url.URL) bool
}

// Checked in order; the first match wins.
var rules = []rule{
	{YouTubePlaylist, func(host string, u *url.URL) bool {
		return hostIn(host, youtubeHosts) && isPlaylistURL(u)
	}},
	{YouTube, func(host string, _ *url.URL) bool { return hostIn(host, youtubeHosts) }},
	{Twitter, func(host string, _ *url.URL) bool { return hostIn(host, twitterHosts) }},
	{Instagram, func(host string, _ *url.URL) bool { return hostIn(host, instagramHosts) }},
	{TikTok, func(host string, _ *url.URL) bool { return hostIn(host, tiktokHosts) }},
	{SoundCloudPlaylist, func(host string, u *url.URL) bool {
		return hostIn(host, soundcloudHosts) && strings.Contains(strings.ToLower(u.Path), "/sets/")
	}},
	{SoundCloud, func(host string, _ *url.URL) bool { return hostIn(host, soundcloudHosts) }},
	{Spotify, func(host string, _ *url.URL) bool { return hostIn(host, spotifyHosts) }},
}

// Identify classifies rawURL. Anything it cannot parse or does not
// recognise is Unsupported.
func Identify(rawURL string) Platform {
	u, ok := parse(rawURL)
	if !ok {
		return Unsupported
	}
	host := strings.ToLower(u.Hostname())
	for _, r := range rules {
		if r.match(host, u) {
			return r.platform
		}
	}
	return Unsupported
}

// Normalize rewrites mirror domains to the canonical ones the extractors
// understand. Unparsable input is returned trimmed but otherwise untouched.
func Normalize(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, ok := parse(rawURL)
	if !ok {
		return rawURL
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case host == "music.youtube.com":
		u.Host = "www.youtube.com"
	case hostIn(host, twitterMirrors):
		u.Host = "x.com"
	case hostIn(host, soundcloudHosts):
		u.RawQuery = ""
		u.Fragment = ""
	}
	return u.String()
}

// SpotifyTrackID extracts the track id from an open.spotify.com track link.
func SpotifyTrackID(rawURL string) (string, bool) {
	idx := strings.Index(rawURL, "/track/")
	if idx < 0 {
		return "", false
	}
	id := rawURL[idx+len("/track/"):]
	if cut := strings.IndexAny(id, "?/#"); cut >= 0 {
		id = id[:cut]
	}
	return id, id != ""
}

// PlaylistID returns the value of the list= query parameter.
func PlaylistID(rawURL string) string {
	u, ok := parse(rawURL)
	if !ok {
		return ""
	}
	return u.Query().Get("list")
}

func isPlaylistURL(u *url.URL) bool {
	return u.Query().Get("list") != "" || strings.HasPrefix(strings.ToLower(u.Path), "/playlist")
}

func parse(rawURL string) (*url.URL, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, false
	}
	return u, true
}

// hostIn matches host against domains on a label boundary, so
// "m.youtube.com" matches "youtube.com" but "microsoft.com" never matches "t.co".
func hostIn(host string, domains []string) bool {
	host = strings.TrimSuffix(host, ".")
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
