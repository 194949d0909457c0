package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/util"
)

var percentRe = regexp.MustCompile(`([\d.]+)%`)
var speedRe = regexp.MustCompile(`at\s+([\d.]+\s*\w+/s)`)
var etaRe = regexp.MustCompile(`ETA\s+(\S+)`)
var ytdlpErrorRe = regexp.MustCompile(`(?i)ERROR[:\s]+(.+?)(?:\n|$)`)

// ParseYtdlpProgress reads percent, speed and ETA from a yt-dlp progress line.
func ParseYtdlpProgress(text string) Progress {
	var p Progress
	if m := percentRe.FindStringSubmatch(text); len(m) > 1 {
		p.Percent, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := speedRe.FindStringSubmatch(text); len(m) > 1 {
		p.Speed = m[1]
	}
	if m := etaRe.FindStringSubmatch(text); len(m) > 1 {
		p.ETA = m[1]
	}
	return p
}

// VideoInfo is the subset of yt-dlp's -J output the strategies use.
type VideoInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Artist     string  `json:"artist"`
	Track      string  `json:"track"`
	Thumbnail  string  `json:"thumbnail"`
	Duration   float64 `json:"duration"`
	Ext        string  `json:"ext"`
	WebpageURL string  `json:"webpage_url"`
	URL        string  `json:"url"`
}

// Author prefers the tagged artist over the uploading account.
func (v *VideoInfo) Author() string {
	if v.Artist != "" {
		return v.Artist
	}
	return v.Uploader
}

type PlaylistEntry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	ID    string `json:"id"`
}

type PlaylistInfo struct {
	Title   string
	Entries []PlaylistEntry
	Count   int
}

type DownloadOpts struct {
	Audio bool
	// AudioFormat asks yt-dlp to extract audio into this format itself.
	AudioFormat string
	OutputBase  string
	OnProgress  func(Progress)
}

type DownloadResult struct {
	Path string
	Ext  string
}

// Ytdlp runs the yt-dlp binary.
type Ytdlp struct {
	bin         string
	cookiesFile string
	proxies     string
	logger      *zap.Logger

	// OnCookieIssue, when set, is told about login walls that cookies did
	// not get past.
	OnCookieIssue func(details string)
}

func NewYtdlp(cookiesFile, proxies string, logger *zap.Logger) *Ytdlp {
	return &Ytdlp{
		bin:         "yt-dlp",
		cookiesFile: cookiesFile,
		proxies:     proxies,
		logger:      logger.Named("ytdlp"),
	}
}

func (y *Ytdlp) baseArgs(withCookies bool) []string {
	var args []string
	if withCookies {
		args = append(args, util.CookiesArgs(y.cookiesFile)...)
	}
	args = append(args, util.ProxyArgs(y.proxies)...)
	return args
}

// output runs yt-dlp once without cookies and, when the failure looks like a
// login wall and a cookies file exists, once more with it.
func (y *Ytdlp) output(ctx context.Context, args ...string) ([]byte, error) {
	out, err := y.outputOnce(ctx, false, args)
	if err == nil || !util.NeedsCookiesRetry(err.Error()) {
		return out, err
	}
	if !util.HasCookiesFile(y.cookiesFile) {
		y.cookieIssue("login wall hit and no cookies file is configured: " + err.Error())
		return out, err
	}
	y.logger.Info("retrying with cookies")
	out, err = y.outputOnce(ctx, true, args)
	if err != nil && util.NeedsCookiesRetry(err.Error()) {
		y.cookieIssue("cookies were rejected: " + err.Error())
	}
	return out, err
}

func (y *Ytdlp) cookieIssue(details string) {
	y.logger.Warn("cookie issue", zap.String("details", details))
	if y.OnCookieIssue != nil {
		y.OnCookieIssue(details)
	}
}

func (y *Ytdlp) outputOnce(ctx context.Context, withCookies bool, args []string) ([]byte, error) {
	full := append(y.baseArgs(withCookies), args...)
	cmd := exec.CommandContext(ctx, y.bin, full...)
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return nil, fmt.Errorf("%s", extractYtdlpError(string(exitErr.Stderr), "yt-dlp failed"))
	}
	return nil, err
}

// Probe reads metadata without downloading.
func (y *Ytdlp) Probe(ctx context.Context, url string) (*VideoInfo, error) {
	out, err := y.output(ctx, "--no-playlist", "--no-warnings", "-J", url)
	if err != nil {
		return nil, classified("probe", err)
	}
	var info VideoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, wrapError(KindUpstream, "probe", fmt.Errorf("parse yt-dlp output: %w", err))
	}
	return &info, nil
}

// Search returns the first result for query on YouTube, or nil when nothing
// matched.
func (y *Ytdlp) Search(ctx context.Context, query string) (*VideoInfo, error) {
	out, err := y.output(ctx, "--flat-playlist", "--no-warnings", "-J", "ytsearch1:"+query)
	if err != nil {
		return nil, classified("search", err)
	}
	var raw struct {
		Entries []VideoInfo `json:"entries"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, wrapError(KindUpstream, "search", fmt.Errorf("parse yt-dlp output: %w", err))
	}
	if len(raw.Entries) == 0 {
		return nil, nil
	}
	hit := raw.Entries[0]
	if hit.WebpageURL == "" {
		if strings.HasPrefix(hit.URL, "http") {
			hit.WebpageURL = hit.URL
		} else if hit.ID != "" {
			hit.WebpageURL = "https://www.youtube.com/watch?v=" + hit.ID
		}
	}
	return &hit, nil
}

func (y *Ytdlp) FlatPlaylist(ctx context.Context, url string) (*PlaylistInfo, error) {
	out, err := y.output(ctx, "--yes-playlist", "--flat-playlist", "--no-warnings", "-J", url)
	if err != nil {
		return nil, classified("playlist", err)
	}

	var raw struct {
		Title         string          `json:"title"`
		Entries       []PlaylistEntry `json:"entries"`
		PlaylistCount int             `json:"playlist_count"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, wrapError(KindUpstream, "playlist", fmt.Errorf("parse playlist info: %w", err))
	}

	count := raw.PlaylistCount
	if count == 0 {
		count = len(raw.Entries)
	}
	return &PlaylistInfo{
		Title:   OrDefault(raw.Title, "Playlist"),
		Entries: raw.Entries,
		Count:   count,
	}, nil
}

func downloadArgs(url string, opts DownloadOpts) []string {
	args := []string{
		"--no-playlist",
		"--continue",
		"--newline",
		"-o", opts.OutputBase + ".%(ext)s",
	}
	switch {
	case opts.Audio && opts.AudioFormat != "":
		args = append(args, "-f", "bestaudio/best", "-x", "--audio-format", opts.AudioFormat, "--audio-quality", "0")
	case opts.Audio:
		args = append(args, "-f", "bestaudio/best")
	default:
		args = append(args, "-f", "bv*[vcodec^=avc]+ba[acodec^=mp4a]/bv*+ba/b", "--merge-output-format", "mp4")
	}
	return append(args, url)
}

// Download fetches url into opts.OutputBase with whatever extension yt-dlp
// picks and returns the produced file.
func (y *Ytdlp) Download(ctx context.Context, url string, opts DownloadOpts) (*DownloadResult, error) {
	args := append(y.baseArgs(true), downloadArgs(url, opts)...)
	cmd := exec.CommandContext(ctx, y.bin, args...)

	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	var stderrOutput strings.Builder
	var lastProgress float64
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	report := func(line string) {
		p := ParseYtdlpProgress(line)
		mu.Lock()
		shouldReport := p.Percent > 0 && (p.Percent > lastProgress+2 || p.Percent >= 100)
		if shouldReport {
			lastProgress = p.Percent
		}
		mu.Unlock()
		if shouldReport && opts.OnProgress != nil {
			opts.OnProgress(p)
		}
	}

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			report(scanner.Text())
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			stderrOutput.WriteString(line + "\n")
			if strings.Contains(line, "[download]") && strings.Contains(line, "%") {
				report(line)
			}
		}
	}()

	wg.Wait()
	if err := cmd.Wait(); err != nil {
		removeMatching(opts.OutputBase)
		if ctx.Err() != nil {
			return nil, wrapError(KindTimeout, "download", ctx.Err())
		}
		msg := extractYtdlpError(stderrOutput.String(), "Download failed")
		y.logger.Warn("download failed", zap.String("url", url), zap.String("error", msg))
		return nil, classified("download", fmt.Errorf("%s", msg))
	}

	path, err := findOutput(opts.OutputBase)
	if err != nil {
		return nil, wrapError(KindUpstream, "download", err)
	}
	return &DownloadResult{Path: path, Ext: strings.TrimPrefix(filepath.Ext(path), ".")}, nil
}

func extractYtdlpError(stderr, fallback string) string {
	if m := ytdlpErrorRe.FindStringSubmatch(stderr); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return fallback
}

func findOutput(base string) (string, error) {
	matches, _ := filepath.Glob(globEscape(base) + ".*")
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.Contains(m, ".part-Frag") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("Downloaded file not found")
}

func removeMatching(base string) {
	matches, _ := filepath.Glob(globEscape(base) + ".*")
	for _, m := range matches {
		os.Remove(m)
	}
}

func globEscape(s string) string {
	r := strings.NewReplacer(`[`, `\[`, `]`, `\]`, `*`, `\*`, `?`, `\?`)
	return r.Replace(s)
}

func OrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
