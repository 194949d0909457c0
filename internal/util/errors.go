package util

import "strings"

type errorRule struct {
	match func(msg string) bool
	text  string
}

func anyOf(needles ...string) func(string) bool {
	return func(msg string) bool {
		for _, n := range needles {
			if strings.Contains(msg, n) {
				return true
			}
		}
		return false
	}
}

// Order matters: the first match wins.
var errorRules = []errorRule{
	{anyOf("cancelled", "canceled"), "Download cancelled"},
	{anyOf("content.video.unavailable", "video unavailable", "private video", "this content is private"), "This video is unavailable or has been removed"},
	{anyOf("content.video.live", "live stream", "live event"), "Live streams can't be downloaded"},
	{anyOf("content.video.age", "age-restricted", "age restricted", "confirm your age"), "This video is age-restricted"},
	{anyOf("too_long"), "This video is too long"},
	{anyOf("youtube.login"), "YouTube requires login for this video"},
	{anyOf("api.rate_limited", "http error 429", "too many requests"), "Rate limited, try again in a minute"},
	{anyOf("api.link.unsupported", "api.service.unsupported"), "This link type isn't supported"},
	{anyOf("sign in to confirm", "sign in to verify"), "YouTube is blocking this request, try again later"},
	{anyOf("geo restricted", "geo-restricted", "not available in your country"), "This video isn't available in the server's region"},
	{anyOf("copyright"), "This video was removed for copyright"},
	{anyOf("members only", "members-only"), "This is a members-only video"},
	{anyOf("premium"), "This video requires YouTube Premium"},
	{anyOf("nsfw", "sensitive content"), "Couldn't find a video or it's marked as NSFW"},
	{anyOf("http error 403", "403 forbidden"), "Access denied, the site is blocking downloads"},
	{anyOf("http error 404", "404 not found"), "Video not found, it may have been deleted"},
	{anyOf("unsupported url"), "This website isn't supported"},
	{anyOf("no video formats", "requested format not available"), "No downloadable formats found"},
	{func(msg string) bool {
		return strings.Contains(msg, "rate") && !strings.Contains(msg, "format") && !strings.Contains(msg, "generate")
	}, "Rate limited, please wait and try again"},
	{func(msg string) bool {
		return anyOf("econnreset", "connection reset")(msg) ||
			(strings.Contains(msg, "connection") && !strings.Contains(msg, "connected"))
	}, "Connection dropped, try again"},
	{anyOf("etimedout", "timed out", "timeout", "deadline exceeded"), "Connection timed out, try again"},
	{anyOf("no such host", "dns"), "Couldn't reach the server, try again"},
	{anyOf("processing failed", "encoding failed"), "Processing failed"},
	{anyOf("download interrupted", "unexpected eof"), "Download interrupted"},
	{anyOf("no items were successfully downloaded"), "No items were successfully downloaded"},
}

// ToUserError maps raw yt-dlp, Cobalt or ffmpeg error text to a short
// message that is safe to show in chat.
func ToUserError(message string) string {
	msg := strings.ToLower(message)
	for _, r := range errorRules {
		if r.match(msg) {
			return r.text
		}
	}
	// Already phrased for the user by the dispatcher.
	if strings.Contains(msg, "playlist too large") {
		return message
	}
	return "Download failed"
}
