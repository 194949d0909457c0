package util

import (
	"os"
	"strings"
)

var botDetectionErrors = []string{
	"Sign in to confirm you",
	"confirm your age",
	"Sign in to confirm your age",
	"This video is unavailable",
	"Private video",
}

// HasCookiesFile reports whether path names a readable cookies file.
func HasCookiesFile(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// NeedsCookiesRetry reports whether yt-dlp output looks like a login wall
// that a cookies file might get past.
func NeedsCookiesRetry(errorOutput string) bool {
	for _, e := range botDetectionErrors {
		if strings.Contains(errorOutput, e) {
			return true
		}
	}
	return false
}

// CookiesArgs returns the yt-dlp flags for path, or nil when it is missing.
func CookiesArgs(path string) []string {
	if !HasCookiesFile(path) {
		return nil
	}
	return []string{"--cookies", path}
}
