package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxFilenameLength      = 200
	MaxPlaylistItemLength  = 150
	minSuffix, suffixRange = 10000, 90000
)

var unsafeFilenameRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
var multiSpaceRe = regexp.MustCompile(`\s+`)
var urlRe = regexp.MustCompile(`(?i)https?://\S+`)

// ClearTempDir empties dir, creating it when missing.
func ClearTempDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, os.MkdirAll(dir, 0o755)
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// SanitizeFilename strips characters that are illegal on common filesystems,
// collapses whitespace and caps the byte length at max.
func SanitizeFilename(filename string, max int) string {
	if max <= 0 {
		max = MaxFilenameLength
	}
	s := unsafeFilenameRe.ReplaceAllString(filename, "")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = truncateUTF8(s, max)
	s = strings.Trim(s, " .")
	if s == "" {
		return "download"
	}
	return s
}

// RandomSuffix returns a five digit number in [10000, 99999].
func RandomSuffix() int {
	n, err := rand.Int(rand.Reader, big.NewInt(suffixRange))
	if err != nil {
		return minSuffix
	}
	return minSuffix + int(n.Int64())
}

// ArtifactName builds "<owner>-<PURPOSE>-<rnd>.<ext>".
func ArtifactName(owner, purpose, ext string) string {
	return ArtifactNameWith(owner, purpose, RandomSuffix(), ext)
}

func ArtifactNameWith(owner, purpose string, rnd int, ext string) string {
	base := fmt.Sprintf("%s-%s-%d", owner, strings.ToUpper(purpose), rnd)
	return SanitizeFilename(base, MaxFilenameLength) + "." + ext
}

// TitleName builds "<sanitized title>.<ext>" and adds a random suffix when
// the name is already taken in dir.
func TitleName(dir, title, ext string) string {
	base := SanitizeFilename(title, MaxFilenameLength-len(ext)-7)
	name := base + "." + ext
	if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
		return name
	}
	return fmt.Sprintf("%s_%d.%s", base, RandomSuffix(), ext)
}

// SocialTitle turns a post caption into a short file-friendly title:
// links dropped, first six words kept, spaces to underscores, lowercased.
func SocialTitle(raw, fallback string) string {
	s := urlRe.ReplaceAllString(raw, "")
	words := strings.Fields(s)
	if len(words) > 6 {
		words = words[:6]
	}
	s = strings.ToLower(strings.Join(words, "_"))
	s = SanitizeFilename(s, MaxFilenameLength)
	if strings.Trim(s, "_") == "" || s == "download" {
		return fallback
	}
	return s
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
