package convert

import "strings"

// Class is the broad media family of a file extension.
type Class int

const (
	ClassUnknown Class = iota
	ClassImage
	ClassAudio
	ClassVideo
)

func (c Class) String() string {
	switch c {
	case ClassImage:
		return "image"
	case ClassAudio:
		return "audio"
	case ClassVideo:
		return "video"
	default:
		return "unknown"
	}
}

var (
	imageFormats = []string{"png", "jpg", "jpeg", "gif", "webp", "svg", "heic"}
	audioFormats = []string{"mp3", "wav", "flac", "ogg", "aac", "m4a", "opus", "wma"}
	videoFormats = []string{"mp4", "avi", "mov", "wmv", "mkv", "webm", "flv", "mpeg", "mpg", "3gp"}
)

// ClassOf returns the class of ext, with or without a leading dot.
func ClassOf(ext string) Class {
	ext = normalize(ext)
	switch {
	case contains(imageFormats, ext):
		return ClassImage
	case contains(audioFormats, ext):
		return ClassAudio
	case contains(videoFormats, ext):
		return ClassVideo
	}
	return ClassUnknown
}

// allowed returns every target a file of class c may become.
func allowed(c Class) []string {
	switch c {
	case ClassVideo:
		out := []string{"gif"}
		out = append(out, audioFormats...)
		return append(out, videoFormats...)
	case ClassAudio:
		return append([]string(nil), audioFormats...)
	case ClassImage:
		out := []string{"gif"}
		for _, f := range imageFormats {
			if f != "gif" {
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

// Allowed reports whether a file with extension from may be converted to to.
func Allowed(from, to string) bool {
	return contains(allowed(ClassOf(from)), normalize(to))
}

// Targets lists the formats a file with extension ext can be converted to,
// excluding its own format.
func Targets(ext string) []string {
	ext = normalize(ext)
	var out []string
	for _, f := range allowed(ClassOf(ext)) {
		if f != ext {
			out = append(out, f)
		}
	}
	return out
}

// Supported reports whether format is a known target at all.
func Supported(format string) bool {
	return ClassOf(format) != ClassUnknown
}

func normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type encoding struct {
	format string
	codec  []string
}

// encodings maps a target to its container and codec arguments.
var encodings = map[string]encoding{
	"jpg":  {"image2", []string{"-c:v", "mjpeg", "-q:v", "2", "-frames:v", "1"}},
	"jpeg": {"image2", []string{"-c:v", "mjpeg", "-q:v", "2", "-frames:v", "1"}},
	"png":  {"image2", []string{"-c:v", "png", "-compression_level", "2", "-frames:v", "1"}},
	"webp": {"image2", []string{"-c:v", "libwebp", "-compression_level", "6", "-q:v", "75", "-frames:v", "1"}},
	"svg":  {"image2", []string{"-c:v", "svg", "-frames:v", "1"}},
	"heic": {"image2", []string{"-c:v", "hevc", "-frames:v", "1"}},

	"mp3":  {"mp3", []string{"-vn", "-c:a", "libmp3lame", "-b:a", "320k"}},
	"wav":  {"wav", []string{"-vn", "-c:a", "pcm_s16le"}},
	"flac": {"flac", []string{"-vn", "-c:a", "flac"}},
	"ogg":  {"ogg", []string{"-vn", "-c:a", "libvorbis"}},
	"aac":  {"adts", []string{"-vn", "-c:a", "aac"}},
	"m4a":  {"ipod", []string{"-vn", "-c:a", "aac"}},
	"opus": {"opus", []string{"-vn", "-c:a", "libopus"}},
	"wma":  {"asf", []string{"-vn", "-c:a", "wmav2"}},

	"mp4":  {"mp4", []string{"-c:v", "libx264", "-crf", "23", "-c:a", "aac"}},
	"avi":  {"avi", []string{"-c:v", "mpeg4", "-q:v", "5"}},
	"mov":  {"mov", []string{"-c:v", "libx264", "-crf", "23", "-c:a", "aac"}},
	"wmv":  {"asf", []string{"-c:v", "wmv2", "-b:v", "1000k", "-c:a", "wmav2"}},
	"mkv":  {"matroska", []string{"-c:v", "libx264", "-crf", "23"}},
	"webm": {"webm", []string{"-c:v", "libvpx", "-crf", "23", "-b:v", "1M", "-c:a", "libvorbis"}},
	"flv":  {"flv", []string{"-c:v", "libx264", "-crf", "23", "-c:a", "aac"}},
	"mpeg": {"mpeg", []string{"-c:v", "mpeg2video", "-q:v", "5"}},
	"mpg":  {"mpeg", []string{"-c:v", "mpeg2video", "-q:v", "5"}},
	"3gp":  {"3gp", []string{"-c:v", "libx264", "-crf", "23", "-c:a", "aac"}},
}
