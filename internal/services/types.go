package services

import (
	"context"
	"time"
)

// MediaKind selects audio-only or full video output.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// DownloadRequest is one user request handed to the Dispatcher.
type DownloadRequest struct {
	URL     string    `validate:"required,max=2048,safe_url"`
	OwnerID string    `validate:"required"`
	Kind    MediaKind `validate:"required,oneof=audio video"`
	// Purpose tags the artifact name, e.g. "DOWN".
	Purpose string `validate:"required,alphanum"`
	// UseIdentifier names the artifact <owner>-<PURPOSE>-<rnd>.<ext> instead
	// of after the media title.
	UseIdentifier bool
	// OnProgress, when set, receives best-effort status updates. It may be
	// called from several goroutines, never after Download returns.
	OnProgress func(Progress)
}

// Progress is a status update for a running download. Percent, Speed and
// ETA describe a single file; Done and Total count finished playlist items.
type Progress struct {
	Percent float64
	Speed   string
	ETA     string
	Done    int
	Total   int
}

func (r DownloadRequest) WantAudio() bool { return r.Kind == MediaAudio }

// Options are passed to a Strategy for a single extraction.
type Options struct {
	WantAudio bool
	OwnerID   string
	// StagingBase is the scratch path, without extension, that tool driven
	// strategies write to.
	StagingBase string
	OnProgress  func(Progress)
}

// ExtractionResult describes what a strategy found. Exactly one of MediaURL
// and LocalPath is set.
type ExtractionResult struct {
	MediaURL  string
	LocalPath string
	Title     string
	Artist    string
	Thumbnail string
	Duration  float64
	Ext       string
	Tags      *MetadataTags
	// ForceAudio makes the pipeline produce audio regardless of the request.
	ForceAudio bool
}

// MetadataTags are written into audio artifacts as ID3 frames.
type MetadataTags struct {
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	Year        string
	Track       string
	Cover       []byte
}

// MediaArtifact is a finished file in the scratch directory.
type MediaArtifact struct {
	Path      string
	Size      int64
	Ext       string
	CreatedAt time.Time
}

// Result is what the command layer receives for every request.
type Result struct {
	Success  bool
	Title    string
	Message  string
	Artifact *MediaArtifact
	Playlist *PlaylistReport
}

type PlaylistFailure struct {
	Index   int
	Title   string
	Message string
}

type PlaylistReport struct {
	Title        string
	SuccessCount int
	ErrorCount   int
	Failures     []PlaylistFailure
}

// PlaylistItem is one entry of an enumerated playlist.
type PlaylistItem struct {
	URL   string
	Title string
}

type PlaylistSource struct {
	Title string
	Items []PlaylistItem
	// Total is the size the platform reports, which may exceed len(Items).
	Total int
}

// Strategy extracts a single media item for one platform.
type Strategy interface {
	Extract(ctx context.Context, rawURL string, opts Options) (*ExtractionResult, error)
}

// PlaylistStrategy is implemented by strategies that also handle
// many-item URLs.
type PlaylistStrategy interface {
	Strategy
	Enumerate(ctx context.Context, rawURL string) (*PlaylistSource, error)
}
