package lifecycle

import "time"

// InlineLimit is the largest file, exclusive, that is attached to a chat
// reply instead of being linked.
const InlineLimit int64 = 10 * 1024 * 1024

type Purpose int

const (
	PurposeDownload Purpose = iota
	PurposeConvert
)

// Policy picks how long a delivered file stays on disk.
type Policy struct {
	Inline        int64
	ShortDownload time.Duration
	ShortConvert  time.Duration
	Long          time.Duration
}

// DefaultPolicy keeps linked files for long.
func DefaultPolicy(long time.Duration) Policy {
	return Policy{
		Inline:        InlineLimit,
		ShortDownload: 5 * time.Second,
		ShortConvert:  30 * time.Second,
		Long:          long,
	}
}

// IsInline reports whether a file of size bytes is attached directly.
func (p Policy) IsInline(size int64) bool {
	return size < p.Inline
}

// DelayFor returns how long to keep a file of size bytes after delivery.
func (p Policy) DelayFor(size int64, purpose Purpose) time.Duration {
	if !p.IsInline(size) {
		return p.Long
	}
	if purpose == PurposeConvert {
		return p.ShortConvert
	}
	return p.ShortDownload
}

// LongMinutes is the link lifetime shown to users, rounded up.
func (p Policy) LongMinutes() int {
	m := int((p.Long + time.Minute - 1) / time.Minute)
	return max(m, 1)
}
