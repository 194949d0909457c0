package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coah80/chocbot/internal/util"
)

// Kind classifies a failure so callers can decide whether to retry and what
// to tell the user.
type Kind int

const (
	KindUpstream Kind = iota
	KindUnsupported
	KindNotFound
	KindRestricted
	KindRateLimited
	KindConversionFailed
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindNotFound:
		return "not_found"
	case KindRestricted:
		return "restricted"
	case KindRateLimited:
		return "rate_limited"
	case KindConversionFailed:
		return "conversion_failed"
	case KindTimeout:
		return "timeout"
	default:
		return "upstream_error"
	}
}

// Error is the typed failure returned by strategies and the pipeline.
// Msg, when set, is already fit for the user.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		fmt.Fprintf(&b, "%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func wrapError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// classified wraps err with the Kind that Classify derives from its text,
// keeping any Kind that is already attached.
func classified(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wrapError(KindTimeout, op, err)
	}
	return wrapError(Classify(err.Error()), op, err)
}

// KindOf returns the Kind attached to err, or KindUpstream.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUpstream
}

// Deterministic reports whether retrying or falling back cannot help.
func Deterministic(err error) bool {
	switch KindOf(err) {
	case KindUnsupported, KindNotFound, KindRestricted:
		return true
	}
	return false
}

// Retryable is the retry predicate used for network calls.
func Retryable(err error) bool {
	return !Deterministic(err)
}

// Classify maps raw yt-dlp, Cobalt or HTTP error text to a Kind.
func Classify(message string) Kind {
	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, "unsupported url", "api.link.unsupported", "api.service.unsupported", "link.invalid"):
		return KindUnsupported
	case containsAny(msg, "video unavailable", "content.video.unavailable", "not found", "404", "does not exist", "has been removed", "content.post.unavailable"):
		return KindNotFound
	case containsAny(msg, "not a bot", "http error 403"):
		// Client-specific blocks; Cobalt may still get through.
		return KindUpstream
	case containsAny(msg, "private", "age-restricted", "confirm your age", "sign in", "login", "members only", "members-only", "geo restricted", "geo-restricted", "not available in your country", "403", "forbidden", "content.video.age", "nsfw"):
		return KindRestricted
	case containsAny(msg, "429", "too many requests", "rate_limited", "rate limit"):
		return KindRateLimited
	case containsAny(msg, "timed out", "timeout", "deadline exceeded"):
		return KindTimeout
	case containsAny(msg, "encoding failed", "ffmpeg"):
		return KindConversionFailed
	}
	return KindUpstream
}

// UserMessage turns any pipeline error into a short message for chat.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Msg != "" {
		return typed.Msg
	}
	switch KindOf(err) {
	case KindUnsupported:
		return "This link isn't supported"
	case KindTimeout:
		return "Connection timed out, try again"
	case KindRateLimited:
		return "Rate limited, try again in a minute"
	case KindConversionFailed:
		return "Processing failed"
	}
	return util.ToUserError(err.Error())
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
