package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/retry"
)

// Materializer turns a remote stream into a file in the scratch directory.
type Materializer struct {
	client *http.Client
	policy retry.Policy
	logger *zap.Logger
}

func NewMaterializer(client *http.Client, logger *zap.Logger) *Materializer {
	return &Materializer{
		client: client,
		policy: retry.Default().WithPredicate(Retryable),
		logger: logger.Named("materialize"),
	}
}

// Materialize downloads mediaURL to dest. The body is written to dest.part
// and renamed on success; a failed attempt never leaves a partial file.
func (m *Materializer) Materialize(ctx context.Context, mediaURL, dest string) (*MediaArtifact, error) {
	return retry.Do(ctx, m.policy, func(ctx context.Context) (*MediaArtifact, error) {
		return m.fetch(ctx, mediaURL, dest)
	})
}

func (m *Materializer) fetch(ctx context.Context, mediaURL, dest string) (*MediaArtifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, retry.Permanent(wrapError(KindUnsupported, "materialize", err))
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, classified("materialize", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, statusError("materialize", resp.StatusCode)
	}

	artifact, err := m.FromReader(ctx, resp.Body, dest)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("materialized",
		zap.String("path", dest),
		zap.Int64("bytes", artifact.Size),
		zap.Duration("took", time.Since(start)))
	return artifact, nil
}

// FromReader streams r into dest with the same partial-file handling as
// Materialize.
func (m *Materializer) FromReader(ctx context.Context, r io.Reader, dest string) (*MediaArtifact, error) {
	partPath := dest + ".part"
	f, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, wrapError(KindUpstream, "materialize", err)
	}

	n, copyErr := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(partPath)
		if ctx.Err() != nil {
			return nil, wrapError(KindTimeout, "materialize", ctx.Err())
		}
		return nil, wrapError(KindUpstream, "materialize", fmt.Errorf("download interrupted: %w", copyErr))
	}

	if err := os.Rename(partPath, dest); err != nil {
		os.Remove(partPath)
		return nil, wrapError(KindUpstream, "materialize", err)
	}

	return &MediaArtifact{
		Path:      dest,
		Size:      n,
		Ext:       strings.TrimPrefix(filepath.Ext(dest), "."),
		CreatedAt: time.Now(),
	}, nil
}

func statusError(op string, code int) error {
	err := fmt.Errorf("HTTP %d", code)
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return retry.Permanent(wrapError(KindNotFound, op, err))
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return retry.Permanent(wrapError(KindRestricted, op, err))
	case code == http.StatusTooManyRequests:
		return wrapError(KindRateLimited, op, err)
	}
	return wrapError(KindUpstream, op, err)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
