package services

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ItemFetcher produces the file for one playlist entry and returns its path.
type ItemFetcher func(ctx context.Context, index int, item PlaylistItem) (string, error)

// PlaylistRunner downloads playlist entries on a bounded pool. A failing
// entry is recorded and never stops the others.
type PlaylistRunner struct {
	concurrency int
	logger      *zap.Logger
}

func NewPlaylistRunner(concurrency int, logger *zap.Logger) *PlaylistRunner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &PlaylistRunner{concurrency: concurrency, logger: logger.Named("playlist")}
}

// Run fetches every item and waits for all of them. The returned paths are
// in playlist order and only include successful items. onDone, when set, is
// called in order as each item finishes.
func (r *PlaylistRunner) Run(ctx context.Context, title string, items []PlaylistItem, fetch ItemFetcher, onDone func(done, total int)) ([]string, *PlaylistReport) {
	paths := make([]string, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	var mu sync.Mutex
	done := 0
	for i, item := range items {
		g.Go(func() error {
			path, err := r.fetchItem(ctx, i, item, fetch)
			if err != nil {
				errs[i] = err
			} else {
				paths[i] = path
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			r.logger.Debug("item finished",
				zap.Int("index", i+1),
				zap.Int("done", done),
				zap.Int("total", len(items)),
				zap.Bool("ok", err == nil))
			if onDone != nil {
				onDone(done, len(items))
			}
			return nil
		})
	}
	_ = g.Wait()

	report := &PlaylistReport{Title: title}
	var ok []string
	for i := range items {
		if errs[i] != nil {
			report.ErrorCount++
			report.Failures = append(report.Failures, PlaylistFailure{
				Index:   i + 1,
				Title:   OrDefault(items[i].Title, items[i].URL),
				Message: UserMessage(errs[i]),
			})
			r.logger.Warn("item failed", zap.Int("index", i+1), zap.String("url", items[i].URL), zap.Error(errs[i]))
			continue
		}
		report.SuccessCount++
		ok = append(ok, paths[i])
	}
	return ok, report
}

// fetchItem runs fetch for one entry. A panic fails only that entry.
func (r *PlaylistRunner) fetchItem(ctx context.Context, i int, item PlaylistItem, fetch ItemFetcher) (path string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in playlist item",
				zap.Int("index", i+1),
				zap.String("url", item.URL),
				zap.Any("panic", rec),
				zap.Stack("stack"))
			path, err = "", wrapError(KindUpstream, "playlist", fmt.Errorf("panic: %v", rec))
		}
	}()
	if err := ctx.Err(); err != nil {
		return "", wrapError(KindTimeout, "playlist", err)
	}
	return fetch(ctx, i, item)
}

// CreateZip writes files into a new archive at zipPath, each stored under
// its base name. A failed archive is removed.
func CreateZip(zipPath string, files []string) (err error) {
	f, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(zipPath)
		}
	}()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	for _, filePath := range files {
		if err := addToZip(zw, filePath); err != nil {
			zw.Close()
			return fmt.Errorf("add %s: %w", filepath.Base(filePath), err)
		}
	}
	return zw.Close()
}

func addToZip(zw *zip.Writer, filePath string) error {
	src, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer src.Close()

	entry, err := zw.Create(filepath.Base(filePath))
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, src)
	return err
}
