package services

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/retry"
)

func newTestMaterializer() *Materializer {
	m := NewMaterializer(http.DefaultClient, zap.NewNop())
	m.policy = retry.Policy{Attempts: 2}
	return m
}

func TestMaterialize_WritesAndRenames(t *testing.T) {
	body := strings.Repeat("media", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	art, err := newTestMaterializer().Materialize(t.Context(), srv.URL, dest)
	require.NoError(t, err)

	assert.Equal(t, dest, art.Path)
	assert.Equal(t, int64(len(body)), art.Size)
	assert.Equal(t, "mp4", art.Ext)
	assert.FileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
}

func TestMaterialize_NotFoundIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	_, err := newTestMaterializer().Materialize(t.Context(), srv.URL, dest)
	require.Error(t, err)

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, 1, calls)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
}

func TestMaterialize_RetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "a.mp3")
	_, err := newTestMaterializer().Materialize(t.Context(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, os.ErrClosed }

func TestFromReader_RemovesPartialOnError(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "upload.wav")
	_, err := newTestMaterializer().FromReader(t.Context(), failingReader{}, dest)
	require.Error(t, err)

	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
}
