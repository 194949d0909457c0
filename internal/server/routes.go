package server

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/coah80/chocbot/internal/config"
	"github.com/coah80/chocbot/internal/util"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": s.opts.Version,
	}
	if s.stats != nil {
		body["active"] = s.stats.Active()
	}
	if s.pending != nil {
		body["pendingDeletes"] = s.pending()
	}
	if disk, err := util.GetDiskSpace(s.opts.TempDir); err == nil {
		body["diskSpaceGB"] = disk.AvailGB
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleTempFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if !plainName(name) {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
		return
	}

	path := filepath.Join(s.opts.TempDir, name)
	f, err := os.Open(path)
	if err != nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || !stat.Mode().IsRegular() {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
		return
	}

	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, toASCIIFilename(name), url.PathEscape(name)))

	http.ServeContent(w, r, name, stat.ModTime(), f)
	s.logger.Debug("served", zap.String("file", name), zap.Int64("size", stat.Size()))
}

// plainName accepts only a bare file name inside the scratch directory.
func plainName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}

func contentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if t, ok := config.MIMETypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func toASCIIFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 0x20 && r <= 0x7E && r != '"' && r != '\\' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
