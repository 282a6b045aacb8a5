package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

type fileEntry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	IsDir    bool      `json:"is_dir"`
	Size     int64     `json:"size"`
	SizeText string    `json:"size_text,omitempty"`
	ModTime  time.Time `json:"mod_time"`
}

// handleBrowse lists directories of the download root as JSON and serves
// files: /files/<path>
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	root := filepath.Clean(s.fs.RootDir())
	requestPath := strings.TrimPrefix(r.URL.Path, "/files/")
	fullPath := filepath.Join(root, filepath.FromSlash(requestPath))

	// Security check: prevent directory traversal
	if fullPath != root && !strings.HasPrefix(fullPath, root+string(filepath.Separator)) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Path not found", http.StatusNotFound)
		} else {
			s.logger.Error("failed to stat path", zap.String("path", fullPath), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	if !info.IsDir() {
		http.ServeFile(w, r, fullPath)
		return
	}

	dirEntries, err := os.ReadDir(fullPath)
	if err != nil {
		s.logger.Error("failed to read directory", zap.String("path", fullPath), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	entries := make([]fileEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		fi, err := e.Info()
		if err != nil {
			continue
		}
		entry := fileEntry{
			Name:    e.Name(),
			Path:    strings.TrimPrefix(filepath.ToSlash(filepath.Join(requestPath, e.Name())), "/"),
			IsDir:   e.IsDir(),
			ModTime: fi.ModTime(),
		}
		if !e.IsDir() {
			entry.Size = fi.Size()
			entry.SizeText = humanize.IBytes(uint64(fi.Size()))
		}
		entries = append(entries, entry)
	}

	// Directories first, then by name
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	writeJSON(w, http.StatusOK, entries)
}
