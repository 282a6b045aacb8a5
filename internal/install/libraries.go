package install

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/download"
	"github.com/launchkit/launchkit/internal/task"
	"go.uber.org/zap"
)

// LibraryDirVar is replaced by the libraries directory in library paths
const LibraryDirVar = "${library_directory}"

// Library is one library artifact of a game version
type Library struct {
	Name string
	URL  string
	// Path is relative to the libraries directory or contains LibraryDirVar
	Path string
	// Mod libraries are managed by the mod loader and never downloaded here
	Mod bool
}

// NewLibraryCompletion creates a multi-file download of every library whose
// file is missing under librariesDir.
func NewLibraryCompletion(env download.Env, libraries []Library, librariesDir string, budget int, opts ...task.Option) (*download.MultiFileDownloadTask, error) {
	if env.FS == nil {
		return nil, domain.ErrNoFileSystem
	}
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var urls, paths []string
	for _, lib := range libraries {
		if lib.Mod {
			continue
		}
		dest := libraryPath(lib.Path, librariesDir)
		if env.FS.Exists(dest) {
			logger.Debug("library skipped",
				zap.String("library", lib.Name),
				zap.Error(domain.ErrSkipFilePresent))
			continue
		}
		if lib.URL == "" {
			logger.Warn("library has no download url",
				zap.String("library", lib.Name),
				zap.String("path", dest))
			continue
		}
		urls = append(urls, lib.URL)
		paths = append(paths, dest)
	}
	logger.Info("libraries resolved",
		zap.Int("declared", len(libraries)),
		zap.Int("missing", len(urls)))

	opts = append([]task.Option{task.WithName("libraries")}, opts...)
	return download.NewMultiFileDownloadTask(env, urls, paths, budget, opts...)
}

func libraryPath(p, librariesDir string) string {
	if strings.Contains(p, LibraryDirVar) {
		return filepath.FromSlash(strings.ReplaceAll(p, LibraryDirVar, filepath.ToSlash(librariesDir)))
	}
	return filepath.Join(librariesDir, filepath.FromSlash(p))
}

type versionFile struct {
	AssetIndex AssetIndex `json:"assetIndex"`
	Libraries  []struct {
		Name      string `json:"name"`
		Downloads struct {
			Artifact *struct {
				Path string `json:"path"`
				URL  string `json:"url"`
			} `json:"artifact"`
		} `json:"downloads"`
	} `json:"libraries"`
}

// Version is the part of a version manifest needed to complete an install
type Version struct {
	AssetIndex AssetIndex
	Libraries  []Library
}

// ParseVersion reads the asset index reference and library artifacts from a
// version manifest. Libraries without an artifact are skipped.
func ParseVersion(data []byte) (*Version, error) {
	var raw versionFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse version manifest: %w: %w", domain.ErrInvalidInput, err)
	}
	v := &Version{AssetIndex: raw.AssetIndex}
	for _, lib := range raw.Libraries {
		art := lib.Downloads.Artifact
		if art == nil || art.Path == "" {
			continue
		}
		v.Libraries = append(v.Libraries, Library{
			Name: lib.Name,
			URL:  art.URL,
			Path: art.Path,
		})
	}
	return v, nil
}
