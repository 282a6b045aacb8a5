// Package install builds download trees that complete a game installation:
// the asset objects named by an asset index and the libraries of a version.
package install

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/download"
	"github.com/launchkit/launchkit/internal/task"
	"go.uber.org/zap"
)

// DefaultResourceBase is the asset object server
const DefaultResourceBase = "https://resources.download.minecraft.net"

// AssetIndex identifies the asset index of a game version
type AssetIndex struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// AssetObject is one entry of an asset index
type AssetObject struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

type assetIndexFile struct {
	Objects map[string]AssetObject `json:"objects"`
}

// AssetsCompletion downloads the asset index, then every asset object that
// is missing from assetsDir. The object list is only known once the index is
// on disk, so the object download is configured when the index finishes.
type AssetsCompletion struct {
	task.Sequence[task.Task]

	env          download.Env
	logger       *zap.Logger
	assetsDir    string
	resourceBase string
	indexPath    string

	index   *download.FileDownloadTask
	objects *download.MultiFileDownloadTask
}

// NewAssetsCompletion creates the completion task. An index that is already
// present in assetsDir is read immediately and not downloaded again.
// threads applies to the index download, budget to the object downloads.
func NewAssetsCompletion(env download.Env, index AssetIndex, assetsDir, resourceBase string, threads, budget int, opts ...task.Option) (*AssetsCompletion, error) {
	if env.FS == nil {
		return nil, domain.ErrNoFileSystem
	}
	if index.ID == "" {
		return nil, fmt.Errorf("asset index id is required: %w", domain.ErrInvalidInput)
	}
	if resourceBase == "" {
		resourceBase = DefaultResourceBase
	}
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &AssetsCompletion{
		env:          env,
		logger:       logger.With(zap.String("asset_index", index.ID)),
		assetsDir:    assetsDir,
		resourceBase: strings.TrimRight(resourceBase, "/"),
		indexPath:    filepath.Join(assetsDir, "indexes", index.ID+".json"),
	}
	opts = append([]task.Option{task.WithName("assets-" + index.ID), task.WithLogger(c.logger)}, opts...)
	c.Sequence.Init(c, opts...)

	objects, err := download.NewMultiFileDownloadTask(env, nil, nil, budget, task.WithName("asset-objects"))
	if err != nil {
		return nil, err
	}
	c.objects = objects

	if env.FS.Exists(c.indexPath) {
		if err := c.assignObjects(); err != nil {
			return nil, err
		}
	} else {
		if index.URL == "" {
			return nil, fmt.Errorf("asset index %s is missing and has no url: %w", index.ID, domain.ErrEmptyURL)
		}
		c.index, err = download.NewFileDownloadTask(env, index.URL, c.indexPath, threads, task.WithName("asset-index"))
		if err != nil {
			return nil, err
		}
		if err := c.index.OnFinish(c.indexDownloaded); err != nil {
			return nil, err
		}
		if err := c.Add(c.index); err != nil {
			return nil, err
		}
	}
	if err := c.Add(c.objects); err != nil {
		return nil, err
	}
	return c, nil
}

// Index returns the index download, nil when the index was already present
func (c *AssetsCompletion) Index() *download.FileDownloadTask { return c.index }

// Objects returns the asset object download
func (c *AssetsCompletion) Objects() *download.MultiFileDownloadTask { return c.objects }

// DownloadedBytes sums index and object bytes
func (c *AssetsCompletion) DownloadedBytes() int64 {
	n := c.objects.DownloadedBytes()
	if c.index != nil {
		n += c.index.DownloadedBytes()
	}
	return n
}

// Size sums index and object sizes known so far
func (c *AssetsCompletion) Size() int64 {
	n := c.objects.Size()
	if c.index != nil {
		n += c.index.Size()
	}
	return n
}

// DownloadedFiles counts finished index and object downloads
func (c *AssetsCompletion) DownloadedFiles() int {
	n := c.objects.DownloadedFiles()
	if c.index != nil {
		n += c.index.DownloadedFiles()
	}
	return n
}

// TotalFiles counts the index and the objects assigned so far
func (c *AssetsCompletion) TotalFiles() int {
	n := c.objects.TotalFiles()
	if c.index != nil {
		n++
	}
	return n
}

func (c *AssetsCompletion) indexDownloaded(task.Task) {
	// status is still running inside finish callbacks
	if c.index.DownloadedBytes() != c.index.Size() {
		c.ReportException(fmt.Errorf("asset index %s: %w", c.indexPath, domain.ErrIncomplete))
		return
	}
	if err := c.assignObjects(); err != nil {
		c.ReportException(err)
	}
}

func (c *AssetsCompletion) assignObjects() error {
	objects, err := readAssetIndex(c.env.FS.Resolve(c.indexPath))
	if err != nil {
		return err
	}

	names := make([]string, 0, len(objects))
	for name := range objects {
		names = append(names, name)
	}
	sort.Strings(names)

	var urls, paths []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		obj := objects[name]
		if len(obj.Hash) < 2 {
			c.logger.Warn("skipping malformed asset entry",
				zap.String("name", name),
				zap.Error(domain.ErrSkipMalformedEntry))
			continue
		}
		// several names may share one object
		if seen[obj.Hash] {
			continue
		}
		seen[obj.Hash] = true

		dest := filepath.Join(c.assetsDir, "objects", obj.Hash[:2], obj.Hash)
		if c.present(dest, obj.Size) {
			continue
		}
		urls = append(urls, c.objectURL(obj.Hash))
		paths = append(paths, dest)
	}

	c.logger.Info("asset objects resolved",
		zap.Int("indexed", len(objects)),
		zap.Int("missing", len(urls)))
	return c.objects.Set(urls, paths)
}

func (c *AssetsCompletion) present(dest string, size int64) bool {
	if !c.env.FS.Exists(dest) {
		return false
	}
	if size <= 0 {
		return true
	}
	got, err := c.env.FS.FileSize(dest)
	return err == nil && got == size
}

func (c *AssetsCompletion) objectURL(hash string) string {
	return c.resourceBase + "/" + path.Join(hash[:2], hash)
}

func readAssetIndex(file string) (map[string]AssetObject, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset index: %w", err)
	}
	var index assetIndexFile
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse asset index %s: %w: %w", file, domain.ErrInvalidInput, err)
	}
	return index.Objects, nil
}
