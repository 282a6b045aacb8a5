// Package manifest reads job manifests from YAML.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/launchkit/launchkit/internal/domain"
	"gopkg.in/yaml.v3"
)

// Load reads and validates the manifest at path. Relative destination paths
// are kept as written; they are resolved against the download root later.
func Load(path string) (*domain.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	job, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if job.Name == "" {
		job.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return job, nil
}

// Parse decodes a manifest document. Unknown keys are rejected.
func Parse(data []byte) (*domain.Job, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a manifest document from r
func Decode(r io.Reader) (*domain.Job, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	job := &domain.Job{}
	if err := dec.Decode(job); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.ErrEmptyJob
		}
		return nil, fmt.Errorf("failed to parse manifest: %w: %w", domain.ErrInvalidInput, err)
	}
	for i := range job.Files {
		job.Files[i].URL = strings.TrimSpace(job.Files[i].URL)
		job.Files[i].Path = strings.TrimSpace(job.Files[i].Path)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Marshal encodes a job back into manifest form
func Marshal(job *domain.Job) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(job); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
