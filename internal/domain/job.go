package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FileSpec is one (url, destination) pair of a job
type FileSpec struct {
	URL  string `yaml:"url" json:"url"`
	Path string `yaml:"path" json:"path"`
}

// CommandSpec is a subprocess run after all downloads of a job finished
type CommandSpec struct {
	Name string   `yaml:"name" json:"name"`
	Args []string `yaml:"args" json:"args"`
	Dir  string   `yaml:"dir" json:"dir"`
}

// Job describes a download tree to build and run
type Job struct {
	ID           string        `yaml:"-" json:"id"`
	Name         string        `yaml:"name" json:"name"`
	Threads      int           `yaml:"threads" json:"threads"`
	ThreadBudget int           `yaml:"thread_budget" json:"thread_budget"`
	Files        []FileSpec    `yaml:"files" json:"files"`
	Commands     []CommandSpec `yaml:"commands" json:"commands"`
}

// Validate checks the job for empty entries and for paths leaving the
// download root
func (j *Job) Validate() error {
	if len(j.Files) == 0 && len(j.Commands) == 0 {
		return ErrEmptyJob
	}
	for i, f := range j.Files {
		if f.URL == "" {
			return fmt.Errorf("files[%d]: %w", i, ErrEmptyURL)
		}
		if f.Path == "" {
			return fmt.Errorf("files[%d]: path is required: %w", i, ErrInvalidInput)
		}
		if err := checkRelative(f.Path); err != nil {
			return fmt.Errorf("files[%d]: %w", i, err)
		}
	}
	for i, c := range j.Commands {
		if c.Name == "" {
			return fmt.Errorf("commands[%d]: name is required: %w", i, ErrInvalidInput)
		}
		if c.Dir == "" {
			continue
		}
		if err := checkRelative(c.Dir); err != nil {
			return fmt.Errorf("commands[%d]: dir: %w", i, err)
		}
	}
	if j.Threads < 0 || j.ThreadBudget < 0 {
		return fmt.Errorf("thread counts cannot be negative: %w", ErrInvalidInput)
	}
	return nil
}

// checkRelative rejects absolute paths and paths climbing out of the root
func checkRelative(path string) error {
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\\`) {
		return fmt.Errorf("path %q must be relative to the download root: %w", path, ErrInvalidInput)
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path %q escapes the download root: %w", path, ErrInvalidInput)
	}
	return nil
}

// URLs returns the file urls in job order
func (j *Job) URLs() []string {
	urls := make([]string, len(j.Files))
	for i, f := range j.Files {
		urls[i] = f.URL
	}
	return urls
}

// Paths returns the destination paths in job order
func (j *Job) Paths() []string {
	paths := make([]string, len(j.Files))
	for i, f := range j.Files {
		paths[i] = f.Path
	}
	return paths
}

// JobResult summarizes a finished job
type JobResult struct {
	JobID           string
	Status          string
	FinishedFiles   int
	FailedFiles     int
	CanceledFiles   int
	TotalFiles      int
	BytesDownloaded int64
	Size            int64
	Duration        time.Duration
	Errors          []string
}
