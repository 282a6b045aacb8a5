package install

import (
	"context"
	"fmt"

	"github.com/launchkit/launchkit/internal/domain"
	"github.com/launchkit/launchkit/internal/download"
	"github.com/launchkit/launchkit/internal/task"
)

// MaxVersionBytes bounds a version manifest fetched over HTTP
const MaxVersionBytes = 8 << 20

// FetchVersion reads a version manifest from url into memory and parses it
func FetchVersion(ctx context.Context, env download.Env, url string) (*Version, error) {
	chunk, err := download.NewChunkDownloadTask(env, url, 0, MaxVersionBytes-1, task.WithName("version"))
	if err != nil {
		return nil, err
	}
	if err := chunk.Start(); err != nil {
		return nil, fmt.Errorf("failed to fetch version manifest %s: %w", url, err)
	}

	select {
	case <-chunk.Done():
	case <-ctx.Done():
		_ = chunk.Cancel()
		<-chunk.Done()
		return nil, ctx.Err()
	}

	if err := chunk.Failure(); err != nil {
		return nil, fmt.Errorf("failed to fetch version manifest %s: %w", url, err)
	}
	if chunk.Status() != task.StatusFinished {
		return nil, fmt.Errorf("fetch of version manifest %s: %w", url, domain.ErrCanceled)
	}
	data := chunk.Result()
	if len(data) >= MaxVersionBytes {
		return nil, fmt.Errorf("version manifest %s exceeds %d bytes: %w", url, MaxVersionBytes, domain.ErrInvalidInput)
	}
	return ParseVersion(data)
}
