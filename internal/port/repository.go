package port

import (
	"github.com/launchkit/launchkit/internal/domain/repository"
)

// DownloadRecordRepository is an alias to domain repository interface
type DownloadRecordRepository = repository.DownloadRecordRepository

// Store is an alias to domain repository interface
type Store = repository.Store
