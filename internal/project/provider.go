package project

import (
	"fmt"
	"strings"

	"github.com/kandev/agentflow/internal/common/config"
)

// Provided bundles the on-disk store with its metadata-index backend.
type Provided struct {
	Store      *Store
	Repository Repository
}

// Provide builds the Project Store and its selected metadata-index backend.
func Provide(cfg *config.Config) (*Provided, func() error, error) {
	store, err := NewStore(cfg.ProjectStore.BaseDir)
	if err != nil {
		return nil, nil, err
	}

	var repo Repository
	switch strings.ToLower(cfg.ProjectStore.MetadataBackend) {
	case "sqlite":
		sqliteRepo, err := NewSQLiteRepository(cfg.ProjectStore.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize sqlite metadata index: %w", err)
		}
		repo = sqliteRepo
	default:
		repo = NewMemoryRepository()
	}

	cleanup := func() error { return repo.Close() }
	return &Provided{Store: store, Repository: repo}, cleanup, nil
}
