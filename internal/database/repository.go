package database

import (
	"context"
	"errors"

	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/database/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// ProviderRepository handles provider record persistence.
type ProviderRepository interface {
	CreateProvider(ctx context.Context, p *models.Provider) error
	GetProvider(ctx context.Context, id string) (*models.Provider, error)
	ListProviders(ctx context.Context) ([]*models.Provider, error)
	UpdateProvider(ctx context.Context, p *models.Provider) error
}

// ItemFilter narrows and pages catalog queries.
type ItemFilter struct {
	ProviderID string
	Category   string
	Sort       string // column name, whitelisted by the store
	SortDesc   bool
	Page       int
	Limit      int
}

// CatalogStats aggregates catalog counts by provider and category.
type CatalogStats struct {
	Total      int            `json:"total"`
	ByProvider map[string]int `json:"by_provider"`
	ByCategory map[string]int `json:"by_category"`
}

// CatalogRepository handles the deduplicated download catalog.
type CatalogRepository interface {
	CreateItem(ctx context.Context, item *models.DownloadItem) error
	UpdateItem(ctx context.Context, item *models.DownloadItem) error
	GetItem(ctx context.Context, id string) (*models.DownloadItem, error)
	// GetItemByIdentity looks an item up by identity key within a provider.
	GetItemByIdentity(ctx context.Context, providerID, identityKey string) (*models.DownloadItem, error)
	// GetItemByPath looks an item up by file path within a provider. Used to
	// detect content changes when the identity key has moved.
	GetItemByPath(ctx context.Context, providerID, filePath string) (*models.DownloadItem, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]*models.DownloadItem, int, error)
	DeleteItem(ctx context.Context, id string) error
	Stats(ctx context.Context) (*CatalogStats, error)
}

// CheckRunRepository is the append-only activity log.
type CheckRunRepository interface {
	AppendCheckRun(ctx context.Context, rec *models.CheckRunRecord) error
	ListCheckRuns(ctx context.Context, providerID string, limit int) ([]*models.CheckRunRecord, error)
}
