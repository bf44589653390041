package bunstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"

	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/database"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/database/models"
)

// BunStore implements the repository interfaces on top of bun.
type BunStore struct {
	db *bun.DB
}

var _ database.ProviderRepository = (*BunStore)(nil)
var _ database.CatalogRepository = (*BunStore)(nil)
var _ database.CheckRunRepository = (*BunStore)(nil)

// OpenSQLite opens (or creates) the sqlite database at dsn with WAL enabled.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// New wraps an opened database and creates the schema if missing.
func New(sqldb *sql.DB, dialect schema.Dialect) (*BunStore, error) {
	if dialect == nil {
		dialect = sqlitedialect.New()
	}
	bunDB := bun.NewDB(sqldb, dialect)

	store := &BunStore{db: bunDB}

	ctx := context.Background()
	if _, err := bunDB.NewCreateTable().Model((*models.Provider)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create providers table: %w", err)
	}
	if _, err := bunDB.NewCreateTable().Model((*models.DownloadItem)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create download_items table: %w", err)
	}
	if _, err := bunDB.NewCreateTable().Model((*models.CheckRunRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create check_runs table: %w", err)
	}
	if _, err := bunDB.NewCreateIndex().Model((*models.DownloadItem)(nil)).
		IfNotExists().Index("idx_items_identity").Column("provider_id", "identity_key").Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create identity index: %w", err)
	}

	return store, nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

// Provider repository

func (s *BunStore) CreateProvider(ctx context.Context, p *models.Provider) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := s.db.NewInsert().Model(p).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create provider %s: %w", p.ID, err)
	}
	return nil
}

func (s *BunStore) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	p := new(models.Provider)
	err := s.db.NewSelect().Model(p).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *BunStore) ListProviders(ctx context.Context) ([]*models.Provider, error) {
	var providers []*models.Provider
	if err := s.db.NewSelect().Model(&providers).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return providers, nil
}

func (s *BunStore) UpdateProvider(ctx context.Context, p *models.Provider) error {
	p.UpdatedAt = time.Now()
	res, err := s.db.NewUpdate().Model(p).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Catalog repository

func (s *BunStore) CreateItem(ctx context.Context, item *models.DownloadItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if _, err := s.db.NewInsert().Model(item).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create item %s: %w", item.FilePath, err)
	}
	return nil
}

func (s *BunStore) UpdateItem(ctx context.Context, item *models.DownloadItem) error {
	res, err := s.db.NewUpdate().Model(item).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (s *BunStore) GetItem(ctx context.Context, id string) (*models.DownloadItem, error) {
	item := new(models.DownloadItem)
	err := s.db.NewSelect().Model(item).Where("id = ?", id).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *BunStore) GetItemByIdentity(ctx context.Context, providerID, identityKey string) (*models.DownloadItem, error) {
	item := new(models.DownloadItem)
	err := s.db.NewSelect().Model(item).
		Where("provider_id = ?", providerID).
		Where("identity_key = ?", identityKey).
		Limit(1).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *BunStore) GetItemByPath(ctx context.Context, providerID, filePath string) (*models.DownloadItem, error) {
	item := new(models.DownloadItem)
	err := s.db.NewSelect().Model(item).
		Where("provider_id = ?", providerID).
		Where("file_path = ?", filePath).
		Limit(1).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// sortColumns whitelists user-supplied sort fields.
var sortColumns = map[string]string{
	"created_at":    "created_at",
	"downloaded_at": "downloaded_at",
	"file_name":     "file_name",
	"file_size":     "file_size",
	"category":      "category",
	"title":         "title",
}

func (s *BunStore) ListItems(ctx context.Context, filter database.ItemFilter) ([]*models.DownloadItem, int, error) {
	var items []*models.DownloadItem

	q := s.db.NewSelect().Model(&items)
	if filter.ProviderID != "" {
		q = q.Where("provider_id = ?", filter.ProviderID)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}

	col, ok := sortColumns[filter.Sort]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	q = q.Order(fmt.Sprintf("%s %s", col, dir))

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	q = q.Limit(limit).Offset((page - 1) * limit)

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *BunStore) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*models.DownloadItem)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (s *BunStore) Stats(ctx context.Context) (*database.CatalogStats, error) {
	stats := &database.CatalogStats{
		ByProvider: make(map[string]int),
		ByCategory: make(map[string]int),
	}

	total, err := s.db.NewSelect().Model((*models.DownloadItem)(nil)).Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.Total = total

	var rows []struct {
		Key   string `bun:"key"`
		Count int    `bun:"count"`
	}
	err = s.db.NewSelect().Model((*models.DownloadItem)(nil)).
		ColumnExpr("provider_id AS key, count(*) AS count").
		GroupExpr("provider_id").Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.ByProvider[r.Key] = r.Count
	}

	rows = nil
	err = s.db.NewSelect().Model((*models.DownloadItem)(nil)).
		ColumnExpr("category AS key, count(*) AS count").
		GroupExpr("category").Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.ByCategory[r.Key] = r.Count
	}

	return stats, nil
}

// Activity log

func (s *BunStore) AppendCheckRun(ctx context.Context, rec *models.CheckRunRecord) error {
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("failed to append check run for %s: %w", rec.ProviderID, err)
	}
	return nil
}

func (s *BunStore) ListCheckRuns(ctx context.Context, providerID string, limit int) ([]*models.CheckRunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []*models.CheckRunRecord
	q := s.db.NewSelect().Model(&recs).Order("started_at DESC").Limit(limit)
	if providerID != "" {
		q = q.Where("provider_id = ?", providerID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return recs, nil
}
