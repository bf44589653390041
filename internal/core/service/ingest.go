package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/database"
	dbmodels "github.com/IAM-NET-GmbH/fileserver-sub001/internal/database/models"
)

// IngestService reconciles candidate files against the catalog. It decides
// new / changed / unchanged per candidate and commits the mutations; the
// identity-key lookup collapses duplicates within and across runs.
type IngestService struct {
	catalog database.CatalogRepository
	log     *slog.Logger
}

func NewIngestService(catalog database.CatalogRepository, log *slog.Logger) *IngestService {
	return &IngestService{catalog: catalog, log: log}
}

// Reconcile processes the candidates of one run for one provider, counting
// outcomes into run. Individual reconcile failures are logged and skipped so
// one bad row never loses the rest of the batch.
func (s *IngestService) Reconcile(ctx context.Context, providerID string, candidates []core.CandidateFile, run *core.CheckRun) error {
	seen := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		key := c.IdentityKey()
		if _, dup := seen[key]; dup {
			// Same file matched twice in one pass, e.g. by overlapping
			// selectors.
			run.SkippedItems++
			continue
		}
		seen[key] = struct{}{}

		if err := s.reconcileOne(ctx, providerID, c, key, run); err != nil {
			s.log.Error("failed to reconcile candidate",
				slog.String("provider", providerID),
				slog.String("path", c.Path),
				slog.Any("error", err))
		}
	}
	return nil
}

func (s *IngestService) reconcileOne(ctx context.Context, providerID string, c core.CandidateFile, key string, run *core.CheckRun) error {
	if _, err := s.catalog.GetItemByIdentity(ctx, providerID, key); err == nil {
		// Identity key unchanged: same path, size and content. Idempotent
		// no-op.
		run.SkippedItems++
		return nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	// The identity key moved or the file is new. The path decides which:
	// within a provider no two entries may represent the same physical file.
	byPath, err := s.catalog.GetItemByPath(ctx, providerID, c.Path)
	if errors.Is(err, database.ErrNotFound) {
		return s.createItem(ctx, providerID, c, key, run)
	}
	if err != nil {
		return err
	}
	return s.updateItem(ctx, byPath, c, key, run)
}

func (s *IngestService) createItem(ctx context.Context, providerID string, c core.CandidateFile, key string, run *core.CheckRun) error {
	item := &dbmodels.DownloadItem{
		ID:           uuid.New().String(),
		ProviderID:   providerID,
		IdentityKey:  key,
		Category:     c.Category,
		Title:        c.Title,
		Version:      c.Version,
		FileName:     c.Name,
		FilePath:     c.Path,
		FileSize:     c.Size,
		Checksum:     c.Checksum,
		FileModTime:  c.ModTime,
		DownloadedAt: time.Now(),
		CreatedAt:    time.Now(),
	}
	if item.Title == "" {
		item.Title = c.Name
	}
	if len(c.Metadata) > 0 {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate metadata: %w", err)
		}
		item.Metadata = string(meta)
	}

	if err := s.catalog.CreateItem(ctx, item); err != nil {
		return err
	}
	run.NewItems++
	s.log.Info("catalogued new item",
		slog.String("provider", providerID),
		slog.String("path", c.Path),
		slog.String("category", c.Category))
	return nil
}

// updateItem records a content change for an already-known file: size,
// checksum, mtime and metadata are updated in place. This is a change, not
// a new catalog entry.
func (s *IngestService) updateItem(ctx context.Context, item *dbmodels.DownloadItem, c core.CandidateFile, key string, run *core.CheckRun) error {
	item.IdentityKey = key
	item.FileSize = c.Size
	item.Checksum = c.Checksum
	item.FileModTime = c.ModTime
	if c.Version != "" {
		item.Version = c.Version
	}
	if len(c.Metadata) > 0 {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate metadata: %w", err)
		}
		item.Metadata = string(meta)
	}

	if err := s.catalog.UpdateItem(ctx, item); err != nil {
		return err
	}
	run.ChangedItems++
	s.log.Info("updated changed item",
		slog.String("provider", item.ProviderID),
		slog.String("path", item.FilePath))
	return nil
}
