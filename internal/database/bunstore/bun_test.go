package bunstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/database"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/database/models"
)

func newTestStore(t *testing.T) *BunStore {
	t.Helper()
	sqldb, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	store, err := New(sqldb, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testProvider(id string) *models.Provider {
	return &models.Provider{
		ID:      id,
		Name:    id,
		Type:    core.TypeLocalFolder,
		Enabled: true,
		Status:  core.StatusActive,
		Config:  `{"watchPath": "/data"}`,
	}
}

func testItem(providerID, path string) *models.DownloadItem {
	return &models.DownloadItem{
		ID:          uuid.New().String(),
		ProviderID:  providerID,
		IdentityKey: uuid.New().String(),
		Category:    "drivers",
		FileName:    filepath.Base(path),
		FilePath:    path,
		FileSize:    100,
	}
}

func TestBunStore_ProviderLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateProvider(ctx, testProvider("p1")))

	got, err := store.GetProvider(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusActive, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	got.Status = core.StatusError
	got.LastErrorKind = string(core.ErrKindTimeout)
	got.LastErrorMessage = "check timed out"
	now := time.Now()
	got.LastCheck = &now
	require.NoError(t, store.UpdateProvider(ctx, got))

	got, err = store.GetProvider(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, got.Status)
	assert.Equal(t, "check timed out", got.LastErrorMessage)
	require.NotNil(t, got.LastCheck)

	_, err = store.GetProvider(ctx, "ghost")
	assert.ErrorIs(t, err, database.ErrNotFound)

	err = store.UpdateProvider(ctx, testProvider("ghost"))
	assert.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, store.CreateProvider(ctx, testProvider("p2")))
	providers, err := store.ListProviders(ctx)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "p1", providers[0].ID)
}

func TestBunStore_ItemLookups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateProvider(ctx, testProvider("p1")))

	item := testItem("p1", "drivers/a.zip")
	require.NoError(t, store.CreateItem(ctx, item))

	byID, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "drivers/a.zip", byID.FilePath)

	byIdentity, err := store.GetItemByIdentity(ctx, "p1", item.IdentityKey)
	require.NoError(t, err)
	assert.Equal(t, item.ID, byIdentity.ID)

	// The identity key is scoped per provider.
	_, err = store.GetItemByIdentity(ctx, "p2", item.IdentityKey)
	assert.ErrorIs(t, err, database.ErrNotFound)

	byPath, err := store.GetItemByPath(ctx, "p1", "drivers/a.zip")
	require.NoError(t, err)
	assert.Equal(t, item.ID, byPath.ID)

	_, err = store.GetItemByPath(ctx, "p1", "drivers/missing.zip")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestBunStore_DuplicatePathIsRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateProvider(ctx, testProvider("p1")))

	require.NoError(t, store.CreateItem(ctx, testItem("p1", "drivers/a.zip")))
	// Second row for the same provider and path violates the unique
	// constraint.
	err := store.CreateItem(ctx, testItem("p1", "drivers/a.zip"))
	require.Error(t, err)

	// The same path under another provider is fine.
	require.NoError(t, store.CreateProvider(ctx, testProvider("p2")))
	require.NoError(t, store.CreateItem(ctx, testItem("p2", "drivers/a.zip")))
}

func TestBunStore_UpdateItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateProvider(ctx, testProvider("p1")))

	item := testItem("p1", "a.zip")
	require.NoError(t, store.CreateItem(ctx, item))

	item.FileSize = 999
	item.IdentityKey = "moved"
	require.NoError(t, store.UpdateItem(ctx, item))

	got, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(999), got.FileSize)
	assert.Equal(t, "moved", got.IdentityKey)
}

func TestBunStore_ListItemsFilterAndPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateProvider(ctx, testProvider("p1")))
	require.NoError(t, store.CreateProvider(ctx, testProvider("p2")))

	for i := 0; i < 5; i++ {
		it := testItem("p1", fmt.Sprintf("drivers/d%d.zip", i))
		it.FileSize = int64(i)
		require.NoError(t, store.CreateItem(ctx, it))
	}
	fw := testItem("p1", "firmware/fw.bin")
	fw.Category = "firmware"
	require.NoError(t, store.CreateItem(ctx, fw))
	require.NoError(t, store.CreateItem(ctx, testItem("p2", "other.zip")))

	items, total, err := store.ListItems(ctx, database.ItemFilter{ProviderID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, items, 6)

	items, total, err = store.ListItems(ctx, database.ItemFilter{ProviderID: "p1", Category: "firmware"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "firmware/fw.bin", items[0].FilePath)

	// Paging: two per page over the five driver items, sorted by size.
	filter := database.ItemFilter{ProviderID: "p1", Category: "drivers", Sort: "file_size", Limit: 2}
	filter.Page = 1
	items, total, err = store.ListItems(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, "drivers/d0.zip", items[0].FilePath)

	filter.Page = 3
	items, _, err = store.ListItems(ctx, filter)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "drivers/d4.zip", items[0].FilePath)

	// Unknown sort fields fall back instead of reaching the SQL.
	_, _, err = store.ListItems(ctx, database.ItemFilter{Sort: "1; drop table download_items"})
	require.NoError(t, err)
}

func TestBunStore_DeleteItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateProvider(ctx, testProvider("p1")))

	item := testItem("p1", "a.zip")
	require.NoError(t, store.CreateItem(ctx, item))
	require.NoError(t, store.DeleteItem(ctx, item.ID))
	assert.ErrorIs(t, store.DeleteItem(ctx, item.ID), database.ErrNotFound)
}

func TestBunStore_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateProvider(ctx, testProvider("p1")))
	require.NoError(t, store.CreateProvider(ctx, testProvider("p2")))

	require.NoError(t, store.CreateItem(ctx, testItem("p1", "drivers/a.zip")))
	require.NoError(t, store.CreateItem(ctx, testItem("p1", "drivers/b.zip")))
	fw := testItem("p2", "fw.bin")
	fw.Category = "firmware"
	require.NoError(t, store.CreateItem(ctx, fw))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByProvider["p1"])
	assert.Equal(t, 1, stats.ByProvider["p2"])
	assert.Equal(t, 2, stats.ByCategory["drivers"])
	assert.Equal(t, 1, stats.ByCategory["firmware"])
}

func TestBunStore_CheckRunLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateProvider(ctx, testProvider("p1")))

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendCheckRun(ctx, &models.CheckRunRecord{
			ProviderID: "p1",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Outcome:    core.OutcomeSuccess,
			NewItems:   i,
		}))
	}
	require.NoError(t, store.AppendCheckRun(ctx, &models.CheckRunRecord{
		ProviderID:   "p2",
		StartedAt:    base,
		Outcome:      core.OutcomeFailure,
		ErrorKind:    string(core.ErrKindAuth),
		ErrorMessage: "login rejected",
	}))

	runs, err := store.ListCheckRuns(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Newest first.
	assert.Equal(t, 2, runs[0].NewItems)
	assert.Equal(t, 1, runs[1].NewItems)

	all, err := store.ListCheckRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
