package service

import (
	"context"
	"sync"
	"sync/atomic"

	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/ports"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/database"
	dbmodels "github.com/IAM-NET-GmbH/fileserver-sub001/internal/database/models"
)

// memProviderRepo is an in-memory database.ProviderRepository.
type memProviderRepo struct {
	mu        sync.Mutex
	providers map[string]dbmodels.Provider
}

func newMemProviderRepo() *memProviderRepo {
	return &memProviderRepo{providers: make(map[string]dbmodels.Provider)}
}

func (r *memProviderRepo) CreateProvider(_ context.Context, p *dbmodels.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.ID]; ok {
		return database.ErrAlreadyExists
	}
	r.providers[p.ID] = *p
	return nil
}

func (r *memProviderRepo) GetProvider(_ context.Context, id string) (*dbmodels.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (r *memProviderRepo) ListProviders(_ context.Context) ([]*dbmodels.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*dbmodels.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		cp := p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memProviderRepo) UpdateProvider(_ context.Context, p *dbmodels.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.ID]; !ok {
		return database.ErrNotFound
	}
	r.providers[p.ID] = *p
	return nil
}

// memCatalog is an in-memory database.CatalogRepository.
type memCatalog struct {
	mu    sync.Mutex
	items map[string]dbmodels.DownloadItem
}

func newMemCatalog() *memCatalog {
	return &memCatalog{items: make(map[string]dbmodels.DownloadItem)}
}

func (c *memCatalog) CreateItem(_ context.Context, item *dbmodels.DownloadItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		if it.ProviderID == item.ProviderID && it.FilePath == item.FilePath {
			return database.ErrAlreadyExists
		}
	}
	c.items[item.ID] = *item
	return nil
}

func (c *memCatalog) UpdateItem(_ context.Context, item *dbmodels.DownloadItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[item.ID]; !ok {
		return database.ErrNotFound
	}
	c.items[item.ID] = *item
	return nil
}

func (c *memCatalog) GetItem(_ context.Context, id string) (*dbmodels.DownloadItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := it
	return &cp, nil
}

func (c *memCatalog) GetItemByIdentity(_ context.Context, providerID, key string) (*dbmodels.DownloadItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		if it.ProviderID == providerID && it.IdentityKey == key {
			cp := it
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (c *memCatalog) GetItemByPath(_ context.Context, providerID, filePath string) (*dbmodels.DownloadItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		if it.ProviderID == providerID && it.FilePath == filePath {
			cp := it
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (c *memCatalog) ListItems(_ context.Context, filter database.ItemFilter) ([]*dbmodels.DownloadItem, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*dbmodels.DownloadItem
	for _, it := range c.items {
		if filter.ProviderID != "" && it.ProviderID != filter.ProviderID {
			continue
		}
		if filter.Category != "" && it.Category != filter.Category {
			continue
		}
		cp := it
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (c *memCatalog) DeleteItem(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return database.ErrNotFound
	}
	delete(c.items, id)
	return nil
}

func (c *memCatalog) Stats(_ context.Context) (*database.CatalogStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := &database.CatalogStats{
		Total:      len(c.items),
		ByProvider: make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, it := range c.items {
		stats.ByProvider[it.ProviderID]++
		stats.ByCategory[it.Category]++
	}
	return stats, nil
}

func (c *memCatalog) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// memRuns is an in-memory activity log.
type memRuns struct {
	mu   sync.Mutex
	recs []*dbmodels.CheckRunRecord
}

func (r *memRuns) AppendCheckRun(_ context.Context, rec *dbmodels.CheckRunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *memRuns) ListCheckRuns(_ context.Context, providerID string, _ int) ([]*dbmodels.CheckRunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*dbmodels.CheckRunRecord
	for _, rec := range r.recs {
		if providerID == "" || rec.ProviderID == providerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// fakeNotifier records events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []core.Event
}

func (n *fakeNotifier) Notify(_ context.Context, event core.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) byType(t core.EventType) []core.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []core.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeAdapter is a controllable ports.Adapter. When block is set, Discover
// parks until the channel is closed (or the context expires), which lets
// tests hold checks open.
type fakeAdapter struct {
	authErr     error
	discovery   *ports.Discovery
	discoverErr error
	block       chan struct{}

	calls      atomic.Int32
	concurrent atomic.Int32
	maxSeen    atomic.Int32
}

func (a *fakeAdapter) Authenticate(_ context.Context) (ports.Session, error) {
	if a.authErr != nil {
		return nil, a.authErr
	}
	return nil, nil
}

func (a *fakeAdapter) Discover(ctx context.Context, _ ports.Session) (*ports.Discovery, error) {
	a.calls.Add(1)
	cur := a.concurrent.Add(1)
	defer a.concurrent.Add(-1)
	for {
		max := a.maxSeen.Load()
		if cur <= max || a.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}

	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.discoverErr != nil {
		return a.discovery, a.discoverErr
	}
	if a.discovery != nil {
		return a.discovery, nil
	}
	return &ports.Discovery{}, nil
}

// fakeFactory hands out one adapter per provider id, falling back to a
// shared default.
type fakeFactory struct {
	mu       sync.Mutex
	adapters map[string]ports.Adapter
	fallback ports.Adapter
}

func (f *fakeFactory) AdapterFor(p *dbmodels.Provider) (ports.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.adapters[p.ID]; ok {
		return a, nil
	}
	return f.fallback, nil
}
