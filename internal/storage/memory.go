package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/part-configurator/internal/models"
)

// MemoryRepository keeps records in process memory
type MemoryRepository struct {
	mu       sync.RWMutex
	configs  map[int64]*models.Configuration
	exports  map[int64]*models.Export
	clients  map[string]*models.ApiClient
	nextConf int64
	nextExp  int64
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		configs: make(map[int64]*models.Configuration),
		exports: make(map[int64]*models.Export),
		clients: make(map[string]*models.ApiClient),
	}
}

func copyParams(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyConfiguration(c *models.Configuration) *models.Configuration {
	out := *c
	if c.NumberOfBlocks != nil {
		n := *c.NumberOfBlocks
		out.NumberOfBlocks = &n
	}
	out.GeometryParams = copyParams(c.GeometryParams)
	out.MaterialParams = copyParams(c.MaterialParams)
	out.AdvancedParams = copyParams(c.AdvancedParams)
	return &out
}

func copyExport(e *models.Export) *models.Export {
	out := *e
	return &out
}

func (m *MemoryRepository) CreateConfiguration(ctx context.Context, c *models.Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextConf++
	now := time.Now().UTC()
	c.ID = m.nextConf
	c.CreatedAt = now
	c.UpdatedAt = now
	m.configs[c.ID] = copyConfiguration(c)
	return nil
}

func (m *MemoryRepository) GetConfiguration(ctx context.Context, id int64) (*models.Configuration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.configs[id]
	if !ok {
		return nil, nil
	}
	return copyConfiguration(c), nil
}

func (m *MemoryRepository) UpdateConfiguration(ctx context.Context, c *models.Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.configs[c.ID]; !ok {
		return fmt.Errorf("configuration %d: %w", c.ID, ErrNotFound)
	}
	c.UpdatedAt = time.Now().UTC()
	m.configs[c.ID] = copyConfiguration(c)
	return nil
}

func (m *MemoryRepository) DeleteConfiguration(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.configs, id)
	for eid, e := range m.exports {
		if e.ConfigurationID == id {
			delete(m.exports, eid)
		}
	}
	return nil
}

func (m *MemoryRepository) ListConfigurations(ctx context.Context, page models.Page) ([]*models.Configuration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.configs))
	for id := range m.configs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	out := []*models.Configuration{}
	for _, id := range window(ids, page) {
		out = append(out, copyConfiguration(m.configs[id]))
	}
	return out, nil
}

func (m *MemoryRepository) CreateExport(ctx context.Context, e *models.Export) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.configs[e.ConfigurationID]; !ok {
		return fmt.Errorf("failed to create export: configuration %d does not exist", e.ConfigurationID)
	}
	m.nextExp++
	e.ID = m.nextExp
	e.CreatedAt = time.Now().UTC()
	m.exports[e.ID] = copyExport(e)
	return nil
}

func (m *MemoryRepository) GetExport(ctx context.Context, id int64) (*models.Export, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.exports[id]
	if !ok {
		return nil, nil
	}
	return copyExport(e), nil
}

func (m *MemoryRepository) UpdateExport(ctx context.Context, e *models.Export) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.exports[e.ID]; !ok {
		return fmt.Errorf("export %d: %w", e.ID, ErrNotFound)
	}
	m.exports[e.ID] = copyExport(e)
	return nil
}

func (m *MemoryRepository) ListExportsByConfiguration(ctx context.Context, configID int64, page models.Page) ([]*models.Export, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for id, e := range m.exports {
		if e.ConfigurationID == configID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	out := []*models.Export{}
	for _, id := range window(ids, page) {
		out = append(out, copyExport(m.exports[id]))
	}
	return out, nil
}

func (m *MemoryRepository) ClaimPendingExports(ctx context.Context, limit int) ([]*models.Export, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	for id, e := range m.exports {
		if e.Status == models.ExportPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := []*models.Export{}
	for _, id := range ids {
		e := m.exports[id]
		e.Status = models.ExportProcessing
		out = append(out, copyExport(e))
	}
	return out, nil
}

// AddClient registers an API client
func (m *MemoryRepository) AddClient(c *models.ApiClient) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	cp.Permissions = append([]string(nil), c.Permissions...)
	m.clients[c.ApiKey] = &cp
}

func (m *MemoryRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.clients[apiKey]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[apiKey]; ok {
		now := time.Now().UTC()
		c.LastUsedAt = &now
	}
	return nil
}

func (m *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryRepository) Close() error {
	return nil
}

func window(ids []int64, page models.Page) []int64 {
	if page.Skip >= len(ids) {
		return nil
	}
	ids = ids[page.Skip:]
	if page.Limit > 0 && len(ids) > page.Limit {
		ids = ids[:page.Limit]
	}
	return ids
}
