package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogsync/backend/internal/domain"
	"github.com/catalogsync/backend/internal/infrastructure/retry"
	"github.com/catalogsync/backend/internal/infrastructure/store/memory"
)

func record(i int) domain.SourceRecord {
	return domain.SourceRecord{
		ExternalID:  domain.ExternalID(fmt.Sprint(i)),
		Title:       fmt.Sprintf("Product %d", i),
		Description: "desc",
		Price:       float64(i) + 0.99,
		Category:    "beauty",
		Rating:      4.5,
	}
}

// MockCatalogSource serves a fixed catalog through the skip/limit API
type MockCatalogSource struct {
	mu            sync.Mutex
	records       []domain.SourceRecord
	failAtSkip    int
	pageErr       error
	totalErr      error
	categories    []domain.CategoryRecord
	categoriesErr error
	skips         []int
}

func NewMockCatalogSource(n int) *MockCatalogSource {
	return &MockCatalogSource{
		records:    records(1, n),
		failAtSkip: -1,
		categories: []domain.CategoryRecord{
			{Slug: "beauty", Name: "Beauty", URL: "https://dummyjson.com/products/category/beauty"},
			{Slug: "fragrances", Name: "Fragrances", URL: "https://dummyjson.com/products/category/fragrances"},
		},
	}
}

func (m *MockCatalogSource) FetchPage(ctx context.Context, skip, limit int) (*domain.SourcePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skips = append(m.skips, skip)

	if m.pageErr != nil && skip == m.failAtSkip {
		return nil, m.pageErr
	}

	total := len(m.records)
	page := &domain.SourcePage{Total: &total, Skip: skip, Limit: &limit}
	if skip < total {
		page.Products = m.records[skip:min(skip+limit, total)]
	}
	return page, nil
}

func (m *MockCatalogSource) FetchTotal(ctx context.Context) (int, error) {
	if m.totalErr != nil {
		return 0, m.totalErr
	}
	return len(m.records), nil
}

func (m *MockCatalogSource) FetchCategories(ctx context.Context) ([]domain.CategoryRecord, error) {
	if m.categoriesErr != nil {
		return nil, m.categoriesErr
	}
	return m.categories, nil
}

// MockProductStore wraps the in-memory store with failure injection
type MockProductStore struct {
	*memory.ProductStore
	mu              sync.Mutex
	failExternalID  string
	upsertErr       error
	upsertCalls     int
	bulkLookupErr   error
	idLookupErr     error
	handleLookupErr error
	listErr         error
	linkErr         error
}

func NewMockProductStore() *MockProductStore {
	return &MockProductStore{ProductStore: memory.NewProductStore()}
}

func (m *MockProductStore) Upsert(ctx context.Context, batch *domain.UpsertBatch) (*domain.UpsertResult, error) {
	m.mu.Lock()
	m.upsertCalls++
	m.mu.Unlock()

	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	for _, p := range append(append([]domain.Product{}, batch.Create...), batch.Update...) {
		if m.failExternalID != "" && p.Metadata.ExternalID == m.failExternalID {
			return nil, errors.New("workflow failed")
		}
	}
	return m.ProductStore.Upsert(ctx, batch)
}

func (m *MockProductStore) FindByExternalIDsOrHandles(ctx context.Context, externalIDs, handles []string) ([]domain.ExistingProduct, error) {
	if m.bulkLookupErr != nil {
		return nil, m.bulkLookupErr
	}
	return m.ProductStore.FindByExternalIDsOrHandles(ctx, externalIDs, handles)
}

func (m *MockProductStore) FindByExternalIDs(ctx context.Context, externalIDs []string) ([]domain.ExistingProduct, error) {
	if m.idLookupErr != nil {
		return nil, m.idLookupErr
	}
	return m.ProductStore.FindByExternalIDs(ctx, externalIDs)
}

func (m *MockProductStore) FindByHandles(ctx context.Context, handles []string) ([]domain.ExistingProduct, error) {
	if m.handleLookupErr != nil {
		return nil, m.handleLookupErr
	}
	return m.ProductStore.FindByHandles(ctx, handles)
}

func (m *MockProductStore) ListExternalIDs(ctx context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.ProductStore.ListExternalIDs(ctx)
}

func (m *MockProductStore) LinkCategory(ctx context.Context, productID, categoryID string) error {
	if m.linkErr != nil {
		return m.linkErr
	}
	return m.ProductStore.LinkCategory(ctx, productID, categoryID)
}

func noSleepPolicy(maxRetries int) retry.Policy {
	p := retry.NewPolicy(maxRetries)
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

type fixture struct {
	source     *MockCatalogSource
	products   *MockProductStore
	categories *memory.CategoryStore
	service    *SyncService
}

func newFixture(t *testing.T, n int, cfg SyncConfig) *fixture {
	t.Helper()
	if cfg.ExportDir == "" {
		cfg.ExportDir = t.TempDir()
	}
	f := &fixture{
		source:     NewMockCatalogSource(n),
		products:   NewMockProductStore(),
		categories: memory.NewCategoryStore(),
	}
	f.service = NewSyncService(f.source, f.products, f.categories, cfg, nil)
	f.service.SetRetryPolicy(noSleepPolicy(cfg.MaxRetries))
	return f
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSyncService_Run_EndToEnd(t *testing.T) {
	f := newFixture(t, 22, SyncConfig{PageLimit: 10, BatchSize: 10, MaxRetries: 2})

	summary, err := f.service.Run(context.Background(), "run-1")

	require.NoError(t, err)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 22, summary.Created)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 0, summary.FailedBatches)
	require.NotNil(t, summary.TotalExpected)
	assert.Equal(t, 22, *summary.TotalExpected)
	assert.NotNil(t, summary.FinishedAt)
	assert.Empty(t, summary.Error)

	assert.Equal(t, []int{0, 10, 20}, f.source.skips)
	assert.Equal(t, 3, f.products.upsertCalls)
	assert.Equal(t, 22, f.products.Size())

	rows := readCSV(t, summary.ExportPath)
	require.Len(t, rows, 23)
	assert.Equal(t, []string{"External ID", "Handle", "Title", "Status", "Action"}, rows[0])
	assert.Equal(t, []string{"1", "product-1", "Product 1", "published", "created"}, rows[1])

	categories, err := f.categories.ListBySource(context.Background(), "dummyjson")
	require.NoError(t, err)
	assert.Len(t, categories, 2)
	assert.Equal(t, 22, summary.Linked)
	assert.Equal(t, 0, summary.LinkFailures)
}

func TestSyncService_Run_SecondRunUpdates(t *testing.T) {
	f := newFixture(t, 12, SyncConfig{PageLimit: 30, BatchSize: 10})
	ctx := context.Background()

	_, err := f.service.Run(ctx, "first")
	require.NoError(t, err)

	summary, err := f.service.Run(ctx, "second")

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 12, summary.Updated)
	assert.Equal(t, 12, f.products.Size())

	rows := readCSV(t, summary.ExportPath)
	assert.Equal(t, "updated", rows[1][4])
	assert.Equal(t, 0, summary.Linked, "links from the first run are kept")
}

func TestSyncService_Run_DuplicateTitleIsolated(t *testing.T) {
	f := newFixture(t, 20, SyncConfig{PageLimit: 30, BatchSize: 10, MaxRetries: 2})
	// items 4 and 5 map to the same handle
	f.source.records[3].Title = f.source.records[4].Title
	ctx := context.Background()

	first, err := f.service.Run(ctx, "first")

	require.NoError(t, err)
	assert.Equal(t, 19, first.Created)
	assert.Equal(t, 0, first.FailedBatches)
	assert.Equal(t, 1, first.FailedItems)
	assert.Equal(t, 2, f.products.upsertCalls, "no write is retried")
	assert.Equal(t, 19, f.products.Size())

	found, err := f.products.FindByHandles(ctx, []string{"product-5"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "4", found[0].ExternalID, "the first claim on a handle wins")

	second, err := f.service.Run(ctx, "second")

	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 19, second.Updated)
	assert.Equal(t, 0, second.FailedBatches)
	assert.Equal(t, 1, second.FailedItems)
}

func TestSyncService_Run_PartialFailureIsolated(t *testing.T) {
	f := newFixture(t, 50, SyncConfig{PageLimit: 30, BatchSize: 10, MaxRetries: 2})
	f.products.failExternalID = "11" // first item of batch 2

	summary, err := f.service.Run(context.Background(), "run")

	require.NoError(t, err)
	assert.Equal(t, 5, summary.Batches)
	assert.Equal(t, 40, summary.Created)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, 10, summary.FailedItems)
	// 4 successful writes plus 3 attempts on the failing batch
	assert.Equal(t, 7, f.products.upsertCalls)

	rows := readCSV(t, summary.ExportPath)
	assert.Len(t, rows, 41)
	for _, row := range rows[1:] {
		assert.NotContains(t, []string{"11", "15", "20"}, row[0])
	}
}

func TestSyncService_Run_DryRun(t *testing.T) {
	f := newFixture(t, 15, SyncConfig{PageLimit: 30, BatchSize: 10, DryRun: true})

	summary, err := f.service.Run(context.Background(), "dry")

	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 15, summary.Created)
	assert.Equal(t, 0, f.products.upsertCalls)
	assert.Equal(t, 0, f.products.Size())
	assert.Empty(t, summary.ExportPath)

	handles, err := f.categories.ListHandles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestSyncService_Run_BatchSizeClamped(t *testing.T) {
	tests := []struct {
		name        string
		requested   int
		wantBatches int
	}{
		{"too small", 3, 3},   // 25 items in batches of 10
		{"too large", 500, 2}, // 25 items in batches of 20
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 25, SyncConfig{PageLimit: 30, BatchSize: tt.requested})

			summary, err := f.service.Run(context.Background(), "clamp")

			require.NoError(t, err)
			assert.Equal(t, tt.wantBatches, summary.Batches)
			assert.Equal(t, 25, summary.Created)
		})
	}
}

func TestSyncService_Run_CategoryFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, 10, SyncConfig{BatchSize: 10})
	f.source.categoriesErr = errors.New("categories unavailable")

	summary, err := f.service.Run(context.Background(), "run")

	require.NoError(t, err)
	assert.Equal(t, 10, summary.Created)
}

func TestSyncService_Run_TotalCountFailure(t *testing.T) {
	f := newFixture(t, 10, SyncConfig{BatchSize: 10})
	f.source.totalErr = errors.New("timeout")

	summary, err := f.service.Run(context.Background(), "run")

	require.NoError(t, err)
	assert.Nil(t, summary.TotalExpected)
	assert.Equal(t, 10, summary.Created)
}

func TestSyncService_Run_FetchFailureEndsRun(t *testing.T) {
	f := newFixture(t, 40, SyncConfig{PageLimit: 10, BatchSize: 10})
	f.source.failAtSkip = 20
	f.source.pageErr = domain.NewFetchError(404, "fetch failed 404: not found", false)

	summary, err := f.service.Run(context.Background(), "run")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceAPIFailure)
	assert.Equal(t, 20, summary.Created)
	assert.NotEmpty(t, summary.Error)
	assert.NotNil(t, summary.FinishedAt)

	rows := readCSV(t, summary.ExportPath)
	assert.Len(t, rows, 21)
}

func TestSyncService_Run_LookupUnavailableSkipsBatch(t *testing.T) {
	f := newFixture(t, 10, SyncConfig{BatchSize: 10})
	f.products.bulkLookupErr = errors.New("query builder unavailable")
	f.products.handleLookupErr = errors.New("remote query unavailable")

	summary, err := f.service.Run(context.Background(), "run")

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Created)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.Equal(t, 10, summary.FailedItems)
	assert.Equal(t, 0, f.products.upsertCalls)
}

func TestSyncService_Run_ExportFailureIsNonFatal(t *testing.T) {
	blocker := t.TempDir() + "/file"
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	f := newFixture(t, 10, SyncConfig{BatchSize: 10, ExportDir: blocker + "/exports"})

	summary, err := f.service.Run(context.Background(), "run")

	require.NoError(t, err)
	assert.Equal(t, 10, summary.Created)
	assert.Empty(t, summary.ExportPath)
}

func TestSyncService_Import(t *testing.T) {
	f := newFixture(t, 0, SyncConfig{})
	ctx := context.Background()

	result, err := f.service.Import(ctx, []domain.RawProduct{
		{"external_id": "a-1", "title": "Desk Lamp", "price": "19.99", "images": "a.png,b.png"},
		{"id": 7.0, "title": "Chair"},
	})
	require.NoError(t, err)
	assert.Equal(t, &domain.ImportResult{Created: 2}, result)

	result, err = f.service.Import(ctx, []domain.RawProduct{
		{"external_id": "a-1", "title": "Desk Lamp Pro"},
	})
	require.NoError(t, err)
	assert.Equal(t, &domain.ImportResult{Updated: 1}, result)
	assert.Equal(t, 2, f.products.Size())
}

func TestSyncService_Import_DryRun(t *testing.T) {
	f := newFixture(t, 0, SyncConfig{DryRun: true})

	result, err := f.service.Import(context.Background(), []domain.RawProduct{
		{"external_id": "a-1", "title": "Desk Lamp"},
		{"external_id": "a-2", "title": "Desk Lamp"},
	})

	require.NoError(t, err)
	assert.Equal(t, &domain.ImportResult{Created: 1, Rejected: 1, DryRun: true}, result)
	assert.Equal(t, 0, f.products.upsertCalls)
	assert.Equal(t, 0, f.products.Size())
}

func TestSyncService_Import_Invalid(t *testing.T) {
	f := newFixture(t, 0, SyncConfig{})
	ctx := context.Background()

	_, err := f.service.Import(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.service.Import(ctx, []domain.RawProduct{{"title": "no id"}})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, 0, f.products.upsertCalls)
}

func TestSyncService_MissingProducts(t *testing.T) {
	f := newFixture(t, 5, SyncConfig{})
	ctx := context.Background()
	_, err := f.products.Upsert(ctx, &domain.UpsertBatch{Create: []domain.Product{
		{Handle: "product-1", Metadata: domain.ProductMetadata{ExternalID: "1"}},
		{Handle: "product-4", Metadata: domain.ProductMetadata{ExternalID: "4"}},
	}})
	require.NoError(t, err)

	missing, err := f.service.MissingProducts(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "5"}, missing)
	assert.Equal(t, []int{0}, f.source.skips)
}

func TestSyncService_MissingProducts_StoreError(t *testing.T) {
	f := newFixture(t, 5, SyncConfig{})
	f.products.listErr = errors.New("db down")

	_, err := f.service.MissingProducts(context.Background())

	assert.ErrorContains(t, err, "db down")
}
