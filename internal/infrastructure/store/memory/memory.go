package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/catalogsync/backend/internal/domain"
)

// ProductStore is a thread-safe in-memory product catalog. It backs dry
// runs, local development and tests when no database is configured.
type ProductStore struct {
	products map[string]domain.Product
	byHandle map[string]string
	links    map[string]map[string]struct{} // product id -> category ids
	mutex    sync.RWMutex
}

// Ensure ProductStore implements ProductStore
var _ domain.ProductStore = (*ProductStore)(nil)

// NewProductStore creates an empty in-memory product store
func NewProductStore() *ProductStore {
	return &ProductStore{
		products: make(map[string]domain.Product),
		byHandle: make(map[string]string),
		links:    make(map[string]map[string]struct{}),
	}
}

// FindByExternalIDsOrHandles returns products matching any external id or handle
func (s *ProductStore) FindByExternalIDsOrHandles(ctx context.Context, externalIDs, handles []string) ([]domain.ExistingProduct, error) {
	return s.find(toSet(externalIDs), toSet(handles)), nil
}

// FindByExternalIDs returns products whose metadata external id is in the set
func (s *ProductStore) FindByExternalIDs(ctx context.Context, externalIDs []string) ([]domain.ExistingProduct, error) {
	return s.find(toSet(externalIDs), nil), nil
}

// FindByHandles returns products whose handle is in the set
func (s *ProductStore) FindByHandles(ctx context.Context, handles []string) ([]domain.ExistingProduct, error) {
	return s.find(nil, toSet(handles)), nil
}

func (s *ProductStore) find(externalIDs, handles map[string]struct{}) []domain.ExistingProduct {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var found []domain.ExistingProduct
	for _, p := range s.products {
		_, idHit := externalIDs[p.Metadata.ExternalID]
		_, handleHit := handles[p.Handle]
		if (idHit && p.Metadata.ExternalID != "") || handleHit {
			found = append(found, domain.ExistingProduct{
				ID:         p.ID,
				Handle:     p.Handle,
				ExternalID: p.Metadata.ExternalID,
			})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found
}

// Upsert applies a batch atomically: every create and update is validated
// before anything is written, so a rejected batch leaves the store unchanged.
func (s *ProductStore) Upsert(ctx context.Context, batch *domain.UpsertBatch) (*domain.UpsertResult, error) {
	if batch == nil {
		return &domain.UpsertResult{}, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	handles := make(map[string]string, len(s.byHandle))
	for h, id := range s.byHandle {
		handles[h] = id
	}

	staged := make([]domain.Product, 0, batch.Len())
	for _, p := range batch.Update {
		current, ok := s.products[p.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, p.ID)
		}
		if owner, taken := handles[p.Handle]; taken && owner != p.ID {
			return nil, fmt.Errorf("%w: %s", domain.ErrHandleConflict, p.Handle)
		}
		delete(handles, current.Handle)
		handles[p.Handle] = p.ID
		staged = append(staged, p)
	}
	for _, p := range batch.Create {
		if _, taken := handles[p.Handle]; taken {
			return nil, fmt.Errorf("%w: %s", domain.ErrHandleConflict, p.Handle)
		}
		p.ID = newID("prod")
		handles[p.Handle] = p.ID
		staged = append(staged, p)
	}

	for _, p := range staged {
		stored, err := clone(p)
		if err != nil {
			return nil, err
		}
		s.products[p.ID] = stored
	}
	s.byHandle = handles

	return &domain.UpsertResult{Created: len(batch.Create), Updated: len(batch.Update)}, nil
}

// ListExternalIDs returns every external id present in the store
func (s *ProductStore) ListExternalIDs(ctx context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]string, 0, len(s.products))
	for _, p := range s.products {
		if p.Metadata.ExternalID != "" {
			ids = append(ids, p.Metadata.ExternalID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListProductCategories returns products with a source category, sorted by id
func (s *ProductStore) ListProductCategories(ctx context.Context) ([]domain.ProductCategories, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []domain.ProductCategories
	for id, p := range s.products {
		if p.Metadata.ExternalCategory == "" {
			continue
		}
		categoryIDs := make([]string, 0, len(s.links[id]))
		for categoryID := range s.links[id] {
			categoryIDs = append(categoryIDs, categoryID)
		}
		sort.Strings(categoryIDs)
		out = append(out, domain.ProductCategories{
			ProductID:        id,
			ExternalID:       p.Metadata.ExternalID,
			ExternalCategory: p.Metadata.ExternalCategory,
			CategoryIDs:      categoryIDs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// LinkCategory attaches a category to a stored product
func (s *ProductStore) LinkCategory(ctx context.Context, productID, categoryID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.products[productID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	if s.links[productID] == nil {
		s.links[productID] = make(map[string]struct{})
	}
	s.links[productID][categoryID] = struct{}{}
	return nil
}

// Get returns a stored product by id
func (s *ProductStore) Get(id string) (domain.Product, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

// Size returns the current number of products (for debugging/monitoring)
func (s *ProductStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.products)
}

// CategoryStore is a thread-safe in-memory category store
type CategoryStore struct {
	categories map[string]domain.Category
	mutex      sync.RWMutex
}

// Ensure CategoryStore implements CategoryStore
var _ domain.CategoryStore = (*CategoryStore)(nil)

// NewCategoryStore creates an empty in-memory category store
func NewCategoryStore() *CategoryStore {
	return &CategoryStore{
		categories: make(map[string]domain.Category),
	}
}

// ListHandles returns the handles of all stored categories
func (s *CategoryStore) ListHandles(ctx context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	handles := make([]string, 0, len(s.categories))
	for h := range s.categories {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles, nil
}

// CreateCategories stores new categories; existing handles are left untouched
func (s *CategoryStore) CreateCategories(ctx context.Context, categories []domain.NewCategory) ([]domain.Category, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	created := make([]domain.Category, 0, len(categories))
	for _, c := range categories {
		if _, exists := s.categories[c.Handle]; exists {
			continue
		}
		category := domain.Category{
			ID:       newID("pcat"),
			Name:     c.Name,
			Handle:   c.Handle,
			Metadata: c.Metadata,
		}
		s.categories[c.Handle] = category
		created = append(created, category)
	}
	return created, nil
}

// ListBySource returns categories whose metadata marks them as synced from source
func (s *CategoryStore) ListBySource(ctx context.Context, source string) ([]domain.Category, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []domain.Category
	for _, c := range s.categories {
		if c.Metadata.SyncedFrom == source {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// clone serializes to JSON and back so stored products never alias caller slices or maps
func clone(p domain.Product) (domain.Product, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return domain.Product{}, err
	}
	var out domain.Product
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.Product{}, err
	}
	return out, nil
}
