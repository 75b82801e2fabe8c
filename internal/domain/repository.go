package domain

import "context"

// CatalogSource defines the interface for reading the external product catalog
type CatalogSource interface {
	FetchPage(ctx context.Context, skip, limit int) (*SourcePage, error)
	FetchTotal(ctx context.Context) (int, error)
	FetchCategories(ctx context.Context) ([]CategoryRecord, error)
}

// ProductStore defines the destination product catalog operations
type ProductStore interface {
	// FindByExternalIDsOrHandles is a single bulk lookup matching either key space
	FindByExternalIDsOrHandles(ctx context.Context, externalIDs, handles []string) ([]ExistingProduct, error)
	FindByExternalIDs(ctx context.Context, externalIDs []string) ([]ExistingProduct, error)
	FindByHandles(ctx context.Context, handles []string) ([]ExistingProduct, error)
	Upsert(ctx context.Context, batch *UpsertBatch) (*UpsertResult, error)
	ListExternalIDs(ctx context.Context) ([]string, error)
	// ListProductCategories returns every product carrying a source category
	ListProductCategories(ctx context.Context) ([]ProductCategories, error)
	// LinkCategory attaches a category to a product; linking twice is a no-op
	LinkCategory(ctx context.Context, productID, categoryID string) error
}

// CategoryStore defines the destination category operations
type CategoryStore interface {
	ListHandles(ctx context.Context) ([]string, error)
	// CreateCategories creates the given categories; handles that already
	// exist are skipped and not returned
	CreateCategories(ctx context.Context, categories []NewCategory) ([]Category, error)
	ListBySource(ctx context.Context, source string) ([]Category, error)
}
