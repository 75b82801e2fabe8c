package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/catalogsync/backend/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	handle TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	options JSONB NOT NULL DEFAULT '[]',
	variants JSONB NOT NULL DEFAULT '[]',
	images JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS products_external_id_idx ON products ((metadata->>'external_id'));

CREATE TABLE IF NOT EXISTS product_categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	handle TEXT NOT NULL UNIQUE,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS product_category_links (
	product_id TEXT NOT NULL REFERENCES products (id) ON DELETE CASCADE,
	category_id TEXT NOT NULL REFERENCES product_categories (id) ON DELETE CASCADE,
	PRIMARY KEY (product_id, category_id)
);
`

// Open connects to Postgres and verifies the connection
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return db, nil
}

// EnsureSchema creates the product and category tables if missing
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// ProductStore implements domain.ProductStore using PostgreSQL
type ProductStore struct {
	db *sql.DB
}

var _ domain.ProductStore = (*ProductStore)(nil)

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

const selectExisting = `SELECT id, handle, COALESCE(metadata->>'external_id', '') FROM products`

// FindByExternalIDsOrHandles runs the single bulk OR lookup
func (s *ProductStore) FindByExternalIDsOrHandles(ctx context.Context, externalIDs, handles []string) ([]domain.ExistingProduct, error) {
	return s.queryExisting(ctx,
		selectExisting+` WHERE metadata->>'external_id' = ANY($1) OR handle = ANY($2)`,
		pq.Array(externalIDs), pq.Array(handles))
}

func (s *ProductStore) FindByExternalIDs(ctx context.Context, externalIDs []string) ([]domain.ExistingProduct, error) {
	return s.queryExisting(ctx, selectExisting+` WHERE metadata->>'external_id' = ANY($1)`, pq.Array(externalIDs))
}

func (s *ProductStore) FindByHandles(ctx context.Context, handles []string) ([]domain.ExistingProduct, error) {
	return s.queryExisting(ctx, selectExisting+` WHERE handle = ANY($1)`, pq.Array(handles))
}

func (s *ProductStore) queryExisting(ctx context.Context, query string, args ...any) ([]domain.ExistingProduct, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var found []domain.ExistingProduct
	for rows.Next() {
		var p domain.ExistingProduct
		if err := rows.Scan(&p.ID, &p.Handle, &p.ExternalID); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		found = append(found, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	return found, nil
}

const (
	insertProduct = `
		INSERT INTO products (id, handle, title, description, status, metadata, options, variants, images)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateProduct = `
		UPDATE products
		SET handle = $2, title = $3, description = $4, status = $5,
			metadata = $6, options = $7, variants = $8, images = $9, updated_at = NOW()
		WHERE id = $1`
)

// Upsert writes one batch in a single transaction. A handle collision or an
// unknown update id rolls the whole batch back.
func (s *ProductStore) Upsert(ctx context.Context, batch *domain.UpsertBatch) (*domain.UpsertResult, error) {
	if batch.Len() == 0 {
		return &domain.UpsertResult{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range batch.Update {
		args, err := productArgs(p.ID, p)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx, updateProduct, args...)
		if err != nil {
			return nil, classifyWriteError(err, p.Handle)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, p.ID)
		}
	}

	for _, p := range batch.Create {
		args, err := productArgs("prod_"+uuid.NewString(), p)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, insertProduct, args...); err != nil {
			return nil, classifyWriteError(err, p.Handle)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return &domain.UpsertResult{Created: len(batch.Create), Updated: len(batch.Update)}, nil
}

// ListExternalIDs returns every external id recorded in product metadata
func (s *ProductStore) ListExternalIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metadata->>'external_id' FROM products WHERE COALESCE(metadata->>'external_id', '') <> '' ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to list external ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListProductCategories returns every product with a source category and
// the categories it is linked to
func (s *ProductStore) ListProductCategories(ctx context.Context) ([]domain.ProductCategories, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id,
			COALESCE(p.metadata->>'external_id', ''),
			p.metadata->>'external_category',
			COALESCE(array_agg(l.category_id ORDER BY l.category_id) FILTER (WHERE l.category_id IS NOT NULL), '{}')
		FROM products p
		LEFT JOIN product_category_links l ON l.product_id = p.id
		WHERE COALESCE(p.metadata->>'external_category', '') <> ''
		GROUP BY p.id
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list product categories: %w", err)
	}
	defer rows.Close()

	var out []domain.ProductCategories
	for rows.Next() {
		var pc domain.ProductCategories
		var categoryIDs pq.StringArray
		if err := rows.Scan(&pc.ProductID, &pc.ExternalID, &pc.ExternalCategory, &categoryIDs); err != nil {
			return nil, fmt.Errorf("failed to scan product categories: %w", err)
		}
		pc.CategoryIDs = []string(categoryIDs)
		out = append(out, pc)
	}
	return out, rows.Err()
}

const linkCategory = `
	INSERT INTO product_category_links (product_id, category_id)
	VALUES ($1, $2)
	ON CONFLICT DO NOTHING`

// LinkCategory records a product/category link
func (s *ProductStore) LinkCategory(ctx context.Context, productID, categoryID string) error {
	if _, err := s.db.ExecContext(ctx, linkCategory, productID, categoryID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return fmt.Errorf("%w: %s or category %s", domain.ErrProductNotFound, productID, categoryID)
		}
		return fmt.Errorf("failed to link product %s: %w", productID, err)
	}
	return nil
}

func productArgs(id string, p domain.Product) ([]any, error) {
	args := []any{id, p.Handle, p.Title, p.Description, p.Status}
	for _, v := range []any{p.Metadata, p.Options, p.Variants, p.Images} {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode product %s: %w", p.Handle, err)
		}
		args = append(args, data)
	}
	return args, nil
}

func classifyWriteError(err error, handle string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrHandleConflict, handle)
	}
	return fmt.Errorf("failed to write product %s: %w", handle, err)
}

// CategoryStore implements domain.CategoryStore using PostgreSQL
type CategoryStore struct {
	db *sql.DB
}

var _ domain.CategoryStore = (*CategoryStore)(nil)

func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

func (s *CategoryStore) ListHandles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT handle FROM product_categories ORDER BY handle`)
	if err != nil {
		return nil, fmt.Errorf("failed to list category handles: %w", err)
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan category handle: %w", err)
		}
		handles = append(handles, h)
	}
	return handles, rows.Err()
}

const insertCategory = `
	INSERT INTO product_categories (id, name, handle, metadata)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (handle) DO NOTHING
	RETURNING id`

// CreateCategories inserts the categories in one transaction; handles that
// already exist are skipped
func (s *CategoryStore) CreateCategories(ctx context.Context, categories []domain.NewCategory) ([]domain.Category, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	created := make([]domain.Category, 0, len(categories))
	for _, c := range categories {
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode category %s: %w", c.Handle, err)
		}

		var id string
		err = tx.QueryRowContext(ctx, insertCategory, "pcat_"+uuid.NewString(), c.Name, c.Handle, metadata).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create category %s: %w", c.Handle, err)
		}
		created = append(created, domain.Category{ID: id, Name: c.Name, Handle: c.Handle, Metadata: c.Metadata})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit categories: %w", err)
	}
	return created, nil
}

func (s *CategoryStore) ListBySource(ctx context.Context, source string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, handle, metadata FROM product_categories WHERE metadata->>'synced_from' = $1 ORDER BY handle`,
		source)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.Handle, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode category metadata: %w", err)
			}
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
