package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/catalogsync/backend/internal/domain"
)

// LookupStrategy finds persisted products matching either key space.
// A returned error means the strategy is unavailable, not "no matches".
type LookupStrategy struct {
	Name string
	Find func(ctx context.Context, externalIDs, handles []string) ([]domain.ExistingProduct, error)
}

// BulkLookup queries both key spaces in one OR query
func BulkLookup(store domain.ProductStore) LookupStrategy {
	return LookupStrategy{
		Name: "bulk",
		Find: store.FindByExternalIDsOrHandles,
	}
}

// SplitLookup queries each key space separately and merges the results.
// Both queries must succeed.
func SplitLookup(store domain.ProductStore) LookupStrategy {
	return LookupStrategy{
		Name: "split",
		Find: func(ctx context.Context, externalIDs, handles []string) ([]domain.ExistingProduct, error) {
			byID, err := store.FindByExternalIDs(ctx, externalIDs)
			if err != nil {
				return nil, fmt.Errorf("external id lookup: %w", err)
			}
			byHandle, err := store.FindByHandles(ctx, handles)
			if err != nil {
				return nil, fmt.Errorf("handle lookup: %w", err)
			}

			seen := make(map[string]bool, len(byID)+len(byHandle))
			merged := make([]domain.ExistingProduct, 0, len(byID)+len(byHandle))
			for _, p := range append(byID, byHandle...) {
				if seen[p.ID] {
					continue
				}
				seen[p.ID] = true
				merged = append(merged, p)
			}
			return merged, nil
		},
	}
}

// Reconciler partitions mapped products into creates and updates by
// matching them against the store, external id first, then handle
type Reconciler struct {
	strategies []LookupStrategy
	assumeNew  bool
	logger     *zap.Logger
}

// NewReconciler creates a reconciler trying the given strategies in order.
// When assumeNew is set and every strategy fails, all items are treated as
// creates instead of failing the batch.
func NewReconciler(strategies []LookupStrategy, assumeNew bool, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		strategies: strategies,
		assumeNew:  assumeNew,
		logger:     logger,
	}
}

// Reconcile decides create or update for every product. Updates carry the
// matched entity's id and a full copy of the freshly mapped fields.
func (r *Reconciler) Reconcile(ctx context.Context, products []domain.Product) (*domain.UpsertBatch, error) {
	externalIDs := make([]string, 0, len(products))
	handles := make([]string, 0, len(products))
	for _, p := range products {
		externalIDs = append(externalIDs, p.Metadata.ExternalID)
		handles = append(handles, p.Handle)
	}

	existing, err := r.lookup(ctx, externalIDs, handles)
	if err != nil {
		return nil, err
	}

	byExternalID := make(map[string]domain.ExistingProduct, len(existing))
	byHandle := make(map[string]domain.ExistingProduct, len(existing))
	for _, e := range existing {
		if e.ExternalID != "" {
			byExternalID[e.ExternalID] = e
		}
		if e.Handle != "" {
			byHandle[e.Handle] = e
		}
	}

	batch := &domain.UpsertBatch{}
	claimed := make(map[string]string, len(products)) // handle -> external id
	for _, p := range products {
		match, ok := byExternalID[p.Metadata.ExternalID]
		if !ok {
			match, ok = byHandle[p.Handle]
		}

		if reason := r.collision(p, match, ok, byHandle, claimed); reason != "" {
			r.logger.Warn("product withheld from batch",
				zap.String("external_id", p.Metadata.ExternalID),
				zap.String("handle", p.Handle),
				zap.String("reason", reason),
			)
			if ok {
				p.ID = match.ID
			}
			batch.Rejected = append(batch.Rejected, domain.RejectedProduct{Product: p, Reason: reason})
			continue
		}
		claimed[p.Handle] = p.Metadata.ExternalID

		if ok {
			p.ID = match.ID
			batch.Update = append(batch.Update, p)
		} else {
			p.ID = ""
			batch.Create = append(batch.Create, p)
		}
	}
	return batch, nil
}

// collision explains why p cannot be written alongside the rest of the
// batch, or returns "" when it can. A handle may be claimed once per batch
// and never taken from a product other than the matched one.
func (r *Reconciler) collision(p domain.Product, match domain.ExistingProduct, matched bool, byHandle map[string]domain.ExistingProduct, claimed map[string]string) string {
	if other, taken := claimed[p.Handle]; taken {
		return fmt.Sprintf("handle %q already claimed in this batch by external id %s", p.Handle, other)
	}
	if owner, exists := byHandle[p.Handle]; exists && matched && owner.ID != match.ID {
		return fmt.Sprintf("handle %q belongs to product %s", p.Handle, owner.ID)
	}
	return ""
}

func (r *Reconciler) lookup(ctx context.Context, externalIDs, handles []string) ([]domain.ExistingProduct, error) {
	var errs []error
	for _, strategy := range r.strategies {
		existing, err := strategy.Find(ctx, externalIDs, handles)
		if err == nil {
			return existing, nil
		}
		r.logger.Warn("existing product lookup failed",
			zap.String("strategy", strategy.Name),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", strategy.Name, err))
	}

	if r.assumeNew {
		r.logger.Warn("all lookup strategies failed, treating batch as new products")
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrLookupUnavailable, errors.Join(errs...))
}
