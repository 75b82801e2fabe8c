package usecase

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/catalogsync/backend/internal/domain"
	"github.com/catalogsync/backend/internal/infrastructure/dummyjson"
)

// CategoryLinkReport lists the link outcome of every product with a source category
type CategoryLinkReport struct {
	Links  []domain.CategoryLink `json:"links"`
	DryRun bool                  `json:"dry_run"`
}

// Count returns the number of links with the given status
func (r *CategoryLinkReport) Count(status string) int {
	n := 0
	for _, link := range r.Links {
		if link.Status == status {
			n++
		}
	}
	return n
}

// CategoryLinker attaches synced products to the category named by their
// metadata.external_category. Linking is best-effort per product.
type CategoryLinker struct {
	products   domain.ProductStore
	categories domain.CategoryStore
	sourceName string
	dryRun     bool
	logger     *zap.Logger
}

func NewCategoryLinker(products domain.ProductStore, categories domain.CategoryStore, sourceName string, dryRun bool, logger *zap.Logger) *CategoryLinker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryLinker{
		products:   products,
		categories: categories,
		sourceName: sourceName,
		dryRun:     dryRun,
		logger:     logger.Named("links"),
	}
}

// Link matches products to categories synced from the source by handle.
// Only failing to read products or categories is returned as an error.
func (l *CategoryLinker) Link(ctx context.Context) (*CategoryLinkReport, error) {
	categories, err := l.categories.ListBySource(ctx, l.sourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	byHandle := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		byHandle[c.Handle] = c
	}

	candidates, err := l.products.ListProductCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list product categories: %w", err)
	}

	report := &CategoryLinkReport{DryRun: l.dryRun, Links: make([]domain.CategoryLink, 0, len(candidates))}
	for _, pc := range candidates {
		link := domain.CategoryLink{
			ExternalID: pc.ExternalID,
			ProductID:  pc.ProductID,
			Category:   pc.ExternalCategory,
		}

		category, ok := byHandle[dummyjson.Slugify(pc.ExternalCategory)]
		if ok {
			link.CategoryID = category.ID
		}

		switch {
		case !ok:
			link.Status = domain.LinkCategoryMissing
		case slices.Contains(pc.CategoryIDs, category.ID):
			link.Status = domain.LinkAlreadyLinked
		case l.dryRun:
			link.Status = domain.LinkDryRunWouldLink
		default:
			if err := l.products.LinkCategory(ctx, pc.ProductID, category.ID); err != nil {
				link.Status = domain.LinkFailed
				link.Error = err.Error()
				l.logger.Warn("failed to link product to category",
					zap.String("product_id", pc.ProductID),
					zap.String("external_id", pc.ExternalID),
					zap.String("category", pc.ExternalCategory),
					zap.Error(err),
				)
			} else {
				link.Status = domain.LinkLinked
			}
		}
		report.Links = append(report.Links, link)
	}

	l.logger.Info("category linking finished",
		zap.Bool("dry_run", l.dryRun),
		zap.Int("products", len(report.Links)),
		zap.Int(domain.LinkLinked, report.Count(domain.LinkLinked)),
		zap.Int(domain.LinkAlreadyLinked, report.Count(domain.LinkAlreadyLinked)),
		zap.Int(domain.LinkDryRunWouldLink, report.Count(domain.LinkDryRunWouldLink)),
		zap.Int(domain.LinkCategoryMissing, report.Count(domain.LinkCategoryMissing)),
		zap.Int(domain.LinkFailed, report.Count(domain.LinkFailed)),
	)
	return report, nil
}
