package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/catalogsync/backend/internal/domain"
)

// CategorySyncResult summarizes one category sync pass
type CategorySyncResult struct {
	Fetched int
	Staged  int
	Created int
	DryRun  bool
}

// CategorySyncer mirrors the source category taxonomy into the destination.
// Categories are created once per slug and never updated.
type CategorySyncer struct {
	source     domain.CatalogSource
	categories domain.CategoryStore
	sourceName string
	dryRun     bool
	logger     *zap.Logger
}

func NewCategorySyncer(source domain.CatalogSource, categories domain.CategoryStore, sourceName string, dryRun bool, logger *zap.Logger) *CategorySyncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategorySyncer{
		source:     source,
		categories: categories,
		sourceName: sourceName,
		dryRun:     dryRun,
		logger:     logger.Named("categories"),
	}
}

// Sync stages every unknown slug and creates them in one bulk call.
// Failing to read existing handles is tolerated; every slug is then staged.
func (s *CategorySyncer) Sync(ctx context.Context) (*CategorySyncResult, error) {
	remote, err := s.source.FetchCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	result := &CategorySyncResult{Fetched: len(remote), DryRun: s.dryRun}

	existing := make(map[string]bool)
	handles, err := s.categories.ListHandles(ctx)
	if err != nil {
		s.logger.Warn("could not fetch existing categories", zap.Error(err))
	}
	for _, h := range handles {
		existing[h] = true
	}

	var staged []domain.NewCategory
	for _, c := range remote {
		if c.Slug == "" || existing[c.Slug] {
			continue
		}
		existing[c.Slug] = true
		staged = append(staged, domain.NewCategory{
			Name:   c.Name,
			Handle: c.Slug,
			Metadata: domain.CategoryMetadata{
				URL:        c.URL,
				SyncedFrom: s.sourceName,
			},
		})
	}
	result.Staged = len(staged)

	if len(staged) == 0 {
		s.logger.Info("all categories already exist", zap.Int("fetched", result.Fetched))
		return result, nil
	}

	if s.dryRun {
		s.logger.Info("dry run, skipping category creation", zap.Int("staged", result.Staged))
		return result, nil
	}

	created, err := s.categories.CreateCategories(ctx, staged)
	if err != nil {
		return result, fmt.Errorf("failed to create categories: %w", err)
	}
	result.Created = len(created)

	s.logger.Info("created categories", zap.Int("staged", result.Staged), zap.Int("created", result.Created))
	return result, nil
}
