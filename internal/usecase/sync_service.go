package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"

	"github.com/catalogsync/backend/internal/domain"
	"github.com/catalogsync/backend/internal/infrastructure/dummyjson"
	"github.com/catalogsync/backend/internal/infrastructure/retry"
)

// missingScanPageLimit is the page size used when scanning for missing products
const missingScanPageLimit = 100

// SyncConfig holds the sync pipeline settings
type SyncConfig struct {
	SourceName string
	PageLimit  int
	PageDelay  time.Duration
	// BatchSize is clamped into [MinBatchSize, MaxBatchSize]
	BatchSize  int
	MaxRetries int
	DryRun     bool
	Verbose    bool
	Currency   string
	ExportDir  string
	// AssumeNewOnLookupFailure creates every item of a batch whose lookup
	// strategies all failed instead of skipping the batch
	AssumeNewOnLookupFailure bool
}

// SyncService orchestrates a catalog sync run: categories first, then
// paginated batches that are mapped, reconciled and written with retry,
// then products are linked to their categories
type SyncService struct {
	source     domain.CatalogSource
	products   domain.ProductStore
	cfg        SyncConfig
	categories *CategorySyncer
	linker     *CategoryLinker
	reconciler *Reconciler
	exporter   *AuditExporter
	retry      retry.Policy
	dumper     *spew.ConfigState
	logger     *zap.Logger
}

// NewSyncService creates a sync service with dependencies
func NewSyncService(
	source domain.CatalogSource,
	products domain.ProductStore,
	categories domain.CategoryStore,
	cfg SyncConfig,
	logger *zap.Logger,
) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("sync")
	if cfg.SourceName == "" {
		cfg.SourceName = "dummyjson"
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Currency == "" {
		cfg.Currency = dummyjson.DefaultCurrency
	}

	reconciler := NewReconciler(
		[]LookupStrategy{BulkLookup(products), SplitLookup(products)},
		cfg.AssumeNewOnLookupFailure,
		logger,
	)

	return &SyncService{
		source:     source,
		products:   products,
		cfg:        cfg,
		categories: NewCategorySyncer(source, categories, cfg.SourceName, cfg.DryRun, logger),
		linker:     NewCategoryLinker(products, categories, cfg.SourceName, cfg.DryRun, logger),
		reconciler: reconciler,
		exporter:   NewAuditExporter(cfg.ExportDir),
		retry:      retry.NewPolicy(cfg.MaxRetries),
		dumper:     &spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true},
		logger:     logger,
	}
}

// SetRetryPolicy replaces the write retry policy (used to stub sleeps in tests)
func (s *SyncService) SetRetryPolicy(p retry.Policy) {
	s.retry = p
}

// Run executes one full sync. Batch failures are counted and skipped; only
// a source pagination failure ends the run early with an error.
func (s *SyncService) Run(ctx context.Context, runID string) (*domain.SyncSummary, error) {
	summary := &domain.SyncSummary{
		RunID:     runID,
		DryRun:    s.cfg.DryRun,
		StartedAt: time.Now().UTC(),
	}
	logger := s.logger.With(zap.String("run_id", runID))
	logger.Info("starting product sync", zap.Bool("dry_run", s.cfg.DryRun))

	if _, err := s.categories.Sync(ctx); err != nil {
		logger.Error("category sync failed non-fatally", zap.Error(err))
	}

	batchSize := ClampBatchSize(s.cfg.BatchSize)
	if batchSize != s.cfg.BatchSize {
		logger.Warn("batch size adjusted into allowed range",
			zap.Int("requested", s.cfg.BatchSize),
			zap.Int("effective", batchSize),
		)
	}

	if total, err := s.source.FetchTotal(ctx); err != nil {
		logger.Warn("failed to fetch total product count, progress will be relative", zap.Error(err))
	} else if total > 0 {
		summary.TotalExpected = &total
	}

	records := NewSourceIterator(s.source, s.cfg.PageLimit, s.cfg.PageDelay)
	batches := NewBatcher[domain.SourceRecord](records, batchSize)

	var audit []domain.AuditRecord
	var runErr error
	for {
		batch, err := batches.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			runErr = fmt.Errorf("product sync failed: %w", err)
			summary.Error = runErr.Error()
			logger.Error("product sync failed", zap.Error(err))
			break
		}

		audit = append(audit, s.processBatch(ctx, logger, summary, batch)...)
	}

	if report, err := s.linker.Link(ctx); err != nil {
		logger.Error("category linking failed non-fatally", zap.Error(err))
	} else {
		summary.Linked = report.Count(domain.LinkLinked)
		summary.LinkFailures = report.Count(domain.LinkFailed)
	}

	logger.Info("product sync completed",
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("batches", summary.Batches),
		zap.Int("failed_batches", summary.FailedBatches),
		zap.Int("failed_items", summary.FailedItems),
		zap.Int("linked", summary.Linked),
	)

	if len(audit) > 0 {
		path, err := s.exporter.Export(audit)
		if err != nil {
			logger.Error("failed to export sync audit", zap.Error(err))
		} else {
			summary.ExportPath = path
			logger.Info("exported sync details", zap.String("path", path), zap.Int("rows", len(audit)))
		}
	}

	finished := time.Now().UTC()
	summary.FinishedAt = &finished
	return summary, runErr
}

// processBatch maps, reconciles and writes one batch, updating the summary.
// It returns the audit records of a successful write.
func (s *SyncService) processBatch(ctx context.Context, logger *zap.Logger, summary *domain.SyncSummary, batch []domain.SourceRecord) []domain.AuditRecord {
	summary.Batches++

	products := make([]domain.Product, 0, len(batch))
	for _, record := range batch {
		products = append(products, dummyjson.MapToProduct(record, s.cfg.Currency))
	}
	s.logProgress(logger, summary, products)

	upsert, err := s.reconciler.Reconcile(ctx, products)
	if err != nil {
		summary.FailedBatches++
		summary.FailedItems += len(products)
		logger.Error("batch skipped, existing products could not be looked up", zap.Error(err))
		return nil
	}
	logger.Info("batch split",
		zap.Int("create", len(upsert.Create)),
		zap.Int("update", len(upsert.Update)),
		zap.Int("rejected", len(upsert.Rejected)),
	)
	summary.FailedItems += len(upsert.Rejected)

	if s.cfg.DryRun {
		logger.Info("dry run, skipping write", zap.Int("create", len(upsert.Create)), zap.Int("update", len(upsert.Update)))
		summary.Created += len(upsert.Create)
		summary.Updated += len(upsert.Update)
		return nil
	}

	if upsert.Len() == 0 {
		return nil
	}

	if err := s.write(ctx, logger, upsert); err != nil {
		summary.FailedBatches++
		summary.FailedItems += upsert.Len()
		logger.Error("batch failed after retries", zap.Error(err))
		return nil
	}

	summary.Created += len(upsert.Create)
	summary.Updated += len(upsert.Update)
	logger.Info("batch processed", zap.Int("created", len(upsert.Create)), zap.Int("updated", len(upsert.Update)))

	return auditRecords(upsert)
}

func (s *SyncService) write(ctx context.Context, logger *zap.Logger, upsert *domain.UpsertBatch) error {
	return s.retry.Do(ctx, func(ctx context.Context) error {
		_, err := s.products.Upsert(ctx, upsert)
		return err
	}, func(attempt int, wait time.Duration, err error) {
		logger.Warn("batch write failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

func (s *SyncService) logProgress(logger *zap.Logger, summary *domain.SyncSummary, products []domain.Product) {
	ids := make([]string, 0, 5)
	for i, p := range products {
		if i == 5 {
			break
		}
		ids = append(ids, p.Metadata.ExternalID)
	}

	fields := []zap.Field{
		zap.Int("size", len(products)),
		zap.Strings("external_ids", ids),
		zap.Bool("truncated", len(products) > 5),
	}
	if summary.TotalExpected != nil {
		processed := summary.Processed() + len(products)
		percent := float64(processed) / float64(*summary.TotalExpected) * 100
		fields = append(fields, zap.String("progress", fmt.Sprintf("%.1f%%", percent)))
	}
	logger.Info("processing batch", fields...)

	if s.cfg.Verbose {
		for _, p := range products {
			logger.Debug("mapped product", zap.String("dump", s.dumper.Sdump(p)))
		}
	}
}

func auditRecords(upsert *domain.UpsertBatch) []domain.AuditRecord {
	records := make([]domain.AuditRecord, 0, upsert.Len())
	add := func(products []domain.Product, action string) {
		for _, p := range products {
			records = append(records, domain.AuditRecord{
				ExternalID: p.Metadata.ExternalID,
				Handle:     p.Handle,
				Title:      p.Title,
				Status:     p.Status,
				Action:     action,
			})
		}
	}
	add(upsert.Create, domain.ActionCreated)
	add(upsert.Update, domain.ActionUpdated)
	return records
}

// LinkCategories runs the category link pass on its own
func (s *SyncService) LinkCategories(ctx context.Context) (*CategoryLinkReport, error) {
	return s.linker.Link(ctx)
}

// Import maps, reconciles and writes manually submitted rows in one
// retrying write. Under dry run the rows are reconciled but not written.
func (s *SyncService) Import(ctx context.Context, rows []domain.RawProduct) (*domain.ImportResult, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no products to import", domain.ErrInvalidRequest)
	}

	products := make([]domain.Product, 0, len(rows))
	for i, row := range rows {
		record, err := dummyjson.NormalizeRawProduct(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		products = append(products, dummyjson.MapToProduct(record, s.cfg.Currency))
	}

	upsert, err := s.reconciler.Reconcile(ctx, products)
	if err != nil {
		return nil, err
	}
	result := &domain.ImportResult{
		Created:  len(upsert.Create),
		Updated:  len(upsert.Update),
		Rejected: len(upsert.Rejected),
		DryRun:   s.cfg.DryRun,
	}

	if s.cfg.DryRun || upsert.Len() == 0 {
		s.logger.Info("import not written",
			zap.Bool("dry_run", s.cfg.DryRun),
			zap.Int("create", result.Created),
			zap.Int("update", result.Updated),
			zap.Int("rejected", result.Rejected),
		)
		return result, nil
	}

	if err := s.write(ctx, s.logger, upsert); err != nil {
		return nil, fmt.Errorf("import failed: %w", err)
	}

	s.logger.Info("imported products",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("rejected", result.Rejected),
	)
	return result, nil
}

// MissingProducts walks the source and returns, in source order, the
// external ids that have no product in the destination
func (s *SyncService) MissingProducts(ctx context.Context) ([]string, error) {
	known, err := s.products.ListExternalIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list destination products: %w", err)
	}
	present := make(map[string]bool, len(known))
	for _, id := range known {
		present[id] = true
	}

	var missing []string
	records := NewSourceIterator(s.source, missingScanPageLimit, s.cfg.PageDelay)
	for {
		record, err := records.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if id := record.ExternalID.String(); !present[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
