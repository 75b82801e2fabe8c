package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/catalogsync/backend/internal/domain"
)

// SyncTrigger starts background sync runs
type SyncTrigger interface {
	Trigger() (string, error)
	Running() bool
	LastRun() *domain.SyncSummary
}

// ProductImporter writes manually submitted product rows
type ProductImporter interface {
	Import(ctx context.Context, rows []domain.RawProduct) (*domain.ImportResult, error)
}

// CategoryLister lists categories created by a given source
type CategoryLister interface {
	ListBySource(ctx context.Context, source string) ([]domain.Category, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sync       SyncTrigger
	importer   ProductImporter
	categories CategoryLister
	sourceName string
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(sync SyncTrigger, importer ProductImporter, categories CategoryLister, sourceName string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sync:       sync,
		importer:   importer,
		categories: categories,
		sourceName: sourceName,
		logger:     logger,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "catalogsync",
		"version": "1.0.0",
	})
}

// TriggerSync starts a sync run and responds before it finishes
func (h *Handler) TriggerSync(c *gin.Context) {
	runID, err := h.sync.Trigger()
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
		"run_id": runID,
	})
}

// GetSyncStatus lists synced categories and the last run summary
func (h *Handler) GetSyncStatus(c *gin.Context) {
	categories, err := h.categories.ListBySource(c.Request.Context(), h.sourceName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}

	c.JSON(http.StatusOK, gin.H{
		"source":     h.sourceName,
		"running":    h.sync.Running(),
		"categories": categories,
		"last_run":   h.sync.LastRun(),
	})
}

type importRequest struct {
	Products []domain.RawProduct `json:"products"`
}

// ImportProducts upserts the submitted rows synchronously
func (h *Handler) ImportProducts(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Products) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no products provided"})
		return
	}

	result, err := h.importer.Import(c.Request.Context(), req.Products)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrLookupUnavailable), errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": http.StatusText(status)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
