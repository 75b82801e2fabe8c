package usecase

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/catalogsync/backend/internal/domain"
)

// DefaultExportDir is where audit files are written when none is configured
const DefaultExportDir = "exports"

var auditHeader = []string{"External ID", "Handle", "Title", "Status", "Action"}

// AuditExporter writes the records of a sync run to a timestamped CSV file
type AuditExporter struct {
	dir    string
	now    func() time.Time
	create func(name string) (*os.File, error)
}

func NewAuditExporter(dir string) *AuditExporter {
	if dir == "" {
		dir = DefaultExportDir
	}
	return &AuditExporter{dir: dir, now: time.Now, create: os.Create}
}

// FileName returns the export file name for the given instant,
// e.g. products-sync-2026-01-08T07-55-00-123Z.csv
func FileName(t time.Time) string {
	ts := strings.ReplaceAll(t.UTC().Format("2006-01-02T15-04-05.000Z"), ".", "-")
	return fmt.Sprintf("products-sync-%s.csv", ts)
}

// Export writes the header and one row per record and returns the file path.
// A file that could not be fully written and closed is removed.
func (e *AuditExporter) Export(records []domain.AuditRecord) (path string, err error) {
	dir, err := filepath.Abs(e.dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve export dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}

	path = filepath.Join(dir, FileName(e.now()))
	f, err := e.create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close export file: %w", closeErr)
		}
		if err != nil {
			os.Remove(path)
			path = ""
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(auditHeader); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	for _, r := range records {
		if err := w.Write([]string{r.ExternalID, r.Handle, r.Title, r.Status, r.Action}); err != nil {
			return "", fmt.Errorf("failed to write export: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
