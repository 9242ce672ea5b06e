package archival

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/pkg/storage"
)

// Uploader stores one object. *storage.S3 satisfies it.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// S3Exporter writes each organization's archived rows as JSON lines under storage.ArchiveKey.
type S3Exporter struct {
	uploader Uploader
	logger   *zap.Logger
}

// NewS3Exporter creates an exporter.
func NewS3Exporter(uploader Uploader, logger *zap.Logger) *S3Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Exporter{uploader: uploader, logger: logger}
}

// Export uploads rows, one JSON object per line.
func (e *S3Exporter) Export(ctx context.Context, orgID uuid.UUID, sweptAt time.Time, rows []models.Reservation) error {
	if len(rows) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode reservation %s: %w", r.ID, err)
		}
	}
	key := storage.ArchiveKey(orgID.String(), sweptAt)
	url, err := e.uploader.Upload(ctx, key, storage.ContentTypeJSONLines, buf.Bytes())
	if err != nil {
		return err
	}
	e.logger.Info("archived reservations exported", zap.String("organization_id", orgID.String()), zap.Int("count", len(rows)), zap.String("url", url))
	return nil
}
