package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/natefinch/atomic"

	"github.com/kebairia/sbackup/internal/logger"
)

const defaultContentType = "application/octet-stream"

// Transfer moves single objects between a bucket and local files. It makes
// one attempt per call; retry policy belongs to the caller.
type Transfer struct {
	provider Provider
	log      logger.Logger
}

// NewTransfer returns a Transfer bound to p.
func NewTransfer(p Provider, log logger.Logger) *Transfer {
	return &Transfer{provider: p, log: log}
}

// Download writes bucket/objectPath to localPath, creating missing parent
// directories. The file is replaced atomically, so a failed download never
// leaves a truncated artifact behind.
func (t *Transfer) Download(ctx context.Context, bucket, objectPath, localPath string) error {
	body, err := t.provider.Download(ctx, bucket, objectPath)
	if err != nil {
		return fmt.Errorf("download %s/%s: %w", bucket, objectPath, err)
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("mkdir %q: %w", filepath.Dir(localPath), err)
	}
	if err := atomic.WriteFile(localPath, body); err != nil {
		return fmt.Errorf("write %q: %w", localPath, err)
	}
	t.log.Debug("object downloaded", "bucket", bucket, "object", objectPath, "path", localPath)
	return nil
}

// Upload sends localPath to bucket/objectPath, overwriting any existing
// object so repeated restores converge.
func (t *Transfer) Upload(ctx context.Context, bucket, objectPath, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %q: %w", localPath, err)
	}

	contentType := defaultContentType
	if mt, err := mimetype.DetectFile(localPath); err == nil {
		contentType = mt.String()
	}

	opts := UploadOptions{ContentType: contentType, Upsert: true}
	if err := t.provider.Upload(ctx, bucket, objectPath, f, info.Size(), opts); err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, objectPath, err)
	}
	t.log.Debug("object uploaded", "bucket", bucket, "object", objectPath, "size", info.Size())
	return nil
}
