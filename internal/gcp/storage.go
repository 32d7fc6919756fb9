package gcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"

	"github.com/budgetml/budgetml/internal/constants"
)

type defaultStorageClient struct {
	client *storage.Client
}

// CreateBucketIfAbsent creates the bucket in the default multi-region
// location. A conflict means the bucket already exists and is treated
// as success; this is the one place idempotency is explicitly engineered.
func (c *defaultStorageClient) CreateBucketIfAbsent(ctx context.Context, project, name string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.StorageOperationTimeout)
	defer cancel()

	attrs := &storage.BucketAttrs{Location: constants.BucketLocation}
	err := c.client.Bucket(name).Create(ctx, project, attrs)
	if isAlreadyExists(err) {
		slog.Debug("bucket already exists", "bucket", name)
		return nil
	}
	if err != nil {
		return wrapError("create bucket", err)
	}

	slog.Debug("bucket created", "bucket", name, "location", attrs.Location)
	return nil
}

// UploadObject streams a local file into the bucket at objectPath.
func (c *defaultStorageClient) UploadObject(ctx context.Context, bucket, localPath, objectPath string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.StorageOperationTimeout)
	defer cancel()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	w := c.client.Bucket(bucket).Object(objectPath).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return wrapError("upload object", err)
	}
	if err := w.Close(); err != nil {
		return wrapError("finalize object upload", err)
	}

	slog.Debug("object uploaded", "bucket", bucket, "object", objectPath, "source", localPath)
	return nil
}
