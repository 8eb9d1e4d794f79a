// Package mediaarchive copies inbound media attachments into S3-compatible
// object storage. Provider media URLs expire quickly; archiving keeps the
// attachment available for later review. Archive failures never fail the
// message pipeline.
package mediaarchive

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// downloadTimeout bounds the fetch of one provider media URL.
const downloadTimeout = 30 * time.Second

// Archiver stores inbound media in a MinIO bucket.
type Archiver struct {
	client *minio.Client
	bucket string
	http   *http.Client
	log    *logger.Logger
}

// New creates an archiver from the media archive configuration. Returns nil
// without error when archiving is not configured; a nil Archiver is safe to
// call and does nothing.
func New(cfg config.MediaArchiveConfig, log *logger.Logger) (*Archiver, error) {
	if !cfg.IsMediaArchiveEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Archiver{
		client: client,
		bucket: cfg.GetMediaArchiveBucket(),
		http:   &http.Client{Timeout: downloadTimeout},
		log:    log,
	}, nil
}

// Enabled reports whether archiving is configured.
func (a *Archiver) Enabled() bool {
	return a != nil
}

// EnsureBucket creates the archive bucket if it doesn't exist.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	if !a.Enabled() {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}

// Archive downloads the message's media and stores it under
// {instance}/{contact}/{uuid}{ext}. Returns the object key.
func (a *Archiver) Archive(ctx context.Context, msg domain.InboundMessage) (string, error) {
	if !a.Enabled() || msg.MediaURL == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, msg.MediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch media: provider returned %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	key := fmt.Sprintf("%s/%s/%s%s", msg.InstanceID, msg.Sender, uuid.New().String(), path.Ext(msg.MediaURL))

	_, err = a.client.PutObject(ctx, a.bucket, key, resp.Body, resp.ContentLength, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("store media %s: %w", key, err)
	}

	a.log.Debug("media archived", "instance_id", msg.InstanceID, "key", key)
	return key, nil
}
