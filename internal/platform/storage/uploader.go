package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"

	domain "github.com/studiobook/api/internal/domain"
)

const deliverableObjectPattern = "orders/%s/deliverables/%s"

var (
	errInvalidBucket  = errors.New("storage: bucket name is required")
	errInvalidClient  = errors.New("storage: client is required")
	errInvalidOrderID = errors.New("storage: order id is required")
)

// objectAPI narrows the GCS surface the uploader needs so tests can stub it.
type objectAPI interface {
	Write(ctx context.Context, name string, contentType string, metadata map[string]string, content []byte) error
	Remove(ctx context.Context, name string) error
}

// Uploader stores deliverable batches in a GCS bucket. A batch either lands
// completely or not at all: on a mid-batch failure every object already
// written is removed before the error is surfaced.
type Uploader struct {
	objects objectAPI
	bucket  string
	baseURL string
	newID   func() string
	now     func() time.Time
}

// UploaderOption customises uploader behaviour.
type UploaderOption func(*Uploader)

// WithIDGenerator overrides object name suffix generation (useful for tests).
func WithIDGenerator(gen func() string) UploaderOption {
	return func(u *Uploader) {
		if gen != nil {
			u.newID = gen
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) UploaderOption {
	return func(u *Uploader) {
		if clock != nil {
			u.now = clock
		}
	}
}

// WithObjectAPI replaces the GCS-backed object API (useful for tests).
func WithObjectAPI(api objectAPI) UploaderOption {
	return func(u *Uploader) {
		if api != nil {
			u.objects = api
		}
	}
}

// NewUploader constructs an Uploader over the provided GCS client and bucket.
func NewUploader(client *storage.Client, bucket string, baseURL string, opts ...UploaderOption) (*Uploader, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}

	uploader := &Uploader{
		bucket:  bucket,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		newID:   func() string { return ulid.Make().String() },
		now:     time.Now,
	}
	if client != nil {
		uploader.objects = gcsObjects{bucket: client.Bucket(bucket)}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(uploader)
		}
	}
	if uploader.objects == nil {
		return nil, errInvalidClient
	}
	return uploader, nil
}

// UploadBatch stores every file under the order's deliverable prefix and
// returns the stored metadata in input order.
func (u *Uploader) UploadBatch(ctx context.Context, orderID string, files []domain.LocalFile) ([]domain.DeliveredFile, error) {
	if u == nil || u.objects == nil {
		return nil, errInvalidClient
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errInvalidOrderID
	}
	if len(files) == 0 {
		return []domain.DeliveredFile{}, nil
	}

	delivered := make([]domain.DeliveredFile, 0, len(files))
	written := make([]string, 0, len(files))
	metadata := map[string]string{
		"orderId":    orderID,
		"uploadedAt": u.now().UTC().Format(time.RFC3339),
	}

	for _, file := range files {
		objectName := fmt.Sprintf(deliverableObjectPattern, orderID, u.objectSuffix(file.Name))
		if err := u.objects.Write(ctx, objectName, file.ContentType, metadata, file.Content); err != nil {
			u.removeWritten(ctx, written)
			return nil, fmt.Errorf("storage: upload %q: %w", file.Name, err)
		}
		written = append(written, objectName)
		delivered = append(delivered, domain.DeliveredFile{
			URL:         u.objectURL(objectName),
			Name:        file.Name,
			SizeBytes:   file.SizeBytes,
			ContentType: file.ContentType,
		})
	}

	return delivered, nil
}

func (u *Uploader) objectSuffix(fileName string) string {
	return u.newID() + "_" + url.PathEscape(strings.TrimSpace(fileName))
}

func (u *Uploader) objectURL(objectName string) string {
	if u.baseURL == "" {
		return fmt.Sprintf("gs://%s/%s", u.bucket, objectName)
	}
	return fmt.Sprintf("%s/%s/%s", u.baseURL, u.bucket, objectName)
}

// removeWritten is best effort; a leaked object is preferable to masking the
// original upload failure.
func (u *Uploader) removeWritten(ctx context.Context, objects []string) {
	for _, name := range objects {
		_ = u.objects.Remove(ctx, name)
	}
}

type gcsObjects struct {
	bucket *storage.BucketHandle
}

func (g gcsObjects) Write(ctx context.Context, name string, contentType string, metadata map[string]string, content []byte) error {
	writer := g.bucket.Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = metadata
	if _, err := writer.Write(content); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func (g gcsObjects) Remove(ctx context.Context, name string) error {
	return g.bucket.Object(name).Delete(ctx)
}
