package s3blob

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// minPartSize is the S3 multipart minimum (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

const jsonlContentType = "application/x-ndjson"

// Writer uploads session objects to the client's bucket.
type Writer struct {
	client *s3.Client
	bucket string
}

// NewWriter creates a Writer for c's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{client: c.S3(), bucket: c.Bucket()}
}

// Put uploads data with a single PutObject. An empty contentType is
// derived from the key's extension.
func (w *Writer) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	if _, err := w.client.PutObject(ctx, w.object(key, data, contentType)); err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}

// PutMultipart streams data through the upload manager in parts of at
// least the S3 minimum.
func (w *Writer) PutMultipart(ctx context.Context, key string, data io.Reader, partSize int64) error {
	uploader := manager.NewUploader(w.client, func(u *manager.Uploader) {
		u.PartSize = max(partSize, minPartSize)
	})
	if _, err := uploader.Upload(ctx, w.object(key, data, "")); err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
	}
	return nil
}

func (w *Writer) object(key string, data io.Reader, contentType string) *s3.PutObjectInput {
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	return &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	}
}

func contentTypeFor(key string) string {
	switch path.Ext(key) {
	case ".jsonl":
		return jsonlContentType
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

var _ domain.BlobWriter = (*Writer)(nil)
