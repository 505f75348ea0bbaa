package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// JournalEntry is one record of the in-process session journal.
type JournalEntry struct {
	Seq    int64          `json:"seq"`
	Event  string         `json:"event"`
	Detail map[string]any `json:"detail,omitempty"`
	At     time.Time      `json:"at"`
}
