package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// SessionArchiver uploads one engine session's journal as JSONL.
type SessionArchiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewSessionArchiver creates a SessionArchiver. audit may be nil.
func NewSessionArchiver(writer domain.BlobWriter, audit domain.AuditStore) *SessionArchiver {
	return &SessionArchiver{writer: writer, audit: audit}
}

// Archive uploads entries to SessionPath and returns the key written. An
// empty journal uploads nothing and returns "".
func (a *SessionArchiver) Archive(ctx context.Context, symbol string, started time.Time, entries []domain.JournalEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive session marshal: %w", err)
	}

	path := SessionPath(symbol, started)
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive session upload: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.session", map[string]any{
			"path":    path,
			"count":   len(entries),
			"started": started.UTC().Format(time.RFC3339),
		}); err != nil {
			return path, fmt.Errorf("s3blob: archive session audit log: %w", err)
		}
	}
	return path, nil
}

// SessionPath builds the object key for a session, partitioned by UTC day:
//
//	sessions/AAPL/2024-03-01/1709280000.jsonl
func SessionPath(symbol string, started time.Time) string {
	started = started.UTC()
	return fmt.Sprintf("sessions/%s/%s/%d.jsonl", symbol, started.Format("2006-01-02"), started.Unix())
}

// marshalJSONL writes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
