package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

type memWriter struct {
	objects   map[string][]byte
	multipart bool
	err       error
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.err != nil {
		return m.err
	}
	b, _ := io.ReadAll(data)
	m.objects[path] = b
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multipart = true
	return m.Put(ctx, path, data, "")
}

type memAudit struct {
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestSessionPath(t *testing.T) {
	started := time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, "sessions/AAPL/2024-03-01/1709303400.jsonl", SessionPath("AAPL", started))
}

func TestArchiveWritesJSONL(t *testing.T) {
	w := &memWriter{objects: map[string][]byte{}}
	audit := &memAudit{}
	a := NewSessionArchiver(w, audit)
	started := time.Unix(1709303400, 0)

	entries := []domain.JournalEntry{
		{Seq: 1, Event: "submit", Detail: map[string]any{"price": "99.50"}, At: started},
		{Seq: 2, Event: "order", At: started.Add(time.Second)},
	}
	path, err := a.Archive(context.Background(), "AAPL", started, entries)
	require.NoError(t, err)
	assert.Equal(t, SessionPath("AAPL", started), path)
	assert.False(t, w.multipart)

	lines := strings.Split(strings.TrimSpace(string(w.objects[path])), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"event":"submit"`)
	assert.Contains(t, lines[0], `"price":"99.50"`)
	assert.Equal(t, []string{"archive.session"}, audit.events)
}

func TestArchiveEmptyJournal(t *testing.T) {
	w := &memWriter{objects: map[string][]byte{}}
	path, err := NewSessionArchiver(w, nil).Archive(context.Background(), "AAPL", time.Now(), nil)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, w.objects)
}

func TestArchiveUploadFailure(t *testing.T) {
	w := &memWriter{objects: map[string][]byte{}, err: errors.New("denied")}
	_, err := NewSessionArchiver(w, nil).Archive(context.Background(), "AAPL", time.Now(),
		[]domain.JournalEntry{{Seq: 1, Event: "halt"}})
	assert.ErrorContains(t, err, "denied")
}

func TestArchiveLargeJournalUsesMultipart(t *testing.T) {
	w := &memWriter{objects: map[string][]byte{}}
	pad := string(bytes.Repeat([]byte("x"), 1024))
	entries := make([]domain.JournalEntry, 6*1024)
	for i := range entries {
		entries[i] = domain.JournalEntry{Seq: int64(i), Event: "order", Detail: map[string]any{"pad": pad}}
	}
	_, err := NewSessionArchiver(w, nil).Archive(context.Background(), "AAPL", time.Now(), entries)
	require.NoError(t, err)
	assert.True(t, w.multipart)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://10.0.0.5:9000", normaliseEndpoint("10.0.0.5:9000", false))
	assert.Equal(t, "http://already", normaliseEndpoint("http://already", true))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/x-ndjson", contentTypeFor(SessionPath("AAPL", time.Unix(0, 0))))
	assert.Equal(t, "application/json", contentTypeFor("sessions/meta.json"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("sessions/blob"))
}
