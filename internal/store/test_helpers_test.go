package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/contentflow/internal/content"
)

var testTime = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestContent commits a Created event and returns the resulting state.
func createTestContent(t *testing.T, s *Store, id, contentType string, data content.Data) *content.Content {
	t.Helper()
	c, err := content.Commit(context.Background(), s, nil, []content.Envelope{{
		ContentID:  id,
		Version:    1,
		OccurredAt: testTime,
		Event: content.Created{
			ID: id, ContentType: contentType, Data: data,
			Status: content.StatusDraft, Sensitivity: content.SensitivityPublic, CreatedBy: "u1",
		},
	}})
	if err != nil {
		t.Fatalf("create content %s: %v", id, err)
	}
	return c
}
