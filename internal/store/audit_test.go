package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "data", "audit.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddEntryAndRecentEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddEntry(ctx, AuditEntry{
		ObservableType:  "domain",
		ObservableValue: "cisco.com",
		Flow:            "observe",
		Sightings:       3,
		Judgements:      1,
		Verdicts:        1,
		Warnings:        1,
		Duration:        1500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := s.RecentEntries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, "domain", entry.ObservableType)
	assert.Equal(t, "cisco.com", entry.ObservableValue)
	assert.Equal(t, "observe", entry.Flow)
	assert.Equal(t, 3, entry.Sightings)
	assert.Equal(t, 1, entry.Judgements)
	assert.Equal(t, 1, entry.Verdicts)
	assert.Equal(t, 1, entry.Warnings)
	assert.Equal(t, 0, entry.Fatals)
	assert.Equal(t, 1500*time.Millisecond, entry.Duration)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestRecentEntriesOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	for i, value := range []string{"first.example.com", "second.example.com", "third.example.com"} {
		_, err := s.AddEntry(ctx, AuditEntry{
			ObservableType:  "domain",
			ObservableValue: value,
			Flow:            "deliberate",
			CreatedAt:       older.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	entries, err := s.RecentEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "third.example.com", entries[0].ObservableValue)
	assert.Equal(t, "second.example.com", entries[1].ObservableValue)
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "deeper", "audit.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
