package kvstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flipfile/flipfile/internal/pipeline/domain"
	"github.com/flipfile/flipfile/internal/pipeline/port"
)

func testRecord(id string) *domain.FileRecord {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.FileRecord{
		ID:             id,
		OriginalName:   "report.pdf",
		SecureName:     "20250601_120000_a1b2c3d4_report.pdf",
		MimeType:       "application/pdf",
		SizeBytes:      1024,
		ContentHash:    "1e2d3c4b5a69788796a5b4c3d2e1f00112233445566778899aabbccddeeff00",
		UploadedAt:     now,
		ExpiresAt:      now.Add(30 * time.Minute),
		StorageLocator: "ab/" + id + ".enc",
		ScanStatus:     domain.ScanClean,
	}
}

// runStoreSuite exercises the MetadataStore contract against any backend.
func runStoreSuite(t *testing.T, store port.MetadataStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, port.ErrNotFound)

	rec := testRecord("id-1")
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, "id-1")
	require.NoError(t, err)
	require.Equal(t, rec.SecureName, got.SecureName)
	require.Equal(t, rec.ContentHash, got.ContentHash)
	require.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))

	// Replacing an existing record keeps the latest version.
	rec2 := testRecord("id-1")
	rec2.ScanStatus = domain.ScanFlagged
	require.NoError(t, store.Put(ctx, rec2))
	got, err = store.Get(ctx, "id-1")
	require.NoError(t, err)
	require.Equal(t, domain.ScanFlagged, got.ScanStatus)

	require.NoError(t, store.Put(ctx, testRecord("id-2")))
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"id-1", "id-2"}, keys)

	require.NoError(t, store.Delete(ctx, "id-1"))
	_, err = store.Get(ctx, "id-1")
	require.ErrorIs(t, err, port.ErrNotFound)

	// Deleting a missing record is a no-op.
	require.NoError(t, store.Delete(ctx, "id-1"))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	runStoreSuite(t, store)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	rec := testRecord("id-1")
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, "id-1")
	require.NoError(t, err)
	got.SecureName = "mutated"

	again, err := store.Get(ctx, "id-1")
	require.NoError(t, err)
	require.Equal(t, rec.SecureName, again.SecureName)
}

func TestBoltStore(t *testing.T) {
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "meta", "records.db"))
	require.NoError(t, err)
	defer store.Close()
	runStoreSuite(t, store)
}

func TestBoltStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, testRecord("id-1")))
	require.NoError(t, store.Close())

	store, err = OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, "id-1")
	require.NoError(t, err)
	require.Equal(t, "id-1", got.ID)
}
