package database

import (
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	defer os.RemoveAll(tmpDir)

	db, err := OpenSnapshotDB(tmpDir + "/test.db")
	require.Equal(t, nil, err)
	defer db.Close()

	payload := []byte(`{"handle":"alice.bsky.social","feed":[]}`)
	id, err := db.SaveSnapshot("alice.bsky.social", "2026-08-25", 42, payload)
	require.Equal(t, nil, err)
	require.Greater(t, id, SnapshotID(0))

	loaded, err := db.LoadSnapshot("alice.bsky.social", "2026-08-25")
	require.Equal(t, nil, err)
	require.Equal(t, payload, loaded)

	// Same handle/day is an upsert, not a second row
	replacement := []byte(`{"handle":"alice.bsky.social","feed":[{}]}`)
	_, err = db.SaveSnapshot("alice.bsky.social", "2026-08-25", 43, replacement)
	require.Equal(t, nil, err)

	loaded, err = db.LoadSnapshot("alice.bsky.social", "2026-08-25")
	require.Equal(t, nil, err)
	require.Equal(t, replacement, loaded)

	infos, err := db.ListSnapshots()
	require.Equal(t, nil, err)
	require.Equal(t, 1, len(infos))
	require.Equal(t, "alice.bsky.social", infos[0].Handle)
	require.Equal(t, 43, infos[0].PostCount)
}

func TestSnapshotNotFound(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := OpenSnapshotDB(tmpDir + "/test.db")
	require.Equal(t, nil, err)
	defer db.Close()

	_, err = db.LoadSnapshot("nobody.bsky.social", "2026-08-25")
	require.True(t, errors.Is(err, ErrSnapshotNotFound))
}

func TestForSingleRowRejectsSecondRow(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := OpenSnapshotDB(tmpDir + "/test.db")
	require.Equal(t, nil, err)
	defer db.Close()

	_, err = db.SaveSnapshot("alice.bsky.social", "2026-08-24", 1, []byte("{}"))
	require.Equal(t, nil, err)
	_, err = db.SaveSnapshot("alice.bsky.social", "2026-08-25", 1, []byte("{}"))
	require.Equal(t, nil, err)

	var id SnapshotID
	_, err = db.forSingleRow(
		func(rows *sql.Rows) bool {
			require.Equal(t, nil, rows.Scan(&id))
			return true
		},
		"SELECT id FROM snapshot WHERE handle = ?", "alice.bsky.social")
	require.NotEqual(t, nil, err)
	require.Contains(t, err.Error(), "second row")
}

func TestListSnapshotsOrdering(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := OpenSnapshotDB(tmpDir + "/test.db")
	require.Equal(t, nil, err)
	defer db.Close()

	for _, day := range []string{"2026-08-23", "2026-08-25", "2026-08-24"} {
		_, err = db.SaveSnapshot("alice.bsky.social", day, 1, []byte("{}"))
		require.Equal(t, nil, err)
	}

	infos, err := db.ListSnapshots()
	require.Equal(t, nil, err)
	require.Equal(t, 3, len(infos))
	require.Equal(t, "2026-08-25", infos[0].Date)
	require.Equal(t, "2026-08-24", infos[1].Date)
	require.Equal(t, "2026-08-23", infos[2].Date)
}

func TestImageBlobStore(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := OpenSnapshotDB(tmpDir + "/test.db")
	require.Equal(t, nil, err)
	defer db.Close()

	_, found, err := db.GetImage("deadbeef")
	require.Equal(t, nil, err)
	require.Equal(t, false, found)

	row := ImageRow{
		URLHash:     "deadbeef",
		URL:         "https://cdn.bsky.app/img/feed_fullsize/plain/did/abc@jpeg",
		ContentType: "image/jpeg",
		Width:       800,
		Height:      600,
		Data:        []byte{0xff, 0xd8, 0xff},
	}
	require.Equal(t, nil, db.PutImage(row))

	// Duplicate insert is ignored
	require.Equal(t, nil, db.PutImage(row))

	got, found, err := db.GetImage("deadbeef")
	require.Equal(t, nil, err)
	require.Equal(t, true, found)
	require.Equal(t, row.URL, got.URL)
	require.Equal(t, row.ContentType, got.ContentType)
	require.Equal(t, 800, got.Width)
	require.Equal(t, 600, got.Height)
	require.Equal(t, row.Data, got.Data)
}

func TestReopenExistingDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	path := tmpDir + "/test.db"

	db, err := OpenSnapshotDB(path)
	require.Equal(t, nil, err)
	_, err = db.SaveSnapshot("alice.bsky.social", "2026-08-25", 5, []byte("{}"))
	require.Equal(t, nil, err)
	db.Close()

	reopened, err := OpenSnapshotDB(path)
	require.Equal(t, nil, err)
	defer reopened.Close()

	payload, err := reopened.LoadSnapshot("alice.bsky.social", "2026-08-25")
	require.Equal(t, nil, err)
	require.Equal(t, []byte("{}"), payload)
}
