package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SnapshotID uint

// ErrSnapshotNotFound is returned when no snapshot exists for a handle/day.
var ErrSnapshotNotFound = errors.New("cache not found")

// SnapshotInfo describes one stored snapshot without its payload.
type SnapshotInfo struct {
	ID        SnapshotID
	Handle    string
	Date      string
	PostCount int
	CreatedAt time.Time
}

// ImageRow is one cached image blob, keyed by the md5 of its source URL.
type ImageRow struct {
	URLHash     string
	URL         string
	ContentType string
	Width       int
	Height      int
	Data        []byte
}

// SnapshotDB stores one raw fetch batch per (handle, date) plus a blob
// cache of downloaded images so cache replays never touch the network.
type SnapshotDB struct {
	Filename           string
	DB                 *sql.DB
	insertSnapshotStmt string
	insertImageStmt    string
}

func OpenSnapshotDB(path string) (sdb *SnapshotDB, err error) {
	existingDB, err := exists(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	sdb = new(SnapshotDB)
	sdb.Filename = path
	sdb.DB = db
	if !existingDB {
		if err = sdb.initTables(); err != nil {
			db.Close()
			return nil, err
		}
	}
	sdb.initSQLStatements()
	return sdb, nil
}

func (sdb *SnapshotDB) Close() {
	sdb.DB.Close()
}

type RowsReceiver func(*sql.Rows) bool

func (sdb *SnapshotDB) forEachRow(receiver RowsReceiver, stmt string, params ...any) error {
	rows, err := sdb.DB.Query(stmt, params...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if !receiver(rows) {
			break
		}
	}
	return rows.Err()
}

func (sdb *SnapshotDB) forSingleRow(receiver RowsReceiver, stmt string, params ...any) (found bool, err error) {
	// forEachRow returns nil after a receiver-initiated break, so the
	// sentinel has to survive in its own variable.
	var dupErr error
	err = sdb.forEachRow(
		func(rows *sql.Rows) bool {
			if found {
				dupErr = fmt.Errorf("received second row for %q", stmt)
				return false
			}
			receiver(rows)
			found = true
			return true
		},
		stmt, params...)
	if err == nil {
		err = dupErr
	}
	return
}

// SaveSnapshot upserts the raw batch for one handle/day, replacing any
// earlier fetch from the same day.
func (sdb *SnapshotDB) SaveSnapshot(handle, date string, postCount int, payload []byte) (id SnapshotID, err error) {
	var scanErr error
	_, err = sdb.forSingleRow(
		func(rows *sql.Rows) bool {
			scanErr = rows.Scan(&id)
			return true
		},
		sdb.insertSnapshotStmt, handle, date, time.Now().Unix(), postCount, payload)
	if err == nil {
		err = scanErr
	}
	return
}

// LoadSnapshot returns the raw batch stored for handle on date, or an error
// wrapping ErrSnapshotNotFound.
func (sdb *SnapshotDB) LoadSnapshot(handle, date string) (payload []byte, err error) {
	var scanErr error
	found, err := sdb.forSingleRow(
		func(rows *sql.Rows) bool {
			scanErr = rows.Scan(&payload)
			return true
		},
		"SELECT payload FROM snapshot WHERE handle = ? AND date = ?", handle, date)
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	if !found {
		return nil, fmt.Errorf("%w for @%s on %s", ErrSnapshotNotFound, handle, date)
	}
	return payload, nil
}

// ListSnapshots returns all stored snapshots, newest date first.
func (sdb *SnapshotDB) ListSnapshots() (infos []SnapshotInfo, err error) {
	var scanErr error
	err = sdb.forEachRow(
		func(rows *sql.Rows) bool {
			var info SnapshotInfo
			var createdAt int64
			if scanErr = rows.Scan(&info.ID, &info.Handle, &info.Date, &info.PostCount, &createdAt); scanErr != nil {
				return false
			}
			info.CreatedAt = time.Unix(createdAt, 0)
			infos = append(infos, info)
			return true
		},
		"SELECT id, handle, date, post_count, created_at FROM snapshot ORDER BY date DESC, handle")
	if err == nil {
		err = scanErr
	}
	return
}

// PutImage stores a downloaded image blob. Re-inserting the same URL hash
// is a no-op.
func (sdb *SnapshotDB) PutImage(row ImageRow) error {
	_, err := sdb.DB.Exec(sdb.insertImageStmt,
		row.URLHash, row.URL, row.ContentType, row.Width, row.Height, row.Data, time.Now().Unix())
	return err
}

// GetImage returns the cached blob for a URL hash, or found=false.
func (sdb *SnapshotDB) GetImage(urlHash string) (row ImageRow, found bool, err error) {
	var scanErr error
	found, err = sdb.forSingleRow(
		func(rows *sql.Rows) bool {
			scanErr = rows.Scan(&row.URLHash, &row.URL, &row.ContentType, &row.Width, &row.Height, &row.Data)
			return true
		},
		"SELECT url_hash, url, content_type, width, height, data FROM image WHERE url_hash = ?", urlHash)
	if err == nil {
		err = scanErr
	}
	return
}

func (sdb *SnapshotDB) initTables() error {
	schema := `
CREATE TABLE snapshot (
	id INTEGER NOT NULL PRIMARY KEY,
	handle TEXT NOT NULL,
	date TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	post_count INTEGER NOT NULL,
	payload BLOB NOT NULL,

	UNIQUE(handle, date)
);

CREATE TABLE image (
	id INTEGER NOT NULL PRIMARY KEY,
	url_hash TEXT NOT NULL UNIQUE,
	url TEXT NOT NULL,
	content_type TEXT,
	width INTEGER,
	height INTEGER,
	data BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
`
	_, err := sdb.DB.Exec(schema)
	if err != nil {
		return fmt.Errorf("error loading schema: %w", err)
	}
	return nil
}

func (sdb *SnapshotDB) initSQLStatements() {
	sdb.insertSnapshotStmt = `
		INSERT INTO snapshot
			(handle, date, created_at, post_count, payload)
		VALUES
			(?, ?, ?, ?, ?)
		ON CONFLICT(handle, date) DO UPDATE SET
			created_at = excluded.created_at,
			post_count = excluded.post_count,
			payload = excluded.payload
		RETURNING id`

	sdb.insertImageStmt = `
		INSERT INTO image
			(url_hash, url, content_type, width, height, data, created_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_hash) DO NOTHING`
}

func exists(path string) (res bool, err error) {
	_, statErr := os.Stat(path)
	if statErr == nil {
		res = true
	} else if !os.IsNotExist(statErr) {
		err = statErr
	}
	return
}
