package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/BenHamm/bluesky-times/database"
	"github.com/BenHamm/bluesky-times/logger"
	"github.com/BenHamm/bluesky-times/utils"
)

const (
	maxImageBytes = 10 << 20
	fetchTimeout  = 10 * time.Second
)

// Blob is one fetched image, ready to inline into the layout.
type Blob struct {
	URL         string
	ContentType string
	Width       int
	Height      int
	Data        []byte
}

// Store resolves an image URL to its bytes. Implementations differ in
// where the bytes come from and whether they are kept.
type Store interface {
	Get(ctx context.Context, url string) (Blob, error)
}

// DBStore keeps image blobs in the snapshot database, keyed by the md5 of
// their URL. A miss triggers a fetch unless the store is read only, which
// is how cache replays stay off the network.
type DBStore struct {
	db         *database.SnapshotDB
	httpClient *http.Client
	readOnly   bool
}

func NewDBStore(db *database.SnapshotDB, readOnly bool) *DBStore {
	return &DBStore{
		db:         db,
		httpClient: &http.Client{Timeout: fetchTimeout},
		readOnly:   readOnly,
	}
}

func (s *DBStore) Get(ctx context.Context, url string) (Blob, error) {
	hash := utils.Md5Hash(url)
	row, found, err := s.db.GetImage(hash)
	if err != nil {
		return Blob{}, err
	}
	if found {
		return Blob{
			URL:         row.URL,
			ContentType: row.ContentType,
			Width:       row.Width,
			Height:      row.Height,
			Data:        row.Data,
		}, nil
	}
	if s.readOnly {
		return Blob{}, fmt.Errorf("image %s not in cache", url)
	}

	blob, err := fetchImage(ctx, s.httpClient, url)
	if err != nil {
		return Blob{}, err
	}
	err = s.db.PutImage(database.ImageRow{
		URLHash:     hash,
		URL:         blob.URL,
		ContentType: blob.ContentType,
		Width:       blob.Width,
		Height:      blob.Height,
		Data:        blob.Data,
	})
	if err != nil {
		return Blob{}, err
	}
	return blob, nil
}

// MemoryStore fetches images and keeps them only for the life of the run.
// Gets run concurrently from the resolver pool, so the map is guarded.
type MemoryStore struct {
	httpClient *http.Client

	mu    sync.Mutex
	blobs map[string]Blob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		httpClient: &http.Client{Timeout: fetchTimeout},
		blobs:      make(map[string]Blob),
	}
}

func (s *MemoryStore) Get(ctx context.Context, url string) (Blob, error) {
	key := utils.Md5Hash(url)
	s.mu.Lock()
	blob, ok := s.blobs[key]
	s.mu.Unlock()
	if ok {
		return blob, nil
	}

	blob, err := fetchImage(ctx, s.httpClient, url)
	if err != nil {
		return Blob{}, err
	}
	s.mu.Lock()
	s.blobs[key] = blob
	s.mu.Unlock()
	return blob, nil
}

func fetchImage(ctx context.Context, client *http.Client, url string) (Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Blob{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Blob{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Blob{}, fmt.Errorf("fetching %s returned status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return Blob{}, err
	}
	if len(data) > maxImageBytes {
		return Blob{}, fmt.Errorf("image %s exceeds %d bytes", url, maxImageBytes)
	}

	blob := Blob{URL: url, Data: data}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		blob.Width = cfg.Width
		blob.Height = cfg.Height
	} else {
		logger.Log.Debugf("could not decode image dimensions for %s: %v", url, err)
	}
	blob.ContentType = resp.Header.Get("Content-Type")
	if blob.ContentType == "" {
		blob.ContentType = http.DetectContentType(data)
	}
	return blob, nil
}
