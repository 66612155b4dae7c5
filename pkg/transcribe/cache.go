package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/japaniel/hanzivid/pkg/domain"
)

var bucketTranscripts = []byte("transcripts")

type cachedTranscript struct {
	Source   string           `json:"source"`
	Size     int64            `json:"size,omitempty"`
	ModTime  time.Time        `json:"mod_time,omitempty"`
	SavedAt  time.Time        `json:"saved_at"`
	Segments []domain.Segment `json:"segments"`
}

// Cache stores recognized transcripts in a bbolt file so re-processing a
// video does not run recognition again.
type Cache struct {
	db *bbolt.DB
}

// OpenCache opens or creates the cache file at path.
func OpenCache(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open transcript cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTranscripts)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Get returns the cached segments for source. Entries for local files are
// ignored once the file's size or modification time changes.
func (c *Cache) Get(source string) ([]domain.Segment, bool, error) {
	var entry cachedTranscript
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTranscripts).Get([]byte(source))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil || !found {
		return nil, false, err
	}
	if size, mod, ok := fileStamp(source); ok {
		if size != entry.Size || !mod.Equal(entry.ModTime) {
			return nil, false, nil
		}
	}
	return entry.Segments, true, nil
}

// Put stores segments for source.
func (c *Cache) Put(source string, segments []domain.Segment) error {
	entry := cachedTranscript{Source: source, SavedAt: time.Now().UTC(), Segments: segments}
	if entry.Segments == nil {
		entry.Segments = []domain.Segment{}
	}
	if size, mod, ok := fileStamp(source); ok {
		entry.Size, entry.ModTime = size, mod
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTranscripts).Put([]byte(source), data)
	})
}

// Delete drops the cached transcript of source.
func (c *Cache) Delete(source string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTranscripts).Delete([]byte(source))
	})
}

// Len returns the number of cached transcripts.
func (c *Cache) Len() int {
	n := 0
	c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketTranscripts).Stats().KeyN
		return nil
	})
	return n
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func fileStamp(source string) (int64, time.Time, bool) {
	st, err := os.Stat(source)
	if err != nil || st.IsDir() {
		return 0, time.Time{}, false
	}
	return st.Size(), st.ModTime().UTC(), true
}

// CachedRecognizer consults the cache before delegating to Inner and saves
// successful results.
type CachedRecognizer struct {
	Inner  Recognizer
	Cache  *Cache
	Logger *slog.Logger
}

func (r *CachedRecognizer) Recognize(ctx context.Context, source string) ([]domain.Segment, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if segs, ok, err := r.Cache.Get(source); err != nil {
		logger.Warn("transcript cache read failed", slog.String("source", source), slog.Any("error", err))
	} else if ok {
		logger.Debug("transcript cache hit", slog.String("source", source), slog.Int("segments", len(segs)))
		return segs, nil
	}

	segs, err := r.Inner.Recognize(ctx, source)
	if err != nil {
		return nil, err
	}
	if err := r.Cache.Put(source, segs); err != nil {
		logger.Warn("transcript cache write failed", slog.String("source", source), slog.Any("error", err))
	}
	return segs, nil
}
