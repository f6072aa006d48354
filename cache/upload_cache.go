package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const uploadsBucket = "proof_uploads"

// UploadedEvidence is what a proof submission already pushed to the blob store.
type UploadedEvidence struct {
	ScreenshotURL    string    `json:"screenshot_url"`
	BankStatementURL string    `json:"bank_statement_url,omitempty"`
	ReceiptURL       string    `json:"receipt_url,omitempty"`
	StoredAt         time.Time `json:"stored_at"`
}

// UploadCache remembers uploads per user and request id so a retried submission skips
// the blob store. Entries of one user are never visible to another.
type UploadCache struct {
	db *bbolt.DB
}

func entryKey(userID, requestID string) []byte {
	return []byte(userID + "/" + requestID)
}

func NewUploadCache(dbPath string) (*UploadCache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(uploadsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Printf("[UPLOAD_CACHE] initialized at %s", dbPath)
	return &UploadCache{db: db}, nil
}

func (c *UploadCache) Get(userID, requestID string) (UploadedEvidence, bool, error) {
	var ev UploadedEvidence
	var found bool

	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(uploadsBucket)).Get(entryKey(userID, requestID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &ev)
	})
	if err != nil {
		return UploadedEvidence{}, false, fmt.Errorf("failed to get uploads for %s: %w", requestID, err)
	}
	return ev, found, nil
}

func (c *UploadCache) Put(userID, requestID string, ev UploadedEvidence) error {
	if ev.StoredAt.IsZero() {
		ev.StoredAt = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal uploads: %w", err)
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(uploadsBucket)).Put(entryKey(userID, requestID), data)
	})
}

// Forget drops the entry once the deposit record exists.
func (c *UploadCache) Forget(userID, requestID string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(uploadsBucket)).Delete(entryKey(userID, requestID))
	})
}

// Prune removes entries older than maxAge and returns how many were dropped.
func (c *UploadCache) Prune(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(uploadsBucket))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var ev UploadedEvidence
			if err := json.Unmarshal(v, &ev); err != nil || ev.StoredAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func (c *UploadCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
