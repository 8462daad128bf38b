// Package state persists provider credentials in a local bbolt database.
// It implements the repository interfaces consumed by package withings:
// one slot for the durable token record, one for the in-progress
// authorization state.
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/alexjbarnes/healthsync/internal/models"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.healthsync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	// Token records are bearer credentials; keep them owner-only.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	tokenBucket   = []byte("token")
	pendingBucket = []byte("pending_auth")

	recordKey  = []byte("record")
	pendingKey = []byte("state")
)

// Store wraps a bbolt database holding the two credential slots.
type Store struct {
	db *bolt.DB
}

func dbPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".healthsync", "state.db")
}

// Load opens the state database at ~/.healthsync/state.db, creating it
// if it does not exist.
func Load() (*Store, error) {
	return LoadAt(dbPath())
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(tokenBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(pendingBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadRecord returns the stored token record, or nil when not connected.
func (s *Store) LoadRecord() (*models.TokenRecord, error) {
	var rec *models.TokenRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(tokenBucket).Get(recordKey)
		if v == nil {
			return nil
		}

		rec = &models.TokenRecord{}

		return json.Unmarshal(v, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("reading token record: %w", err)
	}

	return rec, nil
}

// SaveRecord persists the token record, replacing any previous one.
// The bbolt update transaction makes the replacement atomic relative
// to concurrent readers.
func (s *Store) SaveRecord(rec *models.TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding token record: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokenBucket).Put(recordKey, data)
	})
	if err != nil {
		return fmt.Errorf("writing token record: %w", err)
	}

	return nil
}

// ClearRecord removes the token record. Removing an absent record is
// not an error.
func (s *Store) ClearRecord() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tokenBucket).Delete(recordKey)
	})
	if err != nil {
		return fmt.Errorf("clearing token record: %w", err)
	}

	return nil
}

// LoadPending returns the in-progress authorization state, or nil.
func (s *Store) LoadPending() (*models.PendingAuthState, error) {
	var pending *models.PendingAuthState

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(pendingBucket).Get(pendingKey)
		if v == nil {
			return nil
		}

		pending = &models.PendingAuthState{}

		return json.Unmarshal(v, pending)
	})
	if err != nil {
		return nil, fmt.Errorf("reading pending auth state: %w", err)
	}

	return pending, nil
}

// SavePending persists the in-progress authorization state, overwriting
// any stale one. At most one pending state exists at a time.
func (s *Store) SavePending(pending *models.PendingAuthState) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encoding pending auth state: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).Put(pendingKey, data)
	})
	if err != nil {
		return fmt.Errorf("writing pending auth state: %w", err)
	}

	return nil
}

// ClearPending removes the in-progress authorization state.
func (s *Store) ClearPending() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).Delete(pendingKey)
	})
	if err != nil {
		return fmt.Errorf("clearing pending auth state: %w", err)
	}

	return nil
}
