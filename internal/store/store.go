// Package store persists the ordered server list in a bbolt database.
// The registry treats it as a single list-valued slot; the on-disk
// format is an implementation detail of this package.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"execd-go/internal/config"
)

// Bucket names for the bbolt database
const (
	ServersBucket = "servers"
	MetaBucket    = "meta"
)

// Keys
const (
	serverListKey    = "server_list"
	schemaVersionKey = "schema"
)

// Current schema version
const CurrentSchemaVersion = 1

// ErrCorruptServerList marks a saved server list that could not be
// deserialized. The registry surfaces it once and falls through to the
// next load tier.
var ErrCorruptServerList = errors.New("saved server list is corrupt")

// Store is the preference store backing registry persistence.
type Store struct {
	db     *bbolt.DB
	logger *zap.SugaredLogger
}

// Open opens (creating if needed) the database under dataDir.
func Open(dataDir string, logger *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "execd.db")
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{ServersBucket, MetaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(MetaBucket))
		if meta.Get([]byte(schemaVersionKey)) == nil {
			version, err := json.Marshal(CurrentSchemaVersion)
			if err != nil {
				return fmt.Errorf("failed to marshal schema version: %w", err)
			}
			if err := meta.Put([]byte(schemaVersionKey), version); err != nil {
				return fmt.Errorf("failed to write schema version: %w", err)
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the stored schema version.
func (s *Store) SchemaVersion() (int, error) {
	var version int
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(MetaBucket)).Get([]byte(schemaVersionKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &version)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// ReadServerList returns the saved ordered server list. A missing slot
// yields an empty list, not an error.
func (s *Store) ReadServerList() ([]*config.ServerConfig, error) {
	var list []*config.ServerConfig

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(ServersBucket)).Get([]byte(serverListKey))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptServerList, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debugw("Read saved server list", "count", len(list))
	return list, nil
}

// WriteServerList overwrites the saved server list, preserving order.
func (s *Store) WriteServerList(list []*config.ServerConfig) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal server list: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(ServersBucket)).Put([]byte(serverListKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write server list: %w", err)
	}

	s.logger.Debugw("Saved server list", "count", len(list))
	return nil
}
