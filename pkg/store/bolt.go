package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
)

// BoltFileName is the bbolt database file inside the data directory.
const BoltFileName = "passvault.bolt"

var kvBucket = []byte("kv")

// Bolt stores blobs in a single bbolt bucket.
type Bolt struct {
	dir string
	db  *bbolt.DB
	log zerolog.Logger
}

// OpenBolt opens (creating if needed) the bbolt file under dir.
func OpenBolt(dir string, log zerolog.Logger) (*Bolt, error) {
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return nil, fmt.Errorf("%w: failed to create data directory: %v", ErrStorage, err)
	}

	db, err := bbolt.Open(filepath.Join(dir, BoltFileName), FileMode, &bbolt.Options{
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStorage, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(kvBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to create bucket: %v", ErrStorage, err)
	}

	return &Bolt{dir: dir, db: db, log: log}, nil
}

// Get returns a copy of the value stored under key.
func (b *Bolt) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(kvBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// bbolt memory is only valid inside the transaction
		value = append([]byte(nil), v...)
		return nil
	})
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %q: %v", ErrStorage, key, err)
	}
	return value, nil
}

// Put writes key in a single update transaction.
func (b *Bolt) Put(ctx context.Context, key string, value []byte) error {
	return b.PutAll(ctx, Entry{Key: key, Value: value})
}

// PutAll writes every entry in one update transaction.
func (b *Bolt) PutAll(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := checkDiskSpaceForWrite(b.dir, entriesSize(entries), b.log); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(kvBucket)
		for _, e := range entries {
			if err := bucket.Put([]byte(e.Key), e.Value); err != nil {
				return fmt.Errorf("failed to write %q: %w", e.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// Close closes the database.
func (b *Bolt) Close() error {
	return b.db.Close()
}
