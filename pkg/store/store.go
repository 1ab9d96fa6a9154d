// Package store persists the vault's two opaque blobs.
//
// A Store is a get/put key-value map with no query capability. The vault
// keeps exactly two keys in it: KeyMeta (plaintext KDF metadata) and
// KeyVault (the sealed credential document). Every write is atomic; a
// reader sees either the previous or the new values, never a mix. PutAll
// extends that to several keys at once.
package store

import (
	"context"
	"errors"
)

// Fixed keys used by the vault.
const (
	KeyMeta  = "meta"
	KeyVault = "vault"
)

// File permission constants.
const (
	FileMode = 0600
	DirMode  = 0700
)

// MinDiskSpaceBytes is the free space required before a write.
const MinDiskSpaceBytes = 10 * 1024 * 1024

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("store: key not found")

	// ErrStorage wraps every backend failure.
	ErrStorage = errors.New("store: storage failure")

	// ErrInsufficientDisk indicates the data directory is nearly full.
	ErrInsufficientDisk = errors.New("store: insufficient disk space")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)

// DiskSpaceInfo describes the filesystem holding the data directory.
type DiskSpaceInfo struct {
	Total     uint64
	Available uint64
	UsedPct   int
}

// Entry is one key/value pair of a PutAll.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the persistence contract used by the vault controller.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// PutAll writes every entry or none of them.
	PutAll(ctx context.Context, entries ...Entry) error
	Close() error
}

func entriesSize(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += len(e.Value)
	}
	return n
}
