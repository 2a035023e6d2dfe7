// Package storage provides the durable key/value storage that survives
// process restarts.
//
// The session store keeps its serialized session blob under one key and the
// REST client reads the raw auth token from another; both go through the
// [Storage] interface so neither depends on the other's serialization format.
//
// Three drivers are provided:
//
//   - [FileStorage]: one JSON document on disk, written atomically (default)
//   - [BadgerStorage]: an embedded Badger database
//   - [MemoryStorage]: process-local, for tests and ephemeral runs
package storage

import (
	"errors"
	"fmt"
)

// Well-known keys.
const (
	// KeySession holds the serialized session (user, token, authenticated flag).
	KeySession = "auth-storage"

	// KeyAuthToken holds the raw auth token consumed by the REST client.
	KeyAuthToken = "auth_token"
)

// ErrNotFound is returned by Get for a key that has no value.
var ErrNotFound = errors.New("storage: key not found")

// Storage is a durable string key/value store.
//
// Implementations must be safe for concurrent use. Delete of a missing key
// is not an error.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// Driver names accepted by [Open].
const (
	DriverFile   = "file"
	DriverBadger = "badger"
	DriverMemory = "memory"
)

// Open returns a [Storage] for the named driver. path is ignored by the
// memory driver.
func Open(driver, path string) (Storage, error) {
	switch driver {
	case "", DriverFile:
		return NewFileStorage(path)
	case DriverBadger:
		return NewBadgerStorage(path)
	case DriverMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// GetOptional returns the value for key, or "" when it is not set.
func GetOptional(s Storage, key string) (string, error) {
	v, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
