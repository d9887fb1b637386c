// Handles storage of cached HTTP responses, grouped in named generations
package cache

import (
	"errors"
	"fmt"
	"strings"
)

// GenericCache interface for caching operations inside one generation
type GenericCache interface {
	// retrieves cached data if it exists.
	// returns nil, nil when not found
	Get(key string) ([]byte, error)
	// stores data in the cache under the specified key, replacing any previous value
	Set(key string, value []byte) error
	// initializes the cache (e.g., creates necessary directories)
	Init() error
}

// Storage holds every cache generation known to the process
type Storage interface {
	// returns the generation with this name, creating it when missing
	Open(name string) (GenericCache, error)
	// reports whether a generation with this name exists
	Has(name string) (bool, error)
	// lists the names of existing generations, sorted
	Keys() ([]string, error)
	// removes a generation and all of its entries.
	// returns false when no such generation existed
	Delete(name string) (bool, error)
	// releases resources held by the storage
	Close() error
}

// ErrInvalidName is returned for generation names that cannot be stored safely
var ErrInvalidName = errors.New("invalid cache name")

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}
	return nil
}

// NewStorage builds the storage for a configured backend: "disk", "memory" or "sqlite"
func NewStorage(backend, folder string) (Storage, error) {
	switch backend {
	case "disk":
		return NewDiskStorage(folder)
	case "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		return NewSQLiteStorage(folder)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", backend)
	}
}
