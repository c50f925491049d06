package xbag

import (
	"errors"
	"sync"
)

// Mode selects the direction a storage instance is opened for.
type Mode int

const (
	// ModeRead opens an existing bag for sequential replay.
	ModeRead Mode = iota
	// ModeWrite creates a new bag for recording.
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// StorageFactory constructs storage backends from a config blob.
type StorageFactory func(cfg map[string]any) (Storage, error)

var (
	storageRegistryMu sync.RWMutex
	storageRegistry   = map[string]StorageFactory{}
)

// RegisterStorage registers a backend adapter.
func RegisterStorage(name string, factory StorageFactory) error {
	if name == "" {
		return errors.New("storage name must not be empty")
	}
	if factory == nil {
		return errors.New("storage factory must not be nil")
	}
	storageRegistryMu.Lock()
	storageRegistry[name] = factory
	storageRegistryMu.Unlock()
	return nil
}

// NewStorage constructs a storage backend by name with config.
// An unregistered name fails with ErrUnknownStorage; there is no default.
func NewStorage(name string, cfg map[string]any) (Storage, error) {
	storageRegistryMu.RLock()
	f, ok := storageRegistry[name]
	storageRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownStorage{name: name}
	}
	return f(cfg)
}
