package xbag

import (
	"context"
)

// Storage is the Strategy interface for bag persistence backends.
//
// An instance serves exactly one session at a time: Open binds it to a
// location in read or write mode, Close releases it. Envelopes must read
// back in the exact order they were accepted, regardless of timestamps.
type Storage interface {
	// Open binds the instance to a location. In ModeWrite the location must
	// not already hold a bag; in ModeRead it must hold a complete one.
	Open(ctx context.Context, location string, mode Mode) error
	// Close releases resources. Implementations must be idempotent.
	Close(ctx context.Context) error

	// WriteTopic persists one topic registration.
	WriteTopic(ctx context.Context, info TopicInfo) error
	// WriteEnvelope appends one envelope. The storage owns the envelope and
	// its payload after return.
	WriteEnvelope(ctx context.Context, env *Envelope) error

	// HasNext reports whether another envelope is available. It never
	// advances the read cursor.
	HasNext() bool
	// ReadNext returns the next envelope in accepted order, or ErrEndOfBag.
	ReadNext(ctx context.Context) (*Envelope, error)
	// Topics returns the registrations known to the open bag.
	Topics(ctx context.Context) ([]TopicInfo, error)
}

// MetadataStorage is an optional capability for backends that keep a bag
// summary alongside the data. The Writer feeds it on Close; the Reader
// surfaces it through Reader.Metadata.
type MetadataStorage interface {
	WriteMetadata(ctx context.Context, meta Metadata) error
	Metadata(ctx context.Context) (Metadata, error)
}

// OpenOptions selects and configures the backend for one Open call.
type OpenOptions struct {
	// Storage is the registered backend identifier (e.g. "memory",
	// "bagfile"). It also labels the backend in errors and metadata.
	Storage string
	// StorageConfig is handed to the backend factory untouched.
	StorageConfig map[string]any
	// StorageInstance short-circuits the registry with a ready instance.
	// When set, StorageConfig is ignored and Storage only labels.
	StorageInstance Storage
}

// Recorder is the complete write-side surface.
type Recorder interface {
	Open(ctx context.Context, location string, opts OpenOptions) error
	CreateTopic(ctx context.Context, info TopicInfo) error
	Write(ctx context.Context, env *Envelope) error
	WriteMessage(ctx context.Context, topic, typeID string, v any) error
	Info() Metadata
	Close(ctx context.Context) error
}

// Replayer is the complete read-side surface.
type Replayer interface {
	Open(ctx context.Context, location string, opts OpenOptions) error
	HasNext() bool
	ReadNext(ctx context.Context) (*Envelope, error)
	Topics() []TopicInfo
	Metadata(ctx context.Context) (Metadata, error)
	Close(ctx context.Context) error
}

var _ Recorder = (*Writer)(nil)
var _ Replayer = (*Reader)(nil)
