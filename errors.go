package xbag

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotOpen is returned by operations that need an open session.
	ErrSessionNotOpen = errors.New("xbag: session is not open")
	// ErrSessionAlreadyOpen is returned when opening a session that is open.
	ErrSessionAlreadyOpen = errors.New("xbag: session is already open")
	// ErrEndOfBag is returned by ReadNext once the bag is exhausted.
	// Exhaustion is not terminal: the session stays open until Close.
	ErrEndOfBag = errors.New("xbag: end of bag")
)

// ErrUnknownStorage reports a storage identifier with no registered factory.
// There is no fallback backend; use errors.As to recover the name.
type ErrUnknownStorage struct{ name string }

func (e ErrUnknownStorage) Error() string { return fmt.Sprintf("unknown storage: %s", e.name) }

// Name returns the identifier that was requested.
func (e ErrUnknownStorage) Name() string { return e.name }

// ConfigError reports a location or configuration the backend cannot use,
// such as recording into a location that already holds a bag.
type ConfigError struct {
	Storage  string
	Location string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("xbag: storage %q cannot use location %q: %v", e.Storage, e.Location, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TopicConflictError reports a topic registration that contradicts an
// earlier one, or a write on a topic the session knows nothing about.
type TopicConflictError struct {
	Topic string
	// Registered is the zero value when the topic was never registered.
	Registered TopicInfo
	Offered    TopicInfo
}

func (e *TopicConflictError) Error() string {
	if e.Registered == (TopicInfo{}) {
		return fmt.Sprintf("xbag: topic %q is not registered and the envelope carries no type information", e.Topic)
	}
	return fmt.Sprintf("xbag: topic %q is registered as (%s, %s), offered (%s, %s)",
		e.Topic, e.Registered.Type, e.Registered.Format, e.Offered.Type, e.Offered.Format)
}

// TypeMismatchError reports an envelope whose declared type or format
// contradicts the topic registration. Nothing was persisted.
type TypeMismatchError struct {
	Topic      string
	Registered TopicInfo
	Declared   TopicInfo
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("xbag: envelope on topic %q declares (%s, %s) but the topic is registered as (%s, %s)",
		e.Topic, e.Declared.Type, e.Declared.Format, e.Registered.Type, e.Registered.Format)
}

// StorageError wraps a backend failure with the operation that hit it.
type StorageError struct {
	Op       string
	Storage  string
	Location string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("xbag: storage %q: %s at %q: %v", e.Storage, e.Op, e.Location, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
