package xbag

import (
	"context"
	"errors"
)

// Reader replays a recorded bag in the exact order envelopes were accepted.
// Iteration is forward-only; there is no rewind. A Reader is not safe for
// concurrent use, but any number of Readers may replay the same location,
// each with its own cursor.
type Reader struct {
	session
	codec Codec
}

// NewReader constructs a Reader. It starts closed; Open binds it to a
// recorded bag.
func NewReader(opts ...Option) (*Reader, error) {
	var so sessionOptions
	for _, o := range opts {
		if o != nil {
			o(&so)
		}
	}
	lg, _, cd, err := so.resolve()
	if err != nil {
		return nil, err
	}
	r := &Reader{codec: cd}
	r.logger = lg
	return r, nil
}

// Open binds the reader to a recorded bag. Opening while another bag is open
// closes that one first; when the implicit close fails, the new bag is not
// opened.
func (r *Reader) Open(ctx context.Context, location string, opts OpenOptions) error {
	if r.open {
		if err := r.Close(ctx); err != nil {
			return err
		}
	}
	if err := r.openStorage(ctx, location, opts, ModeRead); err != nil {
		return err
	}

	// Seed the registry from the bag so Topics reflects what was recorded.
	infos, err := r.storage.Topics(ctx)
	if err != nil {
		werr := r.wrap("read topics", err)
		_ = r.closeStorage(ctx)
		return werr
	}
	for _, info := range infos {
		if _, err := r.topics.Create(info); err != nil {
			_ = r.closeStorage(ctx)
			return err
		}
	}
	return nil
}

// Codec returns the configured codec (Strategy). Pair it with Decode to
// unmarshal payloads written through WriteMessage.
func (r *Reader) Codec() Codec { return r.codec }

// HasNext reports whether the bag has unread envelopes. It never advances
// the cursor; a closed reader has nothing to read.
func (r *Reader) HasNext() bool {
	if !r.open {
		return false
	}
	return r.storage.HasNext()
}

// ReadNext returns the next envelope, or ErrEndOfBag once the bag is
// exhausted. Exhaustion is not terminal for the session; only Close is.
func (r *Reader) ReadNext(ctx context.Context) (*Envelope, error) {
	if !r.open {
		return nil, ErrSessionNotOpen
	}
	env, err := r.storage.ReadNext(ctx)
	if err != nil {
		return nil, r.wrap("read envelope", err)
	}
	return env, nil
}

// Topics returns the topic registrations of the open bag in the order they
// were recorded.
func (r *Reader) Topics() []TopicInfo {
	if !r.open {
		return nil
	}
	return r.topics.Topics()
}

// Metadata returns the recorded bag summary, when the backend keeps one.
func (r *Reader) Metadata(ctx context.Context) (Metadata, error) {
	if !r.open {
		return Metadata{}, ErrSessionNotOpen
	}
	ms, ok := r.storage.(MetadataStorage)
	if !ok {
		return Metadata{}, &StorageError{
			Op:       "read metadata",
			Storage:  r.storageName,
			Location: r.location,
			Err:      errors.New("backend keeps no metadata"),
		}
	}
	meta, err := ms.Metadata(ctx)
	if err != nil {
		return Metadata{}, r.wrap("read metadata", err)
	}
	return meta, nil
}

// Close releases the backend. Closing a Reader that is not open is a no-op.
func (r *Reader) Close(ctx context.Context) error {
	return r.closeStorage(ctx)
}
