package xbag

import (
	"context"
	"errors"

	"github.com/trickstertwo/xclock"
)

// Writer records envelopes into a bag. Construct one per recording pipeline;
// a Writer is not safe for concurrent use.
type Writer struct {
	session
	clock xclock.Clock
	codec Codec
}

// NewWriter constructs a Writer. It starts closed; Open binds it to a
// location and backend.
func NewWriter(opts ...Option) (*Writer, error) {
	var so sessionOptions
	for _, o := range opts {
		if o != nil {
			o(&so)
		}
	}
	lg, clk, cd, err := so.resolve()
	if err != nil {
		return nil, err
	}
	w := &Writer{clock: clk, codec: cd}
	w.logger = lg
	return w, nil
}

// Codec returns the configured codec (Strategy).
func (w *Writer) Codec() Codec { return w.codec }

// Open starts recording into location. Calling Open while recording splits
// the recording: the current bag is closed in order and a fresh one starts at
// the new location. Nothing carries over; every topic must register again.
// When the implicit close fails, the new bag is not opened.
func (w *Writer) Open(ctx context.Context, location string, opts OpenOptions) error {
	if w.open {
		w.logger.Info().
			Str("from", w.location).
			Str("to", location).
			Msg("xbag: splitting recording")
		if err := w.Close(ctx); err != nil {
			return err
		}
	}
	return w.openStorage(ctx, location, opts, ModeWrite)
}

// CreateTopic registers a topic for this recording. Registering the same
// descriptor again is a no-op; a contradicting one fails with
// TopicConflictError and changes nothing.
func (w *Writer) CreateTopic(ctx context.Context, info TopicInfo) error {
	if !w.open {
		return ErrSessionNotOpen
	}
	created, err := w.topics.Create(info)
	if err != nil || !created {
		return err
	}
	if err := w.storage.WriteTopic(ctx, info); err != nil {
		return w.wrap("write topic", err)
	}
	return nil
}

// Write validates env against the topic registry and persists it. The
// payload is copied before it reaches the backend, so the caller may reuse
// its buffer. A zero ReceivedAt is stamped from the writer clock.
//
// An envelope on an unregistered topic registers the topic when it carries
// both Type and Format; otherwise the write fails with TopicConflictError.
// On a registered topic, a non-empty Type or Format that contradicts the
// registration fails with TypeMismatchError and nothing is persisted.
func (w *Writer) Write(ctx context.Context, env *Envelope) error {
	if !w.open {
		return ErrSessionNotOpen
	}
	if env == nil {
		return errors.New("xbag: envelope must not be nil")
	}
	if env.Topic == "" {
		return errors.New("xbag: envelope topic must not be empty")
	}

	info, ok := w.topics.Lookup(env.Topic)
	if !ok {
		if env.Type == "" || env.Format == "" {
			return &TopicConflictError{
				Topic:   env.Topic,
				Offered: TopicInfo{Name: env.Topic, Type: env.Type, Format: env.Format},
			}
		}
		info = TopicInfo{Name: env.Topic, Type: env.Type, Format: env.Format}
		if err := w.CreateTopic(ctx, info); err != nil {
			return err
		}
	} else if (env.Type != "" && env.Type != info.Type) ||
		(env.Format != "" && env.Format != info.Format) {
		return &TypeMismatchError{
			Topic:      env.Topic,
			Registered: info,
			Declared:   TopicInfo{Name: env.Topic, Type: env.Type, Format: env.Format},
		}
	}

	cp := env.Clone()
	cp.Type = info.Type
	cp.Format = info.Format
	if cp.ReceivedAt == 0 {
		cp.ReceivedAt = w.clock.Now().UnixNano()
	}

	if err := w.storage.WriteEnvelope(ctx, cp); err != nil {
		return w.wrap("write envelope", err)
	}
	w.stats.observe(cp.Topic, cp.ReceivedAt)
	return nil
}

// WriteMessage encodes v with the writer codec and records it on topic,
// stamped with the writer clock. The topic registers itself on first use
// with the codec name as its format.
func (w *Writer) WriteMessage(ctx context.Context, topic, typeID string, v any) error {
	if !w.open {
		return ErrSessionNotOpen
	}
	data, err := w.codec.Marshal(v)
	if err != nil {
		return err
	}
	return w.Write(ctx, &Envelope{
		Topic:      topic,
		Type:       typeID,
		Format:     w.codec.Name(),
		Payload:    data,
		ReceivedAt: w.clock.Now().UnixNano(),
	})
}

// Info returns the summary of the recording so far. A closed Writer has
// nothing to summarize.
func (w *Writer) Info() Metadata {
	if !w.open {
		return Metadata{}
	}
	return w.snapshot()
}

// Close finishes the recording and releases the backend. Backends that keep
// metadata receive the bag summary first; a summary write failure does not
// block the close. Closing a Writer that is not recording is a no-op.
func (w *Writer) Close(ctx context.Context) error {
	if !w.open {
		return nil
	}
	if ms, ok := w.storage.(MetadataStorage); ok {
		if err := ms.WriteMetadata(ctx, w.snapshot()); err != nil {
			w.logger.Warn().
				Str("location", w.location).
				Err(err).
				Msg("xbag: metadata write failed")
		}
	}
	return w.closeStorage(ctx)
}
