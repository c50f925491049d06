package xbag

import (
	"context"
	"errors"

	"github.com/trickstertwo/xlog"
)

// session owns one storage instance and the bookkeeping for one open bag.
// Writer and Reader embed it. A session is single-threaded: it is never
// shared between goroutines without external synchronization.
type session struct {
	logger *xlog.Logger

	storage     Storage
	storageName string
	location    string
	mode        Mode
	open        bool

	topics *TopicRegistry
	stats  stats
}

// stats accumulates the recording summary that becomes Metadata.
type stats struct {
	messageCount int64
	startNs      int64
	endNs        int64
	perTopic     map[string]int64
}

func (st *stats) observe(topic string, ns int64) {
	if st.perTopic == nil {
		st.perTopic = make(map[string]int64)
	}
	st.perTopic[topic]++
	st.messageCount++
	if st.messageCount == 1 {
		st.startNs, st.endNs = ns, ns
		return
	}
	if ns < st.startNs {
		st.startNs = ns
	}
	if ns > st.endNs {
		st.endNs = ns
	}
}

// openStorage resolves the backend and binds it to the location. The session
// must be closed; public Open methods handle the implicit close first.
func (s *session) openStorage(ctx context.Context, location string, opts OpenOptions, mode Mode) error {
	if s.open {
		return ErrSessionAlreadyOpen
	}

	st := opts.StorageInstance
	if st == nil {
		var err error
		st, err = NewStorage(opts.Storage, opts.StorageConfig)
		if err != nil {
			return err
		}
	}

	if err := st.Open(ctx, location, mode); err != nil {
		return wrapStorage("open", opts.Storage, location, err)
	}

	s.storage = st
	s.storageName = opts.Storage
	s.location = location
	s.mode = mode
	s.open = true
	s.topics = NewTopicRegistry()
	s.stats = stats{}

	s.logger.Debug().
		Str("storage", s.storageName).
		Str("location", location).
		Str("mode", mode.String()).
		Msg("xbag: session open")
	return nil
}

// closeStorage releases the backend. The session leaves the open state even
// when the backend close fails; the handle is never kept.
func (s *session) closeStorage(ctx context.Context) error {
	if !s.open {
		return nil
	}
	st := s.storage
	s.open = false
	s.storage = nil

	err := st.Close(ctx)
	s.logger.Debug().
		Str("storage", s.storageName).
		Str("location", s.location).
		Err(err).
		Msg("xbag: session closed")
	if err != nil {
		return s.wrap("close", err)
	}
	return nil
}

// snapshot assembles the bag summary from the session bookkeeping.
func (s *session) snapshot() Metadata {
	topics := s.topics.Topics()
	counts := make([]TopicCount, 0, len(topics))
	for _, info := range topics {
		counts = append(counts, TopicCount{Topic: info, MessageCount: s.stats.perTopic[info.Name]})
	}
	return Metadata{
		Storage:      s.storageName,
		Location:     s.location,
		MessageCount: s.stats.messageCount,
		StartTimeNs:  s.stats.startNs,
		EndTimeNs:    s.stats.endNs,
		Topics:       counts,
	}
}

func (s *session) wrap(op string, err error) error {
	return wrapStorage(op, s.storageName, s.location, err)
}

// wrapStorage labels a backend failure, passing through errors that already
// carry enough context.
func wrapStorage(op, storage, location string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEndOfBag) {
		return err
	}
	var ce *ConfigError
	var se *StorageError
	if errors.As(err, &ce) || errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Storage: storage, Location: location, Err: err}
}
