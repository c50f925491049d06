package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/trickstertwo/xbag"
)

const StorageName = "memory"

func init() {
	if err := xbag.RegisterStorage(StorageName, func(cfg map[string]any) (xbag.Storage, error) {
		return NewStorage(ConfigFromMap(cfg)), nil
	}); err != nil {
		panic(fmt.Errorf("xbag/memory: failed to register storage: %w", err))
	}
}

// Config controls memory storage behavior.
type Config struct {
	// InitialCapacity pre-sizes the envelope slice of a new bag (default: 0).
	InitialCapacity int
}

func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}

	return Config{
		InitialCapacity: maxInt(0, getInt("initial_capacity", 0)),
	}
}

// Process-wide bag store. Writers and readers in one process meet here;
// distinct locations never share state.
var (
	bagsMu sync.RWMutex
	bags   = map[string]*bag{}
)

type bag struct {
	topics    []xbag.TopicInfo
	envelopes []*xbag.Envelope
	meta      xbag.Metadata
	hasMeta   bool
	recording bool
}

// Storage implements xbag.Storage backed by process memory (dev/testing).
// Bags live for the lifetime of the process. Each read-mode instance keeps a
// private cursor, so multiple readers can replay one location independently.
type Storage struct {
	cfg Config

	mu       sync.Mutex
	location string
	mode     xbag.Mode
	open     bool
	cur      *bag
	pos      int
}

var _ xbag.Storage = (*Storage)(nil)
var _ xbag.MetadataStorage = (*Storage)(nil)

// NewStorage creates an unbound memory storage instance.
func NewStorage(cfg Config) *Storage {
	return &Storage{cfg: cfg}
}

func (s *Storage) Open(_ context.Context, location string, mode xbag.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return errors.New("memory storage is already open")
	}
	if location == "" {
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: errors.New("location must not be empty")}
	}

	bagsMu.Lock()
	defer bagsMu.Unlock()

	switch mode {
	case xbag.ModeWrite:
		if _, ok := bags[location]; ok {
			return &xbag.ConfigError{Storage: StorageName, Location: location, Err: errors.New("location already holds a bag")}
		}
		b := &bag{recording: true}
		if s.cfg.InitialCapacity > 0 {
			b.envelopes = make([]*xbag.Envelope, 0, s.cfg.InitialCapacity)
		}
		bags[location] = b
		s.cur = b
	case xbag.ModeRead:
		b, ok := bags[location]
		if !ok {
			return &xbag.ConfigError{Storage: StorageName, Location: location, Err: errors.New("location holds no bag")}
		}
		if b.recording {
			return &xbag.ConfigError{Storage: StorageName, Location: location, Err: errors.New("bag is still being recorded")}
		}
		s.cur = b
	default:
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: fmt.Errorf("unsupported mode %d", mode)}
	}

	s.location = location
	s.mode = mode
	s.open = true
	s.pos = 0
	return nil
}

// Close ends the session. A closing writer seals the bag, making it visible
// to readers. Idempotent.
func (s *Storage) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	if s.mode == xbag.ModeWrite {
		bagsMu.Lock()
		s.cur.recording = false
		bagsMu.Unlock()
	}
	s.open = false
	s.cur = nil
	return nil
}

func (s *Storage) WriteTopic(_ context.Context, info xbag.TopicInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	s.cur.topics = append(s.cur.topics, info)
	return nil
}

func (s *Storage) WriteEnvelope(_ context.Context, env *xbag.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	s.cur.envelopes = append(s.cur.envelopes, env)
	return nil
}

func (s *Storage) HasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open && s.mode == xbag.ModeRead && s.pos < len(s.cur.envelopes)
}

func (s *Storage) ReadNext(_ context.Context) (*xbag.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readable(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.cur.envelopes) {
		return nil, xbag.ErrEndOfBag
	}
	env := s.cur.envelopes[s.pos]
	s.pos++
	// The stored record stays immutable even if the consumer mutates.
	return env.Clone(), nil
}

func (s *Storage) Topics(_ context.Context) ([]xbag.TopicInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, errors.New("memory storage is not open")
	}
	out := make([]xbag.TopicInfo, len(s.cur.topics))
	copy(out, s.cur.topics)
	return out, nil
}

func (s *Storage) WriteMetadata(_ context.Context, meta xbag.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	s.cur.meta = meta
	s.cur.hasMeta = true
	return nil
}

func (s *Storage) Metadata(_ context.Context) (xbag.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return xbag.Metadata{}, errors.New("memory storage is not open")
	}
	if !s.cur.hasMeta {
		return xbag.Metadata{}, errors.New("bag has no recorded metadata")
	}
	return s.cur.meta, nil
}

// Helper functions

func (s *Storage) writable() error {
	if !s.open {
		return errors.New("memory storage is not open")
	}
	if s.mode != xbag.ModeWrite {
		return errors.New("memory storage is open for reading")
	}
	return nil
}

func (s *Storage) readable() error {
	if !s.open {
		return errors.New("memory storage is not open")
	}
	if s.mode != xbag.ModeRead {
		return errors.New("memory storage is open for writing")
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
