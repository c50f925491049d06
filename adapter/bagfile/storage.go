package bagfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/trickstertwo/xbag"
)

const StorageName = "bagfile"

// metadataSuffix names the YAML sidecar written next to the bag file.
const metadataSuffix = ".meta.yaml"

func init() {
	if err := xbag.RegisterStorage(StorageName, func(cfg map[string]any) (xbag.Storage, error) {
		return NewStorage(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xbag: failed to register storage %q: %w", StorageName, err))
	}
}

// Storage implements xbag.Storage as a single flat file. Writes append
// records through a streaming CBOR encoder; reads decode them back with a
// one-record lookahead so HasNext never consumes.
type Storage struct {
	cfg  Config
	fs   afero.Fs
	comp uint8

	location string
	mode     xbag.Mode
	open     bool

	file afero.File
	enc  *cbor.Encoder

	dec          *cbor.Decoder
	peeked       *envelopeRecord
	peekErr      error
	exhausted    bool
	topics       []xbag.TopicInfo
	topicsByName map[string]xbag.TopicInfo
}

var _ xbag.Storage = (*Storage)(nil)
var _ xbag.MetadataStorage = (*Storage)(nil)

// NewStorage creates an unbound bagfile storage instance.
func NewStorage(cfg Config) (*Storage, error) {
	comp, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Storage{cfg: cfg, fs: fs, comp: comp}, nil
}

func (s *Storage) Open(_ context.Context, location string, mode xbag.Mode) error {
	if s.open {
		return errors.New("bagfile storage is already open")
	}
	if location == "" {
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: errors.New("location must not be empty")}
	}

	switch mode {
	case xbag.ModeWrite:
		if err := s.openWrite(location); err != nil {
			return err
		}
	case xbag.ModeRead:
		if err := s.openRead(location); err != nil {
			return err
		}
	default:
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: fmt.Errorf("unsupported mode %d", mode)}
	}

	s.location = location
	s.mode = mode
	s.open = true
	return nil
}

func (s *Storage) openWrite(location string) error {
	if dir := filepath.Dir(location); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create bag directory: %w", err)
		}
	}
	// O_EXCL: one bag per location, ever.
	f, err := s.fs.OpenFile(location, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: err}
	}
	if _, err := f.Write(preamble()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write preamble: %w", err)
	}
	enc := encMode.NewEncoder(f)
	if err := enc.Encode(fileHeader{Compression: compressionName(s.comp), Checksum: s.cfg.Checksum}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write header: %w", err)
	}

	s.file = f
	s.enc = enc
	s.topics = nil
	s.topicsByName = make(map[string]xbag.TopicInfo)
	return nil
}

func (s *Storage) openRead(location string) error {
	f, err := s.fs.Open(location)
	if err != nil {
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: err}
	}

	head := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(f, head); err != nil {
		_ = f.Close()
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: fmt.Errorf("read preamble: %w", err)}
	}
	if string(head[:len(magic)]) != magic {
		_ = f.Close()
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: errors.New("not a bag file")}
	}
	if head[len(magic)] != version {
		_ = f.Close()
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: fmt.Errorf("unsupported bag version %d", head[len(magic)])}
	}

	dec := decMode.NewDecoder(f)
	var hdr fileHeader
	if err := dec.Decode(&hdr); err != nil {
		_ = f.Close()
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: fmt.Errorf("read header: %w", err)}
	}
	dataStart := int64(len(head)) + int64(dec.NumBytesRead())

	// Registrations may interleave with envelopes anywhere in the file, so
	// collect them in one forward scan before replay starts.
	topics, err := collectTopics(dec)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("scan bag: %w", err)
	}

	if _, err := f.Seek(dataStart, io.SeekStart); err != nil {
		_ = f.Close()
		return fmt.Errorf("rewind bag: %w", err)
	}

	s.file = f
	s.dec = decMode.NewDecoder(f)
	s.topics = topics
	s.topicsByName = make(map[string]xbag.TopicInfo, len(topics))
	for _, info := range topics {
		s.topicsByName[info.Name] = info
	}
	s.peeked = nil
	s.peekErr = nil
	s.exhausted = false
	return nil
}

func collectTopics(dec *cbor.Decoder) ([]xbag.TopicInfo, error) {
	var topics []xbag.TopicInfo
	for {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return topics, nil
			}
			return nil, err
		}
		if rec.Kind == kindTopic && rec.Topic != nil {
			topics = append(topics, xbag.TopicInfo{
				Name:   rec.Topic.Name,
				Type:   rec.Topic.Type,
				Format: rec.Topic.Format,
			})
		}
	}
}

// Close flushes and releases the file handle. Idempotent.
func (s *Storage) Close(_ context.Context) error {
	if !s.open {
		return nil
	}
	s.open = false
	s.enc = nil
	s.dec = nil
	s.peeked = nil
	s.peekErr = nil

	f := s.file
	s.file = nil
	if f == nil {
		return nil
	}
	if s.mode == xbag.ModeWrite {
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("sync bag: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close bag: %w", err)
	}
	return nil
}

func (s *Storage) WriteTopic(_ context.Context, info xbag.TopicInfo) error {
	if err := s.writable(); err != nil {
		return err
	}
	rec := record{Kind: kindTopic, Topic: &topicRecord{
		Name:   info.Name,
		Type:   info.Type,
		Format: info.Format,
	}}
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("write topic record: %w", err)
	}
	s.topics = append(s.topics, info)
	s.topicsByName[info.Name] = info
	return nil
}

func (s *Storage) WriteEnvelope(_ context.Context, env *xbag.Envelope) error {
	if err := s.writable(); err != nil {
		return err
	}

	data, tag, err := compressPayload(env.Payload, s.comp)
	if err != nil {
		return err
	}
	rec := record{Kind: kindEnvelope, Envelope: &envelopeRecord{
		Topic:       env.Topic,
		ReceivedAt:  env.ReceivedAt,
		Compression: tag,
		Size:        len(env.Payload),
		Data:        data,
	}}
	if s.cfg.Checksum {
		sum := blake3.Sum256(env.Payload)
		rec.Envelope.Sum = sum[:]
	}
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("write envelope record: %w", err)
	}
	return nil
}

// peek advances to the next envelope record, skipping topic records.
func (s *Storage) peek() error {
	if s.peeked != nil || s.exhausted {
		return nil
	}
	for {
		var rec record
		if err := s.dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				s.exhausted = true
				return nil
			}
			return fmt.Errorf("read record: %w", err)
		}
		switch rec.Kind {
		case kindTopic:
			continue
		case kindEnvelope:
			if rec.Envelope == nil {
				return errors.New("envelope record without body")
			}
			s.peeked = rec.Envelope
			return nil
		default:
			return fmt.Errorf("unknown record kind %d", rec.Kind)
		}
	}
}

func (s *Storage) HasNext() bool {
	if !s.open || s.mode != xbag.ModeRead {
		return false
	}
	if err := s.peek(); err != nil {
		// Keep the failure for ReadNext so the loop surfaces it.
		s.peekErr = err
		return true
	}
	return s.peeked != nil
}

func (s *Storage) ReadNext(_ context.Context) (*xbag.Envelope, error) {
	if err := s.readable(); err != nil {
		return nil, err
	}
	if s.peekErr != nil {
		err := s.peekErr
		s.peekErr = nil
		return nil, err
	}
	if err := s.peek(); err != nil {
		return nil, err
	}
	if s.peeked == nil {
		return nil, xbag.ErrEndOfBag
	}
	rec := s.peeked
	s.peeked = nil

	payload, err := decompressPayload(rec.Data, rec.Compression, rec.Size)
	if err != nil {
		return nil, err
	}
	if len(rec.Sum) > 0 {
		sum := blake3.Sum256(payload)
		if !bytes.Equal(sum[:], rec.Sum) {
			return nil, fmt.Errorf("payload checksum mismatch on topic %q", rec.Topic)
		}
	}

	info := s.topicsByName[rec.Topic]
	return &xbag.Envelope{
		Topic:      rec.Topic,
		Type:       info.Type,
		Format:     info.Format,
		Payload:    payload,
		ReceivedAt: rec.ReceivedAt,
	}, nil
}

func (s *Storage) Topics(_ context.Context) ([]xbag.TopicInfo, error) {
	if !s.open {
		return nil, errors.New("bagfile storage is not open")
	}
	out := make([]xbag.TopicInfo, len(s.topics))
	copy(out, s.topics)
	return out, nil
}

func (s *Storage) WriteMetadata(_ context.Context, meta xbag.Metadata) error {
	if err := s.writable(); err != nil {
		return err
	}
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.location+metadataSuffix, data, 0o644); err != nil {
		return fmt.Errorf("write metadata sidecar: %w", err)
	}
	return nil
}

func (s *Storage) Metadata(_ context.Context) (xbag.Metadata, error) {
	if !s.open {
		return xbag.Metadata{}, errors.New("bagfile storage is not open")
	}
	data, err := afero.ReadFile(s.fs, s.location+metadataSuffix)
	if err != nil {
		return xbag.Metadata{}, fmt.Errorf("read metadata sidecar: %w", err)
	}
	var meta xbag.Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return xbag.Metadata{}, fmt.Errorf("decode metadata sidecar: %w", err)
	}
	return meta, nil
}

// Helper functions

func (s *Storage) writable() error {
	if !s.open {
		return errors.New("bagfile storage is not open")
	}
	if s.mode != xbag.ModeWrite {
		return errors.New("bagfile storage is open for reading")
	}
	return nil
}

func (s *Storage) readable() error {
	if !s.open {
		return errors.New("bagfile storage is not open")
	}
	if s.mode != xbag.ModeRead {
		return errors.New("bagfile storage is open for writing")
	}
	return nil
}
