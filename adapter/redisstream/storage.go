package redisstream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xbag"
)

// StorageName is the identifier used to select this backend.
const StorageName = "redis-streams"

func init() {
	if err := xbag.RegisterStorage(StorageName, func(cfg map[string]any) (xbag.Storage, error) {
		return NewStorage(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xbag: failed to register storage %q: %w", StorageName, err))
	}
}

// Field constants (avoid typos/allocs)
const (
	fieldTopic      = "topic"
	fieldType       = "type"
	fieldFormat     = "format"
	fieldPayload    = "payload"    // raw []byte to reduce allocs (no base64)
	fieldReceivedAt = "receivedAt" // int64 ns
)

// Storage keeps one bag per Redis stream. Topic registrations live in a
// side list and the bag summary in a string key, both derived from the
// stream name.
type Storage struct {
	cfg Config

	location string
	mode     xbag.Mode
	open     bool

	client *redis.Client

	buf     []redis.XMessage
	pos     int
	lastID  string
	peekErr error
}

var (
	_ xbag.Storage         = (*Storage)(nil)
	_ xbag.MetadataStorage = (*Storage)(nil)
)

// NewStorage builds a Storage from Config. The connection is established
// on Open, not here, so a closed Storage can be opened again.
func NewStorage(cfg Config) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Storage{cfg: cfg}, nil
}

func (s *Storage) topicsKey() string   { return s.location + ":topics" }
func (s *Storage) metadataKey() string { return s.location + ":metadata" }

func (s *Storage) Open(ctx context.Context, location string, mode xbag.Mode) error {
	if s.open {
		return errors.New("redis storage is already open")
	}
	if location == "" {
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: errors.New("location must not be empty")}
	}
	if mode != xbag.ModeRead && mode != xbag.ModeWrite {
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: fmt.Errorf("unsupported mode %d", mode)}
	}

	opts := &redis.Options{
		Addr:     s.cfg.Addr,
		Username: s.cfg.Username,
		Password: s.cfg.Password,
		DB:       s.cfg.DB,
	}
	if s.cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    s.cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}
	client := redis.NewClient(opts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: err}
	}

	keys := []string{location, location + ":topics", location + ":metadata"}
	n, err := client.Exists(ctx, keys...).Result()
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("check bag keys: %w", err)
	}
	switch mode {
	case xbag.ModeWrite:
		if n > 0 {
			_ = client.Close()
			return &xbag.ConfigError{Storage: StorageName, Location: location, Err: errors.New("location already holds a bag")}
		}
	case xbag.ModeRead:
		if n == 0 {
			_ = client.Close()
			return &xbag.ConfigError{Storage: StorageName, Location: location, Err: errors.New("location holds no bag")}
		}
	}

	s.client = client
	s.location = location
	s.mode = mode
	s.open = true
	s.buf = nil
	s.pos = 0
	s.lastID = ""
	s.peekErr = nil
	return nil
}

func (s *Storage) Close(_ context.Context) error {
	if !s.open {
		return nil
	}
	s.open = false

	err := s.client.Close()
	s.client = nil
	s.buf = nil
	s.peekErr = nil
	return err
}

func (s *Storage) WriteTopic(ctx context.Context, info xbag.TopicInfo) error {
	if err := s.writable(); err != nil {
		return err
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode topic %q: %w", info.Name, err)
	}
	if err := s.client.RPush(ctx, s.topicsKey(), data).Err(); err != nil {
		return fmt.Errorf("push topic %q: %w", info.Name, err)
	}
	return nil
}

func (s *Storage) WriteEnvelope(ctx context.Context, env *xbag.Envelope) error {
	if err := s.writable(); err != nil {
		return err
	}
	// "*" lets Redis assign the stream ID, so entry order is accept order.
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.location,
		ID:     "*",
		Values: map[string]any{
			fieldTopic:      env.Topic,
			fieldType:       env.Type,
			fieldFormat:     env.Format,
			fieldPayload:    env.Payload,
			fieldReceivedAt: env.ReceivedAt,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append envelope on topic %q: %w", env.Topic, err)
	}
	return nil
}

// fill pages the next batch of stream entries into the buffer. An empty
// fetch leaves the buffer drained rather than marking the stream done, so
// entries appended later still surface on the next call.
func (s *Storage) fill(ctx context.Context) error {
	if s.pos < len(s.buf) {
		return nil
	}
	start := "-"
	if s.lastID != "" {
		start = "(" + s.lastID
	}
	msgs, err := s.client.XRangeN(ctx, s.location, start, "+", int64(s.cfg.BatchSize)).Result()
	if err != nil {
		return err
	}
	s.buf = msgs
	s.pos = 0
	if len(msgs) > 0 {
		s.lastID = msgs[len(msgs)-1].ID
	}
	return nil
}

func (s *Storage) HasNext() bool {
	if !s.open || s.mode != xbag.ModeRead {
		return false
	}
	if s.peekErr != nil {
		return true
	}
	if err := s.fill(context.Background()); err != nil {
		s.peekErr = err
		return true // Keep the failure for ReadNext so the loop surfaces it.
	}
	return s.pos < len(s.buf)
}

func (s *Storage) ReadNext(ctx context.Context) (*xbag.Envelope, error) {
	if err := s.readable(); err != nil {
		return nil, err
	}
	if s.peekErr != nil {
		err := s.peekErr
		s.peekErr = nil
		return nil, err
	}
	if err := s.fill(ctx); err != nil {
		return nil, err
	}
	if s.pos >= len(s.buf) {
		return nil, xbag.ErrEndOfBag
	}
	msg := s.buf[s.pos]
	s.pos++
	return decodeEnvelope(msg), nil
}

func (s *Storage) Topics(ctx context.Context) ([]xbag.TopicInfo, error) {
	if !s.open {
		return nil, errors.New("redis storage is not open")
	}
	items, err := s.client.LRange(ctx, s.topicsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read topics: %w", err)
	}
	topics := make([]xbag.TopicInfo, 0, len(items))
	for _, item := range items {
		var info xbag.TopicInfo
		if err := json.Unmarshal([]byte(item), &info); err != nil {
			return nil, fmt.Errorf("decode topic entry: %w", err)
		}
		topics = append(topics, info)
	}
	return topics, nil
}

func (s *Storage) WriteMetadata(ctx context.Context, meta xbag.Metadata) error {
	if err := s.writable(); err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := s.client.Set(ctx, s.metadataKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (s *Storage) Metadata(ctx context.Context) (xbag.Metadata, error) {
	if !s.open {
		return xbag.Metadata{}, errors.New("redis storage is not open")
	}
	data, err := s.client.Get(ctx, s.metadataKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return xbag.Metadata{}, errors.New("bag has no recorded metadata")
	}
	if err != nil {
		return xbag.Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta xbag.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return xbag.Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// Helper functions

func (s *Storage) writable() error {
	if !s.open {
		return errors.New("redis storage is not open")
	}
	if s.mode != xbag.ModeWrite {
		return errors.New("redis storage is open for reading")
	}
	return nil
}

func (s *Storage) readable() error {
	if !s.open {
		return errors.New("redis storage is not open")
	}
	if s.mode != xbag.ModeRead {
		return errors.New("redis storage is open for writing")
	}
	return nil
}

func decodeEnvelope(msg redis.XMessage) *xbag.Envelope {
	env := &xbag.Envelope{}
	if v, ok := msg.Values[fieldTopic]; ok {
		env.Topic = asString(v)
	}
	if v, ok := msg.Values[fieldType]; ok {
		env.Type = asString(v)
	}
	if v, ok := msg.Values[fieldFormat]; ok {
		env.Format = asString(v)
	}
	if v, ok := msg.Values[fieldPayload]; ok {
		switch p := v.(type) {
		case []byte:
			env.Payload = p
		case string:
			env.Payload = []byte(p)
		}
	}
	if v := msg.Values[fieldReceivedAt]; v != nil {
		if ns, ok := toInt64(v); ok {
			env.ReceivedAt = ns
		}
	}
	return env
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		if n == "" {
			return 0, false
		}
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int64(f), true
		}
	case []byte:
		return toInt64(string(n))
	}
	return 0, false
}

func ping(c *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}
	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}
	return nil
}
