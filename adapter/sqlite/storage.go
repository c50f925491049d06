package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/trickstertwo/xbag"
)

// StorageName is the identifier used to select this backend.
const StorageName = "sqlite"

func init() {
	if err := xbag.RegisterStorage(StorageName, func(cfg map[string]any) (xbag.Storage, error) {
		return NewStorage(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xbag: failed to register storage %q: %w", StorageName, err))
	}
}

// schema keys replay on messages.id so playback follows the order writes
// were accepted, never the timestamp column.
const schema = `
CREATE TABLE topics (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	serialization_format TEXT NOT NULL
);
CREATE TABLE messages (
	id INTEGER PRIMARY KEY,
	topic_id INTEGER NOT NULL REFERENCES topics(id),
	timestamp INTEGER NOT NULL,
	data BLOB NOT NULL
);
CREATE INDEX idx_messages_timestamp ON messages(timestamp);
CREATE TABLE metadata (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	summary TEXT NOT NULL
);
`

const replayQuery = `
SELECT m.timestamp, m.data, t.name, t.type, t.serialization_format
FROM messages m
JOIN topics t ON t.id = m.topic_id
ORDER BY m.id`

// Storage keeps one bag per SQLite database file.
type Storage struct {
	cfg Config

	location string
	mode     xbag.Mode
	open     bool

	db        *sql.DB
	insertMsg *sql.Stmt
	topicIDs  map[string]int64

	rows      *sql.Rows
	peeked    *xbag.Envelope
	peekErr   error
	exhausted bool
}

var (
	_ xbag.Storage         = (*Storage)(nil)
	_ xbag.MetadataStorage = (*Storage)(nil)
)

// NewStorage builds a Storage from Config.
func NewStorage(cfg Config) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Storage{cfg: cfg}, nil
}

func (s *Storage) Open(ctx context.Context, location string, mode xbag.Mode) error {
	if s.open {
		return errors.New("sqlite storage is already open")
	}
	if location == "" {
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: errors.New("location must not be empty")}
	}
	location = filepath.Clean(location)

	switch mode {
	case xbag.ModeWrite:
		if err := s.openWrite(ctx, location); err != nil {
			return err
		}
	case xbag.ModeRead:
		if err := s.openRead(ctx, location); err != nil {
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

func (s *Storage) openWrite(ctx context.Context, location string) error {
	if _, err := os.Stat(location); err == nil {
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: errors.New("location already holds a bag")}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: err}
	}
	if dir := filepath.Dir(location); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &xbag.ConfigError{Storage: StorageName, Location: location, Err: fmt.Errorf("create bag dir: %w", err)}
		}
	}

	db, err := s.openDB(location)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("create bag schema: %w", err)
	}
	insertMsg, err := db.PrepareContext(ctx, `INSERT INTO messages (topic_id, timestamp, data) VALUES (?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("prepare message insert: %w", err)
	}

	s.db = db
	s.insertMsg = insertMsg
	s.topicIDs = make(map[string]int64)
	return nil
}

func (s *Storage) openRead(ctx context.Context, location string) error {
	if _, err := os.Stat(location); err != nil {
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: err}
	}

	db, err := s.openDB(location)
	if err != nil {
		return err
	}
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics`).Scan(&n); err != nil {
		_ = db.Close()
		return &xbag.ConfigError{Storage: StorageName, Location: location, Err: fmt.Errorf("not a bag database: %w", err)}
	}

	// db.Query, not QueryContext: the replay cursor has to outlive the
	// caller's open context.
	rows, err := db.Query(replayQuery)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("open replay cursor: %w", err)
	}

	s.db = db
	s.rows = rows
	return nil
}

func (s *Storage) openDB(location string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.cfg.dsn(location))
	if err != nil {
		return nil, &xbag.ConfigError{Storage: StorageName, Location: location, Err: fmt.Errorf("open sqlite db: %w", err)}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &xbag.ConfigError{Storage: StorageName, Location: location, Err: fmt.Errorf("ping sqlite db: %w", err)}
	}
	return db, nil
}

func (s *Storage) Close(_ context.Context) error {
	if !s.open {
		return nil
	}
	s.open = false

	var firstErr error
	if s.rows != nil {
		if err := s.rows.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.rows = nil
	}
	if s.insertMsg != nil {
		if err := s.insertMsg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.insertMsg = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.db = nil
	}
	s.peeked = nil
	s.peekErr = nil
	s.topicIDs = nil
	return firstErr
}

func (s *Storage) WriteTopic(ctx context.Context, info xbag.TopicInfo) error {
	if err := s.writable(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO topics (name, type, serialization_format) VALUES (?, ?, ?)`,
		info.Name, info.Type, info.Format,
	)
	if err != nil {
		return fmt.Errorf("insert topic %q: %w", info.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("topic %q row id: %w", info.Name, err)
	}
	s.topicIDs[info.Name] = id
	return nil
}

func (s *Storage) WriteEnvelope(ctx context.Context, env *xbag.Envelope) error {
	if err := s.writable(); err != nil {
		return err
	}
	id, ok := s.topicIDs[env.Topic]
	if !ok {
		return fmt.Errorf("topic %q not registered", env.Topic)
	}
	if _, err := s.insertMsg.ExecContext(ctx, id, env.ReceivedAt, env.Payload); err != nil {
		return fmt.Errorf("insert message on topic %q: %w", env.Topic, err)
	}
	return nil
}

// peek buffers the next row so HasNext can answer without advancing twice.
func (s *Storage) peek() error {
	if s.peeked != nil || s.exhausted {
		return nil
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return err
		}
		s.exhausted = true
		return nil
	}
	var (
		ts                int64
		data              []byte
		name, typ, format string
	)
	if err := s.rows.Scan(&ts, &data, &name, &typ, &format); err != nil {
		return err
	}
	s.peeked = &xbag.Envelope{
		Topic:      name,
		Type:       typ,
		Format:     format,
		Payload:    data,
		ReceivedAt: ts,
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
	if err := s.peek(); err != nil {
		s.peekErr = err
		return true // Keep the failure for ReadNext so the loop surfaces it.
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
	env := s.peeked
	s.peeked = nil
	return env, nil
}

func (s *Storage) Topics(ctx context.Context) ([]xbag.TopicInfo, error) {
	if !s.open {
		return nil, errors.New("sqlite storage is not open")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name, type, serialization_format FROM topics ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var topics []xbag.TopicInfo
	for rows.Next() {
		var info xbag.TopicInfo
		if err := rows.Scan(&info.Name, &info.Type, &info.Format); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

func (s *Storage) WriteMetadata(ctx context.Context, meta xbag.Metadata) error {
	if err := s.writable(); err != nil {
		return err
	}
	summary, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (id, summary) VALUES (1, ?) ON CONFLICT (id) DO UPDATE SET summary = excluded.summary`,
		string(summary),
	); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (s *Storage) Metadata(ctx context.Context) (xbag.Metadata, error) {
	if !s.open {
		return xbag.Metadata{}, errors.New("sqlite storage is not open")
	}
	var summary string
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM metadata WHERE id = 1`).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return xbag.Metadata{}, errors.New("bag has no recorded metadata")
	}
	if err != nil {
		return xbag.Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta xbag.Metadata
	if err := json.Unmarshal([]byte(summary), &meta); err != nil {
		return xbag.Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// Helper functions

func (s *Storage) writable() error {
	if !s.open {
		return errors.New("sqlite storage is not open")
	}
	if s.mode != xbag.ModeWrite {
		return errors.New("sqlite storage is open for reading")
	}
	return nil
}

func (s *Storage) readable() error {
	if !s.open {
		return errors.New("sqlite storage is not open")
	}
	if s.mode != xbag.ModeRead {
		return errors.New("sqlite storage is open for writing")
	}
	return nil
}
