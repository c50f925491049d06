package sqlite

import (
	"fmt"
	"strings"
)

// Config for the SQLite storage backend.
type Config struct {
	// JournalMode is the SQLite journal mode (default "WAL").
	JournalMode string
	// BusyTimeout is how long a locked database is retried, in
	// milliseconds (default 5000).
	BusyTimeout int
	// Synchronous trades durability for write speed (default "NORMAL").
	Synchronous string
}

// Defaults returns a Config tuned for steady recording.
func Defaults() Config {
	return Config{
		JournalMode: "WAL",
		BusyTimeout: 5000,
		Synchronous: "NORMAL",
	}
}

// Validate checks Config before a database is opened with it.
func (c Config) Validate() error {
	if c.JournalMode == "" {
		return fmt.Errorf("config: journal_mode required")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("config: busy_timeout must be >= 0, got %d", c.BusyTimeout)
	}
	if c.Synchronous == "" {
		return fmt.Errorf("config: synchronous required")
	}
	return nil
}

// dsn appends the pragma query string to a database path.
func (c Config) dsn(path string) string {
	return fmt.Sprintf("%s?_journal_mode=%s&_foreign_keys=ON&_busy_timeout=%d&_synchronous=%s",
		path,
		strings.ToUpper(c.JournalMode),
		c.BusyTimeout,
		strings.ToUpper(c.Synchronous),
	)
}

// toMap converts Config to a generic map for the storage factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"journal_mode": c.JournalMode,
		"busy_timeout": c.BusyTimeout,
		"synchronous":  c.Synchronous,
	}
}

// ConfigFromMap safely converts a generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["journal_mode"].(string); ok && v != "" {
		c.JournalMode = v
	}
	if v, ok := m["busy_timeout"].(int); ok && v > 0 {
		c.BusyTimeout = v
	}
	if v, ok := m["synchronous"].(string); ok && v != "" {
		c.Synchronous = v
	}

	return c
}
