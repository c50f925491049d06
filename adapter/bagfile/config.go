package bagfile

import (
	"github.com/spf13/afero"
)

// Config controls bag file layout and verification.
type Config struct {
	// Compression selects per-record payload compression: "none", "lz4" or
	// "zstd". Incompressible payloads are stored uncompressed regardless.
	Compression string
	// Checksum stores a BLAKE3-256 digest per payload and verifies it on
	// replay.
	Checksum bool
	// Fs overrides the filesystem. Tests typically pass afero.NewMemMapFs().
	Fs afero.Fs
}

// Defaults returns a Config with verification on and no compression.
func Defaults() Config {
	return Config{
		Compression: "none",
		Checksum:    true,
	}
}

// ConfigFromMap safely converts a generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["compression"].(string); ok && v != "" {
		c.Compression = v
	}
	if v, ok := m["checksum"].(bool); ok {
		c.Checksum = v
	}
	if v, ok := m["fs"].(afero.Fs); ok && v != nil {
		c.Fs = v
	}

	return c
}

// toMap converts Config to the generic map expected by the storage factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"compression": c.Compression,
		"checksum":    c.Checksum,
		"fs":          c.Fs,
	}
}
