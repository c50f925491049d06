package redisstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "127.0.0.1:6379", cfg.Addr)
	assert.Equal(t, 0, cfg.DB)
	assert.False(t, cfg.TLS)
	assert.Equal(t, 256, cfg.BatchSize)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := Defaults()
	cfg.Addr = ""
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.BatchSize = 0
	require.Error(t, cfg.Validate())
}

func TestConfigFromMap(t *testing.T) {
	assert.Equal(t, Defaults(), ConfigFromMap(nil))

	cfg := ConfigFromMap(map[string]any{
		"addr":            "redis.internal:6380",
		"username":        "recorder",
		"password":        "secret",
		"db":              3,
		"tls":             true,
		"tls_server_name": "redis.internal",
		"batch_size":      64,
	})
	assert.Equal(t, Config{
		Addr:          "redis.internal:6380",
		Username:      "recorder",
		Password:      "secret",
		DB:            3,
		TLS:           true,
		TLSServerName: "redis.internal",
		BatchSize:     64,
	}, cfg)

	// Empty addr and non-positive batch sizes keep the defaults.
	cfg = ConfigFromMap(map[string]any{"addr": "", "batch_size": 0})
	assert.Equal(t, Defaults(), cfg)
}

func TestOptions(t *testing.T) {
	in := Defaults()
	in.Addr = "localhost:7000"
	in.BatchSize = 32

	opts := Options(in)
	assert.Equal(t, StorageName, opts.Storage)
	assert.Equal(t, in, ConfigFromMap(opts.StorageConfig))
}
