package bagfile

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xbag"
)

func newMemStorage(t *testing.T, cfg Config) (*Storage, afero.Fs) {
	t.Helper()
	if cfg.Fs == nil {
		cfg.Fs = afero.NewMemMapFs()
	}
	s, err := NewStorage(cfg)
	require.NoError(t, err)
	return s, cfg.Fs
}

func TestNewStorage_InvalidCompression(t *testing.T) {
	_, err := NewStorage(Config{Compression: "gzip"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown compression")
}

func TestStorage_RoundTrip(t *testing.T) {
	for _, compression := range []string{"none", "lz4", "zstd"} {
		t.Run(compression, func(t *testing.T) {
			ctx := context.Background()
			cfg := Defaults()
			cfg.Compression = compression
			w, fs := newMemStorage(t, cfg)

			require.NoError(t, w.Open(ctx, "run.bag", xbag.ModeWrite))
			require.NoError(t, w.WriteTopic(ctx, xbag.TopicInfo{Name: "/scan", Type: "demo/Scan", Format: "cbor"}))

			big := bytes.Repeat([]byte("range reading "), 128)
			envelopes := []*xbag.Envelope{
				{Topic: "/scan", Payload: big, ReceivedAt: 100},
				{Topic: "/scan", Payload: []byte("tiny"), ReceivedAt: 200},
				{Topic: "/scan", Payload: big, ReceivedAt: 150},
			}
			for _, env := range envelopes {
				require.NoError(t, w.WriteEnvelope(ctx, env))
			}
			require.NoError(t, w.Close(ctx))

			cfg.Fs = fs
			r, _ := newMemStorage(t, cfg)
			require.NoError(t, r.Open(ctx, "run.bag", xbag.ModeRead))

			topics, err := r.Topics(ctx)
			require.NoError(t, err)
			require.Len(t, topics, 1)
			assert.Equal(t, "demo/Scan", topics[0].Type)

			for i, want := range envelopes {
				require.True(t, r.HasNext(), "envelope %d", i)
				env, err := r.ReadNext(ctx)
				require.NoError(t, err)
				assert.Equal(t, want.Payload, env.Payload, "envelope %d", i)
				assert.Equal(t, want.ReceivedAt, env.ReceivedAt, "envelope %d", i)
				assert.Equal(t, "demo/Scan", env.Type)
				assert.Equal(t, "cbor", env.Format)
			}
			assert.False(t, r.HasNext())
			_, err = r.ReadNext(ctx)
			assert.ErrorIs(t, err, xbag.ErrEndOfBag)

			require.NoError(t, r.Close(ctx))
		})
	}
}

func TestStorage_WriteOpenExistingLocation(t *testing.T) {
	ctx := context.Background()
	w, fs := newMemStorage(t, Defaults())
	require.NoError(t, w.Open(ctx, "run.bag", xbag.ModeWrite))
	require.NoError(t, w.Close(ctx))

	cfg := Defaults()
	cfg.Fs = fs
	dup, _ := newMemStorage(t, cfg)
	err := dup.Open(ctx, "run.bag", xbag.ModeWrite)
	var ce *xbag.ConfigError
	require.ErrorAs(t, err, &ce)
}

func TestStorage_ReadOpenMissingLocation(t *testing.T) {
	s, _ := newMemStorage(t, Defaults())
	err := s.Open(context.Background(), "missing.bag", xbag.ModeRead)
	var ce *xbag.ConfigError
	require.ErrorAs(t, err, &ce)
}

func TestStorage_ReadOpenRejectsForeignFile(t *testing.T) {
	ctx := context.Background()
	s, fs := newMemStorage(t, Defaults())

	require.NoError(t, afero.WriteFile(fs, "junk.bag", []byte("JUNKDATA and then some"), 0o644))
	err := s.Open(ctx, "junk.bag", xbag.ModeRead)
	var ce *xbag.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "not a bag file")

	require.NoError(t, afero.WriteFile(fs, "future.bag", append([]byte(magic), 99), 0o644))
	err = s.Open(ctx, "future.bag", xbag.ModeRead)
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "unsupported bag version")
}

func TestStorage_ChecksumDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	cfg := Defaults() // checksum on, no compression: payload bytes land verbatim
	w, fs := newMemStorage(t, cfg)

	payload := []byte("PAYLOAD-MARKER-0123456789")
	require.NoError(t, w.Open(ctx, "run.bag", xbag.ModeWrite))
	require.NoError(t, w.WriteEnvelope(ctx, &xbag.Envelope{Topic: "/t", Payload: payload, ReceivedAt: 1}))
	require.NoError(t, w.Close(ctx))

	// Flip payload bytes on disk without touching the record structure.
	data, err := afero.ReadFile(fs, "run.bag")
	require.NoError(t, err)
	corrupted := bytes.Replace(data, []byte("MARKER"), []byte("MARKEX"), 1)
	require.NotEqual(t, data, corrupted)
	require.NoError(t, afero.WriteFile(fs, "run.bag", corrupted, 0o644))

	cfg.Fs = fs
	r, _ := newMemStorage(t, cfg)
	require.NoError(t, r.Open(ctx, "run.bag", xbag.ModeRead))
	require.True(t, r.HasNext())
	_, err = r.ReadNext(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
	require.NoError(t, r.Close(ctx))
}

func TestStorage_TruncatedTailSurfacesOnRead(t *testing.T) {
	ctx := context.Background()
	w, fs := newMemStorage(t, Defaults())
	require.NoError(t, w.Open(ctx, "run.bag", xbag.ModeWrite))
	require.NoError(t, w.WriteEnvelope(ctx, &xbag.Envelope{Topic: "/t", Payload: []byte("ok"), ReceivedAt: 1}))
	require.NoError(t, w.Close(ctx))

	data, err := afero.ReadFile(fs, "run.bag")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "run.bag", append(data, 0xFF), 0o644))

	cfg := Defaults()
	cfg.Fs = fs
	r, _ := newMemStorage(t, cfg)
	require.NoError(t, r.Open(ctx, "run.bag", xbag.ModeRead))

	env, err := r.ReadNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), env.Payload)

	// The damaged tail must surface as an error, not a silent stop.
	require.True(t, r.HasNext())
	_, err = r.ReadNext(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, xbag.ErrEndOfBag)
	require.NoError(t, r.Close(ctx))
}

func TestStorage_TopicsInterleavedWithEnvelopes(t *testing.T) {
	ctx := context.Background()
	w, fs := newMemStorage(t, Defaults())
	require.NoError(t, w.Open(ctx, "run.bag", xbag.ModeWrite))

	require.NoError(t, w.WriteTopic(ctx, xbag.TopicInfo{Name: "/a", Type: "demo/A", Format: "json"}))
	require.NoError(t, w.WriteEnvelope(ctx, &xbag.Envelope{Topic: "/a", Payload: []byte("1"), ReceivedAt: 1}))
	require.NoError(t, w.WriteTopic(ctx, xbag.TopicInfo{Name: "/b", Type: "demo/B", Format: "cbor"}))
	require.NoError(t, w.WriteEnvelope(ctx, &xbag.Envelope{Topic: "/b", Payload: []byte("2"), ReceivedAt: 2}))
	require.NoError(t, w.Close(ctx))

	cfg := Defaults()
	cfg.Fs = fs
	r, _ := newMemStorage(t, cfg)
	require.NoError(t, r.Open(ctx, "run.bag", xbag.ModeRead))

	// Registrations anywhere in the file are visible before replay starts.
	topics, err := r.Topics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "/a", topics[0].Name)
	assert.Equal(t, "/b", topics[1].Name)

	env, err := r.ReadNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "demo/A", env.Type)
	env, err = r.ReadNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "demo/B", env.Type)
	require.NoError(t, r.Close(ctx))
}

func TestStorage_MetadataSidecar(t *testing.T) {
	ctx := context.Background()
	w, fs := newMemStorage(t, Defaults())
	require.NoError(t, w.Open(ctx, "run.bag", xbag.ModeWrite))

	meta := xbag.Metadata{
		Storage:      StorageName,
		Location:     "run.bag",
		MessageCount: 3,
		StartTimeNs:  100,
		EndTimeNs:    300,
		Topics: []xbag.TopicCount{
			{Topic: xbag.TopicInfo{Name: "/a", Type: "demo/A", Format: "json"}, MessageCount: 3},
		},
	}
	require.NoError(t, w.WriteMetadata(ctx, meta))
	require.NoError(t, w.Close(ctx))

	exists, err := afero.Exists(fs, "run.bag"+metadataSuffix)
	require.NoError(t, err)
	assert.True(t, exists)

	cfg := Defaults()
	cfg.Fs = fs
	r, _ := newMemStorage(t, cfg)
	require.NoError(t, r.Open(ctx, "run.bag", xbag.ModeRead))
	got, err := r.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
	require.NoError(t, r.Close(ctx))
}

func TestStorage_MetadataMissingSidecar(t *testing.T) {
	ctx := context.Background()
	w, fs := newMemStorage(t, Defaults())
	require.NoError(t, w.Open(ctx, "run.bag", xbag.ModeWrite))
	require.NoError(t, w.Close(ctx))

	cfg := Defaults()
	cfg.Fs = fs
	r, _ := newMemStorage(t, cfg)
	require.NoError(t, r.Open(ctx, "run.bag", xbag.ModeRead))
	_, err := r.Metadata(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata sidecar")
	require.NoError(t, r.Close(ctx))
}

func TestStorage_ModeGuards(t *testing.T) {
	ctx := context.Background()
	w, fs := newMemStorage(t, Defaults())
	require.NoError(t, w.Open(ctx, "run.bag", xbag.ModeWrite))
	assert.False(t, w.HasNext())
	_, err := w.ReadNext(ctx)
	require.Error(t, err)
	require.NoError(t, w.Close(ctx))

	cfg := Defaults()
	cfg.Fs = fs
	r, _ := newMemStorage(t, cfg)
	require.NoError(t, r.Open(ctx, "run.bag", xbag.ModeRead))
	err = r.WriteEnvelope(ctx, &xbag.Envelope{Topic: "/t"})
	require.Error(t, err)
	require.NoError(t, r.Close(ctx))

	// Closed: everything but Close fails, Close stays idempotent.
	_, err = r.Topics(ctx)
	require.Error(t, err)
	require.NoError(t, r.Close(ctx))
}
