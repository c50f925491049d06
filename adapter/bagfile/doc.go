package bagfile

// Package bagfile stores bags as single flat files: a short preamble
// followed by a CBOR sequence of topic and envelope records in write order.
// A YAML sidecar next to the file carries the bag summary.
//
// Storage name: "bagfile"
//
// Config keys:
// - compression: per-record payload compression, "none" | "lz4" | "zstd" (default "none")
// - checksum: store and verify a BLAKE3-256 digest per payload (default true)
// - fs: afero.Fs to write through (default OS filesystem)
//
// Example:
//
//  w, _ := xbag.NewWriter()
//  err := w.Open(ctx, "/var/bags/run-42.xbag", xbag.OpenOptions{
//      Storage: bagfile.StorageName,
//      StorageConfig: map[string]any{
//          "compression": "zstd",
//          "checksum":    true,
//      },
//  })
