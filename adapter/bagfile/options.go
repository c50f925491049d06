package bagfile

import "github.com/trickstertwo/xbag"

// Options returns xbag.OpenOptions selecting this storage with cfg.
//
// Example:
//
//	w, _ := xbag.NewWriter()
//	err := w.Open(ctx, "/var/bags/run-42.xbag", bagfile.Options(bagfile.Config{
//	    Compression: "zstd",
//	    Checksum:    true,
//	}))
func Options(cfg Config) xbag.OpenOptions {
	return xbag.OpenOptions{Storage: StorageName, StorageConfig: cfg.toMap()}
}
