package sqlite

import "github.com/trickstertwo/xbag"

// Options builds typed OpenOptions for this backend.
//
// Example:
//
//	w, _ := xbag.NewWriter()
//	err := w.Open(ctx, "/var/bags/run-42.db", sqlite.Options(sqlite.Config{
//	    Synchronous: "FULL",
//	}))
func Options(cfg Config) xbag.OpenOptions {
	return xbag.OpenOptions{
		Storage:       StorageName,
		StorageConfig: cfg.toMap(),
	}
}
