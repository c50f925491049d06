package redisstream

import "github.com/trickstertwo/xbag"

// Options builds typed OpenOptions for this backend.
//
// Example:
//
//	w, _ := xbag.NewWriter()
//	err := w.Open(ctx, "bags/run-42", redisstream.Options(redisstream.Config{
//	    Addr: "localhost:6379",
//	}))
func Options(cfg Config) xbag.OpenOptions {
	return xbag.OpenOptions{
		Storage:       StorageName,
		StorageConfig: cfg.toMap(),
	}
}
