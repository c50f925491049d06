package memory

import "github.com/trickstertwo/xbag"

// Options returns xbag.OpenOptions selecting this storage with cfg.
//
// Example:
//
//	w, _ := xbag.NewWriter()
//	err := w.Open(ctx, "run-42", memory.Options(memory.Config{
//	    InitialCapacity: 1024,
//	}))
func Options(cfg Config) xbag.OpenOptions {
	return xbag.OpenOptions{Storage: StorageName, StorageConfig: cfg.toMap()}
}

// toMap converts Config to the generic map expected by the storage factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"initial_capacity": c.InitialCapacity,
	}
}
