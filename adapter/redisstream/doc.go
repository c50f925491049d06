package redisstream

// Package redisstream stores bags in Redis: one stream per bag for the
// envelopes, plus a list for topic registrations and a string key for the
// bag summary.
//
// Storage name: "redis-streams"
//
// A bag at location "bags/run-42" uses the keys:
// - "bags/run-42"           stream of envelopes in accepted order
// - "bags/run-42:topics"    list of topic registrations
// - "bags/run-42:metadata"  bag summary written on close
//
// Minimal config keys:
// - addr: "host:port" (default "127.0.0.1:6379")
// - username, password, db: client credentials
// - tls, tls_server_name: enable TLS
// - batch_size: XRANGE page size during replay (default 256)
//
// Example:
//
//  r, _ := xbag.NewReader()
//  err := r.Open(ctx, "bags/run-42", xbag.OpenOptions{
//      Storage: redisstream.StorageName,
//      StorageConfig: map[string]any{
//          "addr":       "localhost:6379",
//          "batch_size": 512,
//      },
//  })
