package sqlite

// Package sqlite stores bags in a single SQLite database file using the
// pure-Go modernc.org/sqlite driver (no cgo).
//
// Storage name: "sqlite"
//
// Tables: topics(id, name, type, serialization_format) and
// messages(id, topic_id, timestamp, data), plus a one-row metadata table
// holding the bag summary as JSON. Replay order is messages.id, i.e. the
// order writes were accepted, never timestamp order.
//
// Config keys:
// - journal_mode: SQLite journal mode (default "WAL")
// - busy_timeout: lock wait in milliseconds (default 5000)
// - synchronous: durability/speed tradeoff (default "NORMAL")
//
// Example:
//
//  w, _ := xbag.NewWriter()
//  err := w.Open(ctx, "/var/bags/run-42.db", xbag.OpenOptions{
//      Storage: sqlite.StorageName,
//      StorageConfig: map[string]any{
//          "synchronous": "FULL",
//      },
//  })
