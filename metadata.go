package xbag

// TopicCount pairs a topic registration with the number of envelopes
// recorded on it.
type TopicCount struct {
	Topic        TopicInfo `yaml:"topic" json:"topic"`
	MessageCount int64     `yaml:"message_count" json:"message_count"`
}

// Metadata summarizes a recorded bag. The Writer assembles it from session
// bookkeeping and hands it to backends implementing MetadataStorage on Close.
type Metadata struct {
	// Storage is the backend identifier the bag was recorded with.
	Storage string `yaml:"storage" json:"storage"`
	// Location is where the bag lives.
	Location string `yaml:"location" json:"location"`
	// MessageCount is the total number of envelopes in the bag.
	MessageCount int64 `yaml:"message_count" json:"message_count"`
	// StartTimeNs and EndTimeNs bound the envelope timestamps in
	// nanoseconds since the Unix epoch. Both are zero for an empty bag.
	StartTimeNs int64 `yaml:"start_time_ns" json:"start_time_ns"`
	EndTimeNs   int64 `yaml:"end_time_ns" json:"end_time_ns"`
	// Topics lists registrations and per-topic counts in registration order.
	Topics []TopicCount `yaml:"topics" json:"topics"`
}
