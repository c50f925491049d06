package xbag

// TopicInfo describes one named stream inside a bag: its payload type
// identifier and the serialization format of its payloads. Two descriptors
// are equal only when all three fields match.
type TopicInfo struct {
	// Name is the topic name, unique within a bag.
	Name string `yaml:"name" json:"name"`
	// Type is the opaque payload type identifier.
	Type string `yaml:"type" json:"type"`
	// Format is the serialization format name (usually a Codec name).
	Format string `yaml:"format" json:"format"`
}

// Envelope is the unit of recording: one opaque payload captured on a topic
// at a point in time. The engine never interprets the payload.
type Envelope struct {
	// Topic is the stream this envelope belongs to.
	Topic string
	// Type is the payload type identifier. Must agree with the topic
	// registration; empty inherits the registered value on write.
	Type string
	// Format is the serialization format name. Same rules as Type.
	Format string
	// Payload is the encoded bytes.
	Payload []byte
	// ReceivedAt is the capture timestamp in nanoseconds since the Unix
	// epoch. Zero means "stamp me on write".
	ReceivedAt int64
}

// Clone returns a deep copy. The payload bytes are copied so the clone stays
// stable when the caller reuses its buffer.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Payload != nil {
		cp.Payload = make([]byte, len(e.Payload))
		copy(cp.Payload, e.Payload)
	}
	return &cp
}
