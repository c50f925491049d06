package xbag

// Decode is a helper to unmarshal an envelope payload into a typed value
// using the provided codec.
func Decode[T any](c Codec, env *Envelope) (T, error) {
	var v T
	if err := c.Unmarshal(env.Payload, &v); err != nil {
		return v, err
	}
	return v, nil
}
