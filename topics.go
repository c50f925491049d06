package xbag

import (
	"errors"
	"sync"
)

// TopicRegistry tracks the topics of one session. Registration is
// first-writer-wins: resubmitting an identical descriptor is a no-op,
// a contradicting one fails with TopicConflictError.
type TopicRegistry struct {
	mu     sync.RWMutex
	byName map[string]TopicInfo
	order  []string
}

// NewTopicRegistry returns an empty registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{byName: make(map[string]TopicInfo)}
}

// Create registers a topic and reports whether the registration is new.
func (r *TopicRegistry) Create(info TopicInfo) (bool, error) {
	if info.Name == "" {
		return false, errors.New("xbag: topic name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byName[info.Name]; ok {
		if cur == info {
			return false, nil
		}
		return false, &TopicConflictError{Topic: info.Name, Registered: cur, Offered: info}
	}
	r.byName[info.Name] = info
	r.order = append(r.order, info.Name)
	return true, nil
}

// Lookup returns the registration for a topic name.
func (r *TopicRegistry) Lookup(name string) (TopicInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byName[name]
	return info, ok
}

// Topics returns all registrations in registration order.
func (r *TopicRegistry) Topics() []TopicInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TopicInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered topics.
func (r *TopicRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
