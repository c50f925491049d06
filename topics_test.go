package xbag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicRegistry_CreateAndLookup(t *testing.T) {
	reg := NewTopicRegistry()

	info := TopicInfo{Name: "/chatter", Type: "std_msgs/String", Format: "json"}
	created, err := reg.Create(info)
	require.NoError(t, err)
	assert.True(t, created)

	got, ok := reg.Lookup("/chatter")
	require.True(t, ok)
	assert.Equal(t, info, got)
	assert.Equal(t, 1, reg.Len())

	_, ok = reg.Lookup("/unknown")
	assert.False(t, ok)
}

func TestTopicRegistry_IdempotentCreate(t *testing.T) {
	reg := NewTopicRegistry()

	info := TopicInfo{Name: "/chatter", Type: "std_msgs/String", Format: "json"}
	created, err := reg.Create(info)
	require.NoError(t, err)
	require.True(t, created)

	// Identical descriptor again is a no-op.
	created, err = reg.Create(info)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, reg.Len())
}

func TestTopicRegistry_Conflict(t *testing.T) {
	reg := NewTopicRegistry()

	registered := TopicInfo{Name: "/chatter", Type: "std_msgs/String", Format: "json"}
	_, err := reg.Create(registered)
	require.NoError(t, err)

	offered := TopicInfo{Name: "/chatter", Type: "std_msgs/String", Format: "cbor"}
	created, err := reg.Create(offered)
	assert.False(t, created)

	var conflict *TopicConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "/chatter", conflict.Topic)
	assert.Equal(t, registered, conflict.Registered)
	assert.Equal(t, offered, conflict.Offered)

	// The registration stays first-writer-wins.
	got, ok := reg.Lookup("/chatter")
	require.True(t, ok)
	assert.Equal(t, registered, got)
}

func TestTopicRegistry_EmptyName(t *testing.T) {
	reg := NewTopicRegistry()
	created, err := reg.Create(TopicInfo{Type: "std_msgs/String", Format: "json"})
	assert.False(t, created)
	assert.Error(t, err)
	assert.Equal(t, 0, reg.Len())
}

func TestTopicRegistry_TopicsKeepRegistrationOrder(t *testing.T) {
	reg := NewTopicRegistry()

	names := []string{"/c", "/a", "/b"}
	for _, name := range names {
		_, err := reg.Create(TopicInfo{Name: name, Type: "t", Format: "json"})
		require.NoError(t, err)
	}

	topics := reg.Topics()
	require.Len(t, topics, 3)
	for i, name := range names {
		assert.Equal(t, name, topics[i].Name)
	}
}
