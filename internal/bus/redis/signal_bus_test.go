package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ch:auction:*"))
	assert.True(t, hasPattern("ch:op?"))
	assert.False(t, hasPattern("ch:operation"))
}

func TestKeyPrefix(t *testing.T) {
	c := &Client{prefix: "commitfi:"}
	assert.Equal(t, "commitfi:ch:groups", c.key("ch:groups"))
	assert.Equal(t, "ch:groups", (&Client{}).key("ch:groups"))
}

func TestToMessagesSkipsMissingPayload(t *testing.T) {
	msgs := toMessages([]redis.XMessage{
		{ID: "1-0", Values: map[string]any{"payload": "a"}},
		{ID: "2-0", Values: map[string]any{"other": "b"}},
		{ID: "3-0", Values: map[string]any{"payload": []byte("c")}},
	})
	if assert.Len(t, msgs, 2) {
		assert.Equal(t, "1-0", msgs[0].ID)
		assert.Equal(t, []byte("a"), msgs[0].Payload)
		assert.Equal(t, "3-0", msgs[1].ID)
		assert.Equal(t, []byte("c"), msgs[1].Payload)
	}
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
