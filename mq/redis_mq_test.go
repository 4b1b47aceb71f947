package mq

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherTrimsQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	pub := NewRedisPublisher(client, 3)
	var ids []string
	for i := 0; i < 5; i++ {
		ev := NewEvent(EventVoteCast, 1)
		ev.TotalVotes = uint64(i + 1)
		ids = append(ids, ev.ID)
		require.NoError(t, pub.Publish(context.Background(), ev))
	}

	items, err := mr.List(EventQueueName)
	require.NoError(t, err)
	require.Len(t, items, 3)

	// LPUSH 把最新的事件放在表头
	var newest, oldest Event
	require.NoError(t, json.Unmarshal([]byte(items[0]), &newest))
	require.NoError(t, json.Unmarshal([]byte(items[2]), &oldest))
	assert.Equal(t, ids[4], newest.ID)
	assert.Equal(t, uint64(5), newest.TotalVotes)
	assert.Equal(t, ids[2], oldest.ID)
}

func TestRedisPublisherDefaultLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	pub := NewRedisPublisher(client, 0)
	assert.Equal(t, int64(DefaultQueueLimit), pub.limit)

	require.NoError(t, pub.Publish(context.Background(), NewEvent(EventPollCreated, 9)))
	items, err := mr.List(EventQueueName)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRedisPublisherServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	err := NewRedisPublisher(client, 3).Publish(context.Background(), NewEvent(EventVoteCast, 1))
	assert.Error(t, err)
}
