package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/erp/syncengine/internal/domain/integration"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func startRelay(t *testing.T, relay *RedisEventRelay, local *recordingHandler) {
	t.Helper()
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- relay.Subscribe(context.Background(), local, ready) }()
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("relay subscription not confirmed")
	}
	t.Cleanup(func() {
		require.NoError(t, relay.Close())
		assert.True(t, errors.Is(<-errCh, context.Canceled))
	})
}

func TestRedisEventRelay_DeliversToOtherInstances(t *testing.T) {
	client := newTestRedis(t)
	serializer := NewIntegrationEventSerializer()

	relayA := NewRedisEventRelay(client, serializer, WithRelayChannel("test:events"))
	relayB := NewRedisEventRelay(client, serializer, WithRelayChannel("test:events"))
	require.NotEqual(t, relayA.Origin(), relayB.Origin())

	localA := newRecordingHandler()
	localB := newRecordingHandler()
	startRelay(t, relayA, localA)
	startRelay(t, relayB, localB)

	event := integration.NewPendingAdjustmentApprovedEvent(approvedAdjustment(t))
	require.NoError(t, relayA.Handle(context.Background(), event))

	require.Eventually(t, func() bool { return len(localB.getHandled()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := localB.getHandled()[0]
	assert.Equal(t, event.EventID(), got.EventID())
	assert.IsType(t, &integration.PendingAdjustmentApprovedEvent{}, got)

	// The sender never re-delivers its own event
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, localA.getHandled())
}

func TestRedisEventRelay_SkipsUnregisteredAndMalformed(t *testing.T) {
	client := newTestRedis(t)
	relay := NewRedisEventRelay(client, NewIntegrationEventSerializer(), WithRelayChannel("test:events"))
	local := newRecordingHandler()
	startRelay(t, relay, local)

	// Local event types the codec does not know are not relayed
	require.NoError(t, relay.Handle(context.Background(), newTestEvent("TestEvent")))

	require.NoError(t, client.Publish(context.Background(), "test:events", "{not json").Err())
	require.NoError(t, client.Publish(context.Background(), "test:events",
		`{"origin":"other","type":"Unknown","payload":{}}`).Err())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, local.getHandled())
}

func TestRedisEventRelay_PublishFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	relay := NewRedisEventRelay(client, NewIntegrationEventSerializer())

	mr.Close()
	err := relay.Handle(context.Background(), integration.NewPendingAdjustmentApprovedEvent(approvedAdjustment(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to relay event")
}
