package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainindex/evmindexer/internal/config"
)

func TestLocalPublisherDeliversToSubscriber(t *testing.T) {
	p := NewLocalPublisher(nil)
	ch := p.SubscribeBatchCommitted(1)

	evt := BatchCommitted{FromBlock: 1, ToBlock: 2, AddressesTouched: 3, CommittedAt: time.Unix(0, 0)}
	require.NoError(t, p.PublishBatchCommitted(evt))

	select {
	case got := <-ch:
		require.Equal(t, evt, got)
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestLocalPublisherDropsOnFullChannelRatherThanBlocking(t *testing.T) {
	p := NewLocalPublisher(nil)
	_ = p.SubscribeBatchCommitted(0) // unbuffered, never drained

	done := make(chan struct{})
	go func() {
		require.NoError(t, p.PublishBatchCommitted(BatchCommitted{FromBlock: 1}))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishBatchCommitted blocked on a full subscriber channel")
	}
}

func TestLocalPublisherCloseClosesSubscriberChannels(t *testing.T) {
	p := NewLocalPublisher(nil)
	ch := p.SubscribeBalancePhaseResolved(1)
	require.NoError(t, p.Close())

	_, open := <-ch
	require.False(t, open)
}

func TestFactoryDefaultsToLocal(t *testing.T) {
	pub, err := New(config.EventBusConfig{}, nil)
	require.NoError(t, err)
	defer pub.Close()

	_, ok := pub.(*LocalPublisher)
	require.True(t, ok)
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	_, err := New(config.EventBusConfig{Type: "carrier-pigeon"}, nil)
	require.Error(t, err)
}

func TestFactoryRejectsKafkaWithoutBrokers(t *testing.T) {
	_, err := New(config.EventBusConfig{Type: "kafka"}, nil)
	require.Error(t, err)
}

func TestFactoryRejectsRedisWithoutAddresses(t *testing.T) {
	_, err := New(config.EventBusConfig{Type: "redis"}, nil)
	require.Error(t, err)
}
