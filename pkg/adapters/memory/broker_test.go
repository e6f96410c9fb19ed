package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_Contract(t *testing.T) {
	ports.RunBrokerContract(t, memory.NewBroker())
}

func TestMemoryBroker_SlowSubscriberDropsMessages(t *testing.T) {
	ctx := context.Background()
	broker := memory.NewBroker(memory.WithBufferSize(1))
	ch, stop, err := broker.Subscribe(ctx, "m")
	require.NoError(t, err)
	defer stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, broker.Publish(ctx, ports.Message{MapID: "m", Envelope: domain.NewRequestMapEnvelope()}))
	}
	assert.Len(t, ch, 1)
}

func TestMemoryBroker_UnsubscribeReleasesRoom(t *testing.T) {
	broker := memory.NewBroker()
	_, stop, err := broker.Subscribe(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, 1, broker.Subscribers("m"))

	stop()
	assert.Equal(t, 0, broker.Subscribers("m"))
}
