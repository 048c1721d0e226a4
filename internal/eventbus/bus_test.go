package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(1)

	b.PublishNew(CycleCompleted, "cycle-1", 3, map[string]string{"k": "v"})
	// buffer is full now, second event is dropped
	b.PublishNew(CycleFailed, "cycle-2", nil, nil)

	ev := <-ch
	require.NotNil(t, ev)
	assert.Equal(t, CycleCompleted, ev.Type)
	assert.Equal(t, "cycle-1", ev.ResourceID)
	assert.Equal(t, 3, ev.Payload)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.CreatedAt.IsZero())

	b.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	// publishing without subscribers is a no-op
	b.PublishNew(StateReset, "", nil, nil)
}
