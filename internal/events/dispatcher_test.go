package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDispatcher_DeliversToAllHandlers(t *testing.T) {
	dispatcher := NewInMemoryDispatcher(nil)
	var received []string

	dispatcher.Subscribe(EventTicketAssigned, func(_ context.Context, e Event) error {
		received = append(received, "first:"+e.ID)
		return errors.New("handler failed")
	})
	dispatcher.Subscribe(EventTicketAssigned, func(_ context.Context, e Event) error {
		received = append(received, "second:"+e.ID)
		return nil
	})
	dispatcher.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		received = append(received, "other")
		return nil
	})

	require.NoError(t, dispatcher.Publish(context.Background(), Event{ID: "e1", Type: EventTicketAssigned}))
	assert.Equal(t, []string{"first:e1", "second:e1"}, received)
}
