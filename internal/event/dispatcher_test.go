package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherPublish(t *testing.T) {
	d := NewDispatcher()

	var received []TransactionReplaced
	d.Register(TypeTransactionReplaced, ListenerFunc(func(ctx context.Context, e Event) error {
		received = append(received, e.Payload.(TransactionReplaced))
		return nil
	}))
	d.Register(TypeTransactionReplaced, ListenerFunc(func(ctx context.Context, e Event) error {
		return errors.New("notification service down")
	}))
	d.Register(TypeTransactionReplaced, ListenerFunc(func(ctx context.Context, e Event) error {
		panic("bad listener")
	}))
	d.Register(TypeTransactionReplaced, LogListener())

	failed := d.Publish(context.Background(), TypeTransactionReplaced, TransactionReplaced{OldHash: "0x1", NewHash: "0x2"})

	assert.Equal(t, 2, failed)
	assert.Equal(t, []TransactionReplaced{{OldHash: "0x1", NewHash: "0x2"}}, received)
	assert.Equal(t, 4, d.ListenerCount(TypeTransactionReplaced))
	assert.Zero(t, d.Publish(context.Background(), TypeTransactionMined, nil))
}
