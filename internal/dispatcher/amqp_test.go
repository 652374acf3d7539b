package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
)

func runForwarder(ctx context.Context, msgs <-chan amqp.Delivery, deliveries chan<- amqp.Delivery) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		forwardDeliveries(ctx, "cracking", msgs, deliveries)
		close(done)
	}()
	return done
}

func assertDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("forwarder did not exit")
	}
}

func TestForwardDeliveriesPassesMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs := make(chan amqp.Delivery, 1)
	deliveries := make(chan amqp.Delivery)
	done := runForwarder(ctx, msgs, deliveries)

	msgs <- amqp.Delivery{Body: []byte(`{"job_id":"job-1"}`)}

	select {
	case m := <-deliveries:
		assert.Equal(t, `{"job_id":"job-1"}`, string(m.Body))
	case <-time.After(5 * time.Second):
		t.Fatal("message was not forwarded")
	}

	cancel()
	assertDone(t, done)
}

func TestForwardDeliveriesExitsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// No worker ever reads from deliveries; the forwarder must still
	// exit when the context ends, even while idle on an open broker
	// channel.
	msgs := make(chan amqp.Delivery)
	deliveries := make(chan amqp.Delivery)
	done := runForwarder(ctx, msgs, deliveries)

	cancel()
	assertDone(t, done)
}

func TestForwardDeliveriesExitsOnCancelWhileBlockedOnHandoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	msgs := make(chan amqp.Delivery, 1)
	deliveries := make(chan amqp.Delivery)
	done := runForwarder(ctx, msgs, deliveries)

	// The forwarder picks this up and blocks handing it to a worker
	// pool that never takes it.
	msgs <- amqp.Delivery{Body: []byte("{}")}
	time.Sleep(50 * time.Millisecond)

	cancel()
	assertDone(t, done)
}

func TestForwardDeliveriesExitsOnChannelClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs := make(chan amqp.Delivery)
	deliveries := make(chan amqp.Delivery)
	done := runForwarder(ctx, msgs, deliveries)

	close(msgs)
	assertDone(t, done)
}
