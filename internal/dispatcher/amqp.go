package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"github.com/MoldoAndr/hashbreaker/internal/models"
	"github.com/MoldoAndr/hashbreaker/pkg/debug"
)

const (
	connectRetries    = 5
	connectRetryDelay = 5 * time.Second

	// attemptsHeader carries the delivery count across redeliveries,
	// since a republished message starts a fresh broker delivery.
	attemptsHeader = "x-attempts"
)

// AMQPQueue routes tasks through three durable broker queues, one per
// priority lane. The API server publishes; workers consume high first.
type AMQPQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	url    string
	prefix string
}

// NewAMQPQueue connects to the broker and declares the three lanes
func NewAMQPQueue(url, prefix string) (*AMQPQueue, error) {
	var conn *amqp.Connection
	var err error
	for i := 1; i <= connectRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		debug.Warning("AMQP connect attempt %d/%d failed: %v", i, connectRetries, err)
		if i < connectRetries {
			time.Sleep(connectRetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	q := &AMQPQueue{conn: conn, url: url, prefix: prefix}
	if err := q.setupChannel(); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *AMQPQueue) setupChannel() error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	for _, name := range q.queueNames() {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}
	q.ch = ch
	return nil
}

// queueNames returns the lane queues in consumption order, highest
// priority first
func (q *AMQPQueue) queueNames() []string {
	return []string{
		q.prefix + "_high",
		q.prefix,
		q.prefix + "_low",
	}
}

func (q *AMQPQueue) queueFor(priority models.JobPriority) string {
	switch priority {
	case models.PriorityHigh:
		return q.prefix + "_high"
	case models.PriorityLow:
		return q.prefix + "_low"
	default:
		return q.prefix
	}
}

// Enqueue publishes the task to the lane matching its priority
func (q *AMQPQueue) Enqueue(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.JobID, err)
	}

	queue := q.queueFor(task.Priority)
	err = q.ch.Publish("", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{attemptsHeader: int32(task.Deliveries)},
	})
	if err != nil {
		return fmt.Errorf("failed to publish task %s to %s: %w", task.JobID, queue, err)
	}

	debug.Info("Task %s published to %s", task.JobID, queue)
	return nil
}

// Consume starts a consumer pool over the three lanes. Each worker
// prefetches one message at a time; lane priority is approximated by
// giving every worker a consumer on each lane, high declared first.
// Runner failures republish the task with an incremented attempts
// header, up to MaxDeliveries, then ack-and-drop.
func (q *AMQPQueue) Consume(ctx context.Context, runner Runner, concurrency int, killTimeout time.Duration) error {
	if concurrency < 1 {
		concurrency = 1
	}
	if err := q.ch.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries := make(chan amqp.Delivery)
	for _, name := range q.queueNames() {
		msgs, err := q.ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to consume from %s: %w", name, err)
		}
		go forwardDeliveries(ctx, name, msgs, deliveries)
	}

	for i := 0; i < concurrency; i++ {
		go q.consumeLoop(ctx, deliveries, runner, killTimeout)
	}

	debug.Info("AMQP consumer started (%d workers, queues %v)", concurrency, q.queueNames())
	return nil
}

// forwardDeliveries funnels one lane's broker channel into the shared
// worker channel. It exits on context cancellation as well as on broker
// channel close, so shutdown does not depend on the connection being
// torn down first.
func forwardDeliveries(ctx context.Context, name string, msgs <-chan amqp.Delivery, deliveries chan<- amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				debug.Warning("Consumer channel for %s closed", name)
				return
			}
			select {
			case deliveries <- m:
			case <-ctx.Done():
				m.Nack(false, true)
				return
			}
		}
	}
}

func (q *AMQPQueue) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery, runner Runner, killTimeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-deliveries:
			q.handleDelivery(ctx, m, runner, killTimeout)
		}
	}
}

func (q *AMQPQueue) handleDelivery(ctx context.Context, m amqp.Delivery, runner Runner, killTimeout time.Duration) {
	var task Task
	if err := json.Unmarshal(m.Body, &task); err != nil {
		debug.Error("Failed to decode task message: %v", err)
		m.Ack(false)
		return
	}
	task.Deliveries = attemptsFrom(m.Headers) + 1

	debug.Info("Task %s: delivery %d/%d", task.JobID, task.Deliveries, MaxDeliveries)

	runCtx := ctx
	var cancel context.CancelFunc
	if killTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, killTimeout)
		defer cancel()
	}

	err := runner.Run(runCtx, task)
	if err == nil {
		m.Ack(false)
		return
	}

	debug.Warning("Task %s: delivery %d failed: %v", task.JobID, task.Deliveries, err)
	if task.Deliveries >= MaxDeliveries {
		debug.Error("Task %s: dropped after %d deliveries", task.JobID, task.Deliveries)
		m.Ack(false)
		return
	}

	if err := q.Enqueue(ctx, task); err != nil {
		debug.Error("Task %s: failed to republish, requeueing broker-side: %v", task.JobID, err)
		m.Nack(false, true)
		return
	}
	m.Ack(false)
}

func attemptsFrom(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Close shuts down the channel and connection
func (q *AMQPQueue) Close() error {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
