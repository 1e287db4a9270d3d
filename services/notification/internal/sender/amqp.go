package sender

import (
	"context"
	"fmt"

	"github.com/streadway/amqp"
)

const deliveryQueueName = "notification.delivery"

// AMQPQueue publishes single-send delivery work to a durable queue,
// decoupling Send's HTTP response from the actual channel I/O, the
// way the teacher's cmd/main.go decouples order events from delivery
// via RabbitMQ queue-declare/publish/consume.
type AMQPQueue struct {
	ch *amqp.Channel
}

// NewAMQPQueue declares the delivery queue on ch.
func NewAMQPQueue(ch *amqp.Channel) (*AMQPQueue, error) {
	if _, err := ch.QueueDeclare(deliveryQueueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare %s: %w", deliveryQueueName, err)
	}
	return &AMQPQueue{ch: ch}, nil
}

// Publish enqueues a notification id for asynchronous delivery.
func (q *AMQPQueue) Publish(ctx context.Context, notificationID string) error {
	return q.ch.Publish("", deliveryQueueName, false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(notificationID),
	})
}

// Consume starts delivering queued notification ids as they arrive,
// running until ch's underlying connection closes. Intended to be
// launched as a background goroutine from main.
func Consume(ch *amqp.Channel, svc *Service) error {
	msgs, err := ch.Consume(deliveryQueueName, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", deliveryQueueName, err)
	}
	for msg := range msgs {
		svc.Deliver(context.Background(), string(msg.Body), nil)
	}
	return nil
}
