package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"account_service/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQClient struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	mailQueue   amqp.Queue
	eventsQueue amqp.Queue
}

func New(urlForConn string, mailQueueName, eventsQueueName string) (*RabbitMQClient, error) {
	const op = "rabbimq.New"

	conn, err := amqp.Dial(urlForConn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	mailQ, err := ch.QueueDeclare(
		mailQueueName, true, false, false, false, nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	eventsQ, err := ch.QueueDeclare(
		eventsQueueName, true, false, false, false, nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RabbitMQClient{
		conn:        conn,
		channel:     ch,
		mailQueue:   mailQ,
		eventsQueue: eventsQ,
	}, nil
}

// SendMessage hands a mail payload to the mail sender service.
func (r *RabbitMQClient) SendMessage(ctx context.Context, msg models.Message) error {
	const op = "rabbimq.SendMessage"

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return r.publish(ctx, r.mailQueue.Name, body)
}

// SendEvent publishes a lifecycle event for the activity stream consumer.
func (r *RabbitMQClient) SendEvent(ctx context.Context, event models.Event) error {
	const op = "rabbimq.SendEvent"

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return r.publish(ctx, r.eventsQueue.Name, body)
}

func (r *RabbitMQClient) publish(ctx context.Context, queueName string, body []byte) error {
	return r.channel.PublishWithContext(
		ctx,
		"",
		queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

func (r *RabbitMQClient) Close() {
	_ = r.channel.Close()
	_ = r.conn.Close()
}
