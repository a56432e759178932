package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/canteen-voting/internal/queue"
)

// Publisher delivers vote events to downstream consumers.
type Publisher interface {
	PublishVoteCast(ctx context.Context, ev queue.VoteCastEvent) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishVoteCast(context.Context, queue.VoteCastEvent) error { return nil }

// AMQPPublisher publishes events to RabbitMQ.  Each publish dials, declares
// the durable vote.cast queue and sends a persistent message, so a broker
// restart between votes needs no reconnect logic here.
type AMQPPublisher struct {
	URL string
}

// NewPublisher returns an AMQPPublisher for url, or NoopPublisher when url
// is empty.
func NewPublisher(url string) Publisher {
	if url == "" {
		return NoopPublisher{}
	}
	return &AMQPPublisher{URL: url}
}

// PublishVoteCast sends ev to the vote.cast queue.
func (p *AMQPPublisher) PublishVoteCast(ctx context.Context, ev queue.VoteCastEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal vote event: %w", err)
	}

	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		queue.VoteCastQueue, // name
		true,                // durable
		false,               // autoDelete
		false,               // exclusive
		false,               // noWait
		nil,                 // args
	); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	return ch.PublishWithContext(ctx,
		"",                  // default exchange
		queue.VoteCastQueue, // routing key = queue name
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    ev.VoteID,
			Body:         body,
		},
	)
}
