package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// AuditFile is the file, inside the audit directory, that receives one line
// per vote event.
const AuditFile = "votes.log"

// AuditConsumer appends vote events to <Dir>/votes.log.
type AuditConsumer struct {
	URL string
	Dir string
	Log *logrus.Entry

	mu sync.Mutex // serialises writes to the audit file
}

// NewAuditConsumer returns a consumer reading from url and writing below dir.
func NewAuditConsumer(url, dir string, log *logrus.Entry) *AuditConsumer {
	if dir == "" {
		dir = "logs"
	}
	return &AuditConsumer{URL: url, Dir: dir, Log: log}
}

// Run connects to RabbitMQ, declares the vote.cast queue (durable) and
// consumes it until ctx is cancelled.  Dial failures and dropped connections
// are retried with exponential back-off capped at 30s.  Malformed messages
// are rejected without requeue so they cannot loop.
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.WithError(err).WithField("retry_in", backoff.String()).Warn("audit consumer: dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.WithError(err).Warn("audit consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.WithError(err).Warn("audit consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(VoteCastQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(VoteCastQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				c.Log.WithError(err).Error("audit consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and appends it to the audit file.
func (c *AuditConsumer) Handle(body []byte) error {
	var ev VoteCastEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.VoteID == "" || ev.StudentID == "" || ev.VendorID == "" {
		return errors.New("incomplete vote event")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, AuditFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Vote cast | vote_id=%s | student_id=%s | vendor_id=%s | vendor=%q | period=%s\n",
		ev.CastAt, ev.VoteID, ev.StudentID, ev.VendorID, ev.VendorName, ev.Period)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write audit line: %w", err)
	}
	return nil
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
