package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"frq-generator/config"
	"frq-generator/domain"
)

// Headers carried by republished messages.
const (
	// AttemptHeader counts redeliveries caused by failures.
	AttemptHeader = "x-attempt"
	// WaitHeader counts redeliveries spent waiting on another run.
	WaitHeader = "x-wait"
)

// Delivery is a queue message handed to a Handler.
type Delivery struct {
	Body []byte
	// Attempt starts at 0 for the first delivery.
	Attempt int
	Waits   int
}

// Disposition tells the dispatcher what to do with a handled delivery.
type Disposition int

const (
	// Ack removes the message from the queue.
	Ack Disposition = iota
	// Retry redelivers the message after the retry delay, up to MaxAttempts.
	Retry
	// Wait redelivers the message after the wait delay, up to MaxWaits. Waits do not
	// count as attempts.
	Wait
)

// Handler processes the messages of one queue.
type Handler interface {
	// HandleBatch returns a disposition per delivery, in order.
	HandleBatch(ctx context.Context, batch []Delivery) []Disposition
	// Abandon is called once for a message the dispatcher gives up on, before it is dropped.
	Abandon(ctx context.Context, d Delivery)
}

// RabbitMQ publishes generation and evaluation requests and consumes them in batches.
type RabbitMQ struct {
	conn   *amqp.Connection
	mu     sync.Mutex
	pubCh  *amqp.Channel
	cfg    config.RabbitMQ
	logger zerolog.Logger
}

func NewRabbitMQ(cfg config.RabbitMQ, logger zerolog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	for _, name := range []string{cfg.GenerationQueue, cfg.EvaluationQueue} {
		if _, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		); err != nil {
			conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	logger = logger.With().Str("component", "rabbitmq").Logger()
	logger.Info().
		Str("generation_queue", cfg.GenerationQueue).
		Str("evaluation_queue", cfg.EvaluationQueue).
		Msg("connected to RabbitMQ")

	return &RabbitMQ{conn: conn, pubCh: ch, cfg: cfg, logger: logger}, nil
}

func (r *RabbitMQ) PublishGeneration(ctx context.Context, job domain.GenerationJob) error {
	return r.publishJSON(ctx, r.cfg.GenerationQueue, job)
}

func (r *RabbitMQ) PublishEvaluation(ctx context.Context, job domain.EvaluationJob) error {
	return r.publishJSON(ctx, r.cfg.EvaluationQueue, job)
}

func (r *RabbitMQ) publishJSON(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.publish(ctx, queue, body, nil)
}

func (r *RabbitMQ) publish(ctx context.Context, queue string, body []byte, headers amqp.Table) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.pubCh.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// Consume delivers messages from queue to handler in batches of up to worker.BatchSize,
// flushing a partial batch after worker.BatchWindow. It blocks until ctx is done.
//
// Delayed redelivery goes through two holding queues, <queue>.retry and <queue>.wait, whose
// messages expire after RetryDelay and WaitDelay and are dead-lettered back to queue.
func (r *RabbitMQ) Consume(ctx context.Context, queue string, worker config.Worker, handler Handler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	for name, delay := range map[string]time.Duration{
		retryQueue(queue): worker.RetryDelay,
		waitQueue(queue):  worker.WaitDelay,
	} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, delayArgs(queue, delay)); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	if err := ch.Qos(worker.BatchSize, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(
		ctx,
		queue,
		"",
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer on %s: %w", queue, err)
	}

	bc := &batchConsumer{
		queue:       queue,
		size:        worker.BatchSize,
		window:      worker.BatchWindow,
		maxAttempts: worker.MaxAttempts,
		maxWaits:    worker.MaxWaits,
		publish:     r.publish,
		handler:     handler,
		logger:      r.logger.With().Str("queue", queue).Logger(),
	}
	return bc.run(ctx, deliveries)
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pubCh.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return r.conn.Close()
}

func retryQueue(queue string) string { return queue + ".retry" }

func waitQueue(queue string) string { return queue + ".wait" }

// delayArgs makes a holding queue that sends expired messages back to target.
func delayArgs(target string, delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": target,
	}
}

type publishFunc func(ctx context.Context, queue string, body []byte, headers amqp.Table) error

// batchConsumer groups deliveries into batches and settles each one after the handler ran.
type batchConsumer struct {
	queue       string
	size        int
	window      time.Duration
	maxAttempts int
	maxWaits    int
	publish     publishFunc
	handler     Handler
	logger      zerolog.Logger
}

func (b *batchConsumer) run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	size := max(b.size, 1)
	batch := make([]amqp.Delivery, 0, size)
	var timer <-chan time.Time

	flush := func() {
		if len(batch) == 0 {
			return
		}
		b.dispatch(ctx, batch)
		batch = make([]amqp.Delivery, 0, size)
		timer = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil

		case d, ok := <-deliveries:
			if !ok {
				flush()
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("delivery channel closed")
			}
			batch = append(batch, d)
			if len(batch) >= size {
				flush()
			} else if timer == nil {
				timer = time.After(b.window)
			}

		case <-timer:
			flush()
		}
	}
}

func (b *batchConsumer) dispatch(ctx context.Context, batch []amqp.Delivery) {
	in := make([]Delivery, len(batch))
	for i, d := range batch {
		in[i] = Delivery{
			Body:    d.Body,
			Attempt: headerInt(d.Headers, AttemptHeader),
			Waits:   headerInt(d.Headers, WaitHeader),
		}
	}

	out := b.handler.HandleBatch(ctx, in)

	// Settling must finish even when ctx is cancelled mid-batch.
	settleCtx := context.WithoutCancel(ctx)
	for i, d := range batch {
		disposition := Ack
		if i < len(out) {
			disposition = out[i]
		}
		b.settle(settleCtx, d, in[i], disposition)
	}

	b.logger.Debug().Int("size", len(batch)).Msg("batch settled")
}

// settle acknowledges d, or republishes it to a holding queue first. The original is only
// acknowledged after the republish succeeded, so a failure in between redelivers it.
func (b *batchConsumer) settle(ctx context.Context, d amqp.Delivery, in Delivery, disposition Disposition) {
	next := in
	var target string
	switch disposition {
	case Retry:
		next.Attempt++
		if next.Attempt >= b.maxAttempts {
			b.abandon(ctx, d, in, "giving up on message after max attempts")
			return
		}
		target = retryQueue(b.queue)
	case Wait:
		next.Waits++
		if next.Waits > b.maxWaits {
			b.abandon(ctx, d, in, "giving up on message after max waits")
			return
		}
		target = waitQueue(b.queue)
	default:
		b.ack(d)
		return
	}

	headers := amqp.Table{AttemptHeader: int32(next.Attempt), WaitHeader: int32(next.Waits)}
	if err := b.publish(ctx, target, d.Body, headers); err != nil {
		b.logger.Error().Err(err).Str("target", target).Msg("republish failed, requeueing")
		if err := d.Nack(false, true); err != nil {
			b.logger.Error().Err(err).Msg("nack failed")
		}
		return
	}
	b.ack(d)
}

func (b *batchConsumer) abandon(ctx context.Context, d amqp.Delivery, in Delivery, msg string) {
	b.logger.Error().
		Int("attempt", in.Attempt).
		Int("waits", in.Waits).
		Bytes("body", d.Body).
		Msg(msg)
	b.handler.Abandon(ctx, in)
	b.ack(d)
}

func (b *batchConsumer) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		b.logger.Error().Err(err).Uint64("tag", d.DeliveryTag).Msg("ack failed")
	}
}

func headerInt(h amqp.Table, key string) int {
	switch v := h[key].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}
