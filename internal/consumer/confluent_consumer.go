package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-io-feed/internal/metrics"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
)

// Config configures the relationships CDC consumer.
type Config struct {
	Brokers     string        `mapstructure:"brokers"`
	Topic       string        `mapstructure:"topic"`
	GroupID     string        `mapstructure:"group_id"`
	OffsetReset string        `mapstructure:"offset_reset"` // earliest, latest
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// messageReader is the subset of *kafka.Consumer the loop needs.
type messageReader interface {
	Subscribe(topic string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	StoreMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Close() error
}

// ConfluentConsumer implements CDCEventConsumer using confluent-kafka-go.
// Offsets are stored only after a message has been handed to the handler,
// so a crash replays the in-flight event instead of dropping it.
type ConfluentConsumer struct {
	reader      messageReader
	topic       string
	pollTimeout time.Duration
	handler     CDCEventHandler
	doneCh      chan struct{}
}

// NewConfluentConsumer creates a Kafka consumer for relationship CDC events.
func NewConfluentConsumer(cfg Config, handler CDCEventHandler) (*ConfluentConsumer, error) {
	if cfg.OffsetReset == "" {
		cfg.OffsetReset = "latest"
	}
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":        cfg.Brokers,
		"group.id":                 cfg.GroupID,
		"auto.offset.reset":        cfg.OffsetReset,
		"enable.auto.commit":       true,
		"enable.auto.offset.store": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(c, cfg, handler), nil
}

func newConsumer(r messageReader, cfg Config, handler CDCEventHandler) *ConfluentConsumer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 100 * time.Millisecond
	}
	return &ConfluentConsumer{
		reader:      r,
		topic:       cfg.Topic,
		pollTimeout: cfg.PollTimeout,
		handler:     handler,
		doneCh:      make(chan struct{}),
	}
}

// Start subscribes and consumes in the background until ctx is done.
func (cc *ConfluentConsumer) Start(ctx context.Context) error {
	if err := cc.reader.Subscribe(cc.topic, nil); err != nil {
		close(cc.doneCh)
		return fmt.Errorf("failed to subscribe to topic %s: %w", cc.topic, err)
	}

	l := pkglog.L()
	l.Info().Str("topic", cc.topic).Msg("relationships CDC consumer started")

	go cc.consumeLoop(ctx)
	return nil
}

func (cc *ConfluentConsumer) consumeLoop(ctx context.Context) {
	l := pkglog.L().With().Str("topic", cc.topic).Logger()
	defer close(cc.doneCh)

	for ctx.Err() == nil {
		msg, err := cc.reader.ReadMessage(cc.pollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			l.Error().Err(err).Msg("CDC read failed")
			continue
		}

		cc.processMessage(context.WithoutCancel(ctx), msg.Value)

		if _, err := cc.reader.StoreMessage(msg); err != nil {
			l.Warn().Err(err).Str("partition", msg.TopicPartition.String()).Msg("failed to store CDC offset")
		}
	}
	l.Info().Msg("relationships CDC consumer stopped")
}

// processMessage decodes and handles one record value. Undecodable
// records are logged and skipped; they would never succeed on replay.
func (cc *ConfluentConsumer) processMessage(ctx context.Context, value []byte) {
	l := pkglog.L()

	// Deletes are followed by a tombstone with no value.
	if len(value) == 0 {
		return
	}

	event, err := Decode(value)
	if err != nil {
		metrics.CDCEvent("", false)
		l.Error().Err(err).Msg("failed to decode relationships CDC event")
		return
	}

	err = cc.handler.HandleCDCEvent(ctx, event)
	metrics.CDCEvent(event.Payload.Op, err == nil)
	if err != nil {
		l.Error().Err(err).Str("op", event.Payload.Op).Msg("failed to apply CDC event")
		return
	}
	l.Debug().Str("op", event.Payload.Op).Int64("ts_ms", event.Payload.TsMs).Msg("CDC event applied")
}

// Close waits for the consume loop to exit, then closes the consumer.
// Cancel the context passed to Start first.
func (cc *ConfluentConsumer) Close() error {
	<-cc.doneCh
	if err := cc.reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	return nil
}
