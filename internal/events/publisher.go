package events

import (
	"context"
	"fmt"
	"time"

	"github.com/hamba/avro/v2"
	"github.com/segmentio/kafka-go"

	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

const (
	TopicDatasetActivity = "datasets-activity-logs"
	TopicItemActivity    = "items-activity-logs"
)

// Publisher streams activity-log messages to the broker. Emits are
// fire-and-forget for the engines; callers that need delivery (the publish
// pipeline) check the returned error.
type Publisher interface {
	PublishDatasetActivity(ctx context.Context, msg DatasetActivity) error
	PublishItemActivity(ctx context.Context, msg ItemActivity) error
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	BrokerURL string
}

type publisher struct {
	log    *logger.Logger
	addr   string
	writer *kafka.Writer
}

func NewPublisher(log *logger.Logger, cfg Config) Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.BrokerURL),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &publisher{
		log:    log.With("service", "EventPublisher"),
		addr:   cfg.BrokerURL,
		writer: writer,
	}
}

func (p *publisher) PublishDatasetActivity(ctx context.Context, msg DatasetActivity) error {
	if msg.ActivityTime.IsZero() {
		msg.ActivityTime = time.Now().UTC()
	}
	if msg.Changes == nil {
		msg.Changes = []Change{}
	}
	raw, err := avro.Marshal(datasetActivitySchema, msg)
	if err != nil {
		return fmt.Errorf("encode dataset activity: %w", err)
	}
	return p.write(ctx, TopicDatasetActivity, msg.ContainerCode, raw)
}

func (p *publisher) PublishItemActivity(ctx context.Context, msg ItemActivity) error {
	if msg.ActivityTime.IsZero() {
		msg.ActivityTime = time.Now().UTC()
	}
	if msg.Changes == nil {
		msg.Changes = []Change{}
	}
	raw, err := avro.Marshal(itemActivitySchema, msg)
	if err != nil {
		return fmt.Errorf("encode item activity: %w", err)
	}
	return p.write(ctx, TopicItemActivity, msg.ContainerCode, raw)
}

func (p *publisher) write(ctx context.Context, topic, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	return nil
}

func (p *publisher) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return fmt.Errorf("broker unreachable: %w", err)
	}
	return conn.Close()
}

func (p *publisher) Close() error {
	return p.writer.Close()
}
