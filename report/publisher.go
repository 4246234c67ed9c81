package report

import (
	"context"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/segmentio/kafka-go"
)

// Publisher delivers reports to a sink.
type Publisher interface {
	Publish(ctx context.Context, reports ...Report) error
	Close() error
}

type KafkaConfig struct {
	Brokers      string
	Topic        string
	BatchTimeout time.Duration
}

// Enabled reports whether the config names a broker and a topic.
func (c KafkaConfig) Enabled() bool {
	return c.Brokers != "" && c.Topic != ""
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes reports as JSON messages keyed by scene id.
type KafkaPublisher struct {
	Topic  string
	writer messageWriter
}

func NewKafkaPublisher(c KafkaConfig) *KafkaPublisher {
	var brokers []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	batchTimeout := c.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Millisecond * 100
	}

	return &KafkaPublisher{
		Topic: c.Topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        c.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: batchTimeout,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, reports ...Report) error {
	if len(reports) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, len(reports))
	for i, r := range reports {
		value, err := json.Marshal(r)
		if err != nil {
			return errors.New("encoding report failed").
				WithTag("scene_id", r.SceneID).
				Wrap(err)
		}

		msgs[i] = kafka.Message{
			Key:   []byte(r.SceneID),
			Value: value,
			Time:  r.Timestamp,
		}
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.New("writing reports to kafka failed").
			WithTag("topic", p.Topic).
			WithTag("count", len(msgs)).
			Wrap(err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
