package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/gridlake-io/gridlake/internal/logging"
)

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

// producer is the subset of *kgo.Client the sink uses.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaSink produces events as JSON records keyed by client and model, so
// every event of a model lands on one partition in order.
type KafkaSink struct {
	client producer
	topic  string
	log    *logging.Logger
}

// NewKafkaSink connects to the brokers and makes sure the topic exists.
func NewKafkaSink(ctx context.Context, cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("activity: no kafka brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("activity: no kafka topic configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("activity: kafka client: %w", err)
	}
	if err := EnsureTopic(ctx, kadm.NewClient(client), cfg); err != nil {
		client.Close()
		return nil, err
	}
	return newKafkaSink(client, cfg.Topic), nil
}

func newKafkaSink(client producer, topic string) *KafkaSink {
	return &KafkaSink{
		client: client,
		topic:  topic,
		log:    logging.Global().With(map[string]any{"component": "activity", "topic": topic}),
	}
}

// topicCreator is the subset of *kadm.Client used by EnsureTopic.
type topicCreator interface {
	CreateTopics(ctx context.Context, partitions int32, replicationFactor int16, configs map[string]*string, topics ...string) (kadm.CreateTopicResponses, error)
}

// EnsureTopic creates the topic unless it already exists.
func EnsureTopic(ctx context.Context, admin topicCreator, cfg KafkaConfig) error {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := cfg.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}
	resps, err := admin.CreateTopics(ctx, partitions, replication, nil, cfg.Topic)
	if err != nil {
		return fmt.Errorf("activity: create topic %s: %w", cfg.Topic, err)
	}
	for _, r := range resps {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("activity: create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Record produces e asynchronously. Delivery failures are logged.
func (s *KafkaSink) Record(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	value, err := json.Marshal(e)
	if err != nil {
		s.log.Warnf("activity event dropped", map[string]any{"error": err.Error(), "type": e.Type})
		return
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(e.ClientID + "/" + e.ModelID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	s.client.Produce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if err != nil {
			s.log.Warnf("activity event not delivered", map[string]any{
				"error":     err.Error(),
				"type":      e.Type,
				"processId": e.ProcessID,
			})
		}
	})
}

// Close flushes buffered events and closes the client.
func (s *KafkaSink) Close(ctx context.Context) error {
	err := s.client.Flush(ctx)
	s.client.Close()
	if err != nil {
		return fmt.Errorf("activity: flush: %w", err)
	}
	return nil
}

var _ Logger = (*KafkaSink)(nil)
