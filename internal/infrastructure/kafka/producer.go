package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/fanplatform/subscription-service/internal/domain/subscription/deps"
	"github.com/fanplatform/subscription-service/internal/domain/subscription/dto"
)

// KafkaProducer publishes command results
type KafkaProducer struct {
	producer     sarama.SyncProducer
	topic        string
	logger       zerolog.Logger
	successCount atomic.Uint64
	errorCount   atomic.Uint64
}

func NewKafkaProducer(brokers []string, topic string, logger zerolog.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Retry.Max = 5
	config.Producer.Retry.Backoff = 500 * time.Millisecond
	config.Producer.Timeout = 10 * time.Second
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create Kafka SyncProducer")
		return nil, err
	}

	logger.Info().Str("topic", topic).Msg("Kafka SyncProducer successfully initialized")

	return NewKafkaProducerWith(producer, topic, logger), nil
}

// NewKafkaProducerWith wraps an existing sync producer
func NewKafkaProducerWith(producer sarama.SyncProducer, topic string, logger zerolog.Logger) *KafkaProducer {
	return &KafkaProducer{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

var _ deps.ResultPublisher = (*KafkaProducer)(nil)

// PublishResult sends result keyed by user so replies for one user stay ordered
func (p *KafkaProducer) PublishResult(ctx context.Context, result *dto.CommandResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bytes, err := json.Marshal(result)
	if err != nil {
		p.errorCount.Add(1)
		p.logger.Error().Err(err).Str("type", result.Type).Msg("failed to marshal result")
		return err
	}

	key := strconv.FormatInt(result.UserID, 10)
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	latency := time.Since(start)

	if err != nil {
		p.logger.Error().
			Err(err).
			Str("topic", p.topic).
			Str("key", key).
			Dur("latency", latency).
			Uint64("error_count", p.errorCount.Add(1)).
			Msg("failed to send result to kafka")
		return err
	}

	p.logger.Debug().
		Str("topic", p.topic).
		Str("type", result.Type).
		Int32("partition", partition).
		Int64("offset", offset).
		Dur("latency", latency).
		Uint64("success_count", p.successCount.Add(1)).
		Msg("result sent to kafka")

	return nil
}

func (p *KafkaProducer) Close() error {
	if p.producer == nil {
		return nil
	}

	if err := p.producer.Close(); err != nil {
		p.logger.Error().Err(err).Msg("failed to close Kafka producer")
		return err
	}

	p.logger.Info().Msg("Kafka producer successfully closed")
	return nil
}
