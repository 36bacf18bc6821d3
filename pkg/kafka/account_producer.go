package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"identity-service/internal/usecase"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const TopicAccountEvents = "identity.account.events"

type AccountEventProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewAccountEventProducer(brokers []string, topic string, logger *zap.Logger) (*AccountEventProducer, error) {
	config := sarama.NewConfig()
	config.ClientID = "identity-service"
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return NewAccountEventProducerWithClient(producer, topic, logger), nil
}

func NewAccountEventProducerWithClient(p sarama.SyncProducer, topic string, logger *zap.Logger) *AccountEventProducer {
	if topic == "" {
		topic = TopicAccountEvents
	}
	return &AccountEventProducer{producer: p, topic: topic, logger: logger}
}

// PublishAccountEvent is keyed by account id so one account's events stay ordered.
func (p *AccountEventProducer) PublishAccountEvent(ctx context.Context, ev *usecase.AccountEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.AccountID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}

	p.logger.Debug("account event sent",
		zap.String("type", ev.Type),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *AccountEventProducer) Close() error {
	return p.producer.Close()
}
