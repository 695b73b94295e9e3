package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ProducerConfig задаёт параметры sync producer.
type ProducerConfig struct {
	ClientID    string
	MaxRetries  int
	Compression sarama.CompressionCodec
}

// DefaultProducerConfig возвращает настройки идемпотентного producer.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		ClientID:    "orderdesk",
		MaxRetries:  5,
		Compression: sarama.CompressionSnappy,
	}
}

// saramaConfig переводит ProducerConfig в настройки sarama. События одного заказа
// не должны дублироваться и переупорядочиваться, поэтому producer идемпотентный с одним запросом в полёте.
func (c ProducerConfig) saramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	if c.ClientID != "" {
		config.ClientID = c.ClientID
	}
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = c.MaxRetries
	config.Producer.Return.Successes = true
	config.Producer.Compression = c.Compression
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// Record — одно сообщение для отправки.
type Record struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Delivery — куда брокер записал сообщение.
type Delivery struct {
	Partition int32
	Offset    int64
}

// Producer отправляет записи в Kafka синхронно.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, cfg ProducerConfig, logger *log.Entry) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	producer, err := sarama.NewSyncProducer(brokers, cfg.saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(producer, logger), nil
}

func newProducer(sp sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{producer: sp, logger: logger, now: time.Now}
}

// Send отправляет запись. sarama не принимает контекст, поэтому отмена проверяется до отправки.
func (p *Producer) Send(ctx context.Context, rec Record) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}

	msg := &sarama.ProducerMessage{
		Topic:     rec.Topic,
		Key:       sarama.StringEncoder(rec.Key),
		Value:     sarama.ByteEncoder(rec.Value),
		Timestamp: p.now(),
	}
	for k, v := range rec.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	entry := p.logger.WithFields(log.Fields{"topic": rec.Topic, "key": rec.Key})
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		entry.WithError(err).Error("kafka send failed")
		return Delivery{}, fmt.Errorf("send to %s: %w", rec.Topic, err)
	}
	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka record sent")
	return Delivery{Partition: partition, Offset: offset}, nil
}

// SendJSON сериализует v и отправляет его как значение записи.
func (p *Producer) SendJSON(ctx context.Context, topic, key string, v any, headers map[string]string) (Delivery, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return Delivery{}, fmt.Errorf("marshal record for %s: %w", topic, err)
	}
	return p.Send(ctx, Record{Topic: topic, Key: key, Value: value, Headers: headers})
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
