package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Event — событие заказа, прочитанное из Kafka, вместе с координатами записи.
type Event struct {
	Envelope
	Topic     string
	Partition int32
	Offset    int64
}

// EventHandler обрабатывает одно событие. Ошибка запускает повторы, затем DLQ.
type EventHandler func(ctx context.Context, event Event) error

// ConsumerConfig задаёт параметры consumer group.
type ConsumerConfig struct {
	GroupID string
	Topics  []string
	// FromOldest начинает чтение с начала topic, если у группы нет сохранённого offset.
	FromOldest bool
	MaxRetries int
	RetryDelay time.Duration
	// DLQ получает сообщения, которые не разобрались или не обработались за MaxRetries попыток.
	DLQ *Producer
}

// Consumer читает события заказов из Kafka.
type Consumer struct {
	group      sarama.ConsumerGroup
	topics     []string
	handle     EventHandler
	dlq        *Producer
	maxRetries int
	retryDelay time.Duration
	logger     *log.Entry
}

// NewConsumer подключает consumer group.
func NewConsumer(brokers []string, cfg ConsumerConfig, handle EventHandler, logger *log.Entry) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.FromOldest {
		config.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group %s: %w", cfg.GroupID, err)
	}
	return newConsumer(group, cfg, handle, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig, handle EventHandler, logger *log.Entry) *Consumer {
	if logger == nil {
		logger = log.WithField("component", "kafka-consumer")
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = []string{TopicOrderEvents}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Consumer{
		group:      group,
		topics:     cfg.Topics,
		handle:     handle,
		dlq:        cfg.DLQ,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}
}

// Run читает события до отмены ctx и закрывает группу.
// Consume возвращается при каждом rebalance, поэтому вызывается в цикле.
func (c *Consumer) Run(ctx context.Context) error {
	errsDone := make(chan struct{})
	go func() {
		defer close(errsDone)
		for err := range c.group.Errors() {
			c.logger.WithError(err).Warn("kafka consumer group error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	for ctx.Err() == nil {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				break
			}
			c.logger.WithError(err).Error("kafka consume failed")
		}
	}

	err := c.group.Close()
	<-errsDone
	c.logger.Info("kafka consumer stopped")
	if err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает записи одной партиции. Запись помечается прочитанной,
// только если обработчик справился или она ушла в DLQ.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			entry := c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			})
			if err := c.process(ctx, message); err != nil {
				entry.WithError(err).Error("order event left unacknowledged")
				continue
			}
			session.MarkMessage(message, "")
		}
	}
}

// process разбирает envelope и вызывает обработчик с повторами.
// Неразборчивая запись повторов не получает: сразу DLQ или пропуск.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	env, err := ParseEnvelope(message)
	if err != nil {
		if c.dlq == nil {
			c.logger.WithError(err).WithField("offset", message.Offset).Warn("skip malformed order event")
			return nil
		}
		return c.deadLetter(ctx, message, err, 0)
	}

	event := Event{Envelope: *env, Topic: message.Topic, Partition: message.Partition, Offset: message.Offset}
	done := retryCount(message)
	attempts := max(c.maxRetries-done, 1)

	for attempt := 1; ; attempt++ {
		err = c.handle(ctx, event)
		if err == nil {
			return nil
		}
		c.logger.WithError(err).WithFields(log.Fields{
			"event_id":   event.ID,
			"event_type": event.EventType,
			"attempt":    done + attempt,
		}).Warn("order event handler failed")
		if attempt >= attempts {
			break
		}
		if c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}

	if c.dlq == nil {
		return err
	}
	return c.deadLetter(ctx, message, err, done+attempts)
}

// DeadLetter — тело сообщения в DLQ.
type DeadLetter struct {
	Topic     string    `json:"topic"`
	Partition int32     `json:"partition"`
	Offset    int64     `json:"offset"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}

func (c *Consumer) deadLetter(ctx context.Context, message *sarama.ConsumerMessage, cause error, attempts int) error {
	letter := DeadLetter{
		Topic:     message.Topic,
		Partition: message.Partition,
		Offset:    message.Offset,
		Key:       string(message.Key),
		Value:     string(message.Value),
		Error:     cause.Error(),
		Attempts:  attempts,
		FailedAt:  time.Now().UTC(),
	}
	headers := map[string]string{
		HeaderOriginalTopic: message.Topic,
		HeaderErrorMessage:  letter.Error,
		HeaderFailedAt:      letter.FailedAt.Format(time.RFC3339),
		HeaderRetryCount:    strconv.Itoa(attempts),
	}
	if _, err := c.dlq.SendJSON(ctx, TopicDeadLetterQueue, letter.Key, letter, headers); err != nil {
		return fmt.Errorf("dead-letter offset %d: %w", message.Offset, err)
	}
	c.logger.WithFields(log.Fields{"offset": message.Offset, "attempts": attempts}).Warn("order event moved to DLQ")
	return nil
}

// retryCount читает число уже сделанных попыток из заголовка x-retry-count.
func retryCount(message *sarama.ConsumerMessage) int {
	raw, ok := headerValue(message.Headers, HeaderRetryCount)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
