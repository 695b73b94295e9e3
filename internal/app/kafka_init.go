package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/outbox"
)

// outboxPublishers — куда outbox worker отправляет события заказов:
// в Kafka при настроенных и доступных брокерах, иначе в лог. DLQ есть только у Kafka.
type outboxPublishers struct {
	main     domain.OutboxPublisher
	dlq      domain.OutboxPublisher
	producer *kafka.Producer
}

func initOutboxPublishers(cfg Config, logger *log.Entry) outboxPublishers {
	fallback := outboxPublishers{main: outbox.NewLogPublisher(logger.WithField("layer", "outbox"))}

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		logger.Info("kafka brokers are not configured, order events go to the log")
		return fallback
	}
	producer, err := kafka.NewProducer(brokers, kafka.DefaultProducerConfig(), logger.WithField("layer", "kafka"))
	if err != nil {
		logger.WithError(err).Warn("kafka is unreachable, order events go to the log")
		return fallback
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return outboxPublishers{
		main:     kafka.NewOutboxPublisher(producer, cfg.OutboxTopic),
		dlq:      kafka.NewOutboxPublisher(producer, cfg.OutboxDLQTopic),
		producer: producer,
	}
}

// close закрывает Kafka producer, если он был создан.
func (p outboxPublishers) close(logger *log.Entry) {
	if p.producer == nil {
		return
	}
	if err := p.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
