package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/kafka"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	confluentkafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// BusSink publica cada ChangeEvent en un topic por entidad. Los topics se
// crean con una partición, así el orden por entidad se preserva para los
// consumidores sin depender del particionado por clave.
type BusSink struct {
	producer    *kafka.ProducerService
	offsets     *kafka.OffsetService
	topicPrefix string
	logger      observability.Logger
}

func NewBusSink(producer *kafka.ProducerService,
	offsets *kafka.OffsetService,
	topicPrefix string,
	logger observability.Logger) (*BusSink, error) {

	if producer == nil {
		return nil, errors.New("producer is required")
	}

	return &BusSink{
		producer:    producer,
		offsets:     offsets,
		topicPrefix: topicPrefix,
		logger:      logger,
	}, nil
}

func (bs *BusSink) Name() string {
	return "bus"
}

func (bs *BusSink) TopicFor(entity EntityType) string {
	return fmt.Sprintf("%s.%s", bs.topicPrefix, entity)
}

func (bs *BusSink) Write(ctx context.Context, event *ChangeEvent) error {
	if event == nil {
		return nil
	}

	if event.IsEmptyPayload() {
		bs.logger.Warn(ctx, "Evento con payload vacío, no se publica", nil,
			"sink", bs.Name(), "entity", string(event.EntityType), "key", event.SourceKey)
		return nil
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return NewPermanentSinkError(bs.Name(), fmt.Errorf("serialize event: %w", err))
	}

	topic := bs.TopicFor(event.EntityType)

	err = bs.producer.ProduceKeyedSync(ctx, topic, []byte(event.BusKey()), jsonData)
	if err != nil {
		return bs.classify(err)
	}

	return nil
}

func (bs *BusSink) classify(err error) error {
	var kafkaErr confluentkafka.Error

	if errors.As(err, &kafkaErr) {
		if kafkaErr.IsFatal() {
			return NewPermanentSinkError(bs.Name(), err)
		}

		switch kafkaErr.Code() {
		case confluentkafka.ErrMsgSizeTooLarge,
			confluentkafka.ErrInvalidMsg,
			confluentkafka.ErrTopicException:
			return NewPermanentSinkError(bs.Name(), err)
		}
	}

	return NewTransientSinkError(bs.Name(), err)
}

func (bs *BusSink) Count(ctx context.Context, entity EntityType) (int64, error) {
	if bs.offsets == nil {
		return 0, errors.New("offsets service not configured")
	}

	return bs.offsets.TopicMessageCount(bs.TopicFor(entity))
}

func (bs *BusSink) Ping(ctx context.Context) error {
	deadline, ok := ctx.Deadline()

	timeoutMs := 2000
	if ok {
		if remaining := int(time.Until(deadline).Milliseconds()); remaining > 0 {
			timeoutMs = remaining
		}
	}

	return bs.producer.Ping(timeoutMs)
}

func (bs *BusSink) Close() error {
	bs.producer.Close()

	if bs.offsets != nil {
		return bs.offsets.Close()
	}

	return nil
}
