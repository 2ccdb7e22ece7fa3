package kafka

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// OffsetService consulta watermark offsets de topics para el auditor de
// consistencia. Usa un consumer sin suscripción, solo para metadata y offsets.
type OffsetService struct {
	consumer *kafka.Consumer
	logger   observability.Logger

	timeoutMs int
}

func NewOffsetService(serverConfigs *serverConfigs,
	logger observability.Logger) (*OffsetService, error) {

	if serverConfigs == nil {
		return nil, errors.New("serverConfigs is required")
	}

	configMap := kafka.ConfigMap{}
	configMap.SetKey("bootstrap.servers", strings.Join(serverConfigs.bootstrapServers, ","))
	configMap.SetKey("group.id", "sync-pipeline-auditor")
	configMap.SetKey("enable.auto.commit", false)

	consumer, err := kafka.NewConsumer(&configMap)
	if err != nil {
		return nil, fmt.Errorf("create offsets consumer: %w", err)
	}

	return &OffsetService{
		consumer:  consumer,
		logger:    logger,
		timeoutMs: 5000,
	}, nil
}

// TopicMessageCount suma high-low watermark de todas las particiones del topic.
// El resultado cuenta publicaciones, incluidas las repetidas por reintentos:
// es una aproximación suficiente para una señal de drift, no un conteo exacto.
func (s *OffsetService) TopicMessageCount(topic string) (int64, error) {

	metadata, err := s.consumer.GetMetadata(&topic, false, s.timeoutMs)
	if err != nil {
		return 0, fmt.Errorf("get metadata for %s: %w", topic, err)
	}

	topicMetadata, ok := metadata.Topics[topic]
	if !ok {
		return 0, fmt.Errorf("topic %s not found in metadata", topic)
	}

	var total int64

	for _, partition := range topicMetadata.Partitions {
		low, high, err := s.consumer.QueryWatermarkOffsets(topic, partition.ID, s.timeoutMs)
		if err != nil {
			return 0, fmt.Errorf("query watermark offsets %s[%d]: %w", topic, partition.ID, err)
		}

		total += high - low
	}

	return total, nil
}

func (s *OffsetService) Close() error {
	if s.consumer != nil {
		return s.consumer.Close()
	}
	return nil
}
