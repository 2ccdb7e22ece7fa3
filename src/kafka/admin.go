package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

type AdminClientConfig struct {
	serverConfigs
	*securityConfig

	requestTimeoutMs int
	retries          int
	retryBackoffMs   int
	socketTimeoutMs  int
}

func NewAdminCgfWithSvrCfgs(serverConfigs *serverConfigs,
	securityConfig *securityConfig) (*AdminClientConfig, error) {

	if serverConfigs == nil {
		return nil, errors.New("serverConfigs is required")
	}

	a := &AdminClientConfig{
		serverConfigs:    *serverConfigs,
		securityConfig:   securityConfig,
		requestTimeoutMs: 30000,
		retries:          3,
		retryBackoffMs:   100,
		socketTimeoutMs:  60000,
	}

	return a, nil
}

func NewAdminCfg(bootstrapServers []string) (*AdminClientConfig, error) {

	serverConfigs, err := NewServerConfigs(bootstrapServers, nil)

	if err != nil {
		return nil, err
	}

	return NewAdminCgfWithSvrCfgs(serverConfigs, nil)
}

func (a *AdminClientConfig) WithRequestTimeoutMs(timeoutMs int) *AdminClientConfig {
	if timeoutMs > 0 {
		a.requestTimeoutMs = timeoutMs
	}
	return a
}

func (a *AdminClientConfig) WithRetries(retries int) *AdminClientConfig {
	if retries >= 0 {
		a.retries = retries
	}
	return a
}

func (a *AdminClientConfig) WithRetryBackoffMs(backoffMs int) *AdminClientConfig {
	if backoffMs > 0 {
		a.retryBackoffMs = backoffMs
	}
	return a
}

func (a *AdminClientConfig) WithSocketTimeoutMs(timeoutMs int) *AdminClientConfig {
	if timeoutMs > 0 {
		a.socketTimeoutMs = timeoutMs
	}
	return a
}

func (a *AdminClientConfig) Build() (*kafka.ConfigMap, error) {
	configMap := kafka.ConfigMap{}

	configMap.SetKey("bootstrap.servers", strings.Join(a.bootstrapServers, ","))

	configMap.SetKey("request.timeout.ms", a.requestTimeoutMs)
	configMap.SetKey("retries", a.retries)
	configMap.SetKey("retry.backoff.ms", a.retryBackoffMs)
	configMap.SetKey("socket.timeout.ms", a.socketTimeoutMs)

	if a.clientId != nil {
		configMap.SetKey("client.id", *a.clientId)
	}

	if a.securityConfig != nil {
		a.securityConfig.Build(&configMap)
	}

	return &configMap, nil
}

type AdminService struct {
	Config *AdminClientConfig
	*kafka.AdminClient
	logger observability.Logger
}

func NewAdminService(config *AdminClientConfig, logger observability.Logger) (*AdminService, error) {
	cfg, err := config.Build()
	if err != nil {
		return nil, err
	}

	admin, err := kafka.NewAdminClient(cfg)
	if err != nil {
		return nil, err
	}

	return &AdminService{
		Config:      config,
		AdminClient: admin,
		logger:      logger,
	}, nil
}

// EnsureTopics crea los topics que no existan; un topic ya existente no es error
func (s *AdminService) EnsureTopics(ctx context.Context, topics []*Topic) error {

	specs := make([]kafka.TopicSpecification, 0, len(topics))

	for _, t := range topics {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid topic spec: %w", err)
		}
		specs = append(specs, *t.Build())
	}

	results, err := s.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}

	for _, result := range results {
		code := result.Error.Code()

		if code == kafka.ErrNoError {
			s.logger.Info(ctx, "Topic creado", "topic", result.Topic)
			continue
		}

		if code == kafka.ErrTopicAlreadyExists {
			continue
		}

		return fmt.Errorf("create topic %s: %s", result.Topic, result.Error.String())
	}

	return nil
}

func (s *AdminService) Close() {
	if s.AdminClient != nil {
		s.AdminClient.Close()
	}
}
