package app

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/audit"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/config"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/expressions"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/health"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/kafka"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/observability"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/pipeline"
	"github.com/SOLUCIONESSYCOM/go_sync_pipeline/src/postgres"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/elastic/go-elasticsearch/v8"
)

// SyncService compone el pipeline completo: fuente relacional, coordinador
// de watermarks, dispatcher con un worker por entidad, los tres sinks, el
// monitor de salud y el auditor de consistencia
type SyncService struct {
	logger observability.Logger

	connManager *postgres.ConnectionManager
	source      *postgres.SourceStore
	coordinator *pipeline.WatermarkCoordinator
	dispatcher  *pipeline.Dispatcher
	monitor     *health.Monitor
	auditor     *audit.Auditor

	producer *kafka.ProducerService
	admin    *kafka.AdminService
	offsets  *kafka.OffsetService

	busSink      *pipeline.BusSink
	columnarSink *pipeline.ColumnarSink
	searchSink   *pipeline.SearchSink

	syncCfg *config.SyncConfig
}

func NewSyncService(ctx context.Context, logger observability.Logger) (*SyncService, error) {

	postgresCfg, err := config.PostgresCfg()
	if err != nil {
		return nil, fmt.Errorf("load postgres config: %w", err)
	}

	kafkaCfg, err := config.KafkaCfg()
	if err != nil {
		return nil, fmt.Errorf("load kafka config: %w", err)
	}

	clickhouseCfg, err := config.ClickHouseCfg()
	if err != nil {
		return nil, fmt.Errorf("load clickhouse config: %w", err)
	}

	elasticCfg, err := config.ElasticCfg()
	if err != nil {
		return nil, fmt.Errorf("load elastic config: %w", err)
	}

	syncCfg, err := config.SyncCfg()
	if err != nil {
		return nil, fmt.Errorf("load sync config: %w", err)
	}

	svc := &SyncService{logger: logger, syncCfg: syncCfg}

	trackedEntities, err := svc.trackedEntities(syncCfg)
	if err != nil {
		return nil, err
	}

	if err := svc.setupPostgres(ctx, postgresCfg, trackedEntities); err != nil {
		return nil, err
	}

	if err := svc.setupKafka(ctx, kafkaCfg, trackedEntities); err != nil {
		svc.Close(ctx)
		return nil, err
	}

	if err := svc.setupClickHouse(ctx, clickhouseCfg, syncCfg); err != nil {
		svc.Close(ctx)
		return nil, err
	}

	if err := svc.setupElastic(elasticCfg); err != nil {
		svc.Close(ctx)
		return nil, err
	}

	svc.setupPipeline(syncCfg)
	svc.setupHealth()
	svc.setupAudit()

	return svc, nil
}

func (s *SyncService) trackedEntities(syncCfg *config.SyncConfig) ([]pipeline.EntityType, error) {

	if len(syncCfg.Trackers) == 0 {
		return nil, fmt.Errorf("no trackers configured")
	}

	entities := make([]pipeline.EntityType, 0, len(syncCfg.Trackers))

	for _, tracker := range syncCfg.Trackers {

		entity, err := pipeline.ParseEntityType(tracker.Entity)
		if err != nil {
			return nil, fmt.Errorf("tracker: %w", err)
		}

		entities = append(entities, entity)
	}

	return entities, nil
}

func (s *SyncService) setupPostgres(ctx context.Context,
	postgresCfg *config.PostgresConfig, entities []pipeline.EntityType) error {

	s.connManager = postgres.NewConnectionManager(postgresCfg, s.logger)

	if err := s.connManager.ConnectWithRetry(ctx); err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	pool := s.connManager.Pool()

	if err := postgres.VerifyEntityTables(ctx, pool, entities); err != nil {
		return fmt.Errorf("verify entity tables: %w", err)
	}

	watermarkRepo := postgres.NewWatermarkRepository(pool)

	if err := watermarkRepo.Init(ctx); err != nil {
		return fmt.Errorf("init watermarks: %w", err)
	}

	s.source = postgres.NewSourceStore(pool, s.logger)
	s.coordinator = pipeline.NewWatermarkCoordinator(watermarkRepo, s.logger)

	return nil
}

func (s *SyncService) setupKafka(ctx context.Context,
	kafkaCfg *config.KafkaConfig, entities []pipeline.EntityType) error {

	var clientID *string
	if kafkaCfg.ClientID != "" {
		clientID = &kafkaCfg.ClientID
	}

	serverCfgs, err := kafka.NewServerConfigs(kafkaCfg.BootstrapServers, clientID)
	if err != nil {
		return fmt.Errorf("kafka server configs: %w", err)
	}

	securityCfg := kafka.NewSecurityConfig().
		WithProtocol(kafkaCfg.SecurityProtocol).
		WithSASL(kafkaCfg.SaslMechanism, kafkaCfg.SaslUsername, kafkaCfg.SaslPassword).
		WithSSL(kafkaCfg.SslKeystoreLocation, kafkaCfg.SslKeystorePassword,
			kafkaCfg.SslTruststoreLocation, kafkaCfg.SslTruststorePassword)

	producerCfg, err := kafka.NewProducerCgfWithSvrCfgs(serverCfgs, securityCfg)
	if err != nil {
		return fmt.Errorf("kafka producer config: %w", err)
	}

	producer, err := kafka.NewProducerService(producerCfg, s.logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	s.producer = producer

	adminCfg, err := kafka.NewAdminCgfWithSvrCfgs(serverCfgs, securityCfg)
	if err != nil {
		return fmt.Errorf("kafka admin config: %w", err)
	}

	admin, err := kafka.NewAdminService(adminCfg, s.logger)
	if err != nil {
		return fmt.Errorf("kafka admin: %w", err)
	}
	s.admin = admin

	offsets, err := kafka.NewOffsetService(serverCfgs, s.logger)
	if err != nil {
		return fmt.Errorf("kafka offsets: %w", err)
	}
	s.offsets = offsets

	busSink, err := pipeline.NewBusSink(producer, offsets, kafkaCfg.GetTopicPrefix(), s.logger)
	if err != nil {
		return fmt.Errorf("bus sink: %w", err)
	}
	s.busSink = busSink

	topics := make([]*kafka.Topic, 0, len(entities))

	for _, entity := range entities {
		topics = append(topics, kafka.NewTopic(busSink.TopicFor(entity),
			kafkaCfg.GetPartitions(), kafkaCfg.GetReplicationFactor()))
	}

	if err := admin.EnsureTopics(ctx, topics); err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}

	return nil
}

func (s *SyncService) setupClickHouse(ctx context.Context,
	clickhouseCfg *config.ClickHouseConfig, syncCfg *config.SyncConfig) error {

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: clickhouseCfg.Addrs,
		Auth: clickhouse.Auth{
			Database: clickhouseCfg.Database,
			Username: clickhouseCfg.User,
			Password: clickhouseCfg.Password,
		},
	})
	if err != nil {
		return fmt.Errorf("connect clickhouse: %w", err)
	}

	columnarEntities := make([]pipeline.EntityType, 0, len(syncCfg.ColumnarEntities))

	for _, raw := range syncCfg.ColumnarEntities {

		entity, err := pipeline.ParseEntityType(raw)
		if err != nil {
			return fmt.Errorf("columnar entities: %w", err)
		}

		columnarEntities = append(columnarEntities, entity)
	}

	columnarSink, err := pipeline.NewColumnarSink(conn, columnarEntities, s.logger)
	if err != nil {
		return fmt.Errorf("columnar sink: %w", err)
	}

	if err := columnarSink.EnsureTables(ctx); err != nil {
		return fmt.Errorf("ensure analytics tables: %w", err)
	}

	s.columnarSink = columnarSink

	return nil
}

func (s *SyncService) setupElastic(elasticCfg *config.ElasticConfig) error {

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: elasticCfg.Addresses,
		Username:  elasticCfg.User,
		Password:  elasticCfg.Password,
	})
	if err != nil {
		return fmt.Errorf("elasticsearch client: %w", err)
	}

	searchSink, err := pipeline.NewSearchSink(client,
		elasticCfg.GetIndexPrefix(), s.source, s.logger)
	if err != nil {
		return fmt.Errorf("search sink: %w", err)
	}

	s.searchSink = searchSink

	return nil
}

func (s *SyncService) setupPipeline(syncCfg *config.SyncConfig) {

	filterFactory := expressions.NewExpressionFilterFactory(s.logger)

	targets := make(map[pipeline.EntityType][]pipeline.SinkTarget, len(syncCfg.Trackers))

	for _, tracker := range syncCfg.Trackers {

		// Los trackers ya fueron validados al resolver las entidades
		entity, _ := pipeline.ParseEntityType(tracker.Entity)

		targets[entity] = s.buildTargets(entity, tracker, filterFactory)
	}

	workerCfg := pipeline.WorkerConfig{
		PollInterval:  syncCfg.PollInterval(),
		MaxBackoff:    syncCfg.MaxBackoff(),
		PageSize:      syncCfg.GetPageSize(),
		SourceTimeout: syncCfg.SourceTimeout(),
		SinkTimeout:   syncCfg.SinkTimeout(),
		Retry: pipeline.RetryPolicy{
			InitialInterval: syncCfg.RetryInitial(),
			MaxInterval:     syncCfg.RetryMax(),
			MaxAttempts:     syncCfg.GetRetryMaxAttempts(),
		},
	}

	s.dispatcher = pipeline.NewDispatcher(s.source, s.coordinator, workerCfg,
		targets, syncCfg.ShutdownGrace(), observability.GetSyncMetrics(), s.logger)
}

func (s *SyncService) buildTargets(entity pipeline.EntityType,
	tracker config.Tracker, filterFactory pipeline.EventFilterFactory) []pipeline.SinkTarget {

	// Sin targets explícitos la entidad se replica a todos los sinks
	// aplicables, sin filtro
	if len(tracker.Targets) == 0 {

		targets := []pipeline.SinkTarget{{Sink: s.busSink}}

		if s.columnarSink.Wired(entity) {
			targets = append(targets, pipeline.SinkTarget{Sink: s.columnarSink})
		}

		return append(targets, pipeline.SinkTarget{Sink: s.searchSink})
	}

	targets := make([]pipeline.SinkTarget, 0, len(tracker.Targets))

	for _, target := range tracker.Targets {

		sink := s.sinkByName(target.Sink)

		if sink == nil {
			ctx := context.Background()
			s.logger.Warn(ctx, "Target con sink desconocido, se ignora", nil,
				"entity", string(entity), "sink", target.Sink)
			continue
		}

		var filter pipeline.EventFilter

		if len(target.Filter.Operations) > 0 || len(target.Filter.Conditions) > 0 {
			filter = filterFactory.CreateFilter(target.Filter)
		}

		targets = append(targets, pipeline.SinkTarget{Sink: sink, Filter: filter})
	}

	return targets
}

func (s *SyncService) sinkByName(name string) pipeline.EventSink {
	switch name {
	case s.busSink.Name():
		return s.busSink
	case s.columnarSink.Name():
		return s.columnarSink
	case s.searchSink.Name():
		return s.searchSink
	default:
		return nil
	}
}

func (s *SyncService) setupHealth() {

	healthCfg, _ := config.HealthCfg()

	dependencies := []health.Dependency{
		{
			Name:  "postgres",
			Check: s.connManager.HealthCheck,
		},
		{
			Name:  "bus",
			Check: s.busSink.Ping,
		},
		{
			Name:  "columnar",
			Check: s.columnarSink.Ping,
		},
		{
			Name:  "search",
			Check: s.searchSink.Ping,
		},
	}

	s.monitor = health.NewMonitor(dependencies, healthCfg.Interval(),
		healthCfg.ProbeTimeout(), observability.GetSyncMetrics(), s.logger)
}

func (s *SyncService) setupAudit() {

	auditCfg, _ := config.AuditCfg()

	targets := make(map[pipeline.EntityType][]pipeline.EventSink, len(s.syncCfg.Trackers))

	for _, tracker := range s.syncCfg.Trackers {

		entity, _ := pipeline.ParseEntityType(tracker.Entity)

		sinks := []pipeline.EventSink{s.busSink}

		if s.columnarSink.Wired(entity) {
			sinks = append(sinks, s.columnarSink)
		}

		targets[entity] = append(sinks, s.searchSink)
	}

	s.auditor = audit.NewAuditor(s.source, targets, auditCfg.Interval(),
		auditCfg.Tolerance, observability.GetSyncMetrics(), s.logger)
}

// Start arranca los workers, el monitor de salud y el auditor
func (s *SyncService) Start(ctx context.Context) error {

	defer s.recoverPanic(ctx, "arranque del pipeline")

	seedTime, err := s.syncCfg.SeedTime()
	if err != nil {
		return err
	}

	if err := s.dispatcher.Start(ctx, seedTime); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}

	s.monitor.Start(ctx)
	s.auditor.Start(ctx)

	s.logger.Info(ctx, "SyncService started",
		"trackers", len(s.syncCfg.Trackers))

	return nil
}

func (s *SyncService) Monitor() *health.Monitor {
	return s.monitor
}

// Ready indica si el pipeline puede procesar: fuente alcanzable y
// watermarks sembrados
func (s *SyncService) Ready() bool {
	return s.monitor.DependencyUp("postgres") &&
		s.coordinator.HasSeededEntities()
}

func (s *SyncService) Auditor() *audit.Auditor {
	return s.auditor
}

func (s *SyncService) Dispatcher() *pipeline.Dispatcher {
	return s.dispatcher
}

func (s *SyncService) recoverPanic(ctx context.Context, operation string) {
	if r := recover(); r != nil {

		stackTrace := string(debug.Stack())

		s.logger.Error(ctx, fmt.Sprintf("Panic capturado en %s", operation),
			fmt.Errorf("panic: %v", r),
			"operation", operation,
			"panic_value", r,
			"stack_trace", stackTrace)
	}
}

// Close detiene los componentes en orden inverso al arranque: primero los
// workers para que no queden escrituras en vuelo, luego los sinks y las
// conexiones
func (s *SyncService) Close(ctx context.Context) error {

	s.logger.Trace(ctx, "Cerrando SyncService")

	if s.auditor != nil {
		s.auditor.Stop()
	}

	if s.monitor != nil {
		s.monitor.Stop()
	}

	if s.dispatcher != nil {
		s.dispatcher.Stop(ctx)
	}

	if s.searchSink != nil {
		s.searchSink.Close()
	}

	if s.columnarSink != nil {
		s.columnarSink.Close()
	}

	// BusSink.Close cierra el producer y el servicio de offsets
	if s.busSink != nil {
		s.busSink.Close()
	} else {
		if s.producer != nil {
			s.producer.Close()
		}
		if s.offsets != nil {
			s.offsets.Close()
		}
	}

	if s.admin != nil {
		s.admin.Close()
	}

	if s.connManager != nil {
		s.connManager.Close()
	}

	s.logger.Trace(ctx, "SyncService cerrado")

	return nil
}
