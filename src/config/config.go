package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SOLUCIONESSYCOM/configuro"
	"github.com/SOLUCIONESSYCOM/scribe"
)

var cfg *configuro.AppConfig

type Condition struct {
	Field    string      `json:"Field"`
	Operator string      `json:"Operator"`
	Value    interface{} `json:"Value"`
}

type FilterConfig struct {
	Operations []string    `json:"Operations,omitempty"`
	Conditions []Condition `json:"Conditions,omitempty"`
	Logic      string      `json:"Logic,omitempty"`
}

// Target asocia un sink con un filtro opcional de eventos
type Target struct {
	Sink   string       `json:"Sink"`
	Filter FilterConfig `json:"Filter,omitempty"`
}

// Tracker define una entidad rastreada y a qué sinks se replica.
// Sin targets explícitos la entidad se replica a todos los sinks.
type Tracker struct {
	Entity  string   `json:"Entity"`
	Targets []Target `json:"Targets,omitempty"`
}

type postgresConfig struct {
	connectionString string `json:"-"` // Campo privado, no se deserializa directamente
	User             string `json:"User"`
	Password         string `json:"Password"`
}

type postgresConfigJSON struct {
	ConnectionString string `json:"ConnectionString"`
	User             string `json:"User"`
	Password         string `json:"Password"`
}

func (c *postgresConfig) ConnectionString() string {
	connString := ""

	parts := strings.Split(c.connectionString, " ")

	values := make(map[string]string)

	for _, part := range parts {
		parts := strings.Split(part, "=")
		if len(parts) == 2 {
			values[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	for key, value := range values {
		connString += fmt.Sprintf("%s=%s ", key, value)
	}
	connString += fmt.Sprintf("user=%s password=%s", c.User, c.Password)

	return connString
}

type PostgresConfig struct {
	*postgresConfig
}

type kafkaConfig struct {
	BootstrapServers  []string `json:"BootstrapServers"`
	ClientID          string   `json:"ClientID,omitempty"`
	TopicPrefix       string   `json:"TopicPrefix,omitempty"`
	Partitions        int      `json:"Partitions,omitempty"`
	ReplicationFactor int      `json:"ReplicationFactor,omitempty"`

	SecurityProtocol string `json:"SecurityProtocol,omitempty"`

	SaslMechanism string `json:"SaslMechanism,omitempty"`
	SaslUsername  string `json:"SaslUsername,omitempty"`
	SaslPassword  string `json:"SaslPassword,omitempty"`

	SslKeystoreLocation   string `json:"SslKeystoreLocation,omitempty"`
	SslKeystorePassword   string `json:"SslKeystorePassword,omitempty"`
	SslTruststoreLocation string `json:"SslTruststoreLocation,omitempty"`
	SslTruststorePassword string `json:"SslTruststorePassword,omitempty"`
}

type KafkaConfig struct {
	*kafkaConfig
}

func (c *KafkaConfig) GetTopicPrefix() string {
	if c.TopicPrefix == "" {
		return "cdc"
	}
	return c.TopicPrefix
}

func (c *KafkaConfig) GetPartitions() int {
	// Una partición por topic preserva el orden por entidad de extremo a extremo
	if c.Partitions <= 0 {
		return 1
	}
	return c.Partitions
}

func (c *KafkaConfig) GetReplicationFactor() int {
	if c.ReplicationFactor <= 0 {
		return 1
	}
	return c.ReplicationFactor
}

type clickhouseConfig struct {
	Addrs    []string `json:"Addrs"`
	Database string   `json:"Database"`
	User     string   `json:"User,omitempty"`
	Password string   `json:"Password,omitempty"`
}

type ClickHouseConfig struct {
	*clickhouseConfig
}

type elasticConfig struct {
	Addresses   []string `json:"Addresses"`
	User        string   `json:"User,omitempty"`
	Password    string   `json:"Password,omitempty"`
	IndexPrefix string   `json:"IndexPrefix,omitempty"`
}

type ElasticConfig struct {
	*elasticConfig
}

func (c *ElasticConfig) GetIndexPrefix() string {
	if c.IndexPrefix == "" {
		return "cdc"
	}
	return c.IndexPrefix
}

type syncConfig struct {
	Trackers         []Tracker `json:"Trackers"`
	PollIntervalMs   int       `json:"PollIntervalMs,omitempty"`
	MaxBackoffMs     int       `json:"MaxBackoffMs,omitempty"`
	PageSize         int       `json:"PageSize,omitempty"`
	SourceTimeoutMs  int       `json:"SourceTimeoutMs,omitempty"`
	SinkTimeoutMs    int       `json:"SinkTimeoutMs,omitempty"`
	RetryMaxAttempts int       `json:"RetryMaxAttempts,omitempty"`
	RetryInitialMs   int       `json:"RetryInitialMs,omitempty"`
	RetryMaxMs       int       `json:"RetryMaxMs,omitempty"`
	ShutdownGraceMs  int       `json:"ShutdownGraceMs,omitempty"`
	SeedWatermark    string    `json:"SeedWatermark,omitempty"`
	ColumnarEntities []string  `json:"ColumnarEntities,omitempty"`
}

type SyncConfig struct {
	*syncConfig
}

func (c *SyncConfig) PollInterval() time.Duration {
	if c.PollIntervalMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *SyncConfig) MaxBackoff() time.Duration {
	if c.MaxBackoffMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}

func (c *SyncConfig) GetPageSize() int {
	if c.PageSize <= 0 {
		return 500
	}
	return c.PageSize
}

// SourceTimeout debe ser menor que el intervalo de polling para que una
// dependencia colgada no acumule ciclos pendientes
func (c *SyncConfig) SourceTimeout() time.Duration {
	if c.SourceTimeoutMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.SourceTimeoutMs) * time.Millisecond
}

func (c *SyncConfig) SinkTimeout() time.Duration {
	if c.SinkTimeoutMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.SinkTimeoutMs) * time.Millisecond
}

func (c *SyncConfig) GetRetryMaxAttempts() int {
	if c.RetryMaxAttempts <= 0 {
		return 3
	}
	return c.RetryMaxAttempts
}

func (c *SyncConfig) RetryInitial() time.Duration {
	if c.RetryInitialMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.RetryInitialMs) * time.Millisecond
}

func (c *SyncConfig) RetryMax() time.Duration {
	if c.RetryMaxMs <= 0 {
		return 1 * time.Second
	}
	return time.Duration(c.RetryMaxMs) * time.Millisecond
}

func (c *SyncConfig) ShutdownGrace() time.Duration {
	if c.ShutdownGraceMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ShutdownGraceMs) * time.Millisecond
}

// SeedTime retorna el watermark inicial configurado, o zero si no hay
func (c *SyncConfig) SeedTime() (time.Time, error) {
	if c.SeedWatermark == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.SeedWatermark)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse SeedWatermark: %w", err)
	}
	return t, nil
}

type auditConfig struct {
	IntervalMs int   `json:"IntervalMs,omitempty"`
	Tolerance  int64 `json:"Tolerance,omitempty"`
}

type AuditConfig struct {
	*auditConfig
}

func (c *AuditConfig) Interval() time.Duration {
	if c.IntervalMs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.IntervalMs) * time.Millisecond
}

type healthConfig struct {
	IntervalMs     int `json:"IntervalMs,omitempty"`
	ProbeTimeoutMs int `json:"ProbeTimeoutMs,omitempty"`
}

type HealthConfig struct {
	*healthConfig
}

func (c *HealthConfig) Interval() time.Duration {
	if c.IntervalMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.IntervalMs) * time.Millisecond
}

func (c *HealthConfig) ProbeTimeout() time.Duration {
	if c.ProbeTimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

type serverConfig struct {
	HttpPort int `json:"HttpPort"`
}

type ServerConfig struct {
	*serverConfig
}

type Config struct {
	Postgres   postgresConfig   `json:"Postgres"`
	Kafka      kafkaConfig      `json:"Kafka"`
	ClickHouse clickhouseConfig `json:"ClickHouse"`
	Elastic    elasticConfig    `json:"Elastic"`
	Sync       syncConfig       `json:"Sync"`
	Audit      auditConfig      `json:"Audit,omitempty"`
	Health     healthConfig     `json:"Health,omitempty"`
	Server     serverConfig     `json:"Server"`
}

func loadConfig() error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("error al obtener el path del archivo de configuración: %w", err)
	}

	execDir := filepath.Dir(execPath)
	configPath := filepath.Join(execDir, "config.json")

	cfg, err = configuro.NewFromJsonFiles(true, configPath)
	if err != nil {
		return fmt.Errorf("error al cargar el archivo de configuración: %w", err)
	}
	return nil
}

func ensureLoaded() error {
	if cfg == nil || !cfg.IsBeenLoaded() {
		return loadConfig()
	}
	return nil
}

func PostgresCfg() (*PostgresConfig, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}

	postgresConfigJson, err := configuro.GetSection[postgresConfigJSON](cfg, "Postgres")
	if err != nil {
		return nil, fmt.Errorf("error al obtener la configuración de la base de datos: %w", err)
	}

	return &PostgresConfig{postgresConfig: &postgresConfig{
		connectionString: postgresConfigJson.ConnectionString,
		User:             postgresConfigJson.User,
		Password:         postgresConfigJson.Password,
	}}, nil
}

func KafkaCfg() (*KafkaConfig, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}

	kafkaConfigJson, err := configuro.GetSection[kafkaConfig](cfg, "Kafka")
	if err != nil {
		return nil, fmt.Errorf("error al obtener la configuración de Kafka: %w", err)
	}

	return &KafkaConfig{kafkaConfig: kafkaConfigJson}, nil
}

func ClickHouseCfg() (*ClickHouseConfig, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}

	clickhouseConfigJson, err := configuro.GetSection[clickhouseConfig](cfg, "ClickHouse")
	if err != nil {
		return nil, fmt.Errorf("error al obtener la configuración de ClickHouse: %w", err)
	}

	return &ClickHouseConfig{clickhouseConfig: clickhouseConfigJson}, nil
}

func ElasticCfg() (*ElasticConfig, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}

	elasticConfigJson, err := configuro.GetSection[elasticConfig](cfg, "Elastic")
	if err != nil {
		return nil, fmt.Errorf("error al obtener la configuración de Elasticsearch: %w", err)
	}

	return &ElasticConfig{elasticConfig: elasticConfigJson}, nil
}

func SyncCfg() (*SyncConfig, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}

	syncConfigJson, err := configuro.GetSection[syncConfig](cfg, "Sync")
	if err != nil {
		return nil, fmt.Errorf("error al obtener la configuración de sincronización: %w", err)
	}

	return &SyncConfig{syncConfig: syncConfigJson}, nil
}

func AuditCfg() (*AuditConfig, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}

	// La sección es opcional; sin ella aplican los defaults
	auditConfigJson, err := configuro.GetSection[auditConfig](cfg, "Audit")
	if err != nil {
		return &AuditConfig{auditConfig: &auditConfig{}}, nil
	}

	return &AuditConfig{auditConfig: auditConfigJson}, nil
}

func HealthCfg() (*HealthConfig, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}

	// La sección es opcional; sin ella aplican los defaults
	healthConfigJson, err := configuro.GetSection[healthConfig](cfg, "Health")
	if err != nil {
		return &HealthConfig{healthConfig: &healthConfig{}}, nil
	}

	return &HealthConfig{healthConfig: healthConfigJson}, nil
}

func ServerCfg() (*ServerConfig, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}

	serverConfigJson, err := configuro.GetSection[serverConfig](cfg, "Server")
	if err != nil {
		return nil, fmt.Errorf("error al obtener la configuración del servidor: %w", err)
	}

	return &ServerConfig{serverConfig: serverConfigJson}, nil
}

func LogCfg() (*scribe.ConfigLogger, error) {
	if err := ensureLoaded(); err != nil {
		return nil, err
	}

	logConfigJson, err := configuro.GetSection[scribe.ConfigLogger](cfg, "Log")
	if err != nil {
		return nil, fmt.Errorf("error al obtener la configuración de logs: %w", err)
	}
	return logConfigJson, nil
}
