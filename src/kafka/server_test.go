package kafka

import (
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configValue(t *testing.T, configMap *kafka.ConfigMap, key string) kafka.ConfigValue {
	t.Helper()

	value, err := configMap.Get(key, nil)
	require.NoError(t, err)
	return value
}

func TestSecurityConfigBuildsSaslKeys(t *testing.T) {
	security := NewSecurityConfig().
		WithProtocol("SASL_SSL").
		WithSASL("SCRAM-SHA-512", "sync-pipeline", "secreto")

	configMap := kafka.ConfigMap{}
	security.Build(&configMap)

	assert.Equal(t, kafka.ConfigValue("SASL_SSL"), configValue(t, &configMap, "security.protocol"))
	assert.Equal(t, kafka.ConfigValue("SCRAM-SHA-512"), configValue(t, &configMap, "sasl.mechanisms"))
	assert.Equal(t, kafka.ConfigValue("sync-pipeline"), configValue(t, &configMap, "sasl.username"))
	assert.Equal(t, kafka.ConfigValue("secreto"), configValue(t, &configMap, "sasl.password"))
}

func TestSecurityConfigIgnoresIncompleteSasl(t *testing.T) {
	security := NewSecurityConfig().WithSASL("PLAIN", "", "")

	configMap := kafka.ConfigMap{}
	security.Build(&configMap)

	assert.Empty(t, configMap)
}

func TestSecurityConfigEmptyBuildsNothing(t *testing.T) {
	security := NewSecurityConfig().
		WithProtocol("").
		WithSASL("", "", "").
		WithSSL("", "", "", "")

	configMap := kafka.ConfigMap{}
	security.Build(&configMap)

	assert.Empty(t, configMap)
}
