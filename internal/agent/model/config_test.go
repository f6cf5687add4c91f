package model

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider("")
	require.NoError(t, err)
	assert.Equal(t, ProviderPrimary, p)

	p, err = ParseProvider(" LOCAL ")
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, p)

	_, err = ParseProvider("anthropic")
	assert.Error(t, err)
}

func TestModelConfigValidate(t *testing.T) {
	hot := float32(1.5)
	cold := float32(0)

	assert.NoError(t, ModelConfig{}.Validate())
	assert.NoError(t, ModelConfig{Provider: ProviderLocal, Temperature: &cold}.Validate())
	assert.Error(t, ModelConfig{Temperature: &hot}.Validate())
	assert.Error(t, ModelConfig{Provider: "other"}.Validate())
}

func TestModelConfigWithDefault(t *testing.T) {
	assert.Equal(t, ProviderLocal, ModelConfig{}.WithDefault(ProviderLocal).Provider)
	assert.Equal(t, ProviderPrimary, ModelConfig{Provider: "PRIMARY"}.WithDefault(ProviderLocal).Provider)
}

func TestConversationStateAppendDoesNotMutate(t *testing.T) {
	base := &ConversationState{ThreadID: "t1", Messages: []*schema.Message{schema.UserMessage("hi")}}
	next := base.Append(schema.AssistantMessage("hello", nil))

	assert.Len(t, base.Messages, 1)
	require.Len(t, next.Messages, 2)
	assert.Same(t, base.Messages[0], next.Messages[0])
	assert.Equal(t, "hello", next.Last().Content)
	assert.Nil(t, (&ConversationState{}).Last())
}

func TestLocalModelConfigTemperatureFromEnv(t *testing.T) {
	var cfg LocalModelConfig
	require.NoError(t, envconfig.Process("", &cfg))
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.7, *cfg.Temperature, 1e-6)

	t.Setenv("LOCAL_TEMPERATURE", "0")
	cfg = LocalModelConfig{}
	require.NoError(t, envconfig.Process("", &cfg))
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, float32(0), *cfg.Temperature)
}
