package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "", cfg.FallbackProvider)
	assert.Equal(t, 60*time.Second, cfg.GenerateTimeout)
	assert.Equal(t, 3, cfg.ClassifierFailureLimit)
	assert.Equal(t, time.Minute, cfg.ClassifierCooldown)
	assert.Equal(t, "cases/dyspnea.json", cfg.CaseFile)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_PROVIDER", "OpenAI ")
	t.Setenv("LLM_GENERATE_TIMEOUT", "15s")
	t.Setenv("CLASSIFIER_FAILURE_LIMIT", "5")
	t.Setenv("CASE_FILE", "testdata/case.json")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "openai", cfg.Provider, "provider should be lowercased and trimmed")
	assert.Equal(t, 15*time.Second, cfg.GenerateTimeout)
	assert.Equal(t, 5, cfg.ClassifierFailureLimit)
	assert.Equal(t, "testdata/case.json", cfg.CaseFile)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CLASSIFIER_FAILURE_LIMIT", "not-a-number")
	t.Setenv("LLM_GENERATE_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, 3, cfg.ClassifierFailureLimit)
	assert.Equal(t, 60*time.Second, cfg.GenerateTimeout)
}
