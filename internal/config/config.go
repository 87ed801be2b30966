package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Case definition consumed at startup. JSON or YAML.
	CaseFile string

	// Text generation backends. Provider selects the primary backend;
	// FallbackProvider, when set, is tried after a primary failure.
	Provider         string
	FallbackProvider string
	GenerateTimeout  time.Duration

	OllamaBaseURL string
	OllamaModel   string

	OpenAIAPIKey string
	OpenAIModel  string

	GeminiAPIKey string
	GeminiModel  string

	BedrockModelID string
	AWSRegion      string

	// Intent classification resilience.
	ClassifierFailureLimit int
	ClassifierCooldown     time.Duration

	// Optional YAML file overriding bias-detection thresholds.
	BiasTuningFile string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CaseFile: getEnv("CASE_FILE", "cases/dyspnea.json"),

		Provider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "ollama"))),
		FallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		GenerateTimeout:  getEnvAsDuration("LLM_GENERATE_TIMEOUT", 60*time.Second),

		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "gemma3:4b-it-q4_K_M"),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),

		ClassifierFailureLimit: getEnvAsInt("CLASSIFIER_FAILURE_LIMIT", 3),
		ClassifierCooldown:     getEnvAsDuration("CLASSIFIER_COOLDOWN", time.Minute),

		BiasTuningFile: getEnv("BIAS_TUNING_FILE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
