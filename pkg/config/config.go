package config

import (
	"log"
	"strings"
	"time"

	"github.com/echoline-ai/echoline/pkg/logger"
	"github.com/echoline-ai/echoline/pkg/utils"
)

// TwilioConfig holds telephony gateway credentials.
type TwilioConfig struct {
	AccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	PhoneNumber string `env:"TWILIO_PHONE_NUMBER"`
}

// SpeechConfig holds the transcription/synthesis service settings.
type SpeechConfig struct {
	APIKey  string `env:"SPEECH_API_KEY"`
	BaseURL string `env:"SPEECH_BASE_URL"`
}

// LLMConfig holds the model fallback chain settings.
type LLMConfig struct {
	APIKey         string        `env:"LLM_API_KEY"`
	BaseURL        string        `env:"LLM_BASE_URL"`
	Models         []string      `env:"LLM_MODELS"` // comma separated, best first
	MaxTokens      int           `env:"LLM_MAX_TOKENS"`
	AttemptTimeout time.Duration `env:"LLM_ATTEMPT_TIMEOUT"`
}

// SessionConfig holds registry retention settings.
type SessionConfig struct {
	MaxTurns     int           `env:"SESSION_MAX_TURNS"`
	TestMaxTurns int           `env:"SESSION_TEST_MAX_TURNS"`
	MaxAge       time.Duration `env:"SESSION_MAX_AGE"`
	GraceWindow  time.Duration `env:"SESSION_GRACE_WINDOW"`
}

// Config is the process-wide configuration loaded once at startup.
type Config struct {
	Addr           string `env:"ADDR"`
	Mode           string `env:"MODE"`
	APIPrefix      string `env:"API_PREFIX"`
	APISecretKey   string `env:"API_SECRET_KEY"`
	WebhookBaseURL string `env:"WEBHOOK_BASE_URL"`
	WebhookSecret  string `env:"WEBHOOK_SECRET"`

	Log     logger.LogConfig
	Twilio  TwilioConfig
	Speech  SpeechConfig
	LLM     LLMConfig
	Session SessionConfig
}

var GlobalConfig *Config

// Load reads the .env file for the current APP_ENV (missing files are not an
// error) and populates GlobalConfig. Every field has a default so the server
// starts without any environment at all; telephony and LLM features simply
// stay disabled until their credentials are provided.
func Load() error {
	env := utils.GetEnv("APP_ENV")
	if err := utils.LoadEnv(env); err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	GlobalConfig = &Config{
		Addr:           getStringOrDefault("ADDR", ":9000"),
		Mode:           getStringOrDefault("MODE", "development"),
		APIPrefix:      getStringOrDefault("API_PREFIX", "/api"),
		APISecretKey:   getStringOrDefault("API_SECRET_KEY", ""),
		WebhookBaseURL: getStringOrDefault("WEBHOOK_BASE_URL", "http://localhost:9000"),
		WebhookSecret:  getStringOrDefault("WEBHOOK_SECRET", ""),
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
		},
		Twilio: TwilioConfig{
			AccountSID:  getStringOrDefault("TWILIO_ACCOUNT_SID", ""),
			AuthToken:   getStringOrDefault("TWILIO_AUTH_TOKEN", ""),
			PhoneNumber: getStringOrDefault("TWILIO_PHONE_NUMBER", ""),
		},
		Speech: SpeechConfig{
			APIKey:  getStringOrDefault("SPEECH_API_KEY", ""),
			BaseURL: getStringOrDefault("SPEECH_BASE_URL", "https://api.assemblyai.com/v2"),
		},
		LLM: LLMConfig{
			APIKey:         getStringOrDefault("LLM_API_KEY", ""),
			BaseURL:        getStringOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
			Models:         splitModels(getStringOrDefault("LLM_MODELS", "gpt-4o,gpt-4o-mini,gpt-3.5-turbo")),
			MaxTokens:      getIntOrDefault("LLM_MAX_TOKENS", 500),
			AttemptTimeout: getDurationOrDefault("LLM_ATTEMPT_TIMEOUT", 20*time.Second),
		},
		Session: SessionConfig{
			MaxTurns:     getIntOrDefault("SESSION_MAX_TURNS", 50),
			TestMaxTurns: getIntOrDefault("SESSION_TEST_MAX_TURNS", 20),
			MaxAge:       getDurationOrDefault("SESSION_MAX_AGE", 24*time.Hour),
			GraceWindow:  getDurationOrDefault("SESSION_GRACE_WINDOW", 5*time.Minute),
		},
	}
	return nil
}

func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func splitModels(csv string) []string {
	var models []string
	for _, m := range strings.Split(csv, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}
