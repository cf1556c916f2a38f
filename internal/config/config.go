package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Port string

	WeatherAPIKey  string
	WeatherBaseURL string
	WeatherTimeout time.Duration

	NarrativeProvider string
	NarrativeAPIKey   string
	NarrativeBaseURL  string
	NarrativeModel    string
	NarrativeTimeout  time.Duration

	// Provider quota guard; 0 disables it.
	ProviderRPS   float64
	ProviderBurst int

	LogLevel  string
	LogFormat string

	OTLPEndpoint string
}

// Load reads configuration from the environment and, when CONFIG_FILE is
// set, from that YAML file. Environment variables win over the file.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("weather_base_url", "https://api.openweathermap.org")
	v.SetDefault("weather_timeout", "10s")
	v.SetDefault("narrative_provider", ProviderGemini)
	v.SetDefault("narrative_timeout", "60s")
	v.SetDefault("provider_rps", 1.0)
	v.SetDefault("provider_burst", 3)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	// Older deployments used the provider-specific names.
	_ = v.BindEnv("port", "PORT", "STORYTELLER_PORT")
	_ = v.BindEnv("weather_api_key", "WEATHER_API_KEY", "OPENWEATHER_API_KEY", "VITE_OPENWEATHERMAP_API_KEY")
	_ = v.BindEnv("narrative_api_key", "NARRATIVE_API_KEY", "GEMINI_API_KEY", "VITE_GEMINI_API_KEY")
	_ = v.BindEnv("otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	for _, key := range []string{
		"weather_base_url", "weather_timeout",
		"narrative_provider", "narrative_base_url", "narrative_model", "narrative_timeout",
		"provider_rps", "provider_burst", "log_level", "log_format",
	} {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}

	_ = v.BindEnv("config_file", "CONFIG_FILE")
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Config{
		Port:              v.GetString("port"),
		WeatherAPIKey:     v.GetString("weather_api_key"),
		WeatherBaseURL:    v.GetString("weather_base_url"),
		WeatherTimeout:    v.GetDuration("weather_timeout"),
		NarrativeProvider: strings.ToLower(strings.TrimSpace(v.GetString("narrative_provider"))),
		NarrativeAPIKey:   v.GetString("narrative_api_key"),
		NarrativeBaseURL:  v.GetString("narrative_base_url"),
		NarrativeModel:    v.GetString("narrative_model"),
		NarrativeTimeout:  v.GetDuration("narrative_timeout"),
		ProviderRPS:       v.GetFloat64("provider_rps"),
		ProviderBurst:     v.GetInt("provider_burst"),
		LogLevel:          v.GetString("log_level"),
		LogFormat:         v.GetString("log_format"),
		OTLPEndpoint:      v.GetString("otlp_endpoint"),
	}

	switch cfg.NarrativeProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return Config{}, fmt.Errorf("unknown narrative provider %q (want %s or %s)", cfg.NarrativeProvider, ProviderGemini, ProviderOpenAI)
	}

	return cfg, nil
}
