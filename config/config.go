package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode     string `mapstructure:"mode"`
	Dotenv   string `mapstructure:"dotenv"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Enabled  bool   `mapstructure:"enabled"`
			Host     string `mapstructure:"host"`
			Password string `mapstructure:"password"`
			Port     string `mapstructure:"port"`
			Username string `mapstructure:"username"`
			DB       string `mapstructure:"db"`
			SSLMODE  string `mapstructure:"SSLMODE"`
		} `mapstructure:"postgres"`
		Redis struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort       string        `mapstructure:"HTTPPort"`
		Timeout        time.Duration `mapstructure:"HTTPTimeout"`
		RateLimit      int           `mapstructure:"rateLimit"`
		AllowedOrigins []string      `mapstructure:"allowedOrigins"`
	} `mapstructure:"server"`
	Places struct {
		Provider                string        `mapstructure:"provider"`
		BaseURL                 string        `mapstructure:"baseURL"`
		APIKey                  string        `mapstructure:"apiKey"`
		PageSize                int           `mapstructure:"pageSize"`
		RequestsPerSecond       float64       `mapstructure:"requestsPerSecond"`
		Burst                   int           `mapstructure:"burst"`
		BreakerFailureThreshold uint32        `mapstructure:"breakerFailureThreshold"`
		BreakerTimeout          time.Duration `mapstructure:"breakerTimeout"`
	} `mapstructure:"places"`
	Ranking struct {
		Provider      string  `mapstructure:"provider"`
		Model         string  `mapstructure:"model"`
		Temperature   float32 `mapstructure:"temperature"`
		GeminiAPIKey  string  `mapstructure:"geminiAPIKey"`
		OpenAIAPIKey  string  `mapstructure:"openaiAPIKey"`
		OpenAIBaseURL string  `mapstructure:"openaiBaseURL"`
	} `mapstructure:"ranking"`
	Recommendations struct {
		OverallDeadline  time.Duration `mapstructure:"overallDeadline"`
		PerQueryTimeout  time.Duration `mapstructure:"perQueryTimeout"`
		RankingTimeout   time.Duration `mapstructure:"rankingTimeout"`
		ConcurrencyLimit int64         `mapstructure:"concurrencyLimit"`
		MaxVisitedPlaces int           `mapstructure:"maxVisitedPlaces"`
		CatalogPath      string        `mapstructure:"catalogPath"`
	} `mapstructure:"recommendations"`
	Cache struct {
		Backend         string        `mapstructure:"backend"`
		TTL             time.Duration `mapstructure:"ttl"`
		DegradedTTL     time.Duration `mapstructure:"degradedTTL"`
		CleanupInterval time.Duration `mapstructure:"cleanupInterval"`
	} `mapstructure:"cache"`
}

// secrets are never read from the config file.
var secretEnv = map[string]string{
	"places.apiKey":                  "KAKAO_REST_API_KEY",
	"ranking.geminiAPIKey":           "GOOGLE_GEMINI_API_KEY",
	"ranking.openaiAPIKey":           "OPENAI_API_KEY",
	"repositories.redis.password":    "REDIS_PASSWORD",
	"repositories.postgres.password": "POSTGRES_PASSWORD",
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range secretEnv {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}
