package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration. It is constructed once by
// Load and passed explicitly into component constructors.
type Config struct {
	App    App    `mapstructure:"app"`
	LLM    LLM    `mapstructure:"llm"`
	Search Search `mapstructure:"search"`
	Fetch  Fetch  `mapstructure:"fetch"`
	Enrich Enrich `mapstructure:"enrich"`
	Digest Digest `mapstructure:"digest"`
}

// App holds general application settings.
type App struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
}

// LLM holds the language-model service settings.
type LLM struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int32  `mapstructure:"max_tokens"`
}

// Search holds the discovery search service settings.
type Search struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// Fetch holds content fetcher settings.
type Fetch struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	BatchSize int           `mapstructure:"batch_size"`
}

// Enrich holds enrichment engine settings.
type Enrich struct {
	BatchSize       int `mapstructure:"batch_size"`
	MaxContentWords int `mapstructure:"max_content_words"`
}

// Digest holds digest synthesizer settings.
type Digest struct {
	MaxArticles int    `mapstructure:"max_articles"`
	OutputDir   string `mapstructure:"output_dir"`
}

// Load reads configuration from an optional YAML file, .env, and
// CURATOR_* environment variables, layered over defaults.
func Load(cfgFile string) (*Config, error) {
	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("curator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// API keys come from the conventional environment variables when
	// not set in the config file.
	bindSecret(v, "llm.api_key", "GEMINI_API_KEY")
	bindSecret(v, "search.api_key", "PERPLEXITY_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.data_dir", ".curator")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("llm.model", "gemini-flash-lite-latest")
	v.SetDefault("llm.max_tokens", 8192)

	v.SetDefault("search.base_url", "https://api.perplexity.ai")
	v.SetDefault("search.model", "sonar")

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; CuratorBot/1.0)")
	v.SetDefault("fetch.batch_size", 20)

	v.SetDefault("enrich.batch_size", 10)
	v.SetDefault("enrich.max_content_words", 12000)

	v.SetDefault("digest.max_articles", 50)
	v.SetDefault("digest.output_dir", "digests")
}

func bindSecret(v *viper.Viper, key, envVar string) {
	if v.GetString(key) == "" {
		if value := os.Getenv(envVar); value != "" {
			v.Set(key, value)
		}
	}
}
