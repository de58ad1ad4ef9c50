package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Naver     NaverConfig     `mapstructure:"naver"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	LogLevel  string          `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// NaverConfig holds the news search API configuration
type NaverConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Queries      []string      `mapstructure:"queries"`
	PageSize     int           `mapstructure:"page_size"`
	MaxPages     int           `mapstructure:"max_pages"`
	RetryCount   int           `mapstructure:"retry_count"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig holds the summarization model configuration. BaseURL may
// point at any OpenAI-compatible endpoint (LM Studio, Ollama /v1, etc.).
type OpenAIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Prompt          string        `mapstructure:"prompt"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxSummaryChars int           `mapstructure:"max_summary_chars"`
}

// SMTPConfig holds the outbound mail configuration
type SMTPConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

// PipelineConfig holds tuning knobs for the daily pipeline
type PipelineConfig struct {
	DedupWindowDays      int           `mapstructure:"dedup_window_days"`
	BatchLimit           int           `mapstructure:"batch_limit"`
	MaxSummarizeRetries  int           `mapstructure:"max_summarize_retries"`
	MaxSendRetries       int           `mapstructure:"max_send_retries"`
	SendBackoff          time.Duration `mapstructure:"send_backoff"`
	SummarizeConcurrency int           `mapstructure:"summarize_concurrency"`
	SendConcurrency      int           `mapstructure:"send_concurrency"`
	StaleAfter           time.Duration `mapstructure:"stale_after"`
	ExtractContent       bool          `mapstructure:"extract_content"`
	RetryFailedArticles  bool          `mapstructure:"retry_failed_articles"`
}

// SchedulerConfig holds the daily trigger time
type SchedulerConfig struct {
	Hour   int `mapstructure:"hour"`
	Minute int `mapstructure:"minute"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("naver.base_url", "https://openapi.naver.com/v1/search/news.json")
	viper.SetDefault("naver.queries", []string{"digital healthcare", "diagnostic kit", "in vitro diagnostics"})
	viper.SetDefault("naver.page_size", 30)
	viper.SetDefault("naver.max_pages", 3)
	viper.SetDefault("naver.retry_count", 3)
	viper.SetDefault("naver.timeout", "30s")

	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.prompt", "Summarize the following news article in 3-4 concise sentences, keeping key figures and data.")
	viper.SetDefault("openai.timeout", "2m")
	viper.SetDefault("openai.max_summary_chars", 600)

	viper.SetDefault("smtp.host", "smtp.gmail.com")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.from_name", "HealthPulse")

	viper.SetDefault("pipeline.dedup_window_days", 7)
	viper.SetDefault("pipeline.batch_limit", 100)
	viper.SetDefault("pipeline.max_summarize_retries", 3)
	viper.SetDefault("pipeline.max_send_retries", 3)
	viper.SetDefault("pipeline.send_backoff", "2s")
	viper.SetDefault("pipeline.summarize_concurrency", 4)
	viper.SetDefault("pipeline.send_concurrency", 4)
	viper.SetDefault("pipeline.stale_after", "2h")
	viper.SetDefault("pipeline.extract_content", false)
	viper.SetDefault("pipeline.retry_failed_articles", false)

	viper.SetDefault("scheduler.hour", 8)
	viper.SetDefault("scheduler.minute", 0)

	viper.SetDefault("log_level", "info")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	viper.BindEnv("naver.base_url", "NAVER_BASE_URL")
	viper.BindEnv("naver.client_id", "NAVER_CLIENT_ID")
	viper.BindEnv("naver.client_secret", "NAVER_CLIENT_SECRET")

	viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("openai.model", "OPENAI_MODEL")

	viper.BindEnv("smtp.host", "SMTP_HOST")
	viper.BindEnv("smtp.port", "SMTP_PORT")
	viper.BindEnv("smtp.username", "SMTP_USERNAME")
	viper.BindEnv("smtp.password", "SMTP_PASSWORD")
	viper.BindEnv("smtp.from_address", "SMTP_FROM_ADDRESS")
	viper.BindEnv("smtp.from_name", "SMTP_FROM_NAME")

	viper.BindEnv("scheduler.hour", "SCHEDULE_HOUR")
	viper.BindEnv("scheduler.minute", "SCHEDULE_MINUTE")

	viper.BindEnv("log_level", "LOG_LEVEL")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if c.Naver.ClientID == "" || c.Naver.ClientSecret == "" {
		return fmt.Errorf("naver client_id and client_secret are required")
	}

	if len(c.Naver.Queries) == 0 {
		return fmt.Errorf("at least one search query is required")
	}

	if c.SMTP.FromAddress == "" {
		return fmt.Errorf("smtp from_address is required")
	}

	if c.Scheduler.Hour < 0 || c.Scheduler.Hour > 23 || c.Scheduler.Minute < 0 || c.Scheduler.Minute > 59 {
		return fmt.Errorf("scheduler time must be a valid hour and minute")
	}

	if c.Pipeline.SummarizeConcurrency <= 0 || c.Pipeline.SendConcurrency <= 0 {
		return fmt.Errorf("pipeline concurrency limits must be greater than 0")
	}

	return nil
}
