// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>, applies
// environment overrides and validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env", // tests in test/e2e
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			// Unset variables expand to "" so defaults and env fallbacks apply.
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets that are conventionally provided through
// well-known environment variables.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.APIs.GenAI.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY", "GENAI_API_KEY")
	setIfEmpty(&cfg.Auth.JWT.Secret, "ORCHESTRATOR_JWT_SECRET")
	setIfEmpty(&cfg.Orchestrator.APIToken, "ORCHESTRATOR_API_TOKEN")
	setIfEmpty(&cfg.Orchestrator.APIURL, "ORCHESTRATOR_API_URL")
	setIfEmpty(&cfg.Webhook.Secret, "GITHUB_WEBHOOK_SECRET")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Storage.MinIO.AccessKey, "MINIO_ACCESS_KEY")
	setIfEmpty(&cfg.Storage.MinIO.SecretKey, "MINIO_SECRET_KEY")
}

func setIfEmpty(dst *string, envKeys ...string) {
	if *dst != "" {
		return
	}
	for _, k := range envKeys {
		if val := os.Getenv(k); val != "" {
			*dst = val
			return
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "task-recipes"
	}

	s := &cfg.Servers
	defaultString(&s.Orchestrator, ":4200")
	defaultString(&s.Worker, ":8090")
	defaultString(&s.Signups, ":8000")
	defaultString(&s.Monitoring, ":5000")
	defaultString(&s.Jobs, ":8001")
	defaultString(&s.Quickstart, ":8002")
	defaultString(&s.Webhook, ":8003")
	defaultString(&s.Mail, ":8080")
	defaultString(&s.Onboarding, ":8081")

	o := &cfg.Orchestrator
	defaultString(&o.Broker, "asynq")
	defaultString(&o.RunStore, "redis")
	defaultString(&o.ResultStore, "redis")
	defaultString(&o.Queue, "default")
	if o.Concurrency == 0 {
		o.Concurrency = 10
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	defaultString(&cfg.Database.Postgres.SSLMode, "disable")
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	defaultString(&cfg.Database.Elasticsearch.Index, "repo-events")

	defaultString(&cfg.Storage.MinIO.Bucket, "task-results")
	defaultString(&cfg.Storage.MinIO.Prefix, "results")

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		cfg.Workers[key] = worker
	}

	m := &cfg.Integrations.Mail
	defaultString(&m.Provider, "http")
	defaultString(&m.BaseURL, "http://localhost:8080")
	if m.AcceptedStatus == 0 {
		m.AcceptedStatus = 666
	}
	if m.Timeout == 0 {
		m.Timeout = 10000
	}
	ob := &cfg.Integrations.Onboarding
	defaultString(&ob.BaseURL, "http://localhost:8081")
	if ob.AcceptedStatus == 0 {
		ob.AcceptedStatus = 666
	}
	if ob.Timeout == 0 {
		ob.Timeout = 10000
	}
	defaultString(&cfg.Integrations.AWS.Region, "us-east-1")

	defaultString(&cfg.APIs.GenAI.Model, "gemini-2.0-flash")
	if cfg.APIs.GenAI.Timeout == 0 {
		cfg.APIs.GenAI.Timeout = 60000
	}

	c := &cfg.Chaos
	if c.Runs == 0 {
		c.Runs = 100
	}
	if c.PollInterval == 0 {
		c.PollInterval = 1000
	}
	if c.MinPause == 0 {
		c.MinPause = 3000
	}
	if c.MaxPause == 0 {
		c.MaxPause = 10000
	}
	if c.RestartRate == 0 {
		c.RestartRate = 0.05
	}
	if c.KillRate == 0 {
		c.KillRate = 0.10
	}
	if c.CrashRate == 0 {
		c.CrashRate = 0.20
	}
	defaultString(&c.ServerPattern, "chaos-duck-prefect")
	defaultString(&c.WorkerPattern, "chaos-duck-tasks")
	if c.CrashExitCode == 0 {
		c.CrashExitCode = 42
	}
	if c.RestartTimeoutS == 0 {
		c.RestartTimeoutS = 1
	}

	if cfg.Auth.JWT.TokenTTL == 0 {
		cfg.Auth.JWT.TokenTTL = 24 * 60 * 60 * 1000
	}
	if cfg.Auth.JWT.Leeway == 0 {
		cfg.Auth.JWT.Leeway = 30000
	}
	defaultString(&cfg.Auth.JWT.Issuer, "task-recipes")

	defaultString(&cfg.Logging.Level, "info")
	defaultString(&cfg.Logging.Format, "json")
	defaultString(&cfg.Logging.Output, "stdout")

	defaultString(&cfg.Tracing.Exporter, "grpc")
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}
}

func defaultString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Orchestrator.Broker {
	case "asynq", "memory":
	case "zeebe":
		if cfg.Camunda.BrokerAddress == "" {
			return fmt.Errorf("camunda.broker_address is required for the zeebe broker")
		}
	default:
		return fmt.Errorf("orchestrator.broker %q is not supported", cfg.Orchestrator.Broker)
	}

	switch cfg.Orchestrator.RunStore {
	case "redis", "memory":
	case "postgres":
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	default:
		return fmt.Errorf("orchestrator.run_store %q is not supported", cfg.Orchestrator.RunStore)
	}

	switch cfg.Orchestrator.ResultStore {
	case "redis", "memory":
	case "minio":
		if cfg.Storage.MinIO.Endpoint == "" {
			return fmt.Errorf("storage.minio.endpoint is required")
		}
	default:
		return fmt.Errorf("orchestrator.result_store %q is not supported", cfg.Orchestrator.ResultStore)
	}

	if cfg.Chaos.MinPause > cfg.Chaos.MaxPause {
		return fmt.Errorf("chaos.min_pause must not exceed chaos.max_pause")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, taskKey string) WorkerConfig {
	if worker, exists := cfg.Workers[WorkerKey(taskKey)]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
	}
}

// IsWorkerEnabled checks if a specific task key is served
func IsWorkerEnabled(cfg *Config, taskKey string) bool {
	if worker, exists := cfg.Workers[WorkerKey(taskKey)]; exists {
		return worker.Enabled
	}
	return true
}

// WorkerKey maps a task key to its entry under workers. Viper splits keys on
// dots, so "signups.populate_workspace" is configured as
// "signups/populate_workspace".
func WorkerKey(taskKey string) string {
	return strings.ReplaceAll(taskKey, ".", "/")
}

// FailureRateOr returns the configured random failure rate for a task key, or def.
func (w WorkerConfig) FailureRateOr(def float64) float64 {
	if w.FailureRate == nil {
		return def
	}
	return *w.FailureRate
}
