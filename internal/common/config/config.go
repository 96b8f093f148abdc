// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Servers      ServersConfig           `mapstructure:"servers"`
	Orchestrator OrchestratorConfig      `mapstructure:"orchestrator"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Storage      StorageConfig           `mapstructure:"storage"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Auth         AuthConfig              `mapstructure:"auth"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	APIs         APIsConfig              `mapstructure:"apis"`
	Chaos        ChaosConfig             `mapstructure:"chaos"`
	Webhook      WebhookConfig           `mapstructure:"webhook"`
	Logging      LoggingConfig           `mapstructure:"logging"`
	Tracing      TracingConfig           `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServersConfig holds the listen address of every HTTP binary.
type ServersConfig struct {
	Orchestrator string `mapstructure:"orchestrator"`
	Worker       string `mapstructure:"worker"`
	Signups      string `mapstructure:"signups"`
	Monitoring   string `mapstructure:"monitoring"`
	Jobs         string `mapstructure:"jobs"`
	Quickstart   string `mapstructure:"quickstart"`
	Webhook      string `mapstructure:"webhook"`
	Mail         string `mapstructure:"mail"`
	Onboarding   string `mapstructure:"onboarding"`
}

// DefaultAPIURL is where the CLIs look for the orchestrator API when
// orchestrator.api_url is empty.
const DefaultAPIURL = "http://localhost:4200"

// RemoteURL returns APIURL or DefaultAPIURL.
func (o OrchestratorConfig) RemoteURL() string {
	if o.APIURL != "" {
		return o.APIURL
	}
	return DefaultAPIURL
}

// OrchestratorConfig selects the broker and stores backing task runs.
type OrchestratorConfig struct {
	// APIURL points clients at a remote orchestrator. Front-ends connect the
	// stack directly when it is empty.
	APIURL   string `mapstructure:"api_url"`
	APIToken string `mapstructure:"api_token"`

	Broker      string `mapstructure:"broker"`       // asynq | zeebe | memory
	RunStore    string `mapstructure:"run_store"`    // redis | postgres | memory
	ResultStore string `mapstructure:"result_store"` // redis | minio | memory

	Queue           string `mapstructure:"queue"`
	Concurrency     int    `mapstructure:"concurrency"`
	ResultRetention int    `mapstructure:"result_retention"` // milliseconds, 0 keeps results forever
	CatalogPath     string `mapstructure:"catalog_path"`
	ExitOnCrash     bool   `mapstructure:"exit_on_crash"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
	Index     string   `mapstructure:"index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig holds object storage settings for persisted results.
type StorageConfig struct {
	MinIO MinIOConfig `mapstructure:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// WorkerConfig holds the settings applied to one task key.
type WorkerConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	MaxJobsActive int      `mapstructure:"max_jobs_active"`
	Timeout       int      `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int      `mapstructure:"max_retries"` // 0 keeps the task default
	FailureRate   *float64 `mapstructure:"failure_rate"`
}

// AuthConfig holds the orchestrator API bearer token settings.
type AuthConfig struct {
	JWT struct {
		Secret   string `mapstructure:"secret"`
		Issuer   string `mapstructure:"issuer"`
		Leeway   int    `mapstructure:"leeway"`    // milliseconds
		TokenTTL int    `mapstructure:"token_ttl"` // milliseconds
	} `mapstructure:"jwt"`
}

// IntegrationConfig holds settings for the mail and onboarding services.
type IntegrationConfig struct {
	Mail struct {
		Provider       string `mapstructure:"provider"` // http | ses
		BaseURL        string `mapstructure:"base_url"`
		AcceptedStatus int    `mapstructure:"accepted_status"`
		Timeout        int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"mail"`

	Onboarding struct {
		BaseURL        string `mapstructure:"base_url"`
		AcceptedStatus int    `mapstructure:"accepted_status"`
		Timeout        int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"onboarding"`

	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	GenAI struct {
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"genai"`
}

// ChaosConfig drives the chaos-duck fault injection run.
type ChaosConfig struct {
	Runs            int     `mapstructure:"runs"`
	PollInterval    int     `mapstructure:"poll_interval"` // milliseconds
	MinPause        int     `mapstructure:"min_pause"`     // milliseconds
	MaxPause        int     `mapstructure:"max_pause"`     // milliseconds
	RestartRate     float64 `mapstructure:"restart_rate"`
	KillRate        float64 `mapstructure:"kill_rate"`
	CrashRate       float64 `mapstructure:"crash_rate"`
	ServerPattern   string  `mapstructure:"server_pattern"`
	WorkerPattern   string  `mapstructure:"worker_pattern"`
	CrashExitCode   int     `mapstructure:"crash_exit_code"`
	DisableHavoc    bool    `mapstructure:"disable_havoc"`
	RestartTimeoutS int     `mapstructure:"restart_timeout_s"`
}

// WebhookConfig holds the GitHub webhook receiver settings.
type WebhookConfig struct {
	Secret       string   `mapstructure:"secret"`
	ArchiveRepos []string `mapstructure:"archive_repos"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig selects the OTLP exporter.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"` // grpc | http
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}
