package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
	BackendHTTP   = "http"

	DefaultModel = "gemini-2.5-pro"
)

// Config represents the complete service configuration
type Config struct {
	Backend         string          `yaml:"backend"`
	CredentialsFile string          `yaml:"credentials_file"`
	Gemini          GeminiConfig    `yaml:"gemini"`
	Vertex          VertexConfig    `yaml:"vertex"`
	Staging         StagingConfig   `yaml:"staging"`
	RemoteAPI       RemoteAPIConfig `yaml:"remote_api"`
	Retry           RetryConfig     `yaml:"retry"`
	Storage         StorageConfig   `yaml:"storage"`
	Audit           AuditConfig     `yaml:"audit"`
	NATS            NATSConfig      `yaml:"nats"`
	HTTP            HTTPConfig      `yaml:"http"`
	Logging         LoggingConfig   `yaml:"logging"`
}

// GeminiConfig configures the Gemini Developer API backend
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// VertexConfig configures the Vertex AI backend
type VertexConfig struct {
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`
}

// StagingConfig is the S3-compatible bucket Vertex reads audio from
type StagingConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// RemoteAPIConfig configures the generic REST backend
type RemoteAPIConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// RetryConfig bounds remote calls
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	BackoffUnit     time.Duration `yaml:"backoff_unit"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollDuration time.Duration `yaml:"max_poll_duration"` // 0 polls until the job context ends
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
	DeleteRemote    bool          `yaml:"delete_remote_file"`
}

// StorageConfig holds local output locations
type StorageConfig struct {
	LogDir     string `yaml:"log_dir"`
	LogFile    string `yaml:"log_file"`
	MinutesDir string `yaml:"minutes_dir"`
	StagingDir string `yaml:"staging_dir"`
}

// AuditConfig enables the optional Postgres copy of the audit log
type AuditConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type NATSConfig struct {
	URL            string `yaml:"url"`
	ProcessSubject string `yaml:"process_subject"`
	ProcessQueue   string `yaml:"process_queue"`
	ResultSubject  string `yaml:"result_subject"`
	// JobTimeout bounds one job handled from the bus.
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// HTTPConfig configures the API server. A non-empty JWTSecret enables
// bearer-token auth on the API routes.
type HTTPConfig struct {
	Port      int           `yaml:"port"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Backend:         BackendGemini,
		CredentialsFile: "credentials.json",
		Gemini:          GeminiConfig{Model: DefaultModel},
		Vertex:          VertexConfig{Location: "asia-northeast1"},
		Staging:         StagingConfig{Endpoint: "storage.googleapis.com", Prefix: "minutes-audio", UseSSL: true},
		Retry: RetryConfig{
			MaxAttempts:     3,
			BackoffUnit:     time.Second,
			PollInterval:    2 * time.Second,
			GenerateTimeout: 600 * time.Second,
		},
		Storage: StorageConfig{
			LogDir:     "logs",
			LogFile:    filepath.Join("logs", "usage_log.csv"),
			MinutesDir: filepath.Join("logs", "minutes"),
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			ProcessSubject: "minutes.requests",
			ProcessQueue:   "minutes-workers",
			ResultSubject:  "minutes.done",
			JobTimeout:     time.Hour,
		},
		HTTP:    HTTPConfig{Port: 8080, TokenTTL: 24 * time.Hour},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path when path is not empty, applies
// environment overrides and fills missing credentials from the credentials
// file. It does not validate: callers may still prompt for credentials.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	creds, err := LoadCredentials(cfg.CredentialsFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg.ApplyCredentials(creds)
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Backend = strings.ToLower(getenv("MINUTES_BACKEND", c.Backend))
	c.CredentialsFile = getenv("CREDENTIALS_FILE", c.CredentialsFile)
	c.Gemini.APIKey = getenv("GOOGLE_API_KEY", c.Gemini.APIKey)
	c.Gemini.Model = getenv("GEMINI_MODEL", c.Gemini.Model)
	c.Vertex.ProjectID = getenv("VERTEX_PROJECT_ID", c.Vertex.ProjectID)
	c.Vertex.Location = getenv("VERTEX_LOCATION", c.Vertex.Location)
	c.Staging.Endpoint = getenv("STAGING_ENDPOINT", c.Staging.Endpoint)
	c.Staging.AccessKey = getenv("STAGING_ACCESS_KEY", c.Staging.AccessKey)
	c.Staging.SecretKey = getenv("STAGING_SECRET_KEY", c.Staging.SecretKey)
	c.Staging.Bucket = getenv("STAGING_BUCKET", c.Staging.Bucket)
	c.Staging.Prefix = getenv("STAGING_PREFIX", c.Staging.Prefix)
	c.Staging.UseSSL = getenvBool("STAGING_USE_SSL", c.Staging.UseSSL)
	c.RemoteAPI.URL = getenv("REMOTE_API_URL", c.RemoteAPI.URL)
	c.RemoteAPI.Token = getenv("REMOTE_API_TOKEN", c.RemoteAPI.Token)
	c.Retry.DeleteRemote = getenvBool("DELETE_REMOTE_FILE", c.Retry.DeleteRemote)
	c.Audit.DatabaseURL = getenv("AUDIT_DATABASE_URL", c.Audit.DatabaseURL)
	c.NATS.URL = getenv("NATS_URL", c.NATS.URL)
	c.NATS.ProcessSubject = getenv("PROCESS_SUBJECT", c.NATS.ProcessSubject)
	c.NATS.ProcessQueue = getenv("PROCESS_QUEUE", c.NATS.ProcessQueue)
	c.NATS.ResultSubject = getenv("RESULT_SUBJECT", c.NATS.ResultSubject)
	c.HTTP.JWTSecret = getenv("API_JWT_SECRET", c.HTTP.JWTSecret)
	c.Logging.Level = getenv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getenv("LOG_FORMAT", c.Logging.Format)

	if dir := os.Getenv("LOG_DIR"); dir != "" {
		c.Storage.LogDir = dir
		c.Storage.LogFile = filepath.Join(dir, "usage_log.csv")
		c.Storage.MinutesDir = filepath.Join(dir, "minutes")
	}
	c.Storage.LogFile = getenv("LOG_FILE", c.Storage.LogFile)
	c.Storage.MinutesDir = getenv("MINUTES_DIR", c.Storage.MinutesDir)
	c.Storage.StagingDir = getenv("STAGING_DIR", c.Storage.StagingDir)

	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		n, err := parsePositiveInt(v, "MAX_ATTEMPTS")
		if err != nil {
			return err
		}
		c.Retry.MaxAttempts = n
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		n, err := parsePositiveInt(v, "HTTP_PORT")
		if err != nil {
			return err
		}
		c.HTTP.Port = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"BACKOFF_UNIT", &c.Retry.BackoffUnit},
		{"POLL_INTERVAL", &c.Retry.PollInterval},
		{"MAX_POLL_DURATION", &c.Retry.MaxPollDuration},
		{"GENERATE_TIMEOUT", &c.Retry.GenerateTimeout},
		{"JOB_TIMEOUT", &c.NATS.JobTimeout},
		{"API_TOKEN_TTL", &c.HTTP.TokenTTL},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Validate reports settings that would make every job fail.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini backend requires GOOGLE_API_KEY or google_api_key in %s", c.CredentialsFile)
		}
	case BackendVertex:
		if c.Vertex.ProjectID == "" || c.Vertex.Location == "" {
			return fmt.Errorf("vertex backend requires a project id and location")
		}
		if c.Staging.Bucket == "" || c.Staging.Endpoint == "" {
			return fmt.Errorf("vertex backend requires a staging bucket and endpoint")
		}
	case BackendHTTP:
		if c.RemoteAPI.URL == "" || c.RemoteAPI.Token == "" {
			return fmt.Errorf("http backend requires REMOTE_API_URL and REMOTE_API_TOKEN")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend, BackendGemini, BackendVertex, BackendHTTP)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffUnit <= 0 || c.Retry.PollInterval <= 0 || c.Retry.GenerateTimeout <= 0 {
		return fmt.Errorf("backoff_unit, poll_interval and generate_timeout must be positive")
	}
	if c.NATS.JobTimeout <= 0 {
		return fmt.Errorf("job_timeout must be positive")
	}
	if c.Retry.MaxPollDuration < 0 {
		return fmt.Errorf("max_poll_duration cannot be negative")
	}
	if c.Storage.LogFile == "" || c.Storage.MinutesDir == "" {
		return fmt.Errorf("log_file and minutes_dir cannot be empty")
	}
	return nil
}

// MissingCredentials names the credential values the selected backend still
// needs, using the credentials file keys.
func (c *Config) MissingCredentials() []string {
	var missing []string
	switch c.Backend {
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			missing = append(missing, "google_api_key")
		}
	case BackendVertex:
		if c.Vertex.ProjectID == "" {
			missing = append(missing, "project_id")
		}
		if c.Vertex.Location == "" {
			missing = append(missing, "location")
		}
	}
	return missing
}

// MaskKey hides all but the first and last four characters of key.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvBool(key string, defaultValue bool) bool {
	val := getenv(key, "")
	if val == "" {
		return defaultValue
	}
	return val == "true"
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}
