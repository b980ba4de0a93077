package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Security   SecurityConfig
	RateLimit  RateLimitConfig
	Gate       GateConfig
	Health     HealthConfig
	Alerts     AlertsConfig
	Target     TargetConfig
	Evidence   EvidenceConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NATS       NATSConfig
	S3         S3Config
	Dynamo     DynamoConfig
	CloudWatch CloudWatchConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type SecurityConfig struct {
	AllowedOrigins []string
	AuthEnabled    bool
	AuthToken      string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// GateConfig holds the deployment approval policy.
type GateConfig struct {
	EvidenceThreshold         float64
	FunctionalityThreshold    float64
	HealthThreshold           float64
	RequireAllGatesPassing    bool
	BlockOnCriticalFailures   bool
	EvidenceValidationEnabled bool
	ValidationTimeout         time.Duration
	HealthWait                time.Duration
	AttemptHistorySize        int
}

type HealthConfig struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
	HistorySize  int
	// Thresholds consumed by the concrete probes.
	APILatencyMs      float64
	ErrorRatePercent  float64
	CPUPercent        float64
	MemoryPercent     float64
	DOMMaxElements    float64
	ConsoleErrorLimit float64
	NetworkAddress    string
}

type AlertsConfig struct {
	RulesFile   string
	HistorySize int
	// Retention - сколько хранить алерты в Postgres, 0 - бессрочно
	Retention         time.Duration
	RetentionInterval time.Duration
}

// TargetConfig describes the application under test.
type TargetConfig struct {
	BaseURL           string
	APIHealthPath     string
	NavigationPaths   []string
	JourneyPaths      []string
	GenerationPath    string
	FormPath          string
	ClientErrorsPath  string
	ProbeTimeout      time.Duration
	PerformanceBudget time.Duration
}

type EvidenceConfig struct {
	Dir               string
	CollectionTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	TTL          time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type NATSConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

type DynamoConfig struct {
	Enabled         bool
	TableAttempts   string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	StrongReads     bool
	Retention       time.Duration
}

type CloudWatchConfig struct {
	MetricsEnabled    bool
	LogsEnabled       bool
	Region            string
	Endpoint          string
	AccessKeyID       string
	SecretAccessKey   string
	MetricsNamespace  string
	MetricsDimensions map[string]string
	MetricsBufferSize int
	FlushInterval     time.Duration
	LogGroupName      string
	LogStreamName     string
	LogsBufferSize    int
}

const writeTimeoutMargin = 15 * time.Second

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	p := &parser{}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    75 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
		},
		RateLimit: RateLimitConfig{
			RPS:   p.float("RATE_LIMIT_RPS", "20"),
			Burst: p.int("RATE_LIMIT_BURST", "40"),
		},
		Gate: GateConfig{
			EvidenceThreshold:         p.float("GATE_EVIDENCE_THRESHOLD", "85"),
			FunctionalityThreshold:    p.float("GATE_FUNCTIONALITY_THRESHOLD", "95"),
			HealthThreshold:           p.float("GATE_HEALTH_THRESHOLD", "80"),
			RequireAllGatesPassing:    getEnvBool("GATE_REQUIRE_ALL_PASSING", true),
			BlockOnCriticalFailures:   getEnvBool("GATE_BLOCK_ON_CRITICAL", true),
			EvidenceValidationEnabled: getEnvBool("GATE_EVIDENCE_ENABLED", true),
			ValidationTimeout:         p.duration("GATE_VALIDATION_TIMEOUT", "60s"),
			HealthWait:                p.duration("GATE_HEALTH_WAIT", "3s"),
			AttemptHistorySize:        p.int("GATE_ATTEMPT_HISTORY_SIZE", "50"),
		},
		Health: HealthConfig{
			Interval:          p.duration("HEALTH_INTERVAL", "10s"),
			ProbeTimeout:      p.duration("HEALTH_PROBE_TIMEOUT", "10s"),
			HistorySize:       p.int("HEALTH_HISTORY_SIZE", "100"),
			APILatencyMs:      p.float("HEALTH_API_LATENCY_MS", "1000"),
			ErrorRatePercent:  p.float("HEALTH_ERROR_RATE_PERCENT", "5"),
			CPUPercent:        p.float("HEALTH_CPU_PERCENT", "90"),
			MemoryPercent:     p.float("HEALTH_MEMORY_PERCENT", "90"),
			DOMMaxElements:    p.float("HEALTH_DOM_MAX_ELEMENTS", "3000"),
			ConsoleErrorLimit: p.float("HEALTH_CONSOLE_ERROR_LIMIT", "0"),
			NetworkAddress:    getEnv("HEALTH_NETWORK_ADDRESS", ""),
		},
		Alerts: AlertsConfig{
			RulesFile:         getEnv("ALERT_RULES_FILE", ""),
			HistorySize:       p.int("ALERT_HISTORY_SIZE", "1000"),
			Retention:         p.duration("ALERT_RETENTION", "720h"),
			RetentionInterval: p.duration("ALERT_RETENTION_INTERVAL", "1h"),
		},
		Target: TargetConfig{
			BaseURL:           strings.TrimRight(getEnv("TARGET_BASE_URL", "http://localhost:3000"), "/"),
			APIHealthPath:     getEnv("TARGET_API_HEALTH_PATH", "/api/health"),
			NavigationPaths:   splitCSV(getEnv("TARGET_NAVIGATION_PATHS", "/")),
			JourneyPaths:      splitCSV(getEnv("TARGET_JOURNEY_PATHS", "/")),
			GenerationPath:    getEnv("TARGET_GENERATION_PATH", "/api/generate"),
			FormPath:          getEnv("TARGET_FORM_PATH", "/api/generate"),
			ClientErrorsPath:  getEnv("TARGET_CLIENT_ERRORS_PATH", "/api/client-errors"),
			ProbeTimeout:      p.duration("TARGET_PROBE_TIMEOUT", "15s"),
			PerformanceBudget: p.duration("TARGET_PERFORMANCE_BUDGET", "3s"),
		},
		Evidence: EvidenceConfig{
			Dir:               getEnv("EVIDENCE_DIR", "./evidence"),
			CollectionTimeout: p.duration("EVIDENCE_COLLECTION_TIMEOUT", "45s"),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvBool("DB_ENABLED", false),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "quality_gate"),
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           p.int("REDIS_DB", "0"),
			TTL:          p.duration("REDIS_TTL", "24h"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:       getEnvBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "quality"),
		},
		S3: S3Config{
			Enabled:         getEnvBool("S3_ENABLED", false),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "ru-central1"),
			Endpoint:        getEnv("S3_ENDPOINT", "https://storage.yandexcloud.net"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "evidence"),
		},
		Dynamo: DynamoConfig{
			Enabled:         getEnvBool("DYNAMO_ENABLED", false),
			TableAttempts:   getEnv("DYNAMO_TABLE_DEPLOYMENT_ATTEMPTS", "deployment_attempts"),
			Region:          getEnv("DYNAMO_REGION", "us-east-1"),
			Endpoint:        getEnv("DYNAMO_ENDPOINT", ""),
			AccessKeyID:     getEnv("DYNAMO_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("DYNAMO_SECRET_ACCESS_KEY", ""),
			StrongReads:     getEnvBool("DYNAMO_STRONG_READS", false),
			Retention:       p.duration("DYNAMO_RETENTION", "0s"),
		},
		CloudWatch: CloudWatchConfig{
			MetricsEnabled:    getEnvBool("CLOUDWATCH_METRICS_ENABLED", false),
			LogsEnabled:       getEnvBool("CLOUDWATCH_LOGS_ENABLED", false),
			Region:            getEnv("CLOUDWATCH_REGION", "us-east-1"),
			Endpoint:          getEnv("CLOUDWATCH_ENDPOINT", ""),
			AccessKeyID:       getEnv("CLOUDWATCH_ACCESS_KEY_ID", ""),
			SecretAccessKey:   getEnv("CLOUDWATCH_SECRET_ACCESS_KEY", ""),
			MetricsNamespace:  getEnv("CLOUDWATCH_METRICS_NAMESPACE", "QualityGate/Deployments"),
			MetricsDimensions: parseDimensions(getEnv("CLOUDWATCH_METRICS_DIMENSIONS", "Environment=dev")),
			MetricsBufferSize: p.int("CLOUDWATCH_METRICS_BUFFER_SIZE", "50"),
			FlushInterval:     p.duration("CLOUDWATCH_FLUSH_INTERVAL", "10s"),
			LogGroupName:      getEnv("CLOUDWATCH_LOG_GROUP", "/quality-gate/app"),
			LogStreamName:     getEnv("CLOUDWATCH_LOG_STREAM", hostnameOr("quality-gate")),
			LogsBufferSize:    p.int("CLOUDWATCH_LOGS_BUFFER_SIZE", "50"),
		},
	}

	if p.err != nil {
		return nil, p.err
	}

	// ответ на POST /api/v1/deployments/validate не должен обрываться раньше таймаута валидации
	if minWrite := cfg.Gate.ValidationTimeout + writeTimeoutMargin; cfg.Server.WriteTimeout < minWrite {
		cfg.Server.WriteTimeout = minWrite
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}
	for name, value := range map[string]float64{
		"GATE_EVIDENCE_THRESHOLD":      c.Gate.EvidenceThreshold,
		"GATE_FUNCTIONALITY_THRESHOLD": c.Gate.FunctionalityThreshold,
		"GATE_HEALTH_THRESHOLD":        c.Gate.HealthThreshold,
	} {
		if value < 0 || value > 100 {
			return fmt.Errorf("%s must be within [0,100], got %.2f", name, value)
		}
	}
	if c.Gate.ValidationTimeout <= 0 {
		return fmt.Errorf("GATE_VALIDATION_TIMEOUT must be positive")
	}
	if c.Server.WriteTimeout <= c.Gate.ValidationTimeout {
		return fmt.Errorf("server write timeout %s must exceed GATE_VALIDATION_TIMEOUT %s", c.Server.WriteTimeout, c.Gate.ValidationTimeout)
	}
	if c.Health.Interval < time.Second {
		return fmt.Errorf("HEALTH_INTERVAL must be >= 1s")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when S3_ENABLED=true")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

// parser accumulates the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) duration(key, fallback string) time.Duration {
	value, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return value
}

func (p *parser) int(key, fallback string) int {
	value, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return value
}

func (p *parser) float(key, fallback string) float64 {
	value, err := strconv.ParseFloat(getEnv(key, fallback), 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func splitCSV(raw string) []string {
	items := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// parseDimensions parses "Key=Value,Key2=Value2".
func parseDimensions(raw string) map[string]string {
	dims := make(map[string]string)
	for _, pair := range splitCSV(raw) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		dims[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return dims
}

func hostnameOr(fallback string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fallback
	}
	return host
}
