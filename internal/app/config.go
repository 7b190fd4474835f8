package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	appdb "github.com/yungbote/mediaforge-backend/internal/data/db"
	"github.com/yungbote/mediaforge-backend/internal/platform/envutil"
)

type Config struct {
	Env     string `yaml:"env"`
	LogMode string `yaml:"log_mode"`

	// RunServer and RunWorker split the API and the job pool across
	// processes; both default to true.
	RunServer bool `yaml:"run_server"`
	RunWorker bool `yaml:"run_worker"`

	HTTP    HTTPConfig    `yaml:"http"`
	DB      DBConfig      `yaml:"db"`
	Media   MediaConfig   `yaml:"media"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Redis   RedisConfig   `yaml:"redis"`
	Mirror  MirrorConfig  `yaml:"mirror"`
	Metrics MetricsConfig `yaml:"metrics"`
	Otel    OtelConfig    `yaml:"otel"`
}

type HTTPConfig struct {
	Addr               string        `yaml:"addr"`
	ReadHeaderTimeout  time.Duration `yaml:"read_header_timeout"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins        []string      `yaml:"cors_origins"`
	MaxMultipartMemory int64         `yaml:"max_multipart_memory"`
}

type DBConfig struct {
	Driver        string        `yaml:"driver"`
	Host          string        `yaml:"host"`
	Port          string        `yaml:"port"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	Name          string        `yaml:"name"`
	SSLMode       string        `yaml:"sslmode"`
	SQLitePath    string        `yaml:"sqlite_path"`
	MaxOpenConns  int           `yaml:"max_open_conns"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

type MediaConfig struct {
	Root             string        `yaml:"root"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	MaxQueueDepth    int64         `yaml:"max_queue_depth"`
	FontPath         string        `yaml:"font_path"`
	WatermarkPath    string        `yaml:"watermark_path"`
	FFmpegPath       string        `yaml:"ffmpeg_path"`
	FFprobePath      string        `yaml:"ffprobe_path"`
	WorkDir          string        `yaml:"work_dir"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	TransformTimeout time.Duration `yaml:"transform_timeout"`
}

type JobsConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	HeartbeatEvery    time.Duration `yaml:"heartbeat_every"`
	TranscodeTimeout  time.Duration `yaml:"transcode_timeout"`
	TranscodeRetries  int           `yaml:"transcode_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	ParallelQualities int           `yaml:"parallel_qualities"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// MirrorConfig enables copying renditions to object storage.
type MirrorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Mode           string `yaml:"mode"`
	EmulatorHost   string `yaml:"emulator_host"`
	Bucket         string `yaml:"bucket"`
	CDNDomain      string `yaml:"cdn_domain"`
	PublicBaseURL  string `yaml:"public_base_url"`
	Credentials    string `yaml:"credentials"`
	CompatFallback bool   `yaml:"compat_fallback"`
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	ScrapeInterval time.Duration `yaml:"scrape_interval"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Headers     string  `yaml:"headers"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

func DefaultConfig() Config {
	return Config{
		Env:       "development",
		LogMode:   "development",
		RunServer: true,
		RunWorker: true,
		HTTP: HTTPConfig{
			Addr:               ":8080",
			ReadHeaderTimeout:  10 * time.Second,
			IdleTimeout:        120 * time.Second,
			ShutdownTimeout:    15 * time.Second,
			MaxMultipartMemory: 32 << 20,
		},
		DB: DBConfig{
			Driver:        appdb.DriverPostgres,
			Host:          "localhost",
			Port:          "5432",
			User:          "postgres",
			Name:          "mediaforge",
			SSLMode:       "disable",
			SQLitePath:    "mediaforge.db",
			SlowThreshold: time.Second,
		},
		Media: MediaConfig{
			Root:             "media",
			MaxUploadBytes:   2 << 30,
			FFmpegPath:       "ffmpeg",
			FFprobePath:      "ffprobe",
			ProbeTimeout:     30 * time.Second,
			TransformTimeout: 10 * time.Minute,
		},
		Jobs: JobsConfig{
			Concurrency:       2,
			PollInterval:      time.Second,
			MaxAttempts:       3,
			RetryDelay:        30 * time.Second,
			StaleAfter:        45 * time.Minute,
			HeartbeatEvery:    30 * time.Second,
			TranscodeTimeout:  30 * time.Minute,
			TranscodeRetries:  1,
			RetryBackoff:      2 * time.Second,
			ParallelQualities: 1,
		},
		Redis: RedisConfig{Channel: "mediaforge:events"},
		Metrics: MetricsConfig{
			ScrapeInterval: 15 * time.Second,
		},
		Otel: OtelConfig{
			ServiceName: "mediaforge-backend",
			SampleRatio: 1,
		},
	}
}

// LoadConfig layers defaults, the YAML file at path (optional) and the
// environment, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Env = envutil.String("APP_ENV", c.Env)
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)
	c.RunServer = envutil.Bool("RUN_SERVER", c.RunServer)
	c.RunWorker = envutil.Bool("RUN_WORKER", c.RunWorker)

	if port := envutil.String("PORT", ""); port != "" {
		c.HTTP.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	c.HTTP.Addr = envutil.String("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.ShutdownTimeout = envutil.Duration("HTTP_SHUTDOWN_TIMEOUT", c.HTTP.ShutdownTimeout)
	c.HTTP.CORSOrigins = envutil.List("CORS_ORIGINS", c.HTTP.CORSOrigins)

	c.DB.Driver = envutil.String("DB_DRIVER", c.DB.Driver)
	c.DB.Host = envutil.String("POSTGRES_HOST", c.DB.Host)
	c.DB.Port = envutil.String("POSTGRES_PORT", c.DB.Port)
	c.DB.User = envutil.String("POSTGRES_USER", c.DB.User)
	c.DB.Password = envutil.String("POSTGRES_PASSWORD", c.DB.Password)
	c.DB.Name = envutil.String("POSTGRES_NAME", c.DB.Name)
	c.DB.SSLMode = envutil.String("POSTGRES_SSLMODE", c.DB.SSLMode)
	c.DB.SQLitePath = envutil.String("SQLITE_PATH", c.DB.SQLitePath)
	c.DB.MaxOpenConns = envutil.Int("DB_MAX_OPEN_CONNS", c.DB.MaxOpenConns)

	c.Media.Root = envutil.String("MEDIA_ROOT", c.Media.Root)
	c.Media.MaxUploadBytes = envutil.Int64("MAX_UPLOAD_BYTES", c.Media.MaxUploadBytes)
	c.Media.MaxQueueDepth = envutil.Int64("MAX_QUEUE_DEPTH", c.Media.MaxQueueDepth)
	c.Media.FontPath = envutil.String("FONT_PATH", c.Media.FontPath)
	c.Media.WatermarkPath = envutil.String("WATERMARK_PATH", c.Media.WatermarkPath)
	c.Media.FFmpegPath = envutil.String("FFMPEG_PATH", c.Media.FFmpegPath)
	c.Media.FFprobePath = envutil.String("FFPROBE_PATH", c.Media.FFprobePath)
	c.Media.WorkDir = envutil.String("MEDIA_WORK_DIR", c.Media.WorkDir)
	c.Media.ProbeTimeout = envutil.Duration("PROBE_TIMEOUT", c.Media.ProbeTimeout)
	c.Media.TransformTimeout = envutil.Duration("TRANSFORM_TIMEOUT", c.Media.TransformTimeout)

	c.Jobs.Concurrency = envutil.Int("WORKER_CONCURRENCY", c.Jobs.Concurrency)
	c.Jobs.PollInterval = envutil.Duration("JOB_POLL_INTERVAL", c.Jobs.PollInterval)
	c.Jobs.MaxAttempts = envutil.Int("JOB_MAX_ATTEMPTS", c.Jobs.MaxAttempts)
	c.Jobs.RetryDelay = envutil.Duration("JOB_RETRY_DELAY", c.Jobs.RetryDelay)
	c.Jobs.StaleAfter = envutil.Duration("JOB_STALE_AFTER", c.Jobs.StaleAfter)
	c.Jobs.TranscodeTimeout = envutil.Duration("TRANSCODE_TIMEOUT", c.Jobs.TranscodeTimeout)
	c.Jobs.TranscodeRetries = envutil.Int("TRANSCODE_RETRIES", c.Jobs.TranscodeRetries)
	c.Jobs.RetryBackoff = envutil.Duration("TRANSCODE_RETRY_BACKOFF", c.Jobs.RetryBackoff)
	c.Jobs.ParallelQualities = envutil.Int("PARALLEL_QUALITIES", c.Jobs.ParallelQualities)

	c.Redis.Addr = envutil.String("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envutil.String("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envutil.Int("REDIS_DB", c.Redis.DB)
	c.Redis.Channel = envutil.String("REDIS_CHANNEL", c.Redis.Channel)

	c.Mirror.Enabled = envutil.Bool("OBJECT_STORAGE_MIRROR", c.Mirror.Enabled)
	c.Mirror.Mode = envutil.String("OBJECT_STORAGE_MODE", c.Mirror.Mode)
	c.Mirror.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", c.Mirror.EmulatorHost)
	c.Mirror.Bucket = envutil.String("MEDIA_GCS_BUCKET_NAME", c.Mirror.Bucket)
	c.Mirror.CDNDomain = envutil.String("MEDIA_CDN_DOMAIN", c.Mirror.CDNDomain)
	c.Mirror.PublicBaseURL = envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", c.Mirror.PublicBaseURL)
	c.Mirror.Credentials = envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", envutil.String("GOOGLE_APPLICATION_CREDENTIALS", c.Mirror.Credentials))
	c.Mirror.CompatFallback = envutil.Bool("OBJECT_STORAGE_COMPAT_FALLBACK", c.Mirror.CompatFallback)

	c.Metrics.Enabled = envutil.Bool("METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Addr = envutil.String("METRICS_ADDR", c.Metrics.Addr)
	c.Metrics.ScrapeInterval = envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", c.Metrics.ScrapeInterval)

	c.Otel.Enabled = envutil.Bool("OTEL_ENABLED", c.Otel.Enabled)
	c.Otel.ServiceName = envutil.String("OTEL_SERVICE_NAME", c.Otel.ServiceName)
	c.Otel.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", c.Otel.Endpoint)
	c.Otel.Headers = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", c.Otel.Headers)
	c.Otel.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", c.Otel.Insecure)
}

func (c Config) Validate() error {
	switch strings.ToLower(c.DB.Driver) {
	case appdb.DriverPostgres, appdb.DriverSQLite:
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}
	if strings.TrimSpace(c.Media.Root) == "" {
		return fmt.Errorf("media root is required")
	}
	if !c.RunServer && !c.RunWorker {
		return fmt.Errorf("at least one of run_server and run_worker must be set")
	}
	if c.Jobs.Concurrency < 1 {
		return fmt.Errorf("jobs.concurrency must be >= 1 (got %d)", c.Jobs.Concurrency)
	}
	if c.Jobs.TranscodeRetries < 0 {
		return fmt.Errorf("jobs.transcode_retries must be >= 0 (got %d)", c.Jobs.TranscodeRetries)
	}
	return nil
}

func (c Config) dbConfig() appdb.Config {
	return appdb.Config{
		Driver:           strings.ToLower(c.DB.Driver),
		PostgresHost:     c.DB.Host,
		PostgresPort:     c.DB.Port,
		PostgresUser:     c.DB.User,
		PostgresPassword: c.DB.Password,
		PostgresName:     c.DB.Name,
		PostgresSSLMode:  c.DB.SSLMode,
		SQLitePath:       c.DB.SQLitePath,
		MaxOpenConns:     c.DB.MaxOpenConns,
		SlowThreshold:    c.DB.SlowThreshold,
	}
}
