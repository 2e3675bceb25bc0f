package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is accepted for run start/end in addition to RFC 3339.
const DateLayout = "2006-01-02"

type Config struct {
	Station  StationConfig  `yaml:"station"`
	Source   SourceConfig   `yaml:"source"`
	Detector DetectorConfig `yaml:"detector"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Run      RunConfig      `yaml:"run"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Summary  SummaryConfig  `yaml:"summary"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type StationConfig struct {
	Network string `yaml:"network"`
	Station string `yaml:"station"`
	Channel string `yaml:"channel"`
	Format  string `yaml:"format"`
}

type SourceConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxAttempts       int           `yaml:"max_attempts"`
	Backoff           time.Duration `yaml:"backoff"`
	RetryStatuses     []int         `yaml:"retry_statuses"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

type DetectorConfig struct {
	Freq         float64       `yaml:"freq"`
	Corners      int           `yaml:"corners"`
	ShortWindow  time.Duration `yaml:"short_window"`
	LongWindow   time.Duration `yaml:"long_window"`
	OnThreshold  float64       `yaml:"on_threshold"`
	OffThreshold float64       `yaml:"off_threshold"`
}

type LedgerConfig struct {
	Path string `yaml:"path"`
}

type RunConfig struct {
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	Granularity string `yaml:"granularity"`
	Workers     int    `yaml:"workers"`
	StagingDir  string `yaml:"staging_dir"`
}

type MirrorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Backend  string `yaml:"backend"` // local | file | gcs | s3
	LocalDir string `yaml:"local_dir"`
	Bucket   string `yaml:"bucket"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	Compress bool   `yaml:"compress"`
}

type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

type SummaryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type AuditConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Dir      string `yaml:"dir"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Default returns the reference station setup: TX.PB28 HHZ from the IRIS
// dataselect service, filtered at 5 Hz and triggered at 8.0/0.5.
func Default() Config {
	return Config{
		Station: StationConfig{
			Network: "TX",
			Station: "PB28",
			Channel: "HHZ",
			Format:  "sac.zip",
		},
		Source: SourceConfig{
			BaseURL:       "http://service.iris.edu/fdsnws/dataselect/1/query",
			Timeout:       30 * time.Second,
			MaxAttempts:   3,
			Backoff:       5 * time.Second,
			RetryStatuses: []int{413},
		},
		Detector: DetectorConfig{
			Freq:         5,
			Corners:      2,
			ShortWindow:  time.Second,
			LongWindow:   10 * time.Second,
			OnThreshold:  8.0,
			OffThreshold: 0.5,
		},
		Ledger: LedgerConfig{
			Path: "trigger_info.csv",
		},
		Run: RunConfig{
			Granularity: "day",
			Workers:     8,
			StagingDir:  "./seismic_data",
		},
		Mirror: MirrorConfig{
			Backend:  "local",
			LocalDir: "./mirror",
			Prefix:   "archives",
			Compress: true,
		},
		Summary: SummaryConfig{
			Enabled: true,
			Dir:     "./runs",
		},
		Audit: AuditConfig{
			Dir: "./audit",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file and the
// environment, in that order of precedence (later wins).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %s", path)
			}
			return cfg, fmt.Errorf("cannot read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MustLoad is Load that exits the process on error.
func MustLoad(path string) Config {
	log.Println("[config] loading")

	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	return cfg
}

func applyEnv(cfg *Config) error {
	cfg.Station.Network = getenvDefault("NETWORK", cfg.Station.Network)
	cfg.Station.Station = getenvDefault("STATION", cfg.Station.Station)
	cfg.Station.Channel = getenvDefault("CHANNEL", cfg.Station.Channel)
	cfg.Station.Format = getenvDefault("FORMAT", cfg.Station.Format)

	cfg.Source.BaseURL = getenvDefault("FDSN_BASE_URL", cfg.Source.BaseURL)
	cfg.Ledger.Path = getenvDefault("LEDGER_PATH", cfg.Ledger.Path)
	cfg.Run.Start = getenvDefault("RUN_START", cfg.Run.Start)
	cfg.Run.End = getenvDefault("RUN_END", cfg.Run.End)
	cfg.Run.Granularity = getenvDefault("GRANULARITY", cfg.Run.Granularity)
	cfg.Run.StagingDir = getenvDefault("STAGING_DIR", cfg.Run.StagingDir)
	cfg.Mirror.Backend = getenvDefault("MIRROR_BACKEND", cfg.Mirror.Backend)
	cfg.Mirror.LocalDir = getenvDefault("MIRROR_DIR", cfg.Mirror.LocalDir)
	cfg.Mirror.Bucket = getenvDefault("MIRROR_BUCKET", cfg.Mirror.Bucket)
	cfg.Mirror.Endpoint = getenvDefault("MIRROR_ENDPOINT", cfg.Mirror.Endpoint)
	cfg.Mirror.Region = getenvDefault("MIRROR_REGION", cfg.Mirror.Region)
	cfg.Mirror.Prefix = getenvDefault("MIRROR_PREFIX", cfg.Mirror.Prefix)
	cfg.Catalog.PostgresDSN = getenvDefault("CATALOG_DSN", cfg.Catalog.PostgresDSN)
	cfg.Summary.Dir = getenvDefault("SUMMARY_DIR", cfg.Summary.Dir)
	cfg.Audit.Endpoint = getenvDefault("AUDIT_ENDPOINT", cfg.Audit.Endpoint)
	cfg.Audit.Dir = getenvDefault("AUDIT_DIR", cfg.Audit.Dir)
	cfg.Metrics.Address = getenvDefault("METRICS_ADDR", cfg.Metrics.Address)
	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)

	if v := os.Getenv("MIRROR_ENABLED"); v != "" {
		cfg.Mirror.Enabled = v == "true"
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	if v := os.Getenv("SUMMARY_ENABLED"); v != "" {
		cfg.Summary.Enabled = v == "true"
	}
	if v := os.Getenv("AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = v == "true"
	}

	var errs []error
	intEnv := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	floatEnv := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}
	durationEnv := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = parsed
		}
	}

	intEnv("WORKERS", &cfg.Run.Workers)
	intEnv("FETCH_MAX_ATTEMPTS", &cfg.Source.MaxAttempts)
	intEnv("FILTER_CORNERS", &cfg.Detector.Corners)
	floatEnv("FETCH_RPS", &cfg.Source.RequestsPerSecond)
	floatEnv("FILTER_FREQ", &cfg.Detector.Freq)
	floatEnv("TRIGGER_ON", &cfg.Detector.OnThreshold)
	floatEnv("TRIGGER_OFF", &cfg.Detector.OffThreshold)
	durationEnv("FETCH_TIMEOUT", &cfg.Source.Timeout)
	durationEnv("FETCH_BACKOFF", &cfg.Source.Backoff)
	durationEnv("STA_WINDOW", &cfg.Detector.ShortWindow)
	durationEnv("LTA_WINDOW", &cfg.Detector.LongWindow)

	if v := os.Getenv("FETCH_RETRY_STATUSES"); v != "" {
		var statuses []int
		for _, part := range strings.Split(v, ",") {
			code, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				errs = append(errs, fmt.Errorf("FETCH_RETRY_STATUSES: %w", err))
				continue
			}
			statuses = append(statuses, code)
		}
		cfg.Source.RetryStatuses = statuses
	}

	return errors.Join(errs...)
}

// Window parses the run start and end.
func (c Config) Window() (time.Time, time.Time, error) {
	start, err := ParseTime(c.Run.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("run start: %w", err)
	}
	end, err := ParseTime(c.Run.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("run end: %w", err)
	}
	return start, end, nil
}

// ParseTime accepts a bare date, an FDSN-style timestamp or RFC 3339.
// Values without a zone are UTC.
func ParseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty time")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", DateLayout} {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Station.Network == "" || c.Station.Station == "" || c.Station.Channel == "" {
		errs = append(errs, errors.New("network, station and channel are required"))
	}
	if c.Source.BaseURL == "" {
		errs = append(errs, errors.New("source base_url is required"))
	}
	if c.Source.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be >= 1, got %d", c.Source.MaxAttempts))
	}
	if c.Source.Timeout <= 0 {
		errs = append(errs, errors.New("source timeout must be positive"))
	}
	if c.Source.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests_per_second must not be negative"))
	}
	if c.Detector.Freq <= 0 || c.Detector.Corners < 1 {
		errs = append(errs, errors.New("detector freq and corners must be positive"))
	}
	if c.Detector.ShortWindow <= 0 || c.Detector.LongWindow <= c.Detector.ShortWindow {
		errs = append(errs, errors.New("detector windows must satisfy 0 < short < long"))
	}
	if c.Detector.OnThreshold <= 0 || c.Detector.OffThreshold <= 0 {
		errs = append(errs, errors.New("trigger thresholds must be positive"))
	}
	if c.Ledger.Path == "" {
		errs = append(errs, errors.New("ledger path is required"))
	}
	switch c.Run.Granularity {
	case "hour", "day", "month":
	default:
		errs = append(errs, fmt.Errorf("unknown granularity %q", c.Run.Granularity))
	}
	if c.Run.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Run.Workers))
	}
	if c.Run.StagingDir == "" {
		errs = append(errs, errors.New("staging_dir is required"))
	}
	if c.Mirror.Enabled {
		switch c.Mirror.Backend {
		case "local", "file":
			if c.Mirror.LocalDir == "" {
				errs = append(errs, fmt.Errorf("mirror backend %s requires local_dir", c.Mirror.Backend))
			}
		case "gcs", "s3":
			if c.Mirror.Bucket == "" {
				errs = append(errs, fmt.Errorf("mirror backend %s requires bucket", c.Mirror.Backend))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown mirror backend %q", c.Mirror.Backend))
		}
	}
	if c.Run.Start != "" || c.Run.End != "" {
		start, end, err := c.Window()
		if err != nil {
			errs = append(errs, err)
		} else if !start.Before(end) {
			errs = append(errs, fmt.Errorf("run start %s must be before end %s", c.Run.Start, c.Run.End))
		}
	}

	return errors.Join(errs...)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
