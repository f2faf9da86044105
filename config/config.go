package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is the configuration file read when no flag is given.
	DefaultPath = "config/config.yml"
	// CredentialsEnv holds the service-account JSON for the sheet mirror.
	CredentialsEnv = "CREDS_FILE"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Poll      PollConfig      `yaml:"poll"`
	Source    SourceConfig    `yaml:"source"`
	Report    ReportConfig    `yaml:"report"`
	Sheet     SheetConfig     `yaml:"sheet"`
	Export    ExportConfig    `yaml:"export"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	StopOnError bool          `yaml:"stop_on_error"`
}

type SourceConfig struct {
	BaseURL    string        `yaml:"base_url"`
	VsCurrency string        `yaml:"vs_currency"`
	PerPage    int           `yaml:"per_page"`
	Timeout    time.Duration `yaml:"timeout"`
}

type ReportConfig struct {
	PDFPath   string `yaml:"pdf_path"`
	ChartPath string `yaml:"chart_path"`
	TopN      int    `yaml:"top_n"`
}

type SheetConfig struct {
	Enabled         bool   `yaml:"enabled"`
	SpreadsheetName string `yaml:"spreadsheet_name"`
	CredentialsEnv  string `yaml:"credentials_env"`
	// Credentials is filled from the environment, never from YAML.
	Credentials []byte `yaml:"-"`
}

type ExportConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ParquetPath string `yaml:"parquet_path"`
	Compression string `yaml:"compression"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch    bool   `yaml:"cloudwatch"`
	Namespace     string `yaml:"namespace"`
	Region        string `yaml:"region"`
	DashboardName string `yaml:"dashboard_name"`
	Prometheus    bool   `yaml:"prometheus"`
}

// DashboardConfig controls the status listener. It also serves /metrics
// when metrics.prometheus is set.
type DashboardConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Address        string `yaml:"address"`
	LogHistory     int    `yaml:"log_history"`
	MetricsHistory int    `yaml:"metrics_history"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the settings the job runs with when the file omits them.
func Default() Config {
	return Config{
		App: AppConfig{Name: "cryptoreport", Version: "dev"},
		Poll: PollConfig{
			Interval: 5 * time.Second,
		},
		Source: SourceConfig{
			BaseURL:    "https://api.coingecko.com/api/v3",
			VsCurrency: "usd",
			PerPage:    50,
			Timeout:    10 * time.Second,
		},
		Report: ReportConfig{
			PDFPath:   "Cryptocurrency_Analysis.pdf",
			ChartPath: "market_share_pie_with_legend.png",
			TopN:      5,
		},
		Sheet: SheetConfig{
			Enabled:         true,
			SpreadsheetName: "Live Crypto",
			CredentialsEnv:  CredentialsEnv,
		},
		Export: ExportConfig{
			ParquetPath: "snapshot.parquet",
			Compression: "snappy",
		},
		Storage: StorageConfig{
			S3: S3Config{Prefix: "cryptoreport"},
		},
		Metrics: MetricsConfig{
			Namespace:     "CryptoReport",
			DashboardName: "CryptoReport",
		},
		Dashboard: DashboardConfig{
			Address:        ":2112",
			LogHistory:     200,
			MetricsHistory: 200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadConfig reads the YAML file at path on top of Default, applies
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw YAML the same way LoadConfig does.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if config.Sheet.Enabled {
		name := config.Sheet.CredentialsEnv
		if name == "" {
			name = CredentialsEnv
		}
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			config.Sheet.Credentials = []byte(v)
		}
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be greater than 0")
	}

	if _, err := url.ParseRequestURI(cfg.Source.BaseURL); err != nil {
		return fmt.Errorf("source.base_url '%s' is invalid: %w", cfg.Source.BaseURL, err)
	}
	if cfg.Source.VsCurrency == "" {
		return fmt.Errorf("source.vs_currency is required")
	}
	if cfg.Source.PerPage <= 0 || cfg.Source.PerPage > 250 {
		return fmt.Errorf("source.per_page must be between 1 and 250")
	}
	if cfg.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be greater than 0")
	}

	if cfg.Report.PDFPath == "" || cfg.Report.ChartPath == "" {
		return fmt.Errorf("report.pdf_path and report.chart_path are required")
	}
	if cfg.Report.TopN <= 0 {
		return fmt.Errorf("report.top_n must be greater than 0")
	}

	if cfg.Sheet.Enabled {
		if cfg.Sheet.SpreadsheetName == "" {
			return fmt.Errorf("sheet.spreadsheet_name is required when the sheet mirror is enabled")
		}
		if len(cfg.Sheet.Credentials) == 0 {
			return fmt.Errorf("environment variable %s is required when the sheet mirror is enabled", cfg.Sheet.CredentialsEnv)
		}
	}

	if cfg.Export.Enabled && cfg.Export.ParquetPath == "" {
		return fmt.Errorf("export.parquet_path is required when export is enabled")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if (cfg.Dashboard.Enabled || cfg.Metrics.Prometheus) && strings.TrimSpace(cfg.Dashboard.Address) == "" {
		return fmt.Errorf("dashboard.address is required when the dashboard or prometheus is enabled")
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
