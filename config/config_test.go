package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempConfig creates a configuration file for LoadConfig and returns its
// path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, `app:
  name: "TestApp"
sheet:
  enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.Poll.Interval != 5*time.Second {
		t.Errorf("unexpected interval: %s", cfg.Poll.Interval)
	}
	if cfg.Source.PerPage != 50 || cfg.Source.VsCurrency != "usd" {
		t.Errorf("unexpected source defaults: %+v", cfg.Source)
	}
	if cfg.Report.PDFPath != "Cryptocurrency_Analysis.pdf" || cfg.Report.ChartPath != "market_share_pie_with_legend.png" {
		t.Errorf("unexpected report defaults: %+v", cfg.Report)
	}
	if cfg.Poll.StopOnError {
		t.Errorf("expected iterations to be isolated by default")
	}
	if cfg.Dashboard.Enabled || cfg.Dashboard.Address != ":2112" {
		t.Errorf("unexpected dashboard defaults: %+v", cfg.Dashboard)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeTempConfig(t, `poll:
  interval: 1m
  stop_on_error: true
source:
  per_page: 100
sheet:
  enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Poll.Interval != time.Minute || !cfg.Poll.StopOnError {
		t.Errorf("unexpected poll config: %+v", cfg.Poll)
	}
	if cfg.Source.PerPage != 100 {
		t.Errorf("unexpected per_page: %d", cfg.Source.PerPage)
	}
}

func TestSheetCredentialsFromEnvironment(t *testing.T) {
	t.Setenv(CredentialsEnv, `{"type":"service_account"}`)

	cfg, err := Parse([]byte("sheet:\n  enabled: true\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if string(cfg.Sheet.Credentials) != `{"type":"service_account"}` {
		t.Fatalf("unexpected credentials: %q", cfg.Sheet.Credentials)
	}
}

func TestSheetRequiresCredentials(t *testing.T) {
	t.Setenv(CredentialsEnv, "")

	_, err := Parse([]byte("sheet:\n  enabled: true\n"))
	if err == nil || !strings.Contains(err.Error(), CredentialsEnv) {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestS3EnvironmentOverrides(t *testing.T) {
	t.Setenv("S3_BUCKET", " reports-bucket ")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := Parse([]byte("sheet:\n  enabled: false\nstorage:\n  s3:\n    enabled: true\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Storage.S3.Bucket != "reports-bucket" || cfg.Storage.S3.Region != "eu-west-1" {
		t.Fatalf("unexpected s3 config: %+v", cfg.Storage.S3)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := map[string]string{
		"interval": "sheet:\n  enabled: false\npoll:\n  interval: 0s\n",
		"base_url": "sheet:\n  enabled: false\nsource:\n  base_url: not a url\n",
		"per_page": "sheet:\n  enabled: false\nsource:\n  per_page: 0\n",
		"top_n":    "sheet:\n  enabled: false\nreport:\n  top_n: 0\n",
		"bucket":   "sheet:\n  enabled: false\nstorage:\n  s3:\n    enabled: true\n    region: us-east-1\n    bucket: Bad_Bucket\n",
		"address":  "sheet:\n  enabled: false\nmetrics:\n  prometheus: true\ndashboard:\n  address: \"\"\n",
	}
	t.Setenv("S3_BUCKET", "")
	t.Setenv("AWS_REGION", "")
	for name, content := range cases {
		if _, err := Parse([]byte(content)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(appEnvVar, "prod")
	if got := ResolvePath("custom.yml"); got != "custom.yml" {
		t.Fatalf("explicit path should win, got %s", got)
	}
	if got := ResolvePath(""); got != DefaultPath {
		t.Fatalf("expected fallback to %s, got %s", DefaultPath, got)
	}
	if !IsProductionLike(AppEnvironment()) {
		t.Fatalf("prod alias should be production-like")
	}
}
