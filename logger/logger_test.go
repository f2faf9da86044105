package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	l := Logger()
	if err := l.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if err := l.Configure("loud", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestWithComponentWritesJSON(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	l := Logger()
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.WithComponent("poller").WithFields(Fields{"run_id": "abc"}).Info("poll completed")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["component"] != "poller" || line["run_id"] != "abc" || line["message"] != "poll completed" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "report.log")
	l := Logger()
	if err := l.Configure("debug", "text", path, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}

	l.WithComponent("main").Debug("hello file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Fatalf("log file missing entry: %q", string(data))
	}
}

func TestEntryCountsWarningsAndErrors(t *testing.T) {
	l := Logger()
	l.SetOutput(&bytes.Buffer{})
	warns, errs := Counts()

	l.WithComponent("test").Warn("w")
	l.WithComponent("test").Error("e")

	w2, e2 := Counts()
	if w2 != warns+1 || e2 != errs+1 {
		t.Fatalf("expected counters to advance by one, got %d/%d -> %d/%d", warns, errs, w2, e2)
	}
}

func TestLogPerformanceEntry(t *testing.T) {
	l := Logger()
	var buf bytes.Buffer
	l.SetOutput(&buf)

	LogPerformanceEntry(l.WithFields(Fields{}), "report", "render", 1500*time.Microsecond, nil)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if line["operation"] != "render" || line["duration_ms"].(float64) != 1.5 {
		t.Fatalf("unexpected performance entry: %v", line)
	}
}
