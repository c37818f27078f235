package logger

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"Info", LevelInfo, false},
		{"warn", LevelWarning, false},
		{"WARNING", LevelWarning, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"verbose", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestSetLevelFromEnv(t *testing.T) {
	defer SetLevel(GetLevel())

	t.Setenv("DERIVE_TEST_LEVEL", "debug")
	SetLevelFromEnv("DERIVE_TEST_LEVEL", LevelError)
	if GetLevel() != LevelDebug {
		t.Errorf("GetLevel() = %v, want DEBUG", GetLevel())
	}

	t.Setenv("DERIVE_TEST_LEVEL", "nonsense")
	SetLevelFromEnv("DERIVE_TEST_LEVEL", LevelError)
	if GetLevel() != LevelError {
		t.Errorf("GetLevel() = %v, want the default for an invalid value", GetLevel())
	}
}

func TestRecordRunCounters(t *testing.T) {
	before := Counters()

	RecordRun(2, 5)

	after := Counters()
	if after["runs"]-before["runs"] != 1 {
		t.Errorf("runs moved by %d, want 1", after["runs"]-before["runs"])
	}
	if after["rule_setup_errors"]-before["rule_setup_errors"] != 2 {
		t.Errorf("rule_setup_errors moved by %d, want 2", after["rule_setup_errors"]-before["rule_setup_errors"])
	}
	if after["row_errors"]-before["row_errors"] != 5 {
		t.Errorf("row_errors moved by %d, want 5", after["row_errors"]-before["row_errors"])
	}
}

func TestWarnHttp4xxCounters(t *testing.T) {
	before := Counters()

	WarnHttp4xx(404)
	WarnHttp4xx(409)

	after := Counters()
	if after["http_4xx"]-before["http_4xx"] != 2 {
		t.Errorf("http_4xx moved by %d, want 2", after["http_4xx"]-before["http_4xx"])
	}
	if after["http_404"]-before["http_404"] != 1 {
		t.Errorf("http_404 moved by %d, want 1", after["http_404"]-before["http_404"])
	}
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Info("run finished", "records", 2)

	if !strings.Contains(buf.String(), `"msg":"run finished"`) || !strings.Contains(buf.String(), `"records":2`) {
		t.Errorf("log output = %q, want a JSON line", buf.String())
	}
}
