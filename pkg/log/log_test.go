package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	scierrors "github.com/YuminosukeSato/chdrisk/pkg/errors"
)

func TestTestLogger(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationFit)
	testLogger.Warn("warning message", ErrorCodeKey, ErrorConvergence)
	testLogger.Error("error message", fmt.Errorf("test error"), ErrorCodeKey, ErrorEmptyData)

	if buffer.Len() == 0 {
		t.Fatal("Expected log output, got empty buffer")
	}
	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}
	if !testLogger.ContainsField("key1", "value1") {
		t.Error("Expected field key1=value1 not found")
	}
	// JSONを経由するため数値はfloat64になる
	if !testLogger.ContainsField("number", 42.0) {
		t.Error("Expected field number=42 not found")
	}
	if !testLogger.ContainsField(ErrAttrKey, "test error") {
		t.Error("leading error should be logged under the error key")
	}

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Errorf("Expected 4 entries, got %d", len(entries))
	}
}

func TestTestLoggerLevelFilter(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelWarn)

	testLogger.Debug("hidden debug")
	testLogger.Info("hidden info")
	testLogger.Warn("shown warn")

	if testLogger.ContainsMessage("hidden") {
		t.Error("messages below the level should be dropped")
	}
	if !testLogger.ContainsMessage("shown warn") {
		t.Error("warn message should be recorded")
	}
	if testLogger.Enabled(context.Background(), LevelInfo) {
		t.Error("Info should not be enabled at warn level")
	}

	testLogger.Clear()
	if testLogger.ContainsMessage("shown warn") {
		t.Error("Clear should reset the buffer")
	}
}

func TestTestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(ModelNameKey, "SVC", StageKey, "search")
	contextLogger.Info("contextual message", FoldsKey, 5)

	if !testLogger.ContainsField(ModelNameKey, "SVC") {
		t.Error("model name context not found")
	}
	if !testLogger.ContainsField(StageKey, "search") {
		t.Error("stage context not found")
	}
	if !testLogger.ContainsField(FoldsKey, 5.0) {
		t.Error("folds field not found")
	}
}

func TestTestLoggerConcurrent(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			testLogger.With("worker", i).Info("fold done")
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 20 {
		t.Errorf("Expected 20 entries, got %d", len(entries))
	}
}

func TestZerologProvider(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProviderWithWriter(&buf, LevelInfo, false)

	logger := p.GetLoggerWithName("imblearn")
	logger.Debug("not emitted")
	logger.Info("resampled", SamplesKey, 1530, ClassCountsKey, map[string]int{"0": 900, "1": 630})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["message"] != "resampled" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry[ComponentKey] != "imblearn" {
		t.Errorf("component = %v", entry[ComponentKey])
	}
	if entry[SamplesKey] != 1530.0 {
		t.Errorf("samples = %v", entry[SamplesKey])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}

	p.SetLevel(LevelDebug)
	if !logger.Enabled(context.Background(), LevelDebug) {
		t.Error("SetLevel should affect existing loggers")
	}
}

func TestZerologProviderStacktrace(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProviderWithWriter(&buf, LevelDebug, false)

	err := scierrors.NewNotFittedError("SVC", "Predict")
	p.GetLogger().With(RunIDKey, "run-1").Error("stage failed", err, StageKey, "evaluate")

	var entry map[string]interface{}
	if jerr := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); jerr != nil {
		t.Fatal(jerr)
	}
	if !strings.Contains(fmt.Sprint(entry[ErrAttrKey]), "not fitted") {
		t.Errorf("error field = %v", entry[ErrAttrKey])
	}
	if st, _ := entry[StacktraceKey].(string); st == "" {
		t.Error("Expected stacktrace field for cockroachdb error")
	}
	if entry[StageKey] != "evaluate" || entry[RunIDKey] != "run-1" {
		t.Errorf("missing context fields: %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"", LevelInfo, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	defer func() {
		if recover() == nil {
			t.Error("ToLogLevel should panic on invalid input")
		}
	}()
	ToLogLevel("verbose")
}

func TestGlobalProviderAndWarningHook(t *testing.T) {
	old := GetProvider()
	defer SetProvider(old)

	p, _ := NewTestLoggerProvider(LevelDebug)
	SetProvider(p)

	GetLoggerWithName("metrics").Info("scored")
	if !p.Logger().ContainsField(ComponentKey, "metrics") {
		t.Error("named logger should carry the component field")
	}

	InstallWarningHook(GetLogger())
	defer scierrors.SetZerologWarnFunc(nil)
	scierrors.Warn(scierrors.NewUndefinedMetricWarning("f1", "no true samples", 0))

	if !p.Logger().ContainsMessage("'f1' is ill-defined") {
		t.Error("warning should be routed to the logger")
	}
}
