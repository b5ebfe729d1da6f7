package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

// captureOutput redirects the standard logger and lowers the level for the
// duration of the test.
func captureOutput(t testing.TB, level LogLevel) *bytes.Buffer {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	original := Level()
	SetLevel(level)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		SetLevel(original)
	})
	return &buf
}

// Helper function to extract JSON from log output that includes Go log prefix
func extractJSONFromLogOutput(output string) (map[string]interface{}, error) {
	var logEntry map[string]interface{}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		return nil, fmt.Errorf("no log output")
	}

	line := lines[len(lines)-1]
	jsonStart := strings.Index(line, "{")
	if jsonStart == -1 {
		return nil, fmt.Errorf("no JSON found in log output: %s", line)
	}

	err := json.Unmarshal([]byte(line[jsonStart:]), &logEntry)
	return logEntry, err
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(string, ...map[string]interface{})
		level string
	}{
		{"debug", Debug, "DEBUG"},
		{"info", Info, "INFO"},
		{"warn", Warn, "WARN"},
		{"error", Error, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureOutput(t, DEBUG)

			tt.log("test message", map[string]interface{}{"customer_id": "c-1", "count": 2})

			logEntry, err := extractJSONFromLogOutput(buf.String())
			if err != nil {
				t.Fatalf("Expected valid JSON log entry, got error: %v", err)
			}
			if logEntry["level"] != tt.level {
				t.Errorf("Expected level %s, got %v", tt.level, logEntry["level"])
			}
			if logEntry["message"] != "test message" {
				t.Errorf("Expected message 'test message', got %v", logEntry["message"])
			}
			fields := logEntry["fields"].(map[string]interface{})
			if fields["customer_id"] != "c-1" {
				t.Errorf("Expected customer_id=c-1, got %v", fields["customer_id"])
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, WARN)

	Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected no output below WARN, got %q", buf.String())
	}

	Warn("should be kept")
	if buf.Len() == 0 {
		t.Error("Expected WARN output")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		" error ": ERROR,
		"":        INFO,
		"verbose": INFO,
	}
	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %s, expected %s", input, got, want)
		}
	}
}

func TestSanitizeFields(t *testing.T) {
	fields := sanitizeFields(map[string]interface{}{
		"phone":          "615551234",
		"access_token":   "eyJhbGciOiJIUzI1NiJ9.payload.sig",
		"password":       "short",
		"webhook_secret": 42,
		"amount":         "40.00",
	})

	if fields["phone"] != "*****1234" {
		t.Errorf("Expected masked phone, got %v", fields["phone"])
	}
	if fields["access_token"] != "eyJ...sig" {
		t.Errorf("Expected partially redacted token, got %v", fields["access_token"])
	}
	if fields["password"] != "[REDACTED]" {
		t.Errorf("Expected redacted password, got %v", fields["password"])
	}
	if fields["webhook_secret"] != "[REDACTED]" {
		t.Errorf("Expected redacted non-string secret, got %v", fields["webhook_secret"])
	}
	if fields["amount"] != "40.00" {
		t.Errorf("Expected amount untouched, got %v", fields["amount"])
	}

	if sanitizeFields(nil) != nil {
		t.Error("Expected nil fields to stay nil")
	}
}

func TestMaskPhone(t *testing.T) {
	if got := maskPhone("123"); got != "***" {
		t.Errorf("Expected short phone fully masked, got %v", got)
	}
	if got := maskPhone(615551234); got != "[REDACTED]" {
		t.Errorf("Expected non-string phone redacted, got %v", got)
	}
}

func TestLogFieldTypes(t *testing.T) {
	buf := captureOutput(t, INFO)

	Info("testing different field types", map[string]interface{}{
		"string_field": "test",
		"int_field":    42,
		"float_field":  3.14,
		"bool_field":   true,
		"nil_field":    nil,
	})

	if _, err := extractJSONFromLogOutput(buf.String()); err != nil {
		t.Errorf("Expected valid JSON log entry with mixed field types, got error: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success", http.StatusCreated, "INFO"},
		{"client error", http.StatusNotFound, "WARN"},
		{"server error", http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureOutput(t, DEBUG)
			handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("ok"))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			logEntry, err := extractJSONFromLogOutput(buf.String())
			if err != nil {
				t.Fatalf("Expected access log entry, got error: %v", err)
			}
			if logEntry["level"] != tt.level {
				t.Errorf("Expected level %s, got %v", tt.level, logEntry["level"])
			}
			fields := logEntry["fields"].(map[string]interface{})
			if fields["status"] != float64(tt.status) {
				t.Errorf("Expected status %d, got %v", tt.status, fields["status"])
			}
			if fields["path"] != "/api/customers" {
				t.Errorf("Expected path /api/customers, got %v", fields["path"])
			}
		})
	}
}

func BenchmarkInfo(b *testing.B) {
	captureOutput(b, INFO)

	fields := map[string]interface{}{
		"user_id": "12345",
		"action":  "benchmark",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info("benchmark info message", fields)
	}
}

func BenchmarkInfoWithoutFields(b *testing.B) {
	captureOutput(b, INFO)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info("benchmark message without fields")
	}
}
