package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/pdf2zh-engine/internal/config"
)

func TestNewLoggerUsesConfiguredLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{LogLevel: "warn", LogFormat: "json"}, &buf)

	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("unexpected level: %s", logger.GetLevel())
	}

	logger.Info("hidden")
	logger.WithField("job_id", "abc").Warn("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one log line, got %q", buf.String())
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &payload); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if payload["job_id"] != "abc" || payload["msg"] != "visible" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestNewLoggerFallsBackOnUnknownLevel(t *testing.T) {
	logger := newLogger(&config.Config{LogLevel: "chatty", LogFormat: "text"}, &bytes.Buffer{})
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("unexpected level: %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("unexpected formatter: %T", logger.Formatter)
	}
}

func TestGinMiddlewareLogsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := newLogger(&config.Config{LogLevel: "debug"}, &buf)

	router := gin.New()
	router.Use(GinMiddleware(logger))
	router.GET("/result", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/result?jobId=job-1", nil))

	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if payload["path"] != "/result" || payload["job_id"] != "job-1" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
	if status, _ := payload["status"].(float64); int(status) != http.StatusTeapot {
		t.Fatalf("unexpected status field: %#v", payload["status"])
	}
}
