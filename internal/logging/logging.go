// Package logging は logrus ベースのロガーと Gin 用のリクエストログミドルウェアを提供します。
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/pdf2zh-engine/internal/config"
)

// New は設定に従ってロガーを生成します。
// 標準出力は起動通知専用のため、出力先は常に標準エラーです。
func New(cfg *config.Config) *logrus.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg *config.Config, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	level := logrus.InfoLevel
	format := "json"
	if cfg != nil {
		if parsed, err := logrus.ParseLevel(strings.TrimSpace(cfg.LogLevel)); err == nil {
			level = parsed
		}
		format = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	}
	logger.SetLevel(level)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}
	return logger
}

// GinMiddleware は gin.Logger の代わりにリクエストを構造化ログとして出力します。
func GinMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		if jobID := c.Query("jobId"); jobID != "" {
			entry = entry.WithField("job_id", jobID)
		}
		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.String())
			return
		}
		entry.Debug("request handled")
	}
}
