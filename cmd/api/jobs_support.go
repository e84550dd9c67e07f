package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/pdf2zh-engine/internal/config"
	"github.com/yourusername/pdf2zh-engine/internal/jobs"
	"github.com/yourusername/pdf2zh-engine/internal/pdf"
)

func setupJobs(cfg *config.Config, logger *logrus.Logger) (*jobs.Manager, error) {
	var mirror jobs.StatusMirror
	if cfg.StatusRedisURL != "" {
		opt, err := redis.ParseURL(cfg.StatusRedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		ttlMinutes := cfg.StatusTTLMinutes
		if ttlMinutes <= 0 {
			ttlMinutes = 10
		}
		mirror = jobs.NewStatusStore(redis.NewClient(opt), time.Duration(ttlMinutes)*time.Minute)
	}

	translator := pdf.NewCommandTranslator(cfg.TranslatorCommand, logger)
	manager, err := jobs.NewManager(cfg, jobs.NewRegistry(), translator, mirror, logger)
	if err != nil {
		return nil, err
	}
	return manager, nil
}

// jobEventsHandler は GET /events のハンドラーです。進捗を SSE で順に配信し、最後のイベントで終了します。
// finish マーカー由来の途中の done では閉じず、ジョブ自身の終端イベントまで配信します。
func jobEventsHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Query("jobId"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "jobId required"})
			return
		}
		record, ok := manager.Lookup(jobID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}

		header := c.Writer.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
		c.Writer.Flush()

		ctx := c.Request.Context()
		interval := manager.EventPollInterval()
		for {
			event, last, err := record.DrainNext(ctx, interval)
			if errors.Is(err, jobs.ErrIdle) {
				continue
			}
			if err != nil {
				return
			}
			if err := writeEvent(c.Writer, event); err != nil {
				_ = c.Error(err)
				return
			}
			if last {
				return
			}
		}
	}
}

func writeEvent(w gin.ResponseWriter, event jobs.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// jobResultHandler は GET /result のハンドラーです。
func jobResultHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Query("jobId"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "jobId required"})
			return
		}
		record, ok := manager.Lookup(jobID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "job not found"})
			return
		}

		result, failure, done := record.Outcome()
		switch {
		case !done:
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": "job not finished"})
		case result != nil:
			c.JSON(http.StatusOK, result)
		default:
			c.JSON(http.StatusOK, failure)
		}
	}
}

// jobStatusHandler は GET /status のハンドラーです。
func jobStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Query("jobId"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "jobId required"})
			return
		}
		record, ok := manager.Lookup(jobID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusOK, record.Snapshot())
	}
}
