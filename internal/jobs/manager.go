package jobs

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/pdf2zh-engine/internal/config"
	"github.com/yourusername/pdf2zh-engine/internal/pdf"
)

const (
	mirrorTimeout     = 2 * time.Second
	janitorDivisor    = 4
	workerGracePeriod = 5 * time.Second
)

// Manager はジョブの投入と実行、状態管理を担います。
type Manager struct {
	cfg        *config.Config
	registry   *Registry
	translator pdf.Translator
	mirror     StatusMirror
	logger     *logrus.Logger
	defaults   pdf.JobDefaults

	ctx           context.Context
	cancel        context.CancelFunc
	janitorCancel context.CancelFunc
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// NewManager は Manager を初期化します。mirror は nil でも構いません。
func NewManager(cfg *config.Config, registry *Registry, translator pdf.Translator, mirror StatusMirror, logger *logrus.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if registry == nil {
		return nil, errors.New("registry is nil")
	}
	if translator == nil {
		return nil, errors.New("translator is nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:        cfg,
		registry:   registry,
		translator: translator,
		mirror:     mirror,
		logger:     logger,
		defaults: pdf.JobDefaults{
			LangIn:         cfg.DefaultLangIn,
			LangOut:        cfg.DefaultLangOut,
			QPS:            cfg.DefaultQPS,
			Threads:        cfg.DefaultThreads,
			ReportInterval: 1.0,
		},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// StartJanitor は保持期間が設定されている場合に完了ジョブの掃除を開始します。
func (m *Manager) StartJanitor() {
	ttl := m.cfg.JobExpiry()
	if ttl <= 0 || m.janitorCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.janitorCancel = cancel
	go m.registry.RunJanitor(ctx, ttl, ttl/janitorDivisor, m.logger)
}

// Schedule はジョブを登録して実行を開始し、ジョブIDを返します。
// ジョブはリクエストの ctx とは独立に実行されます。
func (m *Manager) Schedule(ctx context.Context, req *pdf.TranslateRequest) (string, error) {
	if req == nil {
		return "", errors.New("request is nil")
	}
	if err := m.ctx.Err(); err != nil {
		return "", errors.New("manager is shutting down")
	}

	rec := m.registry.Create()
	m.publish(rec)

	m.wg.Add(1)
	go m.run(rec, req)

	m.logger.WithFields(logrus.Fields{
		"job_id":  rec.ID(),
		"service": req.Service,
	}).Info("job accepted")
	return rec.ID(), nil
}

// Lookup は jobID に対応する Record を返します。
func (m *Manager) Lookup(jobID string) (*Record, bool) {
	return m.registry.Get(jobID)
}

// EventPollInterval は SSE 読み出し時の待機間隔を返します。
func (m *Manager) EventPollInterval() time.Duration {
	if m.cfg.EventPollInterval <= 0 {
		return time.Second
	}
	return m.cfg.EventPollInterval
}

// Shutdown は実行中のジョブの完了を待ちます。ctx が先に終わった場合はジョブを中断し、
// ワーカーが後片付けを終えるまで一定時間待ってからミラーを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	var shutdownErr error
	m.closeOnce.Do(func() {
		if m.janitorCancel != nil {
			m.janitorCancel()
		}

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			m.cancel()
		case <-ctx.Done():
			shutdownErr = ctx.Err()
			m.cancel()
			// 中断したワーカーが作業ディレクトリを消し終えるまで待つ
			select {
			case <-done:
			case <-time.After(workerGracePeriod):
				m.logger.Warn("workers did not stop within the grace period")
			}
		}

		if closer, ok := m.mirror.(io.Closer); ok {
			if err := closer.Close(); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}

func (m *Manager) publish(rec *Record) {
	if m.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := m.mirror.Publish(ctx, rec.Snapshot()); err != nil {
		m.logger.WithError(err).WithField("job_id", rec.ID()).Warn("failed to mirror job status")
	}
}
