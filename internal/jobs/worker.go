package jobs

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/pdf2zh-engine/internal/pdf"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// run は1ジョブを実行し、結果を Record に記録します。
func (m *Manager) run(rec *Record, req *pdf.TranslateRequest) {
	defer m.wg.Done()
	logger := m.logger.WithField("job_id", rec.ID())

	result, err := m.execute(m.ctx, rec, req, logger)
	if err != nil {
		m.fail(rec, err, logger)
		return
	}
	if err := rec.Complete(result); err != nil {
		logger.WithError(err).Error("failed to record job result")
		return
	}
	m.publish(rec)
	logger.WithField("filename", result.Filename).Info("job finished")
}

func (m *Manager) execute(ctx context.Context, rec *Record, req *pdf.TranslateRequest, logger *logrus.Entry) (result *ResultPayload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job worker panicked: %v", r)
		}
	}()

	ws, err := pdf.NewWorkspace(m.cfg.ScratchDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := ws.Remove(); rmErr != nil {
			logger.WithError(rmErr).Warn("failed to remove workspace")
		}
	}()

	spec, sourceName, err := pdf.BuildJob(req, ws.OutDir, m.defaults)
	if err != nil {
		return nil, err
	}

	rec.markRunning()
	m.publish(rec)
	logger.WithFields(logrus.Fields{"service": spec.Service, "input": spec.Inputs[0]}).Info("job started")

	sink := func(raw pdf.RawEvent) {
		for _, ev := range NormalizeEvents(raw) {
			if rec.Append(ev) {
				m.publish(rec)
			}
		}
	}
	if err := m.translator.Translate(ctx, spec, sink); err != nil {
		return nil, err
	}

	path, err := pdf.LocateArtifact(ws.Dir)
	if err != nil {
		return nil, err
	}
	artifact, err := pdf.ReadArtifact(path)
	if err != nil {
		return nil, err
	}

	return &ResultPayload{
		OK:        true,
		Filename:  pdf.ResultFilename(sourceName),
		PDFBase64: artifact.Base64(),
		Pages:     artifact.Pages,
	}, nil
}

// fail は失敗を Record に記録します。detail にはスタックトレースを含めます。
func (m *Manager) fail(rec *Record, err error, logger *logrus.Entry) {
	detail := errorDetail(err)
	logger.WithError(err).Error("job failed")
	logger.Debug(detail)

	if recErr := rec.Fail(&ErrorPayload{OK: false, Error: err.Error(), Detail: detail}); recErr != nil {
		logger.WithError(recErr).Error("failed to record job failure")
		return
	}
	m.publish(rec)
}

func errorDetail(err error) string {
	var st stackTracer
	if !errors.As(err, &st) {
		err = errors.WithStack(err)
	}
	return fmt.Sprintf("%+v", err)
}
