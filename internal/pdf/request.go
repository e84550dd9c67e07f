package pdf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	defaultService        = "google"
	missingServiceDisplay = "None"
)

// ErrMissingSourcePath は翻訳対象のパスが指定されていないことを表します。
var ErrMissingSourcePath = errors.New("source_path required")

// TranslateRequest は POST /translate のリクエストボディを正規化したものです。
// Service は受信したままの値で、比較時に正規化します。
type TranslateRequest struct {
	SourcePath     string
	SourceFilename string
	Service        string
	ServiceGiven   bool
	LangIn         string
	LangOut        string
}

// JobDefaults は BuildJob がリクエストに無い項目へ適用する既定値です。
type JobDefaults struct {
	LangIn         string
	LangOut        string
	QPS            int
	Threads        int
	ReportInterval float64
}

// ParseTranslateRequest はリクエストボディを解釈します。
// 空のボディは空オブジェクトとして扱います。snake_case と camelCase の両方を受け付けます。
// source_path が無ければ inputs があっても ErrMissingSourcePath を返します。
func ParseTranslateRequest(body []byte) (*TranslateRequest, error) {
	payload := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}

	req := &TranslateRequest{
		SourcePath:     firstString(payload, "source_path", "sourcePath"),
		SourceFilename: firstString(payload, "source_filename", "sourceFilename"),
		LangIn:         firstString(payload, "lang_in", "langIn"),
		LangOut:        firstString(payload, "lang_out", "langOut"),
	}
	if req.SourcePath == "" {
		return nil, ErrMissingSourcePath
	}

	if raw, ok := payload["service"]; ok && raw != nil {
		req.ServiceGiven = true
		if s, isString := raw.(string); isString {
			req.Service = s
		} else {
			req.Service = fmt.Sprint(raw)
		}
	}
	return req, nil
}

// DisplayService はエラーメッセージ用に受信したサービス名を返します。未指定なら "None" です。
func (r *TranslateRequest) DisplayService() string {
	if !r.ServiceGiven {
		return missingServiceDisplay
	}
	return r.Service
}

// BuildJob はリクエストと作業ディレクトリから JobSpec を組み立てます。
// 返り値の文字列は成果物ファイル名の元になる元ファイル名です。
func BuildJob(req *TranslateRequest, outputDir string, defaults JobDefaults) (*JobSpec, string, error) {
	if req == nil {
		return nil, "", ErrMissingSourcePath
	}

	service := strings.TrimSpace(req.Service)
	if service == "" {
		service = defaultService
	}
	langIn := orDefault(req.LangIn, defaults.LangIn)
	langOut := orDefault(req.LangOut, defaults.LangOut)
	threads := defaults.Threads
	if threads <= 0 {
		threads = defaultThreads
	}
	interval := defaults.ReportInterval
	if interval <= 0 {
		interval = defaultReportInterval
	}

	raw := map[string]any{
		"inputs":         []any{req.SourcePath},
		"outputDir":      outputDir,
		"service":        service,
		"dual":           true,
		"mono":           false,
		"reportInterval": interval,
		"threads":        threads,
	}
	if langIn != "" {
		raw["langIn"] = langIn
	}
	if langOut != "" {
		raw["langOut"] = langOut
	}
	if defaults.QPS > 0 {
		raw["qps"] = defaults.QPS
	}

	spec, err := ValidateJob(raw)
	if err != nil {
		return nil, "", err
	}

	name := strings.TrimSpace(req.SourceFilename)
	if name == "" {
		name = filepath.Base(req.SourcePath)
	}
	return spec, name, nil
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := payload[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return strings.TrimSpace(def)
}
