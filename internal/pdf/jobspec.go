package pdf

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

const (
	defaultThreads        = 4
	defaultReportInterval = 1.0
)

// JobSpec は検証済みの翻訳ジョブ記述です。ValidateJob からのみ生成し、生成後は変更しません。
type JobSpec struct {
	Inputs         []string `json:"inputs"`
	OutputDir      string   `json:"outputDir"`
	Service        string   `json:"service"`
	LangIn         string   `json:"langIn,omitempty"`
	LangOut        string   `json:"langOut,omitempty"`
	Pages          string   `json:"pages,omitempty"`
	Dual           bool     `json:"dual"`
	Mono           bool     `json:"mono"`
	QPS            int      `json:"qps,omitempty"`
	ReportInterval float64  `json:"reportInterval"`
	IgnoreCache    bool     `json:"ignoreCache"`
	Threads        int      `json:"threads"`
}

var jobSpecFields = map[string]struct{}{
	"inputs":         {},
	"outputDir":      {},
	"service":        {},
	"langIn":         {},
	"langOut":        {},
	"pages":          {},
	"dual":           {},
	"mono":           {},
	"qps":            {},
	"reportInterval": {},
	"ignoreCache":    {},
	"threads":        {},
}

var rangeValidator = validator.New()

// ValidateJob は信頼できないジョブ記述を検証し、正規化済みの JobSpec を返します。
// 最初に見つかった問題だけを *ValidationError として返します。
// outputDir の作成失敗は検証エラーではなく I/O エラーとして返ります。
func ValidateJob(raw map[string]any) (*JobSpec, error) {
	if err := rejectUnknownFields(raw); err != nil {
		return nil, err
	}

	inputs, err := validateInputs(raw["inputs"])
	if err != nil {
		return nil, err
	}
	for i, in := range inputs {
		resolved, err := resolveInput(i, in)
		if err != nil {
			return nil, err
		}
		inputs[i] = resolved
	}

	outputDir, err := prepareOutputDir(raw["outputDir"])
	if err != nil {
		return nil, err
	}

	service, err := normalizeService(raw["service"])
	if err != nil {
		return nil, err
	}

	spec := &JobSpec{
		Inputs:    inputs,
		OutputDir: outputDir,
		Service:   service,
	}

	if spec.LangIn, err = optionalString(raw, "langIn"); err != nil {
		return nil, err
	}
	if spec.LangOut, err = optionalString(raw, "langOut"); err != nil {
		return nil, err
	}
	if spec.Pages, err = optionalString(raw, "pages"); err != nil {
		return nil, err
	}

	if spec.QPS, err = intField(raw, "qps", 0); err != nil {
		return nil, err
	}
	if _, present := raw["qps"]; present && raw["qps"] != nil {
		if err := checkPositive("qps", spec.QPS); err != nil {
			return nil, err
		}
	}
	if spec.Threads, err = intField(raw, "threads", defaultThreads); err != nil {
		return nil, err
	}
	if err := checkPositive("threads", spec.Threads); err != nil {
		return nil, err
	}
	if spec.ReportInterval, err = floatField(raw, "reportInterval", defaultReportInterval); err != nil {
		return nil, err
	}
	if err := checkPositive("reportInterval", spec.ReportInterval); err != nil {
		return nil, err
	}

	if spec.Dual, err = boolField(raw, "dual", true); err != nil {
		return nil, err
	}
	if spec.Mono, err = boolField(raw, "mono", true); err != nil {
		return nil, err
	}
	if spec.IgnoreCache, err = boolField(raw, "ignoreCache", false); err != nil {
		return nil, err
	}

	if !spec.Dual && !spec.Mono {
		return nil, invalid("dual", "Cannot disable both dual and mono")
	}

	return spec, nil
}

func rejectUnknownFields(raw map[string]any) error {
	unknown := make([]string, 0)
	for key := range raw {
		if _, ok := jobSpecFields[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return invalid(unknown[0], "extra fields not permitted")
}

func validateInputs(v any) ([]string, error) {
	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		items = make([]any, len(list))
		for i, s := range list {
			items[i] = s
		}
	default:
		return nil, invalid("inputs", "inputs must be a non-empty array of PDF paths")
	}
	if len(items) == 0 {
		return nil, invalid("inputs", "inputs must be a non-empty array of PDF paths")
	}

	cleaned := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, invalid(fmt.Sprintf("inputs[%d]", i), "inputs[%d] must be a string", i)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, invalid(fmt.Sprintf("inputs[%d]", i), "inputs[%d] must be non-empty", i)
		}
		cleaned = append(cleaned, s)
	}
	return cleaned, nil
}

func resolveInput(index int, raw string) (string, error) {
	field := fmt.Sprintf("inputs[%d]", index)

	abs, err := filepath.Abs(expandHome(raw))
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve input path %s", raw)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", invalid(field, "Input file does not exist: %s", raw)
		}
		return "", errors.Wrapf(err, "failed to resolve input path %s", raw)
	}
	if strings.ToLower(filepath.Ext(resolved)) != ".pdf" {
		return "", invalid(field, "Input file is not a PDF: %s", resolved)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat input %s", resolved)
	}
	if info.IsDir() {
		return "", invalid(field, "Input path is a directory: %s", resolved)
	}
	return resolved, nil
}

func prepareOutputDir(v any) (string, error) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", invalid("outputDir", "outputDir must be a non-empty string")
	}
	abs, err := filepath.Abs(expandHome(strings.TrimSpace(s)))
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve outputDir %s", s)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create outputDir %s", abs)
	}
	return abs, nil
}

func normalizeService(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", invalid("service", "service must be a string")
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", invalid("service", "service must be non-empty")
	}
	return s, nil
}

func optionalString(raw map[string]any, field string) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(field, "%s must be a string", field)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid(field, "%s must be non-empty when provided", field)
	}
	return s, nil
}

func intField(raw map[string]any, field string, def int) (int, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toNumber(v)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) || f >= math.MaxInt || f < math.MinInt {
		return 0, invalid(field, "%s must be an integer", field)
	}
	return int(f), nil
}

func floatField(raw map[string]any, field string, def float64) (float64, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toNumber(v)
	if !ok || math.IsInf(f, 0) {
		return 0, invalid(field, "%s must be a number", field)
	}
	return f, nil
}

func boolField(raw map[string]any, field string, def bool) (bool, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalid(field, "%s must be a boolean", field)
	}
	return b, nil
}

func checkPositive(field string, value any) error {
	if err := rangeValidator.Var(value, "gt=0"); err != nil {
		return invalid(field, "%s must be > 0", field)
	}
	return nil
}

// toNumber は JSON 由来の数値表現を float64 に揃えます。真偽値や文字列は数値として扱いません。
func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
