package jobs

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/yourusername/pdf2zh-engine/internal/pdf"
)

const (
	rawTypeStart       = "start"
	rawTypeEngineStart = "engine_start"
	rawTypeFinish      = "finish"
	defaultStage       = "progress"
	finishStage        = "finish"
)

// 進捗値を探すキーの優先順です。
var progressKeys = []string{"overall_progress", "stage_progress", "progress"}

type rawKind int

const (
	rawIgnored rawKind = iota
	rawMeasured
	rawStarted
)

type classifiedEvent struct {
	kind   rawKind
	value  float64
	finish bool
}

func classify(raw pdf.RawEvent) classifiedEvent {
	c := classifiedEvent{kind: rawIgnored, finish: raw.Type() == rawTypeFinish}
	if v, ok := progressValue(raw); ok {
		c.kind = rawMeasured
		c.value = v
		return c
	}
	switch raw.Type() {
	case rawTypeStart, rawTypeEngineStart:
		c.kind = rawStarted
	}
	return c
}

// NormalizeProgress は生イベントを進捗イベントに変換します。進捗を持たないイベントは ok=false です。
func NormalizeProgress(raw pdf.RawEvent) (ProgressEvent, bool) {
	if raw == nil {
		return ProgressEvent{}, false
	}
	c := classify(raw)
	var pct int
	switch c.kind {
	case rawMeasured:
		pct = toPercent(c.value)
	case rawStarted:
		pct = 0
	default:
		return ProgressEvent{}, false
	}

	stage := raw.Text("stage")
	if stage == "" {
		stage = raw.Text("type")
	}
	if stage == "" {
		stage = defaultStage
	}
	return ProgressEvent{
		Type:    EventProgress,
		Pct:     pct,
		Stage:   stage,
		Message: raw.Text("message"),
	}, true
}

// NormalizeEvents は生イベント1件から配信するイベント列を作ります。
// finish マーカーには pct 100 の done イベントが続きます。
func NormalizeEvents(raw pdf.RawEvent) []ProgressEvent {
	var out []ProgressEvent
	if ev, ok := NormalizeProgress(raw); ok {
		out = append(out, ev)
	}
	if raw != nil && classify(raw).finish {
		out = append(out, ProgressEvent{Type: EventDone, Pct: 100, Stage: finishStage})
	}
	return out
}

func progressValue(raw pdf.RawEvent) (float64, bool) {
	for _, key := range progressKeys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if f, ok := numeric(v); ok {
			return f, true
		}
	}
	return 0, false
}

func numeric(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toPercent は 0-1 の割合か 0-100 の百分率を整数の百分率に揃えます。
func toPercent(v float64) int {
	if v <= 1 {
		v *= 100
	}
	pct := math.RoundToEven(v)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return int(pct)
}
