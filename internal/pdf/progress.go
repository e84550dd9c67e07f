package pdf

import (
	"fmt"
	"strings"
)

// RawEvent は翻訳バックエンドが送出する未加工の進捗イベントです。
type RawEvent map[string]any

// EventSink は RawEvent の受け取り口です。翻訳中に複数回呼ばれます。
type EventSink func(RawEvent)

// Type はイベント種別を返します。文字列でない場合は空文字です。
func (e RawEvent) Type() string {
	s, _ := e["type"].(string)
	return strings.TrimSpace(s)
}

// Text は key の値を表示用文字列として返します。値が無いかゼロ値なら空文字です。
func (e RawEvent) Text(key string) string {
	switch v := e[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if !v {
			return ""
		}
		return "true"
	case float64:
		if v == 0 {
			return ""
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}

func emitEvent(sink EventSink, ev RawEvent) {
	if sink == nil || ev == nil {
		return
	}
	sink(ev)
}
