package pdf

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error はコード付きのドメインエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError はスタックトレース付きで Error を生成します。
func newError(code, message string, err error) error {
	return errors.WithStack(&Error{Code: code, Message: message, Err: err})
}

// ValidationError はジョブ記述の検証失敗を表します。Field は問題のあるフィールド名です。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
