package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError はrecoverしたpanicから作られたエラーです。
// パイプラインの各ステージはSafeExecute経由で実行され、
// 想定外のpanicはこの型に変換されて呼び出し元へ返ります。
type PanicError struct {
	// PanicValue はpanic()に渡された値
	PanicValue interface{}

	// StackTrace はpanic発生時のスタックトレース
	StackTrace string

	// Operation はpanicを回収した処理の名前（ステージ名など）
	Operation string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// Unwrap はpanic値がerrorであればそれを返します。
func (e *PanicError) Unwrap() error {
	if err, ok := e.PanicValue.(error); ok {
		return err
	}
	return nil
}

// String はスタックトレースを含む詳細を返します。
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s", e.Operation, e.PanicValue, e.StackTrace)
}

// NewPanicError は新しいPanicErrorを作成します。
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover はdeferで使い、panicをエラーに変換します。
//
//	func (r *Runner) stage() (err error) {
//	    defer errors.Recover(&err, "rebalance")
//	    ...
//	}
//
// 既にエラーが設定されている場合は、そのエラーをpanic情報でラップします。
func Recover(err *error, operation string) {
	if r := recover(); r != nil {
		if *err != nil {
			*err = fmt.Errorf("panic in %s: %v (original error: %w)", operation, r, *err)
			return
		}
		*err = NewPanicError(operation, r)
	}
}

// SafeExecute はfnを実行し、panicが起きればPanicErrorとして返します。
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
