// Package log はchdriskの構造化ログインターフェースを提供します。
//
// Logger はlog/slog互換の最小インターフェースで、実体はzerologで実装されます。
// 学習・評価の各処理は attributes.go の標準キーを使ってフィールドを付与します。
//
//	logger := log.GetLoggerWithName("GridSearchCV").With(
//	    log.ModelNameKey, "SVC",
//	)
//	logger.Info("search finished",
//	    log.CandidatesKey, 20,
//	    log.FoldsKey, 5,
//	)
package log

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Logger はslog互換の構造化ロガーです。
type Logger interface {
	// Debug は詳細な診断情報を出力します。
	Debug(msg string, fields ...any)

	// Info は通常の進行状況を出力します。
	Info(msg string, fields ...any)

	// Warn は処理は継続できるが注意が必要な状況を出力します。
	Warn(msg string, fields ...any)

	// Error はエラーを出力します。
	// 最初のフィールドがerrorの場合は "error" キーとして扱われ、
	// スタックトレースが利用できれば "stacktrace" も付与されます。
	Error(msg string, fields ...any)

	// With はフィールドを事前に設定した新しいLoggerを返します。
	With(fields ...any) Logger

	// Enabled は指定レベルのログが出力されるかを返します。
	Enabled(ctx context.Context, level Level) bool
}

// Level はslog.Levelと互換な値を持つログレベルです。
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel はレベル名（大文字小文字を区別しない）をLevelに変換します。
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %q", level)
	}
}

// ToLogLevel はParseLevelと同じですが、不正な値ではpanicします。
// 設定値が検証済みであることが分かっている箇所で使います。
func ToLogLevel(level string) Level {
	l, err := ParseLevel(level)
	if err != nil {
		panic(err)
	}
	return l
}

// LoggerProvider はLoggerの生成と設定を担います。
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}

var (
	providerMu sync.RWMutex
	provider   LoggerProvider = NewZerologProvider(LevelInfo)
)

// SetProvider はグローバルなLoggerProviderを差し替えます。
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	provider = p
}

// GetProvider は現在のグローバルLoggerProviderを返します。
func GetProvider() LoggerProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return provider
}

// GetLogger はグローバルプロバイダのデフォルトLoggerを返します。
func GetLogger() Logger {
	return GetProvider().GetLogger()
}

// GetLoggerWithName はコンポーネント名付きのLoggerを返します。
func GetLoggerWithName(name string) Logger {
	return GetProvider().GetLoggerWithName(name)
}
