package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	scierrors "github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// ZerologProvider はzerologを出力先とするLoggerProviderです。
type ZerologProvider struct {
	base  zerolog.Logger
	level atomic.Int32
}

// NewZerologProvider は標準エラー出力へJSONを書くプロバイダを作成します。
func NewZerologProvider(level Level) *ZerologProvider {
	return NewZerologProviderWithWriter(os.Stderr, level, false)
}

// NewZerologProviderWithWriter は出力先と形式を指定してプロバイダを作成します。
// console がtrueの場合は人間向けのConsoleWriterで整形します。
func NewZerologProviderWithWriter(w io.Writer, level Level, console bool) *ZerologProvider {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	p := &ZerologProvider{
		base: zerolog.New(w).With().Timestamp().Logger(),
	}
	p.level.Store(int32(level))
	return p
}

func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: p.base, provider: p}
}

func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{zl: p.base.With().Str(ComponentKey, name).Logger(), provider: p}
}

func (p *ZerologProvider) SetLevel(level Level) {
	p.level.Store(int32(level))
}

func (p *ZerologProvider) currentLevel() Level {
	return Level(p.level.Load())
}

type zerologLogger struct {
	zl       zerolog.Logger
	provider *ZerologProvider
}

func (l *zerologLogger) Debug(msg string, fields ...any) {
	l.emit(LevelDebug, l.zl.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...any) {
	l.emit(LevelInfo, l.zl.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...any) {
	l.emit(LevelWarn, l.zl.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...any) {
	l.emit(LevelError, l.zl.Error(), msg, fields)
}

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for _, kv := range pairs(fields) {
		if err, ok := kv.value.(error); ok {
			ctx = ctx.AnErr(kv.key, err)
			continue
		}
		ctx = ctx.Interface(kv.key, kv.value)
	}
	return &zerologLogger{zl: ctx.Logger(), provider: l.provider}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= l.provider.currentLevel()
}

func (l *zerologLogger) emit(level Level, e *zerolog.Event, msg string, fields []any) {
	if level < l.provider.currentLevel() {
		e.Discard()
		return
	}
	for _, kv := range pairs(fields) {
		switch v := kv.value.(type) {
		case zerolog.LogObjectMarshaler:
			e.Object(kv.key, v)
		case error:
			e.AnErr(kv.key, v)
			if kv.key == ErrAttrKey {
				if st := extractStacktrace(v); st != "" {
					e.Str(StacktraceKey, st)
				}
			}
		default:
			e.Interface(kv.key, v)
		}
	}
	e.Msg(msg)
}

type field struct {
	key   string
	value any
}

// pairs はフィールド列をキーと値の組に分解します。
// 先頭がerrorの場合は "error" キーとして扱います。
func pairs(fields []any) []field {
	var out []field
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			out = append(out, field{key: ErrAttrKey, value: err})
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		out = append(out, field{key: fmt.Sprint(fields[i]), value: fields[i+1]})
	}
	if len(fields)%2 == 1 {
		out = append(out, field{key: "!BADKEY", value: fields[len(fields)-1]})
	}
	return out
}

// extractStacktrace はcockroachdb/errorsが付与したスタックトレースを取り出します。
func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}

// InstallWarningHook はpkg/errors.Warnの出力先をloggerに切り替えます。
func InstallWarningHook(logger Logger) {
	scierrors.SetZerologWarnFunc(func(w error) {
		logger.Warn(w.Error(), "warning", w)
	})
}
