// Package logger is the bot's structured logging API. It wraps zap so that
// callers build fields through this package and never import zap.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a log severity. The zero value is info.
type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel is case-insensitive. Unknown names map to info.
func ParseLevel(s string) Level {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return LevelInfo
}

// Field is one structured key-value pair.
type Field = zap.Field

func String(key, value string) Field             { return zap.String(key, value) }
func Int(key string, value int) Field            { return zap.Int(key, value) }
func Int64(key string, value int64) Field        { return zap.Int64(key, value) }
func Bool(key string, value bool) Field          { return zap.Bool(key, value) }
func Duration(key string, d time.Duration) Field { return zap.Duration(key, d) }
func Time(key string, t time.Time) Field         { return zap.Time(key, t) }
func Any(key string, value any) Field            { return zap.Any(key, value) }

// Err logs err's message under "error". A nil err adds nothing.
func Err(err error) Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", err.Error())
}

// Options configures New. The zero value writes JSON at info level to
// stdout.
type Options struct {
	Output    io.Writer
	Level     Level
	Format    string // "json" or "console"
	AddCaller bool
}

// Logger is a leveled structured logger. It is safe for concurrent use.
type Logger struct {
	z *zap.Logger
}

// New builds a Logger from opts.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey, ec.MessageKey = "timestamp", "message"
	ec.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder

	enc := zapcore.NewJSONEncoder(ec)
	if strings.EqualFold(opts.Format, "console") {
		enc = zapcore.NewConsoleEncoder(ec)
	}

	var zo []zap.Option
	if opts.AddCaller {
		zo = append(zo, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &Logger{z: zap.New(zapcore.NewCore(enc, zapcore.AddSync(out), opts.Level), zo...)}
}

// Nop discards everything.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger { return &Logger{z: l.z.With(fields...)} }

// WithRequestID tags the child logger with an HTTP request id.
func (l *Logger) WithRequestID(id string) *Logger { return l.With(String("request_id", id)) }

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.z.Sync() }

type ctxKey struct{}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by WithContext, or a logger that
// discards everything.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}

// Domain field helpers.
func GuildID(id string) Field       { return String("guild_id", id) }
func UserID(id string) Field        { return String("user_id", id) }
func XPAmount(xp int64) Field       { return Int64("xp_amount", xp) }
func LevelNum(level int) Field      { return Int("level", level) }
func CommandName(name string) Field { return String("command", name) }
func Component(name string) Field   { return String("component", name) }
func Operation(name string) Field   { return String("operation", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
