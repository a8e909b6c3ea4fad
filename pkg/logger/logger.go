// Package logger 提供结构化日志，自动附带 Context 中的追踪与业务字段
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// ContextKey 从 context 提取日志字段的键类型
type ContextKey string

const (
	TraceIDKey   ContextKey = "trace_id"
	SpanIDKey    ContextKey = "span_id"
	RequestIDKey ContextKey = "request_id"
	TaskKey      ContextKey = "task"
	ProviderKey  ContextKey = "provider"
	RootIDKey    ContextKey = "root_id"
)

// contextKeys FromContext 提取的全部字段，键名即属性名
var contextKeys = []ContextKey{
	TraceIDKey, SpanIDKey, RequestIDKey, TaskKey, ProviderKey, RootIDKey,
}

var defaultLogger *slog.Logger

// Init 初始化进程级日志器；format 取 json 或 text
func Init(level string, format string) {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext 返回带上下文字段的日志器
func FromContext(ctx context.Context) *slog.Logger {
	if defaultLogger == nil {
		Init("info", "json")
	}
	l := defaultLogger
	for _, key := range contextKeys {
		if v := ctx.Value(key); v != nil {
			l = l.With(string(key), v)
		}
	}
	return l
}

// WithContext 注入日志字段到 context
func WithContext(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

func Debug(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Debug(msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Info(msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Warn(msg, args...)
}

// Error err 为空时仅记录消息
func Error(ctx context.Context, msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	FromContext(ctx).Error(msg, args...)
}

// Fatal 记录错误并退出进程
func Fatal(ctx context.Context, msg string, err error, args ...any) {
	Error(ctx, msg, err, args...)
	os.Exit(1)
}
