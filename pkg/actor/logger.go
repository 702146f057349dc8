package actor

import (
	"context"
	"errors"
	"log/slog"
)

// Logger 运行时调用的日志接口
//
// 核心只在调试、告警、错误和崩溃路径上调用它，格式由实现决定。
// 邮箱丢弃消息的日志也通过它输出。
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	// Crash 记录 Actor 崩溃，err 通常为 *PanicError 或 *LinkedExitError
	Crash(msg string, err error, args ...any)
}

// SlogLogger 基于 log/slog 的默认实现
type SlogLogger struct {
	*slog.Logger
}

// NewSlogLogger 包装 slog.Logger，nil 时使用 slog.Default()
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{Logger: l}
}

// Crash 以 Error 级别记录，panic 时附带调用栈
func (l *SlogLogger) Crash(msg string, err error, args ...any) {
	attrs := append([]any{"error", err}, args...)
	var perr *PanicError
	if errors.As(err, &perr) {
		attrs = append(attrs, "stack", string(perr.Stack))
	}
	l.Log(context.Background(), slog.LevelError, msg, attrs...)
}
