package booth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Level is the severity of a notification
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a user-facing message
type Notification struct {
	Level   Level
	Title   string
	Message string
}

// Notifier presents notifications to the operator. It is the only place
// errors are rendered for humans.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notification)

// Notify calls f
func (f NotifierFunc) Notify(n Notification) { f(n) }

// Info builds an informational notification
func Info(title, message string) Notification {
	return Notification{Level: LevelInfo, Title: title, Message: message}
}

// Error builds an error notification
func Error(message string) Notification {
	return Notification{Level: LevelError, Title: "Error", Message: message}
}

// LogNotifier writes notifications to a structured logger
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n at a level matching its severity
func (l LogNotifier) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	level := slog.LevelInfo
	if n.Level == LevelError {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, n.Title, slog.String("message", n.Message))
}

// WriterNotifier prints one line per notification
type WriterNotifier struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriterNotifier creates a notifier printing to w
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// Notify prints n as "[Title] message"
func (w *WriterNotifier) Notify(n Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prefix := ""
	if n.Level == LevelError {
		prefix = "! "
	}
	fmt.Fprintf(w.w, "%s[%s] %s\n", prefix, n.Title, n.Message)
}

// multiNotifier fans a notification out to several notifiers
type multiNotifier []Notifier

// MultiNotifier returns a notifier delivering to every non-nil notifier
func MultiNotifier(notifiers ...Notifier) Notifier {
	var out multiNotifier
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m multiNotifier) Notify(n Notification) {
	for _, notifier := range m {
		notifier.Notify(n)
	}
}
