// Package notify is the toast channel user-facing failures and results are
// reported through. A Queue is created once at startup and handed to every
// component that reports; nothing here is global.
package notify

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is a toast severity.
type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notifier receives user-facing messages.
type Notifier interface {
	Notify(level Level, message string)
}

// Notifyf formats and sends a message through n. A nil n drops it.
func Notifyf(n Notifier, level Level, format string, args ...any) {
	if n == nil {
		return
	}
	n.Notify(level, fmt.Sprintf(format, args...))
}

// Toast is one queued message.
type Toast struct {
	ID      uint64
	Level   Level
	Message string
	Created time.Time
	Expires time.Time
}

const (
	defaultTTL    = 5 * time.Second
	defaultMaxLen = 5
)

// Queue keeps the most recent toasts until they expire.
type Queue struct {
	mu     sync.Mutex
	toasts []Toast
	ttl    time.Duration
	max    int
	next   uint64
	now    func() time.Time
}

// NewQueue returns a queue holding at most max toasts for ttl each. Zero
// values pick defaults.
func NewQueue(ttl time.Duration, max int) *Queue {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if max <= 0 {
		max = defaultMaxLen
	}
	return &Queue{ttl: ttl, max: max, now: time.Now}
}

func (q *Queue) Notify(level Level, message string) {
	if q == nil || message == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.next++
	ttl := q.ttl
	if level == Error {
		ttl *= 2
	}
	q.toasts = append(q.toasts, Toast{
		ID:      q.next,
		Level:   level,
		Message: message,
		Created: now,
		Expires: now.Add(ttl),
	})
	if over := len(q.toasts) - q.max; over > 0 {
		q.toasts = append([]Toast(nil), q.toasts[over:]...)
	}
}

// Active returns unexpired toasts, oldest first, and prunes the rest.
func (q *Queue) Active() []Toast {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	kept := q.toasts[:0]
	for _, t := range q.toasts {
		if now.Before(t.Expires) {
			kept = append(kept, t)
		}
	}
	q.toasts = kept
	return append([]Toast(nil), kept...)
}

// Dismiss removes one toast.
func (q *Queue) Dismiss(id uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.toasts {
		if t.ID == id {
			q.toasts = append(q.toasts[:i], q.toasts[i+1:]...)
			return
		}
	}
}

// Latest returns the newest unexpired toast.
func (q *Queue) Latest() (Toast, bool) {
	active := q.Active()
	if len(active) == 0 {
		return Toast{}, false
	}
	return active[len(active)-1], true
}

// Log mirrors notifications into a zap logger.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Notify(level Level, message string) {
	if l.Logger == nil {
		return
	}
	switch level {
	case Error:
		l.Logger.Error("notification", zap.String("message", message))
	case Warning:
		l.Logger.Warn("notification", zap.String("message", message))
	default:
		l.Logger.Info("notification", zap.String("message", message), zap.Stringer("level", level))
	}
}

// Multi fans a message out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(level Level, message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(level, message)
		}
	}
}
