// Package events is the observability hook of the loader and scheduler.
//
// Producers call the four Observer methods; consumers either implement
// Observer directly, subscribe to a Bus for a stream of Event values, or use
// LogObserver to turn events into structured log lines.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/modloader/internal/logging"
)

// Observer receives discrete loader and scheduler events.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	ModuleLoadStarted(key string)
	ModuleLoadSucceeded(key string, duration time.Duration)
	ModuleLoadFailed(key string, err error, attempt int)
	PreloadSkipped(key string, reason string)
}

// EventType names an event
type EventType string

const (
	EventLoadStarted   EventType = "module_load_started"
	EventLoadSucceeded EventType = "module_load_succeeded"
	EventLoadFailed    EventType = "module_load_failed"
	EventPreloadSkip   EventType = "preload_skipped"
)

// Event is the serialized form of a single observation
type Event struct {
	Type       EventType `json:"type"`
	Key        string    `json:"key"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Nop ignores every event.
type Nop struct{}

func (Nop) ModuleLoadStarted(string) {}
func (Nop) ModuleLoadSucceeded(string, time.Duration) {}
func (Nop) ModuleLoadFailed(string, error, int) {}
func (Nop) PreloadSkipped(string, string) {}

// OrNop returns observer, or Nop when observer is nil.
func OrNop(observer Observer) Observer {
	if observer == nil {
		return Nop{}
	}
	return observer
}

// Multi fans every event out to several observers in order.
type Multi []Observer

func (m Multi) ModuleLoadStarted(key string) {
	for _, o := range m {
		o.ModuleLoadStarted(key)
	}
}

func (m Multi) ModuleLoadSucceeded(key string, duration time.Duration) {
	for _, o := range m {
		o.ModuleLoadSucceeded(key, duration)
	}
}

func (m Multi) ModuleLoadFailed(key string, err error, attempt int) {
	for _, o := range m {
		o.ModuleLoadFailed(key, err, attempt)
	}
}

func (m Multi) PreloadSkipped(key string, reason string) {
	for _, o := range m {
		o.PreloadSkipped(key, reason)
	}
}

// Bus converts observations into Event values and delivers them to
// subscribers. Slow subscribers lose events rather than stalling a load.
type Bus struct {
	subscribers map[chan Event]struct{}
	dropped     int64
	mutex       sync.RWMutex
}

// NewBus creates a bus with no subscribers
func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan Event]struct{})}
}

// Subscribe returns a buffered channel receiving every future event
func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for sub := range b.subscribers {
		if sub == ch {
			delete(b.subscribers, sub)
			close(sub)
			return
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full
func (b *Bus) Dropped() int64 {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.dropped
}

// Publish delivers event to every subscriber without blocking
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			b.dropped++
		}
	}
}

func (b *Bus) ModuleLoadStarted(key string) {
	b.Publish(Event{Type: EventLoadStarted, Key: key})
}

func (b *Bus) ModuleLoadSucceeded(key string, duration time.Duration) {
	b.Publish(Event{Type: EventLoadSucceeded, Key: key, DurationMs: duration.Milliseconds()})
}

func (b *Bus) ModuleLoadFailed(key string, err error, attempt int) {
	event := Event{Type: EventLoadFailed, Key: key, Attempt: attempt}
	if err != nil {
		event.Error = err.Error()
	}
	b.Publish(event)
}

func (b *Bus) PreloadSkipped(key string, reason string) {
	b.Publish(Event{Type: EventPreloadSkip, Key: key, Reason: reason})
}

// LogObserver writes each event as a structured log line
type LogObserver struct {
	logger logging.Logger
}

// NewLogObserver creates an observer logging through logger
func NewLogObserver(logger logging.Logger) *LogObserver {
	return &LogObserver{logger: logging.OrNop(logger).WithComponent("events")}
}

func (l *LogObserver) ModuleLoadStarted(key string) {
	l.logger.Debug(context.Background(), "Module load started", "module", key)
}

func (l *LogObserver) ModuleLoadSucceeded(key string, duration time.Duration) {
	l.logger.Info(context.Background(), "Module loaded",
		"module", key,
		"duration_ms", duration.Milliseconds())
}

func (l *LogObserver) ModuleLoadFailed(key string, err error, attempt int) {
	l.logger.Warn(context.Background(), err, "Module load failed",
		"module", key,
		"attempt", attempt)
}

func (l *LogObserver) PreloadSkipped(key string, reason string) {
	l.logger.Debug(context.Background(), "Preload skipped",
		"module", key,
		"reason", reason)
}
