package events

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/conneroisu/modloader/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishToSubscribers(t *testing.T) {
	bus := NewBus()
	first := bus.Subscribe(4)
	second := bus.Subscribe(4)

	bus.ModuleLoadStarted("dashboard")
	bus.ModuleLoadSucceeded("dashboard", 15*time.Millisecond)
	bus.ModuleLoadFailed("reports", fmt.Errorf("timeout"), 2)
	bus.PreloadSkipped("settings", "already loaded")

	for _, ch := range []<-chan Event{first, second} {
		started := <-ch
		assert.Equal(t, EventLoadStarted, started.Type)
		assert.Equal(t, "dashboard", started.Key)
		assert.False(t, started.Timestamp.IsZero())

		succeeded := <-ch
		assert.Equal(t, EventLoadSucceeded, succeeded.Type)
		assert.Equal(t, int64(15), succeeded.DurationMs)

		failed := <-ch
		assert.Equal(t, EventLoadFailed, failed.Type)
		assert.Equal(t, "timeout", failed.Error)
		assert.Equal(t, 2, failed.Attempt)

		skipped := <-ch
		assert.Equal(t, EventPreloadSkip, skipped.Type)
		assert.Equal(t, "already loaded", skipped.Reason)
	}
}

func TestBus_SlowSubscriberDropsEvents(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(1)

	bus.ModuleLoadStarted("a")
	bus.ModuleLoadStarted("b")
	bus.ModuleLoadStarted("c")

	assert.Equal(t, int64(2), bus.Dropped())
	event := <-ch
	assert.Equal(t, "a", event.Key)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(0)

	bus.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe is harmless
	bus.ModuleLoadStarted("a")
	assert.Equal(t, int64(0), bus.Dropped())
}

func TestMulti_FansOut(t *testing.T) {
	a := NewBus()
	b := NewBus()
	chA := a.Subscribe(1)
	chB := b.Subscribe(1)

	Multi{a, b, Nop{}}.PreloadSkipped("x", "offline")

	assert.Equal(t, "x", (<-chA).Key)
	assert.Equal(t, "x", (<-chB).Key)
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))

	bus := NewBus()
	assert.Same(t, bus, OrNop(bus))
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelDebug,
		Format: "json",
		Output: &buf,
	})
	observer := NewLogObserver(logger)

	observer.ModuleLoadStarted("dashboard")
	observer.ModuleLoadSucceeded("dashboard", time.Millisecond)
	observer.ModuleLoadFailed("reports", fmt.Errorf("404"), 1)
	observer.PreloadSkipped("settings", "loading")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Contains(t, string(lines[0]), `"module":"dashboard"`)
	assert.Contains(t, string(lines[1]), `"msg":"Module loaded"`)
	assert.Contains(t, string(lines[2]), `"error":"404"`)
	assert.Contains(t, string(lines[3]), `"reason":"loading"`)
	assert.Contains(t, string(lines[3]), `"component":"events"`)
}
