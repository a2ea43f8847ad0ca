package logging

import (
	"container/ring"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultBufferSize is the number of log lines to keep in memory.
const (
	DefaultBufferSize = 500
	subscriberBuffer  = 256
)

var (
	broadcaster *LogBroadcaster
	broadcastMu sync.Once
)

// LogBroadcaster captures log writes, buffers them, and fans them out to
// dashboard subscribers.
type LogBroadcaster struct {
	mu          sync.RWMutex
	buffer      *ring.Ring
	subscribers map[string]chan string
	dropped     map[string]int
	closed      bool
}

// GetBroadcaster returns the singleton broadcaster instance.
func GetBroadcaster() *LogBroadcaster {
	broadcastMu.Do(func() {
		broadcaster = newBroadcaster(DefaultBufferSize)
	})
	return broadcaster
}

func newBroadcaster(size int) *LogBroadcaster {
	return &LogBroadcaster{
		buffer:      ring.New(size),
		subscribers: make(map[string]chan string),
		dropped:     make(map[string]int),
	}
}

// Write implements io.Writer. It writes to the internal buffer and notifies subscribers.
func (b *LogBroadcaster) Write(p []byte) (n int, err error) {
	msg := string(p)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer.Value = msg
	b.buffer = b.buffer.Next()

	for id, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			// Slow consumer; never block the logger.
			b.dropped[id]++
		}
	}

	return len(p), nil
}

// Subscribe adds a new subscriber and returns a channel of log lines
// plus a snapshot of the current history.
func (b *LogBroadcaster) Subscribe() (string, chan string, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan string, subscriberBuffer)
	if b.closed {
		close(ch)
		return id, ch, nil
	}
	b.subscribers[id] = ch

	return id, ch, b.historyLocked()
}

// Unsubscribe removes a subscriber and reports how many lines it missed.
func (b *LogBroadcaster) Unsubscribe(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := b.dropped[id]
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	delete(b.dropped, id)
	return dropped
}

// GetHistory returns the current in-memory log history.
func (b *LogBroadcaster) GetHistory() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.historyLocked()
}

// Shutdown closes every subscriber channel.
func (b *LogBroadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.closed = true
}

func (b *LogBroadcaster) historyLocked() []string {
	history := make([]string, 0, b.buffer.Len())
	b.buffer.Do(func(p interface{}) {
		if p != nil {
			history = append(history, p.(string))
		}
	})
	return history
}

// SetGlobalLevel updates the global zerolog level at runtime.
func SetGlobalLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	zerolog.SetGlobalLevel(parseLevel(level))
}

// GetGlobalLevel returns the current global level string.
func GetGlobalLevel() string {
	return zerolog.GlobalLevel().String()
}
