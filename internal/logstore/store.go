// Package logstore buffers session output in bounded rings and fans it out to
// live subscribers.
package logstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

// Store holds one ring buffer per session
type Store struct {
	mu       sync.RWMutex
	capacity int
	buffers  map[string]*buffer
	now      func() time.Time
}

// NewStore creates a store whose buffers keep at most capacity entries
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Store{
		capacity: capacity,
		buffers:  make(map[string]*buffer),
		now:      time.Now,
	}
}

// Capacity returns the per-session ring size
func (s *Store) Capacity() int {
	return s.capacity
}

// Open creates the buffer for a session. Opening an existing buffer keeps its contents.
func (s *Store) Open(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buffers[sessionID]; ok {
		return
	}
	s.buffers[sessionID] = newBuffer(s.capacity)
}

// Remove drops a session's buffer and ends its subscriptions
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	b, ok := s.buffers[sessionID]
	delete(s.buffers, sessionID)
	s.mu.Unlock()

	if ok {
		b.close()
	}
}

// Has reports whether a buffer exists for the session
func (s *Store) Has(sessionID string) bool {
	_, ok := s.get(sessionID)
	return ok
}

// Len returns the number of buffered entries for the session
func (s *Store) Len(sessionID string) int {
	b, ok := s.get(sessionID)
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (s *Store) get(sessionID string) (*buffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buffers[sessionID]
	return b, ok
}

// Append splits text into lines and records each as an entry.
// A trailing newline does not produce an empty entry.
func (s *Store) Append(sessionID string, stream types.StreamOrigin, text string) ([]types.LogEntry, error) {
	b, ok := s.get(sessionID)
	if !ok {
		return nil, types.NewError(types.KindSessionNotFound, "session %s not found", sessionID)
	}

	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, nil
	}
	return b.append(sessionID, stream, lines, s.now()), nil
}

// Tail returns the most recent entries matching the query, oldest first
func (s *Store) Tail(sessionID string, q types.TailQuery) ([]types.LogEntry, error) {
	b, ok := s.get(sessionID)
	if !ok {
		return nil, types.NewError(types.KindSessionNotFound, "session %s not found", sessionID)
	}

	limit := q.Limit
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}
	filter := strings.ToLower(q.Filter)

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]types.LogEntry, 0, min(limit, b.count))
	for i := b.count - 1; i >= 0 && len(out) < limit; i-- {
		e := b.at(i)
		if q.Stream != "" && e.Stream != q.Stream {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(e.Text), filter) {
			continue
		}
		out = append(out, e)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	parts := strings.Split(text, "\n")
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\r")
	}
	return parts
}

// buffer is a fixed-size ring of entries with a broadcast wake channel
type buffer struct {
	mu      sync.Mutex
	entries []types.LogEntry
	start   int
	count   int
	nextSeq uint64
	wake    chan struct{}
	closed  bool
}

func newBuffer(capacity int) *buffer {
	return &buffer{
		entries: make([]types.LogEntry, capacity),
		nextSeq: 1,
		wake:    make(chan struct{}),
	}
}

// at returns the i-th oldest entry. Caller holds mu.
func (b *buffer) at(i int) types.LogEntry {
	return b.entries[(b.start+i)%len(b.entries)]
}

// oldestSeq returns the sequence of the oldest retained entry. Caller holds mu.
func (b *buffer) oldestSeq() uint64 {
	return b.nextSeq - uint64(b.count)
}

func (b *buffer) append(sessionID string, stream types.StreamOrigin, lines []string, ts time.Time) []types.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	added := make([]types.LogEntry, 0, len(lines))
	for _, line := range lines {
		e := types.LogEntry{
			Seq:       b.nextSeq,
			SessionID: sessionID,
			Stream:    stream,
			Timestamp: ts,
			Text:      line,
		}
		b.nextSeq++

		if b.count < len(b.entries) {
			b.entries[(b.start+b.count)%len(b.entries)] = e
			b.count++
		} else {
			b.entries[b.start] = e
			b.start = (b.start + 1) % len(b.entries)
		}
		added = append(added, e)
	}

	close(b.wake)
	b.wake = make(chan struct{})
	return added
}

func (b *buffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.wake)
}

// since copies entries with seq >= cursor and returns the cursor after them
func (b *buffer) since(cursor uint64) ([]types.LogEntry, uint64, <-chan struct{}, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if oldest := b.oldestSeq(); cursor < oldest {
		cursor = oldest
	}
	n := int(b.nextSeq - cursor)
	var out []types.LogEntry
	if n > 0 {
		out = make([]types.LogEntry, 0, n)
		for i := b.count - n; i < b.count; i++ {
			out = append(out, b.at(i))
		}
	}
	return out, b.nextSeq, b.wake, b.closed
}

// SubscribeOptions controls where a subscription starts
type SubscribeOptions struct {
	// Backlog is the number of already buffered entries to replay first
	Backlog int
	// Buffer is the size of the delivery channel
	Buffer int
}

// Subscription is a live feed of one session's entries
type Subscription struct {
	c        chan types.LogEntry
	done     chan struct{}
	doneOnce sync.Once
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan types.LogEntry {
	return s.c
}

// Close ends the subscription
func (s *Subscription) Close() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Subscribe starts a feed of a session's entries. The feed ends when ctx is
// cancelled, Close is called, or the session's buffer is removed. Each
// subscriber reads at its own pace; a reader that falls more than a full ring
// behind skips the evicted entries.
func (s *Store) Subscribe(ctx context.Context, sessionID string, opts SubscribeOptions) (*Subscription, error) {
	b, ok := s.get(sessionID)
	if !ok {
		return nil, types.NewError(types.KindSessionNotFound, "session %s not found", sessionID)
	}

	size := opts.Buffer
	if size <= 0 {
		size = 64
	}
	sub := &Subscription{
		c:    make(chan types.LogEntry, size),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	cursor := b.nextSeq
	if opts.Backlog > 0 {
		back := uint64(min(opts.Backlog, b.count))
		cursor -= back
	}
	b.mu.Unlock()

	go sub.pump(ctx, b, cursor)
	return sub, nil
}

func (s *Subscription) pump(ctx context.Context, b *buffer, cursor uint64) {
	defer close(s.c)

	for {
		entries, next, wake, closed := b.since(cursor)
		for _, e := range entries {
			select {
			case s.c <- e:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
		cursor = next

		if closed {
			return
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}
