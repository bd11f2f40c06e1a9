// Package replay keeps a bounded per-user log of delivered realtime messages
// so reconnecting clients can catch up from their last-seen sequence number.
package replay

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrGap marks a replay request whose fromSeq is older than the oldest
// retained entry. Callers must signal a full resync instead of returning a
// partial list that looks complete.
var ErrGap = errors.New("replay gap")

const defaultCapacity = 100

// Entry is one message retained for possible replay.
type Entry struct {
	UserID     string
	Seq        uint64
	Payload    string
	EnqueuedAt time.Time
}

type userLog struct {
	mu      sync.Mutex
	nextSeq uint64
	entries []Entry // ring, oldest first
}

// Log is the per-user replay store. Sequence numbers are strictly monotonic
// and gapless per user, and survive ring eviction.
type Log struct {
	mu       sync.RWMutex
	users    map[string]*userLog
	capacity int
	now      func() time.Time
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Log{
		users:    make(map[string]*userLog),
		capacity: capacity,
		now:      time.Now,
	}
}

func (l *Log) userLogFor(userID string) *userLog {
	l.mu.RLock()
	ul, ok := l.users[userID]
	l.mu.RUnlock()
	if ok {
		return ul
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if ul, ok = l.users[userID]; ok {
		return ul
	}
	ul = &userLog{nextSeq: 1}
	l.users[userID] = ul
	return ul
}

// Append records a delivered payload and returns its sequence number.
// Concurrent appends for the same user are serialized so numbers are never
// skipped or duplicated.
func (l *Log) Append(userID string, payload string) (uint64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user id is required")
	}

	ul := l.userLogFor(userID)

	ul.mu.Lock()
	defer ul.mu.Unlock()

	seq := ul.nextSeq
	ul.nextSeq++

	ul.entries = append(ul.entries, Entry{
		UserID:     userID,
		Seq:        seq,
		Payload:    payload,
		EnqueuedAt: l.now().UTC(),
	})
	if len(ul.entries) > l.capacity {
		over := len(ul.entries) - l.capacity
		ul.entries = append(ul.entries[:0:0], ul.entries[over:]...)
	}

	return seq, nil
}

// Since returns all entries with sequence numbers greater than fromSeq, in
// order. If fromSeq predates the oldest retained entry the log returns ErrGap
// rather than a misleadingly contiguous partial list.
func (l *Log) Since(userID string, fromSeq uint64) ([]Entry, error) {
	l.mu.RLock()
	ul, ok := l.users[userID]
	l.mu.RUnlock()
	if !ok {
		// Never appended for this user: fromSeq 0 is a clean empty replay,
		// anything else claims history we never had.
		if fromSeq == 0 {
			return nil, nil
		}
		return nil, ErrGap
	}

	ul.mu.Lock()
	defer ul.mu.Unlock()

	if len(ul.entries) == 0 {
		if fromSeq >= ul.nextSeq-1 {
			return nil, nil
		}
		return nil, ErrGap
	}

	oldest := ul.entries[0].Seq
	newest := ul.entries[len(ul.entries)-1].Seq

	if fromSeq >= newest {
		return nil, nil
	}
	if fromSeq < oldest-1 {
		return nil, ErrGap
	}

	out := make([]Entry, 0, newest-fromSeq)
	for _, e := range ul.entries {
		if e.Seq > fromSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

// Watermark returns the highest sequence number assigned for a user, or 0 if
// none has been.
func (l *Log) Watermark(userID string) uint64 {
	l.mu.RLock()
	ul, ok := l.users[userID]
	l.mu.RUnlock()
	if !ok {
		return 0
	}

	ul.mu.Lock()
	defer ul.mu.Unlock()
	return ul.nextSeq - 1
}
