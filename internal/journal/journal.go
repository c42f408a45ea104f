package journal

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/graylogic-mqttlink/internal/session"
)

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// Logger interface for optional logging support.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Journal records lifecycle events asynchronously.
type Journal struct {
	repo  Repository
	queue chan session.Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
	written atomic.Uint64

	logMu  sync.RWMutex
	logger Logger
}

// New starts a Journal writing to the connection_events table of db. At most
// capacity events wait for the writer; capacity below 1 is treated as 1.
func New(db *sql.DB, capacity int) *Journal {
	return newJournal(NewSQLiteRepository(db), capacity)
}

func newJournal(repo Repository, capacity int) *Journal {
	if capacity < 1 {
		capacity = 1
	}
	j := &Journal{
		repo:   repo,
		queue:  make(chan session.Event, capacity),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
	go j.run()
	return j
}

// SetLogger sets a logger for write failures.
func (j *Journal) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	j.logMu.Lock()
	j.logger = logger
	j.logMu.Unlock()
}

// Observe implements session.Observer. It never blocks.
func (j *Journal) Observe(ev session.Event) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.queue <- ev:
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) run() {
	defer close(j.done)
	for ev := range j.queue {
		entry := EntryFromEvent(ev)
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := j.repo.Create(ctx, &entry)
		cancel()
		if err != nil {
			j.log().Warn("journal write failed", "kind", entry.Kind, "error", err)
			continue
		}
		j.written.Add(1)
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	res, err := j.List(ctx, Filter{Limit: limit})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// List queries the journal.
func (j *Journal) List(ctx context.Context, filter Filter) (*ListResult, error) {
	j.mu.RLock()
	closed := j.closed
	j.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return j.repo.List(ctx, filter)
}

// Dropped returns how many events were discarded because the queue was full
// or the journal was closed.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Written returns how many events were stored.
func (j *Journal) Written() uint64 {
	return j.written.Load()
}

// Close stops accepting events and waits for queued ones to be written.
// Calling Close more than once is safe.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()
	<-j.done
}

func (j *Journal) log() Logger {
	j.logMu.RLock()
	defer j.logMu.RUnlock()
	return j.logger
}

var _ session.Observer = (*Journal)(nil)
