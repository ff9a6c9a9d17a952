package runlog

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aircover/claimpipe/internal/domain"
	"github.com/google/uuid"
)

// Sink receives batches of log lines. The first delivery after Subscribe is
// the full backlog as one batch; every later delivery is a single line.
type Sink func(lines []string)

// Store persists individual log lines. Insert failures are swallowed by the
// log; this is diagnostic infrastructure, not pipeline correctness.
type Store interface {
	Record(ctx context.Context, entry domain.RunLogEntry) error
}

type runState struct {
	lines  []string
	subs   map[int]Sink
	nextID int
	file   *os.File
}

// Log is the per-run append-only event log with live subscriber fan-out.
// Appends for a run are serialized by the log's mutex, so subscribers see
// lines in append order.
type Log struct {
	mu    sync.Mutex
	dir   string
	store Store
	runs  map[uuid.UUID]*runState
}

// New creates a run log rooted at dir. store may be nil to skip row
// persistence (tests).
func New(dir string, store Store) *Log {
	return &Log{
		dir:   dir,
		store: store,
		runs:  map[uuid.UUID]*runState{},
	}
}

// CreateRun initializes the log for a run id. Safe to call more than once.
func (l *Log) CreateRun(runID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureRun(runID)
}

func (l *Log) ensureRun(runID uuid.UUID) *runState {
	state, ok := l.runs[runID]
	if ok {
		return state
	}

	state = &runState{subs: map[int]Sink{}}
	if l.dir != "" {
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			log.Printf("[RUNLOG] failed to create log dir: %v", err)
		} else {
			path := filepath.Join(l.dir, fmt.Sprintf("%s.log", runID))
			file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				log.Printf("[RUNLOG] failed to open log file for run %s: %v", runID, err)
			} else {
				state.file = file
			}
		}
	}
	l.runs[runID] = state
	return state
}

// Append records a line for a run and fans it out to live subscribers.
// Append never fails: storage and fan-out problems are logged and dropped.
func (l *Log) Append(runID uuid.UUID, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.ensureRun(runID)
	state.lines = append(state.lines, line)

	if state.file != nil {
		if _, err := fmt.Fprintln(state.file, line); err != nil {
			log.Printf("[RUNLOG] failed to write log line for run %s: %v", runID, err)
		}
	}

	if l.store != nil {
		entry := domain.RunLogEntry{RunID: runID, EventTime: time.Now().UTC(), Message: line}
		if err := l.store.Record(context.Background(), entry); err != nil {
			log.Printf("[RUNLOG] failed to persist log line for run %s: %v", runID, err)
		}
	}

	for _, sink := range state.subs {
		sink([]string{line})
	}
}

// Subscribe registers a sink for a run. The existing backlog is delivered
// immediately as a single batch; subsequent appends arrive one line at a
// time. The returned function unsubscribes the sink; it must be called when
// the subscriber disconnects.
func (l *Log) Subscribe(runID uuid.UUID, sink Sink) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.ensureRun(runID)

	// Backlog goes out before the sink is registered, under the same lock
	// hold, so a concurrent Append cannot interleave with the initial batch.
	if len(state.lines) > 0 {
		backlog := make([]string, len(state.lines))
		copy(backlog, state.lines)
		sink(backlog)
	}

	id := state.nextID
	state.nextID++
	state.subs[id] = sink

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(state.subs, id)
	}
}

// Close releases any open log files.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, state := range l.runs {
		if state.file != nil {
			_ = state.file.Close()
			state.file = nil
		}
	}
}
