// Package combatlog is the append-only, per-run record of every mutating
// combat event, with before/after actor snapshots for offline verification.
package combatlog

import (
	"math"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Entry is one immutable log record.
type Entry struct {
	Seq       int            `json:"seq"`
	Tick      int            `json:"tick"`
	Timestamp float64        `json:"timestamp"`
	Type      Type           `json:"type"`
	Source    string         `json:"source,omitempty"`
	Target    string         `json:"target,omitempty"`
	Value     *float64       `json:"value,omitempty"`
	Ability   string         `json:"ability,omitempty"`
	Message   string         `json:"message"`
	Payload   Payload        `json:"-"`
	Debug     map[string]any `json:"debug,omitempty"`
}

// Val returns a pointer to a sanitized copy of v, for Entry.Value.
func Val(v float64) *float64 {
	s := sanitize(v)
	return &s
}

// Logger accumulates the entries of one run. It is safe for concurrent
// readers while the run goroutine appends.
type Logger struct {
	mu             sync.RWMutex
	runID          string
	ticksPerSecond int
	entries        []Entry
	lastTick       int
	zl             *zap.Logger
}

// New returns an empty log for runID.
//
// Precondition: ticksPerSecond > 0.
func New(runID string, ticksPerSecond int, zl *zap.Logger) *Logger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Logger{runID: runID, ticksPerSecond: ticksPerSecond, zl: zl}
}

// RunID returns the run the log belongs to.
func (l *Logger) RunID() string { return l.runID }

// Reset discards every entry.
func (l *Logger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.lastTick = 0
}

// Log appends e and returns the stored entry.
//
// Postcondition: the stored entry has the next sequence number, a tick no
// smaller than any earlier entry's, Type matching its payload when one is
// set, and a finite Value.
func (l *Logger) Log(e Entry) Entry {
	l.mu.Lock()
	if e.Tick < l.lastTick {
		e.Tick = l.lastTick
	}
	l.lastTick = e.Tick
	e.Seq = len(l.entries) + 1
	e.Timestamp = float64(e.Tick) / float64(l.ticksPerSecond)
	if e.Payload != nil {
		e.Type = e.Payload.Kind()
	}
	if e.Value != nil {
		e.Value = Val(*e.Value)
	}
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	fields := []zap.Field{
		zap.String("run_id", l.runID),
		zap.Int("tick", e.Tick),
		zap.String("type", string(e.Type)),
		zap.String("source", e.Source),
		zap.String("target", e.Target),
	}
	if sp, ok := e.Payload.(SystemPayload); ok {
		if sp.Error != "" {
			fields = append(fields, zap.String("error", sp.Error))
		}
		switch sp.Severity {
		case "error":
			l.zl.Error(e.Message, fields...)
		case "info":
			l.zl.Info(e.Message, fields...)
		default:
			l.zl.Warn(e.Message, fields...)
		}
	} else if ce := l.zl.Check(zapcore.DebugLevel, e.Message); ce != nil {
		ce.Write(fields...)
	}
	return e
}

// System appends a system entry.
func (l *Logger) System(tick int, severity, message string, err error) Entry {
	p := SystemPayload{Severity: severity}
	if err != nil {
		p.Error = err.Error()
	}
	return l.Log(Entry{Tick: tick, Message: message, Payload: p})
}

// Len returns the number of entries.
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of every entry.
func (l *Logger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Since returns a copy of the entries with Seq greater than seq.
func (l *Logger) Since(seq int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq < 0 {
		seq = 0
	}
	if seq >= len(l.entries) {
		return nil
	}
	return append([]Entry(nil), l.entries[seq:]...)
}

// Tail returns a copy of the last n entries.
func (l *Logger) Tail(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n > len(l.entries) {
		n = len(l.entries)
	}
	return append([]Entry(nil), l.entries[len(l.entries)-n:]...)
}

// Filter returns every entry of type t.
func (l *Logger) Filter(t Type) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
