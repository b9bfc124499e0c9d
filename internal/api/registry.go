// Package api exposes live runs over HTTP and websocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/config"
	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/run"
	"github.com/cory-johannsen/dungeonrun/internal/storage/postgres"
)

var (
	// ErrRunNotFound is returned for a run id the registry does not hold.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunFinished is returned when a control targets a finished run.
	ErrRunFinished = errors.New("run already finished")
	// ErrRunActive is returned when a finished-run view is requested early.
	ErrRunActive = errors.New("run still in progress")
)

// archiveTimeout bounds the write of one finished run.
const archiveTimeout = 10 * time.Second

// Archive stores finished runs. postgres.RunRepository satisfies it.
type Archive interface {
	Save(ctx context.Context, rec postgres.RunRecord) error
	Get(ctx context.Context, id string) (postgres.RunRecord, error)
	List(ctx context.Context, dungeonID string, limit int) ([]postgres.RunSummary, error)
	HighestCompletedKey(ctx context.Context, dungeonID string) (int, error)
}

// Entry is one run held by the registry.
type Entry struct {
	ID        string
	DungeonID string
	KeyLevel  int
	StartedAt time.Time

	signals     *run.ControlSignals
	broadcaster *run.Broadcaster
	log         *combatlog.Logger
	initial     combatlog.InitialState
	done        chan struct{}

	mu     sync.Mutex
	result *run.Result
	err    error
}

// Summary is the listing view of an entry.
type Summary struct {
	ID        string    `json:"id"`
	DungeonID string    `json:"dungeon_id"`
	KeyLevel  int       `json:"key_level"`
	StartedAt time.Time `json:"started_at"`
	Finished  bool      `json:"finished"`
	Paused    bool      `json:"paused"`
}

// Done is closed when the run returns.
func (e *Entry) Done() <-chan struct{} { return e.done }

// Finished reports whether the run has returned.
func (e *Entry) Finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Result returns the terminal result, or ErrRunActive while the run is live.
func (e *Entry) Result() (run.Result, error) {
	if !e.Finished() {
		return run.Result{}, ErrRunActive
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return run.Result{}, e.err
	}
	return *e.result, nil
}

// Snapshot returns the latest published snapshot.
func (e *Entry) Snapshot() (run.Snapshot, bool) {
	return e.broadcaster.Latest()
}

// Export returns the combat log so far as a document.
func (e *Entry) Export() combatlog.Document {
	return e.log.Export(e.initial)
}

// Control applies fn to the run's signals.
//
// Postcondition: Returns ErrRunFinished without calling fn once the run returned.
func (e *Entry) Control(fn func(*run.ControlSignals)) error {
	if e.Finished() {
		return ErrRunFinished
	}
	fn(e.signals)
	return nil
}

func (e *Entry) summary() Summary {
	return Summary{
		ID:        e.ID,
		DungeonID: e.DungeonID,
		KeyLevel:  e.KeyLevel,
		StartedAt: e.StartedAt,
		Finished:  e.Finished(),
		Paused:    e.signals.Paused(),
	}
}

// Registry owns the live runs of one controller. It is the controller's
// Publisher and routes every snapshot to the broadcaster of its run.
type Registry struct {
	ctl     *run.Controller
	tps     int
	archive Archive
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	runs map[string]*Entry
}

// NewRegistry builds a registry and the controller behind it. deps.Publisher
// is replaced by the registry; archive may be nil.
//
// Precondition: cfg passed Validate.
func NewRegistry(cfg config.Config, deps run.Deps, archive Archive, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		tps:     cfg.Simulation.TicksPerSecond,
		archive: archive,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		runs:    make(map[string]*Entry),
	}
	deps.Publisher = r
	if deps.Logger == nil {
		deps.Logger = logger
	}
	r.ctl = run.NewController(cfg, deps)
	return r
}

// Publish routes s to the broadcaster of s.RunID.
func (r *Registry) Publish(s run.Snapshot) {
	r.mu.RLock()
	e, ok := r.runs[s.RunID]
	r.mu.RUnlock()
	if ok {
		e.broadcaster.Publish(s)
	}
}

// Start validates p and runs it on its own goroutine.
//
// Postcondition: Returns the new entry, or the validation error with nothing
// registered.
func (r *Registry) Start(p run.Params) (*Entry, error) {
	if err := r.ctl.Validate(p); err != nil {
		return nil, err
	}
	if err := r.ctx.Err(); err != nil {
		return nil, fmt.Errorf("registry is shut down: %w", err)
	}
	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}
	p.Signals = run.NewControlSignals()
	p.Log = combatlog.New(p.RunID, r.tps, r.logger)

	initial := r.ctl.InitialState(p)
	e := &Entry{
		ID:          p.RunID,
		DungeonID:   p.Dungeon.ID,
		KeyLevel:    p.KeyLevel,
		StartedAt:   time.Now(),
		signals:     p.Signals,
		broadcaster: run.NewBroadcaster(),
		log:         p.Log,
		initial:     initial,
		done:        make(chan struct{}),
	}

	r.mu.Lock()
	if _, dup := r.runs[e.ID]; dup {
		r.mu.Unlock()
		return nil, fmt.Errorf("run %q already registered", e.ID)
	}
	r.runs[e.ID] = e
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res, err := r.ctl.Run(r.ctx, p)
		e.mu.Lock()
		e.result, e.err = &res, err
		e.mu.Unlock()
		close(e.done)
		if err == nil {
			r.archiveRun(e, res)
		}
	}()

	r.logger.Info("run registered",
		zap.String("run_id", e.ID),
		zap.String("dungeon", e.DungeonID),
		zap.Int("key_level", e.KeyLevel),
	)
	return e, nil
}

func (r *Registry) archiveRun(e *Entry, res run.Result) {
	if r.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	doc := e.Export()
	err := r.archive.Save(ctx, postgres.RunRecord{
		DungeonID: e.DungeonID,
		KeyLevel:  e.KeyLevel,
		Result:    res,
		Log:       &doc,
	})
	if err != nil {
		r.logger.Error("archiving run", zap.String("run_id", e.ID), zap.Error(err))
	}
}

// HighestCompletedKey asks the archive for the best completed key of
// dungeonID; 0 without an archive.
func (r *Registry) HighestCompletedKey(ctx context.Context, dungeonID string) (int, error) {
	if r.archive == nil {
		return 0, nil
	}
	return r.archive.HighestCompletedKey(ctx, dungeonID)
}

// Get returns the entry id.
func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return e, nil
}

// List returns every entry, oldest first.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	out := make([]Summary, 0, len(r.runs))
	for _, e := range r.runs {
		out = append(out, e.summary())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Forget drops a finished run from the registry.
func (r *Registry) Forget(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if !e.Finished() {
		return ErrRunActive
	}
	delete(r.runs, id)
	return nil
}

// Shutdown stops every live run and waits for them to return or ctx to end.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	for _, e := range r.runs {
		e.signals.Stop()
	}
	r.mu.RUnlock()
	r.cancel()

	waited := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
