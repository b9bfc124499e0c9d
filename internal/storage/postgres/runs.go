package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/run"
)

// ErrRunNotFound is returned when a run lookup yields no results.
var ErrRunNotFound = errors.New("run not found")

// ErrNoCombatLog is returned when an archived run was saved without its log.
var ErrNoCombatLog = errors.New("run has no archived combat log")

// RunRecord is one archived run.
type RunRecord struct {
	DungeonID string
	KeyLevel  int
	Result    run.Result
	// Log is optional.
	Log       *combatlog.Document
	CreatedAt time.Time
}

// RunSummary is the listing view of an archived run.
type RunSummary struct {
	ID             string         `json:"id"`
	DungeonID      string         `json:"dungeon_id"`
	KeyLevel       int            `json:"key_level"`
	Success        bool           `json:"success"`
	FailReason     run.FailReason `json:"fail_reason,omitempty"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	Deaths         int            `json:"deaths"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RunRepository archives run results and their combat logs.
type RunRepository struct {
	db *pgxpool.Pool
}

// NewRunRepository creates a RunRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRunRepository(db *pgxpool.Pool) *RunRepository {
	return &RunRepository{db: db}
}

// Save inserts rec, replacing any earlier archive of the same run id.
//
// Precondition: rec.Result.RunID and rec.DungeonID must be non-empty.
func (r *RunRepository) Save(ctx context.Context, rec RunRecord) error {
	if rec.Result.RunID == "" || rec.DungeonID == "" {
		return fmt.Errorf("saving run: run id and dungeon id are required")
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("encoding run result: %w", err)
	}
	var log []byte
	if rec.Log != nil {
		if log, err = json.Marshal(rec.Log); err != nil {
			return fmt.Errorf("encoding combat log: %w", err)
		}
	}
	res := rec.Result
	_, err = r.db.Exec(ctx, `
		INSERT INTO runs
			(id, dungeon_id, key_level, success, fail_reason, fail_detail,
			 elapsed_seconds, time_limit_seconds, forces_cleared, forces_required,
			 deaths, result, combat_log)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			success = EXCLUDED.success, fail_reason = EXCLUDED.fail_reason,
			fail_detail = EXCLUDED.fail_detail, elapsed_seconds = EXCLUDED.elapsed_seconds,
			forces_cleared = EXCLUDED.forces_cleared, deaths = EXCLUDED.deaths,
			result = EXCLUDED.result, combat_log = EXCLUDED.combat_log`,
		res.RunID, rec.DungeonID, rec.KeyLevel, res.Success, string(res.FailReason), res.FailDetail,
		res.ElapsedSeconds, res.TimeLimitSeconds, res.ForcesCleared, res.ForcesRequired,
		res.Deaths, result, log,
	)
	if err != nil {
		return fmt.Errorf("inserting run %q: %w", res.RunID, err)
	}
	return nil
}

// Get returns the archived run with the given id.
//
// Postcondition: Returns the record or ErrRunNotFound.
func (r *RunRepository) Get(ctx context.Context, id string) (RunRecord, error) {
	var rec RunRecord
	var result, log []byte
	err := r.db.QueryRow(ctx, `
		SELECT dungeon_id, key_level, result, combat_log, created_at
		FROM runs WHERE id = $1`, id,
	).Scan(&rec.DungeonID, &rec.KeyLevel, &result, &log, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RunRecord{}, ErrRunNotFound
		}
		return RunRecord{}, fmt.Errorf("querying run %q: %w", id, err)
	}
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return RunRecord{}, fmt.Errorf("decoding run %q result: %w", id, err)
	}
	if len(log) > 0 {
		var doc combatlog.Document
		if err := json.Unmarshal(log, &doc); err != nil {
			return RunRecord{}, fmt.Errorf("decoding run %q combat log: %w", id, err)
		}
		rec.Log = &doc
	}
	return rec, nil
}

// Log returns the archived combat log of run id.
//
// Postcondition: Returns the document, ErrRunNotFound, or ErrNoCombatLog.
func (r *RunRepository) Log(ctx context.Context, id string) (combatlog.Document, error) {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return combatlog.Document{}, err
	}
	if rec.Log == nil {
		return combatlog.Document{}, ErrNoCombatLog
	}
	return *rec.Log, nil
}

// List returns the most recent runs of dungeonID, newest first. An empty
// dungeonID lists every dungeon.
//
// Precondition: limit > 0.
func (r *RunRepository) List(ctx context.Context, dungeonID string, limit int) ([]RunSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, dungeon_id, key_level, success, fail_reason, elapsed_seconds, deaths, created_at
		FROM runs
		WHERE $1 = '' OR dungeon_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, dungeonID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	out := make([]RunSummary, 0)
	for rows.Next() {
		var s RunSummary
		var reason string
		if err := rows.Scan(&s.ID, &s.DungeonID, &s.KeyLevel, &s.Success, &reason, &s.ElapsedSeconds, &s.Deaths, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		s.FailReason = run.FailReason(reason)
		out = append(out, s)
	}
	return out, rows.Err()
}

// HighestCompletedKey returns the highest key level at which dungeonID was
// completed successfully, or 0 if it never was.
func (r *RunRepository) HighestCompletedKey(ctx context.Context, dungeonID string) (int, error) {
	var level int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(key_level), 0) FROM runs
		WHERE dungeon_id = $1 AND success`, dungeonID,
	).Scan(&level)
	if err != nil {
		return 0, fmt.Errorf("querying highest completed key for %q: %w", dungeonID, err)
	}
	return level, nil
}
