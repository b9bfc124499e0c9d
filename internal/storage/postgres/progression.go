package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/dungeonrun/internal/game/run"
)

// ErrCharacterNotFound is returned when a progression lookup yields no results.
var ErrCharacterNotFound = errors.New("character not found")

// defaultProgressionTimeout bounds each progression statement issued from a run.
const defaultProgressionTimeout = 5 * time.Second

// Progress is the stored level and experience of one character.
type Progress struct {
	CharacterID string
	Level       int
	Experience  int
	Deaths      int
	UpdatedAt   time.Time
}

// ProgressionRepository persists character level and experience. It
// implements run.Progression.
type ProgressionRepository struct {
	db       *pgxpool.Pool
	maxLevel int
	timeout  time.Duration
}

// NewProgressionRepository creates a ProgressionRepository. maxLevel <= 0
// means uncapped.
//
// Precondition: db must be a valid, open connection pool.
func NewProgressionRepository(db *pgxpool.Pool, maxLevel int) *ProgressionRepository {
	return &ProgressionRepository{db: db, maxLevel: maxLevel, timeout: defaultProgressionTimeout}
}

var _ run.Progression = (*ProgressionRepository)(nil)

// Seed records characterID at level unless it is already stored.
//
// Precondition: level >= 1.
// Postcondition: the stored progress of an existing character is unchanged.
func (r *ProgressionRepository) Seed(ctx context.Context, characterID string, level int) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO progression (character_id, level, experience)
		VALUES ($1, $2, $3)
		ON CONFLICT (character_id) DO NOTHING`,
		characterID, max(level, 1), run.ExperienceForLevel(level),
	)
	if err != nil {
		return fmt.Errorf("seeding progression for %q: %w", characterID, err)
	}
	return nil
}

// Get returns the stored progress of characterID.
//
// Postcondition: Returns the progress or ErrCharacterNotFound.
func (r *ProgressionRepository) Get(ctx context.Context, characterID string) (Progress, error) {
	var p Progress
	err := r.db.QueryRow(ctx, `
		SELECT character_id, level, experience, deaths, updated_at
		FROM progression WHERE character_id = $1`, characterID,
	).Scan(&p.CharacterID, &p.Level, &p.Experience, &p.Deaths, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Progress{}, ErrCharacterNotFound
		}
		return Progress{}, fmt.Errorf("querying progression for %q: %w", characterID, err)
	}
	return p, nil
}

// AwardExperience adds amount to characterID, creating a level 1 row if
// none exists, and reports whether the character levelled.
func (r *ProgressionRepository) AwardExperience(characterID string, amount int) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("award experience %q: negative amount %d", characterID, amount)
	}
	leveled := false
	err := r.update(characterID, func(p *Progress) {
		before := p.Level
		p.Experience += amount
		p.Level = run.LevelFor(p.Level, p.Experience, r.maxLevel)
		leveled = p.Level > before
	})
	return leveled, err
}

// ApplyDeathPenalty removes a share of the progress into the current level.
func (r *ProgressionRepository) ApplyDeathPenalty(characterID string) error {
	return r.update(characterID, func(p *Progress) {
		p.Experience = run.AfterDeathPenalty(p.Level, p.Experience)
		p.Deaths++
	})
}

// update applies fn to the locked row of characterID inside one transaction.
func (r *ProgressionRepository) update(characterID string, fn func(*Progress)) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning progression update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		INSERT INTO progression (character_id) VALUES ($1)
		ON CONFLICT (character_id) DO NOTHING`, characterID); err != nil {
		return fmt.Errorf("ensuring progression row for %q: %w", characterID, err)
	}
	p := Progress{CharacterID: characterID}
	if err := tx.QueryRow(ctx, `
		SELECT level, experience, deaths FROM progression
		WHERE character_id = $1 FOR UPDATE`, characterID,
	).Scan(&p.Level, &p.Experience, &p.Deaths); err != nil {
		return fmt.Errorf("locking progression for %q: %w", characterID, err)
	}
	fn(&p)
	if _, err := tx.Exec(ctx, `
		UPDATE progression SET level = $2, experience = $3, deaths = $4, updated_at = NOW()
		WHERE character_id = $1`,
		characterID, p.Level, p.Experience, p.Deaths,
	); err != nil {
		return fmt.Errorf("saving progression for %q: %w", characterID, err)
	}
	return tx.Commit(ctx)
}
