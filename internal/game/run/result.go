package run

import "github.com/cory-johannsen/dungeonrun/internal/game/loot"

// FailReason classifies an unsuccessful run.
type FailReason string

const (
	FailNone    FailReason = ""
	FailWipe    FailReason = "wipe"
	FailTimeout FailReason = "timeout"
)

// PlayerStats is the per-member summary of a run.
type PlayerStats struct {
	CharacterID string  `json:"character_id"`
	Name        string  `json:"name"`
	Role        string  `json:"role"`
	Level       int     `json:"level"`
	Damage      float64 `json:"damage"`
	Healing     float64 `json:"healing"`
	DamageTaken float64 `json:"damage_taken"`
	Deaths      int     `json:"deaths"`
	DPS         float64 `json:"dps"`
	Experience  int     `json:"experience"`
}

// Result is the terminal summary of a run.
type Result struct {
	RunID            string        `json:"run_id"`
	Success          bool          `json:"success"`
	FailReason       FailReason    `json:"fail_reason,omitempty"`
	FailDetail       string        `json:"fail_detail,omitempty"`
	ElapsedSeconds   float64       `json:"elapsed_seconds"`
	TimeLimitSeconds float64       `json:"time_limit_seconds"`
	ForcesCleared    int           `json:"forces_cleared"`
	ForcesRequired   int           `json:"forces_required"`
	Loot             []loot.Drop   `json:"loot"`
	Experience       int           `json:"experience"`
	Deaths           int           `json:"deaths"`
	Players          []PlayerStats `json:"players"`
	Ticks            int           `json:"ticks"`
	PullsCompleted   int           `json:"pulls_completed"`
}
