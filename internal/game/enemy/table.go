package enemy

import "sort"

// LevelRow is the base stat line of an enemy at one level.
type LevelRow struct {
	Level        float64 `yaml:"level"`
	Health       float64 `yaml:"health"`
	Damage       float64 `yaml:"damage"`
	Accuracy     float64 `yaml:"accuracy"`
	Armor        float64 `yaml:"armor"`
	Evasion      float64 `yaml:"evasion"`
	EnergyShield float64 `yaml:"energy_shield"`
	Resist       float64 `yaml:"resist"`
}

// LevelTable interpolates base stats between sampled levels.
type LevelTable struct {
	rows []LevelRow
}

// NewLevelTable returns a table over rows sorted by level.
//
// Precondition: len(rows) > 0.
func NewLevelTable(rows []LevelRow) *LevelTable {
	sorted := append([]LevelRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	return &LevelTable{rows: sorted}
}

// DefaultLevelTable returns the built-in base stat table.
func DefaultLevelTable() *LevelTable {
	return NewLevelTable([]LevelRow{
		{Level: 1, Health: 60, Damage: 8, Accuracy: 150, Armor: 40, Evasion: 40, EnergyShield: 15, Resist: 0},
		{Level: 10, Health: 180, Damage: 18, Accuracy: 320, Armor: 150, Evasion: 120, EnergyShield: 50, Resist: 10},
		{Level: 20, Health: 420, Damage: 32, Accuracy: 520, Armor: 320, Evasion: 240, EnergyShield: 120, Resist: 20},
		{Level: 40, Health: 1100, Damage: 60, Accuracy: 900, Armor: 700, Evasion: 500, EnergyShield: 320, Resist: 30},
		{Level: 60, Health: 2400, Damage: 95, Accuracy: 1300, Armor: 1200, Evasion: 850, EnergyShield: 650, Resist: 40},
		{Level: 80, Health: 4500, Damage: 140, Accuracy: 1700, Armor: 1800, Evasion: 1250, EnergyShield: 1100, Resist: 50},
		{Level: 100, Health: 7800, Damage: 200, Accuracy: 2200, Armor: 2600, Evasion: 1700, EnergyShield: 1700, Resist: 50},
	})
}

// At returns the row for level, linearly interpolated between the two
// nearest sampled rows and clamped to the table's ends.
func (t *LevelTable) At(level float64) LevelRow {
	rows := t.rows
	if level <= rows[0].Level {
		r := rows[0]
		r.Level = level
		return r
	}
	last := rows[len(rows)-1]
	if level >= last.Level {
		r := last
		r.Level = level
		return r
	}
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Level >= level })
	lo, hi := rows[i-1], rows[i]
	f := (level - lo.Level) / (hi.Level - lo.Level)
	lerp := func(a, b float64) float64 { return a + (b-a)*f }
	return LevelRow{
		Level:        level,
		Health:       lerp(lo.Health, hi.Health),
		Damage:       lerp(lo.Damage, hi.Damage),
		Accuracy:     lerp(lo.Accuracy, hi.Accuracy),
		Armor:        lerp(lo.Armor, hi.Armor),
		Evasion:      lerp(lo.Evasion, hi.Evasion),
		EnergyShield: lerp(lo.EnergyShield, hi.EnergyShield),
		Resist:       lerp(lo.Resist, hi.Resist),
	}
}
