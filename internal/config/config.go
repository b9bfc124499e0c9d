// Package config provides Viper-based configuration loading for the dungeon run simulator.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings for the run archive.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// SimulationConfig controls logical time and real-time pacing of a run.
type SimulationConfig struct {
	// TicksPerSecond is the fixed ratio between logical ticks and simulated seconds.
	TicksPerSecond int `mapstructure:"ticks_per_second"`
	// TickDelay is the real-time sleep between ticks. Zero selects simulation mode.
	TickDelay time.Duration `mapstructure:"tick_delay"`
	// TravelSpeed is the movement speed in map units per simulated second.
	TravelSpeed float64 `mapstructure:"travel_speed"`
	// TravelMinSeconds and TravelMaxSeconds clamp the duration of one travel leg.
	TravelMinSeconds float64 `mapstructure:"travel_min_seconds"`
	TravelMaxSeconds float64 `mapstructure:"travel_max_seconds"`
	// TravelStepTicks is the number of ticks advanced per travel sub-step.
	TravelStepTicks int `mapstructure:"travel_step_ticks"`
	// MaxTicks is a hard ceiling on run length, independent of the dungeon time limit.
	MaxTicks int `mapstructure:"max_ticks"`
}

// BalanceConfig holds the tunable game-balance constants used by the enemy factory
// and the combat engine.
type BalanceConfig struct {
	TrashHealthMultiplier    float64 `mapstructure:"trash_health_multiplier"`
	TrashDamageMultiplier    float64 `mapstructure:"trash_damage_multiplier"`
	MinibossHealthMultiplier float64 `mapstructure:"miniboss_health_multiplier"`
	MinibossDamageMultiplier float64 `mapstructure:"miniboss_damage_multiplier"`
	BossHealthMultiplier     float64 `mapstructure:"boss_health_multiplier"`
	BossDamageMultiplier     float64 `mapstructure:"boss_damage_multiplier"`

	// BlockEffectiveness is the fraction of a blocked hit that is prevented (1 = full block).
	BlockEffectiveness float64 `mapstructure:"block_effectiveness"`
	// SuppressionEffectiveness is the fraction of a suppressed spell that is prevented.
	SuppressionEffectiveness float64 `mapstructure:"suppression_effectiveness"`
	// EnergyShieldRatio is the amount of damage absorbed per point of energy shield.
	EnergyShieldRatio float64 `mapstructure:"energy_shield_ratio"`
	// ResurrectHealthFraction is the fraction of max health restored by a resurrection.
	ResurrectHealthFraction float64 `mapstructure:"resurrect_health_fraction"`
	// GCDSeconds is the global cooldown applied after every team-member and enemy action.
	GCDSeconds float64 `mapstructure:"gcd_seconds"`
	// ElementalResistCap and ChaosResistCap are the maximum resistance percentages.
	ElementalResistCap float64 `mapstructure:"elemental_resist_cap"`
	ChaosResistCap     float64 `mapstructure:"chaos_resist_cap"`
	// EvadeCap is the maximum evade chance percentage.
	EvadeCap float64 `mapstructure:"evade_cap"`
	// TankThreatMultiplier scales threat generated by tanks.
	TankThreatMultiplier float64 `mapstructure:"tank_threat_multiplier"`
}

// TrickleConfig selects how secondary packs of a combined pull enter combat.
type TrickleConfig struct {
	// Mode is one of "none", "delay", "health".
	Mode string `mapstructure:"mode"`
	// DelaySeconds is used when Mode is "delay".
	DelaySeconds float64 `mapstructure:"delay_seconds"`
	// HealthThreshold is the primary-pack health fraction that releases secondary packs
	// when Mode is "health".
	HealthThreshold float64 `mapstructure:"health_threshold"`
}

// APIConfig holds the HTTP/websocket listener settings.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Config is the top-level application configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Balance    BalanceConfig    `mapstructure:"balance"`
	Trickle    TrickleConfig    `mapstructure:"trickle"`
	API        APIConfig        `mapstructure:"api"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSimulation(c.Simulation); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateBalance(c.Balance); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTrickle(c.Trickle); err != nil {
		errs = append(errs, err.Error())
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port must be 1-65535, got %d", c.API.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	if s.TicksPerSecond < 1 {
		errs = append(errs, fmt.Sprintf("simulation.ticks_per_second must be >= 1, got %d", s.TicksPerSecond))
	}
	if s.TickDelay < 0 {
		errs = append(errs, "simulation.tick_delay must not be negative")
	}
	if s.TravelSpeed <= 0 {
		errs = append(errs, "simulation.travel_speed must be > 0")
	}
	if s.TravelMinSeconds < 0 || s.TravelMaxSeconds < s.TravelMinSeconds {
		errs = append(errs, "simulation.travel_min_seconds must be >= 0 and <= travel_max_seconds")
	}
	if s.TravelStepTicks < 1 {
		errs = append(errs, "simulation.travel_step_ticks must be >= 1")
	}
	if s.MaxTicks < 1 {
		errs = append(errs, "simulation.max_ticks must be >= 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateBalance(b BalanceConfig) error {
	var errs []string
	positive := map[string]float64{
		"trash_health_multiplier":    b.TrashHealthMultiplier,
		"trash_damage_multiplier":    b.TrashDamageMultiplier,
		"miniboss_health_multiplier": b.MinibossHealthMultiplier,
		"miniboss_damage_multiplier": b.MinibossDamageMultiplier,
		"boss_health_multiplier":     b.BossHealthMultiplier,
		"boss_damage_multiplier":     b.BossDamageMultiplier,
		"energy_shield_ratio":        b.EnergyShieldRatio,
		"tank_threat_multiplier":     b.TankThreatMultiplier,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("balance.%s must be > 0, got %g", name, v))
		}
	}
	fractions := map[string]float64{
		"block_effectiveness":       b.BlockEffectiveness,
		"suppression_effectiveness": b.SuppressionEffectiveness,
		"resurrect_health_fraction": b.ResurrectHealthFraction,
	}
	for name, v := range fractions {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("balance.%s must be in [0, 1], got %g", name, v))
		}
	}
	if b.ResurrectHealthFraction == 0 {
		errs = append(errs, "balance.resurrect_health_fraction must be > 0")
	}
	if b.GCDSeconds < 0 {
		errs = append(errs, "balance.gcd_seconds must not be negative")
	}
	for name, v := range map[string]float64{
		"elemental_resist_cap": b.ElementalResistCap,
		"chaos_resist_cap":     b.ChaosResistCap,
		"evade_cap":            b.EvadeCap,
	} {
		if v < 0 || v >= 100 {
			errs = append(errs, fmt.Sprintf("balance.%s must be in [0, 100), got %g", name, v))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTrickle(t TrickleConfig) error {
	switch t.Mode {
	case "none":
		return nil
	case "delay":
		if t.DelaySeconds <= 0 {
			return fmt.Errorf("trickle.delay_seconds must be > 0 when mode is delay, got %g", t.DelaySeconds)
		}
		return nil
	case "health":
		if t.HealthThreshold <= 0 || t.HealthThreshold >= 1 {
			return fmt.Errorf("trickle.health_threshold must be in (0, 1) when mode is health, got %g", t.HealthThreshold)
		}
		return nil
	default:
		return fmt.Errorf("trickle.mode must be one of [none, delay, health], got %q", t.Mode)
	}
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with DRUN_ prefix
	v.SetEnvPrefix("DRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by the built-in defaults alone.
//
// Postcondition: Returns a Config that passes Validate.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := LoadFromViper(v)
	if err != nil {
		panic("config: built-in defaults are invalid: " + err.Error())
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "dungeonrun")
	v.SetDefault("database.password", "dungeonrun")
	v.SetDefault("database.name", "dungeonrun")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("simulation.ticks_per_second", 10)
	v.SetDefault("simulation.tick_delay", "0s")
	v.SetDefault("simulation.travel_speed", 40.0)
	v.SetDefault("simulation.travel_min_seconds", 2.0)
	v.SetDefault("simulation.travel_max_seconds", 30.0)
	v.SetDefault("simulation.travel_step_ticks", 5)
	v.SetDefault("simulation.max_ticks", 200_000)

	v.SetDefault("balance.trash_health_multiplier", 1.0)
	v.SetDefault("balance.trash_damage_multiplier", 1.0)
	v.SetDefault("balance.miniboss_health_multiplier", 6.0)
	v.SetDefault("balance.miniboss_damage_multiplier", 1.6)
	v.SetDefault("balance.boss_health_multiplier", 12.0)
	v.SetDefault("balance.boss_damage_multiplier", 2.0)
	v.SetDefault("balance.block_effectiveness", 0.7)
	v.SetDefault("balance.suppression_effectiveness", 0.5)
	v.SetDefault("balance.energy_shield_ratio", 1.0)
	v.SetDefault("balance.resurrect_health_fraction", 0.5)
	v.SetDefault("balance.gcd_seconds", 1.5)
	v.SetDefault("balance.elemental_resist_cap", 75.0)
	v.SetDefault("balance.chaos_resist_cap", 75.0)
	v.SetDefault("balance.evade_cap", 75.0)
	v.SetDefault("balance.tank_threat_multiplier", 5.0)

	v.SetDefault("trickle.mode", "delay")
	v.SetDefault("trickle.delay_seconds", 4.0)
	v.SetDefault("trickle.health_threshold", 0.5)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
}
