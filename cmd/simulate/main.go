// Package main runs dungeon runs back to back in simulation mode and prints
// an aggregate report.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/config"
	"github.com/cory-johannsen/dungeonrun/internal/content"
	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/dice"
	"github.com/cory-johannsen/dungeonrun/internal/game/run"
	"github.com/cory-johannsen/dungeonrun/internal/observability"
	"github.com/cory-johannsen/dungeonrun/internal/storage/postgres"
)

type options struct {
	configPath  string
	contentDir  string
	dungeonID   string
	teamID      string
	keyLevel    int
	affixes     string
	runs        int
	parallel    int
	seed        uint64
	logDir      string
	archive     bool
	progression bool
	maxLevel    int
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to configuration file; empty uses built-in defaults")
	flag.StringVar(&o.contentDir, "content", "content", "content root directory")
	flag.StringVar(&o.dungeonID, "dungeon", "sunken_crypt", "dungeon id")
	flag.StringVar(&o.teamID, "team", "default", "team id")
	flag.IntVar(&o.keyLevel, "key", 2, "key level")
	flag.StringVar(&o.affixes, "affixes", "", "comma-separated affix ids")
	flag.IntVar(&o.runs, "runs", 1, "number of runs")
	flag.IntVar(&o.parallel, "parallel", 1, "runs executed concurrently")
	flag.Uint64Var(&o.seed, "seed", 0, "base seed; run i uses seed+i (0 = crypto randomness)")
	flag.StringVar(&o.logDir, "log-dir", "", "directory receiving one combat log export per run")
	flag.BoolVar(&o.archive, "archive", false, "archive results in PostgreSQL")
	flag.BoolVar(&o.progression, "progression", false, "persist character progression in PostgreSQL")
	flag.IntVar(&o.maxLevel, "max-level", 60, "progression level cap")
	flag.Parse()

	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
			os.Exit(1)
		}
	}
	// Simulation mode never sleeps between ticks.
	cfg.Simulation.TickDelay = 0

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := simulate(context.Background(), cfg, o, logger, os.Stdout); err != nil {
		logger.Fatal("simulation failed", zap.Error(err))
	}
}

// simulate executes o.runs runs and writes the report to out.
func simulate(ctx context.Context, cfg config.Config, o options, logger *zap.Logger, out io.Writer) error {
	if o.runs < 1 || o.parallel < 1 {
		return fmt.Errorf("runs and parallel must be >= 1")
	}
	bundle, err := content.Load(o.contentDir, content.Options{}, logger)
	if err != nil {
		return err
	}
	defer bundle.Close()

	d, route, err := bundle.Dungeon(o.dungeonID)
	if err != nil {
		return err
	}
	var affixIDs []string
	if o.affixes != "" {
		affixIDs = strings.Split(o.affixes, ",")
	}
	affixes, err := bundle.AffixEffects(affixIDs)
	if err != nil {
		return err
	}
	team, err := bundle.Team(o.teamID)
	if err != nil {
		return err
	}
	if o.logDir != "" {
		if err := os.MkdirAll(o.logDir, 0o755); err != nil {
			return fmt.Errorf("creating log dir: %w", err)
		}
	}

	var runs *postgres.RunRepository
	var prog run.Progression
	if o.archive || o.progression {
		pool, err := postgres.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		if o.archive {
			runs = pool.Runs()
		}
		if o.progression {
			repo := pool.Progression(o.maxLevel)
			for _, m := range team {
				if err := repo.Seed(ctx, m.Character.ID, m.Character.Level); err != nil {
					return err
				}
			}
			prog = repo
		}
	}

	highest := 0
	if runs != nil {
		if highest, err = runs.HighestCompletedKey(ctx, d.ID); err != nil {
			return err
		}
	}

	var crypto dice.Source
	if o.seed == 0 {
		crypto = dice.NewCryptoSource()
	}
	start := time.Now()
	results := make([]run.Result, o.runs)
	errs := make([]error, o.runs)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				src := crypto
				if src == nil {
					src = dice.NewSeededSource(o.seed + uint64(i))
				}
				deps := bundle.RunDeps(logger, src)
				deps.Progression = prog
				ctl := run.NewController(cfg, deps)
				p := run.Params{
					Team:                 team,
					Dungeon:              d,
					Route:                route,
					KeyLevel:             o.keyLevel,
					Affixes:              affixes,
					HighestCompletedTier: highest,
					RunID:                uuid.NewString(),
				}
				p.Log = combatlog.New(p.RunID, cfg.Simulation.TicksPerSecond, logger)
				results[i], errs[i] = runOne(ctx, ctl, p, runs, o)
			}
		}()
	}
	for i := 0; i < o.runs; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	writeReport(out, d.Name, o.keyLevel, results, time.Since(start))
	return nil
}

// runOne executes p, then archives and exports it as configured.
func runOne(ctx context.Context, ctl *run.Controller, p run.Params, runs *postgres.RunRepository, o options) (run.Result, error) {
	res, err := ctl.Run(ctx, p)
	if err != nil {
		return run.Result{}, err
	}
	doc := p.Log.Export(ctl.InitialState(p))
	if o.logDir != "" {
		if err := writeLog(filepath.Join(o.logDir, res.RunID+".json"), doc); err != nil {
			return res, err
		}
	}
	if runs != nil {
		rec := postgres.RunRecord{DungeonID: p.Dungeon.ID, KeyLevel: p.KeyLevel, Result: res, Log: &doc}
		if err := runs.Save(ctx, rec); err != nil {
			return res, err
		}
	}
	return res, nil
}

func writeLog(path string, doc combatlog.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %q: %w", path, err)
	}
	defer f.Close()
	if _, err := doc.WriteTo(f); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}
