package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cory-johannsen/dungeonrun/internal/game/run"
)

// report aggregates a batch of results.
type report struct {
	Runs        int
	Successes   int
	Failures    map[string]int
	AvgElapsed  float64
	AvgDeaths   float64
	AvgForces   float64
	LootDrops   int
	PlayerDPS   map[string]float64
	playerOrder []string
}

func summarize(results []run.Result) report {
	r := report{Runs: len(results), Failures: make(map[string]int), PlayerDPS: make(map[string]float64)}
	if len(results) == 0 {
		return r
	}
	for _, res := range results {
		if res.Success {
			r.Successes++
		} else {
			key := string(res.FailReason)
			if res.FailDetail != "" {
				key += ": " + res.FailDetail
			}
			r.Failures[key]++
		}
		r.AvgElapsed += res.ElapsedSeconds
		r.AvgDeaths += float64(res.Deaths)
		r.AvgForces += float64(res.ForcesCleared)
		r.LootDrops += len(res.Loot)
		for _, p := range res.Players {
			if _, seen := r.PlayerDPS[p.Name]; !seen {
				r.playerOrder = append(r.playerOrder, p.Name)
			}
			r.PlayerDPS[p.Name] += p.DPS
		}
	}
	n := float64(len(results))
	r.AvgElapsed /= n
	r.AvgDeaths /= n
	r.AvgForces /= n
	for name := range r.PlayerDPS {
		r.PlayerDPS[name] /= n
	}
	return r
}

func writeReport(out io.Writer, dungeonName string, keyLevel int, results []run.Result, wall time.Duration) {
	r := summarize(results)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "dungeon\t%s +%d\n", dungeonName, keyLevel)
	fmt.Fprintf(tw, "runs\t%d (%s wall)\n", r.Runs, wall.Round(time.Millisecond))
	fmt.Fprintf(tw, "success rate\t%.1f%%\n", 100*float64(r.Successes)/float64(max(r.Runs, 1)))
	fmt.Fprintf(tw, "avg time\t%.1fs\n", r.AvgElapsed)
	fmt.Fprintf(tw, "avg deaths\t%.2f\n", r.AvgDeaths)
	fmt.Fprintf(tw, "avg forces\t%.1f\n", r.AvgForces)
	fmt.Fprintf(tw, "loot drops\t%d\n", r.LootDrops)

	reasons := make([]string, 0, len(r.Failures))
	for k := range r.Failures {
		reasons = append(reasons, k)
	}
	sort.Strings(reasons)
	for _, k := range reasons {
		fmt.Fprintf(tw, "failed\t%s ×%d\n", k, r.Failures[k])
	}
	for _, name := range r.playerOrder {
		fmt.Fprintf(tw, "dps\t%s %.1f\n", name, r.PlayerDPS[name])
	}
	_ = tw.Flush()
}
