package batch

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"collegead.ai/internal/persistence/log"
	"collegead.ai/internal/sim/catalogs"
	"collegead.ai/internal/sim/model"
	"collegead.ai/internal/sim/roster"
	"collegead.ai/internal/sim/tuning"
	"collegead.ai/internal/sim/world"
)

const configDir = "../../../configs"

func fixtures(t *testing.T) (tuning.Tuning, *catalogs.Catalogs) {
	t.Helper()
	tu, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	cats, err := catalogs.Load(configDir)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return tu, cats
}

func seedRoster(t *testing.T, cats *catalogs.Catalogs) []*model.Coach {
	t.Helper()
	protos, err := roster.LoadPrototypes(filepath.Join(configDir, roster.File))
	if err != nil {
		t.Fatalf("prototypes: %v", err)
	}
	return roster.Seed(protos, roster.DefaultOptions(cats.Components.Weights), rand.New(rand.NewPCG(roster.DefaultSeed, 0)))
}

func TestPartition_RoundRobin(t *testing.T) {
	var coaches []*model.Coach
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		coaches = append(coaches, &model.Coach{ID: id})
	}
	parts := Partition(coaches, 2)
	ids := func(cs []*model.Coach) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}
	if got := ids(parts[0]); !reflect.DeepEqual(got, []string{"a", "c", "e"}) {
		t.Fatalf("batch 0=%v", got)
	}
	if got := ids(parts[1]); !reflect.DeepEqual(got, []string{"b", "d"}) {
		t.Fatalf("batch 1=%v", got)
	}
}

func TestWorkers(t *testing.T) {
	if got := Workers(8, 0); got != 1 {
		t.Fatalf("empty roster workers=%d", got)
	}
	if got := Workers(1, 100); got != 1 {
		t.Fatalf("max_workers 1 gave %d", got)
	}
	if got := Workers(0, 3); got > 3 || got > runtime.NumCPU() {
		t.Fatalf("workers=%d", got)
	}
}

func TestScratchPath(t *testing.T) {
	if got := ScratchPath("out", EventsName, 3); got != filepath.Join("out", "reg_events.b3.jsonl.zst") {
		t.Fatalf("scratch=%s", got)
	}
}

func TestRun_MergesInBatchOrder(t *testing.T) {
	tu, cats := fixtures(t)
	coaches := seedRoster(t, cats)[:12]
	dir := t.TempDir()

	res, err := Run(context.Background(), tu, cats, coaches, Options{Weeks: 4, Seed: 7, Workers: 3, OutDir: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rows, err := log.ReadHistory(res.HistoryPath)
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	perWeek := 0
	for _, c := range coaches {
		perWeek += len(c.Traits)
	}
	if len(rows) != 4*perWeek {
		t.Fatalf("rows=%d want %d", len(rows), 4*perWeek)
	}
	if rows[0].CoachID != coaches[0].ID || rows[0].Week != 0 {
		t.Fatalf("first row=%+v", rows[0])
	}
	if res.Batches > 1 {
		// The last row belongs to the last batch's last coach.
		parts := Partition(coaches, res.Batches)
		tail := parts[res.Batches-1]
		last := tail[len(tail)-1]
		if rows[len(rows)-1].CoachID != last.ID || rows[len(rows)-1].Week != 3 {
			t.Fatalf("last row=%+v want coach %s", rows[len(rows)-1], last.ID)
		}
	}

	events, err := log.ReadEvents(res.EventsPath)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != res.Events {
		t.Fatalf("events logged=%d counted=%d", len(events), res.Events)
	}
	for i := 0; i < res.Batches; i++ {
		if _, err := os.Stat(ScratchPath(dir, EventsName, i)); !os.IsNotExist(err) {
			t.Fatalf("scratch %d not removed: %v", i, err)
		}
	}
	if len(res.Meters) != res.Batches || len(res.Digests) != res.Batches {
		t.Fatalf("per-batch state: meters=%d digests=%d", len(res.Meters), len(res.Digests))
	}
}

func TestRun_Deterministic(t *testing.T) {
	tu, cats := fixtures(t)
	run := func() (*Result, []log.HistoryLine) {
		dir := t.TempDir()
		res, err := Run(context.Background(), tu, cats, seedRoster(t, cats), Options{Weeks: 6, Seed: 99, Workers: 4, OutDir: dir})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		rows, err := log.ReadHistory(res.HistoryPath)
		if err != nil {
			t.Fatalf("ReadHistory: %v", err)
		}
		return res, rows
	}
	a, rowsA := run()
	b, rowsB := run()
	if !reflect.DeepEqual(a.Digests, b.Digests) {
		t.Fatalf("digests differ: %v vs %v", a.Digests, b.Digests)
	}
	if !reflect.DeepEqual(rowsA, rowsB) {
		t.Fatalf("merged history differs between identical runs")
	}
}

func TestRun_SingleBatchMatchesRuntime(t *testing.T) {
	tu, cats := fixtures(t)
	res, err := Run(context.Background(), tu, cats, seedRoster(t, cats), Options{Weeks: 5, Seed: 3, Workers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	w, err := world.New(world.Config{Tuning: tu, Seed: 3}, cats, seedRoster(t, cats), nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	if _, err := w.Run(context.Background(), 5); err != nil {
		t.Fatalf("world run: %v", err)
	}
	if res.Batches != 1 || res.Digests[0] != w.Digest() {
		t.Fatalf("batch digest %v != runtime %s", res.Digests, w.Digest())
	}
}

func TestRun_Cancelled(t *testing.T) {
	tu, cats := fixtures(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, tu, cats, seedRoster(t, cats), Options{Weeks: 3}); err == nil {
		t.Fatalf("expected cancellation error")
	}
}
