package cook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"kitchen/internal/config"
	"kitchen/internal/manifest"
	"kitchen/internal/postproc"
	"kitchen/internal/runlog"
	"kitchen/internal/services"
	"kitchen/internal/stagerun"
	"kitchen/internal/testsupport"
)

type fakeMedia struct {
	dir  string
	fail map[string]error
}

func (f *fakeMedia) EnsureLocal(_ context.Context, item manifest.Item) (string, error) {
	if err := f.fail[item.AssetID]; err != nil {
		return "", err
	}
	path := filepath.Join(f.dir, item.AssetID+".mp4")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeRunner struct {
	mu    sync.Mutex
	runs  []string
	fail  map[string]error
	write string
}

func (f *fakeRunner) Run(_ context.Context, inv stagerun.Invocation) error {
	f.mu.Lock()
	f.runs = append(f.runs, fmt.Sprintf("%s/%d", inv.AssetID, inv.StageIndex))
	f.mu.Unlock()
	key := fmt.Sprintf("%s/%d", inv.AssetID, inv.StageIndex)
	if err := f.fail[key]; err != nil {
		return err
	}
	content := f.write
	if content == "" {
		content = testsupport.LadenMMIF
	}
	return os.WriteFile(inv.OutputPath, []byte(content), 0o644)
}

type fakeProcedure struct {
	name string
	runs int
	err  error
}

func (f *fakeProcedure) Name() string { return f.name }

func (f *fakeProcedure) Run(context.Context, postproc.Request) error {
	f.runs++
	return f.err
}

func testConfig(t *testing.T, stages int) *config.Config {
	t.Helper()
	images := make([]string, 0, stages)
	for i := 0; i < stages; i++ {
		images = append(images, fmt.Sprintf("ghcr.io/clamsproject/app-%d:v1", i+1))
	}
	cfg := testsupport.NewConfig(t, testsupport.WithStages(images...))
	cfg.ID = "batch_t"
	for _, dir := range []string{cfg.Paths.MediaDir, cfg.Paths.MMIFDir, cfg.Paths.LogsDir, cfg.Paths.ArtifactsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return cfg
}

func testItems(n int) []manifest.Item {
	items := make([]manifest.Item, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, manifest.Item{
			Ordinal:       i,
			AssetID:       fmt.Sprintf("cpb-aacip-%03d", i),
			MediaFilename: fmt.Sprintf("cpb-aacip-%03d.mp4", i),
			MediaType:     manifest.MediaTypeMovingImage,
		})
	}
	return items
}

func newFixture(t *testing.T, cfg *config.Config) (*Coordinator, *fakeRunner, *runlog.Log) {
	t.Helper()
	runner := &fakeRunner{fail: map[string]error{}}
	provider := &fakeMedia{dir: cfg.Paths.MediaDir, fail: map[string]error{}}
	registry := postproc.NewRegistry(nil)
	orch := NewOrchestrator(cfg, provider, runner, registry, nil)
	log := runlog.Open(cfg.Paths.LogsDir, cfg.ID)
	return NewCoordinator(cfg, orch, log, nil), runner, log
}

func TestSlice(t *testing.T) {
	items := testItems(10)
	got := Slice(items, config.Job{StartAfterItem: 2, EndAfterItem: 5})
	if len(got) != 3 || got[0].Ordinal != 3 || got[2].Ordinal != 5 {
		t.Fatalf("unexpected slice: %+v", got)
	}

	got = Slice(items, config.Job{StartAfterItem: 8})
	if len(got) != 2 || got[0].Ordinal != 9 {
		t.Fatalf("zero end should run to the last item: %+v", got)
	}

	got = Slice(items, config.Job{StartAfterItem: 2, EndAfterItem: 8, IncludeOnlyItems: []int{4, 6, 9}})
	if len(got) != 2 || got[0].Ordinal != 4 || got[1].Ordinal != 6 {
		t.Fatalf("include list should intersect the range: %+v", got)
	}
}

func TestCookHappyPath(t *testing.T) {
	cfg := testConfig(t, 2)
	coord, runner, _ := newFixture(t, cfg)

	summary, err := coord.Cook(context.Background(), testItems(3))
	if err != nil {
		t.Fatalf("Cook returned error: %v", err)
	}
	if summary.Done != 3 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(runner.runs) != 6 {
		t.Fatalf("expected 2 stage runs per item, got %v", runner.runs)
	}
	for i := 1; i <= 3; i++ {
		path := filepath.Join(cfg.Paths.MMIFDir, fmt.Sprintf("cpb-aacip-%03d_batch_t_2.mmif", i))
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("final artifact missing: %v", err)
		}
	}
}

func TestCookSecondRunOnlySkips(t *testing.T) {
	cfg := testConfig(t, 2)
	coord, runner, log := newFixture(t, cfg)
	ctx := context.Background()

	if _, err := coord.Cook(ctx, testItems(2)); err != nil {
		t.Fatalf("first Cook returned error: %v", err)
	}
	firstRuns := len(runner.runs)

	summary, err := coord.Cook(ctx, testItems(2))
	if err != nil {
		t.Fatalf("second Cook returned error: %v", err)
	}
	if len(runner.runs) != firstRuns {
		t.Fatalf("second run must not rerun stages: %v", runner.runs[firstRuns:])
	}
	if summary.StagesRan != 0 || summary.StagesSkipped != 6 {
		t.Fatalf("second run should only skip: %+v", summary)
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries returned error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("ledger should hold both runs, got %d entries", len(entries))
	}
}

func TestCookFailureIsolation(t *testing.T) {
	cfg := testConfig(t, 1)
	coord, runner, log := newFixture(t, cfg)
	runner.fail["cpb-aacip-002/1"] = services.Wrap(services.ErrStageExecution,
		"stagerun", "process", "docker run for stage 1", errors.New("exit status 1"))

	summary, err := coord.Cook(context.Background(), testItems(3))
	if err != nil {
		t.Fatalf("Cook returned error: %v", err)
	}
	if summary.Done != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.FailedOrdinals) != 1 || summary.FailedOrdinals[0] != 2 {
		t.Fatalf("unexpected failed ordinals: %v", summary.FailedOrdinals)
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries returned error: %v", err)
	}
	for _, entry := range entries {
		if entry.Ordinal == 2 && entry.FailureKind != "stage" {
			t.Fatalf("failed entry should classify its failure, got %q", entry.FailureKind)
		}
		if entry.Ordinal != 2 && entry.FailureKind != "" {
			t.Fatalf("successful entry must not carry a failure kind, got %q", entry.FailureKind)
		}
	}
}

func TestCookKeepMMIFsUnderOverwrite(t *testing.T) {
	cfg := testConfig(t, 2)
	coord, runner, _ := newFixture(t, cfg)
	ctx := context.Background()

	if _, err := coord.Cook(ctx, testItems(1)); err != nil {
		t.Fatalf("first Cook returned error: %v", err)
	}
	runner.runs = nil

	cfg.Job.OverwriteMMIF = true
	cfg.Job.KeepMMIFs = []int{0}
	coord2, runner2, _ := newFixture(t, cfg)
	runner2.fail = runner.fail

	summary, err := coord2.Cook(ctx, testItems(1))
	if err != nil {
		t.Fatalf("second Cook returned error: %v", err)
	}
	if summary.StagesSkipped != 1 || summary.StagesRan != 2 {
		t.Fatalf("expected stage 0 kept and stages 1-2 redone: %+v", summary)
	}
}

func TestCookResumesAfterInterruption(t *testing.T) {
	cfg := testConfig(t, 1)
	coord, _, _ := newFixture(t, cfg)
	ctx := context.Background()

	// First invocation covers only the first two items, standing in for an
	// interrupted batch.
	cfg.Job.EndAfterItem = 2
	if _, err := coord.Cook(ctx, testItems(4)); err != nil {
		t.Fatalf("first Cook returned error: %v", err)
	}
	stamp := map[string]int64{}
	for i := 1; i <= 2; i++ {
		name := fmt.Sprintf("cpb-aacip-%03d_batch_t_1.mmif", i)
		info, err := os.Stat(filepath.Join(cfg.Paths.MMIFDir, name))
		if err != nil {
			t.Fatalf("stat artifact: %v", err)
		}
		stamp[name] = info.ModTime().UnixNano()
	}

	cfg.Job.EndAfterItem = 0
	summary, err := coord.Cook(ctx, testItems(4))
	if err != nil {
		t.Fatalf("second Cook returned error: %v", err)
	}
	if summary.Done != 4 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	for name, before := range stamp {
		info, err := os.Stat(filepath.Join(cfg.Paths.MMIFDir, name))
		if err != nil {
			t.Fatalf("stat artifact: %v", err)
		}
		if info.ModTime().UnixNano() != before {
			t.Fatalf("resumed run must not touch completed artifacts: %s", name)
		}
	}
}

func TestCookMediaFailureFailsItemOnly(t *testing.T) {
	cfg := testConfig(t, 1)
	runner := &fakeRunner{fail: map[string]error{}}
	provider := &fakeMedia{dir: cfg.Paths.MediaDir, fail: map[string]error{
		"cpb-aacip-001": services.Wrap(services.ErrMediaUnavailable,
			"media", "resolve_url", "URL command returned no URL", nil),
	}}
	orch := NewOrchestrator(cfg, provider, runner, postproc.NewRegistry(nil), nil)
	log := runlog.Open(cfg.Paths.LogsDir, cfg.ID)
	coord := NewCoordinator(cfg, orch, log, nil)

	summary, err := coord.Cook(context.Background(), testItems(2))
	if err != nil {
		t.Fatalf("Cook returned error: %v", err)
	}
	if summary.Done != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries returned error: %v", err)
	}
	for _, entry := range entries {
		if entry.AssetID == "cpb-aacip-001" && entry.FailureKind != "media" {
			t.Fatalf("media failure should classify as media, got %q", entry.FailureKind)
		}
	}
}

func TestCookBoundedConcurrency(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Job.Concurrency = 3
	coord, _, log := newFixture(t, cfg)

	summary, err := coord.Cook(context.Background(), testItems(9))
	if err != nil {
		t.Fatalf("Cook returned error: %v", err)
	}
	if summary.Done != 9 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries returned error: %v", err)
	}
	if len(entries) != 9 {
		t.Fatalf("every item needs exactly one intact entry, got %d", len(entries))
	}
}

func TestCookJustGetMedia(t *testing.T) {
	cfg := testConfig(t, 0)
	cfg.Job.JustGetMedia = true
	coord, runner, _ := newFixture(t, cfg)

	summary, err := coord.Cook(context.Background(), testItems(2))
	if err != nil {
		t.Fatalf("Cook returned error: %v", err)
	}
	if summary.Done != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(runner.runs) != 0 {
		t.Fatalf("just_get_media must not run stages: %v", runner.runs)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.MediaDir, "cpb-aacip-001.mp4")); err != nil {
		t.Fatalf("media should be acquired: %v", err)
	}
}

func TestCookPostProcFailureDoesNotFailItem(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.PostProcs = []config.PostProc{{Name: "visaid", Artifacts: []string{"visaid"}}}

	proc := &fakeProcedure{name: "visaid", err: errors.New("exit status 2")}
	registry := postproc.NewRegistry(nil, proc)
	runner := &fakeRunner{fail: map[string]error{}}
	provider := &fakeMedia{dir: cfg.Paths.MediaDir, fail: map[string]error{}}
	orch := NewOrchestrator(cfg, provider, runner, registry, nil)
	log := runlog.Open(cfg.Paths.LogsDir, cfg.ID)
	coord := NewCoordinator(cfg, orch, log, nil)

	summary, err := coord.Cook(context.Background(), testItems(1))
	if err != nil {
		t.Fatalf("Cook returned error: %v", err)
	}
	if summary.Done != 1 || summary.Failed != 0 {
		t.Fatalf("post-proc failure must not fail the item: %+v", summary)
	}
	if proc.runs != 1 {
		t.Fatalf("procedure should have run once, ran %d times", proc.runs)
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries returned error: %v", err)
	}
	if len(entries[0].PostProcErrors) != 1 {
		t.Fatalf("procedure failure should be recorded: %+v", entries[0])
	}
}

func TestCookMediaNotRequired(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Job.MediaRequired = false
	coord, runner, _ := newFixture(t, cfg)

	summary, err := coord.Cook(context.Background(), testItems(1))
	if err != nil {
		t.Fatalf("Cook returned error: %v", err)
	}
	if summary.Done != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(runner.runs) != 1 {
		t.Fatalf("stages should still run without media: %v", runner.runs)
	}
	if entries, _ := os.ReadDir(cfg.Paths.MediaDir); len(entries) != 0 {
		t.Fatal("no media should be acquired when media_required is false")
	}
}

func TestCookCleanupPolicy(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Job.CleanupMediaPerItem = true
	cfg.Job.CleanupBeyondItem = 1
	coord, _, log := newFixture(t, cfg)

	if _, err := coord.Cook(context.Background(), testItems(2)); err != nil {
		t.Fatalf("Cook returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.MediaDir, "cpb-aacip-001.mp4")); err != nil {
		t.Fatal("item 1 media should be kept by cleanup_beyond_item")
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.MediaDir, "cpb-aacip-002.mp4")); !os.IsNotExist(err) {
		t.Fatal("item 2 media should be removed")
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries returned error: %v", err)
	}
	if entries[0].Cleanup != "kept" || entries[1].Cleanup != "removed" {
		t.Fatalf("unexpected cleanup outcomes: %q, %q", entries[0].Cleanup, entries[1].Cleanup)
	}
}
