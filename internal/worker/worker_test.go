package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"streamgate/internal/config"
	"streamgate/internal/database"
	"streamgate/internal/logging"
	"streamgate/internal/notifications"
	"streamgate/internal/queue"
	"streamgate/internal/services"
	"streamgate/internal/testsupport"
	"streamgate/internal/worker"
)

type harness struct {
	cfg   *config.Config
	db    *database.DB
	store *queue.Store
	fake  *testsupport.FakeTranscoder
	w     *worker.Worker
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	db := testsupport.MustOpenDB(t, cfg)
	store := queue.NewStore(db)
	fake := &testsupport.FakeTranscoder{Segments: 3}
	return &harness{
		cfg:   cfg,
		db:    db,
		store: store,
		fake:  fake,
		w:     worker.New(cfg, store, fake, logging.NewNop()),
	}
}

func (h *harness) seed(t *testing.T, name string, withOriginal bool, created time.Time) (int64, string) {
	t.Helper()
	rel := filepath.Join("movies", name, "original", name+".mp4")
	if withOriginal {
		testsupport.WriteFile(t, filepath.Join(h.cfg.Paths.ContentRoot, rel), 1024)
	}
	_, id := testsupport.SeedFile(t, h.db, testsupport.FileFixture{Title: name, OriginalPath: rel, CreatedAt: created})
	return id, rel
}

func TestDrainProducesRenditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, rel := h.seed(t, "Film", true, time.Now())

	summary, err := h.w.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Ready != 1 || summary.Processed() != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := h.fake.Calls(); !reflect.DeepEqual(got, []string{"segmented", "preview", "poster"}) {
		t.Fatalf("unexpected transcoder calls: %v", got)
	}

	job, err := h.store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := worker.LayoutFor(rel)
	if job.Status != queue.StatusReady || job.HLSPath != want.HLS || job.PreviewPath != want.Preview || job.PosterPath != want.Poster {
		t.Fatalf("unexpected job after drain: %#v", job)
	}

	root := h.cfg.Paths.ContentRoot
	for _, path := range []string{want.HLS, want.Preview, want.Poster, "movies/Film/hls/Film_000.ts", "movies/Film/hls/Film_002.ts"} {
		if _, err := os.Stat(filepath.Join(root, path)); err != nil {
			t.Fatalf("expected %s: %v", path, err)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(root, "movies", "Film", "*", "*.partial.*"))
	if len(matches) != 0 {
		t.Fatalf("expected no partial files, found %v", matches)
	}
	manifest, _ := os.ReadFile(filepath.Join(root, want.HLS))
	if !strings.Contains(string(manifest), "Film_001.ts") {
		t.Fatalf("manifest does not list segments:\n%s", manifest)
	}
}

func TestDrainReusesExistingRenditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, rel := h.seed(t, "Done", true, time.Now())
	layout := worker.LayoutFor(rel)
	for _, path := range []string{layout.HLS, layout.Preview, layout.Poster} {
		testsupport.WriteFile(t, filepath.Join(h.cfg.Paths.ContentRoot, path), 16)
	}

	summary, err := h.w.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Ready != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if calls := h.fake.Calls(); len(calls) != 0 {
		t.Fatalf("expected no transcoder calls, got %v", calls)
	}
	job, _ := h.store.Get(ctx, id)
	if job.Status != queue.StatusReady {
		t.Fatalf("expected ready, got %s", job.Status)
	}

	summary, err = h.w.Drain(ctx)
	if err != nil || summary.Processed() != 0 {
		t.Fatalf("second drain should be a no-op, got %+v err=%v", summary, err)
	}
}

func TestMissingOriginalFailsAndLoopAdvances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	missing, _ := h.seed(t, "Gone", false, base)
	present, _ := h.seed(t, "Here", true, base.Add(time.Minute))

	summary, err := h.w.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Failed != 1 || summary.Ready != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	job, _ := h.store.Get(ctx, missing)
	if job.Status != queue.StatusFailed || job.Attempts != 1 {
		t.Fatalf("unexpected failed job: %#v", job)
	}
	if !strings.Contains(job.LastError, "original file missing") {
		t.Fatalf("expected missing-original error, got %q", job.LastError)
	}
	if job.NextAttemptAt == nil || !job.NextAttemptAt.After(time.Now()) {
		t.Fatalf("expected future retry time, got %v", job.NextAttemptAt)
	}
	if job, _ := h.store.Get(ctx, present); job.Status != queue.StatusReady {
		t.Fatalf("expected following job ready, got %s", job.Status)
	}
}

func TestTranscoderFailureExhaustsAttempts(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxAttempts(1))
	h.fake.Fail = map[string]error{"preview": services.Wrap(services.ErrExternalTool, "transcode", "preview", "exit status 1", nil)}
	ctx := context.Background()
	id, rel := h.seed(t, "Broken", true, time.Now())

	summary, err := h.w.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Dead != 1 {
		t.Fatalf("expected dead job, got %+v", summary)
	}
	job, _ := h.store.Get(ctx, id)
	if job.Status != queue.StatusDead || job.HLSPath != "" {
		t.Fatalf("unexpected dead job: %#v", job)
	}
	layout := worker.LayoutFor(rel)
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.ContentRoot, layout.Preview)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no published preview, stat err=%v", err)
	}

	if n, err := h.store.Retry(ctx, id); err != nil || n != 1 {
		t.Fatalf("Retry failed: n=%d err=%v", n, err)
	}
	h.fake.Fail = nil
	summary, err = h.w.Drain(ctx)
	if err != nil || summary.Ready != 1 {
		t.Fatalf("expected retried job to succeed, got %+v err=%v", summary, err)
	}
}

func TestDrainReclaimsInterruptedJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rel := "movies/Stuck/original/Stuck.mp4"
	testsupport.WriteFile(t, filepath.Join(h.cfg.Paths.ContentRoot, rel), 64)
	_, id := testsupport.SeedFile(t, h.db, testsupport.FileFixture{Title: "Stuck", OriginalPath: rel, Status: "processing"})

	summary, err := h.w.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Ready != 1 {
		t.Fatalf("expected reclaimed job processed, got %+v", summary)
	}
	if job, _ := h.store.Get(ctx, id); job.Status != queue.StatusReady {
		t.Fatalf("expected ready, got %s", job.Status)
	}
}

func TestDrainRefusesWhenLocked(t *testing.T) {
	h := newHarness(t)
	other := flock.New(h.cfg.WorkerLockPath())
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("pre-lock failed: ok=%v err=%v", ok, err)
	}
	defer other.Unlock()

	if _, err := h.w.Drain(context.Background()); !errors.Is(err, worker.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestRunWakesOnNotify(t *testing.T) {
	h := newHarness(t)
	h.cfg.Worker.QueuePollInterval = 3600
	w := worker.New(h.cfg, h.store, h.fake, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	id, _ := h.seed(t, "Late", true, time.Now())
	w.Notify()

	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := h.store.Get(context.Background(), id)
		if err == nil && job.Status == queue.StatusReady {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("job not processed after Notify: %#v err=%v", job, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestLayoutFor(t *testing.T) {
	layout := worker.LayoutFor("series/Show/s1/original/Show S1E2.mkv")
	if layout.HLS != "series/Show/s1/hls/Show S1E2.m3u8" {
		t.Fatalf("unexpected hls path %q", layout.HLS)
	}
	if layout.Preview != "series/Show/s1/preview/Show S1E2.mp4" || layout.Poster != "series/Show/s1/poster/Show S1E2.jpg" {
		t.Fatalf("unexpected preview/poster: %+v", layout.Renditions)
	}
	if layout.SegmentPattern != "series/Show/s1/hls/Show S1E2_%03d.ts" {
		t.Fatalf("unexpected segment pattern %q", layout.SegmentPattern)
	}
	if got := worker.LayoutFor("movies/A/original/50%.mp4").SegmentPattern; got != "movies/A/hls/50%%_%03d.ts" {
		t.Fatalf("expected escaped percent, got %q", got)
	}
}

type recordingNotifier struct {
	events   []notifications.Event
	payloads []notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return errors.New("ntfy unreachable")
}

func TestDrainPublishesReadyAndDeadEvents(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxAttempts(1))
	rec := &recordingNotifier{}
	h.w.WithNotifier(rec)
	ctx := context.Background()
	h.seed(t, "Good", true, time.Now().Add(-time.Minute))
	h.seed(t, "Gone", false, time.Now())

	summary, err := h.w.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if summary.Ready != 1 || summary.Dead != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	want := []notifications.Event{notifications.EventRenditionsReady, notifications.EventJobDead}
	if !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("unexpected events: %v", rec.events)
	}
	if rec.payloads[0]["title"] != "Good" || rec.payloads[1]["title"] != "Gone" {
		t.Fatalf("unexpected payloads: %v", rec.payloads)
	}
	if rec.payloads[1]["attempts"] != 1 {
		t.Fatalf("expected attempts 1, got %v", rec.payloads[1]["attempts"])
	}
}

func TestOnChangeFiresOnClaimAndSettle(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxAttempts(1))
	var changed []int64
	h.w.OnChange(func(id int64) { changed = append(changed, id) })
	good, _ := h.seed(t, "Good", true, time.Now().Add(-time.Minute))
	gone, _ := h.seed(t, "Gone", false, time.Now())

	if _, err := h.w.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	want := []int64{good, good, gone, gone}
	if !reflect.DeepEqual(changed, want) {
		t.Fatalf("expected changes %v, got %v", want, changed)
	}
}
