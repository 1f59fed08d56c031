package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"streamgate/internal/assets"
	"streamgate/internal/config"
	"streamgate/internal/fileutil"
	"streamgate/internal/logging"
	"streamgate/internal/notifications"
	"streamgate/internal/queue"
	"streamgate/internal/services"
	"streamgate/internal/transcode"
)

// Outcome is the result of one RunOnce call.
type Outcome string

const (
	OutcomeIdle    Outcome = "idle"
	OutcomeReady   Outcome = "ready"
	OutcomeFailed  Outcome = "failed"
	OutcomeDead    Outcome = "dead"
	OutcomeSkipped Outcome = "skipped"
)

// Summary counts the outcomes of a Drain.
type Summary struct {
	Ready   int
	Failed  int
	Dead    int
	Skipped int
}

// Processed returns the number of jobs that reached an outcome.
func (s Summary) Processed() int {
	return s.Ready + s.Failed + s.Dead + s.Skipped
}

func (s *Summary) add(outcome Outcome) {
	switch outcome {
	case OutcomeReady:
		s.Ready++
	case OutcomeFailed:
		s.Failed++
	case OutcomeDead:
		s.Dead++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// Worker processes queued content files.
type Worker struct {
	store      *queue.Store
	transcoder transcode.Transcoder
	notifier   notifications.Service
	onChange   func(contentFileID int64)
	logger     *slog.Logger

	root           string
	lockPath       string
	policy         queue.Policy
	previewSeconds int
	posterOffset   int
	pollInterval   time.Duration
	errorRetry     time.Duration

	wake chan struct{}
	now  func() time.Time
}

// New builds a worker from configuration.
func New(cfg *config.Config, store *queue.Store, tc transcode.Transcoder, logger *slog.Logger) *Worker {
	return &Worker{
		store:      store,
		transcoder: tc,
		notifier:   notifications.NewService(cfg),
		logger:     logging.NewComponentLogger(logger, "worker"),
		root:       cfg.Paths.ContentRoot,
		lockPath:   cfg.WorkerLockPath(),
		policy: queue.Policy{
			MaxAttempts: cfg.Worker.MaxAttempts,
			Base:        time.Duration(cfg.Worker.BackoffBaseSeconds) * time.Second,
			Max:         time.Duration(cfg.Worker.BackoffMaxSeconds) * time.Second,
		},
		previewSeconds: cfg.Transcoder.PreviewSeconds,
		posterOffset:   cfg.Transcoder.PosterOffsetSeconds,
		pollInterval:   cfg.PollInterval(),
		errorRetry:     cfg.ErrorRetryInterval(),
		wake:           make(chan struct{}, 1),
		now:            time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// WithNotifier replaces the event publisher built from configuration.
func (w *Worker) WithNotifier(n notifications.Service) *Worker {
	w.notifier = n
	return w
}

// OnChange registers fn to run after a job is claimed or settles. The server
// uses it to drop stale lookups.
func (w *Worker) OnChange(fn func(contentFileID int64)) *Worker {
	w.onChange = fn
	return w
}

func (w *Worker) changed(id int64) {
	if w.onChange != nil {
		w.onChange(id)
	}
}

// Notify wakes a sleeping Run loop. It never blocks.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// start takes the worker lock and returns rows a crashed worker left in
// processing to the queue.
func (w *Worker) start(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(w.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock, err := acquire(w.lockPath)
	if err != nil {
		return nil, err
	}
	release := func() {
		if err := lock.Unlock(); err != nil {
			w.logger.Warn("failed to release worker lock", logging.Error(err))
		}
	}

	reclaimed, err := w.store.ReclaimStale(ctx)
	if err != nil {
		release()
		return nil, err
	}
	if reclaimed > 0 {
		w.logger.Info("reclaimed interrupted jobs", logging.Int64("count", reclaimed))
	}
	return release, nil
}

// Drain processes eligible jobs until none remain and returns what happened.
// A job that becomes eligible again during the same drain is left for the
// next one. Store errors stop the drain and are returned.
func (w *Worker) Drain(ctx context.Context) (Summary, error) {
	release, err := w.start(ctx)
	if err != nil {
		return Summary{}, err
	}
	defer release()

	var summary Summary
	seen := make(map[int64]struct{})
	for ctx.Err() == nil {
		job, err := w.store.Next(ctx, w.now())
		if err != nil {
			return summary, err
		}
		if job == nil {
			break
		}
		if _, ok := seen[job.ID]; ok {
			break
		}
		seen[job.ID] = struct{}{}

		outcome, err := w.handle(ctx, job)
		if err != nil {
			return summary, err
		}
		summary.add(outcome)
	}
	w.logger.Info("queue drained",
		logging.Int("ready", summary.Ready),
		logging.Int("failed", summary.Failed),
		logging.Int("dead", summary.Dead),
		logging.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// Run processes jobs until ctx is cancelled. Idle periods wait for the poll
// interval or a Notify; store errors are logged and retried after the error
// retry interval.
func (w *Worker) Run(ctx context.Context) error {
	release, err := w.start(ctx)
	if err != nil {
		return err
	}
	defer release()

	w.logger.Info("worker started",
		logging.Duration("poll_interval", w.pollInterval),
		logging.Int("max_attempts", w.policy.MaxAttempts),
	)
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}

		outcome, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logging.ErrorWithContext(w.logger, "queue access failed", "queue_store_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			w.sleep(ctx, w.errorRetry, false)
			continue
		}
		if outcome == OutcomeIdle {
			w.sleep(ctx, w.pollInterval, true)
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration, wakeable bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	var wake <-chan struct{}
	if wakeable {
		wake = w.wake
	}
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-wake:
	}
}

// RunOnce processes the next eligible job, if any. It does not take the
// worker lock; Run and Drain do.
func (w *Worker) RunOnce(ctx context.Context) (Outcome, error) {
	job, err := w.store.Next(ctx, w.now())
	if err != nil {
		return OutcomeIdle, err
	}
	if job == nil {
		return OutcomeIdle, nil
	}
	return w.handle(ctx, job)
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) (Outcome, error) {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, w.logger).With(
		logging.String("title", job.Title),
		logging.String("original", job.OriginalPath),
	)

	if err := w.store.Claim(ctx, job.ID); err != nil {
		if errors.Is(err, queue.ErrNotClaimed) {
			logger.Debug("job claimed elsewhere; skipping")
			jobsTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
			return OutcomeSkipped, nil
		}
		return OutcomeIdle, err
	}
	w.changed(job.ID)

	start := time.Now()
	renditions, procErr := w.process(ctx, logger, job)
	jobDuration.Observe(time.Since(start).Seconds())

	if procErr == nil {
		err := w.store.Complete(ctx, job.ID, renditions)
		w.changed(job.ID)
		if err != nil {
			if errors.Is(err, queue.ErrNotClaimed) {
				logging.WarnWithContext(logger, "job changed state while processing", "job_claim_lost",
					logging.String(logging.FieldErrorHint, "another process reset the row; it will be reprocessed"),
				)
				jobsTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
				return OutcomeSkipped, nil
			}
			return OutcomeIdle, err
		}
		logger.Info("job ready",
			logging.String("hls", renditions.HLS),
			logging.Duration("elapsed", time.Since(start)),
		)
		jobsTotal.WithLabelValues(string(OutcomeReady)).Inc()
		w.publish(ctx, logger, notifications.EventRenditionsReady, notifications.Payload{"title": job.Title})
		return OutcomeReady, nil
	}

	status, err := w.store.Fail(ctx, job.ID, procErr, w.policy, w.now())
	w.changed(job.ID)
	if err != nil {
		return OutcomeIdle, err
	}
	eventType, hint := services.Details(procErr)
	outcome := OutcomeFailed
	if status == queue.StatusDead {
		outcome = OutcomeDead
		logging.ErrorWithContext(logger, "job exhausted retries", eventType,
			logging.Error(procErr),
			logging.Int("attempts", job.Attempts+1),
			logging.String(logging.FieldErrorHint, "fix the cause then run 'streamgate queue retry'"),
			logging.Alert("job_dead"),
		)
		w.publish(ctx, logger, notifications.EventJobDead, notifications.Payload{
			"title":    job.Title,
			"attempts": job.Attempts + 1,
			"error":    procErr,
		})
	} else {
		logging.WarnWithContext(logger, "job failed; will retry", eventType,
			logging.Error(procErr),
			logging.Int("attempts", job.Attempts+1),
			logging.String(logging.FieldErrorHint, hint),
		)
	}
	jobsTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}

func (w *Worker) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logger, "notification not delivered", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

// process produces the renditions for job. Outputs that already exist in full
// are reused without invoking the transcoder.
func (w *Worker) process(ctx context.Context, logger *slog.Logger, job *queue.Job) (queue.Renditions, error) {
	src, err := assets.Resolve(w.root, job.OriginalPath)
	if err != nil {
		return queue.Renditions{}, err
	}
	if !assets.Exists(src) {
		return queue.Renditions{}, services.Wrap(services.ErrNotFound, "worker", "locate", "original file missing", nil)
	}

	layout := LayoutFor(job.OriginalPath)
	abs := func(rel string) string { return filepath.Join(w.root, rel) }
	manifest, preview, poster := abs(layout.HLS), abs(layout.Preview), abs(layout.Poster)

	if assets.Exists(manifest) && assets.Exists(preview) && assets.Exists(poster) {
		logger.Info("renditions already present; skipping transcode")
		return layout.Renditions, nil
	}

	for _, path := range []string{manifest, preview, poster} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return queue.Renditions{}, services.Wrap(services.ErrConfiguration, "worker", "prepare", "create output directory", err)
		}
	}

	steps := []struct {
		name string
		dst  string
		run  func(partial string) error
	}{
		{"segmented", manifest, func(partial string) error {
			return w.transcoder.Segmented(ctx, src, partial, abs(layout.SegmentPattern))
		}},
		{"preview", preview, func(partial string) error {
			return w.transcoder.Preview(ctx, src, partial, w.previewSeconds)
		}},
		{"poster", poster, func(partial string) error {
			return w.transcoder.Poster(ctx, src, partial, w.posterOffset)
		}},
	}
	for _, step := range steps {
		partial := fileutil.PartialPath(step.dst)
		if err := step.run(partial); err != nil {
			fileutil.Discard(step.dst)
			return queue.Renditions{}, err
		}
		if err := fileutil.Publish(step.dst); err != nil {
			fileutil.Discard(step.dst)
			return queue.Renditions{}, services.Wrap(services.ErrExternalTool, "worker", step.name, "no output produced", err)
		}
		logger.Debug("rendition written", logging.String("step", step.name), logging.String("path", step.dst))
	}
	return layout.Renditions, nil
}
