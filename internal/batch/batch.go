// Package batch turns every matching directory record into a contact-card
// image, continuing past per-record failures.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smileynet/qrcard/internal/directory"
	"github.com/smileynet/qrcard/internal/output"
	"github.com/smileynet/qrcard/internal/render"
	"github.com/smileynet/qrcard/internal/vcard"
)

// ErrInterrupted reports that cancellation stopped the batch before every
// record was dispatched. The returned Report is still complete for the
// records that ran.
var ErrInterrupted = errors.New("batch: interrupted")

// Renderer turns a payload into image file bytes.
type Renderer interface {
	Render(payload []byte, cfg render.Config) ([]byte, error)
}

// ReportStore persists finished reports.
type ReportStore interface {
	Save(r Report) error
}

// Callback receives batch lifecycle events for display. The runner never
// calls it concurrently.
type Callback interface {
	OnBatchStart(total int)
	OnRecordStart(index int, identity string)
	OnRecordDone(index int, identity, location string)
	OnRecordFail(index int, f Failure)
	OnBatchComplete(r Report)
}

type nopCallback struct{}

func (nopCallback) OnBatchStart(int)                 {}
func (nopCallback) OnRecordStart(int, string)        {}
func (nopCallback) OnRecordDone(int, string, string) {}
func (nopCallback) OnRecordFail(int, Failure)        {}
func (nopCallback) OnBatchComplete(Report)           {}

// Option configures a Runner.
type Option func(*Runner)

// WithConfig sets the render configuration shared by every record.
func WithConfig(cfg render.Config) Option { return func(r *Runner) { r.cfg = cfg } }

// WithWorkers bounds the number of records processed at once.
func WithWorkers(n int) Option { return func(r *Runner) { r.workers = n } }

// WithCollisionPolicy sets how duplicate file names are handled.
func WithCollisionPolicy(p output.CollisionPolicy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithCallback sets the lifecycle event receiver.
func WithCallback(cb Callback) Option { return func(r *Runner) { r.callback = cb } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Runner) { r.log = l } }

// WithReportStore persists each finished report. Save failures are logged, not returned.
func WithReportStore(s ReportStore) Option { return func(r *Runner) { r.store = s } }

// Runner drives the per-record pipeline: validate, name, build, render, write.
type Runner struct {
	source   directory.Source
	renderer Renderer
	sink     output.Sink

	cfg      render.Config
	workers  int
	policy   output.CollisionPolicy
	callback Callback
	log      *zap.Logger
	store    ReportStore

	mu sync.Mutex // serializes callback
}

// NewRunner creates a Runner. Defaults: render.DefaultConfig, one worker,
// suffix collision policy, no callback, no-op logger, no report store.
func NewRunner(source directory.Source, renderer Renderer, sink output.Sink, opts ...Option) *Runner {
	r := &Runner{
		source:   source,
		renderer: renderer,
		sink:     sink,
		cfg:      render.DefaultConfig(),
		workers:  1,
		policy:   output.CollisionSuffix,
		callback: nopCallback{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type outcome int

const (
	pending outcome = iota
	succeeded
	failed
	skipped
)

type result struct {
	outcome outcome
	failure Failure
	output  Output
}

type job struct {
	index  int
	record directory.Record
	name   string
}

// Run processes every record matching filter. Configuration, source and
// destination errors are fatal and returned before any record is processed.
// Per-record errors end up in Report.Failures and never abort the batch.
func (r *Runner) Run(ctx context.Context, filter string) (Report, error) {
	if err := r.cfg.Validate(); err != nil {
		return Report{}, err
	}
	if r.workers < 1 {
		return Report{}, fmt.Errorf("%w: workers must be at least 1, got %d", render.ErrConfig, r.workers)
	}

	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Filter:    filter,
	}
	log := r.log.With(zap.String("run_id", report.RunID))

	records, err := r.source.Search(ctx, filter)
	if err != nil {
		return report, fmt.Errorf("batch: searching directory: %w", err)
	}
	if err := r.sink.Ensure(ctx); err != nil {
		return report, fmt.Errorf("batch: preparing output: %w", err)
	}

	report.Total = len(records)
	log.Info("batch started", zap.String("filter", filter), zap.Int("records", len(records)), zap.Int("workers", r.workers))
	r.emit(func(cb Callback) { cb.OnBatchStart(len(records)) })

	results := make([]result, len(records))
	jobs := r.plan(records, results, log)

	var g errgroup.Group
	g.SetLimit(r.workers)
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		j := j
		g.Go(func() error {
			results[j.index] = r.process(ctx, j, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		switch res.outcome {
		case succeeded:
			report.Processed++
			report.Succeeded++
			report.Outputs = append(report.Outputs, res.output)
		case failed:
			report.Processed++
			report.Failures = append(report.Failures, res.failure)
		default:
			report.Skipped++
		}
	}
	report.Interrupted = report.Skipped > 0
	report.FinishedAt = time.Now()

	log.Info("batch finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed()),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.Duration()))
	r.emit(func(cb Callback) { cb.OnBatchComplete(report) })

	if r.store != nil {
		if err := r.store.Save(report); err != nil {
			log.Warn("saving report", zap.Error(err))
		}
	}

	if report.Interrupted {
		return report, ErrInterrupted
	}
	return report, nil
}

// plan validates records and assigns file names in source order, so name
// collisions resolve the same way however workers are scheduled. Records
// that fail here are recorded directly and not dispatched.
func (r *Runner) plan(records []directory.Record, results []result, log *zap.Logger) []job {
	namer := output.NewNamer(r.policy, r.cfg.Format.Ext())
	jobs := make([]job, 0, len(records))
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			results[i] = r.fail(i, rec, StageValidate, err, log)
			continue
		}
		name, err := namer.Assign(rec)
		if err != nil {
			results[i] = r.fail(i, rec, StageName, err, log)
			continue
		}
		jobs = append(jobs, job{index: i, record: rec, name: name})
	}
	return jobs
}

// process runs one record through build, render and write. A record that
// has not started when ctx is cancelled is skipped; a started record
// finishes its write regardless of cancellation.
func (r *Runner) process(ctx context.Context, j job, log *zap.Logger) result {
	if ctx.Err() != nil {
		return result{outcome: skipped}
	}
	id := j.record.Identity()
	log.Debug("record started", zap.Int("index", j.index), zap.String("record", id))
	r.emit(func(cb Callback) { cb.OnRecordStart(j.index, id) })

	payload := vcard.Build(j.record)
	data, err := r.renderer.Render(payload.Bytes(), r.cfg)
	if err != nil {
		return r.fail(j.index, j.record, StageRender, err, log)
	}
	if err := r.sink.Write(context.WithoutCancel(ctx), j.name, data); err != nil {
		return r.fail(j.index, j.record, StageWrite, err, log)
	}

	loc := r.sink.Location(j.name)
	log.Info("card written", zap.String("record", id), zap.String("location", loc), zap.Int("bytes", len(data)))
	r.emit(func(cb Callback) { cb.OnRecordDone(j.index, id, loc) })
	return result{
		outcome: succeeded,
		output:  Output{Identity: id, Name: j.name, Location: loc},
	}
}

func (r *Runner) fail(index int, rec directory.Record, stage Stage, err error, log *zap.Logger) result {
	f := Failure{
		Identity:    rec.Identity(),
		DisplayName: rec.DisplayName,
		Stage:       stage,
		Reason:      err.Error(),
	}
	log.Warn("record failed", zap.String("record", f.Identity), zap.String("stage", string(stage)), zap.Error(err))
	r.emit(func(cb Callback) { cb.OnRecordFail(index, f) })
	return result{outcome: failed, failure: f}
}

func (r *Runner) emit(fn func(Callback)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.callback)
}
