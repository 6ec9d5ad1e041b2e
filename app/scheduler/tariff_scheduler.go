// Package scheduler drives the periodic fetch, store and publish cycle
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amirphl/wb-tariffs-sync/app/services"
	businessflow "github.com/amirphl/wb-tariffs-sync/business_flow"
	"github.com/amirphl/wb-tariffs-sync/models"
	"github.com/amirphl/wb-tariffs-sync/utils"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrTickSkipped is returned when a tick is requested while another one is running
var ErrTickSkipped = errors.New("tick skipped: previous tick still running")

type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a side-effect free view of the scheduler
type Status struct {
	State             State      `json:"state"`
	LastSuccessAt     *time.Time `json:"last_success_at"`
	ConfiguredTargets int        `json:"configured_targets"`
	NextRunAt         *time.Time `json:"next_run_at"`
}

// RunReport describes one completed (or aborted) tick
type RunReport struct {
	RunID      string                     `json:"run_id"`
	Trigger    string                     `json:"trigger"`
	Date       time.Time                  `json:"date"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Upsert     *businessflow.UpsertResult `json:"upsert,omitempty"`
	Rows       int                        `json:"rows"`
	Published  []string                   `json:"published"`
	Failed     []string                   `json:"failed"`
}

type Options struct {
	Cron           string
	Location       *time.Location
	RunOnStart     bool
	TickTimeout    time.Duration
	Targets        []string
	SortBy         models.SortBy
	MaxConcurrency int
}

// TariffScheduler runs at most one tick at a time; overlapping requests are dropped, never queued
type TariffScheduler struct {
	fetcher   services.TariffFetcher
	store     businessflow.TariffSnapshotFlow
	publisher services.SheetPublisher
	opts      Options
	logger    zerolog.Logger
	now       func() time.Time

	state atomic.Int32

	mu          sync.RWMutex
	lastSuccess *time.Time
	cron        *cron.Cron
	entryID     cron.EntryID
	baseCtx     context.Context
	stopped     bool

	wg sync.WaitGroup
}

func NewTariffScheduler(
	fetcher services.TariffFetcher,
	store businessflow.TariffSnapshotFlow,
	publisher services.SheetPublisher,
	opts Options,
	logger zerolog.Logger,
) *TariffScheduler {
	if opts.Cron == "" {
		opts.Cron = utils.DefaultSchedulerCron
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SortBy == "" {
		opts.SortBy = models.SortByStorage
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = max(len(opts.Targets), 1)
	}

	return &TariffScheduler{
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		opts:      opts,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		now:       time.Now,
	}
}

// Start registers the cron trigger and, when configured, fires one tick right away.
// The returned stop function halts the trigger and waits for a running tick to finish.
func (s *TariffScheduler) Start(ctx context.Context) (func(), error) {
	c := cron.New(cron.WithSeconds(), cron.WithLocation(s.opts.Location))
	entryID, err := c.AddFunc(s.opts.Cron, func() {
		_, _ = s.run(ctx, "cron")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", s.opts.Cron, err)
	}

	s.mu.Lock()
	s.cron = c
	s.entryID = entryID
	s.baseCtx = ctx
	s.mu.Unlock()

	c.Start()
	s.logger.Info().
		Str("schedule", s.opts.Cron).
		Str("timezone", s.opts.Location.String()).
		Int("targets", len(s.opts.Targets)).
		Msg("Scheduler started")

	if s.opts.RunOnStart {
		s.trigger("startup")
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			s.stopped = true
			s.mu.Unlock()

			<-c.Stop().Done()
			s.wg.Wait()
			s.logger.Info().Msg("Scheduler stopped")
		})
	}
	return stop, nil
}

// RunOnce runs a full tick synchronously, or returns ErrTickSkipped if one is already running
func (s *TariffScheduler) RunOnce(ctx context.Context) (*RunReport, error) {
	return s.run(ctx, "manual")
}

// TryTrigger starts a tick in the background. It returns false if a tick is already running
// or the scheduler has been stopped.
func (s *TariffScheduler) TryTrigger() bool {
	return s.trigger("manual")
}

func (s *TariffScheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:             State(s.state.Load()),
		ConfiguredTargets: len(s.opts.Targets),
	}
	if s.lastSuccess != nil {
		t := *s.lastSuccess
		st.LastSuccessAt = &t
	}
	if s.cron != nil {
		if entry := s.cron.Entry(s.entryID); entry.Valid() && !entry.Next.IsZero() {
			next := entry.Next
			st.NextRunAt = &next
		}
	}
	return st
}

// trigger holds mu across wg.Add so a concurrent stop either sees the tick or rejects it
func (s *TariffScheduler) trigger(trigger string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Warn().Str("trigger", trigger).Msg("Tick rejected, scheduler is stopped")
		return false
	}
	if !s.tryEnter() {
		s.skipped(trigger)
		return false
	}

	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.leave()
		_, _ = s.tick(ctx, trigger)
	}()
	return true
}

func (s *TariffScheduler) run(ctx context.Context, trigger string) (*RunReport, error) {
	if !s.tryEnter() {
		s.skipped(trigger)
		return nil, ErrTickSkipped
	}
	defer s.leave()
	return s.tick(ctx, trigger)
}

func (s *TariffScheduler) tryEnter() bool {
	if s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		tickRunning.Set(1)
		return true
	}
	return false
}

func (s *TariffScheduler) leave() {
	s.state.Store(int32(StateIdle))
	tickRunning.Set(0)
}

func (s *TariffScheduler) skipped(trigger string) {
	ticksTotal.WithLabelValues("skipped").Inc()
	s.logger.Warn().Str("trigger", trigger).Msg("Tick skipped, previous tick still running")
}

func (s *TariffScheduler) tick(ctx context.Context, trigger string) (report *RunReport, err error) {
	startedAt := s.now()
	report = &RunReport{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		Date:      utils.DateOnly(startedAt.In(s.opts.Location)),
		StartedAt: startedAt,
		Published: []string{},
		Failed:    []string{},
	}
	log := s.logger.With().Str("run_id", report.RunID).Str("trigger", trigger).Logger()

	stage := "fetch"
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked during %s: %v", stage, r)
			log.Error().Str("stage", stage).Interface("panic", r).Msg("Tick panicked")
		}
		report.FinishedAt = s.now()
		tickDuration.Observe(report.FinishedAt.Sub(startedAt).Seconds())
		if err != nil {
			ticksTotal.WithLabelValues("failure").Inc()
			tickFailuresTotal.WithLabelValues(stage).Inc()
			return
		}
		ticksTotal.WithLabelValues("success").Inc()
	}()

	if s.opts.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TickTimeout)
		defer cancel()
	}

	log.Info().Str("date", utils.FormatDate(report.Date)).Msg("Tick started")

	payload, err := s.fetcher.FetchTariffs(ctx, report.Date)
	if err != nil {
		log.Error().Err(err).Str("stage", stage).Msg("Tick failed")
		return report, businessflow.NewBusinessError(businessflow.CodeFetchFailed, "fetch tariffs", err)
	}

	stage = "store"
	report.Upsert, err = s.store.UpsertSnapshot(ctx, payload, report.Date)
	if err != nil {
		log.Error().Err(err).Str("stage", stage).Msg("Tick failed")
		return report, fmt.Errorf("store snapshot: %w", err)
	}

	stage = "read"
	rows, err := s.store.ReadSnapshotForPublish(ctx, report.Date, s.opts.SortBy)
	if err != nil {
		log.Error().Err(err).Str("stage", stage).Msg("Tick failed")
		return report, fmt.Errorf("read snapshot: %w", err)
	}
	report.Rows = len(rows)

	stage = "publish"
	if len(rows) == 0 {
		log.Warn().Msg("Snapshot is empty, nothing to publish")
	} else if len(s.opts.Targets) == 0 {
		log.Warn().Msg("No sheet targets configured")
	} else if err = s.publishAll(ctx, log, rows, report); err != nil {
		return report, businessflow.NewBusinessError(businessflow.CodePublishFailed, "publish snapshot", err)
	}

	s.markSuccess(s.now())
	snapshotRows.Set(float64(len(rows)))

	log.Info().
		Int("rows", report.Rows).
		Int("published", len(report.Published)).
		Dur("duration", s.now().Sub(startedAt)).
		Msg("Tick completed")
	return report, nil
}

// publishAll writes rows to every target concurrently and waits for all of them.
// Each goroutine owns one error slot; failures never cancel the other targets.
func (s *TariffScheduler) publishAll(ctx context.Context, log zerolog.Logger, rows []models.PublishRow, report *RunReport) error {
	targets := s.opts.Targets
	errs := make([]error, len(targets))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrency)
	for i, target := range targets {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = &services.PublishError{Target: target, Op: "publish", Err: fmt.Errorf("panic: %v", r)}
				}
			}()

			err := s.publisher.Publish(ctx, target, rows)
			if err != nil && !services.IsPublishError(err) {
				err = &services.PublishError{Target: target, Op: "publish", Err: err}
			}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	for i, target := range targets {
		kind := targetKind(target)
		if errs[i] != nil {
			publishTotal.WithLabelValues(kind, "failure").Inc()
			report.Failed = append(report.Failed, target)
			log.Error().Err(errs[i]).Str("stage", "publish").Str("target", target).Msg("Publish failed")
			continue
		}
		publishTotal.WithLabelValues(kind, "success").Inc()
		report.Published = append(report.Published, target)
		log.Info().Str("target", target).Int("rows", len(rows)).Msg("Target updated")
	}

	return errors.Join(errs...)
}

func (s *TariffScheduler) markSuccess(at time.Time) {
	s.mu.Lock()
	s.lastSuccess = &at
	s.mu.Unlock()
	lastSuccessTimestamp.Set(float64(at.Unix()))
}

func targetKind(target string) string {
	if services.IsXLSXTarget(target) {
		return "xlsx"
	}
	return "google"
}
