// Package scheduler drives the outbound polling loop: on a fixed interval it
// walks every binding, fetches the calls that appeared since the binding's
// watermark, renders the active template per call and delivers the
// notifications, then advances the watermark.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Houeta/callrelay-bot/internal/metrics"
	"github.com/Houeta/callrelay-bot/internal/models"
	"github.com/Houeta/callrelay-bot/internal/render"
	"github.com/Houeta/callrelay-bot/internal/repository"
)

// ErrCycleInProgress is returned when a cycle is requested while the
// previous one has not finished yet. Cycles never overlap: duplicate
// concurrent fetches would double-deliver every record in the window.
var ErrCycleInProgress = errors.New("reconciliation cycle already in progress")

// CallFetcher fetches the call records of one binding for one time window.
type CallFetcher interface {
	FetchNewCalls(ctx context.Context, apiKey, botID string, since, until time.Time) ([]models.CallRecord, error)
}

// BindingStore is the slice of the repository the scheduler reads and writes.
type BindingStore interface {
	ListActiveBindings(ctx context.Context) ([]models.ActiveBinding, error)
	UpdateWatermark(ctx context.Context, apiKey, botID string, checkedAt time.Time) error
	GetActiveTemplate(ctx context.Context) (models.Template, error)
}

// Notifier delivers one rendered call notification: the transcript as a
// document attachment with the rendered template as its caption.
type Notifier interface {
	SendCallReport(chatID int64, caption string, transcript []byte, filename string) error
}

// Scheduler is the periodic reconciliation driver.
type Scheduler struct {
	log      *slog.Logger
	store    BindingStore
	fetcher  CallFetcher
	notifier Notifier
	metrics  *metrics.Metrics
	interval time.Duration
	lookback time.Duration

	mu  sync.Mutex
	now func() time.Time
}

// New creates a scheduler. interval is the polling cadence; lookback bounds
// the first fetch window of a binding that has never been checked.
func New(
	log *slog.Logger,
	store BindingStore,
	fetcher CallFetcher,
	notifier Notifier,
	appMetrics *metrics.Metrics,
	interval, lookback time.Duration,
) *Scheduler {
	return &Scheduler{
		log:      log,
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		metrics:  appMetrics,
		interval: interval,
		lookback: lookback,
		now:      time.Now,
	}
}

// Run executes reconciliation cycles until ctx is canceled. Ticks that
// arrive while a cycle is still running are skipped, so a slow cycle delays
// the next one instead of stacking up.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.InfoContext(ctx, "Scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "Scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil && !errors.Is(err, repository.ErrNoActiveTemplate) {
				s.log.ErrorContext(ctx, "Reconciliation cycle failed", "error", err)
			}
		}
	}
}

// RunCycle performs one full pass over all bindings. The cycle aborts before
// any fetch when no template is active: delivery without a template is
// impossible and must not partially execute. Per-binding failures are
// isolated, one broken binding never blocks the others.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	if !s.mu.TryLock() {
		s.log.WarnContext(ctx, "Skipping reconciliation cycle, previous one still running")
		return ErrCycleInProgress
	}
	defer s.mu.Unlock()

	s.log.InfoContext(ctx, "Reconciliation cycle started")
	cycleStart := s.now()

	template, err := s.store.GetActiveTemplate(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveTemplate) {
			s.log.WarnContext(ctx, "No active template, reconciliation cycle aborted")
			s.metrics.ReconcileCycles.WithLabelValues("no_template").Inc()
			return err
		}
		s.metrics.ReconcileCycles.WithLabelValues("failed").Inc()
		return err
	}

	bindings, err := s.store.ListActiveBindings(ctx)
	if err != nil {
		s.metrics.ReconcileCycles.WithLabelValues("failed").Inc()
		return err
	}

	for _, binding := range bindings {
		s.processBinding(ctx, template.Text, binding)
	}

	s.metrics.ReconcileCycles.WithLabelValues("completed").Inc()
	s.metrics.CycleDuration.Observe(s.now().Sub(cycleStart).Seconds())
	s.log.InfoContext(ctx, "Reconciliation cycle finished", "bindings", len(bindings))

	return nil
}

// processBinding reconciles a single binding: fetch, render+send per record,
// advance the watermark. The watermark is set to the timestamp captured
// before the fetch, and it advances even when the fetch fails or yields
// nothing — retrying the same window forever would flood the platform, at
// the accepted cost of dropping records from a transient outage window.
func (s *Scheduler) processBinding(ctx context.Context, templateText string, binding models.ActiveBinding) {
	checkTime := s.now()

	since := checkTime.Add(-s.lookback)
	if binding.LastCheckedAt != nil {
		since = *binding.LastCheckedAt
	}

	calls, err := s.fetcher.FetchNewCalls(ctx, binding.APIKey, binding.BotID, since, checkTime)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to fetch calls, treating as empty",
			"bot_id", binding.BotID, "error", err)
		s.metrics.NotifyFailures.WithLabelValues("fetch").Inc()
		calls = nil
	}
	s.metrics.CallsFetched.Add(float64(len(calls)))

	for _, call := range calls {
		s.notify(ctx, templateText, binding, call)
	}

	if err = s.store.UpdateWatermark(ctx, binding.APIKey, binding.BotID, checkTime); err != nil {
		s.log.ErrorContext(ctx, "Failed to update watermark",
			"bot_id", binding.BotID, "error", err)
	}
}

// notify renders and delivers one call record. A render failure means the
// active template references a variable this path does not provide — the
// record is skipped and the typo is logged for the admins; delivery failures
// are skipped the same way.
func (s *Scheduler) notify(ctx context.Context, templateText string, binding models.ActiveBinding, call models.CallRecord) {
	vars := map[string]string{
		"call_time":          call.Time,
		"audio_link":         call.AudioLink,
		"summarizing_pretty": call.Summary,
	}

	caption, err := render.Render(templateText, vars)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to render notification for call",
			"chat_id", binding.TelegramID, "call_id", call.ID, "error", err)
		s.metrics.NotifyFailures.WithLabelValues("render").Inc()
		return
	}

	err = s.notifier.SendCallReport(binding.TelegramID, caption, []byte(call.Transcript), call.TranscriptFilename)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to deliver notification",
			"chat_id", binding.TelegramID, "call_id", call.ID, "error", err)
		s.metrics.NotifyFailures.WithLabelValues("delivery").Inc()
		return
	}

	s.metrics.SentMessages.WithLabelValues("scheduler").Inc()
	s.log.InfoContext(ctx, "Notification delivered", "chat_id", binding.TelegramID, "call_id", call.ID)
}
