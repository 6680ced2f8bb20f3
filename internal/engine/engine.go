package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/klaxon/internal/alert"
	"github.com/linnemanlabs/klaxon/internal/alertstore"
	"github.com/linnemanlabs/klaxon/internal/backend"
	"github.com/linnemanlabs/klaxon/internal/journal"
	"github.com/linnemanlabs/klaxon/internal/notify"
)

var tracer = otel.Tracer("github.com/linnemanlabs/klaxon/internal/engine")

const (
	DefaultPollInterval  = 10 * time.Second
	DefaultToastDuration = 5 * time.Second
	// ToastMessage is the text of the toast shown for every new alert.
	ToastMessage  = "New Fire Emergency Alert!"
	effectTimeout = 15 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNoBackend      = errors.New("no backend configured for status updates")
	ErrNotFound       = errors.New("alert not found")
)

// Fetcher returns the backend's full alert snapshot.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) ([]alert.Record, error)
}

// StatusUpdater pushes read-state changes to the backend.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id string, status alert.Status) error
}

// AlertGetter looks up one alert on the backend.
type AlertGetter interface {
	GetAlert(ctx context.Context, id string) (alert.Record, error)
}

// Sounder plays the alert tone. It must not return until playback has
// started or every option failed.
type Sounder interface {
	Play(ctx context.Context)
}

// Hooks observe engine activity. Nil funcs are skipped.
type Hooks struct {
	OnInsert    func(source alert.Source)
	OnDuplicate func(source alert.Source)
	OnEffects   func(source alert.Source)
	OnPoll      func(outcome string, duration time.Duration)
	OnStore     func(size, unread int)
}

// Options configures an Engine.
type Options struct {
	Fetcher       Fetcher
	Updater       StatusUpdater
	Getter        AlertGetter
	Sound         Sounder
	Toaster       notify.Toaster
	Journal       journal.Journal
	PollInterval  time.Duration
	ToastDuration time.Duration
	Logger        log.Logger
	Hooks         Hooks
}

// Engine is the reconciliation engine.
type Engine struct {
	store    *alertstore.Store
	fetcher  Fetcher
	updater  StatusUpdater
	getter   AlertGetter
	sound    Sounder
	toaster  notify.Toaster
	journal  journal.Journal
	interval time.Duration
	toastDur time.Duration
	logger   log.Logger
	hooks    Hooks
	now      func() time.Time

	refresh chan struct{}

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	statusMu sync.Mutex
	status   Status
}

// New creates an Engine with an empty store.
func New(opts Options) *Engine {
	if opts.Fetcher == nil {
		panic(xerrors.New("engine fetcher is required"))
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Toaster == nil {
		opts.Toaster = notify.Nop{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ToastDuration <= 0 {
		opts.ToastDuration = DefaultToastDuration
	}
	return &Engine{
		store:    alertstore.New(),
		fetcher:  opts.Fetcher,
		updater:  opts.Updater,
		getter:   opts.Getter,
		sound:    opts.Sound,
		toaster:  opts.Toaster,
		journal:  opts.Journal,
		interval: opts.PollInterval,
		toastDur: opts.ToastDuration,
		logger:   opts.Logger,
		hooks:    opts.Hooks,
		now:      time.Now,
		refresh:  make(chan struct{}, 1),
		status:   Status{PollInterval: opts.PollInterval},
	}
}

// View exposes the store read-only.
func (e *Engine) View() alertstore.View { return e.store }

// HandlePush merges a push-delivered alert. Effects fire synchronously if
// the alert is new. A poll refresh is requested either way so the backend's
// copy of the alert arrives promptly.
func (e *Engine) HandlePush(ctx context.Context, rec alert.Record) bool {
	ctx, span := tracer.Start(ctx, "engine.push", trace.WithAttributes(
		attribute.String("klaxon.alert.id", rec.ID),
	))
	defer span.End()

	rec.Status = alert.StatusPending
	rec.Source = alert.SourcePush
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = e.now()
	}

	inserted := e.store.UpsertIfNew(rec)
	span.SetAttributes(attribute.Bool("klaxon.alert.inserted", inserted))
	if !inserted {
		e.hook(e.hooks.OnDuplicate, alert.SourcePush)
		e.logger.Info(ctx, "push alert already known", "alert_id", rec.ID)
		e.Refresh()
		return false
	}

	e.hook(e.hooks.OnInsert, alert.SourcePush)
	e.observeStore()
	e.logger.Info(ctx, "new alert via push", "alert_id", rec.ID, "kind", rec.Kind)

	e.fireEffects(ctx, alert.SourcePush, []alert.Record{rec})
	e.recordDelivery(ctx, rec, true)
	e.Refresh()
	return true
}

// Poll runs one poll cycle. A fetch failure leaves the store untouched and
// is returned after being logged.
func (e *Engine) Poll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "engine.poll")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	e.statusMu.Lock()
	e.status.LastPoll = e.now()
	e.statusMu.Unlock()

	// Cold start is decided before the fetch; a push landing while the fetch
	// is in flight must not turn the backlog into fresh alerts.
	coldStart := e.store.Len() == 0

	recs, err := e.fetcher.FetchSnapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.pollFailed(ctx, err, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// Stopped while the fetch was in flight: discard the snapshot.
	if err := ctx.Err(); err != nil {
		return err
	}

	res := e.apply(ctx, recs, coldStart)

	e.statusMu.Lock()
	e.status.LastSuccess = e.now()
	e.status.ConsecutiveFailures = 0
	e.status.LastError = ""
	e.status.Unauthorized = false
	e.statusMu.Unlock()

	if e.hooks.OnPoll != nil {
		e.hooks.OnPoll("success", time.Since(start))
	}
	span.SetAttributes(
		attribute.Int("klaxon.poll.snapshot", len(recs)),
		attribute.Int("klaxon.poll.inserted", res.inserted),
		attribute.Bool("klaxon.poll.cold_start", res.coldStart),
	)
	if res.inserted > 0 || res.synced > 0 {
		e.logger.Info(ctx, "poll merged snapshot",
			"snapshot", len(recs),
			"inserted", res.inserted,
			"alerted", res.alerted,
			"acknowledged_by_backend", res.synced,
			"cold_start", res.coldStart,
		)
	}
	return nil
}

type applyResult struct {
	inserted  int
	alerted   int
	synced    int
	coldStart bool
}

// apply merges a snapshot. Records are walked last to first so that the
// snapshot's first element ends up at the front of the store. coldStart
// reports whether the store was empty when the cycle began.
func (e *Engine) apply(ctx context.Context, recs []alert.Record, coldStart bool) applyResult {
	res := applyResult{coldStart: coldStart}

	var fresh []alert.Record
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		r.Source = alert.SourcePoll
		if r.ReceivedAt.IsZero() {
			r.ReceivedAt = e.now()
		}

		if !r.Pending() {
			if e.store.UpsertIfNew(r) {
				res.inserted++
				e.hook(e.hooks.OnInsert, alert.SourcePoll)
				e.recordDelivery(ctx, r, false)
			} else if e.store.MarkAsRead(r.ID) {
				res.synced++
				e.recordAck(ctx, r.ID, "backend")
			}
			continue
		}

		if !e.store.UpsertIfNew(r) {
			e.hook(e.hooks.OnDuplicate, alert.SourcePoll)
			continue
		}
		res.inserted++
		e.hook(e.hooks.OnInsert, alert.SourcePoll)
		if res.coldStart {
			e.recordDelivery(ctx, r, false)
			continue
		}
		fresh = append(fresh, r)
	}

	if res.inserted > 0 || res.synced > 0 {
		e.observeStore()
	}
	if len(fresh) > 0 {
		res.alerted = len(fresh)
		e.fireEffects(ctx, alert.SourcePoll, fresh)
		for _, r := range fresh {
			e.recordDelivery(ctx, r, true)
		}
	}
	return res
}

// fireEffects plays the tone once and shows one toast per alert. Effects are
// detached from ctx cancellation so a stop mid-cycle cannot cut an alert off.
func (e *Engine) fireEffects(ctx context.Context, source alert.Source, recs []alert.Record) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), effectTimeout)
	defer cancel()

	if e.sound != nil {
		e.sound.Play(ctx)
	}
	for _, r := range recs {
		t := notify.Toast{
			Message:  "\U0001f6a8 " + ToastMessage,
			Style:    notify.StyleEmergency,
			Duration: e.toastDur,
			AlertID:  r.ID,
			Kind:     r.Kind,
			Location: formatLocation(r.Location),
		}
		if err := e.toaster.Show(ctx, t); err != nil {
			e.logger.Error(ctx, err, "toast failed", "alert_id", r.ID)
		}
		e.hook(e.hooks.OnEffects, source)
	}
}

func formatLocation(l alert.Location) string {
	if !l.Valid() {
		return "unknown location"
	}
	return strconv.FormatFloat(l.Lat, 'f', -1, 64) + ", " + strconv.FormatFloat(l.Lng, 'f', -1, 64)
}

func (e *Engine) pollFailed(ctx context.Context, err error, d time.Duration) {
	e.statusMu.Lock()
	e.status.ConsecutiveFailures++
	e.status.LastError = err.Error()
	e.status.Unauthorized = backend.IsUnauthorized(err)
	failures := e.status.ConsecutiveFailures
	e.statusMu.Unlock()

	outcome := "error"
	if backend.IsUnauthorized(err) {
		outcome = "unauthorized"
	}
	if e.hooks.OnPoll != nil {
		e.hooks.OnPoll(outcome, d)
	}
	e.logger.Error(ctx, err, "poll cycle failed", "consecutive_failures", failures, "outcome", outcome)
}

// Start runs an immediate poll, then polls at the fixed interval until Stop
// or ctx cancellation.
func (e *Engine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.statusMu.Lock()
	e.status.Running = true
	e.statusMu.Unlock()

	go e.loop(loopCtx)
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	defer func() {
		e.statusMu.Lock()
		e.status.Running = false
		e.statusMu.Unlock()
	}()

	L := e.logger.With("interval", e.interval.String())
	L.Info(ctx, "poll loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	_ = e.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			L.Info(context.WithoutCancel(ctx), "poll loop stopped")
			return
		case <-ticker.C:
		case <-e.refresh:
		}
		if ctx.Err() != nil {
			return
		}
		_ = e.Poll(ctx)
	}
}

// Stop cancels the poll loop and waits for it to exit. No fetch is issued
// after Stop returns. Stop is idempotent.
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.lifeMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Refresh requests an immediate poll. Requests coalesce while one is pending
// and are ignored when the loop is not running.
func (e *Engine) Refresh() {
	select {
	case e.refresh <- struct{}{}:
	default:
	}
}

// MarkAsRead acknowledges an alert locally. It reports whether the alert
// moved from pending to acknowledged.
func (e *Engine) MarkAsRead(ctx context.Context, id string) bool {
	changed := e.store.MarkAsRead(id)
	if changed {
		e.observeStore()
		e.recordAck(ctx, id, "local")
	}
	return changed
}

// Acknowledge updates the backend first and marks the alert read locally
// only when the backend accepted the change.
func (e *Engine) Acknowledge(ctx context.Context, id string) (bool, error) {
	if e.updater == nil {
		return false, ErrNoBackend
	}
	if err := e.updater.UpdateStatus(ctx, id, alert.StatusAcknowledged); err != nil {
		return false, fmt.Errorf("acknowledge %s: %w", id, err)
	}
	changed := e.store.MarkAsRead(id)
	if changed {
		e.observeStore()
		e.recordAck(ctx, id, "backend")
	}
	return changed, nil
}

// Clear empties the store. The next poll repopulates it as a cold start.
func (e *Engine) Clear(ctx context.Context) {
	n := e.store.Len()
	e.store.Clear()
	e.observeStore()
	e.logger.Info(ctx, "alerts cleared", "removed", n)
	if e.journal != nil {
		entry := journal.Entry{Event: journal.EventCleared, Origin: "local", Location: alert.Unknown(), At: e.now()}
		if err := e.journal.Record(ctx, entry); err != nil {
			e.logger.Error(ctx, err, "journal write failed", "event", journal.EventCleared)
		}
	}
}

// Lookup returns the alert from the store, falling back to the backend.
// local reports whether the store had it.
func (e *Engine) Lookup(ctx context.Context, id string) (rec alert.Record, local bool, err error) {
	if rec, ok := e.store.Get(id); ok {
		return rec, true, nil
	}
	if e.getter == nil {
		return alert.Record{}, false, ErrNotFound
	}
	rec, err = e.getter.GetAlert(ctx, id)
	if err != nil {
		if backend.IsNotFound(err) {
			return alert.Record{}, false, ErrNotFound
		}
		return alert.Record{}, false, fmt.Errorf("lookup %s: %w", id, err)
	}
	return rec, false, nil
}

// TestSound plays the alert tone without touching the store.
func (e *Engine) TestSound(ctx context.Context) {
	if e.sound == nil {
		return
	}
	e.sound.Play(context.WithoutCancel(ctx))
}

// Status returns a copy of the poll status.
func (e *Engine) Status() Status {
	e.statusMu.Lock()
	s := e.status
	e.statusMu.Unlock()

	s.Alerts, s.Unread = e.store.Counts()
	return s
}

func (e *Engine) recordDelivery(ctx context.Context, rec alert.Record, effects bool) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(ctx, journal.FromRecord(rec, effects, e.now())); err != nil {
		e.logger.Error(ctx, err, "journal write failed", "event", journal.EventDelivered, "alert_id", rec.ID)
	}
}

func (e *Engine) recordAck(ctx context.Context, id, origin string) {
	if e.journal == nil {
		return
	}
	entry := journal.Entry{AlertID: id, Event: journal.EventAcknowledged, Origin: origin, Location: alert.Unknown(), At: e.now()}
	if err := e.journal.Record(ctx, entry); err != nil {
		e.logger.Error(ctx, err, "journal write failed", "event", journal.EventAcknowledged, "alert_id", id)
	}
}

func (e *Engine) observeStore() {
	if e.hooks.OnStore != nil {
		e.hooks.OnStore(e.store.Counts())
	}
}

func (e *Engine) hook(fn func(alert.Source), s alert.Source) {
	if fn != nil {
		fn(s)
	}
}
