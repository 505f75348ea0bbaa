// Package engine serializes every market-data, account-activity and timer
// event through one loop that owns the order ledger and market state, and
// turns policy decisions into risk-checked gateway calls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/studiobot/internal/domain"
	"github.com/alanyoungcy/studiobot/internal/ledger"
	"github.com/alanyoungcy/studiobot/internal/market"
	"github.com/alanyoungcy/studiobot/internal/risk"
	"github.com/alanyoungcy/studiobot/internal/strategy"
)

const (
	defaultEvalInterval    = time.Second
	defaultQueueSize       = 1024
	defaultShutdownTimeout = 10 * time.Second
	defaultUnconfirmedTTL  = 30 * time.Second
)

// Gateway places and cancels orders.
type Gateway interface {
	Submit(ctx context.Context, req domain.OrderRequest) (string, error)
	Cancel(ctx context.Context, orderID string) error
	CancelAll(ctx context.Context, symbol string) error
}

// Recorder receives a copy of everything worth journaling. Implementations
// must not block the loop for long.
type Recorder interface {
	Record(ctx context.Context, event string, detail map[string]any)
	RecordOrder(ctx context.Context, o domain.Order)
	RecordTrade(ctx context.Context, t domain.Trade)
}

// Alerter forwards operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the engine settings.
type Config struct {
	Symbol          string
	Limits          domain.RiskLimits
	EvalInterval    time.Duration
	QueueSize       int
	ShutdownTimeout time.Duration

	// UnconfirmedTTL is how long a submit with an unknown outcome keeps its
	// capacity reserved while waiting for the account feed to report it.
	UnconfirmedTTL time.Duration
}

// Option customises an Engine.
type Option func(*Engine)

// WithRecorder sets the journal sink.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithAlerter sets the notification sink.
func WithAlerter(a Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the reconciliation loop. Everything below the intake is owned
// by the goroutine running Run and needs no locking.
type Engine struct {
	cfg      Config
	policy   strategy.Policy
	gate     *risk.Gate
	gateway  Gateway
	recorder Recorder
	alerter  Alerter
	intake   *Intake
	logger   *slog.Logger
	now      func() time.Time

	ledger *ledger.Ledger
	market *market.State

	ready    bool
	dirty    bool
	evals    int64
	lastEval time.Time
	last     []strategy.Result

	status atomic.Pointer[Status]
}

// New validates cfg and returns an Engine with an empty ledger and market
// state. Invalid limits are a construction error.
func New(cfg Config, policy strategy.Policy, gateway Gateway, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("engine: %w: symbol is required", domain.ErrInvalidConfig)
	}
	if policy == nil || gateway == nil {
		return nil, fmt.Errorf("engine: %w: policy and gateway are required", domain.ErrInvalidConfig)
	}
	gate, err := risk.NewGate(cfg.Limits)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if cfg.EvalInterval <= 0 {
		cfg.EvalInterval = defaultEvalInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.UnconfirmedTTL <= 0 {
		cfg.UnconfirmedTTL = defaultUnconfirmedTTL
	}

	e := &Engine{
		cfg:      cfg,
		policy:   policy,
		gate:     gate,
		gateway:  gateway,
		recorder: nopRecorder{},
		intake:   NewIntake(cfg.QueueSize),
		logger:   logger.With(slog.String("component", "engine"), slog.String("symbol", cfg.Symbol)),
		now:      time.Now,
		ledger:   ledger.New(cfg.Symbol, cfg.Limits.MaxRejects),
		market:   market.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.publishStatus()
	return e, nil
}

// Intake returns the queue producers publish into.
func (e *Engine) Intake() *Intake { return e.intake }

// Publish is shorthand for Intake().Publish.
func (e *Engine) Publish(ctx context.Context, ev domain.Event) error {
	return e.intake.Publish(ctx, ev)
}

// Status returns the latest published snapshot. Safe from any goroutine.
func (e *Engine) Status() *Status { return e.status.Load() }

// EvalInterval returns the configured timer period.
func (e *Engine) EvalInterval() time.Duration { return e.cfg.EvalInterval }

// Start cancels every resting order for the symbol so the engine begins
// from a clean book. A failure here is fatal.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.InfoContext(ctx, "startup cancel-all")
	if err := e.gateway.CancelAll(ctx, e.cfg.Symbol); err != nil {
		return fmt.Errorf("engine: startup cancel-all: %w", err)
	}
	e.recorder.Record(ctx, "startup_cancel_all", map[string]any{"symbol": e.cfg.Symbol})
	return nil
}

// Run consumes the intake until ctx is cancelled or the engine halts. A
// halt is returned as *domain.HaltError after a best-effort cancel-all.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "engine started",
		slog.String("policy", e.policy.Name()),
		slog.Duration("eval_interval", e.cfg.EvalInterval),
	)
	defer e.intake.Close()
	defer e.logger.Info("engine stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.intake.done:
			return domain.ErrQueueClosed
		case ev := <-e.intake.ch:
			err := e.handle(ctx, ev)
			e.publishStatus()
			var halt *domain.HaltError
			if errors.As(err, &halt) {
				e.halt(ctx, halt)
				e.publishStatus()
				return halt
			}
		}
	}
}

// Shutdown makes a bounded best-effort attempt to cancel every resting
// order. It is a no-op after a halt, which already did the same.
func (e *Engine) Shutdown(ctx context.Context) error {
	if st := e.Status(); st != nil && st.Halted {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ShutdownTimeout)
	defer cancel()

	e.logger.InfoContext(ctx, "shutdown cancel-all")
	if err := e.gateway.CancelAll(ctx, e.cfg.Symbol); err != nil {
		e.logger.ErrorContext(ctx, "shutdown cancel-all failed", slog.String("error", err.Error()))
		return fmt.Errorf("engine: shutdown cancel-all: %w", err)
	}
	e.recorder.Record(ctx, "shutdown_cancel_all", map[string]any{"symbol": e.cfg.Symbol})
	return nil
}

// handle processes one event. Only a halt escapes; every other failure,
// panics included, is logged and dropped so the next event still runs.
func (e *Engine) handle(ctx context.Context, ev domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "event handler panic",
				slog.String("event", ev.Kind.String()),
				slog.Any("panic", r),
			)
			err = nil
		}
	}()

	err = e.dispatch(ctx, ev)
	if err == nil {
		return nil
	}
	var halt *domain.HaltError
	if errors.As(err, &halt) {
		return err
	}
	e.logger.WarnContext(ctx, "event dropped",
		slog.String("event", ev.Kind.String()),
		slog.String("error", err.Error()),
	)
	return nil
}

func (e *Engine) dispatch(ctx context.Context, ev domain.Event) error {
	switch ev.Kind {
	case domain.EventQuote:
		if ev.Quote == nil {
			return fmt.Errorf("%w: quote event without quote", domain.ErrMalformedEvent)
		}
		e.market.ApplyQuote(*ev.Quote)
		return e.trigger(ctx, e.policy.OnQuote(*ev.Quote))

	case domain.EventSecondBar:
		if ev.Bar == nil {
			return fmt.Errorf("%w: second bar event without bar", domain.ErrMalformedEvent)
		}
		e.market.ApplySecondBar(*ev.Bar)
		return e.trigger(ctx, e.policy.OnSecondBar(*ev.Bar))

	case domain.EventMinuteBar:
		if ev.Bar == nil {
			return fmt.Errorf("%w: minute bar event without bar", domain.ErrMalformedEvent)
		}
		e.market.ApplyMinuteBar(*ev.Bar)
		return e.trigger(ctx, e.policy.OnMinuteBar(*ev.Bar))

	case domain.EventOrderUpdate:
		if ev.Order == nil {
			return fmt.Errorf("%w: order update without order", domain.ErrMalformedEvent)
		}
		return e.onOrder(ctx, *ev.Order)

	case domain.EventTradeNotice:
		if ev.Trade == nil {
			return fmt.Errorf("%w: trade notice without trade", domain.ErrMalformedEvent)
		}
		e.onTrade(ctx, *ev.Trade)
		return nil

	case domain.EventPositionUpdate:
		if ev.Position == nil {
			return fmt.Errorf("%w: position update without position", domain.ErrMalformedEvent)
		}
		if e.ledger.ApplyPosition(*ev.Position) {
			e.logger.InfoContext(ctx, "position", slog.Int64("quantity", ev.Position.Quantity))
			e.dirty = true
		}
		return nil

	case domain.EventReplayComplete:
		if e.ready {
			e.logger.DebugContext(ctx, "replay complete after ready; ignored")
			return nil
		}
		e.ready = true
		e.dirty = true
		e.logger.InfoContext(ctx, "ready", slog.String("ledger", e.ledger.Snapshot().String()))
		e.recorder.Record(ctx, "ready", map[string]any{"position": e.ledger.Position()})
		e.alert(ctx, "ready", "Engine ready", fmt.Sprintf("%s %s engine is live", e.cfg.Symbol, e.policy.Name()))
		return nil

	case domain.EventTimer:
		if n := e.ledger.ExpireUnconfirmed(e.now().Add(-e.cfg.UnconfirmedTTL)); n > 0 {
			e.logger.WarnContext(ctx, "unconfirmed submits expired", slog.Int("count", n))
			e.dirty = true
		}
		if !e.dirty {
			return nil
		}
		return e.eval(ctx)

	default:
		return fmt.Errorf("%w: unknown event kind %d", domain.ErrMalformedEvent, ev.Kind)
	}
}

func (e *Engine) trigger(ctx context.Context, t strategy.Trigger) error {
	switch t {
	case strategy.MarkDirty:
		e.dirty = true
	case strategy.EvaluateNow:
		e.dirty = true
		return e.eval(ctx)
	}
	return nil
}

func (e *Engine) onOrder(ctx context.Context, o domain.Order) error {
	outcome, err := e.ledger.ApplyOrderUpdate(o)
	if !outcome.Changed() {
		return err
	}
	e.dirty = true
	e.recorder.RecordOrder(ctx, o)
	e.logger.InfoContext(ctx, "order update",
		slog.String("order_id", o.ID),
		slog.String("state", string(o.State)),
		slog.String("outcome", outcome.String()),
	)
	if outcome == ledger.Rejected {
		e.logger.WarnContext(ctx, "order rejected",
			slog.String("order_id", o.ID),
			slog.String("text", o.Text),
			slog.Int("rejects", e.ledger.Rejects()),
		)
		e.alert(ctx, "reject", "Order rejected", fmt.Sprintf("%s %s %d @ %s: %s",
			e.cfg.Symbol, o.Side, o.Quantity, o.Price.StringFixed(2), o.Text))
	}
	return err
}

func (e *Engine) onTrade(ctx context.Context, t domain.Trade) {
	if t.Symbol != e.cfg.Symbol {
		return
	}
	e.logger.InfoContext(ctx, "trade",
		slog.String("order_id", t.OrderID),
		slog.String("side", string(t.Side)),
		slog.Int64("quantity", t.Quantity),
		slog.String("price", t.Price.String()),
	)
	e.recorder.RecordTrade(ctx, t)
}

// eval runs one decision pass. Without ready nothing happens and the dirty
// flag survives, so the first timer tick after ready picks it up. The flag is
// cleared only when every action reached the gateway successfully.
func (e *Engine) eval(ctx context.Context) error {
	if !e.ready || e.ledger.Halted() {
		return nil
	}

	snap := e.ledger.Snapshot()
	actions := e.policy.Decide(strategy.Input{Market: e.market, Ledger: snap, Last: e.last})

	attrs := []any{slog.Int("actions", len(actions)), slog.String("ledger", snap.String())}
	if t, ok := e.policy.(strategy.Theoretical); ok {
		if theo, has := t.Theo(); has {
			attrs = append(attrs, slog.Float64("theo", theo))
		}
	}
	e.logger.DebugContext(ctx, "begin eval", attrs...)

	results := make([]strategy.Result, 0, len(actions))
	clean := true
	var haltErr error
	for _, a := range actions {
		res, err := e.execute(ctx, a)
		results = append(results, res)
		if res.Status == strategy.ResultFailed || res.Status == strategy.ResultRejected {
			clean = false
		}
		if err != nil {
			haltErr = err
			break
		}
	}

	e.evals++
	e.lastEval = e.now()
	e.last = results
	if clean && haltErr == nil {
		e.dirty = false
	}
	e.logger.DebugContext(ctx, "end eval",
		slog.Int("results", len(results)),
		slog.Bool("dirty", e.dirty),
	)
	return haltErr
}

// execute performs one action. The returned error is non-nil only for a halt.
func (e *Engine) execute(ctx context.Context, a domain.Action) (strategy.Result, error) {
	res := strategy.Result{Action: a, Reason: a.Reason}

	switch a.Kind {
	case domain.ActionSubmit:
		return e.submit(ctx, a, res)

	case domain.ActionCancel:
		if err := e.gateway.Cancel(ctx, a.OrderID); err != nil {
			e.logger.WarnContext(ctx, "cancel failed",
				slog.String("order_id", a.OrderID),
				slog.String("error", err.Error()),
			)
			res.Status, res.Error = strategy.ResultFailed, err.Error()
			return res, nil
		}
		e.ledger.MarkCancelRequested(a.OrderID)
		e.logger.InfoContext(ctx, "cancel", slog.String("order_id", a.OrderID), slog.String("reason", a.Reason))
		e.recorder.Record(ctx, "cancel", map[string]any{"order_id": a.OrderID, "reason": a.Reason})
		res.Status, res.OrderID = strategy.ResultCancelSent, a.OrderID
		return res, nil

	case domain.ActionCancelAll:
		if err := e.gateway.CancelAll(ctx, e.cfg.Symbol); err != nil {
			e.logger.WarnContext(ctx, "cancel-all failed", slog.String("error", err.Error()))
			res.Status, res.Error = strategy.ResultFailed, err.Error()
			return res, nil
		}
		e.ledger.MarkAllCancelRequested()
		e.logger.InfoContext(ctx, "cancel-all", slog.String("reason", a.Reason))
		e.recorder.Record(ctx, "cancel_all", map[string]any{"reason": a.Reason})
		res.Status = strategy.ResultCancelSent
		return res, nil

	default:
		res.Status, res.Error = strategy.ResultFailed, fmt.Sprintf("unknown action %q", a.Kind)
		return res, nil
	}
}

func (e *Engine) submit(ctx context.Context, a domain.Action, res strategy.Result) (strategy.Result, error) {
	reserved := e.ledger.ReservedPosition(a.Side)
	d := e.gate.Check(a.Side, a.Quantity, reserved)
	res.Allowed = d.Allowed
	if !d.Submitted() {
		e.logger.InfoContext(ctx, "risk skip",
			slog.String("side", string(a.Side)),
			slog.Int64("requested", a.Quantity),
			slog.Int64("reserved_position", reserved),
			slog.String("reason", string(d.Reason)),
		)
		e.recorder.Record(ctx, "risk_skip", map[string]any{
			"side": string(a.Side), "requested": a.Quantity, "position": reserved, "reason": string(d.Reason),
		})
		res.Status = strategy.ResultSkippedRisk
		return res, nil
	}
	if d.Clamped() {
		e.logger.InfoContext(ctx, "risk clamp",
			slog.String("side", string(a.Side)),
			slog.Int64("requested", a.Quantity),
			slog.Int64("allowed", d.Allowed),
			slog.String("reason", string(d.Reason)),
		)
	}

	req := domain.OrderRequest{
		Symbol:      e.cfg.Symbol,
		Side:        a.Side,
		Quantity:    d.Allowed,
		Price:       a.Price,
		TimeInForce: a.TimeInForce,
		ReferenceID: uuid.NewString(),
	}
	id, err := e.gateway.Submit(ctx, req)
	if err != nil {
		e.logger.WarnContext(ctx, "submit failed",
			slog.String("side", string(a.Side)),
			slog.String("price", a.Price.StringFixed(2)),
			slog.String("error", err.Error()),
		)
		res.Error = err.Error()
		var gerr *domain.GatewayError
		if errors.As(err, &gerr) && gerr.Rejection() {
			res.Status = strategy.ResultRejected
			e.recorder.Record(ctx, "submit_rejected", map[string]any{"status": gerr.Status, "body": gerr.Body})
			return res, e.ledger.RecordReject()
		}
		if errors.As(err, &gerr) && gerr.Ambiguous() {
			// The order may be live; hold its capacity until the feed
			// reports it by reference id.
			e.ledger.TrackUnconfirmed(domain.Order{
				ReferenceID: req.ReferenceID,
				Symbol:      req.Symbol,
				Side:        req.Side,
				Quantity:    req.Quantity,
				Price:       req.Price,
				TimeInForce: req.TimeInForce,
				UpdatedAt:   e.now(),
			})
			e.recorder.Record(ctx, "submit_unconfirmed", map[string]any{"reference_id": req.ReferenceID})
		}
		res.Status = strategy.ResultFailed
		return res, nil
	}

	e.ledger.TrackSubmitted(domain.Order{
		ID:          id,
		ReferenceID: req.ReferenceID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Price:       req.Price,
		TimeInForce: req.TimeInForce,
		UpdatedAt:   e.now(),
	})
	e.logger.InfoContext(ctx, "submit",
		slog.String("order_id", id),
		slog.String("side", string(req.Side)),
		slog.Int64("quantity", req.Quantity),
		slog.String("price", req.Price.StringFixed(2)),
		slog.String("tif", string(req.TimeInForce)),
		slog.String("reason", a.Reason),
	)
	e.recorder.Record(ctx, "submit", map[string]any{
		"order_id": id, "side": string(req.Side), "quantity": req.Quantity,
		"price": req.Price.StringFixed(2), "tif": string(req.TimeInForce), "reference_id": req.ReferenceID,
	})
	res.Status, res.OrderID = strategy.ResultSubmitted, id
	return res, nil
}

// halt cancels everything under its own deadline, detached from ctx, then
// reports.
func (e *Engine) halt(ctx context.Context, h *domain.HaltError) {
	e.logger.ErrorContext(ctx, "halting", slog.Int("rejects", h.Rejects))

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ShutdownTimeout)
	defer cancel()
	if err := e.gateway.CancelAll(cctx, e.cfg.Symbol); err != nil {
		e.logger.ErrorContext(ctx, "halt cancel-all failed", slog.String("error", err.Error()))
	}

	e.recorder.Record(cctx, "halt", map[string]any{"rejects": h.Rejects})
	e.alert(cctx, "halt", "Engine halted", h.Error())
}

func (e *Engine) alert(ctx context.Context, event, title, message string) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Notify(ctx, event, title, message); err != nil {
		e.logger.WarnContext(ctx, "alert failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, map[string]any) {}
func (nopRecorder) RecordOrder(context.Context, domain.Order)      {}
func (nopRecorder) RecordTrade(context.Context, domain.Trade)      {}
