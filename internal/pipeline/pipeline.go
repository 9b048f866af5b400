// Package pipeline orchestrates one session: outcomes in, signals out.
// A single ProcessOutcome entry point preserves the one-event-in →
// one-decision-out ordering the bankroll accounting depends on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tablerun/tablerun/internal/bankroll"
	"github.com/tablerun/tablerun/internal/bayes"
	"github.com/tablerun/tablerun/internal/config"
	"github.com/tablerun/tablerun/internal/domain"
	"github.com/tablerun/tablerun/internal/ensemble"
	"github.com/tablerun/tablerun/internal/history"
	"github.com/tablerun/tablerun/internal/metrics"
	"github.com/tablerun/tablerun/internal/model"
	"github.com/tablerun/tablerun/internal/montecarlo"
	"github.com/tablerun/tablerun/internal/notify"
	"github.com/tablerun/tablerun/internal/ops"
	"github.com/tablerun/tablerun/internal/signal"
	"github.com/tablerun/tablerun/internal/stats"
)

// ErrSessionHalted is returned once the session has stopped accepting
// outcomes. Only an explicit reset lifts it.
var ErrSessionHalted = errors.New("session halted")

// Session states.
const (
	StateRunning = "RUNNING"
	StateHalted  = "HALTED"
)

// Skip reasons for per-hand accounting.
const (
	skipDataGap      = "data_gap"
	skipModelFailure = "model_failure"
	skipCancelled    = "cancelled"
	skipBetRejected  = "bet_rejected"
)

// mcResult carries the awaited Monte Carlo estimate back to the hand.
type mcResult struct {
	interval montecarlo.Interval
	err      error
}

// Pipeline wires the window, ensemble, Bayesian updater, Monte Carlo
// estimator, classifier, and bankroll manager into a session.
type Pipeline struct {
	cfg       *config.Config
	log       zerolog.Logger
	reg       *metrics.Registry
	window    *history.Window
	predictor *ensemble.Predictor
	updater   *bayes.Updater
	estimator *montecarlo.Estimator
	class     *signal.Classifier
	bank      *bankroll.Manager
	outbox    *notify.Outbox

	mu              sync.Mutex
	state           string
	haltReason      string
	sessionStart    time.Time
	handsProcessed  uint64
	handsSkipped    uint64
	suppressed      uint64
	modelsDiscarded uint64
	signalsByTier   map[string]uint64
	lastSignal      *signal.Signal
}

// New assembles a pipeline from validated configuration. The model set
// is fixed: frequency, markov, and streak, weighted per config.
func New(cfg *config.Config, bank *bankroll.Manager, outbox *notify.Outbox, reg *metrics.Registry, log zerolog.Logger) *Pipeline {
	base := cfg.BaseProbabilities()
	models := []model.Model{
		model.NewFrequencyModel(base, cfg.Models.PriorStrength),
		model.NewMarkovModel(base, cfg.Models.PriorStrength),
		model.NewStreakModel(base),
	}

	return &Pipeline{
		cfg:       cfg,
		log:       log.With().Str("component", "pipeline").Logger(),
		reg:       reg,
		window:    history.NewWindow(cfg.Window.Capacity),
		predictor: ensemble.NewPredictor(models, cfg.Models.Weights, log),
		updater:   bayes.NewUpdater(base, cfg.Blend.PriorStrength, cfg.Blend.Alpha, cfg.Blend.ResetAfter),
		estimator: montecarlo.NewEstimator(cfg.MonteCarlo.Simulations, cfg.MonteCarlo.Horizon, cfg.MonteCarlo.Confidence),
		class:     signal.NewClassifier(cfg.ClassifierConfig(), log),
		bank:      bank,
		outbox:    outbox,

		state:         StateHalted,
		signalsByTier: map[string]uint64{},
	}
}

// Start opens the session: bankroll clocks reset, state flips to
// RUNNING, and the lifecycle event goes out.
func (p *Pipeline) Start(now time.Time) {
	p.mu.Lock()
	p.state = StateRunning
	p.haltReason = ""
	p.sessionStart = now
	p.mu.Unlock()

	p.bank.StartSession(now)
	snap := p.bank.Snapshot()
	p.outbox.PublishSessionStarted(notify.SessionInfo{
		StartedAt: now,
		Balance:   snap.Balance,
		UnitSize:  snap.UnitSize,
	})
	p.log.Info().Time("session_start", now).Float64("balance", snap.Balance).Msg("session started")
}

// ProcessOutcome runs one hand through the full decision path. Per-hand
// recoverable errors are absorbed and counted; only session-fatal
// conditions return an error, and they leave the pipeline halted.
func (p *Pipeline) ProcessOutcome(ctx context.Context, ev domain.OutcomeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateHalted {
		return ErrSessionHalted
	}

	// Resolve the previous hand's bet against this outcome before
	// anything else mutates bankroll state.
	if err := p.bank.Settle(ctx, ev.Outcome, ev.Timestamp); err != nil {
		p.log.Error().Err(err).Msg("settlement failed")
	}

	if err := p.window.Append(ev); err != nil {
		var gap *history.DataGapError
		if errors.As(err, &gap) {
			p.skipLocked(skipDataGap)
			p.haltLocked(fmt.Sprintf("data gap: %v", gap))
			return err
		}
		return err
	}
	p.updater.Observe(ev.Outcome)
	p.handsProcessed++
	p.reg.HandsProcessed.Inc()

	if err := p.bank.CheckLimits(ev.Timestamp); err != nil {
		p.haltLocked(err.Error())
		return err
	}
	snap := p.bank.Snapshot()
	p.reg.Balance.Set(snap.Balance)
	p.reg.Drawdown.Set(snap.Drawdown)

	p.class.BeginHand()
	defer p.class.FinishHand()

	pred, err := p.predictor.Predict(p.window.Snapshot())
	for _, name := range pred.Discarded {
		p.modelsDiscarded++
		p.reg.ModelsDiscarded.WithLabelValues(name).Inc()
	}
	if err != nil {
		var inf *ensemble.ModelInferenceError
		if errors.As(err, &inf) {
			p.log.Warn().Strs("failed", inf.Failed).Msg("all models failed, skipping hand")
			p.skipLocked(skipModelFailure)
			return nil
		}
		return err
	}

	blended := p.updater.Blend(pred.Distribution)
	best, prob := blended.Best()

	interval, err := p.estimateAsync(ctx, blended, best, ev.Sequence)
	if err != nil {
		p.skipLocked(skipCancelled)
		return nil
	}

	tier := p.class.Classify(prob, interval.Width())

	units, err := p.bank.SizeBet(prob, best, tier)
	if err != nil {
		if errors.Is(err, bankroll.ErrBudgetExhausted) {
			p.suppressLocked("budget_exhausted")
			return nil
		}
		var risk *bankroll.RiskLimitExceeded
		if errors.As(err, &risk) {
			p.haltLocked(risk.Error())
			return err
		}
		p.skipLocked(skipBetRejected)
		return nil
	}

	ok, reason := p.class.Decide(ev.Timestamp, tier, prob)
	if !ok {
		p.suppressLocked(string(reason))
		return nil
	}

	sig := signal.New(ev.Sequence, ev.Timestamp, best, tier, prob, interval, p.cfg.ClassifierConfig().SignalTTL)
	sig.Agreement = pred.Agreement
	sig.Models = pred.Models
	sig.BetUnits = units

	if err := p.bank.PlaceBet(ctx, sig, units); err != nil {
		p.log.Error().Err(err).Str("signal_id", sig.ID).Msg("bet placement rejected")
		p.skipLocked(skipBetRejected)
		return nil
	}
	p.class.Commit(ev.Timestamp)

	p.signalsByTier[string(tier)]++
	p.reg.SignalsEmitted.WithLabelValues(string(tier)).Inc()
	p.lastSignal = &sig
	p.outbox.PublishSignal(sig)

	p.log.Info().
		Uint64("sequence", ev.Sequence).
		Str("recommended", string(best)).
		Str("tier", string(tier)).
		Float64("probability", prob).
		Int("units", units).
		Msg("signal emitted")
	return nil
}

// estimateAsync dispatches the Monte Carlo stage to a worker goroutine
// and awaits it. This is the only suspension point in the hand.
func (p *Pipeline) estimateAsync(ctx context.Context, dist domain.Distribution, target domain.Outcome, seq uint64) (montecarlo.Interval, error) {
	seed := p.cfg.MonteCarlo.Seed + int64(seq)
	ch := make(chan mcResult, 1)
	start := time.Now()
	go func() {
		iv, err := p.estimator.Estimate(ctx, dist, target, seed)
		ch <- mcResult{interval: iv, err: err}
	}()
	res := <-ch
	p.reg.MonteCarloDuration.Observe(time.Since(start).Seconds())
	return res.interval, res.err
}

// Halt stops the session from outside the hand path (operator command,
// shutdown).
func (p *Pipeline) Halt(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateHalted {
		return
	}
	p.haltLocked(reason)
}

func (p *Pipeline) haltLocked(reason string) {
	p.state = StateHalted
	p.haltReason = reason
	p.outbox.PublishSessionHalted(reason)
	p.log.Warn().Str("reason", reason).Msg("session halted")
}

func (p *Pipeline) skipLocked(reason string) {
	p.handsSkipped++
	p.reg.HandsSkipped.WithLabelValues(reason).Inc()
}

func (p *Pipeline) suppressLocked(reason string) {
	p.suppressed++
	p.reg.SignalsSuppressed.WithLabelValues(reason).Inc()
}

// Status implements ops.StatusProvider: a read-only session snapshot.
func (p *Pipeline) Status() ops.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	byTier := make(map[string]uint64, len(p.signalsByTier))
	for k, v := range p.signalsByTier {
		byTier[k] = v
	}
	return ops.Status{
		State:            p.state,
		HaltReason:       p.haltReason,
		HandsProcessed:   p.handsProcessed,
		HandsSkipped:     p.handsSkipped,
		SignalsByTier:    byTier,
		Suppressed:       p.suppressed,
		ModelsDiscarded:  p.modelsDiscarded,
		Bankroll:         p.bank.Snapshot(),
		Performance:      p.bank.Performance(),
		Bias:             p.Bias(),
		SessionStartedAt: p.sessionStart,
	}
}

// Bias runs the statistical validation suite over the current window.
func (p *Pipeline) Bias() stats.BiasReport {
	return stats.Evaluate(p.window.Snapshot(), p.cfg.BaseProbabilities())
}

// RunReporter pushes a periodic session summary through the notifier
// until the context ends. Call in its own goroutine.
func (p *Pipeline) RunReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.outbox.PublishReport(p.formatReport())
		}
	}
}

func (p *Pipeline) formatReport() string {
	st := p.Status()
	return fmt.Sprintf(
		"State: %s\nHands: %d (skipped %d)\nSignals: HIGH %d / MEDIUM %d / LOW %d, suppressed %d\nBalance: %.2f (drawdown %.1f%%)\nROI: %.2f%%  Win rate: %.1f%%",
		st.State,
		st.HandsProcessed, st.HandsSkipped,
		st.SignalsByTier[string(signal.TierHigh)],
		st.SignalsByTier[string(signal.TierMedium)],
		st.SignalsByTier[string(signal.TierLow)],
		st.Suppressed,
		st.Bankroll.Balance, st.Bankroll.Drawdown*100,
		st.Performance.ROI*100, st.Performance.WinRate*100,
	)
}
