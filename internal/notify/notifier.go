// Package notify delivers emitted signals and session lifecycle events
// to the external notification collaborator. Delivery is decoupled from
// the decision pipeline by a bounded outbound queue with at-least-once
// retry: a signal is already decided by the time it reaches this
// package, so delivery failure never rolls it back.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tablerun/tablerun/internal/signal"
)

// SessionInfo accompanies the session lifecycle events.
type SessionInfo struct {
	StartedAt time.Time `json:"started_at"`
	Balance   float64   `json:"balance"`
	UnitSize  float64   `json:"unit_size"`
}

// Notifier is the narrow interface the pipeline emits through.
type Notifier interface {
	SignalEmitted(ctx context.Context, sig signal.Signal) error
	SessionStarted(ctx context.Context, info SessionInfo) error
	SessionHalted(ctx context.Context, reason string) error
	Report(ctx context.Context, text string) error
}

// LogNotifier writes notifications to the structured log. Used in dev
// and as the fallback when no Telegram credentials are configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier builds a log-backed notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) SignalEmitted(_ context.Context, sig signal.Signal) error {
	n.log.Info().
		Str("signal_id", sig.ID).
		Str("recommended", string(sig.Recommended)).
		Str("tier", string(sig.Tier)).
		Float64("probability", sig.Probability).
		Int("bet_units", sig.BetUnits).
		Msg("signal")
	return nil
}

func (n *LogNotifier) SessionStarted(_ context.Context, info SessionInfo) error {
	n.log.Info().Float64("balance", info.Balance).Msg("session started")
	return nil
}

func (n *LogNotifier) SessionHalted(_ context.Context, reason string) error {
	n.log.Warn().Str("reason", reason).Msg("session halted")
	return nil
}

func (n *LogNotifier) Report(_ context.Context, text string) error {
	n.log.Info().Str("report", text).Msg("periodic report")
	return nil
}

// FormatSignal renders the operator-facing signal message.
func FormatSignal(sig signal.Signal) string {
	marker := map[signal.Tier]string{
		signal.TierHigh:   "🟢",
		signal.TierMedium: "🟡",
		signal.TierLow:    "🔴",
	}[sig.Tier]

	return fmt.Sprintf(
		"%s %s confidence\n\nBet: %s\nUnits: %d\nProbability: %.1f%% [%.1f%%–%.1f%%]\nExpires: %s",
		marker, sig.Tier,
		sig.Recommended,
		sig.BetUnits,
		sig.Probability*100, sig.Interval.Lower*100, sig.Interval.Upper*100,
		sig.ExpiresAt.Format("15:04:05"),
	)
}
