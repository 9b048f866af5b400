package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tablerun/tablerun/internal/signal"
)

// OutboxConfig tunes the outbound delivery queue.
type OutboxConfig struct {
	QueueSize   int           `yaml:"queue_size"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	SendRate    float64       `yaml:"send_rate"` // messages per second
	SendBurst   int           `yaml:"send_burst"`
}

// DefaultOutboxConfig returns delivery tuning safe for the Telegram
// Bot API.
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		QueueSize:   64,
		MaxAttempts: 4,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  15 * time.Second,
		SendRate:    1,
		SendBurst:   5,
	}
}

type envelopeKind int

const (
	kindSignal envelopeKind = iota
	kindSessionStarted
	kindSessionHalted
	kindReport
)

type envelope struct {
	kind   envelopeKind
	sig    signal.Signal
	info   SessionInfo
	reason string
	text   string
}

// DeliveryStats counts outbox outcomes for the ops surface.
type DeliveryStats struct {
	Delivered uint64 `json:"delivered"`
	Retries   uint64 `json:"retries"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Outbox decouples notification delivery from the decision pipeline: a
// bounded queue drained by one dispatcher goroutine with rate pacing, a
// circuit breaker around the transport, and bounded exponential-backoff
// retry. Publishing never blocks; a full queue drops and counts.
type Outbox struct {
	cfg      OutboxConfig
	notifier Notifier
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	log      zerolog.Logger

	ch   chan envelope
	wg   sync.WaitGroup
	once sync.Once

	// Optional observers invoked from the dispatcher goroutine.
	OnRetry   func()
	OnFailure func()

	mu    sync.Mutex
	stats DeliveryStats
}

// NewOutbox builds an outbox over the given notifier. The breaker trips
// after three consecutive transport failures and probes again after a
// minute, matching the project's standard breaker settings.
func NewOutbox(cfg OutboxConfig, notifier Notifier, log zerolog.Logger) *Outbox {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultOutboxConfig().QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	settings := gobreaker.Settings{Name: "notify"}
	settings.Interval = 60 * time.Second
	settings.Timeout = 60 * time.Second
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}

	return &Outbox{
		cfg:      cfg,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		breaker:  gobreaker.NewCircuitBreaker(settings),
		log:      log.With().Str("component", "outbox").Logger(),
		ch:       make(chan envelope, cfg.QueueSize),
	}
}

// Start launches the dispatcher. It drains until the context is
// cancelled and the queue is closed.
func (o *Outbox) Start(ctx context.Context) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-o.ch:
				if !ok {
					return
				}
				o.deliver(ctx, env)
			}
		}
	}()
}

// Close stops accepting work and waits for the dispatcher to finish.
func (o *Outbox) Close() {
	o.once.Do(func() { close(o.ch) })
	o.wg.Wait()
}

// PublishSignal enqueues an emitted signal for delivery.
func (o *Outbox) PublishSignal(sig signal.Signal) { o.publish(envelope{kind: kindSignal, sig: sig}) }

// PublishSessionStarted enqueues the session start event.
func (o *Outbox) PublishSessionStarted(info SessionInfo) {
	o.publish(envelope{kind: kindSessionStarted, info: info})
}

// PublishSessionHalted enqueues the halt event with its reason.
func (o *Outbox) PublishSessionHalted(reason string) {
	o.publish(envelope{kind: kindSessionHalted, reason: reason})
}

// PublishReport enqueues a periodic session report.
func (o *Outbox) PublishReport(text string) {
	o.publish(envelope{kind: kindReport, text: text})
}

// Stats returns a copy of the delivery counters.
func (o *Outbox) Stats() DeliveryStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *Outbox) publish(env envelope) {
	select {
	case o.ch <- env:
	default:
		o.mu.Lock()
		o.stats.Dropped++
		o.mu.Unlock()
		o.log.Error().Msg("outbound queue full, notification dropped")
	}
}

func (o *Outbox) deliver(ctx context.Context, env envelope) {
	backoff := o.cfg.BaseBackoff
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return
		}
		_, err := o.breaker.Execute(func() (any, error) {
			return nil, o.send(ctx, env)
		})
		if err == nil {
			o.mu.Lock()
			o.stats.Delivered++
			o.mu.Unlock()
			return
		}
		o.log.Warn().Err(err).Int("attempt", attempt).Msg("notification delivery failed")
		if attempt == o.cfg.MaxAttempts {
			break
		}
		o.mu.Lock()
		o.stats.Retries++
		o.mu.Unlock()
		if o.OnRetry != nil {
			o.OnRetry()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if o.cfg.MaxBackoff > 0 && backoff > o.cfg.MaxBackoff {
			backoff = o.cfg.MaxBackoff
		}
	}
	o.mu.Lock()
	o.stats.Failed++
	o.mu.Unlock()
	if o.OnFailure != nil {
		o.OnFailure()
	}
}

func (o *Outbox) send(ctx context.Context, env envelope) error {
	switch env.kind {
	case kindSignal:
		return o.notifier.SignalEmitted(ctx, env.sig)
	case kindSessionStarted:
		return o.notifier.SessionStarted(ctx, env.info)
	case kindSessionHalted:
		return o.notifier.SessionHalted(ctx, env.reason)
	case kindReport:
		return o.notifier.Report(ctx, env.text)
	}
	return nil
}
