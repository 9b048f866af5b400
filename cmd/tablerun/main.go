package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tablerun/tablerun/internal/bankroll"
	"github.com/tablerun/tablerun/internal/bankroll/ledgerstore"
	"github.com/tablerun/tablerun/internal/config"
	"github.com/tablerun/tablerun/internal/domain"
	"github.com/tablerun/tablerun/internal/metrics"
	"github.com/tablerun/tablerun/internal/notify"
	"github.com/tablerun/tablerun/internal/ops"
	"github.com/tablerun/tablerun/internal/pipeline"
)

const (
	appName = "tablerun"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Dragon Tiger signal pipeline",
		Version: version,
		Long: `tablerun turns a stream of Dragon Tiger outcomes into classified,
risk-bounded betting signals: ensemble prediction, Bayesian updating,
Monte Carlo confidence intervals, and Kelly bankroll management.`,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a session over an outcome feed",
		Long:  "Replays a JSONL outcome feed (file or stdin) through the full decision pipeline",
		RunE:  runSession,
	}
	runCmd.Flags().String("config", "", "Path to yaml config (defaults applied when empty)")
	runCmd.Flags().String("feed", "-", "Outcome feed: JSONL file path, or - for stdin")
	runCmd.Flags().Bool("paced", false, "Replay at event timestamps instead of full speed")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a config file and exit",
		RunE:  runCheck,
	}
	checkCmd.Flags().String("config", "", "Path to yaml config")

	rootCmd.AddCommand(runCmd, checkCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	fmt.Println("config ok")
	return nil
}

func runSession(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	feedPath, _ := cmd.Flags().GetString("feed")
	paced, _ := cmd.Flags().GetBool("paced")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store bankroll.LedgerStore
	if dsn := cfg.Bankroll.PostgresDSN; dsn != "" {
		pg, err := ledgerstore.Open(ctx, dsn)
		if err != nil {
			return fmt.Errorf("opening ledger store: %w", err)
		}
		defer pg.Close()
		store = pg
	}

	bank, err := bankroll.NewManager(ctx, cfg.BankrollConfig(), store, log.Logger)
	if err != nil {
		return err
	}

	var notifier notify.Notifier = notify.NewLogNotifier(log.Logger)
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log.Logger)
		if err != nil {
			return fmt.Errorf("starting telegram notifier: %w", err)
		}
		notifier = tg
	}
	reg := metrics.NewRegistry()
	outbox := notify.NewOutbox(cfg.OutboxConfig(), notifier, log.Logger)
	outbox.OnRetry = func() { reg.NotifyRetries.Inc() }
	outbox.OnFailure = func() { reg.NotifyFailures.Inc() }
	outbox.Start(ctx)
	defer outbox.Close()
	pipe := pipeline.New(cfg, bank, outbox, reg, log.Logger)

	opsSrv := ops.NewServer(cfg.Ops.ListenAddr, pipe, reg.Handler(), log.Logger)
	go func() {
		if err := opsSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ops server stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("ops server shutdown")
		}
	}()

	pipe.Start(time.Now().UTC())
	go pipe.RunReporter(ctx, time.Duration(cfg.Telegram.ReportMinutes)*time.Minute)

	if err := replayFeed(ctx, pipe, feedPath, paced); err != nil {
		return err
	}

	st := pipe.Status()
	log.Info().
		Uint64("hands", st.HandsProcessed).
		Uint64("skipped", st.HandsSkipped).
		Uint64("suppressed", st.Suppressed).
		Float64("balance", st.Bankroll.Balance).
		Msg("session finished")
	return nil
}

// feedRecord is one JSONL line of the outcome feed.
type feedRecord struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   string    `json:"outcome"`
}

func replayFeed(ctx context.Context, pipe *pipeline.Pipeline, path string, paced bool) error {
	in := os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening feed: %w", err)
		}
		defer f.Close()
		in = f
	}

	var prev time.Time
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec feedRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("parsing feed line: %w", err)
		}
		outcome, err := domain.ParseOutcome(rec.Outcome)
		if err != nil {
			return fmt.Errorf("parsing feed outcome: %w", err)
		}

		if paced && !prev.IsZero() && rec.Timestamp.After(prev) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rec.Timestamp.Sub(prev)):
			}
		}
		prev = rec.Timestamp

		err = pipe.ProcessOutcome(ctx, domain.OutcomeEvent{
			Sequence:  rec.Sequence,
			Timestamp: rec.Timestamp,
			Outcome:   outcome,
		})
		if errors.Is(err, pipeline.ErrSessionHalted) {
			log.Warn().Msg("feed replay stopped: session halted")
			return nil
		}
		if err != nil {
			// Session-fatal errors already flipped the pipeline state.
			log.Error().Err(err).Uint64("sequence", rec.Sequence).Msg("session ended")
			return nil
		}
	}
	return scanner.Err()
}
