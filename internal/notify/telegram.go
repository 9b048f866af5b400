package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tablerun/tablerun/internal/signal"
)

// TelegramNotifier pushes signals and lifecycle events to a Telegram
// chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

// NewTelegramNotifier authenticates against the Bot API.
func NewTelegramNotifier(token string, chatID int64, log zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	l := log.With().Str("component", "telegram").Logger()
	l.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier ready")
	return &TelegramNotifier{bot: bot, chatID: chatID, log: l}, nil
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

func (n *TelegramNotifier) SignalEmitted(ctx context.Context, sig signal.Signal) error {
	return n.send(ctx, "🎯 TABLERUN SIGNAL\n\n"+FormatSignal(sig))
}

func (n *TelegramNotifier) SessionStarted(ctx context.Context, info SessionInfo) error {
	return n.send(ctx, fmt.Sprintf("▶️ Session started\nBalance: %.2f\nUnit: %.2f", info.Balance, info.UnitSize))
}

func (n *TelegramNotifier) SessionHalted(ctx context.Context, reason string) error {
	return n.send(ctx, "⛔ Session halted: "+reason)
}

func (n *TelegramNotifier) Report(ctx context.Context, text string) error {
	return n.send(ctx, "📊 Session report\n\n"+text)
}
