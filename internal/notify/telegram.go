package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"alert-service/internal/logging"
	"alert-service/internal/models"
	"alert-service/internal/utils"
)

const maxListedAlerts = 20

// Telegram posts a dispatch summary to a chat.
type Telegram struct {
	token   string
	chatID  int64
	logger  *logging.Logger
	limiter *rate.Limiter
	send    func(ctx context.Context, text string) error
}

// NewTelegram sends at most one message per second to the chat.
func NewTelegram(token string, chatID int64, logger *logging.Logger) *Telegram {
	t := &Telegram{token: token, chatID: chatID, logger: logger, limiter: rate.NewLimiter(rate.Every(time.Second), 1)}
	t.send = t.sendMessage
	return t
}

func (t *Telegram) Notify(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	text := formatDispatch(alerts)
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}
	return utils.Retry(ctx, t.logger, 3, time.Second, func() error {
		return t.send(ctx, text)
	})
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	b, err := bot.New(t.token)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	params := &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: "Markdown",
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
	}
	return nil
}

func formatDispatch(alerts []models.Alert) string {
	var sb strings.Builder
	first := alerts[0]
	fmt.Fprintf(&sb, "*%d alertas %s enviadas* (versión %d)\n", len(alerts), first.Type, first.Version)
	for i, a := range alerts {
		if i == maxListedAlerts {
			fmt.Fprintf(&sb, "... y %d más", len(alerts)-maxListedAlerts)
			break
		}
		fmt.Fprintf(&sb, "%s  %.2f\n", a.Datetime.Format(models.DatetimeLayout), a.Value)
	}
	return sb.String()
}
