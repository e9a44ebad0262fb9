package push

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "blazealert/pkg/logx"
)

// Telegram forwards push messages to one chat through a bot. The bot never
// polls for updates.
type Telegram struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

func NewTelegram(token string, chatID int64, timeout time.Duration, log logx.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram push requires token and chat_id")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID, log: log}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Available(ctx context.Context) bool {
	return t != nil && t.bot != nil && t.chatID != 0
}

func (t *Telegram) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := "<b>" + html.EscapeString(m.Title) + "</b>"
	if m.Body != "" {
		text += "\n" + html.EscapeString(m.Body)
	}
	_, err := t.bot.Send(tele.ChatID(t.chatID), text, &tele.SendOptions{
		ParseMode:           tele.ModeHTML,
		DisableNotification: m.Urgency == UrgencyLow,
	})
	return err
}
