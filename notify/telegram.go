package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const telegramMessageLimit = 4096

type telegramAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram публикует анонсы в чат Telegram. Обновления бот не получает.
type Telegram struct {
	api  telegramAPI
	chat tele.ChatID
}

// NewTelegram создаёт канал по токену бота и id чата.
func NewTelegram(token string, chatID int64, timeout time.Duration) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}

	return &Telegram{api: bot, chat: tele.ChatID(chatID)}, nil
}

// Name implements Sink.
func (t *Telegram) Name() string { return "telegram" }

// Post implements Sink. Разметка Discord отправляется как обычный текст.
func (t *Telegram) Post(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Send(t.chat, truncate(text, telegramMessageLimit), &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}
