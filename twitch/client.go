package twitch

import (
	"context"
	"strings"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"go.uber.org/zap"

	"command-changelog/config"
	"command-changelog/model"
)

// Handler принимает сообщения чата, преобразованные в доменные модели.
type Handler interface {
	HandleChat(context.Context, model.ChatMessage)
}

// Client оборачивает go-twitch-irc и настраивает обработчики.
type Client struct {
	client  *twitchirc.Client
	handler Handler
	logger  *zap.Logger
	baseCtx context.Context
}

// NewClient инициализирует IRC-клиент и регистрирует колбэки. Без учётных данных
// подключается анонимно: для чтения чата этого достаточно.
func NewClient(cfg config.TwitchConfig, handler Handler, logger *zap.Logger) *Client {
	var client *twitchirc.Client
	if cfg.Anonymous() {
		client = twitchirc.NewAnonymousClient()
	} else {
		client = twitchirc.NewClient(cfg.Username, cfg.OAuthToken)
	}

	c := &Client{
		client:  client,
		handler: handler,
		logger:  logger.Named("twitch"),
	}

	client.OnPrivateMessage(func(m twitchirc.PrivateMessage) {
		c.handler.HandleChat(c.context(), toChatMessage(m))
	})

	client.OnConnect(func() {
		c.logger.Info("Connected, joining channel", zap.String("channel", cfg.Channel), zap.Bool("anonymous", cfg.Anonymous()))
		client.Join(cfg.Channel)
	})

	client.OnReconnectMessage(func(message twitchirc.ReconnectMessage) {
		c.logger.Info("Server requested reconnect", zap.String("raw", message.Raw))
	})

	return c
}

// Run подключает клиента и блокируется до отмены контекста или ошибки.
func (c *Client) Run(ctx context.Context) error {
	c.baseCtx = ctx
	errCh := make(chan error, 1)

	go func() {
		errCh <- c.client.Connect()
	}()

	select {
	case <-ctx.Done():
		_ = c.client.Disconnect()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func toChatMessage(m twitchirc.PrivateMessage) model.ChatMessage {
	badges := make(map[string]int, len(m.User.Badges))
	for k, v := range m.User.Badges {
		badges[k] = v
	}

	sentAt := m.Time
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	return model.ChatMessage{
		ID:            m.ID,
		Channel:       normalizeChannel(m.Channel),
		UserID:        m.User.ID,
		Username:      m.User.Name,
		DisplayName:   m.User.DisplayName,
		Text:          m.Message,
		Badges:        badges,
		IsMod:         m.User.Badges["moderator"] > 0,
		IsBroadcaster: m.User.Badges["broadcaster"] > 0,
		SentAt:        sentAt,
	}
}

func normalizeChannel(ch string) string {
	return strings.TrimPrefix(strings.TrimSpace(ch), "#")
}

func (c *Client) context() context.Context {
	if c.baseCtx != nil {
		return c.baseCtx
	}
	return context.Background()
}
