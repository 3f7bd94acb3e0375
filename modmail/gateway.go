package modmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"command-changelog/metrics"
)

// Gateway держит соединение с Discord gateway и передаёт новые сообщения в Relay.
type Gateway struct {
	session *discordgo.Session
	relay   *Relay
	logger  *zap.Logger
}

// NewGateway создаёт сессию бота с правами на чтение личных сообщений и сообщений сервера.
// Соединение открывается в Run.
func NewGateway(token, channelID string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) (*Gateway, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("modmail: discord token is empty")
	}
	if strings.TrimSpace(channelID) == "" {
		return nil, errors.New("modmail: channel id is empty")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("modmail: create session: %w", err)
	}
	session.Client = &http.Client{Timeout: timeout}
	session.Identify.Intents = discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	relay := NewRelay(session, channelID, timeout, m, logger)
	return &Gateway{session: session, relay: relay, logger: relay.logger}, nil
}

// Run проверяет канал модераторов, подключается к gateway и обрабатывает
// сообщения до отмены ctx.
func (g *Gateway) Run(ctx context.Context) error {
	name, err := g.relay.Verify(ctx)
	if err != nil {
		return err
	}
	g.logger.Info("Found mod mail channel", zap.String("channel", name))

	remove := g.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		g.relay.HandleMessage(ctx, m.Message)
	})
	defer remove()

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("modmail: open gateway: %w", err)
	}
	g.logger.Info("Mod mail set up")

	<-ctx.Done()

	if err := g.session.Close(); err != nil {
		g.logger.Warn("Failed to close discord gateway", zap.Error(err))
	}
	return ctx.Err()
}
