package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const discordMessageLimit = 2000

type discordAPI interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord публикует анонсы в текстовый канал Discord через REST API бота.
type Discord struct {
	api       discordAPI
	channelID string
}

// NewDiscord создаёт канал по токену бота. Соединение с gateway не открывается.
func NewDiscord(token, channelID string, timeout time.Duration) (*Discord, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("discord token is empty")
	}
	if strings.TrimSpace(channelID) == "" {
		return nil, errors.New("discord channel id is empty")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Client = &http.Client{Timeout: timeout}

	return &Discord{api: session, channelID: channelID}, nil
}

// Verify проверяет, что канал доступен боту, и возвращает его имя.
func (d *Discord) Verify(ctx context.Context) (string, error) {
	ch, err := d.api.Channel(d.channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: access channel %s: %w", d.channelID, err)
	}
	return ch.Name, nil
}

// Name implements Sink.
func (d *Discord) Name() string { return "discord" }

// Post implements Sink.
func (d *Discord) Post(ctx context.Context, text string) error {
	_, err := d.api.ChannelMessageSend(d.channelID, truncate(text, discordMessageLimit), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}
