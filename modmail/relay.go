package modmail

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"command-changelog/metrics"
)

// Направления пересылки для метрик.
const (
	DirectionInbound = "inbound"
	DirectionReply   = "reply"
)

const (
	replySentText       = "Reply sent to user via DM."
	errNoUserIDText     = "Error: Referenced message does not contain a proper User ID to respond to"
	errUserNotFoundText = "Error: Could not send reply to user %s: Not found"
	errNoDMText         = "Error: Could not send reply to user: Could not send DM"
)

// Шапка пересланного сообщения; из неё же ответ модератора достаёт id адресата.
var inboundHeader = regexp.MustCompile(`(?s)\*\*User [^ ]+ \(Id: (\d+)\) sent message:`)

type discordAPI interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Relay пересылает личные сообщения боту в канал модераторов, а ответы
// модераторов на них отправляет авторам в личку.
type Relay struct {
	api       discordAPI
	channelID string
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewRelay создаёт пересыльщик для канала модераторов channelID.
func NewRelay(api discordAPI, channelID string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Relay {
	if m == nil {
		m = metrics.Nop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		api:       api,
		channelID: channelID,
		timeout:   timeout,
		metrics:   m,
		logger:    logger.Named("modmail"),
	}
}

// Verify проверяет, что канал модераторов существует и принадлежит серверу.
func (r *Relay) Verify(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ch, err := r.api.Channel(r.channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("modmail: find channel %s: %w", r.channelID, err)
	}
	if ch.GuildID == "" {
		return "", fmt.Errorf("modmail: channel %s is not a server channel", r.channelID)
	}
	return ch.Name, nil
}

// HandleMessage разбирает новое сообщение: личное пересылается модераторам,
// ответ в канале модераторов уходит автору исходного сообщения.
func (r *Relay) HandleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil {
		return
	}

	switch {
	case m.GuildID == "":
		r.forwardDirectMessage(ctx, m)
	case m.ChannelID == r.channelID:
		r.relayReply(ctx, m)
	}
}

func (r *Relay) forwardDirectMessage(ctx context.Context, m *discordgo.Message) {
	if m.Author == nil {
		r.logger.Info("Ignored direct message from unknown author", zap.String("content", m.Content))
		return
	}
	if m.Author.Bot {
		return
	}

	if err := r.postToModChannel(ctx, FormatInbound(m.Author, m.Content)); err != nil {
		r.metrics.ModMailMessages.WithLabelValues(DirectionInbound, metrics.StatusFailed).Inc()
		r.logger.Error("Failed to forward direct message", zap.String("user_id", m.Author.ID), zap.Error(err))
		return
	}

	r.metrics.ModMailMessages.WithLabelValues(DirectionInbound, metrics.StatusSent).Inc()
	r.logger.Info("Forwarded direct message to mod channel", zap.String("user", m.Author.Username), zap.String("user_id", m.Author.ID))
}

func (r *Relay) relayReply(ctx context.Context, m *discordgo.Message) {
	if m.Author != nil && m.Author.Bot {
		return
	}
	if m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply {
		return
	}

	ref := r.referencedMessage(ctx, m)
	if ref == nil {
		return
	}
	r.logger.Info("Found mod mail reply", zap.String("message_id", m.ID))

	userID, ok := ParseUserID(ref.Content)
	if !ok {
		r.replyError(ctx, errNoUserIDText)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.api.User(userID, discordgo.WithContext(reqCtx)); err != nil {
		r.logger.Warn("Mod mail recipient not found", zap.String("user_id", userID), zap.Error(err))
		r.replyError(ctx, fmt.Sprintf(errUserNotFoundText, userID))
		return
	}

	dm, err := r.api.UserChannelCreate(userID, discordgo.WithContext(reqCtx))
	if err == nil {
		_, err = r.api.ChannelMessageSend(dm.ID, FormatReply(m.Content), discordgo.WithContext(reqCtx))
	}
	if err != nil {
		r.logger.Warn("Failed to send mod mail reply", zap.String("user_id", userID), zap.Error(err))
		r.replyError(ctx, errNoDMText)
		return
	}

	r.metrics.ModMailMessages.WithLabelValues(DirectionReply, metrics.StatusSent).Inc()
	if err := r.postToModChannel(ctx, replySentText); err != nil {
		r.logger.Error("Failed to confirm mod mail reply", zap.Error(err))
	}
	r.logger.Info("Relayed mod mail reply via DM", zap.String("user_id", userID))
}

// referencedMessage возвращает сообщение, на которое ответили, или nil.
// В событии оно обычно уже есть; если нет, загружается по ссылке.
func (r *Relay) referencedMessage(ctx context.Context, m *discordgo.Message) *discordgo.Message {
	if m.ReferencedMessage != nil {
		return m.ReferencedMessage
	}
	if m.MessageReference == nil || m.MessageReference.MessageID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ref, err := r.api.ChannelMessage(r.channelID, m.MessageReference.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		r.logger.Warn("Failed to load referenced message", zap.String("message_id", m.MessageReference.MessageID), zap.Error(err))
		return nil
	}
	return ref
}

func (r *Relay) replyError(ctx context.Context, text string) {
	r.metrics.ModMailMessages.WithLabelValues(DirectionReply, metrics.StatusFailed).Inc()
	if err := r.postToModChannel(ctx, text); err != nil {
		r.logger.Error("Failed to post mod mail error", zap.String("text", text), zap.Error(err))
	}
}

func (r *Relay) postToModChannel(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.api.ChannelMessageSend(r.channelID, text, discordgo.WithContext(ctx))
	return err
}

// FormatInbound — пересылаемое модераторам сообщение с упоминанием и id автора.
func FormatInbound(author *discordgo.User, content string) string {
	return "**User " + author.Mention() + " (Id: " + author.ID + ") sent message:**\n" + Quote(content)
}

// FormatReply — ответ модераторов, отправляемый пользователю.
func FormatReply(content string) string {
	return "**Response by the moderators:**\n" + Quote(content)
}

// ParseUserID достаёт id автора из пересланного сообщения.
func ParseUserID(content string) (string, bool) {
	m := inboundHeader.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Quote превращает текст в цитату Discord построчно.
func Quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}
