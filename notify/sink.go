package notify

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sink — внешний канал, куда публикуются готовые анонсы.
type Sink interface {
	// Name возвращает идентификатор канала ("discord", "telegram").
	Name() string

	// Post публикует текст. Ошибка относится только к этому сообщению.
	Post(ctx context.Context, text string) error
}

// Multi публикует каждое сообщение во все каналы.
type Multi []Sink

// Name implements Sink.
func (m Multi) Name() string { return "multi" }

// Post implements Sink. Ошибки отдельных каналов собираются через errors.Join.
func (m Multi) Post(ctx context.Context, text string) error {
	var errs []error
	for _, s := range m {
		if err := s.Post(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Limited ограничивает частоту публикаций в обёрнутый канал.
type Limited struct {
	sink    Sink
	limiter *rate.Limiter
}

// NewLimited оборачивает sink корзиной токенов на perSec сообщений в секунду.
func NewLimited(sink Sink, perSec float64) *Limited {
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return &Limited{sink: sink, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Name implements Sink.
func (l *Limited) Name() string { return l.sink.Name() }

// Post implements Sink. Ждёт токен не дольше, чем позволяет ctx.
func (l *Limited) Post(ctx context.Context, text string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return l.sink.Post(ctx, text)
}

// Log пишет анонсы в лог вместо публикации. Используется в режиме dry-run.
type Log struct {
	logger *zap.Logger
}

// NewLog создаёт канал, пишущий в logger.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("announce")}
}

// Name implements Sink.
func (l *Log) Name() string { return "log" }

// Post implements Sink.
func (l *Log) Post(_ context.Context, text string) error {
	l.logger.Info("Announcement", zap.String("text", text))
	return nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
