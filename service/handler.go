package service

import (
	"context"

	"go.uber.org/zap"

	"command-changelog/changelog"
	"command-changelog/model"
)

// HandleChat реализует twitch.Handler. Если модератор меняет команду через чат,
// запоминает его как автора и переносит ближайший цикл на EditDebounce вперёд:
// API обновляется не мгновенно, поэтому сразу не проверяем.
func (s *Service) HandleChat(_ context.Context, msg model.ChatMessage) {
	s.metrics.ProcessedMessages.Inc()

	if !msg.CanEditCommands() {
		return
	}

	command, ok := changelog.Classify(msg.Text)
	if !ok {
		return
	}

	editor := msg.Editor()
	s.logger.Info("Found command change in chat",
		zap.String("command", command),
		zap.String("editor", editor),
		zap.String("message", msg.Text))

	if s.ignored.Contains(command) {
		s.logger.Info("Command is ignored, skipping", zap.String("command", command))
		return
	}

	s.metrics.ChatEdits.Inc()

	// Запись автора и перенос цикла атомарны относительно цикла обновления.
	s.mu.Lock()
	defer s.mu.Unlock()

	s.editors.Record(command, editor)
	s.scheduler.Schedule(s.cfg.EditDebounce)
}
