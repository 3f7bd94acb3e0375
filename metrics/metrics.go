package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Статусы отправки анонсов.
const (
	StatusSent       = "sent"
	StatusFailed     = "failed"
	StatusSuppressed = "suppressed"
)

// Metrics — счётчики сервиса журнала изменений команд.
type Metrics struct {
	ProcessedMessages prometheus.Counter
	ChatEdits         prometheus.Counter
	FailedFetches     prometheus.Counter
	Cycles            prometheus.Counter
	SuppressedBursts  prometheus.Counter
	Announcements     *prometheus.CounterVec
	TrackedCommands   prometheus.Gauge
	DroppedRecords    prometheus.Counter
	ModMailMessages   *prometheus.CounterVec
}

// New регистрирует метрики с префиксом namespace в reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ProcessedMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processed_messages_total",
			Help:      "Chat messages received from Twitch.",
		}),
		ChatEdits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_edits_total",
			Help:      "Command modifications observed in chat from privileged users.",
		}),
		FailedFetches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_command_fetches_total",
			Help:      "Command list fetches that failed during an update cycle.",
		}),
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Update cycles run.",
		}),
		SuppressedBursts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_bursts_total",
			Help:      "Cycles whose changes exceeded the announcement limit.",
		}),
		Announcements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_total",
			Help:      "Change announcements by change kind and delivery status.",
		}, []string{"kind", "status"}),
		TrackedCommands: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_commands",
			Help:      "Commands in the current snapshot.",
		}),
		DroppedRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_change_records_total",
			Help:      "Change history records dropped because the writer queue was full.",
		}),
		ModMailMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modmail_messages_total",
			Help:      "Mod mail messages relayed by direction and delivery status.",
		}, []string{"direction", "status"}),
	}
}

// Nop возвращает метрики, не привязанные ни к какому реестру.
func Nop() *Metrics {
	return New("", prometheus.NewRegistry())
}
