package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config агрегирует значения конфигурации из переменных окружения.
type Config struct {
	Twitch    TwitchConfig
	Nightbot  NightbotConfig
	Changelog ChangelogConfig
	Discord   DiscordConfig
	Telegram  TelegramConfig
	ModMail   ModMailConfig
	Sink      SinkConfig
	Postgres  PostgresConfig
	Batch     BatchConfig
	HTTP      HTTPConfig
	Log       LogConfig
	IDNode    int64
}

// TwitchConfig содержит канал и необязательные учётные данные IRC клиента.
type TwitchConfig struct {
	Channel    string
	Username   string
	OAuthToken string
}

// Anonymous сообщает, что клиент подключается без учётных данных.
func (t TwitchConfig) Anonymous() bool {
	return t.Username == "" && t.OAuthToken == ""
}

// NightbotConfig задаёт адрес API и таймаут запросов.
type NightbotConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ChangelogConfig — параметры цикла обнаружения изменений.
type ChangelogConfig struct {
	UpdateInterval  time.Duration
	EditDebounce    time.Duration
	MaxChanges      int
	IgnoredCommands []string
	DryRun          bool
}

// DiscordConfig — бот и канал для анонсов в Discord.
type DiscordConfig struct {
	Token     string
	ChannelID string
}

// Enabled сообщает, настроен ли канал Discord.
func (d DiscordConfig) Enabled() bool { return d.Token != "" }

// TelegramConfig — бот и чат для анонсов в Telegram.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// Enabled сообщает, настроен ли канал Telegram.
func (t TelegramConfig) Enabled() bool { return t.Token != "" }

// ModMailConfig — пересылка личных сообщений боту Discord в канал модераторов.
// Использует токен из DiscordConfig.
type ModMailConfig struct {
	Enabled   bool
	ChannelID string
}

// SinkConfig — общие параметры публикации анонсов.
type SinkConfig struct {
	Timeout    time.Duration
	RatePerSec float64
}

// PostgresConfig хранит параметры подключения к пулу базы данных.
type PostgresConfig struct {
	Host     string
	Port     string
	DB       string
	User     string
	Password string
}

// Enabled сообщает, включена ли запись истории в базу.
func (p PostgresConfig) Enabled() bool { return p.Host != "" }

// DSN собирает строку подключения для pgx/pgxpool.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", p.User, p.Password, p.Host, p.Port, p.DB)
}

// BatchConfig задаёт параметры батчинга и флашей при записи истории.
type BatchConfig struct {
	MaxBatch     int
	FlushEvery   time.Duration
	ChanBuffer   int
	FlushTimeout time.Duration
}

// HTTPConfig — служебный HTTP сервер. Пустой Addr отключает его.
type HTTPConfig struct {
	Addr             string
	MetricsNamespace string
}

// LogConfig — уровень и формат логов.
type LogConfig struct {
	Level  string
	Format string
}

// Load читает .env (если есть) и переменные окружения и возвращает валидированную Config.
// Уже заданные переменные окружения имеют приоритет над .env.
func Load() (Config, error) {
	_ = godotenv.Load()

	var p parser
	cfg := Config{
		Twitch: TwitchConfig{
			Channel:    strings.ToLower(strings.TrimPrefix(env("TWITCH_CHANNEL", ""), "#")),
			Username:   env("TWITCH_USERNAME", ""),
			OAuthToken: env("TWITCH_OAUTH_TOKEN", ""),
		},
		Nightbot: NightbotConfig{
			BaseURL: env("NIGHTBOT_API_URL", "https://api.nightbot.tv/1"),
			Timeout: p.getDuration("NIGHTBOT_TIMEOUT", 10*time.Second),
		},
		Changelog: ChangelogConfig{
			UpdateInterval:  p.getDuration("CHANGELOG_UPDATE_INTERVAL", 5*time.Minute),
			EditDebounce:    p.getDuration("CHANGELOG_EDIT_DEBOUNCE", 5*time.Second),
			MaxChanges:      p.getInt("CHANGELOG_MAX_CHANGES", 5),
			IgnoredCommands: splitAndTrim(env("CHANGELOG_IGNORED_COMMANDS", "")),
			DryRun:          p.getBool("CHANGELOG_DRY_RUN", false),
		},
		Discord: DiscordConfig{
			Token:     env("DISCORD_TOKEN", ""),
			ChannelID: env("DISCORD_CHANNEL_ID", ""),
		},
		Telegram: TelegramConfig{
			Token:  env("TELEGRAM_TOKEN", ""),
			ChatID: p.getInt64("TELEGRAM_CHAT_ID", 0),
		},
		ModMail: ModMailConfig{
			Enabled:   p.getBool("MODMAIL_ENABLED", false),
			ChannelID: env("MODMAIL_DISCORD_CHANNEL_ID", ""),
		},
		Sink: SinkConfig{
			Timeout:    p.getDuration("SINK_TIMEOUT", 10*time.Second),
			RatePerSec: p.getFloat("SINK_RATE_PER_SEC", 1),
		},
		Postgres: PostgresConfig{
			Host:     env("POSTGRES_HOST", ""),
			Port:     env("POSTGRES_PORT", "5432"),
			DB:       env("POSTGRES_DB", ""),
			User:     env("POSTGRES_USER", ""),
			Password: env("POSTGRES_PASSWORD", ""),
		},
		Batch: BatchConfig{
			MaxBatch:     p.getInt("BATCH_MAX", 100),
			FlushEvery:   p.getDuration("BATCH_FLUSH_EVERY", 1500*time.Millisecond),
			ChanBuffer:   p.getInt("BATCH_CHAN_BUFFER", 1024),
			FlushTimeout: p.getDuration("BATCH_FLUSH_TIMEOUT", 5*time.Second),
		},
		HTTP: HTTPConfig{
			Addr:             env("HTTP_ADDR", ":8089"),
			MetricsNamespace: env("METRICS_NAMESPACE", "command_changelog"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(env("LOG_LEVEL", "info")),
			Format: strings.ToLower(env("LOG_FORMAT", "json")),
		},
		IDNode: p.getInt64("ID_NODE", 1),
	}

	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Twitch.Channel == "" {
		return fmt.Errorf("TWITCH_CHANNEL is required")
	}
	if (c.Twitch.Username == "") != (c.Twitch.OAuthToken == "") {
		return fmt.Errorf("TWITCH_USERNAME and TWITCH_OAUTH_TOKEN must be set together")
	}

	if c.Nightbot.Timeout <= 0 {
		return fmt.Errorf("NIGHTBOT_TIMEOUT must be positive")
	}
	if c.Changelog.UpdateInterval <= 0 {
		return fmt.Errorf("CHANGELOG_UPDATE_INTERVAL must be positive")
	}
	if c.Changelog.EditDebounce <= 0 {
		return fmt.Errorf("CHANGELOG_EDIT_DEBOUNCE must be positive")
	}
	if c.Changelog.MaxChanges <= 0 {
		return fmt.Errorf("CHANGELOG_MAX_CHANGES must be positive")
	}

	if c.Discord.Enabled() && c.Discord.ChannelID == "" {
		return fmt.Errorf("DISCORD_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}
	if c.Telegram.Enabled() && c.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}
	if !c.Changelog.DryRun && !c.Discord.Enabled() && !c.Telegram.Enabled() {
		return fmt.Errorf("no announcement sink configured: set DISCORD_TOKEN, TELEGRAM_TOKEN or CHANGELOG_DRY_RUN")
	}
	if c.ModMail.Enabled {
		if !c.Discord.Enabled() {
			return fmt.Errorf("DISCORD_TOKEN is required when MODMAIL_ENABLED is set")
		}
		if c.ModMail.ChannelID == "" {
			return fmt.Errorf("MODMAIL_DISCORD_CHANNEL_ID is required when MODMAIL_ENABLED is set")
		}
	}
	if c.Sink.Timeout <= 0 {
		return fmt.Errorf("SINK_TIMEOUT must be positive")
	}
	if c.Sink.RatePerSec <= 0 {
		return fmt.Errorf("SINK_RATE_PER_SEC must be positive")
	}

	if c.Postgres.Enabled() {
		if c.Postgres.Port == "" {
			return fmt.Errorf("POSTGRES_PORT is required")
		}
		if c.Postgres.DB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
		if c.Postgres.Password == "" {
			return fmt.Errorf("POSTGRES_PASSWORD is required")
		}
	}

	if c.Batch.MaxBatch <= 0 {
		return fmt.Errorf("BATCH_MAX must be positive")
	}
	if c.Batch.FlushEvery <= 0 {
		return fmt.Errorf("BATCH_FLUSH_EVERY must be positive")
	}
	if c.Batch.ChanBuffer <= 0 {
		return fmt.Errorf("BATCH_CHAN_BUFFER must be positive")
	}
	if c.Batch.FlushTimeout <= 0 {
		return fmt.Errorf("BATCH_FLUSH_TIMEOUT must be positive")
	}

	if c.IDNode < 0 || c.IDNode > 1023 {
		return fmt.Errorf("ID_NODE must be in [0, 1023]")
	}

	return nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parser запоминает первую ошибку разбора, чтобы Load проверил её один раз.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	raw := env(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return d
}

func (p *parser) getInt(key string, def int) int {
	raw := env(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) getInt64(key string, def int64) int64 {
	raw := env(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) getFloat(key string, def float64) float64 {
	raw := env(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) getBool(key string, def bool) bool {
	raw := env(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
