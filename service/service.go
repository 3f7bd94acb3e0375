package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"command-changelog/changelog"
	"command-changelog/id"
	"command-changelog/metrics"
	"command-changelog/model"
	"command-changelog/notify"
)

// DefaultMaxChanges — если за цикл изменений больше, анонсы этого цикла пропускаются.
const DefaultMaxChanges = 5

// CommandStore — удалённое хранилище команд бота.
type CommandStore interface {
	ResolveChannel(ctx context.Context, twitchName string) (string, error)
	FetchCommands(ctx context.Context, channelID string) (model.Snapshot, error)
}

// Recorder принимает записи истории изменений. Enqueue не должен блокироваться.
type Recorder interface {
	Enqueue(model.ChangeRecord) bool
}

// Config — параметры цикла обновления. Нулевые MaxChanges и таймауты заменяются значениями по умолчанию.
type Config struct {
	Channel         string
	UpdateInterval  time.Duration
	EditDebounce    time.Duration
	MaxChanges      int
	IgnoredCommands []string
	FetchTimeout    time.Duration
	PostTimeout     time.Duration
}

// Deps — внешние зависимости сервиса. Recorder, Metrics и Logger необязательны.
type Deps struct {
	Store    CommandStore
	Sink     notify.Sink
	Recorder Recorder
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Service периодически сверяет список команд с предыдущим снапшотом, приписывает
// изменения авторам из чата и публикует анонсы.
type Service struct {
	cfg      Config
	store    CommandStore
	sink     notify.Sink
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	ignored  changelog.IgnoreSet

	// mu защищает снапшот, таблицу авторов и планировщик одновременно
	// и удерживается всё время цикла.
	mu        sync.Mutex
	current   model.Snapshot
	editors   *changelog.Editors
	scheduler *changelog.Debouncer
	channelID string
	baseCtx   context.Context

	published atomic.Pointer[model.Snapshot]
}

// New собирает сервис. Цикл не запускается до Start.
func New(cfg Config, deps Deps) *Service {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MaxChanges <= 0 {
		cfg.MaxChanges = DefaultMaxChanges
	}
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = 10 * time.Second
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		sink:     deps.Sink,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		logger:   deps.Logger.Named("changelog"),
		ignored:  changelog.NewIgnoreSet(cfg.IgnoredCommands...),
		editors:  changelog.NewEditors(),
		baseCtx:  context.Background(),
	}
	s.scheduler = changelog.NewDebouncer(&s.mu, s.cycle)

	return s
}

// Start находит канал и загружает исходный снапшот. Ошибка на любом из шагов
// фатальна: без исходного снапшота сравнивать не с чем.
func (s *Service) Start(ctx context.Context) error {
	resolveCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	channelID, err := s.store.ResolveChannel(resolveCtx, s.cfg.Channel)
	cancel()
	if err != nil {
		return fmt.Errorf("resolve command channel for %q: %w", s.cfg.Channel, err)
	}
	s.logger.Info("Resolved command channel", zap.String("twitch_channel", s.cfg.Channel), zap.String("channel_id", channelID))

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	initial, err := s.store.FetchCommands(fetchCtx, channelID)
	cancel()
	if err != nil {
		return fmt.Errorf("initial command fetch: %w", err)
	}
	s.logger.Info("Loaded initial commands", zap.Int("commands", initial.Len()))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.baseCtx = ctx
	s.channelID = channelID
	s.commit(initial)
	s.scheduler.Schedule(s.cfg.UpdateInterval)

	return nil
}

// Stop отменяет запланированный цикл и дожидается выполняющегося.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler.Stop()
	s.logger.Info("Stopped update cycles")
}

// Snapshot возвращает последний зафиксированный снапшот без ожидания текущего цикла.
func (s *Service) Snapshot() model.Snapshot {
	if snap := s.published.Load(); snap != nil {
		return *snap
	}
	return model.Snapshot{}
}

// cycle вызывается планировщиком под s.mu. Следующий цикл планируется всегда,
// даже после ошибки или паники.
func (s *Service) cycle() {
	defer s.scheduler.Schedule(s.cfg.UpdateInterval)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in update cycle", zap.Any("panic", r), zap.String("stack", string(debug.Stack())))
		}
	}()

	s.runCycle(s.baseCtx)
}

func (s *Service) runCycle(ctx context.Context) {
	s.metrics.Cycles.Inc()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	fetched, err := s.store.FetchCommands(fetchCtx, s.channelID)
	cancel()
	if err != nil {
		s.metrics.FailedFetches.Inc()
		s.logger.Error("Failed to fetch commands, ignoring changes until next cycle", zap.Error(err))
		return
	}
	s.logger.Debug("Fetched commands", zap.Int("commands", fetched.Len()))

	// Выборка удалась: фиксируем её, даже если разбор изменений ниже упадёт,
	// иначе уже опубликованные анонсы повторятся в следующем цикле.
	defer func() {
		s.commit(fetched)
		s.editors.Clear()
	}()

	changes := changelog.Detect(s.current, fetched)

	announce := len(changes) <= s.cfg.MaxChanges
	if !announce {
		s.metrics.SuppressedBursts.Inc()
		s.logger.Warn("Too many command changes, skipping announcements",
			zap.Int("changes", len(changes)),
			zap.Int("limit", s.cfg.MaxChanges))
	}

	detectedAt := time.Now().UTC()
	for _, change := range changes {
		if s.ignored.Contains(change.Name()) {
			s.logger.Debug("Ignoring change of ignored command", zap.String("command", change.Name()))
			continue
		}

		editor, _ := s.editors.Lookup(change.Name())

		announced := false
		if announce {
			announced = s.announce(ctx, change, editor)
		} else {
			s.metrics.Announcements.WithLabelValues(change.Kind.String(), metrics.StatusSuppressed).Inc()
		}

		s.record(change, editor, announced, detectedAt)
	}
}

func (s *Service) announce(ctx context.Context, change model.Change, editor string) bool {
	text := changelog.Format(change, editor)
	if text == "" {
		s.logger.Error("Unknown change kind, nothing to announce", zap.String("command", change.Name()), zap.Stringer("kind", change.Kind))
		return false
	}

	postCtx, cancel := context.WithTimeout(ctx, s.cfg.PostTimeout)
	defer cancel()

	if err := s.sink.Post(postCtx, text); err != nil {
		s.metrics.Announcements.WithLabelValues(change.Kind.String(), metrics.StatusFailed).Inc()
		s.logger.Error("Failed to announce command change",
			zap.String("command", change.Name()),
			zap.Stringer("kind", change.Kind),
			zap.Error(err))
		return false
	}

	s.metrics.Announcements.WithLabelValues(change.Kind.String(), metrics.StatusSent).Inc()
	s.logger.Info("Announced command change",
		zap.String("command", change.Name()),
		zap.Stringer("kind", change.Kind),
		zap.String("editor", editor))
	return true
}

func (s *Service) record(change model.Change, editor string, announced bool, detectedAt time.Time) {
	if s.recorder == nil {
		return
	}

	rec := model.ChangeRecord{
		ID:         id.New(),
		Channel:    s.cfg.Channel,
		Kind:       change.Kind.String(),
		Command:    change.Name(),
		Editor:     editor,
		Announced:  announced,
		DetectedAt: detectedAt,
	}
	if change.Kind != model.ChangeAdded {
		old := change.Old
		rec.Old = &old
	}
	if change.Kind != model.ChangeDeleted {
		cur := change.New
		rec.New = &cur
	}

	s.recorder.Enqueue(rec)
}

func (s *Service) commit(snap model.Snapshot) {
	s.current = snap
	s.published.Store(&snap)
	s.metrics.TrackedCommands.Set(float64(snap.Len()))
}
