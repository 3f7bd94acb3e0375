package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"command-changelog/metrics"
	"command-changelog/model"
)

type fakeStore struct {
	mu         sync.Mutex
	channelID  string
	resolveErr error
	snapshot   model.Snapshot
	fetchErr   error
	fetches    int
	panicOn    int
}

func (f *fakeStore) ResolveChannel(_ context.Context, _ string) (string, error) {
	return f.channelID, f.resolveErr
}

func (f *fakeStore) FetchCommands(_ context.Context, channelID string) (model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches++
	if f.panicOn > 0 && f.fetches == f.panicOn {
		panic("boom")
	}
	if channelID != f.channelID {
		return model.Snapshot{}, fmt.Errorf("unexpected channel %q", channelID)
	}
	if f.fetchErr != nil {
		return model.Snapshot{}, f.fetchErr
	}
	return f.snapshot, nil
}

func (f *fakeStore) set(cmds ...model.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = model.NewSnapshot(cmds)
	f.fetchErr = nil
}

func (f *fakeStore) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeStore) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type recordingSink struct {
	mu      sync.Mutex
	posts   []string
	failOn  map[int]error
	panicOn map[int]bool
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Post(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.posts)
	r.posts = append(r.posts, text)
	if r.panicOn[n] {
		panic("sink exploded")
	}
	if err, ok := r.failOn[n]; ok {
		return err
	}
	return nil
}

func (r *recordingSink) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.posts...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []model.ChangeRecord
}

func (f *fakeRecorder) Enqueue(rec model.ChangeRecord) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return true
}

func (f *fakeRecorder) all() []model.ChangeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ChangeRecord(nil), f.records...)
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	sink     *recordingSink
	recorder *fakeRecorder
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, cfg Config, initial ...model.Command) *fixture {
	t.Helper()

	if cfg.Channel == "" {
		cfg.Channel = "ml7support"
	}
	if cfg.UpdateInterval == 0 {
		cfg.UpdateInterval = time.Hour
	}
	if cfg.EditDebounce == 0 {
		cfg.EditDebounce = time.Hour
	}
	if cfg.MaxChanges == 0 {
		cfg.MaxChanges = DefaultMaxChanges
	}

	f := &fixture{
		store:    &fakeStore{channelID: "chan-1"},
		sink:     &recordingSink{},
		recorder: &fakeRecorder{},
		metrics:  metrics.Nop(),
	}
	f.store.set(initial...)
	f.svc = New(cfg, Deps{
		Store:    f.store,
		Sink:     f.sink,
		Recorder: f.recorder,
		Metrics:  f.metrics,
		Logger:   zap.NewNop(),
	})

	require.NoError(t, f.svc.Start(context.Background()))
	t.Cleanup(f.svc.Stop)
	return f
}

// runCycle прогоняет цикл синхронно, как это сделал бы планировщик.
func (f *fixture) runCycle() {
	f.svc.mu.Lock()
	defer f.svc.mu.Unlock()
	f.svc.cycle()
}

func (f *fixture) editorCount() int {
	f.svc.mu.Lock()
	defer f.svc.mu.Unlock()
	return f.svc.editors.Len()
}

func modMessage(name, text string) model.ChatMessage {
	return model.ChatMessage{
		Channel:     "ml7support",
		Username:    name,
		DisplayName: name,
		Text:        text,
		IsMod:       true,
		SentAt:      time.Now(),
	}
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func cmd(name, message string, updated time.Time) model.Command {
	return model.Command{
		ID:        "id-" + name,
		Name:      name,
		Message:   message,
		UserLevel: "everyone",
		CoolDown:  5,
		CreatedAt: t0,
		UpdatedAt: updated,
	}
}

func TestStartFailsWhenChannelCannotBeResolved(t *testing.T) {
	store := &fakeStore{resolveErr: errors.New("404")}
	svc := New(Config{Channel: "nobody"}, Deps{Store: store, Sink: &recordingSink{}})

	err := svc.Start(context.Background())
	assert.ErrorContains(t, err, "resolve command channel")
	assert.Zero(t, store.fetchCount())
}

func TestStartFailsWhenInitialFetchFails(t *testing.T) {
	store := &fakeStore{channelID: "chan-1", fetchErr: errors.New("502")}
	svc := New(Config{Channel: "ml7support"}, Deps{Store: store, Sink: &recordingSink{}})

	err := svc.Start(context.Background())
	assert.ErrorContains(t, err, "initial command fetch")
	assert.Zero(t, svc.Snapshot().Len())
}

func TestStartPublishesInitialSnapshotWithoutAnnouncing(t *testing.T) {
	f := newFixture(t, Config{}, cmd("!a", "1", t0), cmd("!b", "2", t0))

	assert.Equal(t, []string{"!a", "!b"}, f.svc.Snapshot().Names())
	assert.Empty(t, f.sink.messages())
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.TrackedCommands))
}

func TestCycleAnnouncesAddedCommandFromDashboard(t *testing.T) {
	f := newFixture(t, Config{})

	f.store.set(cmd("!foo", "hi", t0))
	f.runCycle()

	posts := f.sink.messages()
	require.Len(t, posts, 1)
	assert.Equal(t, "✨ **New** command `!foo` added in Dashboard:\n"+
		"> User-Level: everyone | Alias: - | Cooldown: 5s\n"+
		"> ```\n> hi\n> ```", posts[0])

	records := f.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, "added", records[0].Kind)
	assert.Equal(t, "!foo", records[0].Command)
	assert.True(t, records[0].Announced)
	assert.Nil(t, records[0].Old)
	require.NotNil(t, records[0].New)
	assert.Equal(t, "hi", records[0].New.Message)

	assert.True(t, f.svc.Snapshot().Has("!foo"))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Announcements.WithLabelValues("added", metrics.StatusSent)))
}

func TestCycleAttributesEditToChatEditorOnce(t *testing.T) {
	f := newFixture(t, Config{}, cmd("!foo", "old", t0))

	f.svc.HandleChat(context.Background(), modMessage("Alice", "!editcom !foo new"))
	assert.Equal(t, 1, f.editorCount())

	f.store.set(cmd("!foo", "new", t0.Add(time.Minute)))
	f.runCycle()

	posts := f.sink.messages()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0], "✏ **Edited** command `!foo` by **Alice** in Twitch Chat to:")
	assert.Contains(t, posts[0], " was before:\n")
	assert.Zero(t, f.editorCount())

	// Следующая правка без сообщения в чате приписывается панели управления.
	f.store.set(cmd("!foo", "newer", t0.Add(2*time.Minute)))
	f.runCycle()

	posts = f.sink.messages()
	require.Len(t, posts, 2)
	assert.Contains(t, posts[1], "✏ **Edited** command `!foo` in Dashboard to:")

	records := f.recorder.all()
	require.Len(t, records, 2)
	assert.Equal(t, "Alice", records[0].Editor)
	assert.Empty(t, records[1].Editor)
	require.NotNil(t, records[0].Old)
	assert.Equal(t, "old", records[0].Old.Message)
}

func TestCycleEscapesEditorName(t *testing.T) {
	f := newFixture(t, Config{})

	f.svc.HandleChat(context.Background(), modMessage("x_y*z", "!addcom !foo hi"))
	f.store.set(cmd("!foo", "hi", t0))
	f.runCycle()

	posts := f.sink.messages()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0], `by **x\_y\*z** in Twitch Chat`)
}

func TestCycleAnnouncesUpToMaxChanges(t *testing.T) {
	f := newFixture(t, Config{})

	var cmds []model.Command
	for i := 0; i < DefaultMaxChanges; i++ {
		cmds = append(cmds, cmd(fmt.Sprintf("!c%d", i), "x", t0))
	}
	f.store.set(cmds...)
	f.runCycle()

	assert.Len(t, f.sink.messages(), DefaultMaxChanges)
	assert.Zero(t, testutil.ToFloat64(f.metrics.SuppressedBursts))
}

func TestCycleSuppressesBurstButCommits(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.HandleChat(context.Background(), modMessage("Alice", "!addcom !c0 x"))

	var cmds []model.Command
	for i := 0; i <= DefaultMaxChanges; i++ {
		cmds = append(cmds, cmd(fmt.Sprintf("!c%d", i), "x", t0))
	}
	f.store.set(cmds...)
	f.runCycle()

	assert.Empty(t, f.sink.messages())
	assert.Equal(t, DefaultMaxChanges+1, f.svc.Snapshot().Len())
	assert.Zero(t, f.editorCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SuppressedBursts))

	records := f.recorder.all()
	require.Len(t, records, DefaultMaxChanges+1)
	for _, rec := range records {
		assert.False(t, rec.Announced)
	}
	assert.Equal(t, "Alice", records[0].Editor)

	// Следующий цикл без изменений ничего не объявляет.
	f.runCycle()
	assert.Empty(t, f.sink.messages())
}

func TestCycleKeepsStateOnFetchFailure(t *testing.T) {
	f := newFixture(t, Config{}, cmd("!foo", "old", t0))
	f.svc.HandleChat(context.Background(), modMessage("Alice", "!editcom !foo new"))

	f.store.fail(errors.New("timeout"))
	f.runCycle()

	assert.Empty(t, f.sink.messages())
	assert.Equal(t, 1, f.editorCount())
	assert.Equal(t, []string{"!foo"}, f.svc.Snapshot().Names())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.FailedFetches))

	f.svc.mu.Lock()
	assert.True(t, f.svc.scheduler.Pending())
	f.svc.mu.Unlock()

	// Автор переживает неудачную выборку и попадает в анонс следующего цикла.
	f.store.set(cmd("!foo", "new", t0.Add(time.Minute)))
	f.runCycle()

	posts := f.sink.messages()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0], "by **Alice** in Twitch Chat")
}

func TestCycleContinuesAfterSinkFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.sink.failOn = map[int]error{0: errors.New("discord down")}

	f.store.set(cmd("!a", "1", t0), cmd("!b", "2", t0))
	f.runCycle()

	assert.Len(t, f.sink.messages(), 2)
	assert.Equal(t, 2, f.svc.Snapshot().Len())

	records := f.recorder.all()
	require.Len(t, records, 2)
	assert.False(t, records[0].Announced)
	assert.True(t, records[1].Announced)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Announcements.WithLabelValues("added", metrics.StatusFailed)))
}

func TestCycleSkipsIgnoredCommands(t *testing.T) {
	f := newFixture(t, Config{IgnoredCommands: []string{"!Uptime"}}, cmd("!uptime", "1", t0))

	f.svc.HandleChat(context.Background(), modMessage("Alice", "!editcom !uptime 2"))
	assert.Zero(t, f.editorCount())

	f.store.set(cmd("!uptime", "2", t0.Add(time.Minute)), cmd("!foo", "hi", t0))
	f.runCycle()

	posts := f.sink.messages()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0], "`!foo`")
	assert.Len(t, f.recorder.all(), 1)
	assert.True(t, f.svc.Snapshot().Has("!uptime"))
}

func TestHandleChatIgnoresUnprivilegedAndUnrelatedMessages(t *testing.T) {
	f := newFixture(t, Config{})

	viewer := modMessage("bob", "!addcom !foo hi")
	viewer.IsMod = false
	f.svc.HandleChat(context.Background(), viewer)
	f.svc.HandleChat(context.Background(), modMessage("Alice", "hello chat"))

	assert.Zero(t, f.editorCount())
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.ProcessedMessages))
	assert.Zero(t, testutil.ToFloat64(f.metrics.ChatEdits))

	broadcaster := modMessage("ml7support", "!commands delete !foo")
	broadcaster.IsMod = false
	broadcaster.IsBroadcaster = true
	f.svc.HandleChat(context.Background(), broadcaster)

	assert.Equal(t, 1, f.editorCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ChatEdits))
}

func TestCycleRecoversFromPanic(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.panicOn = 2

	assert.NotPanics(t, f.runCycle)

	f.svc.mu.Lock()
	assert.True(t, f.svc.scheduler.Pending())
	f.svc.mu.Unlock()

	f.store.set(cmd("!foo", "hi", t0))
	f.runCycle()
	assert.Len(t, f.sink.messages(), 1)
}

func TestCycleCommitsWhenAnnouncementPanics(t *testing.T) {
	f := newFixture(t, Config{})
	f.sink.panicOn = map[int]bool{1: true}
	f.svc.HandleChat(context.Background(), modMessage("Alice", "!addcom !a 1"))

	f.store.set(cmd("!a", "1", t0), cmd("!b", "2", t0), cmd("!c", "3", t0))
	assert.NotPanics(t, f.runCycle)

	require.Len(t, f.sink.messages(), 2)
	assert.Equal(t, []string{"!a", "!b", "!c"}, f.svc.Snapshot().Names())
	assert.Zero(t, f.editorCount())
	assert.Len(t, f.recorder.all(), 1)

	// Уже объявленные изменения не повторяются.
	f.runCycle()
	assert.Len(t, f.sink.messages(), 2)
	assert.Len(t, f.recorder.all(), 1)

	f.svc.mu.Lock()
	assert.True(t, f.svc.scheduler.Pending())
	f.svc.mu.Unlock()
}

func TestNewFillsDefaults(t *testing.T) {
	svc := New(Config{Channel: "ml7support"}, Deps{Store: &fakeStore{}, Sink: &recordingSink{}})

	assert.Equal(t, DefaultMaxChanges, svc.cfg.MaxChanges)
	assert.Equal(t, 10*time.Second, svc.cfg.FetchTimeout)
	assert.Equal(t, 10*time.Second, svc.cfg.PostTimeout)
}

func TestChatEditsDebounceIntoSingleFetch(t *testing.T) {
	f := newFixture(t, Config{EditDebounce: 50 * time.Millisecond})
	require.Equal(t, 1, f.store.fetchCount())

	f.svc.HandleChat(context.Background(), modMessage("Alice", "!addcom !foo hi"))
	time.Sleep(20 * time.Millisecond)
	f.svc.HandleChat(context.Background(), modMessage("Bob", "!addcom !bar hi"))
	f.store.set(cmd("!foo", "hi", t0), cmd("!bar", "hi", t0))

	require.Eventually(t, func() bool {
		return len(f.sink.messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, f.store.fetchCount())

	posts := f.sink.messages()
	assert.Contains(t, posts[0], "by **Alice** in Twitch Chat")
	assert.Contains(t, posts[1], "by **Bob** in Twitch Chat")
}

func TestStopCancelsPendingCycle(t *testing.T) {
	f := newFixture(t, Config{UpdateInterval: 30 * time.Millisecond})
	f.svc.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.store.fetchCount())
}
