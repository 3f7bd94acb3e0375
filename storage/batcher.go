package storage

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"command-changelog/model"
)

// BatchConfig задаёт параметры батчинга для записи истории изменений.
type BatchConfig struct {
	MaxBatch     int
	FlushEvery   time.Duration
	ChanBuffer   int
	FlushTimeout time.Duration
}

// Batcher асинхронно записывает историю изменений через pgx.Batch.
type Batcher struct {
	input   chan model.ChangeRecord
	config  BatchConfig
	sender  batchSender
	logger  *zap.Logger
	dropped atomic.Uint64
	done    chan struct{}
	onDrop  func()
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const insertChangeQuery = `
insert into command_changes (
  id, channel, kind, command, editor, announced, old_command, new_command, detected_at
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
on conflict (id) do nothing;`

// NewBatcher создаёт батчер и запускает фоновые флаши. onDrop вызывается на каждую
// отброшенную запись и может быть nil.
func NewBatcher(ctx context.Context, pool *pgxpool.Pool, cfg BatchConfig, logger *zap.Logger, onDrop func()) *Batcher {
	return newBatcher(ctx, pool, cfg, logger, onDrop)
}

// Enqueue пытается добавить запись в очередь; при переполнении возвращает false.
func (b *Batcher) Enqueue(rec model.ChangeRecord) bool {
	select {
	case b.input <- rec:
		return true
	default:
		dropped := b.dropped.Add(1)
		if b.onDrop != nil {
			b.onDrop()
		}
		b.logger.Warn("Change history queue full, dropping record",
			zap.String("command", rec.Command),
			zap.Uint64("dropped_total", dropped))
		return false
	}
}

// Dropped возвращает число записей, отброшенных из-за переполнения.
func (b *Batcher) Dropped() uint64 {
	return b.dropped.Load()
}

// Done закрывается после финального флаша при отмене контекста.
func (b *Batcher) Done() <-chan struct{} {
	return b.done
}

func (b *Batcher) run(ctx context.Context) {
	defer close(b.done)

	flushTicker := time.NewTicker(b.config.FlushEvery)
	defer flushTicker.Stop()

	var (
		batch         = &pgx.Batch{}
		pending       = 0
		totalInserted uint64
	)

	flush := func() {
		if pending == 0 {
			return
		}

		dbCtx, cancel := context.WithTimeout(context.Background(), b.config.FlushTimeout)
		defer cancel()

		br := b.sender.SendBatch(dbCtx, batch)
		if err := br.Close(); err != nil {
			b.logger.Error("Change history flush failed", zap.Int("records", pending), zap.Error(err))
		} else {
			totalInserted += uint64(pending)
		}

		batch = &pgx.Batch{}
		pending = 0
	}

	for {
		select {
		case <-ctx.Done():
			// Дочитываем то, что уже в очереди.
		drain:
			for {
				select {
				case rec := <-b.input:
					queueRecord(batch, rec)
					pending++
				default:
					break drain
				}
			}
			flush()
			b.logger.Info("Change history writer stopped", zap.Uint64("inserted_total", totalInserted))
			return
		case <-flushTicker.C:
			flush()
		case rec := <-b.input:
			queueRecord(batch, rec)
			pending++
			if pending >= b.config.MaxBatch {
				flush()
			}
		}
	}
}

func queueRecord(batch *pgx.Batch, rec model.ChangeRecord) {
	batch.Queue(insertChangeQuery,
		rec.ID, rec.Channel, rec.Kind, rec.Command, nullIfEmpty(rec.Editor), rec.Announced,
		commandJSON(rec.Old), commandJSON(rec.New), rec.DetectedAt.UTC(),
	)
}

func commandJSON(c *model.Command) []byte {
	if c == nil {
		return nil
	}
	data, _ := json.Marshal(c)
	return data
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newBatcher(ctx context.Context, sender batchSender, cfg BatchConfig, logger *zap.Logger, onDrop func()) *Batcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Batcher{
		input:  make(chan model.ChangeRecord, cfg.ChanBuffer),
		config: cfg,
		sender: sender,
		logger: logger.Named("history"),
		done:   make(chan struct{}),
		onDrop: onDrop,
	}

	go b.run(ctx)

	return b
}
