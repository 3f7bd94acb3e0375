package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"command-changelog/model"
)

// Querier — часть pgxpool.Pool, нужная для чтения истории.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RecentChanges читает последние записи истории канала с учётом заданного таймаута.
func RecentChanges(ctx context.Context, q Querier, channel string, limit int, timeout time.Duration) ([]model.ChangeRecord, error) {
	dbCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := q.Query(dbCtx, `
select id, channel, kind, command, coalesce(editor, ''), announced, old_command, new_command, detected_at
from command_changes
where channel = $1
order by detected_at desc, id desc
limit $2;
`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent changes: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ChangeRecord, error) {
		var (
			rec                model.ChangeRecord
			prevJSON, nextJSON []byte
		)
		if err := row.Scan(&rec.ID, &rec.Channel, &rec.Kind, &rec.Command, &rec.Editor, &rec.Announced, &prevJSON, &nextJSON, &rec.DetectedAt); err != nil {
			return model.ChangeRecord{}, err
		}
		var err error
		if rec.Old, err = decodeCommand(prevJSON); err != nil {
			return model.ChangeRecord{}, err
		}
		if rec.New, err = decodeCommand(nextJSON); err != nil {
			return model.ChangeRecord{}, err
		}
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan recent changes: %w", err)
	}

	return records, nil
}

func decodeCommand(data []byte) (*model.Command, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var c model.Command
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode command json: %w", err)
	}
	return &c, nil
}

// History читает историю одного канала.
type History struct {
	q       Querier
	channel string
	timeout time.Duration
}

// NewHistory создаёт читатель истории канала channel.
func NewHistory(q Querier, channel string, timeout time.Duration) *History {
	return &History{q: q, channel: channel, timeout: timeout}
}

// Recent возвращает не больше limit последних записей, новые первыми.
func (h *History) Recent(ctx context.Context, limit int) ([]model.ChangeRecord, error) {
	return RecentChanges(ctx, h.q, h.channel, limit, h.timeout)
}
