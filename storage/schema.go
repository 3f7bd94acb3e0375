package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer — часть pgxpool.Pool, нужная для миграции.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schema = `
create table if not exists command_changes (
  id          bigint primary key,
  channel     text not null,
  kind        text not null,
  command     text not null,
  editor      text,
  announced   boolean not null,
  old_command jsonb,
  new_command jsonb,
  detected_at timestamptz not null
);
create index if not exists command_changes_channel_detected_at_idx
  on command_changes (channel, detected_at desc);
`

// EnsureSchema создаёт таблицу истории, если её ещё нет.
func EnsureSchema(ctx context.Context, db Execer, timeout time.Duration) error {
	dbCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := db.Exec(dbCtx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
