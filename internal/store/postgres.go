package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
)

// Postgres stores every record as a JSONB row keyed by its path. Equality
// queries use JSONB containment so they can be served by a GIN index.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Get(ctx context.Context, p string) (json.RawMessage, error) {
	if err := validatePath(p); err != nil {
		return nil, err
	}
	var data json.RawMessage
	err := s.db.QueryRow(ctx, "SELECT data FROM records WHERE path = $1", p).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("record %s", p)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	return data, nil
}

func (s *Postgres) Set(ctx context.Context, p string, value any) error {
	if err := validatePath(p); err != nil {
		return err
	}
	data, err := marshal(value)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, upsertSQL, p, Parent(p), data); err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}
	return nil
}

const upsertSQL = `INSERT INTO records (path, parent, data, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

const removeSQL = `DELETE FROM records WHERE path = $1 OR path LIKE $2`

func (s *Postgres) Remove(ctx context.Context, p string) error {
	if err := validatePath(p); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, removeSQL, p, likePrefix(p)); err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, updates map[string]any) error {
	for p := range updates {
		if err := validatePath(p); err != nil {
			return err
		}
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return applyTx(ctx, tx, updates)
	})
}

// Mutate locks the row with SELECT ... FOR UPDATE, so a concurrent delete
// either waits for the write or makes the read come back empty.
func (s *Postgres) Mutate(ctx context.Context, p string, fn MutateFunc) error {
	if err := validatePath(p); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var data json.RawMessage
		err := tx.QueryRow(ctx, "SELECT data FROM records WHERE path = $1 FOR UPDATE", p).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("record %s", p)
		}
		if err != nil {
			return fmt.Errorf("lock %s: %w", p, err)
		}
		updates, err := fn(data)
		if err != nil {
			return err
		}
		for up := range updates {
			if err := validatePath(up); err != nil {
				return err
			}
		}
		return applyTx(ctx, tx, updates)
	})
}

// inTx runs fn in a transaction and replays it when Postgres aborts it as a
// deadlock victim or on a serialization failure.
func (s *Postgres) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return retry.Do(
		func() error {
			tx, err := s.db.Begin(ctx)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("begin tx: %w", err))
			}
			defer tx.Rollback(ctx)

			if err := fn(tx); err != nil {
				if retryableTx(err) {
					return err
				}
				return retry.Unrecoverable(err)
			}
			if err := tx.Commit(ctx); err != nil {
				if retryableTx(err) {
					return err
				}
				return retry.Unrecoverable(fmt.Errorf("commit: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(txAttempts),
		retry.Delay(10*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

const txAttempts = 3

func retryableTx(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40P01" || pgErr.Code == "40001"
}

// applyTx writes paths in a fixed order, which keeps concurrent multi-path
// writes from deadlocking each other.
func applyTx(ctx context.Context, tx pgx.Tx, updates map[string]any) error {
	paths := make([]string, 0, len(updates))
	for p := range updates {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		v := updates[p]
		if v == nil {
			if _, err := tx.Exec(ctx, removeSQL, p, likePrefix(p)); err != nil {
				return fmt.Errorf("remove %s: %w", p, err)
			}
			continue
		}
		data, err := marshal(v)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertSQL, p, Parent(p), data); err != nil {
			return fmt.Errorf("set %s: %w", p, err)
		}
	}
	return nil
}

func (s *Postgres) QueryEqual(ctx context.Context, collection, field string, value any) ([]Record, error) {
	filter, err := json.Marshal(map[string]any{field: value})
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}
	return s.query(ctx,
		`SELECT path, data FROM records WHERE parent = $1 AND data @> $2::jsonb ORDER BY path`,
		collection, filter,
	)
}

func (s *Postgres) List(ctx context.Context, collection string) ([]Record, error) {
	return s.query(ctx, `SELECT path, data FROM records WHERE parent = $1 ORDER BY path`, collection)
}

func (s *Postgres) query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	if err := validatePath(args[0].(string)); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Path, &r.Data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func likePrefix(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(p) + "/%"
}
