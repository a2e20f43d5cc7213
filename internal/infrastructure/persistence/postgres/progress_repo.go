package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// ProgressRepository implements progress.Repository on PostgreSQL. Each
// Update locks the member row (or the guild's advisory lock for a new
// member) so concurrent processes serialize on the same key.
type ProgressRepository struct {
	conn   *Connection
	logger *logger.Logger
}

var _ progress.Repository = (*ProgressRepository)(nil)

// NewProgressRepository creates a new PostgreSQL progress repository.
func NewProgressRepository(conn *Connection, log *logger.Logger) *ProgressRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressRepository{conn: conn, logger: log.With(logger.Component("postgres_progress"))}
}

// Get implements progress.Reader.
func (r *ProgressRepository) Get(ctx context.Context, guild shared.GuildID, user shared.UserID) (progress.Record, error) {
	rec, err := selectRecord(ctx, r.conn.Pool(), guild, user, false)
	if err != nil {
		return progress.Record{}, progress.StorageError("Get", err)
	}
	return rec, nil
}

// AllForGuild implements progress.Reader.
func (r *ProgressRepository) AllForGuild(ctx context.Context, guild shared.GuildID) ([]progress.Standing, error) {
	rows, err := r.conn.Pool().Query(ctx,
		`SELECT user_id, exp FROM member_progress WHERE guild_id = $1 ORDER BY seq`, string(guild))
	if err != nil {
		return nil, progress.StorageError("AllForGuild", err)
	}
	defer rows.Close()

	out := []progress.Standing{}
	for rows.Next() {
		var (
			user string
			exp  int64
		)
		if err := rows.Scan(&user, &exp); err != nil {
			return nil, progress.StorageError("AllForGuild", fmt.Errorf("scan: %w", err))
		}
		out = append(out, progress.Standing{UserID: shared.UserID(user), Record: progress.Record{Exp: exp}.Normalize()})
	}
	if err := rows.Err(); err != nil {
		return nil, progress.StorageError("AllForGuild", err)
	}
	return out, nil
}

// Update implements progress.Repository.
func (r *ProgressRepository) Update(ctx context.Context, guild shared.GuildID, user shared.UserID, fn progress.UpdateFunc) (progress.Record, error) {
	var (
		next   progress.Record
		userFn error
	)
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		// Serializes first inserts of the same member; existing rows are
		// additionally held by FOR UPDATE below.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(guild)+"/"+string(user)); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}

		current, err := selectRecord(ctx, tx, guild, user, true)
		if err != nil {
			return err
		}

		next, err = fn(current)
		if err != nil {
			userFn = err
			return err
		}
		next = next.Normalize()

		_, err = tx.Exec(ctx, `
			INSERT INTO member_progress (guild_id, user_id, exp, level)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (guild_id, user_id) DO UPDATE
			SET exp = EXCLUDED.exp, level = EXCLUDED.level, updated_at = NOW()`,
			string(guild), string(user), next.Exp, next.Level)
		if err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		return nil
	})
	if userFn != nil {
		return progress.Record{}, userFn
	}
	if err != nil {
		r.logger.Error("progress update failed", logger.GuildID(guild.String()), logger.UserID(user.String()), logger.Err(err))
		return progress.Record{}, progress.StorageError("Update", err)
	}
	return next, nil
}

// Snapshot implements progress.Repository.
func (r *ProgressRepository) Snapshot(ctx context.Context) (*progress.Ledger, error) {
	rows, err := r.conn.Pool().Query(ctx, `SELECT guild_id, user_id, exp FROM member_progress ORDER BY seq`)
	if err != nil {
		return nil, progress.StorageError("Snapshot", err)
	}
	defer rows.Close()

	ledger := progress.NewLedger()
	for rows.Next() {
		var (
			guild, user string
			exp         int64
		)
		if err := rows.Scan(&guild, &user, &exp); err != nil {
			return nil, progress.StorageError("Snapshot", fmt.Errorf("scan: %w", err))
		}
		ledger.Set(shared.GuildID(guild), shared.UserID(user), progress.Record{Exp: exp}.Normalize())
	}
	if err := rows.Err(); err != nil {
		return nil, progress.StorageError("Snapshot", err)
	}
	return ledger, nil
}

// Close closes the underlying pool.
func (r *ProgressRepository) Close() error {
	return r.conn.Close()
}

func selectRecord(ctx context.Context, q Querier, guild shared.GuildID, user shared.UserID, forUpdate bool) (progress.Record, error) {
	query := `SELECT exp FROM member_progress WHERE guild_id = $1 AND user_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var exp int64
	err := q.QueryRow(ctx, query, string(guild), string(user)).Scan(&exp)
	if IsNoRows(err) {
		return progress.NewRecord(), nil
	}
	if err != nil {
		return progress.Record{}, fmt.Errorf("select progress: %w", err)
	}
	return progress.Record{Exp: exp}.Normalize(), nil
}
