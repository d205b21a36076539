package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

// column types follow what go-pg's CreateSchema derives from db's models
var createOracleTables = []string{
	`CREATE TABLE IF NOT EXISTS registers (
		id bigserial PRIMARY KEY,
		params jsonb,
		next_query_id bigint NOT NULL DEFAULT 1,
		treasury text,
		reward_pool text,
		rewards_distributed text,
		total_slashed text,
		queries_created bigint NOT NULL DEFAULT 0,
		queries_resolved bigint NOT NULL DEFAULT 0,
		queries_expired bigint NOT NULL DEFAULT 0,
		votes_committed bigint NOT NULL DEFAULT 0,
		votes_revealed bigint NOT NULL DEFAULT 0,
		paused boolean NOT NULL DEFAULT false,
		saved_at timestamptz
	)`,
	`CREATE TABLE IF NOT EXISTS voters (
		address text PRIMARY KEY,
		name text,
		metadata_url text,
		stake text,
		locked_stake text,
		reputation bigint NOT NULL DEFAULT 0,
		total_votes bigint NOT NULL DEFAULT 0,
		correct_votes bigint NOT NULL DEFAULT 0,
		correct_streak bigint NOT NULL DEFAULT 0,
		is_active boolean NOT NULL DEFAULT false,
		registered_at timestamptz,
		last_active timestamptz,
		pending_rewards text
	)`,
	`CREATE TABLE IF NOT EXISTS queries (
		id bigserial PRIMARY KEY,
		creator text,
		description text,
		outcomes text[],
		strategy text,
		min_votes bigint NOT NULL DEFAULT 0,
		reward_amount text,
		source_kind text,
		callback jsonb,
		fee text,
		status text,
		created_at timestamptz,
		commit_deadline timestamptz,
		reveal_window bigint NOT NULL DEFAULT 0,
		reveal_deadline timestamptz,
		commit_count bigint NOT NULL DEFAULT 0,
		reveal_count bigint NOT NULL DEFAULT 0,
		final_outcome bigint,
		aggregate_confidence bigint NOT NULL DEFAULT 0,
		resolved_at timestamptz
	)`,
	`CREATE INDEX IF NOT EXISTS queries_status_idx ON queries (status)`,
	`CREATE TABLE IF NOT EXISTS votes (
		query_id bigint NOT NULL,
		voter_id text NOT NULL,
		commit_hash text,
		revealed boolean NOT NULL DEFAULT false,
		value text,
		outcome_index bigint NOT NULL DEFAULT 0,
		salt text,
		confidence bigint NOT NULL DEFAULT 0,
		stake_locked text,
		committed_at timestamptz,
		revealed_at timestamptz,
		direct boolean NOT NULL DEFAULT false,
		PRIMARY KEY (query_id, voter_id)
	)`,
	`CREATE TABLE IF NOT EXISTS callbacks (
		query_id bigint PRIMARY KEY,
		target jsonb,
		payload jsonb,
		attempts bigint NOT NULL DEFAULT 0,
		next_retry_at timestamptz,
		backoff_exponent bigint NOT NULL DEFAULT 0,
		status text,
		last_error text,
		created_at timestamptz,
		delivered_at timestamptz
	)`,
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		for _, stmt := range createOracleTables {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		for _, table := range []string{"callbacks", "votes", "queries", "voters", "registers"} {
			if _, err := db.NewDropTable().Table(table).IfExists().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
