package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate reconciles the schema on startup, the way the service has always
// been deployed: idempotent DDL, no external migration tooling.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id      text PRIMARY KEY,
		user_name    text NOT NULL,
		nick_name    text NOT NULL DEFAULT '',
		phone_number text NOT NULL,
		status       int  NOT NULL DEFAULT 0,
		created_at   timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_phone_number_idx ON users (phone_number)`,

	`CREATE TABLE IF NOT EXISTS user_profiles (
		id         text PRIMARY KEY,
		user_id    text NOT NULL,
		org_type   int,
		org_name   text NOT NULL DEFAULT '',
		technology text NOT NULL DEFAULT '',
		token_sign text NOT NULL DEFAULT '',
		latitude   double precision,
		longitude  double precision
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS user_profiles_user_id_idx ON user_profiles (user_id)`,

	`CREATE TABLE IF NOT EXISTS projects (
		id           text PRIMARY KEY,
		publisher_id text NOT NULL,
		name         text NOT NULL,
		technology   text NOT NULL DEFAULT '',
		request      text NOT NULL DEFAULT '',
		category     text NOT NULL DEFAULT '',
		push_status  int  NOT NULL DEFAULT 1,
		audit_status int  NOT NULL DEFAULT 0,
		audit_remark text NOT NULL DEFAULT '',
		created_at   timestamptz NOT NULL DEFAULT now(),
		updated_at   timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS projects_publisher_id_idx ON projects (publisher_id)`,
	`CREATE INDEX IF NOT EXISTS projects_feed_idx ON projects (push_status, audit_status, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS project_annexes (
		id          text PRIMARY KEY,
		project_id  text NOT NULL,
		name        text NOT NULL,
		path        text NOT NULL,
		thumbnail   bytea,
		access_url  text NOT NULL DEFAULT '',
		expire_time timestamptz
	)`,
	`CREATE INDEX IF NOT EXISTS project_annexes_project_id_idx ON project_annexes (project_id)`,

	// The unique index is the claim ledger's correctness anchor: two
	// racing claim attempts cannot both insert for the same pair.
	`CREATE TABLE IF NOT EXISTS project_claims (
		id         text PRIMARY KEY,
		project_id text NOT NULL,
		uid        text NOT NULL,
		status     int  NOT NULL,
		taken_at   timestamptz
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS project_claims_project_uid_idx ON project_claims (project_id, uid)`,
	`CREATE INDEX IF NOT EXISTS project_claims_uid_taken_idx ON project_claims (uid, taken_at DESC)`,

	`CREATE TABLE IF NOT EXISTS dict_entries (
		dict_code  text PRIMARY KEY,
		father_id  text,
		dict_sort  int NOT NULL DEFAULT 0,
		dict_label text NOT NULL,
		dict_value text NOT NULL,
		dict_type  text NOT NULL,
		status     text NOT NULL DEFAULT '0',
		remark     text NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS dict_entries_type_idx ON dict_entries (dict_type, dict_sort)`,
}

func Migrate(ctx context.Context, pool *sql.DB) error {
	for _, stmt := range statements {
		if _, err := pool.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
