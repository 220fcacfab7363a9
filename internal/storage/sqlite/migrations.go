package sqlite

import "database/sql"

// schema sets up the database tables. It runs on startup and is idempotent.
// members.parent_id carries no foreign key: orphans are valid input and are
// attached to the traversal root by the tree builder.
const schema = `
CREATE TABLE IF NOT EXISTS members (
    user_id TEXT PRIMARY KEY,
    parent_id TEXT,
    personal_business REAL NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 0,
    joined_seq INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS reward_programs (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    business_threshold REAL NOT NULL DEFAULT 0,
    team_size_threshold INTEGER NOT NULL DEFAULT 0,
    direct_referrals_threshold INTEGER NOT NULL DEFAULT 0,
    duration_days INTEGER NOT NULL DEFAULT 0,
    reward_amount REAL NOT NULL DEFAULT 0,
    reward_percentage REAL NOT NULL DEFAULT 0,
    start_date INTEGER NOT NULL DEFAULT 0,
    end_date INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS user_rewards (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    reward_program_id TEXT NOT NULL,
    status TEXT NOT NULL,
    achievement_percentage REAL NOT NULL DEFAULT 0,
    required_target REAL NOT NULL DEFAULT 0,
    expires_at INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    claimed_at INTEGER,
    UNIQUE (user_id, reward_program_id),
    FOREIGN KEY (reward_program_id) REFERENCES reward_programs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS commission_levels (
    level_number INTEGER PRIMARY KEY,
    commission_percentage REAL NOT NULL,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_members_parent_id ON members(parent_id);
CREATE INDEX IF NOT EXISTS idx_user_rewards_user_id ON user_rewards(user_id);
CREATE INDEX IF NOT EXISTS idx_user_rewards_status_expires ON user_rewards(status, expires_at);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
