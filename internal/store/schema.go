package store

import (
	"database/sql"
	"fmt"
)

// EnsureSchema 以 CREATE TABLE IF NOT EXISTS 引导 schema；两种方言仅自增主键语法不同。
func EnsureSchema(db *sql.DB, dialect Dialect) error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if dialect == DialectMySQL {
		pk = "BIGINT PRIMARY KEY AUTO_INCREMENT"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users(
  id %s,
  email VARCHAR(255) NOT NULL UNIQUE,
  name VARCHAR(255) NOT NULL DEFAULT '',
  password_hash BLOB NOT NULL,
  is_admin INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  auth_token VARCHAR(128) NOT NULL DEFAULT '',
  avatar BLOB,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS invitations(
  id %s,
  email VARCHAR(255) NOT NULL UNIQUE,
  code VARCHAR(64) NOT NULL UNIQUE,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS refresh_tokens(
  id %s,
  user_id BIGINT NOT NULL,
  token_hash BLOB NOT NULL,
  expires_at TIMESTAMP NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS threads(
  id %s,
  public_id VARCHAR(36) NOT NULL UNIQUE,
  user_id BIGINT NOT NULL,
  is_ephemeral INTEGER NOT NULL DEFAULT 1,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS thread_messages(
  id %s,
  public_id VARCHAR(36) NOT NULL UNIQUE,
  thread_id BIGINT NOT NULL,
  role VARCHAR(16) NOT NULL,
  content TEXT NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pages(
  id %s,
  public_id VARCHAR(36) NOT NULL UNIQUE,
  author_id BIGINT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS page_sections(
  id %s,
  public_id VARCHAR(36) NOT NULL UNIQUE,
  page_id BIGINT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL DEFAULT '',
  position INTEGER NOT NULL DEFAULT 0,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS job_runs(
  id %s,
  job VARCHAR(64) NOT NULL,
  command TEXT NOT NULL,
  exit_code INTEGER,
  stdout TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  started_at TIMESTAMP,
  finished_at TIMESTAMP
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_events(
  id %s,
  user_id BIGINT NOT NULL,
  kind VARCHAR(32) NOT NULL,
  payload TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_groups(
  id %s,
  name VARCHAR(64) NOT NULL UNIQUE,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, pk),
		`CREATE TABLE IF NOT EXISTS user_group_memberships(
  user_group_id BIGINT NOT NULL,
  user_id BIGINT NOT NULL,
  is_group_admin INTEGER NOT NULL DEFAULT 0,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(user_group_id, user_id)
)`,
		`CREATE TABLE IF NOT EXISTS source_id_read_access(
  source_id VARCHAR(255) NOT NULL,
  user_group_id BIGINT NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(source_id, user_group_id)
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS git_repositories(
  id %s,
  name VARCHAR(255) NOT NULL UNIQUE,
  git_url VARCHAR(1024) NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, pk),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS integrations(
  id %s,
  kind VARCHAR(32) NOT NULL,
  display_name VARCHAR(255) NOT NULL,
  access_token VARCHAR(1024) NOT NULL,
  api_base VARCHAR(1024),
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, pk),
		`CREATE TABLE IF NOT EXISTS app_settings(
  k VARCHAR(64) PRIMARY KEY,
  v TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("初始化 schema 失败: %w", err)
		}
	}
	return nil
}
