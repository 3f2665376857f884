package db

import (
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNoRows = errors.New("no rows found")

type DB struct {
	conn *sql.DB
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			preferred_language_code TEXT NOT NULL DEFAULT 'en',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender_id INTEGER NOT NULL,
			receiver_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			about TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_by INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id INTEGER NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			UNIQUE(group_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS group_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id INTEGER NOT NULL,
			sender_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS post_likes (
			post_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			liked_at TEXT NOT NULL,
			UNIQUE(post_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS post_comments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_follows (
			follower_id INTEGER NOT NULL,
			target_id INTEGER NOT NULL,
			UNIQUE(follower_id, target_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_group_messages_group ON group_messages(group_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_post_comments_post ON post_comments(post_id, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return db.migrate()
}

// migrate performs auto-migration for columns added after the initial schema.
func (db *DB) migrate() error {
	if !db.columnExists("users", "preferred_language_code") {
		if _, err := db.conn.Exec("ALTER TABLE users ADD COLUMN preferred_language_code TEXT NOT NULL DEFAULT 'en'"); err != nil {
			return err
		}
	}

	if !db.columnExists("posts", "image_url") {
		if _, err := db.conn.Exec("ALTER TABLE posts ADD COLUMN image_url TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
	}

	return nil
}

// columnExists checks if a column exists in a table
func (db *DB) columnExists(table, column string) bool {
	query := "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	var count int
	err := db.conn.QueryRow(query, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}
