// Package store is the persistent backend collaborator: a SQL store with
// the remote procedures the client core calls, publishing a change-feed
// event for every committed row mutation.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/feed"
	"chatapp-client/internal/models"
)

type Store struct {
	db    *sql.DB
	bus   feed.Bus
	sugar *zap.SugaredLogger
}

func Setup(cfg *models.ConfigFile, sugar *zap.SugaredLogger, bus feed.Bus) (*Store, error) {
	var db *sql.DB
	var err error

	if cfg.SelfContained {
		fmt.Println("Connecting to database sqlite...")

		path := cfg.DbDatabase
		if path == "" {
			path = "./database.db"
		}

		db, err = sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}

		// there can be sqlite busy errors if this is not set to 1
		db.SetMaxOpenConns(1)

		err = setPragmaValues(db)
		if err != nil {
			return nil, err
		}
	} else {
		fmt.Println("Connecting to database mysql/mariadb...")

		db, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
		if err != nil {
			return nil, err
		}

		db.SetMaxOpenConns(10)
	}

	err = setupTables(db)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, bus: bus, sugar: sugar}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func setupTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			email VARCHAR(64) NOT NULL UNIQUE,
			username VARCHAR(32) NOT NULL UNIQUE,
			display_name VARCHAR(64) NOT NULL,
			avatar_url TEXT,
			password BINARY(60) NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS servers (
			id BIGINT PRIMARY KEY,
			owner_id BIGINT NOT NULL,
			name VARCHAR(64) NOT NULL,
			description TEXT,
			icon_url TEXT,
			FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS roles (
			id BIGINT PRIMARY KEY,
			server_id BIGINT NOT NULL,
			name VARCHAR(64) NOT NULL,
			color VARCHAR(16) NOT NULL DEFAULT '',
			position INT NOT NULL DEFAULT 0,
			permissions BIGINT NOT NULL DEFAULT 0,
			is_everyone BOOLEAN NOT NULL DEFAULT FALSE,
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS server_members (
			server_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			role_id BIGINT NOT NULL DEFAULT 0,
			joined_at_ms BIGINT NOT NULL,
			PRIMARY KEY (server_id, user_id),
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS channels (
			id BIGINT PRIMARY KEY,
			server_id BIGINT NOT NULL,
			name VARCHAR(32) NOT NULL,
			type VARCHAR(8) NOT NULL DEFAULT 'text',
			position INT NOT NULL DEFAULT 0,
			parent_id BIGINT NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS dm_channel_members (
			channel_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			PRIMARY KEY (channel_id, user_id),
			FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGINT PRIMARY KEY,
			channel_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			attachments TEXT,
			edited BOOLEAN NOT NULL DEFAULT FALSE,
			created_at_ms BIGINT NOT NULL,
			FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS reactions (
			message_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			emoji VARCHAR(32) NOT NULL,
			PRIMARY KEY (message_id, user_id, emoji),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS mentions (
			message_id BIGINT NOT NULL,
			mentioned_user_id BIGINT NOT NULL,
			PRIMARY KEY (message_id, mentioned_user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS invites (
			id BIGINT PRIMARY KEY,
			server_id BIGINT NOT NULL,
			code VARCHAR(16) NOT NULL UNIQUE,
			created_by BIGINT NOT NULL,
			max_uses INT NOT NULL DEFAULT 0,
			uses INT NOT NULL DEFAULT 0,
			expires_at_ms BIGINT,
			created_at_ms BIGINT NOT NULL,
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS presence (
			user_id BIGINT PRIMARY KEY,
			status VARCHAR(8) NOT NULL,
			last_seen_ms BIGINT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			type VARCHAR(16) NOT NULL,
			title VARCHAR(128) NOT NULL,
			content TEXT,
			data TEXT,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at_ms BIGINT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS server_bans (
			server_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			reason TEXT,
			created_at_ms BIGINT NOT NULL,
			PRIMARY KEY (server_id, user_id),
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS pinned_messages (
			message_id BIGINT PRIMARY KEY,
			channel_id BIGINT NOT NULL,
			pinned_by BIGINT NOT NULL,
			pinned_at_ms BIGINT NOT NULL,
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
	}

	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			return err
		}
	}
	return nil
}

// publish ships a change event after a successful commit. Feed failures
// are logged, not propagated; the write itself already happened.
func (s *Store) publish(topic string, event feed.Event) {
	if err := s.bus.Publish(topic, event); err != nil {
		s.sugar.Errorf("Failed publishing %s event to topic [%s]: %v", event.Type, topic, err)
	}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return err
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func msToTimePtr(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := msToTime(ms.Int64)
	return &t
}

func timeToMs(t time.Time) int64 {
	return t.UnixMilli()
}
