// Package profile persists player progression between sessions: an SQLite
// store plus a debounced writer the room feeds fire-and-forget.
package profile

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"tankwar/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	player_id    TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	faction      TEXT NOT NULL DEFAULT '',
	crypto       INTEGER NOT NULL DEFAULT 0,
	total_crypto INTEGER NOT NULL DEFAULT 0,
	level        INTEGER NOT NULL DEFAULT 0,
	kills        INTEGER NOT NULL DEFAULT 0,
	deaths       INTEGER NOT NULL DEFAULT 0,
	badges       TEXT NOT NULL DEFAULT '[]',
	title        TEXT NOT NULL DEFAULT '',
	updated_at   INTEGER NOT NULL DEFAULT 0
);`

const upsertSQL = `
INSERT INTO profiles (player_id, name, faction, crypto, total_crypto, level, kills, deaths, badges, title, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(player_id) DO UPDATE SET
	name = excluded.name,
	faction = excluded.faction,
	crypto = excluded.crypto,
	total_crypto = excluded.total_crypto,
	level = excluded.level,
	kills = excluded.kills,
	deaths = excluded.deaths,
	badges = excluded.badges,
	title = excluded.title,
	updated_at = excluded.updated_at`

// Store wraps the profiles database. Reads come from connection goroutines
// at join time, writes from the single flush goroutine; WAL keeps them out
// of each other's way.
type Store struct {
	db *sql.DB
}

// Open opens or creates the profile database at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open profile db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create profile schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes nothing; call Writer.Stop first.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored record for a player, or nil when the player has
// never been persisted.
func (s *Store) Load(playerID string) (*game.ProfileRecord, error) {
	row := s.db.QueryRow(`SELECT name, faction, crypto, total_crypto, level, kills, deaths, badges, title, updated_at
		FROM profiles WHERE player_id = ?`, playerID)

	rec := game.ProfileRecord{PlayerID: playerID}
	var badges string
	var updated int64
	err := row.Scan(&rec.Name, &rec.Faction, &rec.Crypto, &rec.TotalCrypto,
		&rec.Level, &rec.Kills, &rec.Deaths, &badges, &rec.Title, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", playerID, err)
	}
	if badges != "" && badges != "[]" {
		// A corrupt badge list costs the badges, not the login.
		if err := json.Unmarshal([]byte(badges), &rec.Badges); err != nil {
			rec.Badges = nil
		}
	}
	rec.UpdatedAt = time.Unix(updated, 0)
	return &rec, nil
}

// Save upserts one record.
func (s *Store) Save(rec game.ProfileRecord) error {
	badges, err := json.Marshal(badgeList(rec.Badges))
	if err != nil {
		return err
	}
	_, err = s.db.Exec(upsertSQL, rec.PlayerID, rec.Name, rec.Faction, rec.Crypto,
		rec.TotalCrypto, rec.Level, rec.Kills, rec.Deaths, string(badges), rec.Title,
		rec.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save profile %s: %w", rec.PlayerID, err)
	}
	return nil
}

// SaveBatch upserts all records in one transaction.
func (s *Store) SaveBatch(recs []game.ProfileRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		badges, err := json.Marshal(badgeList(rec.Badges))
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.Exec(rec.PlayerID, rec.Name, rec.Faction, rec.Crypto,
			rec.TotalCrypto, rec.Level, rec.Kills, rec.Deaths, string(badges),
			rec.Title, rec.UpdatedAt.Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("save profile %s: %w", rec.PlayerID, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of stored profiles.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM profiles`).Scan(&n)
	return n, err
}

// WipeAll deletes every profile in batches so the table never locks for
// long. Returns the number of rows deleted.
func (s *Store) WipeAll(batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	total := 0
	for {
		res, err := s.db.Exec(
			`DELETE FROM profiles WHERE player_id IN (SELECT player_id FROM profiles LIMIT ?)`, batch)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(n)
		if int(n) < batch {
			return total, nil
		}
	}
}

func badgeList(b []string) []string {
	if b == nil {
		return []string{}
	}
	return b
}
