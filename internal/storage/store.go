// Package storage is the persistence gateway: two JSON documents, rewritten
// wholesale on every flush. There is no per-request durability; the in-memory
// state is authoritative and the files are a best-effort snapshot.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/focusduo/focusduo/internal/domain"
)

const (
	usersFile   = "users.json"
	friendsFile = "friendships.json"
)

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads both documents. Missing or unreadable files are logged and
// yield empty state; the server starts either way.
func (s *Store) Load() (map[domain.AccountID]domain.User, map[domain.AccountID][]domain.AccountID) {
	users := make(map[domain.AccountID]domain.User)
	friends := make(map[domain.AccountID][]domain.AccountID)

	if err := readJSON(filepath.Join(s.dir, usersFile), &users); err != nil {
		log.Error().Err(err).Str("module", "storage").Msg("loading users")
	}
	if err := readJSON(filepath.Join(s.dir, friendsFile), &friends); err != nil {
		log.Error().Err(err).Str("module", "storage").Msg("loading friendships")
	}
	log.Info().Str("module", "storage").Int("users", len(users)).Int("friend_entries", len(friends)).Msg("state loaded")
	return users, friends
}

// Save rewrites both documents from the given snapshot.
func (s *Store) Save(users map[domain.AccountID]domain.User, friends map[domain.AccountID][]domain.AccountID) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return errors.Join(
		writeJSON(filepath.Join(s.dir, usersFile), users),
		writeJSON(filepath.Join(s.dir, friendsFile), friends),
	)
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// writeJSON writes to a temp file and renames, so a crashed flush never
// leaves a truncated document behind.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
