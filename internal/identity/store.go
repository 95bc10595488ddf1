package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// record mirrors the persisted shape used by the web client's local storage.
type record struct {
	CurrentUserID *string `json:"currentUserId"`
	IsLoggedIn    bool    `json:"isLoggedIn"`
}

// Store persists the session identity as a single JSON record on disk.
// Load fails soft: a missing or corrupt file reads as "absent", so a broken
// record triggers a re-bootstrap instead of an error.
type Store struct {
	path   string
	logger *zap.Logger
}

func New(path string, logger *zap.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger,
	}
}

// Load returns the persisted identity, or ok=false when none is usable.
func (s *Store) Load() (userID string, ok bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("identity state unreadable, treating as absent",
				zap.String("path", s.path),
				zap.Error(err),
			)
		}
		return "", false
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("identity state corrupt, treating as absent",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return "", false
	}

	if !rec.IsLoggedIn || rec.CurrentUserID == nil || *rec.CurrentUserID == "" {
		return "", false
	}
	return *rec.CurrentUserID, true
}

// Save persists the identity with the logged-in flag set. The write is
// atomic from the reader's point of view: temp file plus rename.
func (s *Store) Save(userID string) error {
	if userID == "" {
		return errors.New("empty user id")
	}
	return s.write(record{CurrentUserID: &userID, IsLoggedIn: true})
}

// Clear resets the store to its initial absent state. The zero record is
// written out rather than deleting the file, matching Save's durability.
func (s *Store) Clear() error {
	return s.write(record{})
}

func (s *Store) write(rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal identity state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".user-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
