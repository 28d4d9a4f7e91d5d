// Package userdata stores one JSON document per user on local disk.
package userdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/satindergrewal/tempo/internal/settings"
)

// ErrInvalidUser is returned for user ids that cannot name a file.
var ErrInvalidUser = errors.New("invalid user id")

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Data is everything kept for a user.
type Data struct {
	// FirstPageLoad is when the user first opened the app (RFC 3339), or nil.
	FirstPageLoad         *string           `json:"firstPageLoad"`
	AudioPlaybackSettings settings.Settings `json:"audioPlaybackSettings"`
	Library               []AudioFile       `json:"library"`
}

// Default returns the document of a user with no stored data.
func Default() Data {
	return Data{AudioPlaybackSettings: settings.Defaults(), Library: []AudioFile{}}
}

// Store reads and writes <dir>/<userID>.json.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store rooted at dir. The directory is created on the
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// ValidID reports whether userID can be stored.
func ValidID(userID string) bool {
	return validID.MatchString(userID)
}

func (s *Store) path(userID string) (string, error) {
	if !ValidID(userID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUser, userID)
	}
	return filepath.Join(s.dir, userID+".json"), nil
}

// Get returns the user's document. A missing file yields Default; an
// unreadable or corrupt one is logged and also yields Default.
func (s *Store) Get(userID string) (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(userID)
}

func (s *Store) get(userID string) (Data, error) {
	p, err := s.path(userID)
	if err != nil {
		return Data{}, err
	}

	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		log.Printf("Error reading user data for %s: %v", userID, err)
		return Default(), nil
	}

	d := Default()
	if err := json.Unmarshal(raw, &d); err != nil {
		log.Printf("Corrupt user data for %s, using defaults: %v", userID, err)
		return Default(), nil
	}
	if err := d.AudioPlaybackSettings.Validate(); err != nil {
		log.Printf("Stored settings for %s rejected, using defaults: %v", userID, err)
		d.AudioPlaybackSettings = settings.Defaults()
	}
	if d.Library == nil {
		d.Library = []AudioFile{}
	}
	return d, nil
}

// Update applies fn to the user's document and writes the result.
func (s *Store) Update(userID string, fn func(*Data) error) (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.get(userID)
	if err != nil {
		return Data{}, err
	}
	if err := fn(&d); err != nil {
		return Data{}, err
	}
	if err := d.AudioPlaybackSettings.Validate(); err != nil {
		return Data{}, err
	}
	if err := s.write(userID, d); err != nil {
		return Data{}, err
	}
	return d, nil
}

// write replaces the document atomically through a temp file.
func (s *Store) write(userID string, d Data) error {
	p, err := s.path(userID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode user data: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, userID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write user data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close user data: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("replace user data: %w", err)
	}
	return nil
}

// MarkFirstLoad records now as the first page load unless one is set.
func (s *Store) MarkFirstLoad(userID string, now time.Time) (Data, error) {
	d, err := s.Get(userID)
	if err != nil || d.FirstPageLoad != nil {
		return d, err
	}
	return s.Update(userID, func(d *Data) error {
		if d.FirstPageLoad == nil {
			ts := now.UTC().Format(time.RFC3339)
			d.FirstPageLoad = &ts
		}
		return nil
	})
}

// SettingsStore adapts the store to settings.Store for one user.
func (s *Store) SettingsStore(userID string) settings.Store {
	return settingsStore{s: s, userID: userID}
}

type settingsStore struct {
	s      *Store
	userID string
}

func (ss settingsStore) Load(ctx context.Context) (settings.Settings, error) {
	if err := ctx.Err(); err != nil {
		return settings.Settings{}, err
	}
	d, err := ss.s.Get(ss.userID)
	if err != nil {
		return settings.Settings{}, err
	}
	return d.AudioPlaybackSettings, nil
}

func (ss settingsStore) Save(ctx context.Context, v settings.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := ss.s.Update(ss.userID, func(d *Data) error {
		d.AudioPlaybackSettings = v
		return nil
	})
	return err
}
