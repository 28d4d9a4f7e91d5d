package userdata

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrFileNotFound is returned for ids missing from a user's library.
	ErrFileNotFound = errors.New("file not found")
	// ErrFileExists is returned when a stored file would be overwritten.
	ErrFileExists = errors.New("file already exists")
	// ErrInvalidName is returned for empty display names.
	ErrInvalidName = errors.New("invalid file name")
)

// AudioFile is one upload in a user's library.
type AudioFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	OriginalName string `json:"originalName"`
	UploadedAt   string `json:"uploadedAt"`
	Size         int64  `json:"size"`
}

// Files keeps uploaded file contents at <dir>/<key>.
type Files struct {
	dir string
}

// NewFiles creates a file store rooted at dir.
func NewFiles(dir string) *Files {
	return &Files{dir: dir}
}

func (f *Files) path(key string) (string, error) {
	if !ValidID(key) {
		return "", fmt.Errorf("%w: key %q", ErrFileNotFound, key)
	}
	return filepath.Join(f.dir, key), nil
}

// Put stores raw under key. An existing file is never replaced.
func (f *Files) Put(key string, raw []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create files dir: %w", err)
	}

	out, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", ErrFileExists, key)
	}
	if err != nil {
		return fmt.Errorf("create file %s: %w", key, err)
	}
	if _, err := out.Write(raw); err != nil {
		out.Close()
		os.Remove(p)
		return fmt.Errorf("write file %s: %w", key, err)
	}
	return out.Close()
}

// Read returns the contents stored under key.
func (f *Files) Read(key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
	}
	return raw, err
}

// Delete removes the file stored under key.
func (f *Files) Delete(key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrFileNotFound, key)
	}
	return err
}

// Library manages the uploads listed in each user's document.
type Library struct {
	store *Store
	files *Files
	clock clockwork.Clock
}

// NewLibrary creates a library listing files in store and keeping their
// contents in files.
func NewLibrary(store *Store, files *Files, clk clockwork.Clock) *Library {
	return &Library{store: store, files: files, clock: clk}
}

// Add stores raw under a fresh id and appends it to the user's library.
// The display name is the original file name without its extension.
func (l *Library) Add(userID, originalName string, raw []byte) (AudioFile, Data, error) {
	if !ValidID(userID) {
		return AudioFile{}, Data{}, fmt.Errorf("%w: %q", ErrInvalidUser, userID)
	}
	base := filepath.Base(originalName)
	if base == "." || base == string(filepath.Separator) {
		base = "untitled"
	}
	f := AudioFile{
		ID:           uuid.NewString(),
		Name:         strings.TrimSuffix(base, filepath.Ext(base)),
		OriginalName: base,
		UploadedAt:   l.clock.Now().UTC().Format(time.RFC3339),
		Size:         int64(len(raw)),
	}
	if f.Name == "" {
		f.Name = base
	}

	if err := l.files.Put(f.ID, raw); err != nil {
		return AudioFile{}, Data{}, err
	}
	d, err := l.store.Update(userID, func(d *Data) error {
		d.Library = append(d.Library, f)
		return nil
	})
	if err != nil {
		l.files.Delete(f.ID)
		return AudioFile{}, Data{}, err
	}
	log.Printf("Stored %s for %s as %s (%d bytes)", base, userID, f.ID, f.Size)
	return f, d, nil
}

// Rename changes the display name of one library entry.
func (l *Library) Rename(userID, fileID, name string) (Data, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Data{}, ErrInvalidName
	}
	return l.store.Update(userID, func(d *Data) error {
		i := index(d.Library, fileID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
		}
		d.Library[i].Name = name
		return nil
	})
}

// Delete drops an entry from the user's library and removes its contents.
func (l *Library) Delete(userID, fileID string) (Data, error) {
	d, err := l.store.Update(userID, func(d *Data) error {
		i := index(d.Library, fileID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
		}
		d.Library = slices.Delete(d.Library, i, i+1)
		return nil
	})
	if err != nil {
		return Data{}, err
	}
	if err := l.files.Delete(fileID); err != nil {
		log.Printf("Error removing file %s for %s: %v", fileID, userID, err)
	}
	return d, nil
}

// Open returns a library entry and its contents.
func (l *Library) Open(userID, fileID string) (AudioFile, []byte, error) {
	d, err := l.store.Get(userID)
	if err != nil {
		return AudioFile{}, nil, err
	}
	i := index(d.Library, fileID)
	if i < 0 {
		return AudioFile{}, nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	raw, err := l.files.Read(fileID)
	if err != nil {
		return AudioFile{}, nil, err
	}
	return d.Library[i], raw, nil
}

func index(lib []AudioFile, id string) int {
	return slices.IndexFunc(lib, func(f AudioFile) bool { return f.ID == id })
}
