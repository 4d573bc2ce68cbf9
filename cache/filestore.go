package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is the on-disk envelope of a FileStore record.
type Entry struct {
	SavedAt time.Time       `json:"saved_at"`
	Body    json.RawMessage `json:"body"`
}

// FileStore keeps JSON documents in a directory, one file per name.
type FileStore struct {
	dir string
}

// NewFileStore creates dir (0o700) if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store directory required")
	}
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, dir[2:])
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) Dir() string {
	return fs.dir
}

// Read decodes the named document into v. A missing file reports found=false
// and no error.
func (fs *FileStore) Read(name string, v any) (found bool, err error) {
	data, err := os.ReadFile(fs.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	if err := json.Unmarshal(entry.Body, v); err != nil {
		return false, fmt.Errorf("decode %s body: %w", name, err)
	}
	return true, nil
}

// Write encodes v under name.
func (fs *FileStore) Write(name string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(Entry{SavedAt: time.Now().UTC(), Body: body}, "", "  ")
	if err != nil {
		return err
	}

	// Write to temporary file first, then rename (atomic operation)
	path := fs.path(name)
	tmpPath := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (fs *FileStore) path(name string) string {
	return filepath.Join(fs.dir, sanitizeName(name))
}

// sanitizeName ensures the name is safe for use as a filename
func sanitizeName(name string) string {
	unsafe := []string{"/", "\\", ":", "?", "&", "=", "#", "<", ">", "|", "*", "\""}
	result := name
	for _, char := range unsafe {
		result = strings.ReplaceAll(result, char, "_")
	}
	return result
}
