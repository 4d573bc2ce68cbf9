package favorites

import (
	"context"
	"path/filepath"

	"github.com/johnqh/heavymath-indexer-client/cache"
)

// Persistence stores the whole favorites state between runs.
type Persistence interface {
	Load(ctx context.Context) (map[string]WalletState, error)
	Save(ctx context.Context, state map[string]WalletState) error
}

// MemoryPersistence keeps nothing.
type MemoryPersistence struct{}

func (MemoryPersistence) Load(context.Context) (map[string]WalletState, error) {
	return map[string]WalletState{}, nil
}

func (MemoryPersistence) Save(context.Context, map[string]WalletState) error {
	return nil
}

// FilePersistence keeps the state in one JSON file, replaced atomically on
// every save.
type FilePersistence struct {
	store *cache.FileStore
	name  string
}

// NewFilePersistence stores state at path; a leading "~/" expands to the
// home directory.
func NewFilePersistence(path string) (*FilePersistence, error) {
	fs, err := cache.NewFileStore(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return &FilePersistence{store: fs, name: filepath.Base(path)}, nil
}

func (p *FilePersistence) Load(context.Context) (map[string]WalletState, error) {
	state := map[string]WalletState{}
	if _, err := p.store.Read(p.name, &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (p *FilePersistence) Save(_ context.Context, state map[string]WalletState) error {
	return p.store.Write(p.name, state)
}
