package epub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// OfflineStore keeps book assets for reading without the original archive.
type OfflineStore interface {
	Resources
	// IsStored reports whether a book has been tokened under key.
	IsStored(key string) (bool, error)
	// Put saves assets by archive path.
	Put(assets []Asset) error
	// Token records value under key once all assets are stored.
	Token(key, value string) error
}

// Asset is one stored archive entry.
type Asset struct {
	Path string
	Data []byte
}

// DirStore is an OfflineStore backed by a directory.
type DirStore struct {
	dir string

	mu   sync.Mutex
	urls map[string]string
}

// NewDirStore returns a store rooted at dir. The directory is created on
// first Put.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir, urls: make(map[string]string)}
}

func (s *DirStore) assetPath(p string) (string, error) {
	p = normalizePath(p)
	if p == "" || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return filepath.Join(s.dir, "assets", filepath.FromSlash(p)), nil
}

func (s *DirStore) ReadFile(p string) ([]byte, error) {
	name, err := s.assetPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, normalizePath(p))
	}
	return data, err
}

func (s *DirStore) URL(p string) (string, error) {
	name, err := s.assetPath(p)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(name); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, normalizePath(p))
	}
	u := URLPrefix + uuid.NewString()
	s.mu.Lock()
	s.urls[u] = normalizePath(p)
	s.mu.Unlock()
	return u, nil
}

func (s *DirStore) RevokeURL(u string) {
	s.mu.Lock()
	delete(s.urls, u)
	s.mu.Unlock()
}

func (s *DirStore) Put(assets []Asset) error {
	for _, a := range assets {
		name, err := s.assetPath(a.Path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return fmt.Errorf("failed to create asset directory: %w", err)
		}
		if err := os.WriteFile(name, a.Data, 0o644); err != nil {
			return fmt.Errorf("failed to store %s: %w", a.Path, err)
		}
	}
	return nil
}

func (s *DirStore) tokensPath() string {
	return filepath.Join(s.dir, "tokens.json")
}

func (s *DirStore) readTokens() (map[string]string, error) {
	tokens := make(map[string]string)
	data, err := os.ReadFile(s.tokensPath())
	if errors.Is(err, fs.ErrNotExist) {
		return tokens, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode tokens: %w", err)
	}
	return tokens, nil
}

func (s *DirStore) IsStored(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.readTokens()
	if err != nil {
		return false, err
	}
	_, ok := tokens[key]
	return ok, nil
}

func (s *DirStore) Token(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.readTokens()
	if err != nil {
		return err
	}
	tokens[key] = value
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	return os.WriteFile(s.tokensPath(), data, 0o644)
}
