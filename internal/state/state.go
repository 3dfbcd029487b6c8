// Package state persists per-book reading state: the last location,
// bookmarks, highlights, the saved package structure and generated indices.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yuanying/epubview/internal/cfi"
	"github.com/yuanying/epubview/internal/pagination"
)

const (
	stateFileName = "state.json"
	hashBytes     = 8192 // First 8KB for content hash
)

// Location is a reading position. Location holds the CFI without its
// epubcfi( ) wrapper.
type Location struct {
	Location    string `json:"location"`
	Href        string `json:"href"`
	ChapterName string `json:"chapterName,omitempty"`
}

// NewLocation returns the Location for CFI c in the chapter at href.
func NewLocation(c, href, chapterName string) Location {
	return Location{Location: cfi.Unwrap(c), Href: href, ChapterName: chapterName}
}

// CFI returns the wrapped CFI of l.
func (l Location) CFI() string {
	if l.Location == "" {
		return ""
	}
	return "epubcfi(" + l.Location + ")"
}

// Highlight is a colored range CFI.
type Highlight struct {
	CFIRange string   `json:"cfiRange"`
	Color    string   `json:"color"`
	GUID     string   `json:"guid"`
	Location Location `json:"location"`
}

// Book is everything stored for one book key.
type Book struct {
	LastLocation *Location        `json:"lastLocation,omitempty"`
	Bookmarks    []Location        `json:"bookmarks,omitempty"`
	Highlights   []Highlight       `json:"highlights,omitempty"`
	Contents     json.RawMessage   `json:"contents,omitempty"`
	PageList     []pagination.Item `json:"pageList,omitempty"`
	Locations    []string          `json:"locations,omitempty"`
}

// Store manages persistent reading state. A Store with an empty path keeps
// everything in memory.
type Store struct {
	path string
	log  *zap.Logger
	data map[string]*Book
	mu   sync.RWMutex
}

// DefaultPath returns XDG_STATE_HOME/epubview/state.json or
// ~/.local/state/epubview/state.json.
func DefaultPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "epubview", stateFileName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "epubview", stateFileName)
}

// Open creates or loads the state file at path. An unreadable file is
// logged and replaced by empty state on the next save.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{path: path, log: log, data: make(map[string]*Book)}
	if path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := s.load(); err != nil {
		// Non-fatal - start with empty state
		log.Warn("Ignoring unreadable state file", zap.String("path", path), zap.Error(err))
		s.data = make(map[string]*Book)
	}
	return s, nil
}

// NewMemory returns a Store that is never written to disk.
func NewMemory() *Store {
	s, _ := Open("", nil)
	return s
}

// ComputeHash generates a content hash for file identity.
func ComputeHash(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, hashBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}

	hash := sha256.Sum256(buf[:n])
	return hex.EncodeToString(hash[:16]), nil
}

// Path returns the state file path, or "" for an in-memory store.
func (s *Store) Path() string { return s.path }

// book must be called with mu held for writing.
func (s *Store) book(key string) *Book {
	b, ok := s.data[key]
	if !ok {
		b = &Book{}
		s.data[key] = b
	}
	return b
}

func (s *Store) update(key string, fn func(*Book) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !fn(s.book(key)) {
		return false, nil
	}
	return true, s.save()
}

// Book returns a copy of the state stored for key.
func (s *Store) Book(key string) (Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[key]
	if !ok {
		return Book{}, false
	}
	out := *b
	out.Bookmarks = slices.Clone(b.Bookmarks)
	out.Highlights = slices.Clone(b.Highlights)
	out.PageList = slices.Clone(b.PageList)
	out.Locations = slices.Clone(b.Locations)
	return out, true
}

// LastLocation returns the saved reading position for key.
func (s *Store) LastLocation(key string) (Location, bool) {
	b, ok := s.Book(key)
	if !ok || b.LastLocation == nil {
		return Location{}, false
	}
	return *b.LastLocation, true
}

// SetLastLocation saves the reading position for key.
func (s *Store) SetLastLocation(key string, loc Location) error {
	_, err := s.update(key, func(b *Book) bool {
		b.LastLocation = &loc
		return true
	})
	return err
}

// Bookmarks lists the bookmarks of key in the order they were added.
func (s *Store) Bookmarks(key string) []Location {
	b, _ := s.Book(key)
	return b.Bookmarks
}

// AddBookmark adds loc unless a bookmark at the same location exists. It
// reports whether loc was added.
func (s *Store) AddBookmark(key string, loc Location) (bool, error) {
	return s.update(key, func(b *Book) bool {
		for _, bm := range b.Bookmarks {
			if bm.Location == loc.Location {
				return false
			}
		}
		b.Bookmarks = append(b.Bookmarks, loc)
		return true
	})
}

// RemoveBookmark removes the bookmark at location, which may be wrapped or
// not. It reports whether one was removed.
func (s *Store) RemoveBookmark(key, location string) (bool, error) {
	location = cfi.Unwrap(location)
	return s.update(key, func(b *Book) bool {
		n := len(b.Bookmarks)
		b.Bookmarks = slices.DeleteFunc(b.Bookmarks, func(bm Location) bool {
			return bm.Location == location
		})
		return len(b.Bookmarks) != n
	})
}

// Highlights lists the highlights of key.
func (s *Store) Highlights(key string) []Highlight {
	b, _ := s.Book(key)
	return b.Highlights
}

// AddHighlight stores h, assigning a guid when it has none, and returns the
// stored record.
func (s *Store) AddHighlight(key string, h Highlight) (Highlight, error) {
	if !strings.HasPrefix(h.CFIRange, "epubcfi(") {
		return Highlight{}, fmt.Errorf("invalid highlight range %q", h.CFIRange)
	}
	if h.GUID == "" {
		h.GUID = uuid.NewString()
	}
	_, err := s.update(key, func(b *Book) bool {
		b.Highlights = append(b.Highlights, h)
		return true
	})
	return h, err
}

// RemoveHighlight removes the highlight with guid and reports whether it
// existed.
func (s *Store) RemoveHighlight(key, guid string) (bool, error) {
	return s.update(key, func(b *Book) bool {
		n := len(b.Highlights)
		b.Highlights = slices.DeleteFunc(b.Highlights, func(h Highlight) bool {
			return h.GUID == guid
		})
		return len(b.Highlights) != n
	})
}

// SaveContents stores v as the package structure of key.
func (s *Store) SaveContents(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode contents: %w", err)
	}
	_, err = s.update(key, func(b *Book) bool {
		b.Contents = data
		return true
	})
	return err
}

// Contents decodes the saved package structure of key into v. It reports
// false when nothing was saved.
func (s *Store) Contents(key string, v any) (bool, error) {
	b, ok := s.Book(key)
	if !ok || len(b.Contents) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(b.Contents, v); err != nil {
		return false, fmt.Errorf("failed to decode contents: %w", err)
	}
	return true, nil
}

// RemoveContents drops the saved package structure of key.
func (s *Store) RemoveContents(key string) error {
	_, err := s.update(key, func(b *Book) bool {
		if b.Contents == nil {
			return false
		}
		b.Contents = nil
		return true
	})
	return err
}

// SavePageList caches a generated page list for key.
func (s *Store) SavePageList(key string, items []pagination.Item) error {
	_, err := s.update(key, func(b *Book) bool {
		b.PageList = slices.Clone(items)
		return true
	})
	return err
}

// PageList returns the cached page list of key.
func (s *Store) PageList(key string) []pagination.Item {
	b, _ := s.Book(key)
	return b.PageList
}

// SaveLocations caches generated locations for key.
func (s *Store) SaveLocations(key string, locs []string) error {
	_, err := s.update(key, func(b *Book) bool {
		b.Locations = slices.Clone(locs)
		return true
	})
	return err
}

// Locations returns the cached locations of key.
func (s *Store) Locations(key string) []string {
	b, _ := s.Book(key)
	return b.Locations
}

// Clear removes everything stored for key.
func (s *Store) Clear(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return s.save()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.data)
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}
