package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// URLPrefix starts every URL handed out by Archive.URL.
const URLPrefix = "blob:epubview/"

// Resources is the read side of an archive or offline store.
type Resources interface {
	// ReadFile returns the contents of the entry at p.
	ReadFile(p string) ([]byte, error)
	// URL grants a temporary URL for the entry at p.
	URL(p string) (string, error)
	// RevokeURL releases a URL returned by URL.
	RevokeURL(url string)
}

// Archive provides access to the entries of a zipped or unpacked EPUB.
type Archive struct {
	zipReader *zip.ReadCloser
	files     map[string]*zip.File
	fsys      fs.FS

	packagePath string

	mu   sync.Mutex
	urls map[string]string
}

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

var (
	ErrInvalidMimetype    = errors.New("invalid mimetype: must be 'application/epub+zip'")
	ErrMimetypeCompressed = errors.New("mimetype must not be compressed")
	ErrMimetypeNotFound   = errors.New("mimetype file not found")
	ErrContainerNotFound  = errors.New("META-INF/container.xml not found")
	ErrOPFPathNotFound    = errors.New("OPF path not found in container.xml")
	ErrNotFound           = errors.New("entry not found")
)

// Open opens the EPUB at p. A directory is read as an unpacked book and
// anything else as a zip archive.
func Open(p string) (*Archive, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}
	if info.IsDir() {
		return OpenFS(os.DirFS(p))
	}
	return OpenZip(p)
}

// OpenZip opens a zipped EPUB and validates its structure.
func OpenZip(p string) (*Archive, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}

	a := &Archive{
		zipReader: zr,
		files:     make(map[string]*zip.File),
		urls:      make(map[string]string),
	}
	for _, f := range zr.File {
		a.files[normalizePath(f.Name)] = f
	}

	if err := a.validateMimetype(); err != nil {
		zr.Close()
		return nil, err
	}
	if err := a.parseContainer(); err != nil {
		zr.Close()
		return nil, err
	}
	return a, nil
}

// OpenFS reads an unpacked EPUB. The mimetype entry is not required.
func OpenFS(fsys fs.FS) (*Archive, error) {
	a := &Archive{
		fsys: fsys,
		urls: make(map[string]string),
	}
	if err := a.parseContainer(); err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the underlying zip file and all granted URLs.
func (a *Archive) Close() error {
	a.mu.Lock()
	clear(a.urls)
	a.mu.Unlock()
	if a.zipReader != nil {
		return a.zipReader.Close()
	}
	return nil
}

// PackagePath returns the path to the package document.
func (a *Archive) PackagePath() string {
	return a.packagePath
}

// BasePath is the directory of the package document with a trailing slash,
// or "" when it sits at the root.
func (a *Archive) BasePath() string {
	dir := path.Dir(a.packagePath)
	if dir == "." {
		return ""
	}
	return dir + "/"
}

// Files lists all entry paths.
func (a *Archive) Files() []string {
	var names []string
	if a.files != nil {
		for name := range a.files {
			names = append(names, name)
		}
		return names
	}
	fs.WalkDir(a.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			names = append(names, p)
		}
		return nil
	})
	return names
}

// Exists reports whether p names an entry.
func (a *Archive) Exists(p string) bool {
	p = normalizePath(p)
	if a.files != nil {
		_, ok := a.files[p]
		return ok
	}
	_, err := fs.Stat(a.fsys, p)
	return err == nil
}

// ReadFile reads the contents of an entry. Missing entries wrap ErrNotFound.
func (a *Archive) ReadFile(p string) ([]byte, error) {
	p = normalizePath(p)
	if a.files == nil {
		data, err := fs.ReadFile(a.fsys, p)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return data, err
	}

	f, ok := a.files[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", p, err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// URL grants a URL standing for the entry at p until it is revoked.
func (a *Archive) URL(p string) (string, error) {
	p = normalizePath(p)
	if !a.Exists(p) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	u := URLPrefix + uuid.NewString()
	a.mu.Lock()
	a.urls[u] = p
	a.mu.Unlock()
	return u, nil
}

// Resolve returns the entry path behind a granted URL.
func (a *Archive) Resolve(u string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.urls[u]
	return p, ok
}

// RevokeURL forgets a granted URL.
func (a *Archive) RevokeURL(u string) {
	a.mu.Lock()
	delete(a.urls, u)
	a.mu.Unlock()
}

// validateMimetype checks that the mimetype file exists and is valid
func (a *Archive) validateMimetype() error {
	f, ok := a.files["mimetype"]
	if !ok {
		return ErrMimetypeNotFound
	}
	if f.Method != zip.Store {
		return ErrMimetypeCompressed
	}

	content, err := a.ReadFile("mimetype")
	if err != nil {
		return fmt.Errorf("failed to read mimetype: %w", err)
	}
	if strings.TrimSpace(string(content)) != "application/epub+zip" {
		return ErrInvalidMimetype
	}
	return nil
}

// parseContainer parses container.xml to find the package document
func (a *Archive) parseContainer() error {
	content, err := a.ReadFile("META-INF/container.xml")
	if err != nil {
		return ErrContainerNotFound
	}

	var c container
	if err := xml.Unmarshal(content, &c); err != nil {
		return fmt.Errorf("failed to parse container.xml: %w", err)
	}

	for _, rf := range c.Rootfiles.Rootfile {
		if rf.MediaType == "application/oebps-package+xml" || rf.MediaType == "" {
			a.packagePath = normalizePath(rf.FullPath)
			return nil
		}
	}
	if len(c.Rootfiles.Rootfile) > 0 {
		a.packagePath = normalizePath(c.Rootfiles.Rootfile[0].FullPath)
		return nil
	}
	return ErrOPFPathNotFound
}

// normalizePath turns an entry reference into an archive path: no leading
// "/" or "./", no fragment, dot segments resolved.
func normalizePath(p string) string {
	p, _ = splitFragment(p)
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return ""
	}
	return path.Clean(p)
}
