// Package book opens an EPUB, tracks when each part of it is ready and
// drives a Renderer through the spine.
package book

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yuanying/epubview/internal/dom"
	"github.com/yuanying/epubview/internal/epub"
	"github.com/yuanying/epubview/internal/event"
	"github.com/yuanying/epubview/internal/layout"
	"github.com/yuanying/epubview/internal/locations"
	"github.com/yuanying/epubview/internal/pagination"
	"github.com/yuanying/epubview/internal/queue"
	"github.com/yuanying/epubview/internal/render"
	"github.com/yuanying/epubview/internal/state"
)

var (
	ErrNotOpen            = errors.New("book is not open")
	ErrDeferred           = errors.New("book is not rendered; operation deferred")
	ErrPaginationCanceled = errors.New("pagination canceled")
	ErrNoCover            = errors.New("book has no cover")
)

// Facet is one independently loaded part of a book.
type Facet int

const (
	FacetManifest Facet = iota
	FacetSpine
	FacetMetadata
	FacetCover
	FacetTOC
	FacetPageList
	facetCount
)

var facetNames = [facetCount]string{"manifest", "spine", "metadata", "cover", "toc", "pageList"}

func (f Facet) String() string {
	if f < 0 || f >= facetCount {
		return "unknown"
	}
	return facetNames[f]
}

// readyFacets are the facets behind book:ready. The page-list is not one of
// them because it may only exist once pagination is generated.
var readyFacets = []Facet{FacetManifest, FacetSpine, FacetMetadata, FacetCover, FacetTOC}

type readiness struct {
	done [facetCount]chan struct{}
	once [facetCount]sync.Once
}

func newReadiness() *readiness {
	r := &readiness{}
	for i := range r.done {
		r.done[i] = make(chan struct{})
	}
	return r
}

func (r *readiness) resolve(f Facet) {
	r.once[f].Do(func() { close(r.done[f]) })
}

func (r *readiness) resolved(f Facet) bool {
	select {
	case <-r.done[f]:
		return true
	default:
		return false
	}
}

// contents is the package structure saved for restore.
type contents struct {
	Package *epub.Package   `json:"package"`
	TOC     []epub.TOCItem  `json:"toc"`
	Layout  layout.Settings `json:"layout"`
}

// complete reports whether every field needed to skip parsing was saved.
func (c contents) complete() bool {
	return c.Package != nil &&
		len(c.Package.Manifest) > 0 &&
		len(c.Package.Spine) > 0 &&
		c.Package.SpineIndexByURL != nil &&
		c.TOC != nil &&
		c.Layout.Layout != ""
}

// Book is an open EPUB. Chapter displays, moves and jumps run one at a time
// in the order they were requested.
type Book struct {
	*event.Emitter

	Pagination *pagination.Pagination
	Locations  *locations.Locations

	log   *zap.Logger
	opts  Options
	ready *readiness
	q     queue.Queue
	wg    sync.WaitGroup

	// Set by Open.
	archive *epub.Archive
	pkg     *epub.Package
	layout  layout.Settings
	key     string

	mu       sync.RWMutex
	res      epub.Resources
	toc      []epub.TOCItem
	pageList []pagination.Item
	renderer *render.Renderer
	spinePos int
	current  *epub.Chapter
	pending  []func(context.Context) error
	startCFI string
	styles   map[string]string
}

// New returns a Book that is not yet open.
func New(opts Options) *Book {
	opts = opts.withDefaults()
	b := &Book{
		Emitter:    event.NewEmitter(),
		Pagination: pagination.New(nil),
		Locations:  locations.New(opts.Logger),
		log:        opts.Logger,
		opts:       opts,
		ready:      newReadiness(),
		styles:     make(map[string]string),
	}
	for k, v := range opts.Styles {
		b.styles[k] = v
	}
	return b
}

// Open reads the book at p, a zipped EPUB or an unpacked directory. The
// manifest, spine, metadata and cover are ready when Open returns; the TOC
// and authored page-list load in the background.
func (b *Book) Open(ctx context.Context, p string) error {
	archive, err := epub.Open(p)
	if err != nil {
		return b.loadFailed(p, err)
	}
	opf, err := archive.ReadFile(archive.PackagePath())
	if err != nil {
		archive.Close()
		return b.loadFailed(p, fmt.Errorf("failed to read package document: %w", err))
	}
	b.archive = archive
	b.res = archive

	if b.opts.Restore && b.opts.Store != nil && b.restore(opf, p) {
		b.log.Debug("Restored package from state", zap.String("key", b.key))
		b.startLoading(ctx, false)
		return nil
	}

	pkg, err := epub.ParsePackage(opf, archive.BasePath())
	if err != nil {
		archive.Close()
		b.archive = nil
		return b.loadFailed(p, err)
	}
	b.unpack(pkg, p)
	b.startLoading(ctx, true)
	return nil
}

func (b *Book) loadFailed(p string, err error) error {
	b.log.Error("Could not load book", zap.String("path", p), zap.Error(err))
	b.Publish(event.BookLoadFailed, p)
	return fmt.Errorf("failed to open book: %w", err)
}

func (b *Book) unpack(pkg *epub.Package, p string) {
	b.pkg = pkg
	if b.key == "" {
		b.key = bookKey(pkg.Metadata.Identifier, p)
	}
	b.layout = layoutSettings(pkg.Metadata, b.opts.LayoutOverride)
	b.useOfflineStore()

	for _, f := range []Facet{FacetManifest, FacetSpine, FacetMetadata, FacetCover} {
		b.ready.resolve(f)
	}
}

// restore reuses saved contents for the book identified in opf. Anything
// missing from the saved form means a full unpack.
func (b *Book) restore(opf []byte, p string) bool {
	id, err := epub.PackageIdentifier(opf)
	if err != nil {
		return false
	}
	key := bookKey(id, p)
	var saved contents
	ok, err := b.opts.Store.Contents(key, &saved)
	if err != nil {
		b.log.Warn("Ignoring saved contents", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok || !saved.complete() {
		return false
	}
	b.key = key
	b.unpack(saved.Package, p)
	b.layout = saved.Layout
	b.setTOC(saved.TOC)
	return true
}

// bookKey identifies a book in the state store.
func bookKey(identifier, p string) string {
	if identifier != "" {
		return "epubview:" + identifier
	}
	if hash, err := state.ComputeHash(p); err == nil {
		return "epubview:" + hash
	}
	return "epubview:" + p
}

func (b *Book) useOfflineStore() {
	s := b.opts.OfflineStore
	if !b.opts.Offline || s == nil {
		return
	}
	stored, err := s.IsStored(b.key)
	if err != nil {
		b.log.Warn("Could not check offline store", zap.Error(err))
		return
	}
	if stored {
		b.mu.Lock()
		b.res = s
		b.mu.Unlock()
	}
}

func (b *Book) resources() epub.Resources {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.res
}

// startLoading reads the TOC (unless restored) and the page-list
// concurrently.
func (b *Book) startLoading(ctx context.Context, loadTOC bool) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		g, gctx := errgroup.WithContext(ctx)
		if loadTOC {
			g.Go(func() error {
				toc, err := b.pkg.LoadTOC(b.resources())
				if err != nil {
					b.log.Warn("Could not load table of contents", zap.Error(err))
				}
				b.setTOC(toc)
				return nil
			})
		}
		g.Go(func() error {
			return b.loadPageList(gctx)
		})
		if err := g.Wait(); err != nil {
			b.log.Warn("Could not load page list", zap.Error(err))
		}
		b.loadCachedLocations()
	}()
}

func (b *Book) loadCachedLocations() {
	if b.opts.Store == nil {
		return
	}
	locs := b.opts.Store.Locations(b.key)
	if len(locs) == 0 {
		return
	}
	data, err := json.Marshal(locs)
	if err == nil {
		_, err = b.Locations.Load(data)
	}
	if err != nil {
		b.log.Warn("Could not load cached locations", zap.Error(err))
		return
	}
	b.Publish(event.BookLocationsReady, locs)
}

func (b *Book) setTOC(toc []epub.TOCItem) {
	b.mu.Lock()
	b.toc = toc
	b.mu.Unlock()
	b.ready.resolve(FacetTOC)
	b.Publish(event.BookReady, b.pkg.Metadata)
}

// loadPageList processes the authored page-list, or a page list cached by an
// earlier GeneratePagination.
func (b *Book) loadPageList(ctx context.Context) error {
	authored, err := b.pkg.LoadPageList(b.resources())
	if err != nil {
		return err
	}
	if len(authored) == 0 {
		if b.opts.Store != nil {
			if cached := b.opts.Store.PageList(b.key); len(cached) > 0 {
				b.setPageList(cached)
			}
		}
		return nil
	}

	items, err := b.resolvePageList(ctx, authored)
	if err != nil {
		return err
	}
	b.setPageList(items)
	return nil
}

// resolvePageList gives every authored page a CFI, loading the chapter its
// href points into when the page-list did not carry one.
func (b *Book) resolvePageList(ctx context.Context, authored []epub.PageListItem) ([]pagination.Item, error) {
	loaded := make(map[int]*epub.Chapter)
	defer func() {
		for _, ch := range loaded {
			ch.Unload()
		}
	}()

	items := make([]pagination.Item, 0, len(authored))
	for _, pg := range authored {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := pagination.Item{Page: pg.Page, PageLabel: pg.Label, CFI: pg.CFI, Href: pg.Href}
		if item.CFI == "" {
			item.CFI = b.cfiFromHref(pg.Href, loaded)
		}
		items = append(items, item)
	}
	return items, nil
}

// cfiFromHref returns the CFI of the element a content href points to, or of
// the start of its chapter.
func (b *Book) cfiFromHref(href string, loaded map[int]*epub.Chapter) string {
	p, fragment, _ := strings.Cut(href, "#")
	pos, ok := b.pkg.SpineIndexByURL[p]
	if !ok {
		return ""
	}
	ch, ok := loaded[pos]
	if !ok {
		ch = epub.NewChapter(b.pkg.Spine[pos], b.resources(), b.log)
		loaded[pos] = ch
	}
	doc, err := ch.Load()
	if err != nil {
		b.log.Warn("Could not load page-list target", zap.String("href", href), zap.Error(err))
		return ""
	}
	if fragment != "" {
		if el := dom.FindByID(doc, fragment); el != nil {
			return ch.CFIFromElement(el)
		}
	}
	return ch.CFIFromElement(dom.DocumentElement(doc))
}

func (b *Book) setPageList(items []pagination.Item) {
	b.Pagination.Process(items)
	b.mu.Lock()
	b.pageList = append([]pagination.Item(nil), items...)
	b.mu.Unlock()
	b.ready.resolve(FacetPageList)
	b.Publish(event.BookPageListReady, items)
}

// Wait blocks until every facet is ready.
func (b *Book) Wait(ctx context.Context, facets ...Facet) error {
	for _, f := range facets {
		select {
		case <-b.ready.done[f]:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", f, ctx.Err())
		}
	}
	return nil
}

// Ready blocks until the manifest, spine, metadata, cover and TOC are ready.
func (b *Book) Ready(ctx context.Context) error {
	return b.Wait(ctx, readyFacets...)
}

// Key identifies the book in the state and offline stores.
func (b *Book) Key() string { return b.key }

// Package returns the parsed package, or nil before Open.
func (b *Book) Package() *epub.Package { return b.pkg }

// Metadata returns the package metadata.
func (b *Book) Metadata() epub.Metadata {
	if b.pkg == nil {
		return epub.Metadata{}
	}
	return b.pkg.Metadata
}

// Spine returns the reading order.
func (b *Book) Spine() []epub.SpineItem {
	if b.pkg == nil {
		return nil
	}
	return b.pkg.Spine
}

// Layout returns the book-level rendition settings.
func (b *Book) Layout() layout.Settings { return b.layout }

// TOC waits for and returns the table of contents.
func (b *Book) TOC(ctx context.Context) ([]epub.TOCItem, error) {
	if err := b.Wait(ctx, FacetTOC); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.toc, nil
}

// PageList returns the page list in use, authored or generated.
func (b *Book) PageList() []pagination.Item {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]pagination.Item(nil), b.pageList...)
}

// chapterName returns the label of the TOC entry for the chapter at href.
func (b *Book) chapterName(href string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var find func(items []epub.TOCItem) string
	find = func(items []epub.TOCItem) string {
		for _, item := range items {
			if p, _, _ := strings.Cut(item.Href, "#"); p == href {
				return item.Label
			}
			if label := find(item.Subitems); label != "" {
				return label
			}
		}
		return ""
	}
	return find(b.toc)
}

// spineIndex resolves a content href, as an archive path or relative to the
// package document, to a spine position.
func (b *Book) spineIndex(p string) (int, bool) {
	if pos, ok := b.pkg.SpineIndexByURL[p]; ok {
		return pos, true
	}
	pos, ok := b.pkg.SpineIndexByURL[path.Join(b.pkg.BasePath, p)]
	return pos, ok
}

// Close saves the package structure when restore is enabled, unloads the
// displayed chapter and releases the archive.
func (b *Book) Close() error {
	b.wg.Wait()
	if b.pkg != nil && b.opts.Restore && b.opts.Store != nil && b.ready.resolved(FacetTOC) {
		b.mu.RLock()
		saved := contents{Package: b.pkg, TOC: b.toc, Layout: b.layout}
		b.mu.RUnlock()
		if err := b.opts.Store.SaveContents(b.key, saved); err != nil {
			b.log.Warn("Could not save contents", zap.Error(err))
		}
	}
	b.mu.RLock()
	r := b.renderer
	b.mu.RUnlock()
	if r != nil {
		if err := r.Unload(context.Background()); err != nil {
			b.log.Warn("Could not unload chapter", zap.Error(err))
		}
	}
	if b.archive != nil {
		return b.archive.Close()
	}
	return nil
}
