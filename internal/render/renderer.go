package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yuanying/epubview/internal/cfi"
	"github.com/yuanying/epubview/internal/dom"
	"github.com/yuanying/epubview/internal/epub"
	"github.com/yuanying/epubview/internal/event"
	"github.com/yuanying/epubview/internal/layout"
	"github.com/yuanying/epubview/internal/queue"
)

// DefaultMinSpreadWidth is the narrowest viewport that shows two pages.
const DefaultMinSpreadWidth = 768

// ErrNoChapter is returned by operations that need a displayed chapter.
var ErrNoChapter = errors.New("no chapter displayed")

// State is the phase of the chapter currently being handled.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateFormatting
	StateDisplaying
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateFormatting:
		return "formatting"
	case StateDisplaying:
		return "displaying"
	default:
		return "idle"
	}
}

// Options configures a Renderer.
type Options struct {
	Width  int
	Height int
	// Gap between columns; negative selects an eighth of the width.
	Gap int
	// Spreads allows two-page spreads on viewports at least MinSpreadWidth
	// wide.
	Spreads        bool
	MinSpreadWidth int
	ForceSingle    bool
	// UseMarkers resolves CFIs by inserting a marker element instead of
	// evaluating the path.
	UseMarkers bool
	Face       font.Face
	Logger     *zap.Logger
}

// Page is one entry of a chapter's page map.
type Page struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text,omitempty"`
}

// Location is the span of CFIs currently on screen.
type Location struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// HeadTag is an element appended to the head of every displayed chapter.
type HeadTag struct {
	Tag   string
	Attrs map[string]string
}

// Renderer displays one chapter at a time on a Surface and keeps its page
// map. Operations that change what is displayed run one at a time in the
// order they were requested.
type Renderer struct {
	*event.Emitter

	log     *zap.Logger
	q       queue.Queue
	surface *Surface

	beforeDisplay event.Hooks[*Renderer]

	mu             sync.RWMutex
	opts           Options
	state          State
	chapter        *epub.Chapter
	settings       layout.Settings
	direction      string
	strategy       layout.Strategy
	formatted      layout.Formatted
	spreads        bool
	pageMap        []Page
	displayedPages int
	chapterPos     int
	location       Location
	currentCFI     string

	styles   map[string]string
	classes  []string
	headTags []HeadTag

	// The body style and root class the chapter was loaded with.
	bodyStyle authoredAttr
	rootClass authoredAttr
}

type authoredAttr struct {
	val string
	set bool
}

func readAttr(n *html.Node, key string) authoredAttr {
	return authoredAttr{val: dom.Attr(n, key), set: dom.HasAttr(n, key)}
}

// merge writes the authored value followed by extra to key on n, removing
// the attribute when neither is present.
func (a authoredAttr) merge(n *html.Node, key, sep, extra string) {
	val := a.val
	switch {
	case extra == "":
	case strings.TrimSpace(val) == "":
		val = extra
	default:
		val = strings.TrimRight(strings.TrimSpace(val), ";") + sep + extra
	}
	if val == "" && !a.set {
		dom.RemoveAttr(n, key)
		return
	}
	dom.SetAttr(n, key, val)
}

// New returns a Renderer. The style, class and head tag hooks are
// registered on BeforeDisplay.
func New(opts Options) *Renderer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MinSpreadWidth == 0 {
		opts.MinSpreadWidth = DefaultMinSpreadWidth
	}
	r := &Renderer{
		Emitter:   event.NewEmitter(),
		log:       opts.Logger,
		surface:   NewSurface(opts.Face, opts.Logger),
		opts:      opts,
		direction: "ltr",
		styles:    make(map[string]string),
	}
	r.beforeDisplay.Register(applyHeadTags, false)
	r.beforeDisplay.Register(applyStyles, false)
	r.beforeDisplay.Register(applyClasses, false)
	return r
}

// BeforeDisplay returns the hooks run on the surface document before a
// chapter is formatted.
func (r *Renderer) BeforeDisplay() *event.Hooks[*Renderer] { return &r.beforeDisplay }

// Surface returns the render surface.
func (r *Renderer) Surface() *Surface { return r.surface }

// do runs fn after every earlier operation has finished.
func (r *Renderer) do(ctx context.Context, fn func() error) error {
	var err error
	if qerr := r.q.Do(ctx, func() { err = fn() }); qerr != nil {
		return qerr
	}
	return err
}

// Busy reports whether a chapter load or move is in flight.
func (r *Renderer) Busy() bool { return r.q.Busy() }

func (r *Renderer) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// State returns the current phase.
func (r *Renderer) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Chapter returns the displayed chapter or nil.
func (r *Renderer) Chapter() *epub.Chapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chapter
}

// PageMap returns a copy of the displayed chapter's page map.
func (r *Renderer) PageMap() []Page {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Page(nil), r.pageMap...)
}

// DisplayedPages is the number of viewport positions in the chapter.
func (r *Renderer) DisplayedPages() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.displayedPages
}

// ChapterPos is the displayed page within the chapter, starting at 1.
func (r *Renderer) ChapterPos() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chapterPos
}

// CurrentLocationCFI is the CFI of the start of the displayed page.
func (r *Renderer) CurrentLocationCFI() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentCFI
}

// VisibleRange is the span of CFIs on screen.
func (r *Renderer) VisibleRange() Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.location
}

// Spreads reports whether two pages are shown side by side.
func (r *Renderer) Spreads() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.spreads
}

// Layout returns the strategy in use.
func (r *Renderer) Layout() layout.Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.strategy == nil {
		return ""
	}
	return r.strategy.Method()
}

// Formatted returns the geometry of the last format.
func (r *Renderer) Formatted() layout.Formatted {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.formatted
}

// SetDirection sets the page progression direction used for the following
// chapters.
func (r *Renderer) SetDirection(dir string) {
	r.mu.Lock()
	r.direction = dir
	r.mu.Unlock()
}

// DisplayChapter loads ch, lays it out with the book settings reconciled
// against the chapter's own rendition properties and shows its first page.
// The previous chapter is unloaded only once the new one has loaded, so a
// failed load leaves the display untouched.
func (r *Renderer) DisplayChapter(ctx context.Context, ch *epub.Chapter, global layout.Settings) error {
	return r.do(ctx, func() error {
		return r.displayChapter(ctx, ch, global)
	})
}

func (r *Renderer) displayChapter(ctx context.Context, ch *epub.Chapter, global layout.Settings) error {
	defer r.setState(StateIdle)
	r.setState(StateLoading)

	content, err := ch.Render(ctx)
	if err != nil {
		return err
	}
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to load chapter %s: %w", ch.URL, err)
	}

	if prev := r.Chapter(); prev != nil && prev != ch {
		r.unload(prev)
	}

	settings := layout.Reconcile(global, ch.Properties)
	r.mu.Lock()
	r.chapter = ch
	r.settings = settings
	dir := r.direction
	r.mu.Unlock()

	r.surface.Load(doc)
	r.surface.SetDirection(dir)
	r.mu.Lock()
	r.bodyStyle = readAttr(r.surface.Body(), "style")
	r.rootClass = readAttr(dom.DocumentElement(doc), "class")
	r.mu.Unlock()
	if err := r.beforeDisplay.Trigger(ctx, r); err != nil {
		return fmt.Errorf("failed to prepare chapter %s: %w", ch.URL, err)
	}

	r.setState(StateFormatting)
	method, spreads := layout.Determine(settings, r.determineSpreads())
	if method != layout.MethodFixed && layout.IsFixedLayout(doc) {
		method, spreads = layout.MethodFixed, false
	}
	r.format(method, spreads)

	r.setState(StateDisplaying)
	r.page(1)
	r.log.Debug("Chapter displayed",
		zap.String("chapter", ch.URL),
		zap.String("layout", string(r.Layout())),
		zap.Int("pages", r.DisplayedPages()))
	r.Publish(event.RendererChapterDisplayed, ch)
	return nil
}

// format applies a strategy for method and rebuilds the page map. A fixed
// layout without viewport dimensions is displayed as reflowable.
func (r *Renderer) format(method layout.Method, spreads bool) {
	r.mu.RLock()
	width, height, gap := r.opts.Width, r.opts.Height, r.opts.Gap
	r.mu.RUnlock()

	strategy := layout.New(method)
	formatted, err := strategy.Format(r.surface, width, height, gap)
	if errors.Is(err, layout.ErrNoViewport) {
		r.log.Warn("Fixed layout chapter has no viewport, using reflowable",
			zap.String("chapter", r.Chapter().URL))
		strategy, spreads = layout.New(layout.MethodReflowable), false
		formatted, _ = strategy.Format(r.surface, width, height, gap)
	}

	r.mu.Lock()
	changed := r.spreads != spreads
	r.strategy = strategy
	r.formatted = formatted
	r.spreads = spreads
	r.mu.Unlock()
	if changed {
		r.Publish(event.RendererSpreads, spreads)
	}

	pages := r.mapPage()
	displayed := len(pages)
	if spreads {
		displayed = (len(pages) + 1) / 2
	}
	if method == layout.MethodFixed {
		displayed = strategy.CalculatePages().DisplayedPages
	}
	r.mu.Lock()
	r.pageMap = pages
	r.displayedPages = displayed
	r.mu.Unlock()
}

func (r *Renderer) determineSpreads() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := 0
	if r.opts.Spreads {
		cutoff = r.opts.MinSpreadWidth
	}
	return layout.DetermineSpreads(r.opts.Width, cutoff, r.opts.ForceSingle)
}

func (r *Renderer) unload(ch *epub.Chapter) {
	r.Publish(event.RendererChapterUnload, ch)
	ch.Unload()
	r.surface.Unload()
	r.mu.Lock()
	r.pageMap, r.displayedPages, r.chapterPos = nil, 0, 0
	r.mu.Unlock()
	r.Publish(event.RendererChapterUnloaded, ch)
}

// Unload removes the displayed chapter.
func (r *Renderer) Unload(ctx context.Context) error {
	return r.do(ctx, func() error {
		if ch := r.Chapter(); ch != nil {
			r.unload(ch)
			r.mu.Lock()
			r.chapter = nil
			r.mu.Unlock()
		}
		return nil
	})
}

// breakable reports whether a word range ends at c.
func breakable(c rune) bool {
	switch c {
	case ' ', '-', '\t', '\r', '\n', '\b', '\f', '\v':
		return true
	}
	return false
}

// wordRanges splits a text node at breakable characters.
func wordRanges(t *html.Node) []dom.Range {
	var ranges []dom.Range
	start, i := -1, 0
	for _, c := range t.Data {
		if breakable(c) {
			if start >= 0 {
				ranges = append(ranges, dom.Range{StartContainer: t, StartOffset: start, EndContainer: t, EndOffset: i})
				start = -1
			}
		} else if start < 0 {
			start = i
		}
		i++
	}
	if start >= 0 {
		ranges = append(ranges, dom.Range{StartContainer: t, StartOffset: start, EndContainer: t, EndOffset: i})
	}
	return ranges
}

// mapPage walks the laid out text word by word and records where each page
// starts and ends. The walk runs left to right whatever the document
// direction.
func (r *Renderer) mapPage() []Page {
	ch := r.Chapter()
	root := r.surface.Body()
	if ch == nil || root == nil {
		return nil
	}

	r.mu.RLock()
	width := r.formatted.ColumnWidth + r.formatted.Gap
	r.mu.RUnlock()
	offset := r.surface.offset()
	page := 1
	limit := width*page - offset

	dir := r.surface.Direction()
	if dir == "rtl" {
		r.surface.SetDirection("ltr")
		defer r.surface.SetDirection(dir)
	}

	var pages []Page
	var prev *dom.Range
	for _, node := range dom.TextNodes(root) {
		if strings.TrimSpace(node.Data) == "" {
			continue
		}
		for _, word := range wordRanges(node) {
			rect, ok := r.surface.RangeRect(word)
			if !ok || (rect.Width() == 0 && rect.Height() == 0) {
				continue
			}
			here := ch.CFIFromRange(word.Start())
			for width > 0 && rect.Right > limit {
				switch {
				case len(pages) < page:
					// nothing started this page
					pages = append(pages, Page{Start: here, End: here})
				case prev != nil:
					pages[page-1].End = ch.CFIFromRange(prev.End())
				}
				page++
				limit += width
			}
			if len(pages) < page {
				pages = append(pages, Page{Start: here})
			}
			p := &pages[page-1]
			if p.Text != "" {
				p.Text += " "
			}
			p.Text += dom.Text(word)
			w := word
			prev = &w
		}
	}

	if prev != nil {
		pages[len(pages)-1].End = ch.CFIFromRange(prev.End())
	}
	if len(pages) == 0 {
		all := dom.SelectContents(root)
		pages = append(pages, Page{
			Start: ch.CFIFromRange(all.Start()),
			End:   ch.CFIFromRange(all.End()),
		})
	}
	return pages
}

// page scrolls to displayed page n. It reports false when n is out of range.
func (r *Renderer) page(n int) bool {
	r.mu.RLock()
	displayed, pageWidth := r.displayedPages, r.formatted.PageWidth
	r.mu.RUnlock()
	if n < 1 || n > displayed {
		return false
	}

	left := pageWidth * (n - 1)
	if r.surface.Direction() == "rtl" {
		left = -left
	}
	r.surface.ScrollTo(left)

	r.mu.Lock()
	r.chapterPos = n
	r.location = r.visibleRange()
	r.currentCFI = r.location.Start
	loc := r.location
	r.mu.Unlock()

	r.Publish(event.RendererLocationChanged, loc.Start)
	r.Publish(event.RendererVisibleRange, loc)
	return true
}

// visibleRange must be called with mu held.
func (r *Renderer) visibleRange() Location {
	if len(r.pageMap) == 0 {
		return Location{}
	}
	var start, end Page
	if r.spreads {
		pg := r.chapterPos * 2
		i := min(pg-2, len(r.pageMap)-1)
		start, end = r.pageMap[i], r.pageMap[i]
		if pg-1 < len(r.pageMap) {
			end = r.pageMap[pg-1]
		}
	} else {
		i := min(r.chapterPos-1, len(r.pageMap)-1)
		start, end = r.pageMap[i], r.pageMap[i]
	}
	return Location{Start: start.Start, End: end.End}
}

// Page shows displayed page n of the chapter. It reports false, not an
// error, when n is out of range.
func (r *Renderer) Page(ctx context.Context, n int) (bool, error) {
	var ok bool
	err := r.do(ctx, func() error {
		ok = r.page(n)
		return nil
	})
	return ok, err
}

// NextPage moves forward one page. False means the chapter has ended.
func (r *Renderer) NextPage(ctx context.Context) (bool, error) {
	var ok bool
	err := r.do(ctx, func() error {
		ok = r.page(r.ChapterPos() + 1)
		return nil
	})
	return ok, err
}

// PrevPage moves back one page. False means the chapter start was reached.
func (r *Renderer) PrevPage(ctx context.Context) (bool, error) {
	var ok bool
	err := r.do(ctx, func() error {
		ok = r.page(r.ChapterPos() - 1)
		return nil
	})
	return ok, err
}

// LastPage shows the final page of the chapter.
func (r *Renderer) LastPage(ctx context.Context) (bool, error) {
	var ok bool
	err := r.do(ctx, func() error {
		ok = r.page(r.DisplayedPages())
		return nil
	})
	return ok, err
}

// PageByRect returns the displayed page holding rect.
func (r *Renderer) PageByRect(rect Rect) int {
	r.mu.RLock()
	pageWidth := r.formatted.PageWidth
	r.mu.RUnlock()
	if pageWidth <= 0 {
		return 1
	}
	left := r.surface.offset() + rect.Left
	return int(math.Floor(float64(left)/float64(pageWidth))) + 1
}

// GotoCFI shows the page holding c. It reports false when c does not
// resolve in the displayed chapter.
func (r *Renderer) GotoCFI(ctx context.Context, c string) (bool, error) {
	var ok bool
	err := r.do(ctx, func() error {
		if r.Chapter() == nil {
			return ErrNoChapter
		}
		ok = r.gotoCFI(c)
		return nil
	})
	return ok, err
}

func (r *Renderer) gotoCFI(c string) bool {
	parsed := cfi.Parse(c)
	doc := r.surface.Root()
	if !parsed.Valid() || doc == nil {
		r.log.Warn("Cannot resolve CFI", zap.String("cfi", c))
		return false
	}

	r.mu.RLock()
	useMarkers := r.opts.UseMarkers
	r.mu.RUnlock()

	var rect Rect
	var found bool
	if useMarkers {
		rect, found = r.markerRect(parsed, doc)
	} else if rng := cfi.RangeFromCFI(parsed, doc, r.log); rng != nil {
		rect, found = r.surface.RangeRect(rng.Start())
		if !found {
			rect, found = r.surface.ElementRect(rng.StartContainer)
		}
	}
	if !found {
		r.log.Warn("CFI not found in chapter", zap.String("cfi", c))
		return false
	}

	if !r.page(r.PageByRect(rect)) {
		return false
	}
	r.mu.Lock()
	r.currentCFI = c
	r.mu.Unlock()
	return true
}

// markerRect positions a marker at c, measures it and removes it again.
func (r *Renderer) markerRect(c cfi.CFI, doc *html.Node) (Rect, bool) {
	marker := cfi.AddMarker(c, doc)
	if marker == nil {
		return Rect{}, false
	}
	r.surface.Relayout()
	rect, ok := r.surface.ElementRect(marker)
	cfi.RemoveMarker(marker)
	r.surface.Relayout()
	return rect, ok
}

// Section shows the page holding the element with the given id.
func (r *Renderer) Section(ctx context.Context, fragment string) (bool, error) {
	var ok bool
	err := r.do(ctx, func() error {
		doc := r.surface.Root()
		if doc == nil {
			return ErrNoChapter
		}
		sel := goquery.NewDocumentFromNode(doc).Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			id, _ := s.Attr("id")
			return id == fragment
		})
		if sel.Length() == 0 {
			return nil
		}
		if rect, found := r.surface.ElementRect(sel.Get(0)); found {
			ok = r.page(r.PageByRect(rect))
		}
		return nil
	})
	return ok, err
}

// Reformat lays the chapter out again and returns to the location shown
// before. Page numbers change across a reformat; CFIs do not.
func (r *Renderer) Reformat(ctx context.Context) error {
	return r.do(ctx, r.reformat)
}

func (r *Renderer) reformat() error {
	if r.Chapter() == nil || r.surface.Root() == nil {
		return nil
	}
	r.mu.RLock()
	settings, current := r.settings, r.currentCFI
	method := layout.MethodReflowable
	if r.strategy != nil {
		method = r.strategy.Method()
	}
	r.mu.RUnlock()

	spreads := false
	if method != layout.MethodFixed {
		method, spreads = layout.Determine(settings, r.determineSpreads())
	}
	r.setState(StateFormatting)
	r.format(method, spreads)
	r.setState(StateIdle)

	if current == "" || !r.gotoCFI(current) {
		r.page(1)
	}
	return nil
}

// Resize changes the viewport and reformats.
func (r *Renderer) Resize(ctx context.Context, width, height int) error {
	return r.do(ctx, func() error {
		r.mu.Lock()
		r.opts.Width, r.opts.Height = width, height
		r.mu.Unlock()
		r.Publish(event.RendererResized, [2]int{width, height})
		return r.reformat()
	})
}

// SetGap changes the column gap and reformats.
func (r *Renderer) SetGap(ctx context.Context, gap int) error {
	return r.do(ctx, func() error {
		r.mu.Lock()
		r.opts.Gap = gap
		r.mu.Unlock()
		return r.reformat()
	})
}

// SetMinSpreadWidth changes the spread cutoff. The chapter is laid out
// again only if that turns spreads on or off.
func (r *Renderer) SetMinSpreadWidth(ctx context.Context, width int) error {
	return r.updateSpreads(ctx, func(o *Options) { o.MinSpreadWidth = width })
}

// ForceSingle keeps a single page per viewport regardless of width.
func (r *Renderer) ForceSingle(ctx context.Context, single bool) error {
	return r.updateSpreads(ctx, func(o *Options) { o.ForceSingle = single })
}

func (r *Renderer) updateSpreads(ctx context.Context, apply func(*Options)) error {
	return r.do(ctx, func() error {
		r.mu.Lock()
		apply(&r.opts)
		settings, current := r.settings, r.spreads
		fixed := r.strategy != nil && r.strategy.Method() == layout.MethodFixed
		r.mu.Unlock()
		if fixed {
			return nil
		}
		if _, spreads := layout.Determine(settings, r.determineSpreads()); spreads == current {
			return nil
		}
		return r.reformat()
	})
}

// SetStyle sets a style on the body of every displayed chapter. The
// displayed chapter is updated and reformatted.
func (r *Renderer) SetStyle(ctx context.Context, name, value string) error {
	return r.restyle(ctx, func() { r.styles[name] = value })
}

// RemoveStyle removes a style set with SetStyle.
func (r *Renderer) RemoveStyle(ctx context.Context, name string) error {
	return r.restyle(ctx, func() { delete(r.styles, name) })
}

// SetClasses sets the classes of the document element.
func (r *Renderer) SetClasses(ctx context.Context, classes []string) error {
	return r.restyle(ctx, func() { r.classes = append([]string(nil), classes...) })
}

// AddHeadTag appends tag to the head of every displayed chapter.
func (r *Renderer) AddHeadTag(ctx context.Context, tag HeadTag) error {
	return r.restyle(ctx, func() { r.headTags = append(r.headTags, tag) })
}

func (r *Renderer) restyle(ctx context.Context, apply func()) error {
	return r.do(ctx, func() error {
		r.mu.Lock()
		apply()
		r.mu.Unlock()
		if r.surface.Root() == nil {
			return nil
		}
		if err := r.beforeDisplay.Trigger(ctx, r); err != nil {
			return err
		}
		return r.reformat()
	})
}

func applyStyles(_ context.Context, r *Renderer) error {
	body := r.surface.Body()
	if body == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.styles))
	for name := range r.styles {
		names = append(names, name)
	}
	sort.Strings(names)
	decls := make([]string, 0, len(names))
	for _, name := range names {
		decls = append(decls, name+": "+r.styles[name])
	}
	authored := r.bodyStyle
	r.mu.RUnlock()
	authored.merge(body, "style", "; ", strings.Join(decls, "; "))
	return nil
}

func applyClasses(_ context.Context, r *Renderer) error {
	root := dom.DocumentElement(r.surface.Root())
	r.mu.RLock()
	classes := strings.Join(r.classes, " ")
	authored := r.rootClass
	r.mu.RUnlock()
	if root == nil {
		return nil
	}
	authored.merge(root, "class", " ", classes)
	return nil
}

func applyHeadTags(_ context.Context, r *Renderer) error {
	head := dom.Head(r.surface.Root())
	r.mu.RLock()
	tags := append([]HeadTag(nil), r.headTags...)
	r.mu.RUnlock()
	if head == nil {
		return nil
	}
	for _, tag := range tags {
		if hasHeadTag(head, tag) {
			continue
		}
		el := &html.Node{Type: html.ElementNode, Data: tag.Tag, DataAtom: atom.Lookup([]byte(tag.Tag))}
		keys := make([]string, 0, len(tag.Attrs))
		for k := range tag.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			el.Attr = append(el.Attr, html.Attribute{Key: k, Val: tag.Attrs[k]})
		}
		head.AppendChild(el)
	}
	return nil
}

func hasHeadTag(head *html.Node, tag HeadTag) bool {
	for n := head.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != html.ElementNode || n.Data != tag.Tag {
			continue
		}
		same := true
		for k, v := range tag.Attrs {
			if dom.Attr(n, k) != v {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}
