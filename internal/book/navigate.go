package book

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yuanying/epubview/internal/cfi"
	"github.com/yuanying/epubview/internal/epub"
	"github.com/yuanying/epubview/internal/event"
	"github.com/yuanying/epubview/internal/render"
	"github.com/yuanying/epubview/internal/state"
)

// PageChange is published on event.BookPageChanged when a page index exists.
type PageChange struct {
	AnchorPage int     `json:"anchorPage"`
	Percentage float64 `json:"percentage"`
	PageRange  []int   `json:"pageRange"`
}

var rendererTopics = []string{
	event.RendererChapterUnload,
	event.RendererChapterUnloaded,
	event.RendererChapterDisplayed,
	event.RendererLocationChanged,
	event.RendererVisibleRange,
	event.RendererSpreads,
	event.RendererResized,
}

// Renderer returns the book's renderer, or nil before RenderTo.
func (b *Book) Renderer() *render.Renderer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.renderer
}

// RenderTo creates the renderer, shows the first location and then runs the
// operations deferred before it existed. The first location is Options.Goto,
// else a CFI requested before rendering, else the saved last location, else
// the start of the spine.
func (b *Book) RenderTo(ctx context.Context) error {
	if b.pkg == nil {
		return ErrNotOpen
	}
	b.mu.RLock()
	opts := b.opts.renderOptions(b.opts.Width, b.opts.Height)
	b.mu.RUnlock()
	r := render.New(opts)
	if err := b.applySettings(ctx, r); err != nil {
		return err
	}
	if dir := b.pkg.Metadata.EffectiveDirection(); dir != "" {
		r.SetDirection(dir)
	}
	r.Forward(b.Emitter, rendererTopics...)
	r.Subscribe(event.RendererVisibleRange, b.pageChanged)
	r.Subscribe(event.RendererLocationChanged, func(payload any) {
		b.locationChanged(r, payload.(string))
	})

	b.mu.Lock()
	b.renderer = r
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if err := b.startDisplay(ctx); err != nil {
		return err
	}
	for _, op := range pending {
		if err := op(ctx); err != nil {
			b.log.Warn("Deferred operation failed", zap.Error(err))
		}
	}
	return nil
}

func (b *Book) applySettings(ctx context.Context, r *render.Renderer) error {
	b.mu.RLock()
	styles := make(map[string]string, len(b.styles))
	for k, v := range b.styles {
		styles[k] = v
	}
	classes := b.opts.Classes
	headTags := append([]render.HeadTag(nil), b.opts.HeadTags...)
	b.mu.RUnlock()
	for k, v := range styles {
		if err := r.SetStyle(ctx, k, v); err != nil {
			return err
		}
	}
	if len(classes) > 0 {
		if err := r.SetClasses(ctx, classes); err != nil {
			return err
		}
	}
	for _, tag := range headTags {
		if err := r.AddHeadTag(ctx, tag); err != nil {
			return err
		}
	}
	return nil
}

// startDisplay shows the first target that resolves: the Goto option, the
// start CFI, then the saved last location. When none displays a chapter it
// falls back to the current spine position.
func (b *Book) startDisplay(ctx context.Context) error {
	b.mu.RLock()
	start := b.startCFI
	b.mu.RUnlock()

	var targets []func() (bool, error)
	switch {
	case b.opts.Goto != "":
		targets = append(targets, func() (bool, error) { return b.Goto(ctx, b.opts.Goto) })
	case start != "":
		targets = append(targets, func() (bool, error) { return b.GotoCFI(ctx, start) })
	}
	if b.opts.Store != nil {
		if loc, ok := b.opts.Store.LastLocation(b.key); ok {
			targets = append(targets, func() (bool, error) { return b.GotoCFI(ctx, loc.CFI()) })
		}
	}
	for _, target := range targets {
		ok, err := target()
		if err != nil {
			b.log.Warn("Could not display start target", zap.Error(err))
		}
		if ok {
			return nil
		}
	}
	if b.CurrentChapter() != nil {
		return nil
	}
	return b.DisplayChapter(ctx, b.SpinePos(), b.opts.DisplayLastPage)
}

// deferUntilRendered queues op until RenderTo. It reports whether op was queued.
func (b *Book) deferUntilRendered(op func(context.Context) error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.renderer != nil {
		return false
	}
	b.pending = append(b.pending, op)
	return true
}

// do runs fn after every earlier display, move or jump has settled.
func (b *Book) do(ctx context.Context, fn func() error) error {
	var err error
	if qerr := b.q.Do(ctx, func() { err = fn() }); qerr != nil {
		return qerr
	}
	return err
}

func (b *Book) pageChanged(payload any) {
	loc, ok := payload.(render.Location)
	if !ok || b.Pagination.Len() == 0 {
		return
	}
	start := b.Pagination.PageFromCFI(loc.Start)
	change := PageChange{
		AnchorPage: start,
		Percentage: b.Pagination.PercentageFromPage(start),
		PageRange:  []int{start},
	}
	if loc.End != "" {
		change.PageRange = append(change.PageRange, b.Pagination.PageFromCFI(loc.End))
	}
	b.Publish(event.BookPageChanged, change)
}

func (b *Book) locationChanged(r *render.Renderer, c string) {
	if b.Locations.Len() > 0 {
		b.Locations.SetCurrent(c)
	}
	if b.opts.Store == nil {
		return
	}
	ch := r.Chapter()
	if ch == nil {
		return
	}
	loc := state.NewLocation(c, ch.URL, b.chapterName(ch.URL))
	if err := b.opts.Store.SetLastLocation(b.key, loc); err != nil {
		b.log.Warn("Could not save location", zap.Error(err))
	}
}

// SpinePos is the spine position of the displayed chapter.
func (b *Book) SpinePos() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.spinePos
}

// CurrentChapter returns the displayed chapter, or nil.
func (b *Book) CurrentChapter() *epub.Chapter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// CurrentLocationCFI is the CFI of the displayed location, or "" before
// rendering.
func (b *Book) CurrentLocationCFI() string {
	r := b.Renderer()
	if r == nil {
		return ""
	}
	return r.CurrentLocationCFI()
}

// DisplayChapter shows the spine item at pos, at its last page when end is
// set. An invalid position displays the first chapter instead.
func (b *Book) DisplayChapter(ctx context.Context, pos int, end bool) error {
	if b.deferUntilRendered(func(ctx context.Context) error { return b.DisplayChapter(ctx, pos, end) }) {
		return ErrDeferred
	}
	return b.do(ctx, func() error {
		return b.displayChapter(ctx, pos, end)
	})
}

func (b *Book) displayChapter(ctx context.Context, pos int, end bool) error {
	spine := b.pkg.Spine
	if pos < 0 || pos >= len(spine) {
		b.log.Warn("Not a valid spine position", zap.Int("spinePos", pos))
		pos, end = 0, false
	}
	if len(spine) == 0 {
		return fmt.Errorf("failed to display chapter: %w", epub.ErrMissingSpine)
	}

	ch := epub.NewChapter(spine[pos], b.resources(), b.log)
	ch.BeforeRender().Register(epub.ReplaceAssets, true)

	r := b.Renderer()
	if err := r.DisplayChapter(ctx, ch, b.layout); err != nil {
		b.log.Error("Could not load chapter", zap.String("chapter", ch.URL), zap.Error(err))
		b.Publish(event.BookChapterFailed, ch.URL)
		return fmt.Errorf("failed to display chapter %d: %w", pos, err)
	}
	b.mu.Lock()
	b.spinePos = pos
	b.current = ch
	b.mu.Unlock()

	if end {
		if _, err := r.LastPage(ctx); err != nil {
			return err
		}
	}
	b.Publish(event.BookChapterDisplayed, pos)
	return nil
}

// NextPage moves forward one page, continuing into the next chapter.
func (b *Book) NextPage(ctx context.Context) error {
	if b.deferUntilRendered(b.NextPage) {
		return ErrDeferred
	}
	return b.do(ctx, func() error {
		ok, err := b.Renderer().NextPage(ctx)
		if err != nil || ok {
			return err
		}
		return b.nextChapter(ctx)
	})
}

// PrevPage moves back one page, continuing at the last page of the previous
// chapter.
func (b *Book) PrevPage(ctx context.Context) error {
	if b.deferUntilRendered(b.PrevPage) {
		return ErrDeferred
	}
	return b.do(ctx, func() error {
		ok, err := b.Renderer().PrevPage(ctx)
		if err != nil || ok {
			return err
		}
		return b.prevChapter(ctx)
	})
}

// NextChapter shows the next linear spine item, or publishes book:atEnd.
func (b *Book) NextChapter(ctx context.Context) error {
	if b.deferUntilRendered(b.NextChapter) {
		return ErrDeferred
	}
	return b.do(ctx, func() error { return b.nextChapter(ctx) })
}

// PrevChapter shows the previous linear spine item at its last page, or
// publishes book:atStart.
func (b *Book) PrevChapter(ctx context.Context) error {
	if b.deferUntilRendered(b.PrevChapter) {
		return ErrDeferred
	}
	return b.do(ctx, func() error { return b.prevChapter(ctx) })
}

func (b *Book) nextChapter(ctx context.Context) error {
	spine := b.pkg.Spine
	for next := b.SpinePos() + 1; next < len(spine); next++ {
		if spine[next].IsLinear() {
			return b.displayChapter(ctx, next, false)
		}
	}
	b.Publish(event.BookAtEnd, nil)
	return nil
}

func (b *Book) prevChapter(ctx context.Context) error {
	spine := b.pkg.Spine
	for prev := b.SpinePos() - 1; prev >= 0; prev-- {
		if spine[prev].IsLinear() {
			return b.displayChapter(ctx, prev, true)
		}
	}
	b.Publish(event.BookAtStart, nil)
	return nil
}

// Goto shows target: a CFI, a percentage such as "50%", a page number or a
// content href.
func (b *Book) Goto(ctx context.Context, target string) (bool, error) {
	switch {
	case cfi.IsCFI(target):
		return b.GotoCFI(ctx, target)
	case strings.HasSuffix(target, "%"):
		pct, err := strconv.ParseFloat(strings.TrimSuffix(target, "%"), 64)
		if err != nil {
			return false, fmt.Errorf("invalid percentage %q: %w", target, err)
		}
		return b.GotoPercentage(ctx, pct/100)
	}
	if pg, err := strconv.Atoi(target); err == nil {
		return b.GotoPage(ctx, pg)
	}
	return b.GotoHref(ctx, target)
}

// GotoCFI shows the location c, loading its chapter when needed. It reports
// false for a CFI that does not parse or resolve. Before RenderTo, c becomes
// the first location displayed.
func (b *Book) GotoCFI(ctx context.Context, c string) (bool, error) {
	b.mu.Lock()
	if b.renderer == nil {
		b.startCFI = c
		b.mu.Unlock()
		return false, ErrDeferred
	}
	b.mu.Unlock()

	var ok bool
	err := b.do(ctx, func() error {
		var err error
		ok, err = b.gotoCFI(ctx, c)
		return err
	})
	return ok, err
}

func (b *Book) gotoCFI(ctx context.Context, c string) (bool, error) {
	parsed := cfi.Parse(c)
	if !parsed.Valid() {
		b.log.Warn("Not a valid CFI", zap.String("cfi", c))
		return false, nil
	}
	pos := parsed.SpinePos
	if pos >= len(b.pkg.Spine) {
		pos = 0
	}
	r := b.Renderer()
	if b.CurrentChapter() == nil || b.SpinePos() != pos {
		if err := b.displayChapter(ctx, pos, false); err != nil {
			return false, err
		}
	}
	return r.GotoCFI(ctx, c)
}

// GotoHref shows the chapter at href and the element named by its fragment.
// A fragment alone stays in the displayed chapter. Before RenderTo, href
// becomes the first location displayed.
func (b *Book) GotoHref(ctx context.Context, href string) (bool, error) {
	if b.deferUntilRendered(func(ctx context.Context) error {
		_, err := b.GotoHref(ctx, href)
		return err
	}) {
		return false, ErrDeferred
	}
	var ok bool
	err := b.do(ctx, func() error {
		var err error
		ok, err = b.gotoHref(ctx, href)
		return err
	})
	return ok, err
}

func (b *Book) gotoHref(ctx context.Context, href string) (bool, error) {
	chapterPath, section, _ := strings.Cut(href, "#")
	pos := b.SpinePos()
	if chapterPath != "" {
		var found bool
		if pos, found = b.spineIndex(chapterPath); !found {
			return false, nil
		}
	}

	r := b.Renderer()
	if b.CurrentChapter() == nil || pos != b.SpinePos() {
		if err := b.displayChapter(ctx, pos, false); err != nil {
			return false, err
		}
	} else if section == "" {
		return r.Page(ctx, 1)
	}
	if section != "" {
		return r.Section(ctx, section)
	}
	return true, nil
}

// GotoPage shows page pg of the page list.
func (b *Book) GotoPage(ctx context.Context, pg int) (bool, error) {
	c := b.Pagination.CFIFromPage(pg)
	if c == "" {
		return false, nil
	}
	return b.GotoCFI(ctx, c)
}

// GotoPercentage shows the page at pct, a fraction from 0 to 1, of the page
// list.
func (b *Book) GotoPercentage(ctx context.Context, pct float64) (bool, error) {
	return b.GotoPage(ctx, b.Pagination.PageFromPercentage(pct))
}
