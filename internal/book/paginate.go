package book

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/yuanying/epubview/internal/epub"
	"github.com/yuanying/epubview/internal/event"
	"github.com/yuanying/epubview/internal/locations"
	"github.com/yuanying/epubview/internal/pagination"
	"github.com/yuanying/epubview/internal/render"
)

// GeneratePagination lays out every linear chapter in an off-screen renderer
// of width by height and numbers the resulting pages from 1. With spreads,
// a chapter with an odd page count gets a blank page so every chapter starts
// on a left page. Canceling ctx discards everything and returns
// ErrPaginationCanceled.
func (b *Book) GeneratePagination(ctx context.Context, width, height int) ([]pagination.Item, error) {
	if b.pkg == nil {
		return nil, ErrNotOpen
	}
	if width <= 0 || height <= 0 {
		width, height = b.opts.Width, b.opts.Height
	}
	b.mu.RLock()
	opts := b.opts.renderOptions(width, height)
	b.mu.RUnlock()
	r := render.New(opts)
	defer func() {
		if err := r.Unload(context.Background()); err != nil {
			b.log.Warn("Could not unload chapter", zap.Error(err))
		}
	}()

	var items []pagination.Item
	for pos, item := range b.pkg.Spine {
		if !item.IsLinear() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPaginationCanceled, err)
		}
		pages, spreads, err := b.paginateChapter(ctx, r, item)
		if err != nil {
			return nil, fmt.Errorf("failed to paginate chapter %d: %w", pos, err)
		}
		for _, pg := range pages {
			items = append(items, pagination.Item{Page: len(items) + 1, CFI: pg.Start, Content: pg.Text})
		}
		if spreads && len(pages)%2 == 1 {
			items = append(items, pagination.Item{Page: len(items) + 1, CFI: pages[len(pages)-1].End})
		}
		b.log.Debug("Paginated chapter",
			zap.Int("spinePos", pos),
			zap.Int("pages", len(pages)),
		)
		runtime.Gosched()
	}

	b.setPageList(items)
	if b.opts.Store != nil {
		if err := b.opts.Store.SavePageList(b.key, items); err != nil {
			b.log.Warn("Could not save page list", zap.Error(err))
		}
	}
	return items, nil
}

func (b *Book) paginateChapter(ctx context.Context, r *render.Renderer, item epub.SpineItem) ([]render.Page, bool, error) {
	ch := epub.NewChapter(item, b.resources(), b.log)
	if err := r.DisplayChapter(ctx, ch, b.layout); err != nil {
		return nil, false, err
	}
	return r.PageMap(), r.Spreads(), nil
}

// LoadPagination replaces the page list with items saved from an earlier
// GeneratePagination.
func (b *Book) LoadPagination(items []pagination.Item) {
	b.setPageList(items)
}

// GenerateLocations builds the locations index over the whole spine, one
// chapter at a time.
func (b *Book) GenerateLocations(ctx context.Context) ([]string, error) {
	if b.pkg == nil {
		return nil, ErrNotOpen
	}
	chapters := make([]locations.Chapter, 0, len(b.pkg.Spine))
	for _, item := range b.pkg.Spine {
		ch := epub.NewChapter(item, b.resources(), b.log)
		chapters = append(chapters, locations.Chapter{
			CFIBase: item.CFIBase,
			Load:    func(context.Context) (*html.Node, error) { return ch.Load() },
			Unload:  ch.Unload,
		})
	}
	locs, err := b.Locations.Generate(ctx, chapters, b.opts.BreakChars)
	if err != nil {
		return nil, fmt.Errorf("failed to generate locations: %w", err)
	}
	b.Publish(event.BookLocationsReady, locs)
	if b.opts.Store != nil {
		if err := b.opts.Store.SaveLocations(b.key, locs); err != nil {
			b.log.Warn("Could not save locations", zap.Error(err))
		}
	}
	return locs, nil
}
