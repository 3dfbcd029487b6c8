package book

import (
	"context"

	"github.com/yuanying/epubview/internal/render"
)

// Settings change the renderer when one exists and otherwise apply to the
// renderer RenderTo creates.

// SetStyle sets a style on the body of every displayed chapter.
func (b *Book) SetStyle(ctx context.Context, name, value string) error {
	b.mu.Lock()
	b.styles[name] = value
	r := b.renderer
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.SetStyle(ctx, name, value)
}

// RemoveStyle removes a style set with SetStyle or Options.Styles.
func (b *Book) RemoveStyle(ctx context.Context, name string) error {
	b.mu.Lock()
	delete(b.styles, name)
	r := b.renderer
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.RemoveStyle(ctx, name)
}

// SetClasses sets the classes of the document element.
func (b *Book) SetClasses(ctx context.Context, classes []string) error {
	b.mu.Lock()
	b.opts.Classes = append([]string(nil), classes...)
	r := b.renderer
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.SetClasses(ctx, classes)
}

// AddHeadTag appends tag to the head of every displayed chapter.
func (b *Book) AddHeadTag(ctx context.Context, tag render.HeadTag) error {
	b.mu.Lock()
	b.opts.HeadTags = append(b.opts.HeadTags, tag)
	r := b.renderer
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.AddHeadTag(ctx, tag)
}

// Resize changes the viewport.
func (b *Book) Resize(ctx context.Context, width, height int) error {
	b.mu.Lock()
	b.opts.Width, b.opts.Height = width, height
	r := b.renderer
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Resize(ctx, width, height)
}

// SetGap changes the column gap. Zero selects an eighth of the width.
func (b *Book) SetGap(ctx context.Context, gap int) error {
	b.mu.Lock()
	b.opts.Gap = gap
	r := b.renderer
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	if gap == 0 {
		gap = -1
	}
	return r.SetGap(ctx, gap)
}

// ForceSingle keeps one page per viewport even where spreads would fit.
func (b *Book) ForceSingle(ctx context.Context, single bool) error {
	b.mu.Lock()
	b.opts.ForceSingle = single
	r := b.renderer
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.ForceSingle(ctx, single)
}

// SetMinSpreadWidth changes the narrowest viewport that shows spreads.
func (b *Book) SetMinSpreadWidth(ctx context.Context, width int) error {
	b.mu.Lock()
	b.opts.MinSpreadWidth = width
	r := b.renderer
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.SetMinSpreadWidth(ctx, width)
}
