package book

import (
	"go.uber.org/zap"
	"golang.org/x/image/font"

	"github.com/yuanying/epubview/internal/epub"
	"github.com/yuanying/epubview/internal/layout"
	"github.com/yuanying/epubview/internal/locations"
	"github.com/yuanying/epubview/internal/render"
	"github.com/yuanying/epubview/internal/state"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

// Options holds settings for opening and displaying a book.
type Options struct {
	Width  int
	Height int
	// Gap between columns. Zero selects an eighth of the width.
	Gap            int
	Spreads        bool
	MinSpreadWidth int
	ForceSingle    bool

	// LayoutOverride fields that are set win over the package metadata.
	LayoutOverride layout.Settings

	// Restore reuses the package structure saved in Store for the same book.
	Restore bool
	Store   *state.Store

	// Offline reads resources from OfflineStore once the book is stored there.
	Offline      bool
	OfflineStore epub.OfflineStore

	// BreakChars is the number of characters between two locations.
	BreakChars int

	Styles   map[string]string
	Classes  []string
	HeadTags []render.HeadTag

	// Goto is the first target displayed by RenderTo. See Book.Goto.
	Goto            string
	DisplayLastPage bool
	UseMarkers      bool

	Face   font.Face
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.MinSpreadWidth <= 0 {
		o.MinSpreadWidth = render.DefaultMinSpreadWidth
	}
	if o.BreakChars <= 0 {
		o.BreakChars = locations.DefaultBreak
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// renderOptions returns the renderer settings for a viewport of width by
// height.
func (o Options) renderOptions(width, height int) render.Options {
	gap := o.Gap
	if gap == 0 {
		gap = -1
	}
	return render.Options{
		Width:          width,
		Height:         height,
		Gap:            gap,
		Spreads:        o.Spreads,
		MinSpreadWidth: o.MinSpreadWidth,
		ForceSingle:    o.ForceSingle,
		UseMarkers:     o.UseMarkers,
		Face:           o.Face,
		Logger:         o.Logger,
	}
}

// layoutSettings picks the book-level rendition settings.
func layoutSettings(md epub.Metadata, override layout.Settings) layout.Settings {
	s := layout.DefaultSettings()
	for _, v := range []struct {
		dst       *string
		meta, ovr string
	}{
		{&s.Layout, md.Layout, override.Layout},
		{&s.Spread, md.Spread, override.Spread},
		{&s.Orientation, md.Orientation, override.Orientation},
	} {
		switch {
		case v.ovr != "":
			*v.dst = v.ovr
		case v.meta != "":
			*v.dst = v.meta
		}
	}
	return s
}
