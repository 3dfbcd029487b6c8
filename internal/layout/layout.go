// Package layout holds the page layout strategies applied to a chapter
// before its page map is built.
package layout

import (
	"errors"
	"math"
	"strings"

	"golang.org/x/net/html"
)

var (
	// ErrNoViewport is returned by Fixed.Format when the document does not
	// declare both viewport dimensions.
	ErrNoViewport = errors.New("document has no viewport dimensions")
)

// Target is the render surface a strategy formats.
type Target interface {
	Root() *html.Node
	// SetColumns lays content out in columns of colWidth separated by gap.
	SetColumns(colWidth, gap, height int)
	// SetFixed lays content out as a single width x height box scaled by scale.
	SetFixed(width, height int, scale float64)
	// ScrollWidth is the total width of the laid out content.
	ScrollWidth() int
}

// Formatted describes the geometry a strategy applied.
type Formatted struct {
	PageWidth   int
	PageHeight  int
	ColumnWidth int
	Gap         int
	Scale       float64
}

// Pages is the result of CalculatePages. DisplayedPages counts viewport
// positions; PageCount counts logical pages.
type Pages struct {
	DisplayedPages int
	PageCount      int
}

// Strategy formats a chapter and counts its pages.
type Strategy interface {
	Method() Method
	// Format lays out t for a width x height viewport. A negative gap
	// selects the default gap.
	Format(t Target, width, height, gap int) (Formatted, error)
	CalculatePages() Pages
}

// Method names a Strategy.
type Method string

const (
	MethodReflowable Method = "Reflowable"
	MethodSpreads    Method = "ReflowableSpreads"
	MethodFixed      Method = "Fixed"
)

// New returns a fresh strategy for m. Unknown methods get Reflowable.
func New(m Method) Strategy {
	switch m {
	case MethodSpreads:
		return &ReflowableSpreads{}
	case MethodFixed:
		return &Fixed{}
	default:
		return &Reflowable{}
	}
}

// defaultGap is an eighth of width rounded down to an even number.
func defaultGap(width, gap int) int {
	if gap >= 0 {
		return gap
	}
	section := width / 8
	if section%2 != 0 {
		section--
	}
	return section
}

// Reflowable shows one column per page.
type Reflowable struct {
	target      Target
	spreadWidth int
}

func (r *Reflowable) Method() Method { return MethodReflowable }

func (r *Reflowable) Format(t Target, width, height, gap int) (Formatted, error) {
	gap = defaultGap(width, gap)
	r.target = t
	r.spreadWidth = width + gap
	t.SetColumns(width, gap, height)
	return Formatted{
		PageWidth:   r.spreadWidth,
		PageHeight:  height,
		ColumnWidth: width,
		Gap:         gap,
		Scale:       1,
	}, nil
}

func (r *Reflowable) CalculatePages() Pages {
	displayed := columns(r.target, r.spreadWidth)
	return Pages{DisplayedPages: displayed, PageCount: displayed}
}

// ReflowableSpreads shows two columns per viewport.
type ReflowableSpreads struct {
	target      Target
	spreadWidth int
}

func (r *ReflowableSpreads) Method() Method { return MethodSpreads }

func (r *ReflowableSpreads) Format(t Target, width, height, gap int) (Formatted, error) {
	if width%2 != 0 {
		width--
	}
	gap = defaultGap(width, gap)
	colWidth := (width - gap) / 2
	r.target = t
	r.spreadWidth = (colWidth + gap) * 2
	t.SetColumns(colWidth, gap, height)
	return Formatted{
		PageWidth:   r.spreadWidth,
		PageHeight:  height,
		ColumnWidth: colWidth,
		Gap:         gap,
		Scale:       1,
	}, nil
}

func (r *ReflowableSpreads) CalculatePages() Pages {
	displayed := columns(r.target, r.spreadWidth)
	return Pages{DisplayedPages: displayed, PageCount: displayed * 2}
}

func columns(t Target, spreadWidth int) int {
	if t == nil || spreadWidth <= 0 {
		return 0
	}
	return int(math.Ceil(float64(t.ScrollWidth()) / float64(spreadWidth)))
}

// Fixed scales a pre-paginated document into the viewport. It is always a
// single page.
type Fixed struct{}

func (f *Fixed) Method() Method { return MethodFixed }

func (f *Fixed) Format(t Target, width, height, _ int) (Formatted, error) {
	vp, ok := FindViewport(t.Root())
	if !ok {
		return Formatted{}, ErrNoViewport
	}
	scale := math.Min(float64(width)/float64(vp.Width), float64(height)/float64(vp.Height))
	t.SetFixed(vp.Width, vp.Height, scale)
	return Formatted{
		PageWidth:   vp.Width,
		PageHeight:  vp.Height,
		ColumnWidth: vp.Width,
		Scale:       scale,
	}, nil
}

func (f *Fixed) CalculatePages() Pages {
	return Pages{DisplayedPages: 1, PageCount: 1}
}

// Settings are the rendition properties that select a strategy.
type Settings struct {
	Layout      string `json:"layout"`
	Spread      string `json:"spread"`
	Orientation string `json:"orientation"`
}

// DefaultSettings is the rendition of a book that declares nothing.
func DefaultSettings() Settings {
	return Settings{Layout: "reflowable", Spread: "auto", Orientation: "auto"}
}

// Reconcile applies a spine item's rendition properties over the book
// settings. A property such as "rendition:layout-pre-paginated" is split at
// its first hyphen into name and value.
func Reconcile(global Settings, properties []string) Settings {
	s := global
	for _, prop := range properties {
		name, value, ok := strings.Cut(strings.TrimPrefix(prop, "rendition:"), "-")
		if !ok {
			continue
		}
		switch name {
		case "layout":
			s.Layout = value
		case "spread":
			s.Spread = value
		case "orientation":
			s.Orientation = value
		}
	}
	return s
}

// DetermineSpreads reports whether a viewport of width shows two pages.
func DetermineSpreads(width, cutoff int, forceSingle bool) bool {
	return !forceSingle && cutoff > 0 && width >= cutoff
}

// Determine picks the strategy for s. spreads is the result of
// DetermineSpreads; the returned bool is whether spreads are in effect.
func Determine(s Settings, spreads bool) (Method, bool) {
	switch {
	case s.Layout == "pre-paginated":
		return MethodFixed, false
	case s.Layout == "reflowable" && s.Spread == "none":
		return MethodReflowable, false
	case s.Layout == "reflowable" && s.Spread == "both":
		return MethodSpreads, true
	case spreads:
		return MethodSpreads, true
	default:
		return MethodReflowable, false
	}
}
