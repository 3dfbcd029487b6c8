// Package render lays chapters out into columns and maps them to pages.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yuanying/epubview/internal/dom"
)

// Rect is a box in viewport coordinates.
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

func (r Rect) union(o Rect) Rect {
	return Rect{
		Left:   min(r.Left, o.Left),
		Top:    min(r.Top, o.Top),
		Right:  max(r.Right, o.Right),
		Bottom: max(r.Bottom, o.Bottom),
	}
}

// box is a laid out run of a text node, [start, end) in runes.
type box struct {
	start, end int
	col        int
	x, y, w, h int
}

// Surface is a headless render target. It flows the body of a document into
// columns of fixed width and height, one word at a time, and answers
// geometry queries for ranges and elements.
type Surface struct {
	face       font.Face
	lineHeight int
	log        *zap.Logger

	doc *html.Node

	colWidth int
	gap      int
	height   int
	fixed    bool
	scale    float64

	dir        string
	scrollLeft int

	boxes    map[*html.Node][]box
	elements map[*html.Node]box
	columns  int
}

// NewSurface returns an empty surface measuring text with face. A nil face
// selects basicfont.Face7x13.
func NewSurface(face font.Face, log *zap.Logger) *Surface {
	if face == nil {
		face = basicfont.Face7x13
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Surface{
		face:       face,
		lineHeight: face.Metrics().Height.Ceil(),
		log:        log,
		dir:        "ltr",
		scale:      1,
	}
}

// Load replaces the document and resets scroll. Layout happens on the next
// SetColumns or SetFixed.
func (s *Surface) Load(doc *html.Node) {
	s.doc = doc
	s.scrollLeft = 0
	s.boxes = nil
	s.elements = nil
	s.columns = 0
	s.applyDirection()
}

// Unload drops the document.
func (s *Surface) Unload() {
	s.Load(nil)
}

// Scale is the factor a fixed layout is drawn at.
func (s *Surface) Scale() float64 { return s.scale }

// Root returns the loaded document node.
func (s *Surface) Root() *html.Node { return s.doc }

// Body returns the element text is flowed from.
func (s *Surface) Body() *html.Node {
	if s.doc == nil {
		return nil
	}
	if body := dom.Body(s.doc); body != nil {
		return body
	}
	return dom.DocumentElement(s.doc)
}

// SetColumns flows the document into columns.
func (s *Surface) SetColumns(colWidth, gap, height int) {
	s.colWidth, s.gap, s.height = colWidth, gap, height
	s.fixed, s.scale = false, 1
	s.setRootStyle(fmt.Sprintf("height: %dpx; column-width: %dpx; column-gap: %dpx; column-fill: auto; overflow: hidden",
		height, colWidth, gap))
	s.Relayout()
}

// SetFixed lays the document out as one width x height page scaled by scale
// and centered in the viewport.
func (s *Surface) SetFixed(width, height int, scale float64) {
	s.colWidth, s.gap, s.height = width, 0, 0
	s.fixed, s.scale = true, scale
	s.setRootStyle(fmt.Sprintf("position: absolute; top: 50%%; left: 50%%; width: %dpx; height: %dpx; "+
		"transform-origin: 0 0; transform: scale(%s) translate(-50%%, -50%%)",
		width, height, strconv.FormatFloat(scale, 'f', -1, 64)))
	s.Relayout()
}

func (s *Surface) setRootStyle(style string) {
	if root := dom.DocumentElement(s.doc); root != nil {
		dom.SetAttr(root, "style", style)
	}
}

// ScrollWidth is the width of all laid out columns.
func (s *Surface) ScrollWidth() int {
	if s.fixed {
		return s.colWidth
	}
	if s.columns == 0 {
		return 0
	}
	return s.columns*s.colWidth + (s.columns-1)*s.gap
}

// Columns returns the number of columns content occupies.
func (s *Surface) Columns() int { return s.columns }

// Direction returns the text direction of the document element.
func (s *Surface) Direction() string { return s.dir }

// SetDirection sets the text direction, "ltr" or "rtl".
func (s *Surface) SetDirection(dir string) {
	if dir != "rtl" {
		dir = "ltr"
	}
	s.dir = dir
	s.applyDirection()
}

func (s *Surface) applyDirection() {
	if root := dom.DocumentElement(s.doc); root != nil {
		dom.SetAttr(root, "dir", s.dir)
	}
}

// ScrollTo moves the viewport to left. Right-to-left documents scroll to
// negative offsets.
func (s *Surface) ScrollTo(left int) { s.scrollLeft = left }

// ScrollLeft returns the current scroll offset.
func (s *Surface) ScrollLeft() int { return s.scrollLeft }

// offset is the distance scrolled regardless of direction.
func (s *Surface) offset() int {
	if s.scrollLeft < 0 {
		return -s.scrollLeft
	}
	return s.scrollLeft
}

func (s *Surface) advance(str string) int {
	return font.MeasureString(s.face, str).Ceil()
}

func (s *Surface) rect(b box) Rect {
	left := b.col*(s.colWidth+s.gap) + b.x - s.offset()
	return Rect{Left: left, Top: b.y, Right: left + b.w, Bottom: b.y + b.h}
}

// RangeRect returns the bounding box of r. Collapsed ranges give a zero
// width box at the position. It reports false when r is not laid out.
func (s *Surface) RangeRect(r dom.Range) (Rect, bool) {
	start, end := r.StartContainer, r.EndContainer
	if start == nil {
		return Rect{}, false
	}
	if !dom.IsText(start) {
		kids := dom.Children(start)
		if r.StartOffset < len(kids) {
			return s.ElementRect(kids[r.StartOffset])
		}
		return s.ElementRect(start)
	}
	if end != start {
		first, ok := s.textRect(start, r.StartOffset, dom.RuneLen(start.Data))
		if !ok {
			return Rect{}, false
		}
		if dom.IsText(end) {
			if last, ok := s.textRect(end, 0, r.EndOffset); ok {
				return first.union(last), true
			}
		}
		return first, true
	}
	return s.textRect(start, r.StartOffset, r.EndOffset)
}

func (s *Surface) textRect(t *html.Node, start, end int) (Rect, bool) {
	boxes := s.boxes[t]
	if len(boxes) == 0 {
		return Rect{}, false
	}
	if start >= end {
		for i, b := range boxes {
			if start < b.end || i == len(boxes)-1 {
				left := b.x + min(s.advance(dom.Slice(t.Data, b.start, max(start, b.start))), b.w)
				return s.rect(box{col: b.col, x: left, y: b.y, h: b.h}), true
			}
		}
	}

	var out Rect
	found := false
	for _, b := range boxes {
		if b.end <= start || b.start >= end {
			continue
		}
		lo, hi := max(start, b.start), min(end, b.end)
		left := b.x + min(s.advance(dom.Slice(t.Data, b.start, lo)), b.w)
		right := min(left+s.advance(dom.Slice(t.Data, lo, hi)), b.x+b.w)
		r := s.rect(box{col: b.col, x: left, y: b.y, w: right - left, h: b.h})
		if !found {
			out, found = r, true
			continue
		}
		out = out.union(r)
	}
	return out, found
}

// ElementRect returns the position of n. Elements give the box where their
// content starts.
func (s *Surface) ElementRect(n *html.Node) (Rect, bool) {
	if n == nil {
		return Rect{}, false
	}
	if dom.IsText(n) {
		return s.textRect(n, 0, dom.RuneLen(n.Data))
	}
	b, ok := s.elements[n]
	if !ok {
		return Rect{}, false
	}
	return s.rect(b), true
}

// Relayout flows the document again with the current geometry.
func (s *Surface) Relayout() {
	s.boxes = make(map[*html.Node][]box)
	s.elements = make(map[*html.Node]box)
	s.columns = 0
	body := s.Body()
	if body == nil {
		return
	}
	f := &flow{s: s, lastCol: -1}
	f.walk(body)
	s.columns = f.lastCol + 1
	s.log.Debug("Surface laid out",
		zap.Int("columns", s.columns), zap.Int("columnWidth", s.colWidth), zap.Int("gap", s.gap))
}

// flow is the cursor of a layout pass.
type flow struct {
	s       *Surface
	col     int
	x, y    int
	lastCol int
}

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Body: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.H1: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Nav: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true, atom.Tr: true,
	atom.Ul: true,
}

var skippedElements = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Title: true, atom.Template: true,
}

func (f *flow) columnHeight() int {
	if f.s.height <= 0 {
		return int(^uint(0) >> 1)
	}
	return f.s.height
}

// newline ends the current line if it has content.
func (f *flow) newline() {
	if f.x > 0 {
		f.x = 0
		f.y += f.s.lineHeight
	}
}

// fit moves to the next column when a line of h does not fit below y.
func (f *flow) fit(h int) {
	if f.y > 0 && f.y+h > f.columnHeight() {
		f.col++
		f.y = 0
	}
}

func (f *flow) place(w, h int) box {
	if f.x > 0 && f.x+w > f.s.colWidth {
		f.newline()
	}
	f.fit(h)
	b := box{col: f.col, x: f.x, y: f.y, w: w, h: h}
	f.x += w
	f.lastCol = f.col
	return b
}

func (f *flow) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		f.text(n)
		return
	case html.ElementNode:
	default:
		return
	}
	if skippedElements[n.DataAtom] {
		return
	}

	block := blockElements[n.DataAtom]
	if block {
		f.newline()
	}
	f.fit(f.s.lineHeight)
	f.s.elements[n] = box{col: f.col, x: f.x, y: f.y, h: f.s.lineHeight}

	switch n.DataAtom {
	case atom.Br:
		if f.x == 0 {
			f.y += f.s.lineHeight
		}
		f.newline()
		return
	case atom.Img, atom.Image, atom.Svg:
		w, h := f.imageSize(n)
		b := f.place(w, h)
		f.s.elements[n] = b
		f.x = 0
		f.y = b.y + h
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		f.walk(c)
	}
	if block {
		f.newline()
	}
}

func (f *flow) imageSize(n *html.Node) (int, int) {
	w, _ := strconv.Atoi(strings.TrimSuffix(dom.Attr(n, "width"), "px"))
	h, _ := strconv.Atoi(strings.TrimSuffix(dom.Attr(n, "height"), "px"))
	if w <= 0 {
		w = f.s.colWidth
	}
	if h <= 0 {
		h = f.s.lineHeight
	}
	if f.s.colWidth > 0 && w > f.s.colWidth {
		h = h * f.s.colWidth / w
		w = f.s.colWidth
	}
	if limit := f.columnHeight(); h > limit {
		w = w * limit / h
		h = limit
	}
	return max(w, 1), max(h, 1)
}

// text flows t word by word. Whitespace collapses to a single space, which
// is dropped at the start of a line.
func (f *flow) text(t *html.Node) {
	runes := []rune(t.Data)
	var boxes []box
	for i := 0; i < len(runes); {
		j := i
		space := unicode.IsSpace(runes[i])
		for j < len(runes) && unicode.IsSpace(runes[j]) == space {
			j++
		}
		var b box
		switch {
		case !space:
			b = f.place(f.s.advance(string(runes[i:j])), f.s.lineHeight)
		case f.x == 0:
			f.fit(f.s.lineHeight)
			b = box{col: f.col, x: 0, y: f.y, h: f.s.lineHeight}
		default:
			w := f.s.advance(" ")
			if f.x+w > f.s.colWidth {
				f.newline()
				f.fit(f.s.lineHeight)
				b = box{col: f.col, x: 0, y: f.y, h: f.s.lineHeight}
			} else {
				b = box{col: f.col, x: f.x, y: f.y, w: w, h: f.s.lineHeight}
				f.x += w
			}
		}
		b.start, b.end = i, j
		boxes = append(boxes, b)
		i = j
	}
	if len(boxes) > 0 {
		f.s.boxes[t] = boxes
	}
}
