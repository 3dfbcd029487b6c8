package cfi

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yuanying/epubview/internal/dom"
)

const (
	// MarkerIDPrefix prefixes the id of every inserted marker.
	MarkerIDPrefix = "EPUBVIEW-CFI-MARKER:"
	// MarkerClass is set on every inserted marker.
	MarkerClass = "epubview-cfi-marker"
	// SplitClass is added when insertion split a text node.
	SplitClass = "epubview-cfi-split"
)

// AddMarker inserts an empty span at the position c names in doc and returns
// it. A text node is split when the offset falls inside it. It returns nil
// when c does not resolve.
func AddMarker(c CFI, doc *html.Node) *html.Node {
	parent := FindParent(c, doc)
	if parent == nil {
		return nil
	}

	marker := &html.Node{
		Type:     html.ElementNode,
		Data:     "span",
		DataAtom: atom.Span,
		Attr: []html.Attribute{
			{Key: "id", Val: MarkerIDPrefix + uuid.New().String()},
			{Key: "class", Val: MarkerClass},
		},
	}

	last, ok := c.Last()
	if !ok || last.Type != TextStep {
		parent.InsertBefore(marker, parent.FirstChild)
		return marker
	}

	texts := dom.TextChildren(parent)
	if last.Index >= len(texts) {
		parent.AppendChild(marker)
		return marker
	}
	text := texts[last.Index]

	if c.CharacterOffset > 0 {
		offset := min(c.CharacterOffset, dom.RuneLen(text.Data))
		dom.SplitText(text, offset)
		dom.SetAttr(marker, "class", MarkerClass+" "+SplitClass)
		dom.InsertAfter(text, marker)
		return marker
	}
	parent.InsertBefore(marker, text)
	return marker
}

// RemoveMarker detaches marker and merges any text node it split.
func RemoveMarker(marker *html.Node) {
	if marker == nil || marker.Parent == nil {
		return
	}
	prev, next := marker.PrevSibling, marker.NextSibling
	split := dom.HasClass(marker, SplitClass)
	dom.Remove(marker)
	if split && dom.IsText(prev) && dom.IsText(next) {
		prev.Data += next.Data
		dom.Remove(next)
	}
}

// IsMarker reports whether n is a marker inserted by AddMarker.
func IsMarker(n *html.Node) bool {
	return dom.IsElement(n) && strings.HasPrefix(dom.Attr(n, "id"), MarkerIDPrefix)
}
