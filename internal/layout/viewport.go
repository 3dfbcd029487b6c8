package layout

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Viewport is the size declared by <meta name="viewport">.
type Viewport struct {
	Width  int
	Height int
}

// ParseViewport reads the width and height properties of a viewport meta
// content value such as "width=1024, height=768". Properties are separated by
// commas or semicolons. ok is false unless both dimensions are positive
// integers.
func ParseViewport(content string) (vp Viewport, ok bool) {
	props := strings.FieldsFunc(content, func(r rune) bool { return r == ',' || r == ';' })
	for _, prop := range props {
		name, value, found := strings.Cut(prop, "=")
		if !found {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "width":
			vp.Width = n
		case "height":
			vp.Height = n
		}
	}
	return vp, vp.Width > 0 && vp.Height > 0
}

// FindViewport looks up the viewport meta element below root.
func FindViewport(root *html.Node) (Viewport, bool) {
	if root == nil {
		return Viewport{}, false
	}
	content, exists := goquery.NewDocumentFromNode(root).Find("[name=viewport]").First().Attr("content")
	if !exists {
		return Viewport{}, false
	}
	return ParseViewport(content)
}

// IsFixedLayout reports whether the document declares a fixed viewport. A
// chapter can be fixed layout even when the package metadata says otherwise.
func IsFixedLayout(root *html.Node) bool {
	_, ok := FindViewport(root)
	return ok
}
