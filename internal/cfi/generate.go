package cfi

import (
	"strconv"

	"golang.org/x/net/html"

	"github.com/yuanying/epubview/internal/dom"
)

// ChapterComponent builds the chapter part of a CFI for the spine item at
// pos. spineNodeIndex is the position of the <spine> element among the
// package document's children.
func ChapterComponent(spineNodeIndex, pos int, id string) string {
	out := "/" + strconv.Itoa((spineNodeIndex+1)*2) + "/" + strconv.Itoa((pos+1)*2)
	if id != "" {
		out += "[" + id + "]"
	}
	return out
}

// PathTo returns the steps from the document element down to n. The
// document element itself is the implicit root and contributes no step.
func PathTo(n *html.Node) []Step {
	var steps []Step
	for cur := n; cur != nil && cur.Parent != nil && cur.Parent.Type != html.DocumentNode; cur = cur.Parent {
		switch cur.Type {
		case html.TextNode:
			steps = append(steps, Step{Type: TextStep, Index: dom.SiblingIndex(cur)})
		case html.ElementNode:
			steps = append(steps, Step{Type: ElementStep, Index: dom.SiblingIndex(cur), ID: dom.Attr(cur, "id")})
		}
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

func wrap(base, path string) string {
	return prefix + base + "!" + path + suffix
}

// ChapterStart returns a CFI addressing the start of the body of the
// chapter at base.
func ChapterStart(base string) string {
	return wrap(base, "/4/")
}

// GenerateFromElement returns a CFI addressing the first text position inside
// el. An element without a path (the document element) maps to the start of
// the body.
func GenerateFromElement(el *html.Node, base string) string {
	path := joinSteps(PathTo(el))
	if path == "" {
		return ChapterStart(base)
	}
	return wrap(base, path+"/1:0")
}

// GenerateFromTextNode returns a CFI addressing offset within text node t.
func GenerateFromTextNode(t *html.Node, offset int, base string) string {
	steps := append(PathTo(t.Parent), Step{Type: TextStep, Index: dom.SiblingIndex(t)})
	return wrap(base, joinSteps(steps)+":"+strconv.Itoa(offset))
}

// point is a boundary point expressed as CFI steps.
type point struct {
	parent []Step
	text   *Step
	offset int
}

// tail renders the text step and offset of p, if any.
func (p point) tail() string {
	if p.text == nil {
		return ""
	}
	return "/" + p.text.String() + ":" + strconv.Itoa(p.offset)
}

func pointOf(container *html.Node, offset int) point {
	if dom.IsText(container) {
		return point{
			parent: PathTo(container.Parent),
			text:   &Step{Type: TextStep, Index: dom.SiblingIndex(container)},
			offset: offset,
		}
	}

	kids := dom.Children(container)
	if offset < len(kids) {
		child := kids[offset]
		if dom.IsText(child) {
			return pointOf(child, 0)
		}
		if dom.IsElement(child) {
			return point{parent: PathTo(child)}
		}
	}
	return point{parent: PathTo(container)}
}

func hasStepPrefix(steps, prefix []Step) bool {
	if len(prefix) > len(steps) {
		return false
	}
	for i := range prefix {
		if steps[i].encoded() != prefix[i].encoded() || steps[i].ID != prefix[i].ID {
			return false
		}
	}
	return true
}

// GenerateFromRange returns a CFI for r. A collapsed range yields a point
// CFI. Otherwise the end path follows a comma; it is written relative to the
// start element path when that path is a prefix of it, and absolute (with a
// leading slash) otherwise.
func GenerateFromRange(r dom.Range, base string) string {
	start := pointOf(r.StartContainer, r.StartOffset)
	startPath := joinSteps(start.parent) + start.tail()
	if startPath == "" {
		startPath = "/"
	}
	if r.Collapsed() {
		return wrap(base, startPath)
	}

	end := pointOf(r.EndContainer, r.EndOffset)
	var endPath string
	if hasStepPrefix(end.parent, start.parent) {
		rel := joinSteps(end.parent[len(start.parent):])
		if end.text != nil {
			endPath = rel + "/" + end.text.String() + ":" + strconv.Itoa(end.offset)
		} else {
			endPath = rel
		}
		if len(endPath) > 0 && endPath[0] == '/' {
			endPath = endPath[1:]
		}
	} else {
		endPath = joinSteps(end.parent) + end.tail()
	}
	return wrap(base, startPath+","+endPath)
}
