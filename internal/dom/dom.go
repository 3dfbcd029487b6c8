// Package dom provides ranges and small tree helpers over golang.org/x/net/html
// nodes. Character offsets are counted in runes.
package dom

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Range is a span between two boundary points in a document tree.
// A boundary point in a text node is a rune offset; in an element it is a
// child index.
type Range struct {
	StartContainer *html.Node
	StartOffset    int
	EndContainer   *html.Node
	EndOffset      int
}

// Point returns a collapsed range at node/offset.
func Point(node *html.Node, offset int) Range {
	return Range{StartContainer: node, StartOffset: offset, EndContainer: node, EndOffset: offset}
}

// Collapsed reports whether the start and end boundary points are equal.
func (r Range) Collapsed() bool {
	return r.StartContainer == r.EndContainer && r.StartOffset == r.EndOffset
}

// Start returns the range collapsed to its start.
func (r Range) Start() Range {
	return Point(r.StartContainer, r.StartOffset)
}

// End returns the range collapsed to its end.
func (r Range) End() Range {
	return Point(r.EndContainer, r.EndOffset)
}

// SelectContents returns a range spanning all children of n.
func SelectContents(n *html.Node) Range {
	if IsText(n) {
		return Range{StartContainer: n, EndContainer: n, EndOffset: RuneLen(n.Data)}
	}
	return Range{StartContainer: n, EndContainer: n, EndOffset: len(Children(n))}
}

// IsText reports whether n is a text node.
func IsText(n *html.Node) bool {
	return n != nil && n.Type == html.TextNode
}

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Children returns all child nodes of n.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// ElementChildren returns the element children of n.
func ElementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// TextChildren returns the text children of n.
func TextChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			out = append(out, c)
		}
	}
	return out
}

// SiblingIndex returns the position of n among its siblings of the same
// node type, or -1 when n has no parent.
func SiblingIndex(n *html.Node) int {
	if n == nil || n.Parent == nil {
		return -1
	}
	i := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c == n {
			return i
		}
		if c.Type == n.Type {
			i++
		}
	}
	return -1
}

// Document walks up from n to the document node.
func Document(n *html.Node) *html.Node {
	for n != nil && n.Type != html.DocumentNode {
		n = n.Parent
	}
	return n
}

// DocumentElement returns the root element (normally <html>) of doc.
func DocumentElement(doc *html.Node) *html.Node {
	if doc == nil {
		return nil
	}
	if doc.Type != html.DocumentNode {
		doc = Document(doc)
		if doc == nil {
			return nil
		}
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// FindElement returns the first element under n named tag.
func FindElement(n *html.Node, tag string) *html.Node {
	var found *html.Node
	Walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c.Type == html.ElementNode && c.Data == tag {
			found = c
			return false
		}
		return true
	})
	return found
}

// Body returns the <body> element of doc, or the document element when the
// document has no body.
func Body(doc *html.Node) *html.Node {
	root := DocumentElement(doc)
	if root == nil {
		return nil
	}
	if b := FindElement(root, "body"); b != nil {
		return b
	}
	return root
}

// Head returns the <head> element of doc, or nil.
func Head(doc *html.Node) *html.Node {
	root := DocumentElement(doc)
	if root == nil {
		return nil
	}
	return FindElement(root, "head")
}

// FindByID returns the element under n whose id attribute equals id.
func FindByID(n *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	var found *html.Node
	Walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c.Type == html.ElementNode && Attr(c, "id") == id {
			found = c
			return false
		}
		return true
	})
	return found
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's children.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// TextNodes returns every text node under n in document order.
func TextNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			out = append(out, c)
		}
		return true
	})
	return out
}

// TextContent concatenates the text under n.
func TextContent(n *html.Node) string {
	if IsText(n) {
		return n.Data
	}
	var sb strings.Builder
	for _, t := range TextNodes(n) {
		sb.WriteString(t.Data)
	}
	return sb.String()
}

// CountNodes returns the number of nodes in the subtree rooted at n.
func CountNodes(n *html.Node) int {
	count := 0
	Walk(n, func(*html.Node) bool {
		count++
		return true
	})
	return count
}

// Attr returns the value of the attribute key on n.
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries attribute key.
func HasAttr(n *html.Node, key string) bool {
	if n == nil {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets or replaces attribute key on n.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes attribute key from n.
func RemoveAttr(n *html.Node, key string) {
	n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool { return a.Key == key })
}

// HasClass reports whether the class attribute of n contains name.
func HasClass(n *html.Node, name string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

// RuneLen returns the length of s in runes.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// ByteOffset converts a rune offset in s to a byte offset, clamping to len(s).
func ByteOffset(s string, runes int) int {
	if runes <= 0 {
		return 0
	}
	i := 0
	for pos := range s {
		if i == runes {
			return pos
		}
		i++
	}
	return len(s)
}

// Slice returns the runes of s in [start, end).
func Slice(s string, start, end int) string {
	b := ByteOffset(s, start)
	e := ByteOffset(s, end)
	if e < b {
		return ""
	}
	return s[b:e]
}

// SplitText splits text node t at rune offset and inserts the remainder as a
// new sibling after t, which is returned.
func SplitText(t *html.Node, offset int) *html.Node {
	cut := ByteOffset(t.Data, offset)
	rest := &html.Node{Type: html.TextNode, Data: t.Data[cut:]}
	t.Data = t.Data[:cut]
	if t.Parent != nil {
		t.Parent.InsertBefore(rest, t.NextSibling)
	}
	return rest
}

// InsertAfter inserts n after ref under ref's parent.
func InsertAfter(ref, n *html.Node) {
	ref.Parent.InsertBefore(n, ref.NextSibling)
}

// Remove detaches n from its parent.
func Remove(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Text returns the text covered by r.
func Text(r Range) string {
	if r.StartContainer == nil || r.EndContainer == nil {
		return ""
	}
	if r.StartContainer == r.EndContainer && IsText(r.StartContainer) {
		return Slice(r.StartContainer.Data, r.StartOffset, r.EndOffset)
	}

	var sb strings.Builder
	started := false
	done := false
	startNode, endNode := r.StartContainer, r.EndContainer
	if !IsText(startNode) {
		if kids := Children(startNode); r.StartOffset < len(kids) {
			startNode = kids[r.StartOffset]
		}
	}
	Walk(Document(r.StartContainer), func(c *html.Node) bool {
		if done {
			return false
		}
		if c == startNode {
			started = true
		}
		if c == endNode && !IsText(c) {
			done = true
			return true
		}
		if !started || c.Type != html.TextNode {
			return true
		}
		from, to := 0, RuneLen(c.Data)
		if c == r.StartContainer {
			from = r.StartOffset
		}
		if c == r.EndContainer {
			to = r.EndOffset
			done = true
		}
		sb.WriteString(Slice(c.Data, from, to))
		return true
	})
	return sb.String()
}

// IndexFold returns the rune offset of the first case-insensitive match of
// substr in s at or after rune offset from, or -1.
func IndexFold(s, substr string, from int) int {
	hay := foldRunes(s)
	needle := foldRunes(substr)
	if len(needle) == 0 {
		return -1
	}
	for i := max(from, 0); i+len(needle) <= len(hay); i++ {
		match := true
		for j := range needle {
			if hay[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func foldRunes(s string) []rune {
	out := []rune(s)
	for i, r := range out {
		out[i] = unicode.ToLower(r)
	}
	return out
}
