package cfi

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/yuanying/epubview/internal/dom"
)

// FindParent resolves the element steps of c against doc and returns the
// element that contains the target. Steps carrying an id are looked up by id
// first, then by position. It returns nil when a step cannot be resolved.
func FindParent(c CFI, doc *html.Node) *html.Node {
	root := dom.DocumentElement(doc)
	if root == nil || !c.Valid() {
		return nil
	}
	steps := elementSteps(c.Steps)
	if len(steps) == 0 {
		return dom.Body(doc)
	}

	el := root
	for _, s := range steps {
		if s.ID != "" {
			if found := dom.FindByID(root, s.ID); found != nil {
				el = found
				continue
			}
		}
		kids := dom.ElementChildren(el)
		if s.Index < 0 || s.Index >= len(kids) {
			return nil
		}
		el = kids[s.Index]
	}
	return el
}

// XPath returns the structural path expression equivalent to c's steps,
// evaluated from the document node.
func XPath(c CFI) string {
	var sb strings.Builder
	sb.WriteString("/*")
	for _, s := range c.Steps {
		switch {
		case s.Type == TextStep:
			sb.WriteString("/text()[" + strconv.Itoa(s.Index+1) + "]")
		case s.ID != "":
			sb.WriteString("/*[position()=" + strconv.Itoa(s.Index+1) + " and @id='" + s.ID + "']")
		default:
			sb.WriteString("/*[" + strconv.Itoa(s.Index+1) + "]")
		}
	}
	return sb.String()
}

// Selector returns the CSS selector for c's element steps.
func Selector(c CFI) string {
	parts := []string{"html"}
	for _, s := range elementSteps(c.Steps) {
		if s.ID != "" {
			parts = append(parts, "#"+s.ID)
			continue
		}
		parts = append(parts, "*:nth-child("+strconv.Itoa(s.Index+1)+")")
	}
	return strings.Join(parts, ">")
}

// RangeFromCFI resolves c to a range in doc. It evaluates the structural
// XPath first and falls back to a selector query when that fails. A
// character offset past the end of the text node is clamped. It returns nil
// when the target cannot be found.
func RangeFromCFI(c CFI, doc *html.Node, log *zap.Logger) *dom.Range {
	if log == nil {
		log = zap.NewNop()
	}
	if !c.Valid() || doc == nil {
		return nil
	}

	target := evaluateXPath(c, doc)
	if target == nil {
		target = evaluateSelector(c, doc)
	}
	if target == nil {
		log.Debug("cfi not found in document", zap.String("cfi", c.Str))
		return nil
	}

	if !dom.IsText(target) {
		r := dom.SelectContents(target)
		return &r
	}

	length := dom.RuneLen(target.Data)
	offset := max(c.CharacterOffset, 0)
	if offset > length {
		log.Warn("cfi offset past end of text node, clamping",
			zap.String("cfi", c.Str), zap.Int("offset", offset), zap.Int("length", length))
		offset = length
	}
	return &dom.Range{StartContainer: target, StartOffset: offset, EndContainer: target, EndOffset: length}
}

func evaluateXPath(c CFI, doc *html.Node) *html.Node {
	n, err := htmlquery.Query(doc, XPath(c))
	if err != nil {
		return nil
	}
	return n
}

func evaluateSelector(c CFI, doc *html.Node) *html.Node {
	sel := goquery.NewDocumentFromNode(doc).Find(Selector(c))
	if sel.Length() == 0 {
		return nil
	}
	el := sel.Get(0)

	last, ok := c.Last()
	if !ok || last.Type != TextStep {
		return el
	}
	texts := dom.TextChildren(el)
	if last.Index >= len(texts) {
		return nil
	}
	return texts[last.Index]
}
