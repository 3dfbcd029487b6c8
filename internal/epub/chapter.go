package epub

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yuanying/epubview/internal/cfi"
	"github.com/yuanying/epubview/internal/dom"
	"github.com/yuanying/epubview/internal/event"
)

// ExcerptLimit is the width of the context returned with a search match.
const ExcerptLimit = 150

// Chapter is a spine document loaded from Resources.
type Chapter struct {
	SpineItem

	res  Resources
	log  *zap.Logger
	doc  *html.Node
	urls []string

	beforeRender event.Hooks[*Chapter]
}

// Match is one search hit inside a chapter.
type Match struct {
	CFI     string `json:"cfi"`
	Excerpt string `json:"excerpt"`
}

// NewChapter returns an unloaded chapter for item.
func NewChapter(item SpineItem, res Resources, log *zap.Logger) *Chapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Chapter{SpineItem: item, res: res, log: log}
}

// BeforeRender returns the hooks run by Render on the loaded document.
func (c *Chapter) BeforeRender() *event.Hooks[*Chapter] {
	return &c.beforeRender
}

// Load reads and parses the chapter. A loaded chapter is returned as is.
func (c *Chapter) Load() (*html.Node, error) {
	if c.doc != nil {
		return c.doc, nil
	}
	content, err := c.res.ReadFile(c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load chapter %s: %w", c.URL, err)
	}
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse chapter %s: %w", c.URL, err)
	}
	c.doc = doc
	return doc, nil
}

// Document returns the loaded document or nil.
func (c *Chapter) Document() *html.Node {
	return c.doc
}

// Render loads the chapter, points its <base> at the chapter URL, runs the
// before-render hooks and serializes the result.
func (c *Chapter) Render(ctx context.Context) (string, error) {
	doc, err := c.Load()
	if err != nil {
		return "", err
	}
	setBase(doc, c.URL)
	if err := c.beforeRender.Trigger(ctx, c); err != nil {
		return "", fmt.Errorf("failed to prepare chapter %s: %w", c.URL, err)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to serialize chapter %s: %w", c.URL, err)
	}
	return buf.String(), nil
}

func setBase(doc *html.Node, href string) {
	head := dom.Head(doc)
	if head == nil {
		return
	}
	for n := head.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.DataAtom == atom.Base {
			dom.SetAttr(n, "href", href)
			return
		}
	}
	base := &html.Node{
		Type:     html.ElementNode,
		Data:     "base",
		DataAtom: atom.Base,
		Attr:     []html.Attribute{{Key: "href", Val: href}},
	}
	head.InsertBefore(base, head.FirstChild)
}

// assetAttrs lists the references rewritten by ReplaceAssets.
var assetAttrs = []struct{ selector, attr string }{
	{"link[href]", "href"},
	{"img[src]", "src"},
	{"image", "xlink:href"},
	{"image", "href"},
	{"video[src]", "src"},
	{"audio[src]", "src"},
	{"source[src]", "src"},
}

// ReplaceAssets is a before-render hook that points stylesheet, image and
// media references at URLs granted by the chapter's Resources. The URLs are
// revoked by Unload. Missing assets are left untouched.
func ReplaceAssets(_ context.Context, c *Chapter) error {
	if c.doc == nil {
		return nil
	}
	doc := goquery.NewDocumentFromNode(c.doc)
	baseDir := path.Dir(c.URL)
	for _, a := range assetAttrs {
		doc.Find(a.selector).Each(func(_ int, s *goquery.Selection) {
			ref, ok := s.Attr(a.attr)
			if !ok || ref == "" || isExternal(ref) {
				return
			}
			u, err := c.res.URL(resolvePath(baseDir, ref))
			if err != nil {
				c.log.Warn("Asset not found", zap.String("chapter", c.URL), zap.String("ref", ref), zap.Error(err))
				return
			}
			c.urls = append(c.urls, u)
			s.SetAttr(a.attr, u)
		})
	}
	return nil
}

func isExternal(ref string) bool {
	return strings.Contains(ref, "://") ||
		strings.HasPrefix(ref, "data:") ||
		strings.HasPrefix(ref, "blob:") ||
		strings.HasPrefix(ref, "#")
}

// Unload drops the document and revokes every URL granted for it.
func (c *Chapter) Unload() {
	for _, u := range c.urls {
		c.res.RevokeURL(u)
	}
	c.urls = nil
	c.doc = nil
}

// CFIFromRange returns the CFI of r in this chapter.
func (c *Chapter) CFIFromRange(r dom.Range) string {
	return cfi.GenerateFromRange(r, c.CFIBase)
}

// CFIFromElement returns the CFI of the start of el in this chapter.
func (c *Chapter) CFIFromElement(el *html.Node) string {
	return cfi.GenerateFromElement(el, c.CFIBase)
}

// Find returns every case-insensitive occurrence of query in the chapter's
// text. Excerpts are the whole text node when it is short, otherwise a window
// of ExcerptLimit characters around the match.
func (c *Chapter) Find(query string) ([]Match, error) {
	doc, err := c.Load()
	if err != nil {
		return nil, err
	}
	root := dom.Body(doc)
	if root == nil {
		root = doc
	}
	qlen := dom.RuneLen(query)
	var matches []Match
	for _, node := range dom.TextNodes(root) {
		if strings.TrimSpace(node.Data) == "" {
			continue
		}
		length := dom.RuneLen(node.Data)
		for pos := dom.IndexFold(node.Data, query, 0); pos >= 0; pos = dom.IndexFold(node.Data, query, pos+1) {
			r := dom.Range{StartContainer: node, StartOffset: pos, EndContainer: node, EndOffset: pos + qlen}
			excerpt := node.Data
			if length >= ExcerptLimit {
				excerpt = "..." + dom.Slice(node.Data, max(pos-ExcerptLimit/2, 0), pos+ExcerptLimit/2) + "..."
			}
			matches = append(matches, Match{CFI: c.CFIFromRange(r), Excerpt: excerpt})
		}
	}
	return matches, nil
}

// resolvePath resolves a relative path against a base directory
// baseDir: base directory (e.g., "text" for "text/chapter1.xhtml")
// relPath: relative path (e.g., "../images/photo.jpg")
// returns: resolved path (e.g., "images/photo.jpg")
func resolvePath(baseDir, relPath string) string {
	relPath, _ = splitFragment(relPath)
	return path.Join(baseDir, relPath)
}
