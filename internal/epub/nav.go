package epub

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func parseNavDoc(content []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse navigation document: %w", err)
	}
	return doc, nil
}

// findNav returns the first <nav> whose epub:type lists typ.
func findNav(doc *goquery.Document, typ string) *goquery.Selection {
	return doc.Find("nav").FilterFunction(func(_ int, s *goquery.Selection) bool {
		types, _ := s.Attr("epub:type")
		return slices.Contains(strings.Fields(types), typ)
	}).First()
}

// ParseNav reads the toc nav of an EPUB 3 navigation document stored at
// navPath. Entries without an id are numbered "nav-1", "nav-2", ... in
// document order.
func (p *Package) ParseNav(content []byte, navPath string) ([]TOCItem, error) {
	doc, err := parseNavDoc(content)
	if err != nil {
		return nil, err
	}
	nav := findNav(doc, "toc")
	if nav.Length() == 0 {
		return nil, nil
	}
	var n int
	return p.navList(nav.Find("ol").First(), navPath, "", &n), nil
}

func (p *Package) navList(ol *goquery.Selection, navPath, parent string, n *int) []TOCItem {
	var items []TOCItem
	ol.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		*n++
		id, _ := li.Attr("id")
		if id == "" {
			id = "nav-" + strconv.Itoa(*n)
		}

		link := li.ChildrenFiltered("a, span").First()
		if goquery.NodeName(link) == "span" {
			if a := link.Find("a").First(); a.Length() > 0 {
				link = a
			}
		}
		label := link.Text()
		if link.Length() == 0 {
			label = ownText(li)
		}
		href, _ := link.Attr("href")

		item := p.tocItem(id, label, href, navPath, parent)
		if sub := li.ChildrenFiltered("ol").First(); sub.Length() > 0 {
			item.Subitems = p.navList(sub, navPath, id, n)
		}
		items = append(items, item)
	})
	return items
}

// ownText joins the text nodes directly under s.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if c.Nodes[0].Type == html.TextNode {
			b.WriteString(c.Nodes[0].Data)
		}
	})
	return strings.TrimSpace(b.String())
}

// ParseNavPageList reads the page-list nav of an EPUB 3 navigation document.
// Entries whose label is not a page number are skipped.
func (p *Package) ParseNavPageList(content []byte, navPath string) ([]PageListItem, error) {
	doc, err := parseNavDoc(content)
	if err != nil {
		return nil, err
	}
	var items []PageListItem
	findNav(doc, "page-list").Find("a").Each(func(_ int, a *goquery.Selection) {
		label := strings.TrimSpace(a.Text())
		page, err := strconv.Atoi(label)
		if err != nil {
			return
		}
		href, _ := a.Attr("href")
		items = append(items, p.pageListItem(page, label, href, navPath))
	})
	return items, nil
}

// LoadTOC reads the table of contents, preferring the EPUB 3 navigation
// document over the NCX. A book with neither has no TOC and no error.
func (p *Package) LoadTOC(res Resources) ([]TOCItem, error) {
	if p.NavPath != "" {
		content, err := res.ReadFile(p.NavPath)
		switch {
		case err == nil:
			if toc, err := p.ParseNav(content, p.NavPath); err != nil || len(toc) > 0 {
				return toc, err
			}
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	if p.TOCPath != "" {
		content, err := res.ReadFile(p.TOCPath)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return p.ParseNCX(content, p.TOCPath)
	}
	return nil, nil
}

// LoadPageList reads the authored page-list from the navigation document or,
// failing that, the NCX pageList.
func (p *Package) LoadPageList(res Resources) ([]PageListItem, error) {
	if p.NavPath != "" {
		content, err := res.ReadFile(p.NavPath)
		switch {
		case err == nil:
			if pages, err := p.ParseNavPageList(content, p.NavPath); err != nil || len(pages) > 0 {
				return pages, err
			}
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	if p.TOCPath != "" {
		content, err := res.ReadFile(p.TOCPath)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return p.ParseNCXPageList(content, p.TOCPath)
	}
	return nil, nil
}
