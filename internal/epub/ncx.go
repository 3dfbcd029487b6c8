package epub

import (
	"encoding/xml"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/yuanying/epubview/internal/cfi"
)

// ncxDoc is the EPUB 2 navigation control document.
type ncxDoc struct {
	DocTitle string `xml:"docTitle>text"`
	NavMap   struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
	PageList struct {
		Targets []ncxPageTarget `xml:"pageTarget"`
	} `xml:"pageList"`
}

type ncxNavPoint struct {
	ID       string        `xml:"id,attr"`
	Label    string        `xml:"navLabel>text"`
	Content  ncxContent    `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxPageTarget struct {
	ID      string     `xml:"id,attr"`
	Value   string     `xml:"value,attr"`
	Type    string     `xml:"type,attr"`
	Label   string     `xml:"navLabel>text"`
	Content ncxContent `xml:"content"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

func parseNCXDoc(content []byte) (*ncxDoc, error) {
	var doc ncxDoc
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX: %w", err)
	}
	return &doc, nil
}

// ParseNCX reads the table of contents of an NCX document stored at ncxPath.
func (p *Package) ParseNCX(content []byte, ncxPath string) ([]TOCItem, error) {
	doc, err := parseNCXDoc(content)
	if err != nil {
		return nil, err
	}
	return p.ncxItems(doc.NavMap.NavPoints, ncxPath, ""), nil
}

func (p *Package) ncxItems(points []ncxNavPoint, ncxPath, parent string) []TOCItem {
	var items []TOCItem
	for _, np := range points {
		item := p.tocItem(np.ID, np.Label, np.Content.Src, ncxPath, parent)
		item.Subitems = p.ncxItems(np.Children, ncxPath, np.ID)
		items = append(items, item)
	}
	return items
}

// ParseNCXPageList reads the pageList of an NCX document. Targets whose
// value and label are not page numbers are skipped.
func (p *Package) ParseNCXPageList(content []byte, ncxPath string) ([]PageListItem, error) {
	doc, err := parseNCXDoc(content)
	if err != nil {
		return nil, err
	}
	var items []PageListItem
	for _, pt := range doc.PageList.Targets {
		label := strings.TrimSpace(pt.Label)
		page, err := strconv.Atoi(strings.TrimSpace(pt.Value))
		if err != nil {
			if page, err = strconv.Atoi(label); err != nil {
				continue
			}
		}
		items = append(items, p.pageListItem(page, label, pt.Content.Src, ncxPath))
	}
	return items, nil
}

// resolve turns an href found in the document at docPath into an archive
// path (fragment kept) and the spine position of its document, or -1.
func (p *Package) resolve(docPath, href string) (string, int) {
	rel, fragment := splitFragment(href)
	target := docPath
	if rel != "" {
		target = joinPath(path.Dir(docPath), rel)
	}
	pos, ok := p.SpineIndexByURL[target]
	if !ok {
		pos = -1
	}
	if fragment != "" {
		target += "#" + fragment
	}
	return target, pos
}

func (p *Package) tocItem(id, label, href, docPath, parent string) TOCItem {
	item := TOCItem{
		ID:       id,
		Label:    strings.TrimSpace(label),
		Parent:   parent,
		SpinePos: -1,
	}
	if href == "" {
		return item
	}
	item.Href, item.SpinePos = p.resolve(docPath, href)
	if item.SpinePos >= 0 {
		item.CFI = cfi.ChapterStart(p.Spine[item.SpinePos].CFIBase)
	}
	return item
}

func (p *Package) pageListItem(page int, label, href, docPath string) PageListItem {
	item := PageListItem{Page: page, Label: label}
	item.Href, item.SpinePos = p.resolve(docPath, href)
	if _, fragment := splitFragment(href); cfi.IsCFI(fragment) {
		item.CFI = fragment
	}
	return item
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	parts := strings.SplitN(src, "#", 2)
	path = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return path, fragment
}
