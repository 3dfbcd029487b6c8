package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/language"

	"github.com/yuanying/epubview/internal/cfi"
)

var (
	ErrMissingManifest = errors.New("package document has no manifest")
	ErrMissingSpine    = errors.New("package document has no spine")
)

const (
	mediaTypeNCX = "application/x-dtbncx+xml"
)

// opfPackage represents the OPF XML structure
type opfPackage struct {
	XMLName  xml.Name     `xml:"package"`
	Version  string       `xml:"version,attr"`
	UniqueID string       `xml:"unique-identifier,attr"`
	Metadata *opfMetadata `xml:"metadata"`
	Manifest *opfManifest `xml:"manifest"`
	Spine    *opfSpine    `xml:"spine"`
	Guide    opfGuide     `xml:"guide"`
}

// opfMetadata represents the metadata section
type opfMetadata struct {
	Title       []string        `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator     []opfCreator    `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Language    []string        `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifier  []opfIdentifier `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Publisher   []string        `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Date        []string        `xml:"http://purl.org/dc/elements/1.1/ date"`
	Description []string        `xml:"http://purl.org/dc/elements/1.1/ description"`
	Subject     []string        `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Rights      []string        `xml:"http://purl.org/dc/elements/1.1/ rights"`
	Meta        []opfMeta       `xml:"meta"`
}

type opfCreator struct {
	Name string `xml:",chardata"`
	Role string `xml:"http://www.idpf.org/2007/opf role,attr"`
	Lang string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	ID   string `xml:"id,attr"`
}

type opfIdentifier struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr"`
}

// opfMeta represents a meta element (EPUB 2.0 and 3.0)
type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"` // EPUB 2.0: attribute value
	Value    string `xml:",chardata"`    // EPUB 3.0: element text content
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
}

func (m opfMeta) value() string {
	if v := strings.TrimSpace(m.Value); v != "" {
		return v
	}
	return m.Content
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	Toc       string       `xml:"toc,attr"`
	Direction string       `xml:"page-progression-direction,attr"`
	ItemRefs  []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	ID         string `xml:"id,attr"`
	IDRef      string `xml:"idref,attr"`
	Linear     string `xml:"linear,attr"`
	Properties string `xml:"properties,attr"`
}

type opfGuide struct {
	References []struct {
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
		Href  string `xml:"href,attr"`
	} `xml:"reference"`
}

// ParsePackage parses a package document. basePath is the directory holding
// it (e.g. "OEBPS/") and prefixes every manifest URL. A document without a
// manifest or spine is rejected; everything else degrades to empty values.
func ParsePackage(content []byte, basePath string) (*Package, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(content, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse package document: %w", err)
	}
	if pkg.Manifest == nil {
		return nil, ErrMissingManifest
	}
	if pkg.Spine == nil {
		return nil, ErrMissingSpine
	}
	if pkg.Metadata == nil {
		pkg.Metadata = &opfMetadata{}
	}

	p := &Package{
		Version:         pkg.Version,
		BasePath:        basePath,
		Manifest:        make(Manifest),
		SpineNodeIndex:  spineNodeIndex(content),
		SpineIndexByURL: make(map[string]int),
	}
	p.Metadata = parseMetadata(pkg.Metadata, pkg.UniqueID)
	p.Metadata.Direction = pkg.Spine.Direction

	for _, item := range pkg.Manifest.Items {
		p.Manifest[item.ID] = ManifestItem{
			ID:         item.ID,
			Href:       item.Href,
			URL:        joinPath(basePath, item.Href),
			MediaType:  item.MediaType,
			Properties: strings.Fields(item.Properties),
		}
		p.ManifestOrder = append(p.ManifestOrder, item.ID)
	}

	for i, ref := range pkg.Spine.ItemRefs {
		item := p.Manifest[ref.IDRef]
		p.Spine = append(p.Spine, SpineItem{
			ID:                 ref.IDRef,
			Href:               item.Href,
			URL:                item.URL,
			Index:              i,
			Linear:             ref.Linear,
			Properties:         strings.Fields(ref.Properties),
			ManifestProperties: item.Properties,
			CFIBase:            cfi.ChapterComponent(p.SpineNodeIndex, i, ref.ID),
		})
		if item.URL != "" {
			p.SpineIndexByURL[item.URL] = i
		}
	}

	for _, ref := range pkg.Guide.References {
		p.Guide = append(p.Guide, GuideRef{Type: ref.Type, Title: ref.Title, Href: ref.Href})
	}

	for _, id := range p.ManifestOrder {
		if item := p.Manifest[id]; item.HasProperty("nav") {
			p.NavPath = item.URL
			break
		}
	}
	p.TOCPath = p.findNCX(pkg.Spine.Toc)
	if c := p.DetectCover(); c != nil {
		p.CoverPath = c.URL
	}

	return p, nil
}

// findNCX prefers the spine's toc reference over media-type matching.
func (p *Package) findNCX(toc string) string {
	if item, ok := p.Manifest[toc]; ok {
		return item.URL
	}
	for _, id := range p.ManifestOrder {
		if item := p.Manifest[id]; item.MediaType == mediaTypeNCX {
			return item.URL
		}
	}
	return ""
}

// spineNodeIndex returns the position of <spine> among the children of
// <package>.
func spineNodeIndex(content []byte) int {
	dec := xml.NewDecoder(bytes.NewReader(content))
	depth, index := 0, 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				if t.Name.Local == "spine" {
					return index
				}
				index++
			}
		case xml.EndElement:
			depth--
		}
	}
}

func first(values []string) string {
	if len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

// PackageIdentifier returns the book identifier of a package document
// without building the rest of the package.
func PackageIdentifier(content []byte) (string, error) {
	var pkg struct {
		UniqueID string       `xml:"unique-identifier,attr"`
		Metadata *opfMetadata `xml:"metadata"`
	}
	if err := xml.Unmarshal(content, &pkg); err != nil {
		return "", fmt.Errorf("failed to parse package document: %w", err)
	}
	if pkg.Metadata == nil {
		return "", nil
	}
	return uniqueIdentifier(pkg.Metadata, pkg.UniqueID), nil
}

// uniqueIdentifier prefers the identifier named by the package's
// unique-identifier attribute.
func uniqueIdentifier(meta *opfMetadata, uniqueID string) string {
	for _, id := range meta.Identifier {
		if id.ID == uniqueID {
			return strings.TrimSpace(id.Value)
		}
	}
	if len(meta.Identifier) > 0 {
		return strings.TrimSpace(meta.Identifier[0].Value)
	}
	return ""
}

func parseMetadata(meta *opfMetadata, uniqueID string) Metadata {
	md := Metadata{
		Title:       first(meta.Title),
		Language:    first(meta.Language),
		Publisher:   first(meta.Publisher),
		PubDate:     first(meta.Date),
		Description: first(meta.Description),
		Rights:      first(meta.Rights),
		Subjects:    meta.Subject,
	}
	if tag, err := language.Parse(md.Language); err == nil {
		md.Language = tag.String()
	}

	md.Identifier = uniqueIdentifier(meta, uniqueID)

	for _, creator := range meta.Creator {
		md.Creators = append(md.Creators, Creator{
			Name: strings.TrimSpace(creator.Name),
			Role: creator.Role,
			Lang: creator.Lang,
		})
	}
	processCreatorRoles(&md, meta)
	if len(md.Creators) > 0 {
		md.Creator = md.Creators[0].Name
	}

	for _, m := range meta.Meta {
		switch {
		case m.Name == "cover" && m.Content != "" && md.CoverID == "":
			md.CoverID = m.Content
		case m.Property == "dcterms:modified":
			md.ModifiedDate = m.value()
		case m.Property == "rendition:layout":
			md.Layout = m.value()
		case m.Property == "rendition:orientation":
			md.Orientation = m.value()
		case m.Property == "rendition:spread":
			md.Spread = m.value()
		}
	}

	return md
}

// processCreatorRoles applies EPUB 3.0 role refinements to creators.
func processCreatorRoles(md *Metadata, meta *opfMetadata) {
	creatorMap := make(map[string]int)
	for i, creator := range meta.Creator {
		if creator.ID != "" {
			creatorMap["#"+creator.ID] = i
		}
	}

	for _, m := range meta.Meta {
		if m.Property == "role" && m.Refines != "" {
			if idx, ok := creatorMap[m.Refines]; ok {
				md.Creators[idx].Role = m.value()
			}
		}
	}
}

var rtlScripts = map[string]bool{
	"Adlm": true, "Arab": true, "Hebr": true, "Nkoo": true, "Rohg": true, "Syrc": true, "Thaa": true,
}

// EffectiveDirection is the declared page progression direction. When the
// package leaves it to the reading system, it follows the script of the
// book's language.
func (m Metadata) EffectiveDirection() string {
	if m.Direction == "ltr" || m.Direction == "rtl" {
		return m.Direction
	}
	tag, err := language.Parse(m.Language)
	if err != nil {
		return "ltr"
	}
	if script, conf := tag.Script(); conf != language.No && rtlScripts[script.String()] {
		return "rtl"
	}
	return "ltr"
}

// joinPath resolves a manifest href against the package directory.
func joinPath(base, rel string) string {
	rel, fragment := splitFragment(rel)
	if u, err := url.PathUnescape(rel); err == nil {
		rel = u
	}
	joined := path.Join(base, rel)
	if fragment != "" {
		joined += "#" + fragment
	}
	return joined
}
