package epub

import "slices"

// Package is the parsed package document.
type Package struct {
	Version  string      `json:"version"`
	BasePath string      `json:"basePath"`
	Metadata Metadata    `json:"metadata"`
	Manifest Manifest    `json:"manifest"`
	Spine    []SpineItem `json:"spine"`
	Guide    []GuideRef  `json:"guide,omitempty"`

	// ManifestOrder keeps manifest ids in document order.
	ManifestOrder []string `json:"manifestOrder"`

	SpineNodeIndex  int            `json:"spineNodeIndex"`
	SpineIndexByURL map[string]int `json:"spineIndexByURL"`

	NavPath   string `json:"navPath,omitempty"`
	TOCPath   string `json:"tocPath,omitempty"`
	CoverPath string `json:"coverPath,omitempty"`
}

// Manifest maps item ids to items.
type Manifest map[string]ManifestItem

// Metadata represents the metadata section of the package document
type Metadata struct {
	Title        string    `json:"bookTitle"`
	Creator      string    `json:"creator"`
	Creators     []Creator `json:"creators,omitempty"`
	Description  string    `json:"description,omitempty"`
	PubDate      string    `json:"pubdate,omitempty"`
	Publisher    string    `json:"publisher,omitempty"`
	Identifier   string    `json:"identifier,omitempty"`
	Language     string    `json:"language,omitempty"`
	Rights       string    `json:"rights,omitempty"`
	ModifiedDate string    `json:"modified_date,omitempty"`
	Subjects     []string  `json:"subjects,omitempty"`

	Layout      string `json:"layout,omitempty"`
	Orientation string `json:"orientation,omitempty"`
	Spread      string `json:"spread,omitempty"`
	Direction   string `json:"direction,omitempty"`

	CoverID string `json:"coverId,omitempty"` // EPUB 2.0 cover image manifest item ID (from meta name="cover")
}

// Creator represents a creator (author, editor, etc.) of the book
type Creator struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"` // e.g., "aut" for author, "edt" for editor
	Lang string `json:"lang,omitempty"`
}

// ManifestItem represents an item in the manifest. Href is as written in
// the package document; URL is its archive path.
type ManifestItem struct {
	ID         string   `json:"id"`
	Href       string   `json:"href"`
	URL        string   `json:"url"`
	MediaType  string   `json:"type"`
	Properties []string `json:"properties,omitempty"`
}

// HasProperty reports whether the item carries prop.
func (m ManifestItem) HasProperty(prop string) bool {
	return slices.Contains(m.Properties, prop)
}

// SpineItem is one entry of the reading order.
type SpineItem struct {
	ID                 string   `json:"id"`
	Href               string   `json:"href"`
	URL                string   `json:"url"`
	Index              int      `json:"index"`
	Linear             string   `json:"linear,omitempty"`
	Properties         []string `json:"properties,omitempty"`
	ManifestProperties []string `json:"manifestProperties,omitempty"`
	CFIBase            string   `json:"cfiBase"`
}

// IsLinear reports whether the item belongs to the primary reading order.
func (s SpineItem) IsLinear() bool {
	return s.Linear != "no"
}

// GuideRef is an EPUB 2 guide reference.
type GuideRef struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Href  string `json:"href"`
}

// TOCItem is one table of contents entry.
type TOCItem struct {
	ID       string    `json:"id,omitempty"`
	Label    string    `json:"label"`
	Href     string    `json:"href"`
	SpinePos int       `json:"spinePos"`
	CFI      string    `json:"cfi,omitempty"`
	Parent   string    `json:"parent,omitempty"`
	Subitems []TOCItem `json:"subitems,omitempty"`
}

// PageListItem is one authored page-list entry. Href is an archive path with
// an optional fragment; CFI is set when the fragment is itself a CFI.
type PageListItem struct {
	Href     string `json:"href"`
	Page     int    `json:"page"`
	Label    string `json:"pageLabel"`
	CFI      string `json:"cfi,omitempty"`
	SpinePos int    `json:"spinePos"`
}
