package epub

import (
	"path"
	"strings"
)

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	ManifestID      string
	URL             string
	MediaType       string
	DetectionMethod string // "properties", "meta", "guide", "filename"
}

func coverFrom(item ManifestItem, method string) *CoverInfo {
	return &CoverInfo{
		ManifestID:      item.ID,
		URL:             item.URL,
		MediaType:       item.MediaType,
		DetectionMethod: method,
	}
}

// DetectCover finds the cover image. Methods are tried in priority order:
//  1. properties="cover-image" (EPUB 3.0)
//  2. meta name="cover" (EPUB 2.0)
//  3. guide type="cover" matched to an image manifest item
//  4. an image whose basename contains "cover" (SVG excluded)
//
// Returns nil if no cover image is found.
func (p *Package) DetectCover() *CoverInfo {
	for _, id := range p.ManifestOrder {
		if item := p.Manifest[id]; item.HasProperty("cover-image") {
			return coverFrom(item, "properties")
		}
	}

	if item, ok := p.Manifest[p.Metadata.CoverID]; ok && p.Metadata.CoverID != "" {
		return coverFrom(item, "meta")
	}

	for _, ref := range p.Guide {
		if ref.Type != "cover" {
			continue
		}
		href, _ := splitFragment(ref.Href)
		if item, ok := p.imageWhere(func(item ManifestItem) bool { return item.Href == href }); ok {
			return coverFrom(item, "guide")
		}
		// a guide entry pointing at a cover page falls through to filenames
	}

	if item, ok := p.imageWhere(func(item ManifestItem) bool {
		return strings.Contains(strings.ToLower(path.Base(item.Href)), "cover")
	}); ok {
		return coverFrom(item, "filename")
	}

	return nil
}

// imageWhere returns the first raster image item in manifest order that
// satisfies match.
func (p *Package) imageWhere(match func(ManifestItem) bool) (ManifestItem, bool) {
	for _, id := range p.ManifestOrder {
		item := p.Manifest[id]
		if isImageMediaType(item.MediaType) && match(item) {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// isImageMediaType checks if a media type is a raster image (SVG excluded).
func isImageMediaType(mediaType string) bool {
	if mediaType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
