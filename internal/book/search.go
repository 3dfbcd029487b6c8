package book

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yuanying/epubview/internal/epub"
	"github.com/yuanying/epubview/internal/pagination"
)

// SearchResult is a match found by Search.
type SearchResult struct {
	epub.Match
	SpinePos int    `json:"spinePos"`
	Href     string `json:"href"`
}

// Search finds query in every spine item, in reading order. Chapters are
// loaded one at a time.
func (b *Book) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if b.pkg == nil {
		return nil, ErrNotOpen
	}
	if query == "" {
		return nil, nil
	}
	var results []SearchResult
	for pos, item := range b.pkg.Spine {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ch := epub.NewChapter(item, b.resources(), b.log)
		matches, err := ch.Find(query)
		ch.Unload()
		if err != nil {
			return nil, fmt.Errorf("failed to search chapter %d: %w", pos, err)
		}
		for _, m := range matches {
			results = append(results, SearchResult{Match: m, SpinePos: pos, Href: item.URL})
		}
	}
	b.log.Debug("Searched book", zap.String("query", query), zap.Int("matches", len(results)))
	return results, nil
}

// SearchPages finds query in the text of generated pages.
func (b *Book) SearchPages(query string) []pagination.Result {
	return pagination.Search(b.PageList(), query)
}
