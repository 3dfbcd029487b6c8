package pagination

import (
	"github.com/yuanying/epubview/internal/dom"
)

// searchBuffer is the number of characters kept on each side of a match.
const searchBuffer = 50

// Result is a page whose content matched a search.
type Result struct {
	Item
	ShortResult string `json:"shortResult"`
}

// Search returns, for every item whose content contains query (case
// insensitive), the item and a short excerpt around the first match.
func Search(items []Item, query string) []Result {
	if query == "" {
		return nil
	}
	var results []Result
	for _, item := range items {
		if item.Content == "" {
			continue
		}
		index := dom.IndexFold(item.Content, query, 0)
		if index < 0 {
			continue
		}
		length := dom.RuneLen(item.Content)
		start := max(index-searchBuffer, 0)
		end := min(index+searchBuffer, length-1)
		results = append(results, Result{
			Item:        item,
			ShortResult: "..." + dom.Slice(item.Content, start, end) + "...",
		})
	}
	return results
}
