// Package pagination maps between page numbers, CFIs and percentages for an
// authored page-list or a generated full-book page map.
package pagination

import (
	"math"
	"sort"
	"sync/atomic"

	"github.com/yuanying/epubview/internal/cfi"
	"github.com/yuanying/epubview/internal/sorted"
)

// Item is one page of a page-list.
type Item struct {
	Page      int    `json:"page"`
	PageLabel string `json:"pageLabel,omitempty"`
	CFI       string `json:"cfi"`
	Href      string `json:"href,omitempty"`
	Content   string `json:"content,omitempty"`
}

type snapshot struct {
	pages     []int
	locations []string
	parsed    []cfi.CFI
	items     []Item

	firstPage  int
	lastPage   int
	totalPages int
}

// Pagination is a page index. Process replaces the whole index, so readers
// always see a complete snapshot.
type Pagination struct {
	snap atomic.Pointer[snapshot]
}

// New returns a Pagination built from items.
func New(items []Item) *Pagination {
	p := &Pagination{}
	p.Process(items)
	return p
}

// Process rebuilds the index from items. Items without a CFI are skipped and
// the rest are ordered by CFI.
func (p *Pagination) Process(items []Item) {
	type entry struct {
		item   Item
		parsed cfi.CFI
	}
	var entries []entry
	for _, item := range items {
		if item.CFI == "" {
			continue
		}
		parsed := cfi.Parse(item.CFI)
		if !parsed.Valid() {
			continue
		}
		entries = append(entries, entry{item: item, parsed: parsed})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return cfi.Compare(entries[i].parsed, entries[j].parsed) < 0
	})

	s := &snapshot{}
	for _, e := range entries {
		s.items = append(s.items, e.item)
		s.parsed = append(s.parsed, e.parsed)
		s.pages = append(s.pages, e.item.Page)
		s.locations = append(s.locations, e.item.CFI)
	}
	if len(s.pages) > 0 {
		s.firstPage = s.pages[0]
		s.lastPage = s.pages[len(s.pages)-1]
		s.totalPages = s.lastPage - s.firstPage
	}
	p.snap.Store(s)
}

func (p *Pagination) load() *snapshot {
	if s := p.snap.Load(); s != nil {
		return s
	}
	return &snapshot{}
}

// Len returns the number of indexed pages.
func (p *Pagination) Len() int { return len(p.load().pages) }

// Pages returns the authored page numbers in location order.
func (p *Pagination) Pages() []int { return append([]int(nil), p.load().pages...) }

// Locations returns the CFIs parallel to Pages.
func (p *Pagination) Locations() []string { return append([]string(nil), p.load().locations...) }

// Items returns the indexed items.
func (p *Pagination) Items() []Item { return append([]Item(nil), p.load().items...) }

// FirstPage returns the first authored page number.
func (p *Pagination) FirstPage() int { return p.load().firstPage }

// LastPage returns the last authored page number.
func (p *Pagination) LastPage() int { return p.load().lastPage }

// TotalPages is LastPage - FirstPage.
func (p *Pagination) TotalPages() int { return p.load().totalPages }

// PageFromCFI returns the page holding location c: the exact match when
// indexed, otherwise the page of the nearest preceding location, or the first
// page when c precedes every location. The index is never extended. It
// returns -1 for an empty index.
func (p *Pagination) PageFromCFI(c string) int {
	s := p.load()
	if len(s.pages) == 0 {
		return -1
	}
	parsed := cfi.Parse(c)
	if i := sorted.IndexOf(parsed, s.parsed, cfi.Compare); i != -1 {
		return s.pages[i]
	}
	i := sorted.LocationOf(parsed, s.parsed, cfi.Compare)
	if i-1 >= 0 {
		return s.pages[i-1]
	}
	return s.pages[0]
}

// CFIFromPage returns the location of page pg, or "" when it is not indexed.
func (p *Pagination) CFIFromPage(pg int) string {
	s := p.load()
	for i, page := range s.pages {
		if page == pg {
			return s.locations[i]
		}
	}
	return ""
}

// normalize maps 0-100 percentages onto 0-1.
func normalize(pct float64) float64 {
	if pct > 1 {
		return pct / 100
	}
	return pct
}

// PageFromPercentage returns the page at pct of the book. Values above 1 are
// read on a 0-100 scale.
func (p *Pagination) PageFromPercentage(pct float64) int {
	s := p.load()
	return int(math.Round(float64(s.totalPages)*normalize(pct))) + s.firstPage
}

// CFIFromPercentage returns the location of the page at pct.
func (p *Pagination) CFIFromPercentage(pct float64) string {
	return p.CFIFromPage(p.PageFromPercentage(pct))
}

// PercentageFromPage returns pg's position in the book, rounded to three
// decimals.
func (p *Pagination) PercentageFromPage(pg int) float64 {
	s := p.load()
	if s.totalPages == 0 {
		return 0
	}
	pct := float64(pg-s.firstPage) / float64(s.totalPages)
	return math.Round(pct*1000) / 1000
}

// PercentageFromCFI returns the position of the page holding c.
func (p *Pagination) PercentageFromCFI(c string) float64 {
	pg := p.PageFromCFI(c)
	if pg < 0 {
		return 0
	}
	return p.PercentageFromPage(pg)
}
