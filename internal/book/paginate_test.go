package book

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yuanying/epubview/internal/event"
	"github.com/yuanying/epubview/internal/pagination"
	"github.com/yuanying/epubview/internal/state"
)

func TestBook_GeneratePagination(t *testing.T) {
	store := state.NewMemory()
	opts := testOptions()
	opts.Store = store
	p := createTestEPUB(t, testBookFiles(t))
	b := openBook(t, p, opts)
	rec := record(b.Emitter, event.BookPageListReady, event.BookPageChanged)

	items, err := b.GeneratePagination(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("GeneratePagination() failed: %v", err)
	}
	want := []pagination.Item{
		{Page: 1, CFI: ch1Page1, Content: "aaaa bbbb cccc dddd"},
		{Page: 2, CFI: ch1Page2, Content: "eeee"},
		{Page: 3, CFI: ch2Page1, Content: "ffff"},
	}
	if len(items) != len(want) {
		t.Fatalf("GeneratePagination() = %+v, want %d pages", items, len(want))
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("page %d = %+v, want %+v", i+1, items[i], want[i])
		}
	}
	if b.Pagination.Len() != 3 || b.Pagination.LastPage() != 3 {
		t.Errorf("Pagination has %d pages, last %d", b.Pagination.Len(), b.Pagination.LastPage())
	}
	if rec.count(event.BookPageListReady) != 1 {
		t.Errorf("book:pageListReady published %d times, want 1", rec.count(event.BookPageListReady))
	}
	if got := store.PageList(b.Key()); len(got) != 3 {
		t.Errorf("saved page list has %d pages, want 3", len(got))
	}

	ctx := context.Background()
	renderBook(t, b)
	if err := b.NextPage(ctx); err != nil {
		t.Fatalf("NextPage() failed: %v", err)
	}
	change, ok := rec.payload(event.BookPageChanged).(PageChange)
	if !ok || change.AnchorPage != 2 || change.Percentage != 0.5 {
		t.Errorf("book:pageChanged = %+v, want page 2 at 0.5", rec.payload(event.BookPageChanged))
	}

	tests := []struct {
		target  string
		wantPos int
		wantCFI string
	}{
		{target: "3", wantPos: 2, wantCFI: ch2Page1},
		{target: "0%", wantPos: 0, wantCFI: ch1Page1},
		{target: "50%", wantPos: 0, wantCFI: ch1Page2},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			ok, err := b.Goto(ctx, tt.target)
			if err != nil || !ok {
				t.Fatalf("Goto(%q) = %v, %v", tt.target, ok, err)
			}
			if b.SpinePos() != tt.wantPos || b.CurrentLocationCFI() != tt.wantCFI {
				t.Errorf("at %d %q, want %d %q", b.SpinePos(), b.CurrentLocationCFI(), tt.wantPos, tt.wantCFI)
			}
		})
	}

	results := b.SearchPages("EEEE")
	if len(results) != 1 || results[0].Page != 2 {
		t.Errorf("SearchPages() = %+v, want page 2", results)
	}

	cached := openBook(t, p, opts)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cached.Wait(waitCtx, FacetPageList); err != nil {
		t.Fatalf("Wait(pageList) failed: %v", err)
	}
	if got := cached.Pagination.Len(); got != 3 {
		t.Errorf("cached Pagination.Len() = %d, want 3", got)
	}
}

func TestBook_GeneratePagination_Spreads(t *testing.T) {
	opts := Options{Width: 160, Height: 26, Gap: 10, Spreads: true, MinSpreadWidth: 100}
	b := openBook(t, createTestEPUB(t, testBookFiles(t)), opts)

	items, err := b.GeneratePagination(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("GeneratePagination() failed: %v", err)
	}
	var cfis []string
	for _, item := range items {
		cfis = append(cfis, item.CFI)
	}
	want := []string{ch1Page1, ch1Page2, ch2Page1, ch2End}
	if strings.Join(cfis, " ") != strings.Join(want, " ") {
		t.Errorf("page CFIs = %v, want %v", cfis, want)
	}
	if last := items[len(items)-1]; last.Page != 4 || last.Content != "" {
		t.Errorf("padding page = %+v, want an empty page 4", last)
	}
}

func TestBook_GeneratePagination_Canceled(t *testing.T) {
	b := openBook(t, createTestEPUB(t, testBookFiles(t)), testOptions())
	rec := record(b.Emitter, event.BookPageListReady)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items, err := b.GeneratePagination(ctx, 0, 0)
	if !errors.Is(err, ErrPaginationCanceled) || !errors.Is(err, context.Canceled) {
		t.Errorf("GeneratePagination() error = %v, want ErrPaginationCanceled", err)
	}
	if items != nil || b.Pagination.Len() != 0 || rec.count(event.BookPageListReady) != 0 {
		t.Errorf("canceled pagination left %d items, %d indexed pages", len(items), b.Pagination.Len())
	}
}

func TestBook_LoadPagination(t *testing.T) {
	b := openBook(t, createTestEPUB(t, testBookFiles(t)), testOptions())
	b.LoadPagination([]pagination.Item{
		{Page: 1, CFI: ch1Page1},
		{Page: 2, CFI: ch2Page1},
	})
	if got := b.Pagination.PageFromCFI(ch1Page2); got != 1 {
		t.Errorf("PageFromCFI() = %d, want 1", got)
	}
	if got := len(b.PageList()); got != 2 {
		t.Errorf("len(PageList()) = %d, want 2", got)
	}
}

func TestBook_GenerateLocations(t *testing.T) {
	store := state.NewMemory()
	opts := testOptions()
	opts.Store = store
	opts.BreakChars = 10
	b := openBook(t, createTestEPUB(t, testBookFiles(t)), opts)
	rec := record(b.Emitter, event.BookLocationsReady)

	locs, err := b.GenerateLocations(context.Background())
	if err != nil {
		t.Fatalf("GenerateLocations() failed: %v", err)
	}
	if len(locs) == 0 || b.Locations.Len() != len(locs) {
		t.Fatalf("GenerateLocations() = %v, Locations.Len() = %d", locs, b.Locations.Len())
	}
	if rec.count(event.BookLocationsReady) != 1 {
		t.Errorf("book:locationsReady published %d times, want 1", rec.count(event.BookLocationsReady))
	}
	if got := store.Locations(b.Key()); len(got) != len(locs) {
		t.Errorf("saved %d locations, want %d", len(got), len(locs))
	}

	renderBook(t, b)
	if got := b.Locations.Current(); got < 0 {
		t.Errorf("Locations.Current() = %d, want the displayed location", got)
	}
}

func TestBook_Search(t *testing.T) {
	b := openBook(t, createTestEPUB(t, testBookFiles(t)), testOptions())

	tests := []struct {
		name    string
		query   string
		wantPos []int
	}{
		{name: "one chapter", query: "FFFF", wantPos: []int{2}},
		{name: "non-linear chapter", query: "append", wantPos: []int{1}},
		{name: "no match", query: "zzzz"},
		{name: "empty query", query: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := b.Search(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Search() failed: %v", err)
			}
			if len(results) != len(tt.wantPos) {
				t.Fatalf("Search() = %+v, want %d results", results, len(tt.wantPos))
			}
			for i, r := range results {
				if r.SpinePos != tt.wantPos[i] {
					t.Errorf("result %d at spine %d, want %d", i, r.SpinePos, tt.wantPos[i])
				}
				if r.Href != b.Spine()[r.SpinePos].URL || !strings.HasPrefix(r.CFI, "epubcfi(") {
					t.Errorf("result %d = %+v", i, r)
				}
			}
		})
	}
}
