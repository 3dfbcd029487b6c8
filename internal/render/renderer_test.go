package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/yuanying/epubview/internal/dom"
	"github.com/yuanying/epubview/internal/epub"
	"github.com/yuanying/epubview/internal/event"
	"github.com/yuanying/epubview/internal/layout"
)

const testContainer = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`

type testChapter struct {
	head  string
	body  string
	props string
	// Attributes written into the <html> and <body> tags.
	htmlAttrs string
	bodyAttrs string
}

// loadChapters builds a book whose spine holds chapters in order. A chapter
// with an empty body is listed in the spine but missing from the archive.
func loadChapters(t *testing.T, chapters ...testChapter) []*epub.Chapter {
	t.Helper()
	fsys := fstest.MapFS{"META-INF/container.xml": {Data: []byte(testContainer)}}
	var manifest, spine strings.Builder
	for i, ch := range chapters {
		name := fmt.Sprintf("ch%d.xhtml", i+1)
		fmt.Fprintf(&manifest, `<item id="c%d" href="%s" media-type="application/xhtml+xml"/>`, i+1, name)
		fmt.Fprintf(&spine, `<itemref idref="c%d" properties="%s"/>`, i+1, ch.props)
		if ch.body != "" {
			src := "<html" + ch.htmlAttrs + "><head>" + ch.head + "</head><body" + ch.bodyAttrs + ">" + ch.body + "</body></html>"
			fsys[name] = &fstest.MapFile{Data: []byte(src)}
		}
	}
	fsys["content.opf"] = &fstest.MapFile{Data: []byte(`<package xmlns="http://www.idpf.org/2007/opf" version="3.0">` +
		`<metadata/><manifest>` + manifest.String() + `</manifest><spine>` + spine.String() + `</spine></package>`)}

	a, err := epub.OpenFS(fsys)
	if err != nil {
		t.Fatalf("OpenFS() failed: %v", err)
	}
	opf, err := a.ReadFile(a.PackagePath())
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	pkg, err := epub.ParsePackage(opf, a.BasePath())
	if err != nil {
		t.Fatalf("ParsePackage() failed: %v", err)
	}
	var out []*epub.Chapter
	for _, item := range pkg.Spine {
		out = append(out, epub.NewChapter(item, a, nil))
	}
	return out
}

const twoColumns = `<p>aaaa bbbb cccc dddd eeee</p>`

func display(t *testing.T, r *Renderer, ch *epub.Chapter) {
	t.Helper()
	if err := r.DisplayChapter(context.Background(), ch, layout.DefaultSettings()); err != nil {
		t.Fatalf("DisplayChapter() failed: %v", err)
	}
}

func TestRenderer_PageMap(t *testing.T) {
	chapters := loadChapters(t, testChapter{body: twoColumns})
	r := New(Options{Width: 70, Height: 26, Gap: 10})
	display(t, r, chapters[0])

	want := []Page{
		{Start: "epubcfi(/6/2!/4/2/1:0)", End: "epubcfi(/6/2!/4/2/1:19)", Text: "aaaa bbbb cccc dddd"},
		{Start: "epubcfi(/6/2!/4/2/1:20)", End: "epubcfi(/6/2!/4/2/1:24)", Text: "eeee"},
	}
	got := r.PageMap()
	if len(got) != len(want) {
		t.Fatalf("PageMap() = %+v, want %d pages", got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PageMap()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if r.DisplayedPages() != 2 || r.ChapterPos() != 1 {
		t.Errorf("DisplayedPages() = %d, ChapterPos() = %d", r.DisplayedPages(), r.ChapterPos())
	}
	if r.Layout() != layout.MethodReflowable || r.State() != StateIdle {
		t.Errorf("Layout() = %s, State() = %s", r.Layout(), r.State())
	}
}

func TestRenderer_EmptyChapter(t *testing.T) {
	chapters := loadChapters(t, testChapter{body: `<div></div>`})
	r := New(Options{Width: 70, Height: 26, Gap: 10})
	display(t, r, chapters[0])

	got := r.PageMap()
	if len(got) != 1 {
		t.Fatalf("PageMap() = %+v, want one page", got)
	}
	if got[0].Start != "epubcfi(/6/2!/4/2)" || got[0].End != "epubcfi(/6/2!/4)" {
		t.Errorf("PageMap()[0] = %+v", got[0])
	}
}

func TestRenderer_Page(t *testing.T) {
	chapters := loadChapters(t, testChapter{body: twoColumns})
	r := New(Options{Width: 70, Height: 26, Gap: 10})

	var locations []string
	r.Subscribe(event.RendererLocationChanged, func(p any) { locations = append(locations, p.(string)) })
	display(t, r, chapters[0])

	ctx := context.Background()
	tests := []struct {
		name   string
		move   func() (bool, error)
		wantOK bool
		wantAt int
	}{
		{name: "next", move: func() (bool, error) { return r.NextPage(ctx) }, wantOK: true, wantAt: 2},
		{name: "next past end", move: func() (bool, error) { return r.NextPage(ctx) }, wantOK: false, wantAt: 2},
		{name: "prev", move: func() (bool, error) { return r.PrevPage(ctx) }, wantOK: true, wantAt: 1},
		{name: "prev past start", move: func() (bool, error) { return r.PrevPage(ctx) }, wantOK: false, wantAt: 1},
		{name: "zero", move: func() (bool, error) { return r.Page(ctx, 0) }, wantOK: false, wantAt: 1},
		{name: "last", move: func() (bool, error) { return r.LastPage(ctx) }, wantOK: true, wantAt: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.move()
			if err != nil {
				t.Fatalf("move failed: %v", err)
			}
			if ok != tt.wantOK || r.ChapterPos() != tt.wantAt {
				t.Errorf("ok = %v, ChapterPos() = %d, want %v, %d", ok, r.ChapterPos(), tt.wantOK, tt.wantAt)
			}
		})
	}

	if r.Surface().ScrollLeft() != 80 {
		t.Errorf("ScrollLeft() = %d, want 80", r.Surface().ScrollLeft())
	}
	if got := r.VisibleRange(); got.Start != "epubcfi(/6/2!/4/2/1:20)" || got.End != "epubcfi(/6/2!/4/2/1:24)" {
		t.Errorf("VisibleRange() = %+v", got)
	}
	wantLocations := []string{
		"epubcfi(/6/2!/4/2/1:0)", "epubcfi(/6/2!/4/2/1:20)", "epubcfi(/6/2!/4/2/1:0)", "epubcfi(/6/2!/4/2/1:20)",
	}
	if strings.Join(locations, " ") != strings.Join(wantLocations, " ") {
		t.Errorf("published locations = %v, want %v", locations, wantLocations)
	}
}

func TestRenderer_RightToLeft(t *testing.T) {
	chapters := loadChapters(t, testChapter{body: twoColumns})
	r := New(Options{Width: 70, Height: 26, Gap: 10})
	r.SetDirection("rtl")
	display(t, r, chapters[0])

	if len(r.PageMap()) != 2 {
		t.Fatalf("PageMap() has %d pages, want 2", len(r.PageMap()))
	}
	if r.Surface().Direction() != "rtl" {
		t.Errorf("Direction() = %q, want rtl restored after mapping", r.Surface().Direction())
	}
	if ok, _ := r.Page(context.Background(), 2); !ok {
		t.Fatal("Page(2) = false")
	}
	if r.Surface().ScrollLeft() != -80 {
		t.Errorf("ScrollLeft() = %d, want -80", r.Surface().ScrollLeft())
	}
}

func TestRenderer_GotoCFI(t *testing.T) {
	for _, markers := range []bool{false, true} {
		t.Run(fmt.Sprintf("markers=%v", markers), func(t *testing.T) {
			chapters := loadChapters(t, testChapter{body: twoColumns})
			r := New(Options{Width: 70, Height: 26, Gap: 10, UseMarkers: markers})
			display(t, r, chapters[0])

			ctx := context.Background()
			ok, err := r.GotoCFI(ctx, "epubcfi(/6/2!/4/2/1:22)")
			if err != nil || !ok {
				t.Fatalf("GotoCFI() = %v, %v", ok, err)
			}
			if r.ChapterPos() != 2 {
				t.Errorf("ChapterPos() = %d, want 2", r.ChapterPos())
			}
			if r.CurrentLocationCFI() != "epubcfi(/6/2!/4/2/1:22)" {
				t.Errorf("CurrentLocationCFI() = %q", r.CurrentLocationCFI())
			}
			if text := dom.TextContent(r.Surface().Body()); text != "aaaa bbbb cccc dddd eeee" {
				t.Errorf("document text changed to %q", text)
			}

			if ok, _ := r.GotoCFI(ctx, "epubcfi(/6/2!/4/40/1:0)"); ok {
				t.Error("GotoCFI() of a missing element = true")
			}
			if ok, _ := r.GotoCFI(ctx, "nonsense"); ok {
				t.Error("GotoCFI() of an invalid CFI = true")
			}
		})
	}
}

func TestRenderer_GotoCFI_NoChapter(t *testing.T) {
	r := New(Options{Width: 70, Height: 26})
	if _, err := r.GotoCFI(context.Background(), "epubcfi(/6/2!/4/2/1:0)"); !errors.Is(err, ErrNoChapter) {
		t.Errorf("GotoCFI() error = %v, want ErrNoChapter", err)
	}
}

func TestRenderer_Section(t *testing.T) {
	chapters := loadChapters(t, testChapter{body: `<p>aaaa bbbb cccc dddd</p><p id="second">eeee</p>`})
	r := New(Options{Width: 70, Height: 26, Gap: 10})
	display(t, r, chapters[0])

	ok, err := r.Section(context.Background(), "second")
	if err != nil || !ok {
		t.Fatalf("Section() = %v, %v", ok, err)
	}
	if r.ChapterPos() != 2 {
		t.Errorf("ChapterPos() = %d, want 2", r.ChapterPos())
	}
	if ok, _ := r.Section(context.Background(), "missing"); ok {
		t.Error("Section() of a missing id = true")
	}
}

func TestRenderer_Spreads(t *testing.T) {
	chapters := loadChapters(t, testChapter{body: twoColumns})
	r := New(Options{Width: 160, Height: 26, Gap: 10, Spreads: true, MinSpreadWidth: 100})

	var flips []bool
	r.Subscribe(event.RendererSpreads, func(p any) { flips = append(flips, p.(bool)) })
	display(t, r, chapters[0])

	if !r.Spreads() || r.Layout() != layout.MethodSpreads {
		t.Fatalf("Spreads() = %v, Layout() = %s", r.Spreads(), r.Layout())
	}
	if len(r.PageMap()) != 2 || r.DisplayedPages() != 1 {
		t.Errorf("PageMap() has %d pages, DisplayedPages() = %d, want 2 and 1", len(r.PageMap()), r.DisplayedPages())
	}
	if got := r.VisibleRange(); got.Start != "epubcfi(/6/2!/4/2/1:0)" || got.End != "epubcfi(/6/2!/4/2/1:24)" {
		t.Errorf("VisibleRange() = %+v", got)
	}

	ctx := context.Background()
	if err := r.SetMinSpreadWidth(ctx, 120); err != nil {
		t.Fatalf("SetMinSpreadWidth() failed: %v", err)
	}
	if len(flips) != 1 {
		t.Errorf("spreads published %v, want no change for a cutoff that keeps spreads", flips)
	}
	if err := r.ForceSingle(ctx, true); err != nil {
		t.Fatalf("ForceSingle() failed: %v", err)
	}
	if r.Spreads() || r.Layout() != layout.MethodReflowable {
		t.Errorf("after ForceSingle: Spreads() = %v, Layout() = %s", r.Spreads(), r.Layout())
	}
	if len(flips) != 2 || flips[1] {
		t.Errorf("spreads published %v, want [true false]", flips)
	}
}

func TestRenderer_FixedLayout(t *testing.T) {
	chapters := loadChapters(t,
		testChapter{head: `<meta name="viewport" content="width=200, height=100"/>`, body: twoColumns},
		testChapter{body: twoColumns, props: "rendition:layout-pre-paginated"},
	)
	r := New(Options{Width: 100, Height: 100})

	display(t, r, chapters[0])
	if r.Layout() != layout.MethodFixed || r.DisplayedPages() != 1 {
		t.Errorf("Layout() = %s, DisplayedPages() = %d", r.Layout(), r.DisplayedPages())
	}
	if got := r.Formatted().Scale; got != 0.5 {
		t.Errorf("Scale = %v, want 0.5", got)
	}
	style := dom.Attr(dom.DocumentElement(r.Surface().Root()), "style")
	for _, want := range []string{"top: 50%", "left: 50%", "scale(0.5) translate(-50%, -50%)"} {
		if !strings.Contains(style, want) {
			t.Errorf("root style = %q, want it centered with %q", style, want)
		}
	}

	display(t, r, chapters[1])
	if r.Layout() != layout.MethodReflowable {
		t.Errorf("pre-paginated chapter without viewport: Layout() = %s, want reflowable", r.Layout())
	}
}

func TestRenderer_Reformat(t *testing.T) {
	chapters := loadChapters(t, testChapter{body: twoColumns})
	r := New(Options{Width: 70, Height: 26, Gap: 10})
	display(t, r, chapters[0])

	ctx := context.Background()
	if ok, _ := r.Page(ctx, 2); !ok {
		t.Fatal("Page(2) = false")
	}
	var resized bool
	r.Subscribe(event.RendererResized, func(any) { resized = true })
	if err := r.Resize(ctx, 140, 26); err != nil {
		t.Fatalf("Resize() failed: %v", err)
	}
	if !resized {
		t.Error("Resize() did not publish")
	}
	if r.DisplayedPages() != 1 || r.ChapterPos() != 1 {
		t.Errorf("DisplayedPages() = %d, ChapterPos() = %d, want 1, 1", r.DisplayedPages(), r.ChapterPos())
	}
	if r.CurrentLocationCFI() != "epubcfi(/6/2!/4/2/1:20)" {
		t.Errorf("CurrentLocationCFI() = %q, want the location shown before", r.CurrentLocationCFI())
	}
}

func TestRenderer_ChapterSwitch(t *testing.T) {
	chapters := loadChapters(t,
		testChapter{body: twoColumns},
		testChapter{body: `<p>second</p>`},
		testChapter{},
	)
	r := New(Options{Width: 70, Height: 26, Gap: 10})

	var unloaded []string
	r.Subscribe(event.RendererChapterUnloaded, func(p any) { unloaded = append(unloaded, p.(*epub.Chapter).ID) })

	display(t, r, chapters[0])
	display(t, r, chapters[1])
	if len(unloaded) != 1 || unloaded[0] != "c1" {
		t.Errorf("unloaded = %v, want [c1]", unloaded)
	}
	if chapters[0].Document() != nil {
		t.Error("previous chapter still loaded")
	}

	err := r.DisplayChapter(context.Background(), chapters[2], layout.DefaultSettings())
	if !errors.Is(err, epub.ErrNotFound) {
		t.Fatalf("DisplayChapter() error = %v, want ErrNotFound", err)
	}
	if r.Chapter() != chapters[1] || len(r.PageMap()) != 1 {
		t.Error("a failed load replaced the displayed chapter")
	}
}

func TestRenderer_Styles(t *testing.T) {
	chapters := loadChapters(t, testChapter{body: twoColumns})
	r := New(Options{Width: 70, Height: 26, Gap: 10})
	ctx := context.Background()

	if err := r.SetStyle(ctx, "font-size", "1.2em"); err != nil {
		t.Fatalf("SetStyle() failed: %v", err)
	}
	display(t, r, chapters[0])
	if err := r.SetStyle(ctx, "color", "red"); err != nil {
		t.Fatalf("SetStyle() failed: %v", err)
	}
	if err := r.SetClasses(ctx, []string{"night", "serif"}); err != nil {
		t.Fatalf("SetClasses() failed: %v", err)
	}
	tag := HeadTag{Tag: "meta", Attrs: map[string]string{"name": "theme", "content": "dark"}}
	for range 2 {
		if err := r.AddHeadTag(ctx, tag); err != nil {
			t.Fatalf("AddHeadTag() failed: %v", err)
		}
	}

	doc := r.Surface().Root()
	if got := dom.Attr(r.Surface().Body(), "style"); got != "color: red; font-size: 1.2em" {
		t.Errorf("body style = %q", got)
	}
	if got := dom.Attr(dom.DocumentElement(doc), "class"); got != "night serif" {
		t.Errorf("class = %q", got)
	}
	var metas int
	for n := dom.Head(doc).FirstChild; n != nil; n = n.NextSibling {
		if n.Data == "meta" && dom.Attr(n, "name") == "theme" {
			metas++
		}
	}
	if metas != 1 {
		t.Errorf("got %d theme meta tags, want 1", metas)
	}

	if err := r.RemoveStyle(ctx, "color"); err != nil {
		t.Fatalf("RemoveStyle() failed: %v", err)
	}
	if got := dom.Attr(r.Surface().Body(), "style"); got != "font-size: 1.2em" {
		t.Errorf("body style after RemoveStyle = %q", got)
	}
}

func TestRenderer_StylesCleared(t *testing.T) {
	chapters := loadChapters(t, testChapter{body: twoColumns})
	r := New(Options{Width: 70, Height: 26, Gap: 10})
	ctx := context.Background()
	display(t, r, chapters[0])

	if err := r.SetStyle(ctx, "color", "red"); err != nil {
		t.Fatalf("SetStyle() failed: %v", err)
	}
	if err := r.SetClasses(ctx, []string{"night"}); err != nil {
		t.Fatalf("SetClasses() failed: %v", err)
	}
	if err := r.RemoveStyle(ctx, "color"); err != nil {
		t.Fatalf("RemoveStyle() failed: %v", err)
	}
	if err := r.SetClasses(ctx, nil); err != nil {
		t.Fatalf("SetClasses() failed: %v", err)
	}

	body := r.Surface().Body()
	if dom.HasAttr(body, "style") {
		t.Errorf("body style after removing the last style = %q, want no attribute", dom.Attr(body, "style"))
	}
	root := dom.DocumentElement(r.Surface().Root())
	if dom.HasAttr(root, "class") {
		t.Errorf("root class after SetClasses(nil) = %q, want no attribute", dom.Attr(root, "class"))
	}
}

func TestRenderer_StylesKeepAuthored(t *testing.T) {
	chapters := loadChapters(t, testChapter{
		body:      twoColumns,
		htmlAttrs: ` class="book"`,
		bodyAttrs: ` style="text-align: center;"`,
	})
	r := New(Options{Width: 70, Height: 26, Gap: 10})
	ctx := context.Background()
	display(t, r, chapters[0])

	tests := []struct {
		name      string
		apply     func() error
		wantStyle string
		wantClass string
	}{
		{
			name:      "set",
			apply:     func() error { return r.SetStyle(ctx, "color", "red") },
			wantStyle: "text-align: center; color: red",
			wantClass: "book",
		},
		{
			name:      "classes",
			apply:     func() error { return r.SetClasses(ctx, []string{"night"}) },
			wantStyle: "text-align: center; color: red",
			wantClass: "book night",
		},
		{
			name:      "cleared",
			apply:     func() error { r.SetClasses(ctx, nil); return r.RemoveStyle(ctx, "color") },
			wantStyle: "text-align: center;",
			wantClass: "book",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.apply(); err != nil {
				t.Fatalf("apply failed: %v", err)
			}
			if got := dom.Attr(r.Surface().Body(), "style"); got != tt.wantStyle {
				t.Errorf("body style = %q, want %q", got, tt.wantStyle)
			}
			if got := dom.Attr(dom.DocumentElement(r.Surface().Root()), "class"); got != tt.wantClass {
				t.Errorf("root class = %q, want %q", got, tt.wantClass)
			}
		})
	}
}
