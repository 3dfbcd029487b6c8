package epub

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestSplitFragment(t *testing.T) {
	tests := []struct {
		name         string
		src          string
		wantPath     string
		wantFragment string
	}{
		{name: "path with fragment", src: "chapter1.xhtml#sec1", wantPath: "chapter1.xhtml", wantFragment: "sec1"},
		{name: "path without fragment", src: "chapter1.xhtml", wantPath: "chapter1.xhtml"},
		{name: "fragment only", src: "#sec1", wantFragment: "sec1"},
		{name: "empty string"},
		{name: "multiple hash signs", src: "chapter1.xhtml#sec1#subsec2", wantPath: "chapter1.xhtml", wantFragment: "sec1#subsec2"},
		{name: "cfi fragment", src: "ch.xhtml#epubcfi(/6/2!/4/2)", wantPath: "ch.xhtml", wantFragment: "epubcfi(/6/2!/4/2)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotPath, gotFragment := splitFragment(tt.src)
			if gotPath != tt.wantPath {
				t.Errorf("splitFragment(%q) path = %q, want %q", tt.src, gotPath, tt.wantPath)
			}
			if gotFragment != tt.wantFragment {
				t.Errorf("splitFragment(%q) fragment = %q, want %q", tt.src, gotFragment, tt.wantFragment)
			}
		})
	}
}

func testPackageDoc(t *testing.T) *Package {
	t.Helper()
	p, err := ParsePackage([]byte(testPackage), "OEBPS/")
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}
	return p
}

const testNCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head><meta name="dtb:uid" content="test-uid"/></head>
  <docTitle><text>Test Book</text></docTitle>
  <navMap>
    <navPoint id="np1" playOrder="1">
      <navLabel><text> Chapter 1 </text></navLabel>
      <content src="text/chapter1.xhtml"/>
      <navPoint id="np1-1" playOrder="2">
        <navLabel><text>Section 1.1</text></navLabel>
        <content src="text/chapter1.xhtml#s1"/>
      </navPoint>
    </navPoint>
    <navPoint id="np2" playOrder="3">
      <navLabel><text>Appendix</text></navLabel>
      <content src="extra/appendix.xhtml"/>
    </navPoint>
  </navMap>
  <pageList>
    <pageTarget id="p1" value="1" type="normal">
      <navLabel><text>1</text></navLabel>
      <content src="text/chapter1.xhtml#page1"/>
    </pageTarget>
    <pageTarget id="p2" type="normal">
      <navLabel><text>2</text></navLabel>
      <content src="text/chapter2.xhtml#page2"/>
    </pageTarget>
    <pageTarget id="pi" type="front">
      <navLabel><text>iv</text></navLabel>
      <content src="text/chapter1.xhtml#iv"/>
    </pageTarget>
  </pageList>
</ncx>`

func TestParseNCX(t *testing.T) {
	p := testPackageDoc(t)
	toc, err := p.ParseNCX([]byte(testNCX), "OEBPS/toc.ncx")
	if err != nil {
		t.Fatalf("ParseNCX() error = %v", err)
	}
	if len(toc) != 2 {
		t.Fatalf("got %d items, want 2", len(toc))
	}

	ch1 := toc[0]
	if ch1.ID != "np1" || ch1.Label != "Chapter 1" || ch1.Href != "OEBPS/text/chapter1.xhtml" {
		t.Errorf("toc[0] = %+v", ch1)
	}
	if ch1.SpinePos != 0 || ch1.CFI != "epubcfi(/6/2!/4/)" {
		t.Errorf("toc[0] SpinePos = %d, CFI = %q", ch1.SpinePos, ch1.CFI)
	}
	if len(ch1.Subitems) != 1 {
		t.Fatalf("got %d subitems, want 1", len(ch1.Subitems))
	}
	sub := ch1.Subitems[0]
	if sub.Parent != "np1" || sub.Href != "OEBPS/text/chapter1.xhtml#s1" || sub.SpinePos != 0 {
		t.Errorf("subitem = %+v", sub)
	}

	if toc[1].SpinePos != -1 || toc[1].CFI != "" {
		t.Errorf("toc[1] outside the spine = %+v", toc[1])
	}
}

func TestParseNCX_Invalid(t *testing.T) {
	p := testPackageDoc(t)
	if _, err := p.ParseNCX([]byte("<ncx><navMap>"), "toc.ncx"); err == nil {
		t.Error("ParseNCX() error = nil for malformed XML")
	}
	toc, err := p.ParseNCX([]byte(`<ncx><navMap></navMap></ncx>`), "toc.ncx")
	if err != nil || len(toc) != 0 {
		t.Errorf("ParseNCX() = %v, %v for an empty navMap", toc, err)
	}
}

func TestParseNCXPageList(t *testing.T) {
	p := testPackageDoc(t)
	pages, err := p.ParseNCXPageList([]byte(testNCX), "OEBPS/toc.ncx")
	if err != nil {
		t.Fatalf("ParseNCXPageList() error = %v", err)
	}
	// "iv" is not a page number and is dropped.
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2: %+v", len(pages), pages)
	}
	if pages[0].Page != 1 || pages[0].Href != "OEBPS/text/chapter1.xhtml#page1" || pages[0].SpinePos != 0 {
		t.Errorf("pages[0] = %+v", pages[0])
	}
	if pages[1].Page != 2 || pages[1].SpinePos != 1 || pages[1].CFI != "" {
		t.Errorf("pages[1] = %+v", pages[1])
	}
}

func TestParseNav(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		labels []string
		hrefs  []string
	}{
		{
			name:   "basic",
			body:   testNav,
			labels: []string{"Chapter 1", "Chapter 2"},
			hrefs:  []string{"OEBPS/text/chapter1.xhtml", "OEBPS/text/chapter2.xhtml#part"},
		},
		{
			name: "multiple epub:type tokens",
			body: `<html><body>
<nav epub:type="landmarks"><ol><li><a href="text/chapter2.xhtml">Start</a></li></ol></nav>
<nav epub:type="landmarks toc"><ol><li><a href="text/chapter1.xhtml">Ch1</a></li></ol></nav>
</body></html>`,
			labels: []string{"Ch1"},
			hrefs:  []string{"OEBPS/text/chapter1.xhtml"},
		},
		{
			name: "wrapped link",
			body: `<html><body><nav epub:type="toc"><ol>
<li><span><a href="text/chapter1.xhtml">Ch1</a></span></li>
</ol></nav></body></html>`,
			labels: []string{"Ch1"},
			hrefs:  []string{"OEBPS/text/chapter1.xhtml"},
		},
		{
			name:   "no toc nav",
			body:   `<html><body><nav epub:type="landmarks"><ol><li><a href="x.xhtml">X</a></li></ol></nav></body></html>`,
			labels: nil,
		},
	}

	p := testPackageDoc(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toc, err := p.ParseNav([]byte(tt.body), "OEBPS/nav.xhtml")
			if err != nil {
				t.Fatalf("ParseNav() error = %v", err)
			}
			if len(toc) != len(tt.labels) {
				t.Fatalf("got %d items, want %d", len(toc), len(tt.labels))
			}
			for i, item := range toc {
				if item.Label != tt.labels[i] {
					t.Errorf("toc[%d].Label = %q, want %q", i, item.Label, tt.labels[i])
				}
				if item.Href != tt.hrefs[i] {
					t.Errorf("toc[%d].Href = %q, want %q", i, item.Href, tt.hrefs[i])
				}
			}
		})
	}
}

func TestParseNav_Nested(t *testing.T) {
	body := `<html><body><nav epub:type="toc"><ol>
<li>Part 1
  <ol>
    <li id="c1"><a href="text/chapter1.xhtml">Ch1</a></li>
    <li><a href="text/chapter2.xhtml">Ch2</a></li>
  </ol>
</li>
</ol></nav></body></html>`

	p := testPackageDoc(t)
	toc, err := p.ParseNav([]byte(body), "OEBPS/nav.xhtml")
	if err != nil {
		t.Fatalf("ParseNav() error = %v", err)
	}
	if len(toc) != 1 {
		t.Fatalf("got %d top-level items, want 1", len(toc))
	}
	part := toc[0]
	if part.ID != "nav-1" || part.Label != "Part 1" || part.Href != "" || part.SpinePos != -1 {
		t.Errorf("part = %+v", part)
	}
	if len(part.Subitems) != 2 {
		t.Fatalf("got %d children, want 2", len(part.Subitems))
	}
	if c := part.Subitems[0]; c.ID != "c1" || c.Parent != "nav-1" || c.CFI != "epubcfi(/6/2!/4/)" {
		t.Errorf("child[0] = %+v", c)
	}
	if c := part.Subitems[1]; c.ID != "nav-3" || c.SpinePos != 1 || c.CFI != "epubcfi(/6/4!/4/)" {
		t.Errorf("child[1] = %+v", c)
	}
}

func TestParseNavPageList(t *testing.T) {
	body := `<html><body>
<nav epub:type="page-list"><ol>
  <li><a href="text/chapter1.xhtml#epubcfi(/6/2!/4/2/1:0)">1</a></li>
  <li><a href="text/chapter2.xhtml#p2">2</a></li>
  <li><a href="text/chapter2.xhtml#px">x</a></li>
</ol></nav>
</body></html>`

	p := testPackageDoc(t)
	pages, err := p.ParseNavPageList([]byte(body), "OEBPS/nav.xhtml")
	if err != nil {
		t.Fatalf("ParseNavPageList() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	if pages[0].CFI != "epubcfi(/6/2!/4/2/1:0)" || pages[0].Page != 1 {
		t.Errorf("pages[0] = %+v", pages[0])
	}
	if pages[1].CFI != "" || pages[1].SpinePos != 1 || pages[1].Label != "2" {
		t.Errorf("pages[1] = %+v", pages[1])
	}
}

func TestLoadTOC(t *testing.T) {
	base := fstest.MapFS{
		"META-INF/container.xml": {Data: []byte(testContainer)},
		"OEBPS/content.opf":      {Data: []byte(testPackage)},
	}
	tests := []struct {
		name      string
		files     map[string]string
		navPath   string
		tocPath   string
		wantFirst string
		wantLen   int
	}{
		{
			name:      "nav preferred over ncx",
			files:     map[string]string{"OEBPS/nav.xhtml": testNav, "OEBPS/toc.ncx": testNCX},
			navPath:   "OEBPS/nav.xhtml",
			tocPath:   "OEBPS/toc.ncx",
			wantFirst: "Chapter 1",
			wantLen:   2,
		},
		{
			name:      "empty nav falls back to ncx",
			files:     map[string]string{"OEBPS/nav.xhtml": `<html><body></body></html>`, "OEBPS/toc.ncx": testNCX},
			navPath:   "OEBPS/nav.xhtml",
			tocPath:   "OEBPS/toc.ncx",
			wantFirst: "Chapter 1",
			wantLen:   2,
		},
		{
			name:      "missing nav falls back to ncx",
			files:     map[string]string{"OEBPS/toc.ncx": testNCX},
			navPath:   "OEBPS/nav.xhtml",
			tocPath:   "OEBPS/toc.ncx",
			wantFirst: "Chapter 1",
			wantLen:   2,
		},
		{
			name:    "neither exists",
			navPath: "OEBPS/nav.xhtml",
			tocPath: "OEBPS/toc.ncx",
		},
		{
			name: "neither declared",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{}
			for k, v := range base {
				fsys[k] = v
			}
			for name, content := range tt.files {
				fsys[name] = &fstest.MapFile{Data: []byte(content)}
			}
			a, err := OpenFS(fsys)
			if err != nil {
				t.Fatalf("OpenFS() failed: %v", err)
			}
			p := testPackageDoc(t)
			p.NavPath, p.TOCPath = tt.navPath, tt.tocPath

			toc, err := p.LoadTOC(a)
			if err != nil {
				t.Fatalf("LoadTOC() error = %v", err)
			}
			if len(toc) != tt.wantLen {
				t.Fatalf("got %d items, want %d", len(toc), tt.wantLen)
			}
			if tt.wantLen > 0 && toc[0].Label != tt.wantFirst {
				t.Errorf("toc[0].Label = %q, want %q", toc[0].Label, tt.wantFirst)
			}
		})
	}
}

func TestLoadPageList_NCXFallback(t *testing.T) {
	a, err := OpenFS(fstest.MapFS{
		"META-INF/container.xml": {Data: []byte(testContainer)},
		"OEBPS/content.opf":      {Data: []byte(testPackage)},
		"OEBPS/nav.xhtml":        {Data: []byte(testNav)},
		"OEBPS/toc.ncx":          {Data: []byte(testNCX)},
	})
	if err != nil {
		t.Fatalf("OpenFS() failed: %v", err)
	}
	p := testPackageDoc(t)
	p.TOCPath = "OEBPS/toc.ncx"

	pages, err := p.LoadPageList(a)
	if err != nil {
		t.Fatalf("LoadPageList() error = %v", err)
	}
	if len(pages) != 2 {
		t.Errorf("got %d pages, want 2", len(pages))
	}
}

func TestLoadTOC_BrokenNCX(t *testing.T) {
	a, err := OpenFS(fstest.MapFS{
		"META-INF/container.xml": {Data: []byte(testContainer)},
		"OEBPS/content.opf":      {Data: []byte(testPackage)},
		"OEBPS/toc.ncx":          {Data: []byte("<ncx><navMap>")},
	})
	if err != nil {
		t.Fatalf("OpenFS() failed: %v", err)
	}
	p := testPackageDoc(t)
	p.NavPath, p.TOCPath = "", "OEBPS/toc.ncx"

	if _, err := p.LoadTOC(a); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("LoadTOC() error = %v, want a parse error", err)
	}
}
