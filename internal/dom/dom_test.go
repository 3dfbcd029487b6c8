package dom

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("html.Parse() failed: %v", err)
	}
	return doc
}

func TestRuneOffsets(t *testing.T) {
	tests := []struct {
		s        string
		runes    int
		wantByte int
		wantLen  int
	}{
		{"héllo wörld", -1, 0, 11},
		{"héllo wörld", 0, 0, 11},
		{"héllo wörld", 2, 3, 11},
		{"héllo wörld", 7, 8, 11},
		{"héllo wörld", 8, 10, 11},
		{"héllo wörld", 11, 13, 11},
		{"héllo wörld", 20, 13, 11},
		{"日本語テキスト", 3, 9, 7},
		{"", 3, 0, 0},
	}
	for _, tt := range tests {
		if got := ByteOffset(tt.s, tt.runes); got != tt.wantByte {
			t.Errorf("ByteOffset(%q, %d) = %d, want %d", tt.s, tt.runes, got, tt.wantByte)
		}
		if got := RuneLen(tt.s); got != tt.wantLen {
			t.Errorf("RuneLen(%q) = %d, want %d", tt.s, got, tt.wantLen)
		}
	}
}

func TestSlice(t *testing.T) {
	tests := []struct {
		s          string
		start, end int
		want       string
	}{
		{"héllo wörld", 1, 4, "éll"},
		{"héllo wörld", 6, 11, "wörld"},
		{"héllo wörld", 6, 99, "wörld"},
		{"日本語テキスト", 3, 7, "テキスト"},
		{"日本語テキスト", 4, 2, ""},
	}
	for _, tt := range tests {
		if got := Slice(tt.s, tt.start, tt.end); got != tt.want {
			t.Errorf("Slice(%q, %d, %d) = %q, want %q", tt.s, tt.start, tt.end, got, tt.want)
		}
	}
}

func TestIndexFold(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		substr string
		from   int
		want   int
	}{
		{name: "folded non-ASCII", s: "Ärger und ärger", substr: "ärg", want: 0},
		{name: "folded needle", s: "Ärger und ärger", substr: "ÄRG", from: 1, want: 10},
		{name: "rune offset", s: "日本語テキスト", substr: "テキ", want: 3},
		{name: "negative from", s: "abc", substr: "a", from: -5, want: 0},
		{name: "from past end", s: "abc", substr: "a", from: 5, want: -1},
		{name: "not found", s: "héllo", substr: "x", want: -1},
		{name: "empty needle", s: "héllo", substr: "", want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IndexFold(tt.s, tt.substr, tt.from); got != tt.want {
				t.Errorf("IndexFold(%q, %q, %d) = %d, want %d", tt.s, tt.substr, tt.from, got, tt.want)
			}
		})
	}
}

func TestSplitText(t *testing.T) {
	doc := parse(t, `<html><body><p id="p">日本語テキスト</p></body></html>`)
	p := FindByID(doc, "p")
	text := p.FirstChild

	rest := SplitText(text, 3)
	if text.Data != "日本語" || rest.Data != "テキスト" {
		t.Errorf("SplitText() = %q, %q, want %q, %q", text.Data, rest.Data, "日本語", "テキスト")
	}
	if text.NextSibling != rest || rest.Parent != p {
		t.Error("remainder not inserted after the split node")
	}
	if got := TextContent(p); got != "日本語テキスト" {
		t.Errorf("TextContent() = %q after split", got)
	}
}

func TestText(t *testing.T) {
	doc := parse(t, `<html><body><p id="a">héllo <em>wörld</em> again</p><p id="b">日本語</p></body></html>`)
	a := FindByID(doc, "a")
	texts := TextNodes(Body(doc))
	if len(texts) != 4 {
		t.Fatalf("TextNodes() = %d nodes, want 4", len(texts))
	}
	hello, world, again, nihongo := texts[0], texts[1], texts[2], texts[3]

	tests := []struct {
		name string
		r    Range
		want string
	}{
		{name: "single node", r: Range{world, 1, world, 3}, want: "ör"},
		{name: "across elements", r: Range{hello, 1, nihongo, 2}, want: "éllo wörld again日本"},
		{name: "element start", r: Range{a, 1, again, 3}, want: "wörld ag"},
		{name: "collapsed", r: Point(hello, 2), want: ""},
		{name: "no container", r: Range{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.r); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAttributes(t *testing.T) {
	doc := parse(t, `<html><body><p id="p" class="a" style="">x</p></body></html>`)
	p := FindByID(doc, "p")

	if !HasAttr(p, "style") {
		t.Error("HasAttr(style) = false for an empty attribute")
	}
	if HasAttr(p, "title") || HasAttr(nil, "id") {
		t.Error("HasAttr() = true for a missing attribute")
	}

	RemoveAttr(p, "class")
	if HasAttr(p, "class") {
		t.Error("class still present after RemoveAttr")
	}
	RemoveAttr(p, "title")
	if got := Attr(p, "id"); got != "p" || len(p.Attr) != 2 {
		t.Errorf("attributes = %+v after RemoveAttr", p.Attr)
	}

	SetAttr(p, "class", "night")
	if !HasClass(p, "night") {
		t.Error("HasClass(night) = false after SetAttr")
	}
}

func TestInsertAfter(t *testing.T) {
	doc := parse(t, `<html><body><p id="p"><b>x</b><i>y</i></p></body></html>`)
	p := FindByID(doc, "p")
	b, i := p.FirstChild, p.LastChild

	mid := &html.Node{Type: html.ElementNode, Data: "span"}
	InsertAfter(b, mid)
	last := &html.Node{Type: html.TextNode, Data: "z"}
	InsertAfter(i, last)

	var got []string
	for _, c := range Children(p) {
		got = append(got, c.Data)
	}
	if want := "b span i z"; strings.Join(got, " ") != want {
		t.Errorf("children = %q, want %q", strings.Join(got, " "), want)
	}
}
