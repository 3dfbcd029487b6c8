// Package cfi parses, generates, compares and resolves EPUB Canonical
// Fragment Identifiers of the form
//
//	epubcfi(<chapter>!<path>[,<end>][:<offset>[<assertion>]])
//
// A path segment integer n names the zero-based child n/2-1 among element
// siblings when n is even, and the text node (n-1)/2 among text siblings when
// n is odd.
package cfi

import (
	"strconv"
	"strings"
)

const (
	prefix = "epubcfi("
	suffix = ")"

	// NoOffset marks a CFI without a character offset.
	NoOffset = -1
)

// StepType distinguishes element steps from text steps.
type StepType string

const (
	ElementStep StepType = "element"
	TextStep    StepType = "text"
)

// Step is one hop of a CFI path.
type Step struct {
	Type  StepType
	Index int
	ID    string
}

// encoded returns the CFI integer for the step.
func (s Step) encoded() int {
	if s.Type == TextStep {
		return s.Index*2 + 1
	}
	return (s.Index + 1) * 2
}

func (s Step) String() string {
	out := strconv.Itoa(s.encoded())
	if s.ID != "" {
		out += "[" + s.ID + "]"
	}
	return out
}

// CFI is a parsed location. SpinePos is -1 when the source string was
// malformed.
type CFI struct {
	Str                   string
	Chapter               string
	SpinePos              int
	SpineID               string
	Steps                 []Step
	CharacterOffset       int
	TextLocationAssertion string

	// End holds the end path of a range CFI, exactly as written.
	End string
}

// Valid reports whether c was parsed successfully.
func (c CFI) Valid() bool {
	return c.SpinePos >= 0
}

// HasOffset reports whether c carries a character offset.
func (c CFI) HasOffset() bool {
	return c.CharacterOffset != NoOffset
}

// IsRange reports whether c was parsed from a range CFI.
func (c CFI) IsRange() bool {
	return c.End != ""
}

// Last returns the final step of c, or false when c has no steps.
func (c CFI) Last() (Step, bool) {
	if len(c.Steps) == 0 {
		return Step{}, false
	}
	return c.Steps[len(c.Steps)-1], true
}

// String renders c in epubcfi(...) form. Range information is dropped.
func (c CFI) String() string {
	path := joinSteps(c.Steps)
	if path == "" {
		path = "/"
	}
	out := prefix + c.Chapter + "!" + path
	if c.HasOffset() {
		out += ":" + strconv.Itoa(c.CharacterOffset)
		if c.TextLocationAssertion != "" {
			out += "[" + c.TextLocationAssertion + "]"
		}
	}
	return out + suffix
}

func invalid(str string) CFI {
	return CFI{Str: str, SpinePos: -1, CharacterOffset: NoOffset}
}

// Parse parses a CFI string. The epubcfi() wrapper is optional. Malformed
// input yields a CFI with SpinePos -1 instead of an error.
func Parse(str string) CFI {
	c := invalid(str)
	body := Unwrap(str)

	chapter, path, ok := strings.Cut(body, "!")
	if !ok || chapter == "" {
		return c
	}
	spinePos, spineID, ok := parseChapter(chapter)
	if !ok {
		return c
	}
	c.Chapter = chapter
	c.SpinePos = spinePos
	c.SpineID = spineID

	start, end, _ := strings.Cut(path, ",")
	c.End = end

	stepPart, offsetPart, hasOffset := strings.Cut(start, ":")
	steps, ok := parseSteps(stepPart)
	if !ok {
		return invalid(str)
	}
	c.Steps = steps

	if hasOffset {
		c.CharacterOffset, c.TextLocationAssertion = parseOffset(offsetPart)
	}
	return c
}

// ParseRange parses a range CFI into its start and end locations. For a
// non-range CFI both are the same location.
func ParseRange(str string) (start, end CFI) {
	start = Parse(str)
	if !start.Valid() || !start.IsRange() {
		return start, start
	}

	end = start
	end.End = ""
	stepPart, offsetPart, hasOffset := strings.Cut(start.End, ":")
	var steps []Step
	var ok bool
	if strings.HasPrefix(stepPart, "/") {
		steps, ok = parseSteps(stepPart)
	} else {
		var rel []Step
		rel, ok = parseSteps("/" + stepPart)
		steps = append(elementSteps(start.Steps), rel...)
	}
	if !ok {
		return start, invalid(str)
	}
	end.Steps = steps
	end.CharacterOffset = NoOffset
	end.TextLocationAssertion = ""
	if hasOffset {
		end.CharacterOffset, end.TextLocationAssertion = parseOffset(offsetPart)
	}
	end.Str = end.String()
	return start, end
}

// Unwrap strips the epubcfi( ) wrapper when present.
func Unwrap(str string) string {
	if strings.HasPrefix(str, prefix) && strings.HasSuffix(str, suffix) {
		return str[len(prefix) : len(str)-len(suffix)]
	}
	return str
}

// IsCFI reports whether str looks like a wrapped CFI.
func IsCFI(str string) bool {
	return strings.HasPrefix(str, prefix)
}

// parseChapter decodes "/6/4[id]" into the spine position and id.
func parseChapter(chapter string) (int, string, bool) {
	segments := strings.Split(chapter, "/")
	if len(segments) < 3 {
		return -1, "", false
	}
	n, id, ok := parseSegment(segments[2])
	if !ok {
		return -1, "", false
	}
	pos := n/2 - 1
	if pos < 0 {
		return -1, "", false
	}
	return pos, id, true
}

// parseSteps decodes "/4/10/3" into steps. A trailing empty segment is
// allowed. Only the final segment may be a text step.
func parseSteps(path string) ([]Step, bool) {
	if path == "" || path == "/" {
		return nil, true
	}
	if !strings.HasPrefix(path, "/") {
		return nil, false
	}
	segments := strings.Split(path[1:], "/")
	if segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}

	steps := make([]Step, 0, len(segments))
	for i, seg := range segments {
		n, id, ok := parseSegment(seg)
		if !ok {
			return nil, false
		}
		last := i == len(segments)-1
		if n%2 == 1 {
			if !last {
				return nil, false
			}
			steps = append(steps, Step{Type: TextStep, Index: (n - 1) / 2})
			continue
		}
		if n == 0 {
			return nil, false
		}
		steps = append(steps, Step{Type: ElementStep, Index: n/2 - 1, ID: id})
	}
	return steps, true
}

// parseSegment splits "4[id]" into 4 and "id".
func parseSegment(seg string) (int, string, bool) {
	num := seg
	id := ""
	if i := strings.IndexByte(seg, '['); i >= 0 {
		num = seg[:i]
		rest := seg[i+1:]
		j := strings.IndexByte(rest, ']')
		if j < 0 {
			return 0, "", false
		}
		id = rest[:j]
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return 0, "", false
	}
	return n, id, true
}

// parseOffset decodes "5[assertion]". A bad number reads as NoOffset.
func parseOffset(part string) (int, string) {
	num := part
	assertion := ""
	if i := strings.IndexByte(part, '['); i >= 0 {
		num = part[:i]
		if j := strings.LastIndexByte(part, ']'); j > i {
			assertion = part[i+1 : j]
		}
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return NoOffset, assertion
	}
	return n, assertion
}

func joinSteps(steps []Step) string {
	if len(steps) == 0 {
		return ""
	}
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.String()
	}
	return "/" + strings.Join(parts, "/")
}

func elementSteps(steps []Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		if s.Type == ElementStep {
			out = append(out, s)
		}
	}
	return out
}

// Compare orders a and b by spine position, then step by step, then by
// character offset. A strict step prefix sorts first. A missing offset
// compares as zero.
func Compare(a, b CFI) int {
	if a.SpinePos > b.SpinePos {
		return 1
	}
	if a.SpinePos < b.SpinePos {
		return -1
	}

	for i := range a.Steps {
		if i >= len(b.Steps) {
			return 1
		}
		ai, bi := a.Steps[i].encoded(), b.Steps[i].encoded()
		if ai > bi {
			return 1
		}
		if ai < bi {
			return -1
		}
	}
	if len(a.Steps) < len(b.Steps) {
		return -1
	}

	ao, bo := max(a.CharacterOffset, 0), max(b.CharacterOffset, 0)
	switch {
	case ao > bo:
		return 1
	case ao < bo:
		return -1
	}
	return 0
}

// CompareStrings parses and compares two CFI strings.
func CompareStrings(a, b string) int {
	return Compare(Parse(a), Parse(b))
}
