// Package locations builds and queries the character-count location index
// used for percentage navigation.
package locations

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/yuanying/epubview/internal/cfi"
	"github.com/yuanying/epubview/internal/dom"
	"github.com/yuanying/epubview/internal/event"
	"github.com/yuanying/epubview/internal/sorted"
)

// DefaultBreak is the number of characters between two locations.
const DefaultBreak = 150

// Chapter is one spine document visited by Generate.
type Chapter struct {
	CFIBase string
	Load    func(ctx context.Context) (*html.Node, error)
	// Unload is optional and runs once the chapter has been walked.
	Unload func()
}

// Changed is published on event.LocationsChanged by SetCurrent.
type Changed struct {
	Location   int
	Percentage float64
}

type snapshot struct {
	locations []string
	parsed    []cfi.CFI
}

// Locations is an ordered list of CFIs, one per break. Generate and Load
// replace the whole list.
type Locations struct {
	*event.Emitter

	snap    atomic.Pointer[snapshot]
	current atomic.Int64
	log     *zap.Logger
}

// New returns an empty index.
func New(log *zap.Logger) *Locations {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Locations{Emitter: event.NewEmitter(), log: log}
	l.snap.Store(&snapshot{})
	l.current.Store(-1)
	return l
}

func (l *Locations) store(locs []string) {
	s := &snapshot{locations: locs, parsed: make([]cfi.CFI, len(locs))}
	for i, loc := range locs {
		s.parsed[i] = cfi.Parse(loc)
	}
	l.snap.Store(s)
}

// Generate walks every chapter in order and records a CFI each time
// breakChars characters of text have been seen. The count carries over text
// node and chapter boundaries. Chapters are loaded one at a time and the
// goroutine yields between them. A chapter load failure aborts the whole
// run and leaves the previous index untouched.
func (l *Locations) Generate(ctx context.Context, chapters []Chapter, breakChars int) ([]string, error) {
	if breakChars <= 0 {
		breakChars = DefaultBreak
	}

	var (
		locs    []string
		counter int
	)
	for i, ch := range chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := ch.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load chapter %d: %w", i, err)
		}
		locs, counter = process(doc, ch.CFIBase, breakChars, counter, locs)
		if ch.Unload != nil {
			ch.Unload()
		}
		l.log.Debug("Processed chapter for locations",
			zap.Int("spinePos", i),
			zap.Int("locations", len(locs)),
		)
		runtime.Gosched()
	}

	l.store(locs)
	return append([]string(nil), locs...), nil
}

// process appends the breaks found in doc to locs. counter is the number of
// characters seen since the last break and is returned updated.
func process(doc *html.Node, base string, breakChars, counter int, locs []string) ([]string, int) {
	root := dom.Body(doc)
	if root == nil {
		root = doc
	}
	for _, node := range dom.TextNodes(root) {
		if strings.TrimSpace(node.Data) == "" {
			continue
		}
		length := dom.RuneLen(node.Data)
		pos := 0
		for length-pos >= breakChars-counter {
			pos += breakChars - counter
			locs = append(locs, cfi.GenerateFromTextNode(node, pos, base))
			counter = 0
		}
		counter += length - pos
	}
	return locs, counter
}

// Load replaces the index with a JSON array of CFIs produced by Save.
func (l *Locations) Load(data []byte) ([]string, error) {
	var locs []string
	if err := json.Unmarshal(data, &locs); err != nil {
		return nil, fmt.Errorf("failed to decode locations: %w", err)
	}
	l.store(locs)
	return locs, nil
}

// Save encodes the index as a JSON array.
func (l *Locations) Save() ([]byte, error) {
	locs := l.snap.Load().locations
	if locs == nil {
		locs = []string{}
	}
	return json.Marshal(locs)
}

// Len returns the number of locations.
func (l *Locations) Len() int { return len(l.snap.Load().locations) }

// Total is the highest location number, Len()-1.
func (l *Locations) Total() int { return l.Len() - 1 }

// LocationFromCFI returns the position c occupies in the index, or -1 when
// the index is empty.
func (l *Locations) LocationFromCFI(c string) int {
	s := l.snap.Load()
	if len(s.locations) == 0 {
		return -1
	}
	return sorted.LocationOf(cfi.Parse(c), s.parsed, cfi.Compare)
}

// PercentageFromCFI returns the fraction of the book read at c.
func (l *Locations) PercentageFromCFI(c string) float64 {
	return l.PercentageFromLocation(l.LocationFromCFI(c))
}

// PercentageFromLocation returns loc as a fraction of Total.
func (l *Locations) PercentageFromLocation(loc int) float64 {
	total := l.Total()
	if loc <= 0 || total <= 0 {
		return 0
	}
	return float64(loc) / float64(total)
}

// CFIFromLocation returns the CFI at loc, or "" when out of range.
func (l *Locations) CFIFromLocation(loc int) string {
	locs := l.snap.Load().locations
	if loc < 0 || loc >= len(locs) {
		return ""
	}
	return locs[loc]
}

// CFIFromPercentage accepts 0-1 or 0-100 values.
func (l *Locations) CFIFromPercentage(pct float64) string {
	if pct > 1 {
		pct /= 100
	}
	return l.CFIFromLocation(int(math.Ceil(float64(l.Total()) * pct)))
}

// Current returns the last location passed to SetCurrent, or -1.
func (l *Locations) Current() int { return int(l.current.Load()) }

// SetCurrent records the location of c and publishes event.LocationsChanged.
// Nothing is published while the index is empty.
func (l *Locations) SetCurrent(c string) {
	loc := l.LocationFromCFI(c)
	if loc < 0 {
		return
	}
	l.current.Store(int64(loc))
	l.Publish(event.LocationsChanged, Changed{
		Location:   loc,
		Percentage: l.PercentageFromLocation(loc),
	})
}
