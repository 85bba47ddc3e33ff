package extraction

import (
	"sort"
	"strings"
	"unicode/utf8"

	"annotext/internal/domain"
)

const (
	// DefaultConfidence is assigned when the LLM omitted a confidence.
	DefaultConfidence = 0.8
	contextRunes      = 50
)

// Locate finds every occurrence of each candidate in source and returns one
// positioned entity per occurrence, plus the number of candidates that had no
// occurrence at all. Offsets are character (rune) offsets.
func Locate(source string, candidates []Candidate) ([]domain.PositionedEntity, int) {
	return NewLocator(source).Locate(candidates)
}

// Locator locates candidates in one source text. Build it once per document
// and reuse it across chunks.
type Locator struct {
	source     string
	runeStarts []int // byte offset of each rune, plus len(source)
	lineStarts []int // rune offset at which each line begins
}

// NewLocator indexes source for rune and line lookups.
func NewLocator(source string) *Locator {
	l := &Locator{
		source:     source,
		runeStarts: make([]int, 0, utf8.RuneCountInString(source)+1),
		lineStarts: []int{0},
	}
	r := 0
	for b, ch := range source {
		l.runeStarts = append(l.runeStarts, b)
		if ch == '\n' {
			l.lineStarts = append(l.lineStarts, r+1)
		}
		r++
	}
	l.runeStarts = append(l.runeStarts, len(source))
	return l
}

// RuneLen returns the length of the source in characters.
func (l *Locator) RuneLen() int {
	return len(l.runeStarts) - 1
}

// Slice returns the source between two rune offsets.
func (l *Locator) Slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > l.RuneLen() {
		end = l.RuneLen()
	}
	if start >= end {
		return ""
	}
	return l.source[l.runeStarts[start]:l.runeStarts[end]]
}

// Locate searches the whole source.
func (l *Locator) Locate(candidates []Candidate) ([]domain.PositionedEntity, int) {
	return l.LocateWindow(candidates, 0, l.RuneLen())
}

// LocateWindow searches only within runes [start, end). Returned offsets are
// relative to the whole source. Matches that cross the window edge are not
// reported.
func (l *Locator) LocateWindow(candidates []Candidate, start, end int) ([]domain.PositionedEntity, int) {
	if start < 0 {
		start = 0
	}
	if end > l.RuneLen() {
		end = l.RuneLen()
	}
	out := []domain.PositionedEntity{}
	unmatched := 0
	if start >= end {
		return out, len(candidates)
	}
	byteStart, byteEnd := l.runeStarts[start], l.runeStarts[end]
	window := l.source[byteStart:byteEnd]

	for _, c := range candidates {
		if c.Text == "" {
			unmatched++
			continue
		}
		conf := DefaultConfidence
		if c.Confidence != nil {
			conf = *c.Confidence
		}
		found := 0
		for from := 0; from <= len(window)-len(c.Text); {
			idx := strings.Index(window[from:], c.Text)
			if idx < 0 {
				break
			}
			b := byteStart + from + idx
			rs := l.runeAt(b)
			re := rs + utf8.RuneCountInString(c.Text)
			out = append(out, domain.PositionedEntity{
				Text:          c.Text,
				EntityType:    c.EntityType,
				Start:         rs,
				End:           re,
				LineNumber:    l.LineOf(rs),
				Confidence:    conf,
				ContextBefore: l.Slice(rs-contextRunes, rs),
				ContextAfter:  l.Slice(re, re+contextRunes),
			})
			found++
			from += idx + len(c.Text)
		}
		if found == 0 {
			unmatched++
		}
	}
	return out, unmatched
}

// LineOf returns the 1-based line number containing rune offset r.
func (l *Locator) LineOf(r int) int {
	return sort.Search(len(l.lineStarts), func(i int) bool { return l.lineStarts[i] > r })
}

func (l *Locator) runeAt(b int) int {
	return sort.SearchInts(l.runeStarts, b)
}
