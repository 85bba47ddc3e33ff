package extraction

import (
	"sort"
	"strings"

	"annotext/internal/domain"
)

// Window is a half-open rune range [Start, End) of the source text.
type Window struct {
	Index int
	Start int
	End   int
}

// SplitWindows covers n characters with windows of size characters, each
// overlapping the previous one by overlap characters. A text no longer than
// size yields a single window. Callers validate overlap < size beforehand;
// SplitWindows degrades to non-overlapping windows if they did not.
func SplitWindows(n, size, overlap int) []Window {
	if n <= 0 {
		return nil
	}
	if size <= 0 || n <= size {
		return []Window{{Index: 0, Start: 0, End: n}}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap
	var out []Window
	for start := 0; ; start += step {
		end := start + size
		if end >= n {
			out = append(out, Window{Index: len(out), Start: start, End: n})
			break
		}
		out = append(out, Window{Index: len(out), Start: start, End: end})
	}
	return out
}

type spanKey struct {
	start, end int
	entityType string
}

// MergeWindows flattens per-window results (in window order) and drops
// duplicates produced by overlapping windows. A duplicate shares start, end
// and entity type; the same span under two types yields two entities. For a
// duplicate the higher confidence wins; on a tie the first seen is kept.
// The result is sorted by (start, end).
func MergeWindows(perWindow [][]domain.PositionedEntity) []domain.PositionedEntity {
	index := map[spanKey]int{}
	out := []domain.PositionedEntity{}
	for _, ents := range perWindow {
		for _, e := range ents {
			k := spanKey{e.Start, e.End, strings.ToUpper(e.EntityType)}
			if i, ok := index[k]; ok {
				if e.Confidence > out[i].Confidence {
					out[i] = e
				}
				continue
			}
			index[k] = len(out)
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}
