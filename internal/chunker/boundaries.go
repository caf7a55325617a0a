package chunker

import (
	"sort"
	"unicode"
	"unicode/utf8"
)

// Snap search windows, in bytes. A target position is only moved to a
// boundary this close; otherwise the raw target is used as-is.
const (
	sentenceSnapWindow  = 100
	paragraphSnapWindow = 200
)

// sentenceTerminators are the runes that can end a sentence.
func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}

// isClosing reports whether r may trail a sentence terminator (quotes,
// brackets) and still belong to the sentence.
func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}

// sentenceBoundaries returns the byte offsets at which a new sentence may
// begin, always including 0 and len(text). A sentence boundary sits at the
// first non-space byte after a terminator run (". ", "!\n", `?"` ...) or
// after a newline.
func sentenceBoundaries(text string) []int {
	offsets := []int{0}
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if isSentenceTerminator(r) || r == '\n' {
			j := i + size
			// Skip closing punctuation attached to the terminator.
			for j < len(text) {
				cr, cs := utf8.DecodeRuneInString(text[j:])
				if !isClosing(cr) {
					break
				}
				j += cs
			}
			// A boundary requires trailing whitespace (or end of text),
			// so "3.14" and "e.g.x" never split.
			if r == '\n' || j >= len(text) || startsWithSpace(text[j:]) {
				for j < len(text) {
					cr, cs := utf8.DecodeRuneInString(text[j:])
					if !unicode.IsSpace(cr) {
						break
					}
					j += cs
				}
				if j > i {
					offsets = append(offsets, j)
				}
				i = j
				continue
			}
		}
		i += size
	}
	return appendFinal(offsets, len(text))
}

// paragraphBoundaries returns the byte offsets at which a new paragraph may
// begin: the first non-blank position after a blank-line run, plus 0 and
// len(text).
func paragraphBoundaries(text string) []int {
	offsets := []int{0}
	i := 0
	for i < len(text) {
		if text[i] != '\n' {
			i++
			continue
		}
		// Count the newline run, tolerating spaces/tabs on blank lines.
		j := i + 1
		newlines := 1
		for j < len(text) {
			c := text[j]
			if c == '\n' {
				newlines++
				j++
			} else if c == ' ' || c == '\t' || c == '\r' {
				j++
			} else {
				break
			}
		}
		if newlines >= 2 && j < len(text) {
			offsets = append(offsets, j)
		}
		i = j
	}
	return appendFinal(offsets, len(text))
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}

// appendFinal appends end to offsets unless already present, and
// deduplicates (scanners can emit an offset twice at text edges).
func appendFinal(offsets []int, end int) []int {
	if n := len(offsets); n == 0 || offsets[n-1] != end {
		offsets = append(offsets, end)
	}
	out := offsets[:1]
	for _, o := range offsets[1:] {
		if o != out[len(out)-1] {
			out = append(out, o)
		}
	}
	return out
}

// snapToBoundary moves target to the closest boundary within ±window bytes.
// Distance ties break toward the smaller offset so overlap never skips ahead
// accidentally. Returns target unchanged when no boundary is in range.
func snapToBoundary(boundaries []int, target, window int) int {
	if len(boundaries) == 0 {
		return target
	}
	// First boundary >= target.
	idx := sort.SearchInts(boundaries, target)

	best := -1
	bestDist := window + 1
	if idx < len(boundaries) {
		if d := boundaries[idx] - target; d <= window {
			best = boundaries[idx]
			bestDist = d
		}
	}
	if idx > 0 {
		// The earlier boundary wins ties (<=).
		if d := target - boundaries[idx-1]; d <= window && d <= bestDist {
			best = boundaries[idx-1]
		}
	}
	if best < 0 {
		return target
	}
	return best
}
