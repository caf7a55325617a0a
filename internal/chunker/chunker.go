// Package chunker splits raw document text into overlapping,
// boundary-respecting chunks sized for embedding and retrieval.
//
// The walk is left to right: sentence- or paragraph-sized units are
// accumulated until the next unit would exceed the chunk budget, the chunk
// is emitted, and the next chunk start is derived by backing off the
// configured overlap and snapping to the nearest boundary. Each chunk start
// strictly increases, so the walk terminates on any input.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// StructuralType categorizes the dominant block kind of a chunk.
type StructuralType string

const (
	StructuralParagraph StructuralType = "paragraph"
	StructuralHeading   StructuralType = "heading"
	StructuralList      StructuralType = "list"
	StructuralTable     StructuralType = "table"
	StructuralCode      StructuralType = "code"
)

// Chunk is a bounded span of document text prepared for indexing. Immutable
// once produced.
type Chunk struct {
	ID                  string
	DocumentID          string
	Index               int
	Text                string
	StartOffset         int
	EndOffset           int
	TokenCount          int
	OverlapWithPrevious int
	StructuralType      StructuralType
	IsSubChunk          bool
	ParentIndex         int // index of the oversized chunk this was split from; -1 otherwise
}

// Options controls chunking behavior. The zero value is not valid; use
// DefaultOptions as a starting point.
type Options struct {
	ChunkSizeTokens            int
	OverlapTokens              int
	MinChunkTokens             int
	MaxChunkTokens             int
	RespectSentenceBoundaries  bool
	RespectParagraphBoundaries bool

	// Estimator overrides the default ceil(len/4) token estimator.
	Estimator TokenEstimator
}

// DefaultOptions returns the chunking defaults used by the indexing pipeline.
func DefaultOptions() Options {
	return Options{
		ChunkSizeTokens:           512,
		OverlapTokens:             64,
		MinChunkTokens:            32,
		MaxChunkTokens:            1024,
		RespectSentenceBoundaries: true,
	}
}

// Validate rejects invalid option combinations up front. Chunking never
// fails mid-walk on configuration problems.
func (o Options) Validate() error {
	if o.ChunkSizeTokens <= 0 {
		return fmt.Errorf("chunk_size_tokens must be positive, got %d", o.ChunkSizeTokens)
	}
	if o.OverlapTokens < 0 {
		return fmt.Errorf("overlap_tokens must be non-negative, got %d", o.OverlapTokens)
	}
	if o.OverlapTokens >= o.ChunkSizeTokens {
		return fmt.Errorf("overlap_tokens (%d) must be smaller than chunk_size_tokens (%d)", o.OverlapTokens, o.ChunkSizeTokens)
	}
	if o.MinChunkTokens < 0 {
		return fmt.Errorf("min_chunk_tokens must be non-negative, got %d", o.MinChunkTokens)
	}
	if o.MaxChunkTokens < 0 {
		return fmt.Errorf("max_chunk_tokens must be non-negative, got %d", o.MaxChunkTokens)
	}
	if o.MaxChunkTokens > 0 && o.MaxChunkTokens < o.ChunkSizeTokens {
		return fmt.Errorf("max_chunk_tokens (%d) must be at least chunk_size_tokens (%d)", o.MaxChunkTokens, o.ChunkSizeTokens)
	}
	return nil
}

func (o Options) estimator() TokenEstimator {
	if o.Estimator != nil {
		return o.Estimator
	}
	return EstimateTokens
}

// snapWindow returns the boundary snap distance for the active granularity.
func (o Options) snapWindow() int {
	if o.RespectParagraphBoundaries {
		return paragraphSnapWindow
	}
	return sentenceSnapWindow
}

// Split chunks text belonging to documentID. Whitespace-only candidates are
// discarded, a document under the chunk budget yields a single chunk, and an
// empty document yields no chunks.
func Split(documentID, text string, opts Options) ([]Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	estimate := opts.estimator()
	boundaries := boundariesFor(text, opts)
	raw := walk(text, boundaries, opts, estimate)

	raw = absorbSmallChunks(raw, text, boundaries, opts, estimate)
	raw = splitOversized(raw, text, opts, estimate)

	return finalize(documentID, text, raw, estimate), nil
}

// span is a half-open [start, end) candidate chunk plus sub-chunk lineage.
type span struct {
	start, end  int
	isSubChunk  bool
	parentIndex int
}

// boundariesFor picks the boundary set for the configured granularity. With
// both boundary modes off, chunks cut at fixed character positions.
func boundariesFor(text string, opts Options) []int {
	switch {
	case opts.RespectParagraphBoundaries:
		return paragraphBoundaries(text)
	case opts.RespectSentenceBoundaries:
		return sentenceBoundaries(text)
	default:
		return nil
	}
}

// walk emits candidate spans left to right.
func walk(text string, boundaries []int, opts Options, estimate TokenEstimator) []span {
	var spans []span
	overlapChars := opts.OverlapTokens * charsPerToken
	start := 0

	for start < len(text) {
		end := chunkEnd(text, boundaries, start, opts, estimate)

		if strings.TrimSpace(text[start:end]) != "" {
			spans = append(spans, span{start: start, end: end, parentIndex: -1})
		}
		if end >= len(text) {
			break
		}

		next := end - overlapChars
		next = snapToBoundary(boundaries, next, opts.snapWindow())
		// Strict progress even on degenerate one-boundary inputs. The
		// step is a whole rune so a forced cut never lands inside a
		// multi-byte sequence.
		if next <= start {
			_, size := utf8.DecodeRuneInString(text[start:])
			next = start + size
		}
		if next >= len(text) {
			break
		}
		start = next
	}
	return spans
}

// chunkEnd accumulates whole units from start until the next unit would
// exceed the token budget. At least one unit is always taken.
func chunkEnd(text string, boundaries []int, start int, opts Options, estimate TokenEstimator) int {
	if len(boundaries) == 0 {
		end := start + opts.ChunkSizeTokens*charsPerToken
		if end > len(text) {
			end = len(text)
		}
		return end
	}

	end := -1
	for _, b := range boundaries {
		if b <= start {
			continue
		}
		if end >= 0 && estimate(text[start:b]) > opts.ChunkSizeTokens {
			break
		}
		end = b
		if estimate(text[start:b]) >= opts.ChunkSizeTokens {
			break
		}
	}
	if end < 0 {
		end = len(text)
	}
	return end
}

// absorbSmallChunks extends any chunk under MinChunkTokens (except the last)
// by stealing leading content from its successor. A successor emptied out by
// the steal is dropped.
func absorbSmallChunks(spans []span, text string, boundaries []int, opts Options, estimate TokenEstimator) []span {
	if opts.MinChunkTokens <= 0 || len(spans) == 0 {
		return spans
	}
	items := make([]span, len(spans))
	copy(items, spans)

	out := make([]span, 0, len(items))
	for i := 0; i < len(items); i++ {
		s := items[i]
		for i < len(items)-1 && estimate(text[s.start:s.end]) < opts.MinChunkTokens {
			next := &items[i+1]
			deficit := (opts.MinChunkTokens - estimate(text[s.start:s.end])) * charsPerToken
			newEnd := s.end + deficit
			if newEnd > next.end {
				newEnd = next.end
			}
			newEnd = snapToBoundary(boundaries, newEnd, opts.snapWindow())
			if newEnd <= s.end {
				newEnd = s.end + deficit
			}
			if newEnd > next.end {
				newEnd = next.end
			}
			s.end = newEnd
			if newEnd > next.start {
				next.start = newEnd
			}
			if next.start >= next.end || strings.TrimSpace(text[next.start:next.end]) == "" {
				// Successor fully consumed; splice it out and keep checking.
				items = append(items[:i+1], items[i+2:]...)
				continue
			}
			break
		}
		out = append(out, s)
	}
	return out
}

// splitOversized re-splits any chunk above MaxChunkTokens at sentence
// boundaries into sub-chunks that carry a back-reference to the parent.
func splitOversized(spans []span, text string, opts Options, estimate TokenEstimator) []span {
	if opts.MaxChunkTokens <= 0 {
		return spans
	}
	var out []span
	for i, s := range spans {
		if estimate(text[s.start:s.end]) <= opts.MaxChunkTokens {
			out = append(out, s)
			continue
		}
		sentences := sentenceBoundaries(text[s.start:s.end])
		subStart := s.start
		for subStart < s.end {
			subEnd := -1
			for _, b := range sentences {
				abs := s.start + b
				if abs <= subStart {
					continue
				}
				if estimate(text[subStart:abs]) > opts.MaxChunkTokens {
					break
				}
				subEnd = abs
			}
			if subEnd < 0 || subEnd <= subStart {
				// Single sentence over budget: hard cut.
				subEnd = subStart + opts.MaxChunkTokens*charsPerToken
			}
			if subEnd > s.end {
				subEnd = s.end
			}
			if strings.TrimSpace(text[subStart:subEnd]) != "" {
				out = append(out, span{start: subStart, end: subEnd, isSubChunk: true, parentIndex: i})
			}
			subStart = subEnd
		}
	}
	return out
}

// finalize renumbers chunks sequentially and computes each chunk's realized
// overlap with its immediate predecessor.
func finalize(documentID, text string, spans []span, estimate TokenEstimator) []Chunk {
	chunks := make([]Chunk, 0, len(spans))
	for i, s := range spans {
		overlap := 0
		if i > 0 {
			prev := spans[i-1]
			if o := min(prev.end, s.end) - max(prev.start, s.start); o > 0 {
				overlap = o
			}
		}
		body := text[s.start:s.end]
		chunks = append(chunks, Chunk{
			ID:                  uuid.NewString(),
			DocumentID:          documentID,
			Index:               i,
			Text:                body,
			StartOffset:         s.start,
			EndOffset:           s.end,
			TokenCount:          estimate(body),
			OverlapWithPrevious: overlap,
			StructuralType:      classifyStructural(body),
			IsSubChunk:          s.isSubChunk,
			ParentIndex:         s.parentIndex,
		})
	}
	return chunks
}
