package note

import (
	"fmt"
	"strings"
)

// DefaultChunkBudget is the fallback token budget per chunk.
const DefaultChunkBudget = 512

// Chunker splits note bodies into token-budgeted chunks, preferring
// structural boundaries (headings, paragraph breaks) over mid-sentence
// splits.
type Chunker struct {
	// Budget is the maximum estimated token count per chunk.
	Budget int
}

// NewChunker creates a chunker with the given token budget.
func NewChunker(budget int) *Chunker {
	if budget <= 0 {
		budget = DefaultChunkBudget
	}
	return &Chunker{Budget: budget}
}

// Chunk splits a note into ordered chunks.
// Guarantees:
//   - an empty or whitespace-only body produces no chunks
//   - a body within budget produces exactly one chunk
//   - ordinals are contiguous from 0
//   - each chunk's Text equals its header plus Body[Start:End]
func (c *Chunker) Chunk(n Note) []Chunk {
	body := n.Body
	if strings.TrimSpace(body) == "" {
		return nil
	}

	header := fmt.Sprintf("[Note: %s]\n\n", n.Title)

	var spans []span
	if EstimateTokens(body) <= c.Budget {
		spans = []span{trimSpan(body, span{0, len(body)})}
	} else {
		spans = c.split(body)
	}

	chunks := make([]Chunk, 0, len(spans))
	for i, s := range spans {
		chunks = append(chunks, Chunk{
			ParentID: n.ParentID(),
			Ordinal:  i,
			Text:     header + body[s.start:s.end],
			Start:    s.start,
			End:      s.end,
		})
	}
	return chunks
}

// span is a half-open byte range into a note body.
type span struct {
	start, end int
}

// split produces budget-sized spans: sections packed greedily, oversized
// sections split at sentence boundaries, oversized sentences hard-split at
// the budget boundary.
func (c *Chunker) split(body string) []span {
	return pack(body, sectionSpans(body), c.Budget, func(sec span) []span {
		return pack(body, sentenceSpans(body, sec), c.Budget, func(sn span) []span {
			return hardSplit(body, sn, c.Budget)
		})
	})
}

// pack greedily merges adjacent spans while the merged text stays within
// budget. Spans over budget on their own are handed to oversized.
func pack(body string, parts []span, budget int, oversized func(span) []span) []span {
	var out []span
	var cur span
	have := false
	flush := func() {
		if have {
			out = append(out, cur)
			have = false
		}
	}
	for _, p := range parts {
		if EstimateTokens(body[p.start:p.end]) > budget {
			flush()
			out = append(out, oversized(p)...)
			continue
		}
		if !have {
			cur, have = p, true
			continue
		}
		if merged := (span{cur.start, p.end}); EstimateTokens(body[merged.start:merged.end]) <= budget {
			cur = merged
		} else {
			out = append(out, cur)
			cur = p
		}
	}
	flush()
	return out
}

// sectionSpans returns the structural sections of text: maximal runs of
// non-blank lines, additionally split before markdown headings.
func sectionSpans(text string) []span {
	var spans []span
	secStart := -1
	secEnd := 0
	flush := func() {
		if secStart >= 0 {
			spans = append(spans, span{secStart, secEnd})
			secStart = -1
		}
	}

	for pos := 0; pos < len(text); {
		lineEnd := strings.IndexByte(text[pos:], '\n')
		var next int
		if lineEnd < 0 {
			lineEnd = len(text)
			next = lineEnd
		} else {
			lineEnd += pos
			next = lineEnd + 1
		}

		line := text[pos:lineEnd]
		if strings.TrimSpace(line) == "" {
			flush()
		} else {
			if strings.HasPrefix(line, "#") {
				flush()
			}
			if secStart < 0 {
				secStart = pos
			}
			secEnd = lineEnd
		}
		pos = next
	}
	flush()
	return spans
}

// sentenceSpans splits a section at sentence boundaries: after a run of
// .!? followed by whitespace.
func sentenceSpans(text string, sec span) []span {
	var spans []span
	appendSpan := func(s span) {
		s = trimSpan(text, s)
		if s.start < s.end {
			spans = append(spans, s)
		}
	}

	start := sec.start
	i := sec.start
	for i < sec.end {
		ch := text[i]
		if ch == '.' || ch == '!' || ch == '?' {
			j := i + 1
			for j < sec.end && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
				j++
			}
			if j < sec.end && isSpace(text[j]) {
				appendSpan(span{start, j})
				for j < sec.end && isSpace(text[j]) {
					j++
				}
				start = j
				i = j
				continue
			}
			i = j
			continue
		}
		i++
	}
	if start < sec.end {
		appendSpan(span{start, sec.end})
	}
	return spans
}

// hardSplit splits a single oversized sentence at the budget boundary,
// word-wise, with no overlap.
func hardSplit(text string, s span, budget int) []span {
	maxWords := int(float64(budget) / 1.3)
	if maxWords < 1 {
		maxWords = 1
	}

	var spans []span
	i := s.start
	for i < s.end {
		for i < s.end && isSpace(text[i]) {
			i++
		}
		if i >= s.end {
			break
		}
		pieceStart := i
		pieceEnd := i
		words := 0
		for i < s.end && words < maxWords {
			for i < s.end && !isSpace(text[i]) {
				i++
			}
			pieceEnd = i
			words++
			for i < s.end && isSpace(text[i]) {
				i++
			}
		}
		spans = append(spans, span{pieceStart, pieceEnd})
	}
	return spans
}

// trimSpan shrinks a span past leading and trailing whitespace.
func trimSpan(text string, s span) span {
	for s.start < s.end && isSpace(text[s.start]) {
		s.start++
	}
	for s.end > s.start && isSpace(text[s.end-1]) {
		s.end--
	}
	return s
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
