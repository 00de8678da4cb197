package chunker

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"compliance-backend/internal/embedding"
)

// segmentSection cuts one hard-bounded section where the cosine distance
// between adjacent sentence groups exceeds the breakpoint.
func (c *Chunker) segmentSection(ctx context.Context, section string) ([]string, error) {
	sentences := splitSentences(section)
	if len(sentences) <= 1 {
		return sentences, nil
	}

	groups := make([]string, len(sentences))
	for i := range sentences {
		lo := max(0, i-c.opts.BufferSize)
		hi := min(len(sentences), i+c.opts.BufferSize+1)
		groups[i] = strings.Join(sentences[lo:hi], " ")
	}

	vectors, err := embedding.EmbedAll(ctx, c.opts.Embedder, groups)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(groups) {
		return nil, embedding.ErrEmptyEmbedding
	}

	distances := make([]float64, len(vectors)-1)
	for i := 0; i < len(vectors)-1; i++ {
		distances[i] = 1 - embedding.CosineSimilarity(vectors[i], vectors[i+1])
	}
	threshold := c.opts.BreakpointThreshold
	if threshold <= 0 {
		threshold = percentile(distances, c.opts.BreakpointPercentile)
	}

	var (
		chunks []string
		start  int
	)
	for i, d := range distances {
		if d > threshold {
			chunks = append(chunks, strings.Join(sentences[start:i+1], " "))
			start = i + 1
		}
	}
	chunks = append(chunks, strings.Join(sentences[start:], " "))
	return chunks, nil
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// splitLong re-packs chunks over maxChars by greedily adding sentences until
// the next one would overflow. A single oversized sentence is cut on word
// boundaries.
func splitLong(chunks []string, maxChars int, separators []string) []string {
	out := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if utf8.RuneCountInString(ch) <= maxChars {
			out = append(out, ch)
			continue
		}
		var cur strings.Builder
		flush := func() {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
		for _, sent := range splitSentences(ch) {
			if utf8.RuneCountInString(sent) > maxChars {
				flush()
				out = append(out, splitter{size: maxChars, separators: separators}.split(sent)...)
				continue
			}
			if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+1+utf8.RuneCountInString(sent) > maxChars {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(sent)
		}
		flush()
	}
	return out
}
