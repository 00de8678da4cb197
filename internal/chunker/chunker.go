// Package chunker splits contract text into clause-sized segments.
package chunker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"compliance-backend/internal/classifier"
	"compliance-backend/internal/embedding"
	"compliance-backend/internal/shared/metrics"
	"compliance-backend/internal/shared/telemetry"
)

// Mode selects the segmentation algorithm.
type Mode string

const (
	ModeFixed    Mode = "fixed"
	ModeSemantic Mode = "semantic"
)

const previewRunes = 100

// ParseMode maps a config or request value to a Mode. Unknown values select
// semantic segmentation.
func ParseMode(raw string) Mode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ModeFixed)) {
		return ModeFixed
	}
	return ModeSemantic
}

// Clause is one analyzable span of contract text. IDs are 1..N in document
// order.
type Clause struct {
	ID             int      `json:"id"`
	Text           string   `json:"text"`
	Length         int      `json:"length"`
	WordCount      int      `json:"wordCount"`
	PrimaryType    string   `json:"primaryType"`
	SecondaryTypes []string `json:"secondaryTypes"`
	RelevanceTier  string   `json:"relevanceTier"`
	HasLegalTerms  bool     `json:"hasLegalTerms"`
	Preview        string   `json:"preview"`
	Section        int      `json:"section"`
}

// Result is the chunker output. Degraded is set when semantic segmentation
// was requested but fixed windows were produced instead.
type Result struct {
	Clauses  []Clause `json:"clauses"`
	Mode     Mode     `json:"mode"`
	Degraded bool     `json:"degraded"`
	Reason   string   `json:"reason,omitempty"`
}

// Options tunes both algorithms. Zero sizes are replaced with defaults by New;
// Overlap and BufferSize are used as given.
type Options struct {
	WindowSize int
	Overlap    int
	Separators []string

	MinChunkChars        int
	MaxChunkChars        int
	BreakpointPercentile float64
	// BreakpointThreshold overrides the percentile when > 0.
	BreakpointThreshold float64
	// BufferSize is the number of neighbouring sentences embedded with each sentence.
	BufferSize int

	Embedder embedding.Embedder
}

// DefaultOptions returns the production tuning.
func DefaultOptions() Options {
	return Options{
		WindowSize:           400,
		Overlap:              100,
		Separators:           []string{"\n\n", "\n", ".", " "},
		MinChunkChars:        80,
		MaxChunkChars:        1200,
		BreakpointPercentile: 95,
		BufferSize:           1,
	}
}

// Chunker is safe for concurrent use.
type Chunker struct {
	opts Options
}

// New builds a Chunker.
func New(opts Options) *Chunker {
	def := DefaultOptions()
	if opts.WindowSize <= 0 {
		opts.WindowSize = def.WindowSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.WindowSize {
		opts.Overlap = 0
	}
	if len(opts.Separators) == 0 {
		opts.Separators = def.Separators
	}
	if opts.MinChunkChars <= 0 {
		opts.MinChunkChars = def.MinChunkChars
	}
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = def.MaxChunkChars
	}
	if opts.MaxChunkChars < opts.MinChunkChars {
		opts.MaxChunkChars = opts.MinChunkChars
	}
	if opts.BreakpointPercentile <= 0 || opts.BreakpointPercentile > 100 {
		opts.BreakpointPercentile = def.BreakpointPercentile
	}
	if opts.BufferSize < 0 {
		opts.BufferSize = 0
	}
	return &Chunker{opts: opts}
}

// Chunk segments text. Semantic failures fall back to fixed windows and are
// reported through Result.Degraded; only context cancellation is an error.
func (c *Chunker) Chunk(ctx context.Context, text string, mode Mode) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Result{Mode: mode, Clauses: []Clause{}}, nil
	}

	if mode == ModeSemantic {
		sections, err := c.semantic(ctx, text)
		if err == nil && countChunks(sections) > 0 {
			return Result{Clauses: buildClauses(sections), Mode: ModeSemantic}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		reason := "semantic segmentation produced no chunks"
		if err != nil {
			reason = err.Error()
		}
		metrics.IncChunkingDegraded()
		telemetry.Warn("chunker.degraded", map[string]any{
			"reason":     reason,
			"text_chars": utf8.RuneCountInString(text),
		})
		out := c.Fixed(text)
		return Result{Clauses: out.Clauses, Mode: ModeFixed, Degraded: true, Reason: reason}, nil
	}

	return c.Fixed(text), nil
}

// Fixed runs the deterministic window splitter.
func (c *Chunker) Fixed(text string) Result {
	s := splitter{size: c.opts.WindowSize, overlap: c.opts.Overlap, separators: c.opts.Separators}
	chunks := mergeShort(s.split(normalizeNewlines(text)), c.opts.MinChunkChars)
	return Result{Clauses: buildClauses([][]string{chunks}), Mode: ModeFixed}
}

var errNoEmbedder = errors.New("no embedding backend configured")

func (c *Chunker) semantic(ctx context.Context, text string) ([][]string, error) {
	if c.opts.Embedder == nil {
		return nil, errNoEmbedder
	}
	sections := splitSections(text)
	out := make([][]string, 0, len(sections))
	for i, section := range sections {
		chunks, err := c.segmentSection(ctx, section)
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", i+1, err)
		}
		chunks = mergeShort(chunks, c.opts.MinChunkChars)
		chunks = splitLong(chunks, c.opts.MaxChunkChars, c.opts.Separators)
		// Re-packing can strand a short sentence or a hard-split tail. The
		// minimum wins over the maximum here, so a folded clause may exceed
		// MaxChunkChars by less than MinChunkChars.
		chunks = mergeShort(chunks, c.opts.MinChunkChars)
		if len(chunks) > 0 {
			out = append(out, chunks)
		}
	}
	return out, nil
}

func countChunks(sections [][]string) int {
	n := 0
	for _, s := range sections {
		n += len(s)
	}
	return n
}

func buildClauses(sections [][]string) []Clause {
	clauses := make([]Clause, 0, countChunks(sections))
	for si, chunks := range sections {
		for _, text := range chunks {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			cls := classifier.Classify(text)
			clauses = append(clauses, Clause{
				ID:             len(clauses) + 1,
				Text:           text,
				Length:         utf8.RuneCountInString(text),
				WordCount:      cls.WordCount,
				PrimaryType:    cls.PrimaryType,
				SecondaryTypes: cls.SecondaryTypes,
				RelevanceTier:  cls.RelevanceTier,
				HasLegalTerms:  cls.HasLegalTerms,
				Preview:        preview(text),
				Section:        si + 1,
			})
		}
	}
	return clauses
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	r := []rune(text)
	return strings.TrimSpace(string(r[:previewRunes])) + "..."
}

// mergeShort folds chunks shorter than min into the preceding chunk. A short
// leading chunk is folded into the one after it.
func mergeShort(chunks []string, min int) []string {
	out := make([]string, 0, len(chunks))
	var carry string
	for _, ch := range chunks {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if carry != "" {
			ch = carry + " " + ch
			carry = ""
		}
		if utf8.RuneCountInString(ch) >= min {
			out = append(out, ch)
			continue
		}
		if len(out) == 0 {
			carry = ch
			continue
		}
		out[len(out)-1] = out[len(out)-1] + " " + ch
	}
	if carry != "" {
		out = append(out, carry)
	}
	return out
}

func normalizeNewlines(text string) string {
	return strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n")
}
