package chunker

import (
	"strings"
	"unicode/utf8"
)

// splitter is a recursive character splitter: it cuts on the first separator
// present in the text, recurses into oversized pieces with the remaining
// separators and packs pieces into windows that carry up to overlap runes of
// the previous window.
type splitter struct {
	size       int
	overlap    int
	separators []string
}

func (s splitter) split(text string) []string {
	var out []string
	for _, ch := range s.recurse(text, s.separators) {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

func (s splitter) recurse(text string, seps []string) []string {
	sep, rest := "", []string(nil)
	for i, candidate := range seps {
		if strings.Contains(text, candidate) {
			sep, rest = candidate, seps[i+1:]
			break
		}
	}
	if sep == "" {
		if utf8.RuneCountInString(text) <= s.size {
			return []string{text}
		}
		return hardSplit(text, s.size)
	}

	var out, fitting []string
	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		if utf8.RuneCountInString(piece) <= s.size {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, s.merge(fitting)...)
			fitting = nil
		}
		out = append(out, s.recurse(piece, rest)...)
	}
	if len(fitting) > 0 {
		out = append(out, s.merge(fitting)...)
	}
	return out
}

func (s splitter) merge(pieces []string) []string {
	var (
		docs  []string
		cur   []string
		total int
	)
	for _, p := range pieces {
		l := utf8.RuneCountInString(p)
		if total+l > s.size && len(cur) > 0 {
			docs = append(docs, strings.Join(cur, ""))
			for len(cur) > 0 && (total > s.overlap || total+l > s.size) {
				total -= utf8.RuneCountInString(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += l
	}
	if len(cur) > 0 {
		docs = append(docs, strings.Join(cur, ""))
	}
	return docs
}

func hardSplit(text string, size int) []string {
	r := []rune(text)
	out := make([]string, 0, len(r)/size+1)
	for start := 0; start < len(r); start += size {
		end := start + size
		if end > len(r) {
			end = len(r)
		}
		out = append(out, string(r[start:end]))
	}
	return out
}
