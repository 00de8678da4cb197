package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// Markers that always begin a new section when they open a line.
	headingLine = regexp.MustCompile(`^(?:(?i:whereas\b|now,? therefore\b|article\s+[0-9ivxlc]+\b|section\s+\d+(?:\.\d+)*\b|schedule\s+\w+\b|annex\s+\w+\b)|§\s*\d+|\d+(?:\.\d+)*[.)]\s+[A-Z])`)
	// Upper-case markers that start a section even mid-line.
	inlineMarker = regexp.MustCompile(`([^\n])[ \t]+(WHEREAS\b|ARTICLE\s+[0-9IVXLC]+\b|NOW,? THEREFORE\b)`)
)

var abbreviations = map[string]struct{}{
	"e.g.": {}, "i.e.": {}, "etc.": {}, "no.": {}, "nos.": {}, "mr.": {}, "ms.": {}, "mrs.": {},
	"dr.": {}, "inc.": {}, "ltd.": {}, "co.": {}, "corp.": {}, "vs.": {}, "art.": {}, "sec.": {},
	"u.s.": {}, "st.": {}, "para.": {},
}

// splitSections normalizes legally significant markers into line starts and
// returns the text split along them.
func splitSections(text string) []string {
	text = normalizeNewlines(text)
	text = inlineMarker.ReplaceAllString(text, "$1\n$2")

	var (
		sections []string
		cur      []string
	)
	flush := func() {
		if s := strings.TrimSpace(strings.Join(cur, "\n")); s != "" {
			sections = append(sections, s)
		}
		cur = cur[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if isHeading(trimmed) {
			flush()
		}
		cur = append(cur, line)
	}
	flush()
	return sections
}

func isHeading(line string) bool {
	if line == "" {
		return false
	}
	if headingLine.MatchString(line) {
		return true
	}
	return isUpperHeading(line)
}

// isUpperHeading matches short all-caps title lines such as "CONFIDENTIALITY".
func isUpperHeading(line string) bool {
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 4 && len(strings.Fields(line)) <= 8
}

// splitSentences cuts after ., ! or ? followed by whitespace and at blank
// lines. Known abbreviations do not end a sentence.
func splitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var (
		out   []string
		start int
	)
	emit := func(end int) {
		if s := collapseSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			emit(i)
			continue
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' && endsWithAbbreviation(runes[start:i+1]) {
			continue
		}
		emit(i + 1)
	}
	if start < len(runes) {
		emit(len(runes))
	}
	return out
}

func endsWithAbbreviation(span []rune) bool {
	s := strings.ToLower(string(span))
	idx := strings.LastIndexFunc(s, unicode.IsSpace)
	word := s[idx+1:]
	word = strings.TrimLeft(word, "(\"'")
	_, ok := abbreviations[word]
	return ok
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
