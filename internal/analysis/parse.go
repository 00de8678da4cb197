package analysis

import (
	"strconv"
	"strings"
)

type label int

const (
	labelNone label = iota
	labelRegulation
	labelSummary
	labelRisk
	labelRiskPercent
	labelModified
	labelModifiedRisk
)

// Longer prefixes first so "Risk Percentage" is not read as "Risk".
var labelPrefixes = []struct {
	prefix string
	label  label
}{
	{"ai-modified risk level", labelModifiedRisk},
	{"ai modified risk level", labelModifiedRisk},
	{"modified risk level", labelModifiedRisk},
	{"ai-modified clause", labelModified},
	{"ai modified clause", labelModified},
	{"modified clause", labelModified},
	{"risk percentage", labelRiskPercent},
	{"risk %", labelRiskPercent},
	{"risk level", labelRisk},
	{"risk", labelRisk},
	{"regulation", labelRegulation},
	{"summary", labelSummary},
}

// ParseClauseResponse reads the labelled lines of a clause analysis answer.
// Missing labels fall back to sentinels; Summary and the modified clause may
// continue onto following unlabelled lines.
func ParseClauseResponse(content string) Result {
	fields := map[label]string{}
	current := labelNone
	for _, raw := range strings.Split(content, "\n") {
		line := cleanLine(raw)
		if line == "" {
			continue
		}
		if lb, value, ok := matchLabel(line); ok {
			current = lb
			if _, seen := fields[lb]; !seen {
				fields[lb] = value
			}
			continue
		}
		if current == labelSummary || current == labelModified {
			fields[current] = strings.TrimSpace(fields[current] + " " + line)
		}
	}

	regulation, alsoNamed := normalizeRegulation(fields[labelRegulation])
	summary := fields[labelSummary]
	if len(alsoNamed) > 0 {
		summary = strings.TrimSpace(summary + " Also relevant: " + strings.Join(alsoNamed, ", ") + ".")
	}

	res := Result{
		Regulation:        regulation,
		Summary:           orDefault(summary, NotAvailable),
		RiskLevel:         normalizeRisk(fields[labelRisk]),
		RiskPercent:       normalizePercent(fields[labelRiskPercent]),
		ModifiedClause:    orDefault(fields[labelModified], NoModification),
		ModifiedRiskLevel: normalizeRisk(fields[labelModifiedRisk]),
	}
	return res
}

func cleanLine(raw string) string {
	line := strings.TrimSpace(strings.ReplaceAll(raw, "**", ""))
	line = strings.TrimLeft(line, "-*•# ")
	return strings.TrimSpace(line)
}

func matchLabel(line string) (label, string, bool) {
	lower := strings.ToLower(line)
	for _, lp := range labelPrefixes {
		if !strings.HasPrefix(lower, lp.prefix) {
			continue
		}
		rest := strings.TrimSpace(line[len(lp.prefix):])
		if !strings.HasPrefix(rest, ":") {
			continue
		}
		return lp.label, strings.TrimSpace(rest[1:]), true
	}
	return labelNone, "", false
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// normalizeRegulation maps free text onto a single regulation label. When
// several are named the first in GDPR, CCPA, HIPAA order wins; the rest are
// returned so the caller can keep them in the summary.
func normalizeRegulation(raw string) (string, []string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Unknown, nil
	}
	if found := namedRegulations(v); len(found) == 1 {
		return found[0], nil
	} else if len(found) > 1 {
		return found[0], found[1:]
	}
	switch strings.ToLower(strings.Trim(v, ". ")) {
	case "none", "n/a", "not applicable":
		return RegulationNone, nil
	case "unknown":
		return Unknown, nil
	}
	return RegulationOther, nil
}

func namedRegulations(v string) []string {
	upper := strings.ToUpper(v)
	var found []string
	for _, reg := range []string{RegulationGDPR, RegulationCCPA, RegulationHIPAA} {
		if strings.Contains(upper, reg) {
			found = append(found, reg)
		}
	}
	return found
}

func normalizeRisk(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case v == "":
		return Unknown
	case strings.HasPrefix(v, "high"):
		return RiskHigh
	case strings.HasPrefix(v, "medium"), strings.HasPrefix(v, "moderate"):
		return RiskMedium
	case strings.HasPrefix(v, "low"):
		return RiskLow
	case strings.HasPrefix(v, "none"):
		return RiskNone
	}
	return Unknown
}

// normalizePercent keeps the leading number of the value, clamped to 0..100.
func normalizePercent(raw string) string {
	v := strings.TrimSpace(raw)
	end := 0
	for end < len(v) && (v[end] >= '0' && v[end] <= '9' || v[end] == '.') {
		end++
	}
	if end == 0 {
		return NotAvailable
	}
	f, err := strconv.ParseFloat(v[:end], 64)
	if err != nil {
		return NotAvailable
	}
	n := int(f + 0.5)
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return itoa(n)
}

// validateRewrite sets RewriteStatus from the original and reported levels.
func validateRewrite(res *Result) {
	if res.ModifiedClause == NoModification {
		res.RewriteStatus = RewriteNotAttempted
		res.ModifiedRiskLevel = NotAvailable
		return
	}
	switch res.RiskLevel {
	case RiskLow, RiskNone:
		res.RewriteStatus = RewriteUnchanged
	case RiskHigh, RiskMedium:
		if res.ModifiedRiskLevel == RiskLow {
			res.RewriteStatus = RewriteVerified
		} else {
			res.RewriteStatus = RewriteViolation
		}
	default:
		res.RewriteStatus = RewriteUnverified
	}
}
