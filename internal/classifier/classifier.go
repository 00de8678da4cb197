// Package classifier assigns keyword-based content categories and a
// regulatory-relevance tier to clause text.
package classifier

import (
	"strings"
)

// Relevance tiers, highest first.
const (
	TierHigh    = "high"
	TierMedium  = "medium"
	TierLow     = "low"
	TierMinimal = "minimal"
)

// General is the primary type of text that matches no category.
const General = "general"

// Classification is the metadata recorded for one clause.
type Classification struct {
	PrimaryType    string   `json:"primaryType"`
	SecondaryTypes []string `json:"secondaryTypes"`
	RelevanceTier  string   `json:"relevanceTier"`
	WordCount      int      `json:"wordCount"`
	HasLegalTerms  bool     `json:"hasLegalTerms"`
}

type category struct {
	name     string
	triggers []string
}

// Declaration order breaks score ties.
var categories = []category{
	{"payment", []string{"payment", "invoice", "fee", "price", "compensation", "reimburse", "remuneration", "billing", "pay "}},
	{"confidentiality", []string{"confidential", "non-disclosure", "nondisclosure", "proprietary information", "trade secret", "secrecy"}},
	{"data_protection", []string{"personal data", "data subject", "processing", "privacy", "gdpr", "ccpa", "hipaa", "health information", "data breach", "controller", "processor", "consent"}},
	{"termination", []string{"terminate", "termination", "expiry", "expiration", "cancel", "notice period", "renewal"}},
	{"liability", []string{"liability", "liable", "indemnify", "indemnification", "damages", "limitation of liability", "hold harmless"}},
	{"intellectual_property", []string{"intellectual property", "copyright", "patent", "trademark", "license", "licence", "ownership of work"}},
	{"governing_law", []string{"governing law", "governed by", "jurisdiction", "laws of the state", "venue"}},
	{"dispute_resolution", []string{"arbitration", "dispute", "mediation", "tribunal", "court of"}},
	{"warranty", []string{"warrant", "warranty", "representation", "as is", "merchantability", "fitness for a particular purpose"}},
}

var tierIndicators = []struct {
	tier       string
	indicators []string
}{
	{TierHigh, []string{"personal data", "gdpr", "hipaa", "ccpa", "protected health information", "data breach", "sensitive data", "data subject", "cross-border transfer", "biometric"}},
	{TierMedium, []string{"privacy", "security", "retention", "encryption", "audit", "third party", "subprocessor", "consent", "access control"}},
	{TierLow, []string{"confidential", "records", "notice", "information", "disclosure", "compliance"}},
}

var legalTerms = []string{
	"hereinafter", "whereas", "notwithstanding", "hereto", "hereby", "herein", "thereof",
	"pursuant to", "in witness whereof", "indemnify", "shall be deemed", "force majeure",
	"without prejudice", "mutatis mutandis", "inter alia",
}

// Classify scores text against the fixed category table. It is pure and
// deterministic.
func Classify(text string) Classification {
	lower := strings.ToLower(text)

	primary := General
	best := 0
	scores := make([]int, len(categories))
	for i, c := range categories {
		for _, trig := range c.triggers {
			scores[i] += strings.Count(lower, trig)
		}
		if scores[i] > best {
			best = scores[i]
			primary = c.name
		}
	}

	secondary := []string{}
	for i, c := range categories {
		if scores[i] > 0 && c.name != primary {
			secondary = append(secondary, c.name)
		}
	}

	return Classification{
		PrimaryType:    primary,
		SecondaryTypes: secondary,
		RelevanceTier:  Tier(lower),
		WordCount:      len(strings.Fields(text)),
		HasLegalTerms:  containsAny(lower, legalTerms),
	}
}

// Tier returns the first tier, in high to low order, whose indicator appears
// in text. Text without any indicator is minimal.
func Tier(text string) string {
	lower := strings.ToLower(text)
	for _, t := range tierIndicators {
		if containsAny(lower, t.indicators) {
			return t.tier
		}
	}
	return TierMinimal
}

// Categories lists category names in declaration order.
func Categories() []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, c.name)
	}
	return out
}

func containsAny(lower string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
