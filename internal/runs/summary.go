package runs

import (
	"math"
	"strconv"
	"strings"

	"compliance-backend/internal/analysis"
	"compliance-backend/internal/resultstore"
)

const (
	VerdictReject     = "Do NOT accept this contract in current form. Review highlighted clauses before approval."
	VerdictReview     = "Review recommended changes before proceeding with contract approval."
	VerdictAcceptable = "Contract appears acceptable with minor considerations."

	recommendGDPR      = "Update retention policy to match GDPR timelines."
	recommendLiability = "Include liability clause to reduce legal exposure."
)

var riskWeights = map[string]float64{
	analysis.RiskLow:    1.0,
	analysis.RiskMedium: 0.5,
	analysis.RiskHigh:   0.0,
	analysis.RiskNone:   1.0,
}

// Summary aggregates stored rows for the dashboard.
type Summary struct {
	Schema          string         `json:"schema"`
	TotalClauses    int            `json:"totalClauses"`
	ByRisk          map[string]int `json:"byRisk"`
	ByRegulation    map[string]int `json:"byRegulation"`
	Compliant       int            `json:"compliant"`
	ComplianceRate  float64        `json:"complianceRate"`
	HighRisk        int            `json:"highRisk"`
	AvgRiskPercent  float64        `json:"avgRiskPercent"`
	Score           *float64       `json:"score,omitempty"`
	Verdict         string         `json:"verdict,omitempty"`
	Recommendations []string       `json:"recommendations"`
}

type summaryRow struct {
	regulation string
	risk       string
	percent    string
	keyPhrases string
}

// Summarize scores rows of either schema.
func Summarize(schema resultstore.Schema, rows []resultstore.Row) Summary {
	out := Summary{
		Schema:          schema.Name,
		ByRisk:          map[string]int{},
		ByRegulation:    map[string]int{},
		Recommendations: []string{},
	}
	if len(rows) == 0 {
		return out
	}

	items := make([]summaryRow, 0, len(rows))
	for _, row := range rows {
		if schema.Name == resultstore.BatchSchema.Name {
			rec := analysis.RecordFromRow(row)
			items = append(items, summaryRow{regulation: rec.Regulation, risk: rec.RiskLevel})
			continue
		}
		res := analysis.ResultFromRow(row)
		items = append(items, summaryRow{regulation: res.Regulation, risk: res.RiskLevel, percent: res.RiskPercent, keyPhrases: res.KeyPhrases})
	}

	var earned, percentSum float64
	var percentCount, medium int
	liability := false
	for _, it := range items {
		out.TotalClauses++
		risk := strings.TrimSpace(it.risk)
		out.ByRisk[risk]++
		switch risk {
		case analysis.RiskLow:
			out.Compliant++
		case analysis.RiskHigh:
			out.HighRisk++
		case analysis.RiskMedium:
			medium++
		}
		w, ok := riskWeights[risk]
		if !ok {
			w = 0.5
		}
		earned += w

		for _, reg := range strings.Split(it.regulation, ",") {
			if reg = strings.TrimSpace(reg); reg != "" {
				out.ByRegulation[reg]++
			}
		}
		if p, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(it.percent, "%")), 64); err == nil {
			percentSum += p
			percentCount++
		}
		if strings.Contains(strings.ToLower(it.keyPhrases), "liability") {
			liability = true
		}
	}

	total := float64(out.TotalClauses)
	score := round2(earned / total * 100)
	out.Score = &score
	out.ComplianceRate = round2(float64(out.Compliant) / total * 100)
	if percentCount > 0 {
		out.AvgRiskPercent = round2(percentSum / float64(percentCount))
	}

	switch {
	case out.HighRisk > 0:
		out.Verdict = VerdictReject
	case float64(medium) > total*0.5:
		out.Verdict = VerdictReview
	default:
		out.Verdict = VerdictAcceptable
	}

	if out.ByRegulation[analysis.RegulationGDPR] > 0 {
		out.Recommendations = append(out.Recommendations, recommendGDPR)
	}
	if liability {
		out.Recommendations = append(out.Recommendations, recommendLiability)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
