// Package analysis turns clauses into compliance results by prompting the
// configured model providers.
package analysis

import (
	"strconv"

	"compliance-backend/internal/resultstore"
)

// Sentinels for fields the model did not supply.
const (
	NotAvailable   = "N/A"
	NoModification = "No modification available."
	Unknown        = "Unknown"
)

// Regulation labels.
const (
	RegulationGDPR  = "GDPR"
	RegulationCCPA  = "CCPA"
	RegulationHIPAA = "HIPAA"
	RegulationOther = "Other"
	RegulationNone  = "None"
)

// Risk levels.
const (
	RiskHigh   = "High"
	RiskMedium = "Medium"
	RiskLow    = "Low"
	RiskNone   = "None"
)

// Rewrite validation outcomes.
const (
	RewriteNotAttempted = "not_attempted"
	RewriteUnchanged    = "unchanged"
	RewriteVerified     = "verified"
	RewriteUnverified   = "unverified"
	RewriteViolation    = "violation"
)

// Result is one clause's analysis outcome.
type Result struct {
	ClauseID          int    `json:"clauseId"`
	Clause            string `json:"clause"`
	Regulation        string `json:"regulation"`
	Summary           string `json:"summary"`
	RiskLevel         string `json:"riskLevel"`
	RiskPercent       string `json:"riskPercent"`
	ModifiedClause    string `json:"modifiedClause"`
	ModifiedRiskLevel string `json:"modifiedRiskLevel"`
	KeyPhrases        string `json:"keyPhrases"`
	RewriteStatus     string `json:"rewriteStatus"`
	Provider          string `json:"provider,omitempty"`
	Model             string `json:"model,omitempty"`
}

// Violation reports a rewrite of a High or Medium clause whose self-reported
// risk is not Low.
func (r Result) Violation() bool {
	return r.RewriteStatus == RewriteViolation
}

// Row maps the result to the canonical per-clause schema.
func (r Result) Row() resultstore.Row {
	return resultstore.Row{
		ClauseID: r.ClauseID,
		Cells:    []string{r.Regulation, r.KeyPhrases, r.RiskLevel, r.RiskPercent, r.Summary},
	}
}

// BatchRecord maps the result to the legacy batch form. The summary becomes
// the analysis note.
func (r Result) BatchRecord() BatchRecord {
	return BatchRecord{
		ClauseID:   r.ClauseID,
		Clause:     r.Clause,
		Regulation: r.Regulation,
		RiskLevel:  r.RiskLevel,
		Analysis:   r.Summary,
	}
}

// ResultFromRow rebuilds the fields a canonical row carries.
func ResultFromRow(row resultstore.Row) Result {
	cell := func(i int) string {
		if i < len(row.Cells) {
			return row.Cells[i]
		}
		return ""
	}
	return Result{
		ClauseID:    row.ClauseID,
		Regulation:  cell(0),
		KeyPhrases:  cell(1),
		RiskLevel:   cell(2),
		RiskPercent: cell(3),
		Summary:     cell(4),
	}
}

// BatchRecord is one element of the batch JSON array.
type BatchRecord struct {
	ClauseID   int    `json:"Clause ID"`
	Clause     string `json:"Contract Clause"`
	Regulation string `json:"Regulation"`
	RiskLevel  string `json:"Risk Level"`
	Analysis   string `json:"AI Analysis"`
}

// Row maps the record to the batch schema.
func (b BatchRecord) Row() resultstore.Row {
	return resultstore.Row{
		ClauseID: b.ClauseID,
		Cells:    []string{b.Clause, b.Regulation, b.RiskLevel, b.Analysis},
	}
}

// RecordFromRow rebuilds a batch record from a stored row.
func RecordFromRow(row resultstore.Row) BatchRecord {
	cell := func(i int) string {
		if i < len(row.Cells) {
			return row.Cells[i]
		}
		return ""
	}
	return BatchRecord{ClauseID: row.ClauseID, Clause: cell(0), Regulation: cell(1), RiskLevel: cell(2), Analysis: cell(3)}
}

func (b BatchRecord) complete() bool {
	return b.ClauseID > 0 && b.Clause != "" && b.Regulation != "" && b.RiskLevel != "" && b.Analysis != ""
}

func itoa(n int) string { return strconv.Itoa(n) }
