package analysis

import (
	"encoding/json"
	"fmt"
)

const (
	clauseMaxTokens    = 400
	keyPhraseMaxTokens = 100
	rewriteMaxTokens   = 300
	batchMaxTokens     = 1200
)

func clausePrompt(clause string) string {
	return "Analyze this contract clause for compliance risk. Return the result in this format ONLY:\n" +
		"Regulation: <GDPR/CCPA/HIPAA/Other/None>\n" +
		"Summary: <your 1-2 sentence summary under 100 words>\n" +
		"Risk: <High/Medium/Low>\n" +
		"Risk Percentage: <A percentage value from 0-100>\n" +
		"AI-Modified Clause: <Rewrite any High or Medium risk clause to reduce its risk. If the original risk is Low, return the original clause.>\n" +
		"AI-Modified Risk Level: <Reassess the rewritten clause's risk. Must be Low.>\n\n" +
		"Clause: " + clause
}

func keyPhrasePrompt(clause string) string {
	return "Read the following contract clause. " +
		"Extract the most important phrases that summarize its core obligation or purpose. " +
		"Return only the phrases as a comma-separated list. " +
		"Clause: " + clause
}

func rewritePrompt(clause, riskLevel string) string {
	return fmt.Sprintf("The following contract clause has been assessed as %s risk. "+
		"Rewrite this clause to make it compliant with relevant regulations (e.g., GDPR, HIPAA), "+
		"while keeping the legal meaning intact. Return only the rewritten clause text.\n\n"+
		"Original Clause:\n%s", riskLevel, clause)
}

type batchInput struct {
	ClauseID int    `json:"Clause ID"`
	Clause   string `json:"Contract Clause"`
}

func batchPrompt(clauses []string, startID int) string {
	in := make([]batchInput, len(clauses))
	for i, cl := range clauses {
		in[i] = batchInput{ClauseID: startID + i, Clause: cl}
	}
	payload, _ := json.Marshal(in)
	return `You are a compliance AI assistant.
Analyze the following contract clauses against GDPR, CCPA, and HIPAA.

Return ONLY valid JSON (no markdown, no explanations outside JSON).
Format strictly as a JSON list of objects like this:
[
  {
    "Clause ID": <number>,
    "Contract Clause": "<text>",
    "Regulation": "<GDPR/CCPA/HIPAA/None>",
    "Risk Level": "<High/Medium/Low/None>",
    "AI Analysis": "<short explanation>"
  }
]

Clauses to analyze:
` + string(payload)
}
