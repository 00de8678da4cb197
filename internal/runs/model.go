package runs

import (
	"time"

	"compliance-backend/internal/analysis"
	"compliance-backend/internal/orchestrator"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	PipelineClause = "clause"
	PipelineBatch  = "batch"
)

// Run is one analysis pass over a contract.
type Run struct {
	ID         string `json:"runId"`
	ContractID string `json:"contractId"`
	OwnerID    string `json:"-"`
	Status     string `json:"status"`
	Pipeline   string `json:"pipeline"`
	ChunkMode  string `json:"chunkMode"`
	WriteMode  string `json:"writeMode"`

	ClauseCount    int    `json:"clauseCount"`
	Analyzed       int    `json:"analyzed"`
	DroppedCount   int    `json:"dropped"`
	Degraded       bool   `json:"degraded"`
	DegradedReason string `json:"degradedReason,omitempty"`
	Violations     int    `json:"violations"`
	StartID        int    `json:"startId,omitempty"`

	Results  []analysis.Result          `json:"results,omitempty"`
	Records  []analysis.BatchRecord     `json:"records,omitempty"`
	Failures []orchestrator.TaskFailure `json:"failures,omitempty"`

	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Payload is the JSON body stored with a completed run.
type Payload struct {
	Results  []analysis.Result          `json:"results,omitempty"`
	Records  []analysis.BatchRecord     `json:"records,omitempty"`
	Failures []orchestrator.TaskFailure `json:"failures,omitempty"`
}

func (r Run) payload() Payload {
	return Payload{Results: r.Results, Records: r.Records, Failures: r.Failures}
}

// EndID is one past the last clause id this run committed.
func (r Run) EndID() int {
	return r.StartID + r.ClauseCount
}
