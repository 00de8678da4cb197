package runs

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"compliance-backend/internal/chunker"
	"compliance-backend/internal/contracts"
	"compliance-backend/internal/resultstore"
	"compliance-backend/internal/shared/server/middleware"
	"compliance-backend/internal/shared/server/respond"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Handler wires HTTP handlers to the runs service.
type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches run routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/contracts/:id/runs", h.start)
	rg.GET("/runs", h.list)
	rg.GET("/runs/:id", h.get)
	rg.GET("/runs/:id/results", h.results)
	rg.GET("/runs/:id/report", h.report)
	rg.GET("/results/summary", h.summary)
}

type startRequest struct {
	Pipeline  string `json:"pipeline"`
	ChunkMode string `json:"chunkMode"`
	WriteMode string `json:"writeMode"`
}

func (h *Handler) start(c *gin.Context) {
	ownerID := middleware.OwnerIDFromContext(c)
	contractID := c.Param("id")
	c.Set(middleware.ContractIDKey, contractID)

	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid request body", nil)
			return
		}
	}
	opts, details := parseOptions(req)
	if len(details) > 0 {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid run options", details)
		return
	}

	run, err := h.Svc.Create(c.Request.Context(), ownerID, contractID, opts)
	if err != nil {
		switch {
		case errors.Is(err, contracts.ErrNotFound):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "contract not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to start run", nil)
		}
		return
	}
	c.Set(middleware.RunIDKey, run.ID)
	c.Set(middleware.StatusTransitionKey, "->"+StatusQueued)
	respond.JSON(c, http.StatusAccepted, gin.H{
		"runId":  run.ID,
		"status": run.Status,
	})
}

func parseOptions(req startRequest) (Options, []map[string]string) {
	var opts Options
	var details []map[string]string
	switch p := strings.ToLower(strings.TrimSpace(req.Pipeline)); p {
	case "":
	case PipelineClause, PipelineBatch:
		opts.Pipeline = p
	default:
		details = append(details, map[string]string{"field": "pipeline", "issue": "must be clause or batch"})
	}
	switch m := strings.ToLower(strings.TrimSpace(req.ChunkMode)); m {
	case "":
	case string(chunker.ModeFixed), string(chunker.ModeSemantic):
		opts.ChunkMode = chunker.Mode(m)
	default:
		details = append(details, map[string]string{"field": "chunkMode", "issue": "must be semantic or fixed"})
	}
	switch w := strings.ToLower(strings.TrimSpace(req.WriteMode)); w {
	case "":
	case string(resultstore.WriteAppend), string(resultstore.WriteReplace):
		opts.WriteMode = resultstore.WriteMode(w)
	default:
		details = append(details, map[string]string{"field": "writeMode", "issue": "must be append or replace"})
	}
	return opts, details
}

func (h *Handler) get(c *gin.Context) {
	runID := c.Param("id")
	c.Set(middleware.RunIDKey, runID)
	run, err := h.Svc.Get(c.Request.Context(), middleware.OwnerIDFromContext(c), runID)
	if err != nil {
		h.writeError(c, err, "failed to fetch run")
		return
	}
	c.Set(middleware.ContractIDKey, run.ContractID)
	respond.OK(c, run)
}

func (h *Handler) list(c *gin.Context) {
	limit, offset := contracts.Paging(c, 20, 50)
	list, err := h.Svc.List(c.Request.Context(), middleware.OwnerIDFromContext(c), limit, offset)
	if err != nil {
		h.writeError(c, err, "failed to list runs")
		return
	}
	resp := make([]gin.H, 0, len(list))
	for _, run := range list {
		resp = append(resp, gin.H{
			"runId":      run.ID,
			"contractId": run.ContractID,
			"status":     run.Status,
			"pipeline":   run.Pipeline,
			"analyzed":   run.Analyzed,
			"dropped":    run.DroppedCount,
			"createdAt":  run.CreatedAt,
		})
	}
	respond.OK(c, resp)
}

func (h *Handler) results(c *gin.Context) {
	runID := c.Param("id")
	c.Set(middleware.RunIDKey, runID)
	run, schema, rows, err := h.Svc.Results(c.Request.Context(), middleware.OwnerIDFromContext(c), runID)
	if err != nil {
		h.writeError(c, err, "failed to read results")
		return
	}
	values := make([][]string, len(rows))
	for i, row := range rows {
		values[i] = row.Values()
	}
	respond.OK(c, gin.H{
		"runId":   run.ID,
		"schema":  schema.Name,
		"header":  schema.Header,
		"rows":    values,
		"dropped": run.Failures,
		"summary": Summarize(schema, rows),
	})
}

func (h *Handler) report(c *gin.Context) {
	runID := c.Param("id")
	c.Set(middleware.RunIDKey, runID)
	data, run, err := h.Svc.Report(c.Request.Context(), middleware.OwnerIDFromContext(c), runID)
	if err != nil {
		h.writeError(c, err, "failed to build report")
		return
	}
	respond.Attachment(c, "rewritten-clauses-"+run.ID+".docx", docxContentType, data)
}

func (h *Handler) summary(c *gin.Context) {
	summary, err := h.Svc.StoreSummary(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to summarize results")
		return
	}
	respond.OK(c, summary)
}

func (h *Handler) writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "run not found", nil)
	case errors.Is(err, ErrNotCompleted):
		respond.Error(c, http.StatusConflict, respond.CodeNotCompleted, "run has not completed", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
	case errors.Is(err, resultstore.ErrConnectivity):
		respond.Error(c, http.StatusServiceUnavailable, respond.CodeStorageUnavailable, message, nil)
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, message, nil)
	}
}
