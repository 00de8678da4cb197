package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(svc *Service, owner string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", owner)
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerStartRun(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	r := newTestRouter(env.svc, "guest:g")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/contracts/c1/runs", map[string]string{"pipeline": "batch", "chunkMode": "fixed"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		RunID  string `json:"runId"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID == "" || resp.Status != StatusQueued {
		t.Fatalf("unexpected response: %+v", resp)
	}
	run, err := env.repo.GetByID(context.Background(), resp.RunID)
	if err != nil {
		t.Fatalf("run not stored: %v", err)
	}
	if run.Pipeline != PipelineBatch || run.ChunkMode != "fixed" {
		t.Fatalf("options not applied: %+v", run)
	}
}

func TestHandlerStartRunWithoutBody(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	r := newTestRouter(env.svc, "guest:g")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts/c1/runs", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerStartRunValidation(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	r := newTestRouter(env.svc, "guest:g")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/contracts/c1/runs", map[string]string{"pipeline": "stream", "writeMode": "merge"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp struct {
		Error struct {
			Code    string              `json:"code"`
			Details []map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "validation_error" || len(resp.Error.Details) != 2 {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
	if len(env.queue.messages) != 0 {
		t.Fatal("invalid request must not enqueue")
	}
}

func TestHandlerStartRunUnknownContract(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	r := newTestRouter(env.svc, "guest:g")
	rec := doJSON(t, r, http.MethodPost, "/api/v1/contracts/nope/runs", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandlerRunLifecycle(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	r := newTestRouter(env.svc, "guest:g")
	ctx := context.Background()
	run, err := env.svc.Create(ctx, "guest:g", "c1", Options{ChunkMode: "fixed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := doJSON(t, r, http.MethodGet, "/api/v1/runs/"+run.ID+"/results", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before completion, got %d", rec.Code)
	}

	if err := env.svc.Process(ctx, run.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/runs/"+run.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got Run
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if got.Status != StatusCompleted || got.OwnerID != "" {
		t.Fatalf("unexpected run body: %s", rec.Body.String())
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/runs/"+run.ID+"/results", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var results struct {
		Schema  string     `json:"schema"`
		Header  []string   `json:"header"`
		Rows    [][]string `json:"rows"`
		Summary Summary    `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if results.Schema != "clause" || len(results.Header) != 6 || len(results.Rows) != got.Analyzed {
		t.Fatalf("unexpected results: %s", rec.Body.String())
	}
	if results.Summary.TotalClauses != got.Analyzed || results.Summary.Score == nil {
		t.Fatalf("unexpected summary: %+v", results.Summary)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/runs/"+run.ID+"/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != docxContentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatal("report body is not a docx package")
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/results/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, r, http.MethodGet, "/api/v1/runs", nil)
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("unexpected list: %s", rec.Body.String())
	}
}

func TestHandlerRunNotVisibleToOtherOwner(t *testing.T) {
	env := newTestEnv(t, staticProviders{})
	run, _ := env.svc.Create(context.Background(), "guest:g", "c1", Options{})
	r := newTestRouter(env.svc, "guest:other")
	rec := doJSON(t, r, http.MethodGet, "/api/v1/runs/"+run.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
