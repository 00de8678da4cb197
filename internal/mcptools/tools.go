// Package mcptools exposes the chunker, the classifier and the clause
// analysis pipeline as Model Context Protocol tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"compliance-backend/internal/analysis"
	"compliance-backend/internal/chunker"
	"compliance-backend/internal/classifier"
	"compliance-backend/internal/extract"
	"compliance-backend/internal/llm"
	"compliance-backend/internal/shared/telemetry"
)

// Tool names.
const (
	ToolClassify = "classify_clause"
	ToolChunk    = "chunk_contract"
	ToolAnalyze  = "analyze_clause"
)

// ProviderSource yields the providers that pass their checks.
type ProviderSource interface {
	Available(ctx context.Context) ([]llm.Provider, error)
}

// ClauseAnalyzer runs the per-clause pipeline.
type ClauseAnalyzer interface {
	AnalyzeClause(ctx context.Context, clause string, providers []llm.Provider) (*analysis.Result, error)
}

// Tools holds what the handlers call into. analyze_clause is only registered
// when both Analyzer and Providers are set.
type Tools struct {
	Chunker   *chunker.Chunker
	Analyzer  ClauseAnalyzer
	Providers ProviderSource
}

type ClassifyInput struct {
	Text string `json:"text" jsonschema:"clause text to classify"`
}

type ChunkInput struct {
	Text string `json:"text,omitempty" jsonschema:"contract text, ignored when path is set"`
	Path string `json:"path,omitempty" jsonschema:"local pdf or docx file to extract first"`
	Mode string `json:"mode,omitempty" jsonschema:"semantic or fixed, default fixed"`
}

type AnalyzeInput struct {
	Clause string `json:"clause" jsonschema:"one contract clause"`
}

var errEmptyText = errors.New("text is required")

// NewServer registers the tools on a fresh MCP server.
func NewServer(t *Tools, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "compliance-tools",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolClassify,
		Description: "Classify a clause by legal category and data-protection relevance tier.",
	}, t.Classify)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolChunk,
		Description: "Split contract text (or a local pdf/docx) into numbered clauses with classification metadata.",
	}, t.Chunk)
	if t.Analyzer != nil && t.Providers != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        ToolAnalyze,
			Description: "Assess one clause for regulatory risk and propose a compliant rewrite.",
		}, t.Analyze)
	}
	return server
}

func (t *Tools) Classify(_ context.Context, _ *mcp.CallToolRequest, in ClassifyInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Text) == "" {
		return toolError(ToolClassify, errEmptyText), nil, nil
	}
	return jsonResult(ToolClassify, classifier.Classify(in.Text))
}

func (t *Tools) Chunk(ctx context.Context, _ *mcp.CallToolRequest, in ChunkInput) (*mcp.CallToolResult, any, error) {
	text := in.Text
	if path := strings.TrimSpace(in.Path); path != "" {
		extracted, err := extract.ExtractFile(ctx, path)
		if err != nil {
			return toolError(ToolChunk, err), nil, nil
		}
		text = extracted
	}
	if strings.TrimSpace(text) == "" {
		return toolError(ToolChunk, errEmptyText), nil, nil
	}
	mode := chunker.ModeFixed
	if strings.TrimSpace(in.Mode) != "" {
		mode = chunker.ParseMode(in.Mode)
	}
	c := t.Chunker
	if c == nil {
		c = chunker.New(chunker.DefaultOptions())
	}
	res, err := c.Chunk(ctx, text, mode)
	if err != nil {
		return toolError(ToolChunk, err), nil, nil
	}
	return jsonResult(ToolChunk, res)
}

func (t *Tools) Analyze(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Clause) == "" {
		return toolError(ToolAnalyze, errEmptyText), nil, nil
	}
	providers, err := t.Providers.Available(ctx)
	if err != nil {
		return toolError(ToolAnalyze, err), nil, nil
	}
	res, err := t.Analyzer.AnalyzeClause(ctx, in.Clause, providers)
	if err != nil {
		return toolError(ToolAnalyze, err), nil, nil
	}
	return jsonResult(ToolAnalyze, res)
}

func jsonResult(tool string, v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(tool, err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func toolError(tool string, err error) *mcp.CallToolResult {
	telemetry.Warn("mcp.tool.failed", map[string]any{"tool": tool, "error": err.Error()})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
