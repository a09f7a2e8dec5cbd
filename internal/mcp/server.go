package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/lox/spend-advisor/internal/bank"
	"github.com/lox/spend-advisor/internal/extractor"
	"github.com/lox/spend-advisor/internal/types"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Analyzer produces structured insights for an export
type Analyzer interface {
	AnalyzeSpending(ctx context.Context, filePath string) (*types.StructuredInsights, error)
}

type Server struct {
	profiles       *bank.Registry
	defaultProfile string
	analyzer       Analyzer
	logger         *log.Logger
}

// New creates an MCP server. analyzer may be nil, in which case the
// analyze_spending tool reports that no model is configured.
func New(profiles *bank.Registry, defaultProfile string, analyzer Analyzer, logger *log.Logger) *Server {
	return &Server{
		profiles:       profiles,
		defaultProfile: defaultProfile,
		analyzer:       analyzer,
		logger:         logger,
	}
}

// MCPServer builds the tool set without starting a transport
func (s *Server) MCPServer() *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"Spend Advisor",
		"1.0.0",
	)

	mcpServer.AddTool(mcp.NewTool("top_transactions",
		mcp.WithDescription("List the most recent transactions in a bank CSV export"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the CSV export"),
		),
		mcp.WithString("limit",
			mcp.Description(fmt.Sprintf("Maximum number of transactions to return (default: %d)", extractor.DefaultLimit)),
		),
		mcp.WithString("profile",
			mcp.Description("Export profile to read the file with. Defaults to the server's profile."),
		),
	), s.topTransactionsHandler)

	mcpServer.AddTool(mcp.NewTool("category_totals",
		mcp.WithDescription("Sum the spending per category in a bank CSV export"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the CSV export"),
		),
		mcp.WithString("profile",
			mcp.Description("Export profile to read the file with. Defaults to the server's profile."),
		),
	), s.categoryTotalsHandler)

	mcpServer.AddTool(mcp.NewTool("analyze_spending",
		mcp.WithDescription("Ask the model for warnings, tips and achievements about a bank CSV export"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the CSV export"),
		),
	), s.analyzeSpendingHandler)

	return mcpServer
}

// Run serves the tools over stdio until the client disconnects
func (s *Server) Run() error {
	if err := server.ServeStdio(s.MCPServer()); err != nil {
		return err
	}
	return nil
}

type topTransactionsResult struct {
	Profile      string                    `json:"profile"`
	Total        int                       `json:"total"`
	Skipped      int                       `json:"skipped"`
	Degraded     bool                      `json:"degraded"`
	Error        string                    `json:"error,omitempty"`
	Transactions []types.TransactionRecord `json:"transactions"`
}

func (s *Server) topTransactionsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := stringArg(request, "path")
	if err != nil {
		return nil, err
	}

	limit := extractor.DefaultLimit
	if v, ok := request.Params.Arguments["limit"]; ok {
		limit, err = intArg(v)
		if err != nil {
			return nil, fmt.Errorf("limit must be a valid integer: %w", err)
		}
	}

	ex, err := s.extractorFor(request)
	if err != nil {
		return nil, err
	}

	extraction := ex.ExtractTopTransactions(ctx, path, limit)
	result := topTransactionsResult{
		Profile:      ex.Profile().Name(),
		Total:        extraction.Total,
		Skipped:      extraction.Skipped,
		Degraded:     extraction.Degraded(),
		Transactions: extraction.Transactions,
	}
	if extraction.Err != nil {
		result.Error = extraction.Err.Error()
	}

	return jsonResult(result)
}

func (s *Server) categoryTotalsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := stringArg(request, "path")
	if err != nil {
		return nil, err
	}

	ex, err := s.extractorFor(request)
	if err != nil {
		return nil, err
	}

	extraction := ex.Extract(ctx, path)
	if extraction.Err != nil {
		return mcp.NewToolResultError(extraction.Err.Error()), nil
	}

	return jsonResult(ex.Summarize(extraction.Transactions))
}

func (s *Server) analyzeSpendingHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := stringArg(request, "path")
	if err != nil {
		return nil, err
	}
	if s.analyzer == nil {
		return mcp.NewToolResultError("no LLM provider is configured"), nil
	}

	insights, err := s.analyzer.AnalyzeSpending(ctx, path)
	if err != nil {
		s.logger.Error("Failed to analyze spending", "path", path, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to analyze spending: %v", err)), nil
	}

	return jsonResult(insights)
}

func (s *Server) extractorFor(request mcp.CallToolRequest) (*extractor.Extractor, error) {
	name := s.defaultProfile
	if v, ok := request.Params.Arguments["profile"].(string); ok && v != "" {
		name = v
	}
	profile, ok := s.profiles.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown profile %q, available: %v", name, s.profiles.List())
	}
	return extractor.New(profile, s.logger), nil
}

func stringArg(request mcp.CallToolRequest, name string) (string, error) {
	v, ok := request.Params.Arguments[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s must be a non-empty string", name)
	}
	return v, nil
}

func intArg(v any) (int, error) {
	switch v := v.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, errors.New("must be a number or string")
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
