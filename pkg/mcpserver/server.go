// Package mcpserver exposes the research engine as an MCP server: the
// fixed tool set {research, recall, evaluate, status} and resources under
// reports://, sessions://, memory:// are served over stdio (for a local
// MCP client) or HTTP+SSE (for a remote one), wrapping
// github.com/modelcontextprotocol/go-sdk/mcp for the server side the same
// way a client-side integration wraps it for outbound calls.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deepresearch-labs/agent/pkg/config"
	"github.com/deepresearch-labs/agent/pkg/memory"
	"github.com/deepresearch-labs/agent/pkg/nodes"
	"github.com/deepresearch-labs/agent/pkg/session"
	"github.com/deepresearch-labs/agent/pkg/state"
	"github.com/deepresearch-labs/agent/pkg/version"
)

// Server wraps an mcp.Server configured with the research engine's tools
// and resources, ready to run over stdio or to be mounted as an HTTP
// handler.
type Server struct {
	mcp *mcpsdk.Server

	sessions  *session.Manager
	memory    memory.SimilarityStore
	evaluator nodes.EvaluationPrompter
	cfg       config.MemoryConfig
}

// New builds a Server. evaluator may be nil, in which case the `evaluate`
// tool reports an error rather than panicking — a degraded-but-running
// server is preferable to refusing to start over one optional tool.
func New(sessions *session.Manager, mem memory.SimilarityStore, evaluator nodes.EvaluationPrompter, cfg config.MemoryConfig) *Server {
	s := &Server{
		sessions:  sessions,
		memory:    mem,
		evaluator: evaluator,
		cfg:       cfg,
	}

	impl := &mcpsdk.Implementation{Name: version.AppName, Version: version.GitCommit}
	s.mcp = mcpsdk.NewServer(impl, nil)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "research",
		Description: "Start a new research session for a query; returns immediately with the session id.",
	}, s.handleResearch)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "recall",
		Description: "Search prior research findings for content similar to a query.",
	}, s.handleRecall)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "evaluate",
		Description: "Score a research report's quality across five fixed dimensions using an LLM judge.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "status",
		Description: "Report a session's current status, progress, and cost.",
	}, s.handleStatus)

	mcpsdk.AddResourceTemplate(s.mcp, &mcpsdk.ResourceTemplate{
		URITemplate: "reports://{session_id}",
		Name:        "report",
		Description: "The final Markdown report for a completed session.",
		MIMEType:    "text/markdown",
	}, s.readReport)

	mcpsdk.AddResourceTemplate(s.mcp, &mcpsdk.ResourceTemplate{
		URITemplate: "sessions://{session_id}",
		Name:        "session",
		Description: "A session's full checkpointed state as JSON.",
		MIMEType:    "application/json",
	}, s.readSession)

	mcpsdk.AddResourceTemplate(s.mcp, &mcpsdk.ResourceTemplate{
		URITemplate: "memory://{query}",
		Name:        "memory-search",
		Description: "Memory entries similar to a query, as JSON.",
		MIMEType:    "application/json",
	}, s.readMemory)

	return s
}

// ServeStdio runs the server over stdio until ctx is cancelled or the
// client disconnects — the shape an MCP client launched as a subprocess
// expects.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcpsdk.StdioTransport{})
}

// HTTPHandler returns an http.Handler serving this server over the
// streamable HTTP+SSE transport, mountable alongside the REST API.
func (s *Server) HTTPHandler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.mcp }, nil)
}

type researchInput struct {
	Query        string  `json:"query"`
	Budget       float64 `json:"budget"`
	OutputFormat string  `json:"output_format"`
}

type researchOutput struct {
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	QueuedPosition *int   `json:"queued_position,omitempty"`
}

func (s *Server) handleResearch(ctx context.Context, req *mcpsdk.CallToolRequest, in researchInput) (*mcpsdk.CallToolResult, researchOutput, error) {
	if in.Query == "" {
		return nil, researchOutput{}, fmt.Errorf("mcpserver: research requires a non-empty query")
	}
	sess, err := s.sessions.Create(ctx, in.Query, in.Budget, in.OutputFormat)
	if err != nil {
		return nil, researchOutput{}, err
	}
	return nil, researchOutput{
		SessionID:      sess.ID,
		Status:         string(sess.Status),
		QueuedPosition: sess.QueuedPosition,
	}, nil
}

type recallInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	// Type, when set, restricts recall to documents stored with that
	// metadata "type" (e.g. "finding") instead of every stored kind.
	Type string `json:"type"`
}

type recallEntry struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Stale   bool    `json:"stale"`
}

type recallOutput struct {
	Entries []recallEntry `json:"entries"`
}

func (s *Server) handleRecall(ctx context.Context, req *mcpsdk.CallToolRequest, in recallInput) (*mcpsdk.CallToolResult, recallOutput, error) {
	if s.memory == nil {
		return nil, recallOutput{}, fmt.Errorf("mcpserver: no memory store configured")
	}
	n := in.MaxResults
	if n <= 0 {
		n = s.cfg.MaxResults
	}
	var filter map[string]string
	if in.Type != "" {
		filter = map[string]string{"type": in.Type}
	}
	results, err := s.memory.Search(ctx, in.Query, n, filter)
	if err != nil {
		return nil, recallOutput{}, err
	}
	out := recallOutput{Entries: formatRecall(results, s.cfg)}
	return nil, out, nil
}

type evaluateInput struct {
	Query  string `json:"query"`
	Report string `json:"report"`
}

func (s *Server) handleEvaluate(ctx context.Context, req *mcpsdk.CallToolRequest, in evaluateInput) (*mcpsdk.CallToolResult, nodes.EvaluationResult, error) {
	if s.evaluator == nil {
		return nil, nodes.EvaluationResult{}, fmt.Errorf("mcpserver: no evaluator configured")
	}
	result, err := s.evaluator.Evaluate(ctx, in.Query, in.Report)
	if err != nil {
		return nil, nodes.EvaluationResult{}, err
	}
	return nil, result, nil
}

type statusInput struct {
	SessionID string `json:"session_id"`
}

type statusOutput struct {
	SessionID  string  `json:"session_id"`
	Status     string  `json:"status"`
	Progress   int     `json:"progress"`
	CostUSD    float64 `json:"cost_usd"`
	TokensUsed int64   `json:"tokens_used"`
	Error      string  `json:"error,omitempty"`
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, in statusInput) (*mcpsdk.CallToolResult, statusOutput, error) {
	sess, err := s.sessions.Get(ctx, in.SessionID)
	if err != nil {
		return nil, statusOutput{}, err
	}
	return nil, statusOutput{
		SessionID:  sess.ID,
		Status:     string(sess.Status),
		Progress:   sess.Progress,
		CostUSD:    sess.CostUSD,
		TokensUsed: sess.TokensUsed,
		Error:      sess.Error,
	}, nil
}

func (s *Server) readReport(ctx context.Context, req *mcpsdk.ReadResourceRequest, sessionID string) (*mcpsdk.ReadResourceResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.FinalReport == "" {
		return nil, fmt.Errorf("mcpserver: session %s has no final report yet (status %s)", sessionID, sess.Status)
	}
	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     sess.FinalReport,
		}},
	}, nil
}

func (s *Server) readSession(ctx context.Context, req *mcpsdk.ReadResourceRequest, sessionID string) (*mcpsdk.ReadResourceResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     sessionJSON(sess),
		}},
	}, nil
}

func (s *Server) readMemory(ctx context.Context, req *mcpsdk.ReadResourceRequest, query string) (*mcpsdk.ReadResourceResult, error) {
	if s.memory == nil {
		return nil, fmt.Errorf("mcpserver: no memory store configured")
	}
	results, err := s.memory.Search(ctx, query, s.cfg.MaxResults, nil)
	if err != nil {
		return nil, err
	}
	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     recallJSON(formatRecall(results, s.cfg)),
		}},
	}, nil
}

func sessionJSON(sess *state.Session) string {
	data, err := marshalIndent(sess)
	if err != nil {
		return "{}"
	}
	return string(data)
}
