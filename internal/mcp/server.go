package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/cardiopredict/internal/auth"
	"github.com/a3tai/cardiopredict/internal/config"
	"github.com/a3tai/cardiopredict/internal/descriptions"
	"github.com/a3tai/cardiopredict/internal/features"
	"github.com/a3tai/cardiopredict/internal/history"
	"github.com/a3tai/cardiopredict/internal/matcher"
	"github.com/a3tai/cardiopredict/internal/pdf"
	"github.com/a3tai/cardiopredict/internal/predict"
	"github.com/a3tai/cardiopredict/internal/reconcile"
	"github.com/a3tai/cardiopredict/internal/security"
)

const (
	defaultHistoryLimit = 20
	shutdownTimeout     = 5 * time.Second
)

// SubmitterFactory builds a submitter acting for the given session
type SubmitterFactory func(session *auth.Context) (reconcile.Submitter, error)

// Dependencies are the components the tools are built from
type Dependencies struct {
	Schema       *features.Schema
	Loader       *pdf.Loader
	Extractor    *pdf.Extractor
	Matcher      matcher.Matcher
	Sessions     *auth.Store
	History      *history.Store // optional
	NewSubmitter SubmitterFactory
	Logger       *slog.Logger
}

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	deps      Dependencies
	paths     *security.PathValidator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	switch {
	case deps.Schema == nil:
		return nil, fmt.Errorf("schema cannot be nil")
	case deps.Loader == nil || deps.Extractor == nil:
		return nil, fmt.Errorf("loader and extractor cannot be nil")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session store cannot be nil")
	case deps.NewSubmitter == nil:
		return nil, fmt.Errorf("submitter factory cannot be nil")
	}
	if deps.Matcher == nil {
		deps.Matcher = matcher.NewRegexMatcher()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	paths, err := security.NewPathValidator(cfg.ReportDir)
	if err != nil {
		return nil, err
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		deps:      deps,
		paths:     paths,
		logger:    logger,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	schemaTool := mcp.NewTool(
		"cardio_schema",
		mcp.WithDescription(descriptions.CardioSchemaDescription),
		mcp.WithString("disease",
			mcp.Description("Optional disease name to list only its features"),
		),
	)
	s.mcpServer.AddTool(schemaTool, s.handleSchema)

	extractTool := mcp.NewTool(
		"cardio_extract_report",
		mcp.WithDescription(descriptions.CardioExtractReportDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the report PDF, relative to the report directory or absolute inside it"),
		),
	)
	s.mcpServer.AddTool(extractTool, s.handleExtractReport)

	predictTool := mcp.NewTool(
		"cardio_predict",
		mcp.WithDescription(descriptions.CardioPredictDescription),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the report PDF, relative to the report directory or absolute inside it"),
		),
		mcp.WithObject("values",
			mcp.Description("Values for features the report does not contain, keyed by feature name"),
		),
	)
	s.mcpServer.AddTool(predictTool, s.handlePredict)

	historyTool := mcp.NewTool(
		"cardio_history",
		mcp.WithDescription(descriptions.CardioHistoryDescription),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of entries (default 20)"),
		),
	)
	s.mcpServer.AddTool(historyTool, s.handleHistory)
}

func (s *Server) handleSchema(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _ := request.GetArguments()["disease"].(string)

	diseases := s.deps.Schema.Diseases()
	if name != "" {
		d, ok := s.deps.Schema.Disease(name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown disease %q", name)), nil
		}
		diseases = []features.Disease{d}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Required features: %d\n", s.deps.Schema.Len())
	for _, d := range diseases {
		fmt.Fprintf(&b, "\n%s (%s): %d features\n", d.Title, d.Name, len(d.Features))
		for _, f := range d.Features {
			fmt.Fprintf(&b, "  • %s\n", f)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

type extractResponse struct {
	Path    string          `json:"path"`
	Pages   int             `json:"pages"`
	Record  features.Record `json:"record"`
	Missing []string        `json:"missing"`
}

func (s *Server) handleExtractReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.loadReport(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, err := s.deps.Extractor.Inspect(doc.Data)
	if err != nil {
		return mcp.NewToolResultError(userMessage(err)), nil
	}

	text, err := s.deps.Extractor.Extract(ctx, doc.Data)
	if err != nil {
		return mcp.NewToolResultError(userMessage(err)), nil
	}

	record := s.deps.Matcher.Match(text, s.deps.Schema)
	resp := extractResponse{
		Path:    doc.Name,
		Pages:   info.Pages,
		Record:  record,
		Missing: features.Missing(record, s.deps.Schema),
	}
	if resp.Missing == nil {
		resp.Missing = []string{}
	}
	return jsonResult(resp)
}

type predictResponse struct {
	Status      string                           `json:"status"`
	SessionID   string                           `json:"session_id"`
	Missing     []string                         `json:"missing,omitempty"`
	Predictions map[string]predict.DiseaseResult `json:"predictions,omitempty"`
	Summary     string                           `json:"summary,omitempty"`
}

func (s *Server) handlePredict(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	values, err := manualValues(request.GetArguments()["values"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	session, err := s.deps.Sessions.Load()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := session.Require(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.loadReport(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	submitter, err := s.deps.NewSubmitter(session)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rs := reconcile.NewSession(s.deps.Schema, s.deps.Extractor, submitter,
		reconcile.WithMatcher(s.deps.Matcher), reconcile.WithLogger(s.logger))

	if err := rs.Upload(ctx, doc.Data); err != nil {
		return mcp.NewToolResultError(userMessage(err)), nil
	}

	if rs.State() == reconcile.AwaitingManualInput {
		if res := s.applyValues(rs, values); res != nil {
			return res, nil
		}

		err := rs.SubmitManual(ctx)
		var incomplete *reconcile.IncompleteError
		switch {
		case errors.As(err, &incomplete):
			return jsonResult(predictResponse{
				Status:    "incomplete",
				SessionID: rs.ID(),
				Missing:   incomplete.Missing,
			})
		case err != nil:
			return mcp.NewToolResultError(userMessage(err)), nil
		}
	}

	result := rs.Result()
	s.recordHistory(ctx, session, rs.ID(), result)

	var summary strings.Builder
	_ = predict.Render(&summary, result, s.diseaseTitle)

	return jsonResult(predictResponse{
		Status:      "completed",
		SessionID:   rs.ID(),
		Predictions: result.Predictions,
		Summary:     summary.String(),
	})
}

// applyValues sets manual values for missing features. Values for features the
// report already provides are ignored; names outside the schema are an error.
func (s *Server) applyValues(rs *reconcile.Session, values map[string]string) *mcp.CallToolResult {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		if !s.deps.Schema.Has(name) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown feature %q", name))
		}
		err := rs.SetManual(name, values[name])
		if errors.Is(err, reconcile.ErrUnknownField) {
			continue
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error())
		}
	}
	return nil
}

func (s *Server) recordHistory(ctx context.Context, session *auth.Context, sessionID string, result *predict.Result) {
	if s.deps.History == nil || session.Email == "" {
		return
	}
	if _, err := s.deps.History.Record(ctx, session.Email, sessionID, result); err != nil {
		s.logger.WarnContext(ctx, "failed to record history", "session", sessionID, "error", err)
	}
}

type historyEntry struct {
	Disease   string  `json:"disease"`
	Risk      string  `json:"risk"`
	Score     float64 `json:"score"`
	SessionID string  `json:"session_id"`
	CreatedAt string  `json:"created_at"`
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.History == nil {
		return mcp.NewToolResultError("prediction history is not available"), nil
	}

	limit := defaultHistoryLimit
	if raw, ok := request.GetArguments()["limit"]; ok {
		n, ok := raw.(float64)
		if !ok || n < 1 {
			return mcp.NewToolResultError("limit must be a positive number"), nil
		}
		limit = int(n)
	}

	session, err := s.deps.Sessions.Load()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := session.Require(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entries, err := s.deps.History.List(ctx, session.Email, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			Disease:   s.diseaseTitle(e.Disease),
			Risk:      string(e.Risk),
			Score:     e.Score,
			SessionID: e.SessionID,
			CreatedAt: e.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return jsonResult(out)
}

func (s *Server) loadReport(path string) (*pdf.Document, error) {
	resolved, err := s.paths.Resolve(path)
	if err != nil {
		return nil, err
	}
	return s.deps.Loader.LoadFile(resolved)
}

func (s *Server) diseaseTitle(name string) string {
	if d, ok := s.deps.Schema.Disease(name); ok {
		return d.Title
	}
	return name
}

// manualValues converts the tool's values object to manual entries
func manualValues(raw any) (map[string]string, error) {
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("values must be an object of feature names to values")
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			return nil, fmt.Errorf("value for %q must be a string or number", k)
		}
	}
	return out, nil
}

func userMessage(err error) string {
	var ee *pdf.ExtractionError
	if errors.As(err, &ee) {
		return ee.UserMessage()
	}
	return err.Error()
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode runs the server in stdio mode
func (s *Server) runStdioMode(ctx context.Context) error {
	s.logger.DebugContext(ctx, "starting MCP server", "transport", "stdio", "report_dir", s.paths.Root())

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves MCP over HTTP with server-sent events until ctx is done
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.InfoContext(ctx, "starting MCP server", "transport", "sse", "addr", addr, "report_dir", s.paths.Root())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// event streams stay open until their clients leave
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve http: %w", err)
	}
	return nil
}
