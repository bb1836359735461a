package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/corentings/chess"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dmmcquay/stockfish-mcp/internal/cache"
	"github.com/dmmcquay/stockfish-mcp/internal/config"
	"github.com/dmmcquay/stockfish-mcp/internal/engine"
	"github.com/dmmcquay/stockfish-mcp/internal/logging"
)

// ToolsHandler manages MCP tools for chess move analysis.
type ToolsHandler struct {
	engine     engine.MoveGenerator
	logger     logging.ContextLogger
	middleware *Middleware
	cache      *cache.Manager
	engineCfg  *config.EngineConfig
}

// rankedMove is one entry of an analysis result, best move first.
type rankedMove struct {
	Rank     int     `json:"rank"`
	Move     string  `json:"move"`
	Score    float64 `json:"score"`
	Depth    int     `json:"depth"`
	SelDepth int     `json:"selDepth"`
}

// analysisResult is the cached and rendered outcome of a search.
type analysisResult struct {
	Kind      string       `json:"kind"`
	MoveCount int          `json:"moveCount"`
	Moves     []rankedMove `json:"moves"`
}

// NewToolsHandler creates a new tools handler.
func NewToolsHandler(gen engine.MoveGenerator, engineCfg *config.EngineConfig, logger logging.ContextLogger) *ToolsHandler {
	return &ToolsHandler{
		engine:    gen,
		logger:    logger,
		engineCfg: engineCfg,
	}
}

// SetMiddleware sets the middleware for the tools handler.
func (h *ToolsHandler) SetMiddleware(middleware *Middleware) {
	h.middleware = middleware
}

// SetCache sets the result cache for the tools handler.
func (h *ToolsHandler) SetCache(c *cache.Manager) {
	h.cache = c
}

// RegisterTools registers all tools with the MCP server.
func (h *ToolsHandler) RegisterTools(s *server.MCPServer) {
	// Register generateMoves tool
	generateMovesTool := mcp.NewTool("generateMoves",
		mcp.WithDescription("Analyze a chess position and rank candidate moves, with engine strength capped to an Elo rating"),
		mcp.WithString("fen",
			mcp.Description("Position to analyze, in FEN notation"),
			mcp.Required(),
		),
		mcp.WithNumber("rating",
			mcp.Description("Elo rating cap for the engine"),
			mcp.Required(),
		),
		mcp.WithNumber("minThinkTimeMs",
			mcp.Description("Minimum thinking time in milliseconds (overrides default)"),
		),
		mcp.WithNumber("maxThinkTimeMs",
			mcp.Description("Maximum thinking time in milliseconds (overrides default)"),
		),
		mcp.WithBoolean("useOpeningBook",
			mcp.Description("Allow the engine to answer from its opening book"),
		),
	)
	generateHandler := h.HandleGenerateMoves
	if h.middleware != nil {
		generateHandler = h.middleware.WrapTool("generateMoves", generateHandler)
	}
	s.AddTool(generateMovesTool, generateHandler)

	// Register generateMovesWithSkill tool
	generateSkillTool := mcp.NewTool("generateMovesWithSkill",
		mcp.WithDescription("Analyze a chess position and rank candidate moves at a fixed skill level"),
		mcp.WithString("fen",
			mcp.Description("Position to analyze, in FEN notation"),
			mcp.Required(),
		),
		mcp.WithNumber("skillLevel",
			mcp.Description("Engine skill level (0-20)"),
			mcp.Required(),
		),
		mcp.WithNumber("maxDepth",
			mcp.Description("Search depth limit; 0 searches on time alone"),
		),
		mcp.WithNumber("contempt",
			mcp.Description("Contempt value for the engine"),
		),
		mcp.WithNumber("minThinkTimeMs",
			mcp.Description("Minimum thinking time in milliseconds (overrides default)"),
		),
		mcp.WithNumber("maxThinkTimeMs",
			mcp.Description("Maximum thinking time in milliseconds (overrides default)"),
		),
		mcp.WithBoolean("useOpeningBook",
			mcp.Description("Allow the engine to answer from its opening book"),
		),
	)
	skillHandler := h.HandleGenerateMovesWithSkill
	if h.middleware != nil {
		skillHandler = h.middleware.WrapTool("generateMovesWithSkill", skillHandler)
	}
	s.AddTool(generateSkillTool, skillHandler)

	// Register getMove tool
	getMoveTool := mcp.NewTool("getMove",
		mcp.WithDescription("Get one move from the most recent analysis by rank (0 = best)"),
		mcp.WithNumber("index",
			mcp.Description("Rank of the move to fetch"),
			mcp.Required(),
		),
	)
	getMoveHandler := h.HandleGetMove
	if h.middleware != nil {
		getMoveHandler = h.middleware.WrapTool("getMove", getMoveHandler)
	}
	s.AddTool(getMoveTool, getMoveHandler)

	// Register loadOpeningBook tool
	loadBookTool := mcp.NewTool("loadOpeningBook",
		mcp.WithDescription("Load a Polyglot opening book into the engine"),
		mcp.WithString("data",
			mcp.Description("Base64-encoded opening book contents"),
			mcp.Required(),
		),
	)
	loadBookHandler := h.HandleLoadOpeningBook
	if h.middleware != nil {
		loadBookHandler = h.middleware.WrapTool("loadOpeningBook", loadBookHandler)
	}
	s.AddTool(loadBookTool, loadBookHandler)

	// Register getEngineStatus tool
	statusTool := mcp.NewTool("getEngineStatus",
		mcp.WithDescription("Get the status of the chess engine"),
	)
	statusHandler := h.HandleGetEngineStatus
	if h.middleware != nil {
		statusHandler = h.middleware.WrapTool("getEngineStatus", statusHandler)
	}
	s.AddTool(statusTool, statusHandler)
}

// HandleGenerateMoves handles the generateMoves tool.
func (h *ToolsHandler) HandleGenerateMoves(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	ctx = logging.ContextWithRequestID(ctx, logging.GenerateRequestID())
	logger := h.logger.WithContext(ctx).WithField("tool", "generateMoves")

	logger.Info("Handling generateMoves request")

	argsMap, err := requestArgs(request)
	if err != nil {
		return nil, err
	}

	fen, err := fenArg(argsMap)
	if err != nil {
		return nil, err
	}

	rating, ok := intArg(argsMap, "rating")
	if !ok {
		return nil, fmt.Errorf("missing required parameter 'rating'")
	}

	minTimeMs, maxTimeMs := h.thinkTimes(argsMap)
	useBook := boolArg(argsMap, "useOpeningBook")

	key := cache.SearchKey{
		FEN:            fen,
		Mode:           "rating",
		Rating:         rating,
		MinThinkTimeMs: minTimeMs,
		MaxThinkTimeMs: maxTimeMs,
		UseOpeningBook: useBook,
	}
	if result, ok := h.cachedResult(key, logger); ok {
		return mcp.NewToolResultText(formatAnalysis(result)), nil
	}

	count, err := h.engine.GenerateMoves(ctx, fen, minTimeMs, maxTimeMs, rating, useBook)
	if err != nil {
		logger.Error("Move generation failed", "error", err)
		return nil, fmt.Errorf("move generation failed: %w", err)
	}

	result := h.collectResult(count)
	h.storeResult(key, result, logger)

	logger.Info("Move generation completed", "kind", result.Kind, "moves", len(result.Moves))
	return mcp.NewToolResultText(formatAnalysis(result)), nil
}

// HandleGenerateMovesWithSkill handles the generateMovesWithSkill tool.
func (h *ToolsHandler) HandleGenerateMovesWithSkill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	ctx = logging.ContextWithRequestID(ctx, logging.GenerateRequestID())
	logger := h.logger.WithContext(ctx).WithField("tool", "generateMovesWithSkill")

	logger.Info("Handling generateMovesWithSkill request")

	argsMap, err := requestArgs(request)
	if err != nil {
		return nil, err
	}

	fen, err := fenArg(argsMap)
	if err != nil {
		return nil, err
	}

	skillLevel, ok := intArg(argsMap, "skillLevel")
	if !ok {
		return nil, fmt.Errorf("missing required parameter 'skillLevel'")
	}

	maxDepth, _ := intArg(argsMap, "maxDepth")
	contempt, _ := intArg(argsMap, "contempt")
	minTimeMs, maxTimeMs := h.thinkTimes(argsMap)
	useBook := boolArg(argsMap, "useOpeningBook")

	key := cache.SearchKey{
		FEN:            fen,
		Mode:           "skill",
		SkillLevel:     skillLevel,
		Contempt:       contempt,
		MaxDepth:       maxDepth,
		MinThinkTimeMs: minTimeMs,
		MaxThinkTimeMs: maxTimeMs,
		UseOpeningBook: useBook,
	}
	if result, ok := h.cachedResult(key, logger); ok {
		return mcp.NewToolResultText(formatAnalysis(result)), nil
	}

	count, err := h.engine.GenerateMovesWithSkill(ctx, fen, minTimeMs, maxTimeMs, skillLevel, maxDepth, contempt, useBook)
	if err != nil {
		logger.Error("Move generation failed", "error", err)
		return nil, fmt.Errorf("move generation failed: %w", err)
	}

	result := h.collectResult(count)
	h.storeResult(key, result, logger)

	logger.Info("Move generation completed", "kind", result.Kind, "moves", len(result.Moves))
	return mcp.NewToolResultText(formatAnalysis(result)), nil
}

// HandleGetMove handles the getMove tool.
func (h *ToolsHandler) HandleGetMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	logger := h.logger.WithContext(ctx).WithField("tool", "getMove")

	argsMap, err := requestArgs(request)
	if err != nil {
		return nil, err
	}

	index, ok := intArg(argsMap, "index")
	if !ok {
		return nil, fmt.Errorf("missing required parameter 'index'")
	}

	move := h.engine.GetMove(index)
	if move == "" {
		logger.Debug("No move at requested rank", "index", index)
		return mcp.NewToolResultText(fmt.Sprintf("No move at rank %d", index)), nil
	}

	info := fmt.Sprintf("Move %d: %s (score %.2f, depth %d, seldepth %d)",
		index, move,
		h.engine.GetMoveScore(index),
		h.engine.GetMoveDepth(index),
		h.engine.GetMoveCompletedDepth(index))
	return mcp.NewToolResultText(info), nil
}

// HandleLoadOpeningBook handles the loadOpeningBook tool.
func (h *ToolsHandler) HandleLoadOpeningBook(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	logger := h.logger.WithContext(ctx).WithField("tool", "loadOpeningBook")

	logger.Info("Handling loadOpeningBook request")

	argsMap, err := requestArgs(request)
	if err != nil {
		return nil, err
	}

	dataVal, ok := argsMap["data"]
	if !ok {
		return nil, fmt.Errorf("missing required parameter 'data'")
	}
	encoded, ok := dataVal.(string)
	if !ok {
		return nil, fmt.Errorf("data must be a base64 string")
	}

	book, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode opening book: %w", err)
	}
	if len(book) == 0 {
		return nil, fmt.Errorf("opening book is empty")
	}

	if err := h.engine.SetOpeningBook(book); err != nil {
		logger.Error("Failed to load opening book", "error", err)
		return nil, fmt.Errorf("failed to load opening book: %w", err)
	}

	logger.Info("Opening book loaded", "bytes", len(book))
	return mcp.NewToolResultText(fmt.Sprintf("Opening book loaded (%d bytes)", len(book))), nil
}

// HandleGetEngineStatus handles the getEngineStatus tool.
func (h *ToolsHandler) HandleGetEngineStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	ctx = logging.ContextWithRequestID(ctx, logging.GenerateRequestID())
	logger := h.logger.WithContext(ctx).WithField("tool", "getEngineStatus")

	logger.Info("Handling getEngineStatus request")

	status := "stopped"
	if h.engine.IsRunning() {
		status = "running"
	}

	logger.Debug("Engine status checked", "status", status)
	info := fmt.Sprintf("Chess engine status: %s", status)
	if h.cache != nil && h.cache.IsEnabled() {
		stats := h.cache.Stats()
		info += fmt.Sprintf("\nResult cache: %d entries, %.0f%% hit rate", stats.Items, stats.HitRate*100)
	}
	return mcp.NewToolResultText(info), nil
}

// thinkTimes resolves per-request think times against configured defaults.
func (h *ToolsHandler) thinkTimes(args map[string]interface{}) (int, int) {
	minTimeMs := h.engineCfg.MinThinkTimeMs
	maxTimeMs := h.engineCfg.MaxThinkTimeMs
	if v, ok := intArg(args, "minThinkTimeMs"); ok && v > 0 {
		minTimeMs = v
	}
	if v, ok := intArg(args, "maxThinkTimeMs"); ok && v > 0 {
		maxTimeMs = v
	}
	return minTimeMs, maxTimeMs
}

// cachedResult looks up a previous result for the same request.
func (h *ToolsHandler) cachedResult(key cache.SearchKey, logger logging.ContextLogger) (*analysisResult, bool) {
	if h.cache == nil || !h.cache.IsEnabled() {
		return nil, false
	}
	hash, err := h.cache.CacheKey(key)
	if err != nil {
		return nil, false
	}
	val, ok := h.cache.Get(hash)
	if !ok {
		return nil, false
	}
	result, ok := val.(*analysisResult)
	if !ok {
		return nil, false
	}
	logger.Debug("Serving analysis from cache", "key", hash)
	return result, true
}

// storeResult caches a freshly computed result.
func (h *ToolsHandler) storeResult(key cache.SearchKey, result *analysisResult, logger logging.ContextLogger) {
	if h.cache == nil || !h.cache.IsEnabled() {
		return
	}
	hash, err := h.cache.CacheKey(key)
	if err != nil {
		logger.Warn("Failed to derive cache key", "error", err)
		return
	}
	h.cache.Put(hash, result)
}

// collectResult reads the ranked list out of the engine after a search.
func (h *ToolsHandler) collectResult(count engine.MoveCount) *analysisResult {
	result := &analysisResult{
		Kind:      count.Kind.String(),
		MoveCount: count.Sentinel(),
	}
	for i := 0; ; i++ {
		move := h.engine.GetMove(i)
		if move == "" {
			break
		}
		result.Moves = append(result.Moves, rankedMove{
			Rank:     i,
			Move:     move,
			Score:    h.engine.GetMoveScore(i),
			Depth:    h.engine.GetMoveDepth(i),
			SelDepth: h.engine.GetMoveCompletedDepth(i),
		})
	}
	return result
}

// formatAnalysis renders an analysis result as readable text.
func formatAnalysis(result *analysisResult) string {
	var sb strings.Builder
	sb.WriteString("# Move Analysis\n\n")

	switch result.Kind {
	case "book_fallback":
		sb.WriteString("Answered from the opening book.\n\n")
	case "no_result":
		sb.WriteString("The search produced no candidate moves.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Candidate moves: %d\n\n", len(result.Moves)))
	for _, m := range result.Moves {
		if result.Kind == "book_fallback" {
			sb.WriteString(fmt.Sprintf("%d. **%s** (book move)\n", m.Rank, m.Move))
			continue
		}
		sb.WriteString(fmt.Sprintf("%d. **%s** (score %.2f, depth %d, seldepth %d)\n",
			m.Rank, m.Move, m.Score, m.Depth, m.SelDepth))
	}

	return sb.String()
}

// requestArgs extracts the argument map from a tool request.
func requestArgs(request mcp.CallToolRequest) (map[string]interface{}, error) {
	args := request.Params.Arguments
	if args == nil {
		return nil, fmt.Errorf("missing arguments")
	}
	argsMap, ok := args.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid arguments format")
	}
	return argsMap, nil
}

// fenArg extracts and validates the FEN parameter.
func fenArg(args map[string]interface{}) (string, error) {
	fenVal, ok := args["fen"]
	if !ok {
		return "", fmt.Errorf("missing required parameter 'fen'")
	}
	fen, ok := fenVal.(string)
	if !ok {
		return "", fmt.Errorf("fen must be a string")
	}
	if _, err := chess.FEN(fen); err != nil {
		return "", fmt.Errorf("invalid FEN: %w", err)
	}
	return fen, nil
}

// intArg extracts an integer parameter, tolerating JSON float decoding.
func intArg(args map[string]interface{}, name string) (int, bool) {
	val, ok := args[name]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// boolArg extracts a boolean parameter, defaulting to false.
func boolArg(args map[string]interface{}, name string) bool {
	if val, ok := args[name]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
