package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmmcquay/stockfish-mcp/internal/logging"
	"github.com/dmmcquay/stockfish-mcp/internal/metrics"
)

// ResultKind classifies the outcome of one analysis call.
type ResultKind int

const (
	// Analyzed means the search produced at least one ranked candidate.
	Analyzed ResultKind = iota
	// NoResult means the search produced nothing and no fallback applied.
	NoResult
	// BookFallback means no candidates were analyzed but an opening-book
	// move was substituted at index 0.
	BookFallback
)

// MoveCount is the tri-state result of an analysis call. Callers that need
// the legacy numeric encoding use Sentinel; everyone else switches on Kind.
type MoveCount struct {
	Kind ResultKind
	// N is the number of ranked candidates available for indexed queries.
	N int
}

// Sentinel returns the numeric encoding used at compatibility boundaries:
// the candidate count for an analyzed result, -1 otherwise. A negative value
// does not mean "no move": a book-fallback result still places one usable
// move at index 0.
func (m MoveCount) Sentinel() int {
	if m.Kind == Analyzed {
		return m.N
	}
	return -1
}

func (k ResultKind) String() string {
	switch k {
	case Analyzed:
		return "analyzed"
	case NoResult:
		return "no_result"
	case BookFallback:
		return "book_fallback"
	default:
		return "unknown"
	}
}

// Engine is the synchronous move-analysis facade over one search backend
// instance. Each Engine owns its own session lock, candidate aggregator and
// last ranked result; instances never share state, so independent engines can
// analyze different positions concurrently.
type Engine struct {
	backend SearchBackend
	logger  logging.ContextLogger
	prom    *metrics.PrometheusCollector

	// mu is the search session lock: it serializes analysis calls and
	// indexed queries on this instance. There is no lock-free read path for
	// the stored result.
	mu          sync.Mutex
	ranked      []Candidate
	initialized bool
	fen         string
}

// New creates an engine facade around the given backend. The backend process
// must be started separately before Initialize is called.
func New(backend SearchBackend, logger logging.ContextLogger) *Engine {
	return &Engine{
		backend: backend,
		logger:  logger,
	}
}

// SetMetrics attaches a Prometheus collector for search observability.
func (e *Engine) SetMetrics(p *metrics.PrometheusCollector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prom = p
}

// Initialize performs one-time backend setup: a single worker thread, the
// hash table size, and the number of principal variations to track (which
// bounds how many candidates one search can rank). It runs under the session
// lock so it serializes against any concurrent query. Failure here is fatal
// for the instance, not retryable.
func (e *Engine) Initialize(hashSizeMB, maxCandidateCount int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return fmt.Errorf("engine already initialized")
	}
	if err := e.backend.Initialize(hashSizeMB, maxCandidateCount); err != nil {
		return fmt.Errorf("backend setup failed: %w", err)
	}
	e.initialized = true
	e.logger.Info("Engine initialized",
		"hash_mb", hashSizeMB,
		"max_candidates", maxCandidateCount,
	)
	return nil
}

// SetOpeningBook loads an opening-book blob into the backend. Success means
// the backend accepted the blob; nothing is validated on this side.
func (e *Engine) SetOpeningBook(book []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.backend.LoadBook(book); err != nil {
		return fmt.Errorf("failed to load opening book: %w", err)
	}
	e.logger.Info("Opening book loaded", "size_bytes", len(book))
	return nil
}

// GenerateMoves analyzes fen with backend strength capped to approximate the
// target rating. The call blocks until the backend finishes, bounded by
// maxTimeMs (a soft bound the backend enforces). The ranked result is stored
// on the instance for indexed queries until the next call overwrites it.
func (e *Engine) GenerateMoves(ctx context.Context, fen string, minTimeMs, maxTimeMs, rating int, useOpeningBook bool) (MoveCount, error) {
	cfg := RatingLimitedConfig(rating, minTimeMs, useOpeningBook)
	limits := SearchLimits{MoveTimeMs: maxTimeMs}
	return e.generate(ctx, "rating", fen, cfg, limits, useOpeningBook)
}

// GenerateMovesWithSkill analyzes fen at an explicit skill tier and contempt,
// with both a movetime and a depth cap.
func (e *Engine) GenerateMovesWithSkill(ctx context.Context, fen string, minTimeMs, maxTimeMs, skillLevel, maxDepth, contempt int, useOpeningBook bool) (MoveCount, error) {
	cfg := SkillLimitedConfig(skillLevel, contempt, minTimeMs, useOpeningBook)
	limits := SearchLimits{MoveTimeMs: maxTimeMs, Depth: maxDepth}
	return e.generate(ctx, "skill", fen, cfg, limits, useOpeningBook)
}

// generate runs the shared orchestration skeleton: acquire the session lock,
// configure, set position, launch the search, block on completion, drain into
// the ranked result.
//
// Each call owns a fresh aggregation set. A cancelled call's backend goroutine
// may still hold the old set's callback; whatever it delivers there lands in a
// set no later call reads.
func (e *Engine) generate(ctx context.Context, mode, fen string, cfg SearchConfig, limits SearchLimits, useOpeningBook bool) (MoveCount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return MoveCount{Kind: NoResult}, fmt.Errorf("engine not initialized")
	}

	start := time.Now()

	if err := e.backend.Configure(cfg); err != nil {
		return MoveCount{Kind: NoResult}, fmt.Errorf("failed to configure backend: %w", err)
	}
	if err := e.backend.SetPosition(fen); err != nil {
		return MoveCount{Kind: NoResult}, fmt.Errorf("failed to set position: %w", err)
	}
	e.fen = fen

	agg := newAggregator()
	if err := e.backend.StartSearch(limits, agg.onCandidate); err != nil {
		return MoveCount{Kind: NoResult}, fmt.Errorf("failed to start search: %w", err)
	}

	bestMove, err := e.backend.WaitSearchFinished(ctx)
	if err != nil {
		return MoveCount{Kind: NoResult}, fmt.Errorf("search did not finish: %w", err)
	}

	ranked := agg.drainRanked()
	result := MoveCount{Kind: NoResult}
	switch {
	case len(ranked) > 0:
		result = MoveCount{Kind: Analyzed, N: len(ranked)}
	case useOpeningBook && bestMove != "":
		// Nothing was analyzed but the book supplied a move; surface it at
		// index 0 with zeroed metadata.
		ranked = []Candidate{{Move: bestMove}}
		result = MoveCount{Kind: BookFallback, N: 1}
	}
	e.ranked = ranked

	elapsed := time.Since(start)
	e.logger.Info("Search finished",
		"mode", mode,
		"result", result.Kind.String(),
		"candidates", len(ranked),
		"elapsed", elapsed,
	)
	if e.prom != nil {
		e.prom.RecordSearch(mode, elapsed.Seconds(), len(ranked))
		if result.Kind == BookFallback {
			e.prom.RecordBookFallback()
		}
	}

	return result, nil
}

// GetMove returns the ranked move at index in long algebraic notation, or ""
// when index is out of range. Out-of-range access is silent, never an error.
func (e *Engine) GetMove(index int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.ranked) {
		return ""
	}
	return e.ranked[index].Move
}

// GetMoveScore returns the score at index, or 0 when out of range.
func (e *Engine) GetMoveScore(index int) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.ranked) {
		return 0
	}
	return e.ranked[index].Score
}

// GetMoveDepth returns the search depth at index, or 0 when out of range.
func (e *Engine) GetMoveDepth(index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.ranked) {
		return 0
	}
	return e.ranked[index].Depth
}

// GetMoveCompletedDepth returns the selective depth at index, or 0 when out
// of range.
func (e *Engine) GetMoveCompletedDepth(index int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.ranked) {
		return 0
	}
	return e.ranked[index].SelDepth
}

// Position returns the FEN of the last analyzed position.
func (e *Engine) Position() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fen
}

// IsRunning reports whether the backend process is up.
func (e *Engine) IsRunning() bool {
	return e.backend.IsRunning()
}

// Close shuts down the backend process.
func (e *Engine) Close() error {
	return e.backend.Close()
}
