package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/stockfish-mcp/internal/logging"
)

const startPosFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func newTestEngine(t *testing.T) (*Engine, *MockBackend) {
	t.Helper()
	backend := NewMockBackend()
	eng := New(backend, logging.NewLogger("[test] ", "error"))
	require.NoError(t, eng.Initialize(16, 6))
	return eng, backend
}

func TestEngine_InitializeOnce(t *testing.T) {
	backend := NewMockBackend()
	eng := New(backend, logging.NewLogger("[test] ", "error"))

	require.NoError(t, eng.Initialize(16, 6))
	assert.Error(t, eng.Initialize(16, 6), "second initialize must fail")
}

func TestEngine_GenerateBeforeInitialize(t *testing.T) {
	backend := NewMockBackend()
	eng := New(backend, logging.NewLogger("[test] ", "error"))

	_, err := eng.GenerateMoves(context.Background(), startPosFEN, 100, 100, 1500, false)
	assert.Error(t, err)
}

func TestEngine_GenerateMoves_RankedResult(t *testing.T) {
	eng, backend := newTestEngine(t)
	backend.Script([]Candidate{
		{Move: "e2e4", Depth: 10, SelDepth: 14, Score: 35},
		{Move: "d2d4", Depth: 10, SelDepth: 13, Score: 20},
		{Move: "g1f3", Depth: 10, SelDepth: 12, Score: 5},
	}, "e2e4")

	result, err := eng.GenerateMoves(context.Background(), startPosFEN, 100, 1000, 1500, false)
	require.NoError(t, err)
	assert.Equal(t, Analyzed, result.Kind)
	assert.Equal(t, 3, result.N)
	assert.Equal(t, 3, result.Sentinel())

	assert.Equal(t, "e2e4", eng.GetMove(0))
	assert.Equal(t, float64(35), eng.GetMoveScore(0))
	assert.Equal(t, 10, eng.GetMoveDepth(0))
	assert.Equal(t, 14, eng.GetMoveCompletedDepth(0))

	for i := 1; i < result.N; i++ {
		assert.GreaterOrEqual(t, eng.GetMoveScore(i-1), eng.GetMoveScore(i),
			"scores must be non-increasing from index 0")
	}
	assert.Equal(t, startPosFEN, eng.Position())
}

func TestEngine_RatingModeConfiguration(t *testing.T) {
	eng, backend := newTestEngine(t)
	backend.Script(nil, "")

	_, err := eng.GenerateMoves(context.Background(), startPosFEN, 250, 900, 1200, true)
	require.NoError(t, err)

	cfg := backend.LastConfig()
	assert.True(t, cfg.LimitStrength)
	assert.Equal(t, 1200, cfg.Elo)
	assert.Equal(t, maxSkillLevel, cfg.SkillLevel)
	assert.Equal(t, 250, cfg.MinThinkTimeMs)
	assert.True(t, cfg.OwnBook)

	limits := backend.LastLimits()
	assert.Equal(t, 900, limits.MoveTimeMs)
	assert.Zero(t, limits.Depth, "rating mode has no depth cap")
}

func TestEngine_SkillModeConfiguration(t *testing.T) {
	eng, backend := newTestEngine(t)
	backend.Script(nil, "")

	_, err := eng.GenerateMovesWithSkill(context.Background(), startPosFEN, 250, 900, 5, 10, 50, false)
	require.NoError(t, err)

	cfg := backend.LastConfig()
	assert.False(t, cfg.LimitStrength)
	assert.Equal(t, nominalSkillElo, cfg.Elo)
	assert.Equal(t, 5, cfg.SkillLevel)
	assert.Equal(t, 50, cfg.Contempt)

	limits := backend.LastLimits()
	assert.Equal(t, 900, limits.MoveTimeMs)
	assert.Equal(t, 10, limits.Depth)
}

func TestEngine_IndexSafety(t *testing.T) {
	eng, backend := newTestEngine(t)
	backend.Script([]Candidate{
		{Move: "e2e4", Depth: 10, SelDepth: 12, Score: 35},
		{Move: "d2d4", Depth: 10, SelDepth: 11, Score: 20},
	}, "e2e4")

	result, err := eng.GenerateMoves(context.Background(), startPosFEN, 100, 1000, 1500, false)
	require.NoError(t, err)
	n := result.N

	for i := n; i <= n+100; i++ {
		assert.Equal(t, "", eng.GetMove(i))
		assert.Equal(t, 0.0, eng.GetMoveScore(i))
		assert.Equal(t, 0, eng.GetMoveDepth(i))
		assert.Equal(t, 0, eng.GetMoveCompletedDepth(i))
	}

	// Negative indexes degrade the same way.
	assert.Equal(t, "", eng.GetMove(-1))
	assert.Equal(t, 0.0, eng.GetMoveScore(-1))
}

func TestEngine_BookFallback(t *testing.T) {
	eng, backend := newTestEngine(t)
	// No candidates streamed; the book supplies the bottom-line move.
	backend.Script(nil, "e2e4")

	result, err := eng.GenerateMoves(context.Background(), startPosFEN, 100, 1000, 1500, true)
	require.NoError(t, err)
	assert.Equal(t, BookFallback, result.Kind)
	assert.Equal(t, 1, result.N)
	assert.Negative(t, result.Sentinel())

	assert.Equal(t, "e2e4", eng.GetMove(0))
	assert.Equal(t, 0.0, eng.GetMoveScore(0))
	assert.Equal(t, 0, eng.GetMoveDepth(0))
	assert.Equal(t, 0, eng.GetMoveCompletedDepth(0))
}

func TestEngine_NoResult(t *testing.T) {
	eng, backend := newTestEngine(t)
	backend.Script(nil, "e2e4")

	// Book disabled: the backend's best move is not substituted.
	result, err := eng.GenerateMoves(context.Background(), startPosFEN, 100, 1000, 1500, false)
	require.NoError(t, err)
	assert.Equal(t, NoResult, result.Kind)
	assert.Negative(t, result.Sentinel())
	assert.Equal(t, "", eng.GetMove(0))
}

func TestEngine_SingleFlight(t *testing.T) {
	eng, backend := newTestEngine(t)
	backend.Script([]Candidate{{Move: "e2e4", Depth: 10, Score: 10}}, "e2e4")
	backend.SetDelay(30 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			fen := fmt.Sprintf("%s;call=%d", startPosFEN, n)
			_, err := eng.GenerateMoves(context.Background(), fen, 10, 50, 1500, false)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, backend.SearchCount())
	assert.Equal(t, 1, backend.MaxActiveSearches(),
		"analysis phases must never overlap on one instance")
	assert.Len(t, backend.Positions(), 4,
		"each call's position-set must be sequenced with its search")
}

func TestEngine_InstanceIsolation(t *testing.T) {
	engA, backendA := newTestEngine(t)
	engB, backendB := newTestEngine(t)
	backendA.Script([]Candidate{{Move: "e2e4", Depth: 10, Score: 30}}, "e2e4")
	backendB.Script([]Candidate{{Move: "d7d5", Depth: 10, Score: -12}}, "d7d5")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := engA.GenerateMoves(context.Background(), "fenA", 10, 50, 1500, false)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := engB.GenerateMoves(context.Background(), "fenB", 10, 50, 1500, false)
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.Equal(t, "e2e4", engA.GetMove(0))
	assert.Equal(t, float64(30), engA.GetMoveScore(0))
	assert.Equal(t, "fenA", engA.Position())

	assert.Equal(t, "d7d5", engB.GetMove(0))
	assert.Equal(t, float64(-12), engB.GetMoveScore(0))
	assert.Equal(t, "fenB", engB.Position())
}

func TestEngine_ResultOverwritten(t *testing.T) {
	eng, backend := newTestEngine(t)

	backend.Script([]Candidate{{Move: "e2e4", Depth: 10, Score: 30}}, "e2e4")
	_, err := eng.GenerateMoves(context.Background(), startPosFEN, 10, 50, 1500, false)
	require.NoError(t, err)
	require.Equal(t, "e2e4", eng.GetMove(0))

	backend.Script([]Candidate{{Move: "g8f6", Depth: 12, Score: 7}}, "g8f6")
	result, err := eng.GenerateMoves(context.Background(), startPosFEN, 10, 50, 1500, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.N)
	assert.Equal(t, "g8f6", eng.GetMove(0))
	assert.Equal(t, "", eng.GetMove(1))
}

func TestEngine_SearchStartFailure(t *testing.T) {
	eng, backend := newTestEngine(t)
	backend.SetSearchError(fmt.Errorf("boom"))

	_, err := eng.GenerateMoves(context.Background(), startPosFEN, 10, 50, 1500, false)
	assert.Error(t, err)
}

func TestEngine_WaitCancelled(t *testing.T) {
	eng, backend := newTestEngine(t)
	backend.Script(nil, "e2e4")
	backend.SetDelay(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := eng.GenerateMoves(ctx, startPosFEN, 10, 5000, 1500, false)
	assert.Error(t, err)
}

func TestEngine_CancelledSearchDoesNotLeakIntoNext(t *testing.T) {
	eng, backend := newTestEngine(t)

	// First search: candidates due long after the caller gives up.
	backend.Script([]Candidate{{Move: "a7a6", Depth: 30, Score: 999}}, "a7a6")
	backend.SetDelay(250 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := eng.GenerateMoves(ctx, startPosFEN, 10, 5000, 1500, false)
	require.Error(t, err)

	// Second search starts while the first is still winding down.
	backend.Script([]Candidate{{Move: "e2e4", Depth: 10, Score: 50}}, "e2e4")
	backend.SetDelay(0)

	result, err := eng.GenerateMoves(context.Background(), startPosFEN, 10, 1000, 1500, false)
	require.NoError(t, err)
	assert.Equal(t, Analyzed, result.Kind)
	require.Equal(t, 1, result.N)
	assert.Equal(t, "e2e4", eng.GetMove(0))
	assert.Equal(t, float64(50), eng.GetMoveScore(0))

	// Let the abandoned search wind down fully; its late candidate and
	// bestmove must not touch the stored result.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, "e2e4", eng.GetMove(0))
	assert.Equal(t, "", eng.GetMove(1))
}

func TestEngine_SetOpeningBook(t *testing.T) {
	eng, backend := newTestEngine(t)

	book := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, eng.SetOpeningBook(book))
	assert.Equal(t, book, backend.BookData())
}

func TestMoveCount_Sentinel(t *testing.T) {
	assert.Equal(t, 5, MoveCount{Kind: Analyzed, N: 5}.Sentinel())
	assert.Equal(t, 0, MoveCount{Kind: Analyzed}.Sentinel())
	assert.Equal(t, -1, MoveCount{Kind: NoResult}.Sentinel())
	assert.Equal(t, -1, MoveCount{Kind: BookFallback, N: 1}.Sentinel())
}
