package engine

import (
	"context"
)

// MoveGenerator is the facade surface consumed by the MCP tool layer.
// This allows for mocking in tests.
type MoveGenerator interface {
	// Initialize performs one-time backend setup
	Initialize(hashSizeMB, maxCandidateCount int) error

	// SetOpeningBook loads an opening-book blob into the backend
	SetOpeningBook(book []byte) error

	// GenerateMoves analyzes a position with strength capped to a rating
	GenerateMoves(ctx context.Context, fen string, minTimeMs, maxTimeMs, rating int, useOpeningBook bool) (MoveCount, error)

	// GenerateMovesWithSkill analyzes a position at a fixed skill tier
	GenerateMovesWithSkill(ctx context.Context, fen string, minTimeMs, maxTimeMs, skillLevel, maxDepth, contempt int, useOpeningBook bool) (MoveCount, error)

	// GetMove returns the ranked move at index, "" when out of range
	GetMove(index int) string

	// GetMoveScore returns the score at index, 0 when out of range
	GetMoveScore(index int) float64

	// GetMoveDepth returns the search depth at index, 0 when out of range
	GetMoveDepth(index int) int

	// GetMoveCompletedDepth returns the selective depth at index, 0 when out of range
	GetMoveCompletedDepth(index int) int

	// IsRunning reports whether the backend process is up
	IsRunning() bool
}

// Ensure Engine implements MoveGenerator.
var _ MoveGenerator = (*Engine)(nil)
