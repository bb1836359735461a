package engine

import "context"

// SearchBackend is the boundary to the external search engine. The real
// implementation drives a UCI chess engine subprocess; tests substitute a
// scripted backend.
//
// StartSearch returns as soon as the search is launched; the backend delivers
// zero or more candidates on its own goroutine via the supplied callback and
// signals completion through WaitSearchFinished.
type SearchBackend interface {
	// Start launches the backend process and performs the protocol handshake.
	Start(ctx context.Context) error

	// Initialize applies one-time engine options: worker count, hash table
	// size and the number of principal variations to track.
	Initialize(hashSizeMB, multiPV int) error

	// Configure applies per-search strength options.
	Configure(cfg SearchConfig) error

	// SetPosition sets the working position from a FEN string. The string is
	// forwarded as-is; the backend owns legality and format checking.
	SetPosition(fen string) error

	// StartSearch begins an asynchronous search bounded by limits. Candidates
	// are delivered to onCandidate from the backend's reader goroutine.
	StartSearch(limits SearchLimits, onCandidate func(Candidate)) error

	// WaitSearchFinished blocks until the running search completes and
	// returns the backend's bottom-line best move, which may come from the
	// opening book when no analyzed candidates were streamed. An empty string
	// means the backend found no move at all.
	WaitSearchFinished(ctx context.Context) (string, error)

	// LoadBook hands an opening-book blob to the backend. No validation
	// happens on this side of the boundary.
	LoadBook(book []byte) error

	// Ping checks that the backend is responsive.
	Ping(ctx context.Context) error

	// IsRunning reports whether the backend process is up.
	IsRunning() bool

	// Close shuts the backend process down.
	Close() error
}

// Ensure the UCI implementation satisfies the boundary.
var _ SearchBackend = (*UCIBackend)(nil)
