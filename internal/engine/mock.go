package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockBackend is a scripted implementation of SearchBackend for testing. Each
// StartSearch delivers the scripted candidates from a separate goroutine,
// mimicking the real backend's asynchronous callback delivery, then signals
// completion with the scripted best move. Like the real backend, every search
// gets its own session: a superseded search's goroutine stops delivering and
// completes only its own channel.
type MockBackend struct {
	mu         sync.Mutex
	running    bool
	candidates []Candidate
	bestMove   string
	searchErr  error
	delay      time.Duration

	lastConfig   SearchConfig
	lastLimits   SearchLimits
	lastPosition string
	positions    []string
	bookData     []byte

	searchCount    int
	activeSearches int
	maxActive      int
	generation     int
	finished       chan string

	pingErr   error
	pingCalls int
}

// NewMockBackend creates a mock backend in the running state.
func NewMockBackend() *MockBackend {
	return &MockBackend{running: true}
}

// Script sets the candidates and best move delivered by the next searches.
func (m *MockBackend) Script(candidates []Candidate, bestMove string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = candidates
	m.bestMove = bestMove
}

// SetSearchError makes StartSearch fail.
func (m *MockBackend) SetSearchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchErr = err
}

// SetDelay makes each scripted search take the given wall time.
func (m *MockBackend) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetRunning toggles the running state.
func (m *MockBackend) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
}

// SetPingError makes Ping fail.
func (m *MockBackend) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// PingCalls returns the number of Ping invocations.
func (m *MockBackend) PingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingCalls
}

// LastConfig returns the configuration from the most recent search.
func (m *MockBackend) LastConfig() SearchConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConfig
}

// LastLimits returns the limits from the most recent search.
func (m *MockBackend) LastLimits() SearchLimits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLimits
}

// Positions returns every FEN set on the backend, in order.
func (m *MockBackend) Positions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.positions...)
}

// SearchCount returns the number of searches started.
func (m *MockBackend) SearchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCount
}

// MaxActiveSearches returns the highest number of searches that were ever in
// flight at once; the facade's session lock should hold it at 1.
func (m *MockBackend) MaxActiveSearches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

// BookData returns the last blob passed to LoadBook.
func (m *MockBackend) BookData() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookData
}

// Start implements SearchBackend.
func (m *MockBackend) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	return nil
}

// Initialize implements SearchBackend.
func (m *MockBackend) Initialize(hashSizeMB, multiPV int) error {
	if !m.IsRunning() {
		return fmt.Errorf("engine not running")
	}
	return nil
}

// Configure implements SearchBackend.
func (m *MockBackend) Configure(cfg SearchConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return fmt.Errorf("engine not running")
	}
	m.lastConfig = cfg
	return nil
}

// SetPosition implements SearchBackend.
func (m *MockBackend) SetPosition(fen string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return fmt.Errorf("engine not running")
	}
	m.lastPosition = fen
	m.positions = append(m.positions, fen)
	return nil
}

// StartSearch implements SearchBackend.
func (m *MockBackend) StartSearch(limits SearchLimits, onCandidate func(Candidate)) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("engine not running")
	}
	if m.searchErr != nil {
		err := m.searchErr
		m.mu.Unlock()
		return err
	}
	m.lastLimits = limits
	m.searchCount++
	m.activeSearches++
	if m.activeSearches > m.maxActive {
		m.maxActive = m.activeSearches
	}
	m.generation++
	gen := m.generation
	finished := make(chan string, 1)
	m.finished = finished
	candidates := append([]Candidate(nil), m.candidates...)
	bestMove := m.bestMove
	delay := m.delay
	m.mu.Unlock()

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		for _, c := range candidates {
			m.mu.Lock()
			current := gen == m.generation
			m.mu.Unlock()
			if !current {
				break
			}
			onCandidate(c)
		}
		m.mu.Lock()
		m.activeSearches--
		m.mu.Unlock()
		finished <- bestMove
	}()

	return nil
}

// WaitSearchFinished implements SearchBackend.
func (m *MockBackend) WaitSearchFinished(ctx context.Context) (string, error) {
	m.mu.Lock()
	finished := m.finished
	m.mu.Unlock()
	if finished == nil {
		return "", fmt.Errorf("no search in flight")
	}

	select {
	case best := <-finished:
		return best, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// LoadBook implements SearchBackend.
func (m *MockBackend) LoadBook(book []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return fmt.Errorf("engine not running")
	}
	m.bookData = append([]byte(nil), book...)
	return nil
}

// Ping implements SearchBackend.
func (m *MockBackend) Ping(ctx context.Context) error {
	m.mu.Lock()
	m.pingCalls++
	running := m.running
	pingErr := m.pingErr
	m.mu.Unlock()

	if !running {
		return fmt.Errorf("engine not running")
	}
	return pingErr
}

// IsRunning implements SearchBackend.
func (m *MockBackend) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Close implements SearchBackend.
func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Ensure MockBackend implements SearchBackend.
var _ SearchBackend = (*MockBackend)(nil)
