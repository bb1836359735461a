package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmmcquay/stockfish-mcp/internal/config"
	"github.com/dmmcquay/stockfish-mcp/internal/logging"
)

// mateScore folds "mate in N" scores onto the centipawn scale: a forced mate
// scores ±(mateScore - pliesToMate), so shorter mates rank above longer ones
// and every mate ranks above every centipawn evaluation.
const mateScore = 100000

// handshakeTimeout bounds the uci/isready exchanges during startup.
const handshakeTimeout = 10 * time.Second

// stopTimeout bounds how long a new search waits for a cancelled
// predecessor's bestmove after the stop command was sent.
const stopTimeout = 5 * time.Second

// searchSession is the state of one go/bestmove exchange. Every search gets
// its own session and completion channel, so output from an abandoned search
// can never reach a later one. All fields except finished are guarded by the
// backend mutex.
type searchSession struct {
	onCandidate func(Candidate)
	cancelled   bool
	done        bool
	finished    chan string
}

// UCIBackend manages a UCI chess engine subprocess for analysis.
type UCIBackend struct {
	config *config.EngineConfig
	logger logging.ContextLogger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *bufio.Reader

	mu       sync.Mutex
	running  bool
	search   *searchSession
	bookPath string

	stopCh  chan struct{}
	uciOK   chan struct{}
	readyOK chan struct{}
}

// NewUCIBackend creates a backend for the configured engine binary.
func NewUCIBackend(cfg *config.EngineConfig, logger logging.ContextLogger) *UCIBackend {
	return &UCIBackend{
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		uciOK:   make(chan struct{}, 1),
		readyOK: make(chan struct{}, 1),
	}
}

// Start launches the engine process and performs the UCI handshake.
func (b *UCIBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("engine already running")
	}

	b.cmd = exec.CommandContext(ctx, b.config.BinaryPath) // #nosec G204 -- BinaryPath is validated configuration

	stdin, err := b.cmd.StdinPipe()
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	b.stdin = stdin

	stdout, err := b.cmd.StdoutPipe()
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	b.stdout = bufio.NewReader(stdout)

	stderr, err := b.cmd.StderrPipe()
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	b.stderr = bufio.NewReader(stderr)

	if err := b.cmd.Start(); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("failed to start engine: %w", err)
	}

	b.running = true
	b.mu.Unlock()

	b.logger.Info("Engine process started", "binary", b.config.BinaryPath)

	go b.readStdout()
	go b.readStderr()

	if err := b.send("uci"); err != nil {
		_ = b.Close()
		return err
	}
	select {
	case <-b.uciOK:
	case <-time.After(handshakeTimeout):
		_ = b.Close()
		return fmt.Errorf("timeout waiting for uciok")
	case <-ctx.Done():
		_ = b.Close()
		return ctx.Err()
	}

	if err := b.Ping(ctx); err != nil {
		_ = b.Close()
		return fmt.Errorf("engine not ready after handshake: %w", err)
	}

	return nil
}

// Initialize applies one-time options: one worker thread, hash size, and the
// number of principal variations the engine reports per iteration.
func (b *UCIBackend) Initialize(hashSizeMB, multiPV int) error {
	if err := b.setOption("Threads", "1"); err != nil {
		return err
	}
	if err := b.setOption("Hash", strconv.Itoa(hashSizeMB)); err != nil {
		return err
	}
	if err := b.setOption("MultiPV", strconv.Itoa(multiPV)); err != nil {
		return err
	}
	return b.Ping(context.Background())
}

// Configure applies per-search strength options. Values go out verbatim; the
// engine clamps anything out of range.
func (b *UCIBackend) Configure(cfg SearchConfig) error {
	options := []struct {
		name  string
		value string
	}{
		{"Minimum Thinking Time", strconv.Itoa(cfg.MinThinkTimeMs)},
		{"UCI_LimitStrength", boolString(cfg.LimitStrength)},
		{"UCI_Elo", strconv.Itoa(cfg.Elo)},
		{"Skill Level", strconv.Itoa(cfg.SkillLevel)},
		{"Contempt", strconv.Itoa(cfg.Contempt)},
		{"OwnBook", boolString(cfg.OwnBook)},
	}
	for _, opt := range options {
		if err := b.setOption(opt.name, opt.value); err != nil {
			return err
		}
	}
	return nil
}

// SetPosition sets the working position from a FEN string.
func (b *UCIBackend) SetPosition(fen string) error {
	return b.send("position fen " + fen)
}

// StartSearch begins an asynchronous search. Candidates parsed from the
// engine's info lines are delivered to onCandidate from the reader goroutine
// until the engine prints its bestmove.
//
// When the previous search was cancelled, its bestmove may still be in
// flight; the engine accepts no new go command until it lands, so the call
// blocks until the predecessor's session drains.
func (b *UCIBackend) StartSearch(limits SearchLimits, onCandidate func(Candidate)) error {
	b.mu.Lock()
	prev := b.search
	staleActive := prev != nil && prev.cancelled && !prev.done
	b.mu.Unlock()

	if staleActive {
		select {
		case <-prev.finished:
		case <-time.After(stopTimeout):
			return fmt.Errorf("previous search did not stop")
		case <-b.stopCh:
			return fmt.Errorf("engine stopped")
		}
	}

	s := &searchSession{
		onCandidate: onCandidate,
		finished:    make(chan string, 1),
	}
	b.mu.Lock()
	b.search = s
	b.mu.Unlock()

	return b.send(goCommand(limits))
}

// WaitSearchFinished blocks until the engine reports bestmove and returns the
// move, or "" when the engine had none.
func (b *UCIBackend) WaitSearchFinished(ctx context.Context) (string, error) {
	b.mu.Lock()
	s := b.search
	b.mu.Unlock()
	if s == nil {
		return "", fmt.Errorf("no search in flight")
	}

	select {
	case best := <-s.finished:
		return best, nil
	case <-ctx.Done():
		// Detach the session before asking the engine to wrap up: late info
		// lines are dropped, and the abandoned bestmove completes only this
		// session, never a later one.
		b.mu.Lock()
		s.cancelled = true
		b.mu.Unlock()
		_ = b.send("stop")
		return "", ctx.Err()
	case <-b.stopCh:
		return "", fmt.Errorf("engine stopped")
	}
}

// LoadBook writes the opening-book blob to a scratch file and points the
// engine's book option at it. The blob's format is the engine's business.
func (b *UCIBackend) LoadBook(book []byte) error {
	f, err := os.CreateTemp("", "opening-book-*.bin")
	if err != nil {
		return fmt.Errorf("failed to create book file: %w", err)
	}
	if _, err := f.Write(book); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return fmt.Errorf("failed to write book file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return fmt.Errorf("failed to close book file: %w", err)
	}

	if err := b.setOption("BookFile", f.Name()); err != nil {
		_ = os.Remove(f.Name())
		return err
	}

	b.mu.Lock()
	if b.bookPath != "" {
		_ = os.Remove(b.bookPath)
	}
	b.bookPath = f.Name()
	b.mu.Unlock()
	return nil
}

// Ping checks that the engine answers isready.
func (b *UCIBackend) Ping(ctx context.Context) error {
	if !b.IsRunning() {
		return fmt.Errorf("engine not running")
	}
	if err := b.send("isready"); err != nil {
		return err
	}
	select {
	case <-b.readyOK:
		return nil
	case <-time.After(handshakeTimeout):
		return fmt.Errorf("timeout waiting for readyok")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the engine process is up.
func (b *UCIBackend) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Close shuts the engine process down.
func (b *UCIBackend) Close() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.stopCh)

	if b.stdin != nil {
		_, _ = fmt.Fprintln(b.stdin, "quit")
		_ = b.stdin.Close()
	}
	bookPath := b.bookPath
	b.bookPath = ""
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		if b.cmd != nil && b.cmd.Process != nil {
			done <- b.cmd.Wait()
		} else {
			done <- nil
		}
	}()

	select {
	case err := <-done:
		if err != nil && err.Error() != "signal: killed" {
			b.logger.Warn("Engine process exited with error", "error", err)
		}
	case <-time.After(5 * time.Second):
		if b.cmd != nil && b.cmd.Process != nil {
			_ = b.cmd.Process.Kill()
		}
	}

	if bookPath != "" {
		_ = os.Remove(bookPath)
	}

	b.logger.Info("Engine process stopped")
	return nil
}

// send writes one protocol line to the engine.
func (b *UCIBackend) send(command string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running || b.stdin == nil {
		return fmt.Errorf("engine not running")
	}
	if _, err := fmt.Fprintf(b.stdin, "%s\n", command); err != nil {
		return fmt.Errorf("failed to send %q: %w", command, err)
	}
	return nil
}

func (b *UCIBackend) setOption(name, value string) error {
	return b.send(fmt.Sprintf("setoption name %s value %s", name, value))
}

// readStdout parses engine output lines and dispatches them.
func (b *UCIBackend) readStdout() {
	for {
		select {
		case <-b.stopCh:
			return
		default:
			line, err := b.stdout.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					b.logger.Error("Failed to read engine stdout", "error", err)
				}
				return
			}
			b.handleLine(strings.TrimSpace(line))
		}
	}
}

func (b *UCIBackend) handleLine(line string) {
	switch {
	case line == "":
	case line == "uciok":
		select {
		case b.uciOK <- struct{}{}:
		default:
		}
	case line == "readyok":
		select {
		case b.readyOK <- struct{}{}:
		default:
		}
	case strings.HasPrefix(line, "info "):
		c, ok := parseInfoLine(line)
		if !ok {
			return
		}
		b.mu.Lock()
		var cb func(Candidate)
		if s := b.search; s != nil && !s.cancelled && !s.done {
			cb = s.onCandidate
		}
		b.mu.Unlock()
		if cb != nil {
			cb(c)
		}
	case strings.HasPrefix(line, "bestmove"):
		fields := strings.Fields(line)
		best := ""
		if len(fields) > 1 && fields[1] != "(none)" {
			best = fields[1]
		}
		b.mu.Lock()
		s := b.search
		if s != nil && !s.done {
			s.done = true
		} else {
			s = nil
		}
		b.mu.Unlock()
		if s != nil {
			s.finished <- best
		}
	}
}

// readStderr logs engine stderr output.
func (b *UCIBackend) readStderr() {
	scanner := bufio.NewScanner(b.stderr)
	for scanner.Scan() {
		select {
		case <-b.stopCh:
			return
		default:
			if line := scanner.Text(); line != "" {
				b.logger.Debug("Engine stderr", "line", line)
			}
		}
	}
}

// parseInfoLine extracts a candidate from one "info ..." line. Lines without
// a score and a principal variation carry no candidate; bound scores are
// partial results and are skipped.
func parseInfoLine(line string) (Candidate, bool) {
	fields := strings.Fields(line)

	var c Candidate
	haveScore := false

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				c.Depth, _ = strconv.Atoi(fields[i+1])
			}
		case "seldepth":
			if i+1 < len(fields) {
				c.SelDepth, _ = strconv.Atoi(fields[i+1])
			}
		case "score":
			if i+2 >= len(fields) {
				return Candidate{}, false
			}
			value, err := strconv.Atoi(fields[i+2])
			if err != nil {
				return Candidate{}, false
			}
			switch fields[i+1] {
			case "cp":
				c.Score = float64(value)
			case "mate":
				c.Score = foldMateScore(value)
			default:
				return Candidate{}, false
			}
			haveScore = true
		case "lowerbound", "upperbound":
			return Candidate{}, false
		case "pv":
			if i+1 < len(fields) {
				c.Move = fields[i+1]
			}
			// pv is the final token group; everything after it is moves.
			if c.Move == "" || !haveScore {
				return Candidate{}, false
			}
			return c, true
		}
	}

	return Candidate{}, false
}

// goCommand renders the search limits into a UCI go command.
func goCommand(limits SearchLimits) string {
	if limits.Depth > 0 {
		return fmt.Sprintf("go depth %d movetime %d", limits.Depth, limits.MoveTimeMs)
	}
	return fmt.Sprintf("go movetime %d", limits.MoveTimeMs)
}

func foldMateScore(pliesToMate int) float64 {
	if pliesToMate < 0 {
		return float64(-mateScore - pliesToMate)
	}
	return float64(mateScore - pliesToMate)
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
