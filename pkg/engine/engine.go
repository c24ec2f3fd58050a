// Package engine implements RPSI, a small line-oriented protocol for
// Rock-Paper-Scissors engines, modeled on UCI. The driver sends the move
// histories and asks for a move; the engine answers with "bestmove".
//
//	driver -> engine     engine -> driver
//	rpsi                 id name <name>, id author <author>, protocol_version 1, rpsiok
//	isready              readyok
//	newgame
//	position <own> <opp> (comma-joined letters, "-" when empty)
//	go                   bestmove <R|P|S>  or  error <message>
//	quit
//
// Engine is the driver side, managing an engine subprocess. Serve is the
// engine side.
package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/pkg/rps"
)

// ProtocolVersion is the RPSI version spoken by this package.
const ProtocolVersion = 1

// EngineID holds the engine identification received during handshake.
type EngineID struct {
	Name            string
	Author          string
	ProtocolVersion int
}

// Engine wraps an RPSI-compatible engine. It manages the process
// lifecycle, sends commands via stdin, and reads responses from stdout.
type Engine struct {
	path string
	args []string

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner

	mu     sync.Mutex
	closed bool
	exited chan struct{}

	// Handshake results populated during Init.
	ID EngineID
}

// NewEngine creates a new Engine pointing to the given binary path.
// The engine process is not started until Init is called.
func NewEngine(path string, args ...string) *Engine {
	return &Engine{
		path: path,
		args: args,
	}
}

// Attach creates an Engine talking to an already-running engine over the
// given pipes, e.g. an in-process Serve loop.
func Attach(stdin io.WriteCloser, stdout io.Reader) *Engine {
	return &Engine{
		stdin:   stdin,
		scanner: bufio.NewScanner(stdout),
	}
}

// Init starts the engine subprocess (unless attached) and performs the
// handshake (rpsi -> id/rpsiok, isready -> readyok). The provided context
// controls the overall timeout for the handshake.
func (e *Engine) Init(ctx context.Context) error {
	if e.stdin == nil {
		if err := e.start(ctx); err != nil {
			return fmt.Errorf("engine: start: %w", err)
		}
	}

	if err := e.handshake(ctx); err != nil {
		e.Close()
		return fmt.Errorf("engine: handshake: %w", err)
	}
	return nil
}

// IsReady sends "isready" and blocks until "readyok" is received or the
// context is canceled.
func (e *Engine) IsReady(ctx context.Context) error {
	e.send("isready")
	return e.readUntil(ctx, "readyok")
}

// NewGame tells the engine to discard its per-game state.
func (e *Engine) NewGame() {
	e.send("newgame")
}

// Position sends both histories from the engine's point of view.
func (e *Engine) Position(own, opp []rps.Move) {
	e.send(fmt.Sprintf("position %s %s", rps.FormatHistory(own), rps.FormatHistory(opp)))
}

// Go asks the engine for its move and waits for "bestmove".
func (e *Engine) Go(ctx context.Context) (rps.Move, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, fmt.Errorf("engine: closed")
	}
	e.mu.Unlock()

	if !e.isAlive() {
		return 0, fmt.Errorf("engine: process is not running")
	}

	e.send("go")
	return e.readBestMove(ctx)
}

// Close sends "quit" to the engine and waits for process exit. If the
// process does not exit within 3 seconds, it is forcefully killed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if e.stdin != nil {
		fmt.Fprintf(e.stdin, "quit\n")
	}
	e.closed = true
	e.mu.Unlock()

	if e.stdin != nil {
		e.stdin.Close()
	}

	if e.exited != nil {
		select {
		case <-e.exited:
		case <-time.After(3 * time.Second):
			log.Warn().Str("path", e.path).Msg("engine: did not exit within 3s, killing")
			if e.cmd != nil && e.cmd.Process != nil {
				e.cmd.Process.Kill()
			}
			<-e.exited
		}
	}
	return nil
}

// start launches the engine subprocess.
func (e *Engine) start(ctx context.Context) error {
	e.cmd = exec.CommandContext(ctx, e.path, e.args...)

	var err error
	e.stdin, err = e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	e.scanner = bufio.NewScanner(stdout)
	e.exited = make(chan struct{})

	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	go func() {
		e.cmd.Wait()
		close(e.exited)
	}()

	return nil
}

// handshake sends "rpsi", reads id lines until "rpsiok", then sends
// "isready" and waits for "readyok".
func (e *Engine) handshake(ctx context.Context) error {
	e.send("rpsi")

	if err := e.readHandshake(ctx); err != nil {
		return fmt.Errorf("waiting for rpsiok: %w", err)
	}

	if err := e.IsReady(ctx); err != nil {
		return fmt.Errorf("waiting for readyok: %w", err)
	}
	return nil
}

func (e *Engine) readHandshake(ctx context.Context) error {
	ch := make(chan error, 1)

	go func() {
		for e.scanner.Scan() {
			line := e.scanner.Text()

			switch {
			case strings.HasPrefix(line, "id name "):
				e.ID.Name = strings.TrimPrefix(line, "id name ")
			case strings.HasPrefix(line, "id author "):
				e.ID.Author = strings.TrimPrefix(line, "id author ")
			case strings.HasPrefix(line, "protocol_version "):
				fmt.Sscanf(strings.TrimPrefix(line, "protocol_version "), "%d", &e.ID.ProtocolVersion)
			case line == "rpsiok":
				ch <- nil
				return
			}
		}
		if err := e.scanner.Err(); err != nil {
			ch <- fmt.Errorf("scanner: %w", err)
		} else {
			ch <- fmt.Errorf("engine closed stdout before rpsiok")
		}
	}()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return fmt.Errorf("context canceled: %w", ctx.Err())
	}
}

// readBestMove reads lines until "bestmove" or "error", skipping info lines.
func (e *Engine) readBestMove(ctx context.Context) (rps.Move, error) {
	type result struct {
		move rps.Move
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		for e.scanner.Scan() {
			line := e.scanner.Text()
			switch {
			case strings.HasPrefix(line, "bestmove "):
				m, err := rps.ParseMove(strings.TrimPrefix(line, "bestmove "))
				ch <- result{move: m, err: err}
				return
			case strings.HasPrefix(line, "error "):
				ch <- result{err: fmt.Errorf("engine: %s", strings.TrimPrefix(line, "error "))}
				return
			}
		}
		if err := e.scanner.Err(); err != nil {
			ch <- result{err: fmt.Errorf("scanner: %w", err)}
		} else {
			ch <- result{err: fmt.Errorf("engine closed stdout unexpectedly")}
		}
	}()

	select {
	case r := <-ch:
		return r.move, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("engine: no bestmove: %w", ctx.Err())
	}
}

// readUntil reads lines until the expected line is seen, ignoring others.
func (e *Engine) readUntil(ctx context.Context, expected string) error {
	errCh := make(chan error, 1)

	go func() {
		for e.scanner.Scan() {
			if e.scanner.Text() == expected {
				errCh <- nil
				return
			}
		}
		if err := e.scanner.Err(); err != nil {
			errCh <- err
		} else {
			errCh <- fmt.Errorf("engine closed stdout before sending %q", expected)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("context canceled waiting for %q: %w", expected, ctx.Err())
	}
}

// send writes a command line to the engine's stdin.
func (e *Engine) send(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.stdin == nil {
		return
	}
	fmt.Fprintf(e.stdin, "%s\n", line)
}

// isAlive reports whether the engine can still answer. Attached engines
// have no process to watch and count as alive until closed.
func (e *Engine) isAlive() bool {
	if e.cmd == nil {
		return e.stdin != nil
	}
	select {
	case <-e.exited:
		return false
	default:
		return true
	}
}
