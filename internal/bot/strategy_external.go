package bot

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/freeeve/markov-rps/pkg/engine"
	"github.com/freeeve/markov-rps/pkg/rps"
)

// ExternalOption configures an ExternalStrategy before launch.
type ExternalOption func(*ExternalStrategy)

// WithTimeout sets the deadline for each bestmove response and for the
// initial handshake.
func WithTimeout(d time.Duration) ExternalOption {
	return func(e *ExternalStrategy) {
		e.timeout = d
	}
}

// WithArgs passes extra command-line arguments to the engine binary.
func WithArgs(args ...string) ExternalOption {
	return func(e *ExternalStrategy) {
		e.args = args
	}
}

// ExternalStrategy implements Strategy by delegating to an RPSI engine.
type ExternalStrategy struct {
	enginePath string
	args       []string
	timeout    time.Duration

	eng *engine.Engine
}

// NewExternalStrategy spawns the engine process, performs the handshake
// (rpsi -> rpsiok, isready -> readyok), and returns a ready strategy.
func NewExternalStrategy(enginePath string, opts ...ExternalOption) (*ExternalStrategy, error) {
	e := &ExternalStrategy{
		enginePath: enginePath,
		timeout:    5 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}

	e.eng = engine.NewEngine(enginePath, e.args...)
	if err := e.init(); err != nil {
		return nil, fmt.Errorf("external strategy: %w", err)
	}
	return e, nil
}

// NewAttachedExternalStrategy speaks RPSI over the given pipes instead of
// spawning a process.
func NewAttachedExternalStrategy(stdin io.WriteCloser, stdout io.Reader, opts ...ExternalOption) (*ExternalStrategy, error) {
	e := &ExternalStrategy{timeout: 5 * time.Second}
	for _, o := range opts {
		o(e)
	}

	e.eng = engine.Attach(stdin, stdout)
	if err := e.init(); err != nil {
		return nil, fmt.Errorf("external strategy: %w", err)
	}
	return e, nil
}

func (e *ExternalStrategy) init() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.eng.Init(ctx); err != nil {
		return err
	}
	e.eng.NewGame()
	return nil
}

// Name returns the engine's advertised name, prefixed to mark it external.
func (e *ExternalStrategy) Name() string {
	if e.eng.ID.Name == "" {
		return "external"
	}
	return "external:" + e.eng.ID.Name
}

// NextMove sends the position and waits for the engine's bestmove.
func (e *ExternalStrategy) NextMove(own, opp []rps.Move) (rps.Move, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	e.eng.Position(own, opp)
	m, err := e.eng.Go(ctx)
	if err != nil {
		return 0, fmt.Errorf("external strategy: %w", err)
	}
	return m, nil
}

// Reset starts a new game on the engine side.
func (e *ExternalStrategy) Reset() {
	e.eng.NewGame()
}

// Close shuts down the engine.
func (e *ExternalStrategy) Close() error {
	return e.eng.Close()
}
