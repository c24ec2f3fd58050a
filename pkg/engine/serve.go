package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/freeeve/markov-rps/pkg/rps"
)

// Author is reported in the "id author" handshake line by Serve.
const Author = "markov-rps"

// Player is the move source behind Serve.
type Player interface {
	Name() string
	NextMove(own, opp []rps.Move) (rps.Move, error)
}

// Serve runs the engine side of the protocol, reading commands from in and
// writing responses to out until "quit", EOF, or ctx is done. If p has a
// Reset method it is called on "newgame".
func Serve(ctx context.Context, in io.Reader, out io.Writer, p Player) error {
	scanner := bufio.NewScanner(in)
	var own, opp []rps.Move

	reply := func(format string, args ...any) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "rpsi":
			reply("id name %s", p.Name())
			reply("id author %s", Author)
			reply("protocol_version %d", ProtocolVersion)
			reply("rpsiok")

		case "isready":
			reply("readyok")

		case "newgame":
			own, opp = nil, nil
			if r, ok := p.(interface{ Reset() }); ok {
				r.Reset()
			}

		case "position":
			o, op, err := parsePosition(fields[1:])
			if err != nil {
				reply("info string %v", err)
				continue
			}
			own, opp = o, op

		case "go":
			m, err := p.NextMove(own, opp)
			if err != nil {
				reply("error %v", err)
				continue
			}
			reply("bestmove %s", m.Letter())

		case "quit":
			return nil

		default:
			reply("info string unknown command %q", fields[0])
		}
	}
	return scanner.Err()
}

// parsePosition decodes the two history arguments of a position command.
func parsePosition(args []string) (own, opp []rps.Move, err error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("position expects 2 histories, got %d", len(args))
	}
	own, err = rps.ParseHistory(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("own history: %w", err)
	}
	opp, err = rps.ParseHistory(args[1])
	if err != nil {
		return nil, nil, fmt.Errorf("opponent history: %w", err)
	}
	if len(own) != len(opp) {
		return nil, nil, fmt.Errorf("history lengths differ: %d vs %d", len(own), len(opp))
	}
	return own, opp, nil
}
