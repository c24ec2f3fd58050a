package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/internal/bot"
	"github.com/freeeve/markov-rps/internal/config"
)

func main() {
	url := flag.String("url", "http://localhost:8009", "server base URL")
	strategyName := flag.String("strategy", "random", "local strategy to play against the server")
	rounds := flag.Int("rounds", 100, "rounds to play")
	useWS := flag.Bool("ws", false, "play over the WebSocket instead of REST")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	strategy, err := bot.StrategyForName(*strategyName, config.LoadMarkov())
	if err != nil {
		log.Fatal().Err(err).Strs("known", bot.StrategyNames()).Msg("Unknown strategy")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	orch := bot.NewOrchestrator(*url, strategy, *rounds, *useWS)
	result, err := orch.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Remote session failed")
	}
	fmt.Printf("%s vs %s: %d rounds, agent %d wins / %d losses / %d ties, final score %d\n",
		result.Player, result.Opponent, result.Rounds, result.Wins, result.Losses, result.Ties, result.FinalScore)
}
