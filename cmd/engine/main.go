// Command engine serves a strategy over the RPS engine line protocol on
// stdin/stdout. Logs go to stderr so they never interleave with protocol
// output.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/internal/bot"
	"github.com/freeeve/markov-rps/internal/config"
	"github.com/freeeve/markov-rps/internal/logger"
	"github.com/freeeve/markov-rps/pkg/engine"
)

func main() {
	strategy := flag.String("strategy", "markov", "Strategy to serve")
	seed := flag.Int64("seed", 0, "Seed the strategy RNG (0 = random)")
	flag.Parse()

	opts := logger.OptionsFromEnv()
	opts.Out = os.Stderr
	if opts.Level == "" {
		opts.Level = "warn"
	}
	logger.Init(opts)

	if *strategy == "external" {
		log.Fatal().Msg("engine cannot serve the external strategy")
	}
	if *seed != 0 {
		bot.SeedBotRng(*seed)
	}

	player, err := bot.StrategyForName(*strategy, config.LoadMarkov())
	if err != nil {
		log.Fatal().Err(err).Strs("known", bot.StrategyNames()).Msg("Unknown strategy")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("strategy", player.Name()).Msg("Engine ready")
	if err := engine.Serve(ctx, os.Stdin, os.Stdout, player); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Engine stopped")
		os.Exit(1)
	}
}
