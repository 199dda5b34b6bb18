package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/dnldd/tradedrill/service"
	"github.com/rs/zerolog/log"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

// createStartupSession creates the session requested by the config and logs its iterations.
func createStartupSession(ctx context.Context, cfg *Config, trainer *service.Trainer, cancel context.CancelFunc) {
	if cfg.Once {
		defer cancel()
	}

	mode, opts, err := cfg.sessionRequest()
	if err != nil {
		log.Error().Err(err).Msg("parsing startup session request")
		return
	}

	result, err := trainer.CreateSession(ctx, mode, cfg.Symbol, opts)
	if err != nil {
		log.Error().Err(err).Msgf("creating %s session", mode.String())
		return
	}

	sess := result.Session
	log.Info().Msgf("%s session %s on %s, quotes from %s to %s (%s)", sess.Mode.String(), sess.ID,
		sess.Ticker.Symbol, result.Quotes.FirstDate.Format(time.DateOnly),
		result.Quotes.LastDate.Format(time.DateOnly), result.Quotes.TradingType.String())

	for _, iter := range result.Iterations {
		log.Info().Msgf("iteration %d: bars [%d, %d), %s to %s, start %s, fix %s", iter.Number,
			iter.Interval.Start, iter.Interval.End, iter.StartDate.Format(time.DateOnly),
			iter.FinishDate.Format(time.DateOnly), iter.StartPrice.String(), iter.FixPrice.String())
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Error().Err(err).Msg("loading config")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trainerCfg := service.TrainerConfig{
		FMPAPIKey:            cfg.FMPAPIKey,
		HistoricDataFilepath: cfg.HistoricDataFilepath,
		DBEndpoint:           cfg.DBEndpoint,
		DBUser:               cfg.DBUser,
		DBPass:               cfg.DBPass,
		RefreshInterval:      cfg.RefreshInterval,
		MaxRestarts:          cfg.MaxRestarts,
		MaxWorkers:           cfg.MaxWorkers,
		AllocationTimeout:    cfg.AllocationTimeout,
		StockShortlist:       cfg.StockShortlist,
		CryptoShortlist:      cfg.CryptoShortlist,
	}
	trainer, err := service.NewTrainer(ctx, &trainerCfg)
	if err != nil {
		log.Error().Err(err).Msg("creating trainer service")
		return
	}

	go handleTermination(ctx, cancel)

	if cfg.Mode != "" {
		go createStartupSession(ctx, &cfg, trainer, cancel)
	}

	err = trainer.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("running trainer service")
	}
}
