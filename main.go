package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"tvtv2xmltv/config"
	"tvtv2xmltv/consts"
	"tvtv2xmltv/epg"
	"tvtv2xmltv/tvtv"
)

func main() {
	discover := flag.Bool("discover", false, "scrape the provider lineup page and write LINEUP_FILE instead of generating a guide")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "tvtv2xmltv").Logger()
	if level, _ := zerolog.ParseLevel(cfg.LogLevel); level != zerolog.NoLevel {
		logger = logger.Level(level)
	}

	client := tvtv.NewClient(cfg.Endpoint, cfg.LineupID, cfg.Credential, logger)

	if *discover {
		if err := runDiscover(ctx, cfg, client, logger); err != nil {
			logger.Error().Err(err).Str("kind", kind(err)).Msg("lineup discovery failed")
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, client, logger); err != nil {
		logger.Error().Err(err).Str("kind", kind(err)).Msg("guide update failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, client *tvtv.Client, logger zerolog.Logger) error {
	stations := cfg.Stations
	if cfg.LineupFile != "" {
		channels, err := tvtv.LoadLineup(cfg.LineupFile)
		if err != nil {
			return err
		}
		stations = make([]string, 0, len(channels))
		for _, ch := range channels {
			stations = append(stations, ch.ID)
		}
	}

	start, end := cfg.Window(time.Now())
	logger.Info().Int("stations", len(stations)).Time("start", start).Time("end", end).Msg("fetching listings")

	snap, err := client.FetchSnapshot(ctx, stations, tvtv.Window{Start: start, End: end}, cfg.Location())
	if err != nil {
		return err
	}

	guide, err := epg.Build(snap, cfg.Endpoint)
	if err != nil {
		return err
	}
	guide.Date = time.Now().UTC().Format(consts.API_TIME_FORMAT)
	if err := guide.WriteFile(cfg.OutputPath); err != nil {
		return err
	}
	logger.Info().Str("path", cfg.OutputPath).Int("channels", len(guide.Channels)).Int("programmes", len(guide.Programmes)).Msg("guide written")
	return nil
}

func runDiscover(ctx context.Context, cfg *config.Config, client *tvtv.Client, logger zerolog.Logger) error {
	if cfg.LineupFile == "" {
		return fmt.Errorf("LINEUP_FILE must be set for -discover")
	}
	channels, err := client.DiscoverLineup(ctx)
	if err != nil {
		return err
	}
	if err := tvtv.SaveLineup(cfg.LineupFile, channels); err != nil {
		return err
	}
	logger.Info().Int("channels", len(channels)).Str("path", cfg.LineupFile).Msg("lineup saved")
	return nil
}

func kind(err error) string {
	var (
		fe *tvtv.FetchError
		pe *tvtv.ParseError
		de *epg.DataError
		se *epg.SerializeError
	)
	switch {
	case errors.As(err, &fe):
		return "fetch"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &de):
		return "data"
	case errors.As(err, &se):
		return "serialize"
	}
	return "run"
}
