package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	mtlog "markettraveler/cmd/markettraveler/log"
	"markettraveler/internal/bot"
	"markettraveler/internal/config"
	"markettraveler/internal/event"
	"markettraveler/internal/history"
	"markettraveler/internal/ipc"
	"markettraveler/internal/market"
	"markettraveler/internal/remote/discord"
	"markettraveler/internal/remote/telegram"
	"markettraveler/internal/server"
	"markettraveler/internal/traveler"
	"markettraveler/internal/widget"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the run configuration")
	dryRun := flag.Bool("dry-run", false, "simulate the whole run against a scripted game surface")
	flag.Parse()

	if err := run(*configPath, *dryRun); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string, dryRun bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := mtlog.NewLogger(cfg.LogLevel, cfg.Debug, "logs")
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer mtlog.FlushAndClose()

	items, err := cfg.Items()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor := bot.NewSupervisor(logger, 100*time.Millisecond)
	g, ctx := errgroup.WithContext(ctx)

	var (
		probe   widget.Probe
		catalog market.Catalog
		reloc   traveler.Relocation
		pathing traveler.Pathing
		gs      traveler.GameState
		worlds  = cfg.Worlds
	)

	if dryRun {
		logger.Info("Dry run: simulating the game surface, nothing will be bought")
		harness := newDryHarness(cfg.ItemNames(), logger)
		probe, catalog, reloc, pathing, gs = harness.probe, harness, harness, harness, harness
		supervisor.Subscribe(harness.tick)
		if len(worlds) == 0 {
			worlds = []string{"DrySpring", "DrySummer"}
		}
	} else {
		bridge := ipc.NewBridge(cfg.BridgeURL, logger)
		defer bridge.Shutdown()

		if len(worlds) == 0 {
			worlds, err = bridge.WorldsByDatacenter(cfg.Datacenter)
			if err != nil {
				return fmt.Errorf("resolving worlds for datacenter %s: %w", cfg.Datacenter, err)
			}
			logger.Info("Resolved datacenter worlds",
				slog.String("datacenter", cfg.Datacenter),
				slog.Int("worlds", len(worlds)))
		}

		probe = bridge.Probe()
		catalog = bridge.Catalog(cfg.ItemNames())
		reloc = bridge.Relocation()
		pathing = bridge.Pathing()
		gs = bridge.GameState()

		supervisor.AddWatchdog("bridge", 5*time.Second, 6, bridge.Ping)
	}

	shopper := market.NewShopper(probe, catalog, logger, cfg.Timings.MarketTimings(), cfg.StepMode)
	controller := traveler.NewController(shopper, reloc, pathing, gs, probe, logger)

	var store *history.Store
	if cfg.HistoryPath != "" {
		store, err = history.Open(cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("opening history db: %w", err)
		}
		defer store.Close()
		event.Subscribe(store.EventHandler(logger))
	}

	if cfg.ServerAddr != "" {
		srv := server.New(cfg.ServerAddr, controller, shopper, store, logger)
		event.Subscribe(srv.EventHandler())
		g.Go(func() error { return srv.Listen(ctx) })
	}

	if cfg.Discord.Enabled {
		dc, dcErr := discord.NewBot(cfg.Discord.Token, cfg.Discord.ChannelID)
		if dcErr != nil {
			return dcErr
		}
		event.Subscribe(dc.Handle)
		g.Go(func() error { return dc.Start(ctx) })
	}
	if cfg.Telegram.Enabled {
		tg, tgErr := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if tgErr != nil {
			return tgErr
		}
		event.Subscribe(tg.Handle)
		g.Go(func() error { return tg.Start(ctx) })
	}

	supervisor.Subscribe(controller.Update)
	supervisor.Subscribe(shopper.Update)

	controller.Start(items, worlds)
	if !controller.IsRunning() {
		return errors.New("run could not start, check the world list")
	}

	// End the whole group once the run completes on its own. Returning the
	// sentinel cancels the group context, which shuts down the status server
	// and the notifier bots.
	runCtx, finished := context.WithCancel(ctx)
	defer finished()
	supervisor.Subscribe(func() {
		if !controller.IsRunning() {
			finished()
		}
	})

	g.Go(func() error {
		if runErr := supervisor.Run(runCtx); runErr != nil {
			return runErr
		}
		return errRunComplete
	})

	err = g.Wait()
	controller.Stop()
	if err != nil && !errors.Is(err, errRunComplete) && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutting down")
	return nil
}

var errRunComplete = errors.New("run complete")
