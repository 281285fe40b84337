// Command water-level runs one unit of the water-level controller: a
// reservoir probe, the central monitor, or the pump relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"

	"github.com/henrique-kyke/water-level-controller/internal/config"
	"github.com/henrique-kyke/water-level-controller/internal/gpio"
	"github.com/henrique-kyke/water-level-controller/internal/logging"
	"github.com/henrique-kyke/water-level-controller/internal/metrics"
	"github.com/henrique-kyke/water-level-controller/internal/status"
	"github.com/henrique-kyke/water-level-controller/internal/unit"
	"github.com/henrique-kyke/water-level-controller/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: search standard locations)")
	logLevel := flag.String("log-level", "", "Override the configured log level (trace, debug, info, warn, error)")
	printState := flag.Bool("print-state", false, "Print the current panel reading and exit")

	flag.Parse()

	if err := run(*configPath, *logLevel, *printState); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run(configPath, logLevel string, printState bool) error {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	logCloser, err := logging.Init(config.ParseLogLevel(cfg.LogLevel), cfg.LogFile)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if printState {
		return printPanel(cfg)
	}

	m := metrics.New()
	tracker := status.NewTracker(time.Now(), statusConfig(cfg), trackedReservoirs(cfg)...)

	// Reconnect backoff can outlast WatchdogSec, so the sleeper keeps
	// pinging. A single connect attempt still blocks for up to
	// broker.connect_timeout, which must stay below WatchdogSec/2.
	watchdog, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn().Err(err).Msg("read systemd watchdog settings")
	}
	pingWatchdog := func() { notify(daemon.SdNotifyWatchdog) }

	sys, err := build(cfg, m, tracker, watchdogSleeper(watchdog/2, pingWatchdog))
	if err != nil {
		return err
	}
	defer sys.Close()

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
	}

	log.Info().
		Str("role", string(cfg.Role)).
		Str("unit", cfg.UnitID).
		Str("broker", cfg.Broker.URL()).
		Dur("cycle", cfg.CycleInterval).
		Dur("heartbeat", cfg.Heartbeat).
		Msg("started")

	ticker := time.NewTicker(cfg.CycleInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// A signal also cancels the context so that a blocking reconnect
	// returns and the loop can shut down.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loopSig := make(chan os.Signal, 1)
	go func() {
		s := <-sigCh
		loopSig <- s
		cancel()
	}()

	notify(daemon.SdNotifyReady)
	defer notify(daemon.SdNotifyStopping)

	return runLoop(ctx, sys.unit, time.Now, ticker.C, loopSig, pingWatchdog)
}

// runLoop runs one unit cycle per tick until a signal arrives. afterCycle,
// if set, is called after every cycle.
func runLoop(ctx context.Context, u unit.Unit, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, afterCycle func()) error {
	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			log.Info().Str("signal", reason).Msg("shutting down")
			u.Shutdown(reason)
			return nil

		case <-tick:
			u.Cycle(ctx, now())
			if afterCycle != nil {
				afterCycle()
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// notify tells systemd about a state change. It is a no-op outside systemd.
func notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug().Err(err).Str("state", state).Msg("sd_notify failed")
	}
}

func printPanel(cfg *config.Config) error {
	if cfg.Role == config.RoleRelay {
		return errors.New("print-state: the relay role has no switch panel")
	}
	panel, err := gpio.NewRealPanel(cfg.GPIO.Panel())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer panel.Close()

	sw, err := panel.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	fmt.Println(formatPanel(sw))
	return nil
}

func formatPanel(sw gpio.Switches) string {
	return fmt.Sprintf("level: %d switches: %v", gpio.EncodeLevel(sw), sw.Bits())
}
