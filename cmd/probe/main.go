// Command probe cyclically reads every configured device over Modbus TCP and
// logs the decoded register values.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/KevinKickass/OpenFieldSim/internal/config"
	"github.com/KevinKickass/OpenFieldSim/internal/modbus"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	once := flag.Bool("once", false, "poll every device once and exit")
	interval := flag.Duration("interval", 0, "pause between poll cycles (default modbus.default_poll_interval)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	fleet, err := cfg.Fleet.Resolve()
	if err != nil {
		logger.Fatal("Failed to resolve fleet", zap.Error(err))
	}

	targets := make([]*modbus.Target, 0, len(fleet))
	for _, dc := range fleet {
		targets = append(targets, modbus.NewTarget(dc.Key(), dc.Address, uint8(cfg.Modbus.UnitID),
			modbus.FieldsFor(dc.Kind), cfg.Modbus.DefaultTimeout))
	}

	pollInterval := cfg.Modbus.DefaultPollInterval
	if *interval > 0 {
		pollInterval = *interval
	}

	poller := modbus.NewPoller(targets, pollInterval, cfg.Modbus.PollPause, func(r modbus.PollResult) {
		if r.Err != nil {
			logger.Warn("Fehler: Gerät nicht lesbar",
				zap.String("device", r.Target.Key.String()),
				zap.String("address", r.Target.Client.Address()),
				zap.Error(r.Err))
			return
		}
		logger.Info("Daten empfangen",
			zap.String("device", r.Target.Key.String()),
			zap.String("address", r.Target.Client.Address()),
			zap.Any("values", sortedValues(r.Values)))
	}, logger)

	defer func() {
		for _, t := range targets {
			t.Disconnect()
		}
	}()

	if *once {
		poller.PollOnce()
		return
	}

	if err := poller.Start(); err != nil {
		logger.Fatal("Failed to start poller", zap.Error(err))
	}
	logger.Info("Probe started",
		zap.Int("devices", len(targets)),
		zap.Duration("interval", pollInterval))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	poller.Stop()
	logger.Info("Probe stopped")
}

type namedValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func sortedValues(values map[string]float64) []namedValue {
	out := make([]namedValue, 0, len(values))
	for name, v := range values {
		out = append(out, namedValue{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
