package main

import (
	"errors"
	"io/fs"
	"time"

	"github.com/banshee-data/sonar/internal/config"
	"github.com/banshee-data/sonar/internal/hw"
	"github.com/banshee-data/sonar/internal/sonar"
	"github.com/banshee-data/sonar/internal/telemetry"
	"github.com/banshee-data/sonar/internal/timeutil"
)

// devSweepPeriod is how long the dev-mode target takes to travel from the
// near bound to the far bound and back.
const devSweepPeriod = 10 * time.Second

// loadConfig reads the config file. A missing file at the default path is
// not an error: the driver defaults apply.
func loadConfig(path string) (*config.SonarConfig, error) {
	if path == "" {
		return &config.SonarConfig{}, nil
	}
	cfg, err := config.LoadSonarConfig(path)
	if err != nil {
		if path == config.DefaultConfigPath && errors.Is(err, fs.ErrNotExist) {
			return &config.SonarConfig{}, nil
		}
		return nil, err
	}
	return cfg, nil
}

// backendName resolves the backend actually used. Dev mode always runs the
// simulator.
func backendName(h config.HardwareConfig, override string, dev bool) string {
	switch {
	case dev:
		return hw.BackendSim
	case override != "":
		return override
	case h.Backend != "":
		return h.Backend
	default:
		return hw.BackendSim
	}
}

// hardwareOptions maps the hardware section and flags onto hw.Options. The
// simulator sweeps a target between the valid bounds with asynchronous echo
// delivery so the HTTP chart and tail have something to show.
func hardwareOptions(h config.HardwareConfig, cfg sonar.Config, override string, dev bool, clock timeutil.Clock) hw.Options {
	opts := hw.Options{
		Backend:       backendName(h, override, dev),
		Chip:          h.Chip,
		TriggerOffset: h.TriggerOffset,
		EchoOffset:    h.EchoOffset,
		TriggerPin:    h.TriggerPin,
		EchoPin:       h.EchoPin,
		TickFrequency: cfg.TickFrequency,
	}
	if opts.Backend == hw.BackendSim {
		opts.Sim = hw.SimOptions{
			Clock:         clock,
			TickFrequency: cfg.TickFrequency,
			SpeedOfSound:  cfg.SpeedOfSound,
			Distance:      hw.SweepProfile(clock, cfg.MinDistance, cfg.MaxDistance, devSweepPeriod),
			Seed:          uint64(clock.Now().UnixNano()),
			Async:         true,
		}
		if dev {
			opts.Sim.DropRate = 0.02
		}
	}
	return opts
}

// serialOptions returns the telemetry port path and its line settings. The
// flag overrides the configured port but keeps its line settings.
func serialOptions(sc *config.SerialConfig, portOverride string) (string, telemetry.PortOptions) {
	var path string
	var opts telemetry.PortOptions
	if sc != nil {
		path = sc.Port
		opts = telemetry.PortOptions{
			BaudRate: sc.BaudRate,
			DataBits: sc.DataBits,
			StopBits: sc.StopBits,
			Parity:   sc.Parity,
		}
	}
	if portOverride != "" {
		path = portOverride
	}
	return path, opts
}

func mqttOptions(mc *config.MQTTConfig, brokerOverride string) telemetry.MQTTOptions {
	var opts telemetry.MQTTOptions
	if mc != nil {
		opts = telemetry.MQTTOptions{
			Broker:   mc.Broker,
			ClientID: mc.ClientID,
			Topic:    mc.Topic,
			QoS:      mc.QoS,
			Retain:   mc.Retain,
		}
	}
	if brokerOverride != "" {
		opts.Broker = brokerOverride
	}
	return opts
}
