package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/sonar/internal/config"
	"github.com/banshee-data/sonar/internal/hw"
	"github.com/banshee-data/sonar/internal/sonar"
	"github.com/banshee-data/sonar/internal/telemetry"
	"github.com/banshee-data/sonar/internal/timeutil"
)

// TestFlagDefaults verifies the flags declared in main's var block keep
// their expected defaults.
func TestFlagDefaults(t *testing.T) {
	if *listen != ":8080" {
		t.Errorf("listen default = %q, want :8080", *listen)
	}
	if *dbPath != "sonar.db" {
		t.Errorf("db default = %q, want sonar.db", *dbPath)
	}
	if *configPath != config.DefaultConfigPath {
		t.Errorf("config default = %q, want %q", *configPath, config.DefaultConfigPath)
	}
	if *devMode || *verbose || *lockMemory {
		t.Error("boolean flags should default to false")
	}
	if *sinkBuffer <= 0 {
		t.Errorf("sink-buffer default = %d, want > 0", *sinkBuffer)
	}
	if *publishBuffer <= 0 {
		t.Errorf("publish-buffer default = %d, want > 0", *publishBuffer)
	}
}

func TestBackendName(t *testing.T) {
	tests := []struct {
		name     string
		hw       config.HardwareConfig
		override string
		dev      bool
		want     string
	}{
		{"empty config", config.HardwareConfig{}, "", false, hw.BackendSim},
		{"from config", config.HardwareConfig{Backend: hw.BackendGPIOD}, "", false, hw.BackendGPIOD},
		{"flag wins", config.HardwareConfig{Backend: hw.BackendGPIOD}, hw.BackendPeriph, false, hw.BackendPeriph},
		{"dev forces sim", config.HardwareConfig{Backend: hw.BackendGPIOD}, hw.BackendPeriph, true, hw.BackendSim},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backendName(tt.hw, tt.override, tt.dev); got != tt.want {
				t.Errorf("backendName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHardwareOptions_GPIOD(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	h := config.HardwareConfig{
		Backend:       hw.BackendGPIOD,
		Chip:          "gpiochip0",
		TriggerOffset: 23,
		EchoOffset:    24,
	}
	got := hardwareOptions(h, sonar.DefaultConfig(), "", false, clock)

	want := hw.Options{
		Backend:       hw.BackendGPIOD,
		Chip:          "gpiochip0",
		TriggerOffset: 23,
		EchoOffset:    24,
		TickFrequency: 1_000_000,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hardwareOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestHardwareOptions_DevSweepsBounds(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := sonar.DefaultConfig()
	got := hardwareOptions(config.HardwareConfig{Backend: hw.BackendGPIOD}, cfg, "", true, clock)

	if got.Backend != hw.BackendSim {
		t.Fatalf("Backend = %q, want sim", got.Backend)
	}
	if !got.Sim.Async {
		t.Error("dev simulator should deliver edges asynchronously")
	}
	if got.Sim.Distance == nil {
		t.Fatal("dev simulator has no distance profile")
	}
	for i := 0; i < 20; i++ {
		d := got.Sim.Distance(clock.Now())
		if d < cfg.MinDistance-1e-9 || d > cfg.MaxDistance+1e-9 {
			t.Fatalf("sweep distance %v outside [%v, %v]", d, cfg.MinDistance, cfg.MaxDistance)
		}
		clock.Advance(devSweepPeriod / 20)
	}
}

func TestSerialOptions(t *testing.T) {
	path, opts := serialOptions(nil, "")
	if path != "" {
		t.Errorf("no config and no flag should disable serial, got %q", path)
	}

	sc := &config.SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 9600, Parity: "E"}
	path, opts = serialOptions(sc, "/dev/ttyAMA0")
	if path != "/dev/ttyAMA0" {
		t.Errorf("path = %q, want flag override", path)
	}
	want := telemetry.PortOptions{BaudRate: 9600, Parity: "E"}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("PortOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestMQTTOptions(t *testing.T) {
	if got := mqttOptions(nil, ""); got.Broker != "" {
		t.Errorf("Broker = %q, want empty", got.Broker)
	}

	mc := &config.MQTTConfig{Broker: "tcp://a:1883", Topic: "garage/sonar", QoS: 1}
	got := mqttOptions(mc, "tcp://b:1883")
	want := telemetry.MQTTOptions{Broker: "tcp://b:1883", Topic: "garage/sonar", QoS: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MQTTOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil || cfg == nil {
		t.Fatalf("loadConfig(\"\") = %v, %v", cfg, err)
	}

	dir := t.TempDir()
	p := filepath.Join(dir, "sonar.json")
	if err := os.WriteFile(p, []byte(`{"sample_interval": "50ms", "hardware": {"backend": "periph"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadConfig(p)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got := cfg.GetSampleInterval(); got != 50*time.Millisecond {
		t.Errorf("sample interval = %v, want 50ms", got)
	}
	if got := cfg.GetHardware().Backend; got != hw.BackendPeriph {
		t.Errorf("backend = %q, want periph", got)
	}

	if _, err := loadConfig(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("missing non-default config should fail")
	}
}
