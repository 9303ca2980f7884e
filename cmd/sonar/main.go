package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/sonar/internal/api"
	"github.com/banshee-data/sonar/internal/config"
	"github.com/banshee-data/sonar/internal/db"
	"github.com/banshee-data/sonar/internal/hw"
	"github.com/banshee-data/sonar/internal/monitoring"
	"github.com/banshee-data/sonar/internal/sonar"
	"github.com/banshee-data/sonar/internal/telemetry"
	"github.com/banshee-data/sonar/internal/timeutil"
	"github.com/banshee-data/sonar/internal/units"
	"github.com/banshee-data/sonar/internal/version"
	"go.bug.st/serial"
)

var (
	configPath    = flag.String("config", config.DefaultConfigPath, "Path to the sonar JSON config file")
	backend       = flag.String("backend", "", "Hardware backend override: sim, gpiod or periph")
	devMode       = flag.Bool("dev", false, "Run in dev mode (simulated sensor sweeping through the range)")
	listen        = flag.String("listen", ":8080", "Listen address")
	dbPath        = flag.String("db", "sonar.db", "SQLite database path (empty disables history)")
	serialPort    = flag.String("serial", "", "Serial port for the telemetry link (overrides config)")
	mqttBroker    = flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883 (overrides config)")
	unitsFlag     = flag.String("units", units.M, "Default distance units for the API ("+units.GetValidUnitsString()+")")
	tzFlag        = flag.String("tz", "UTC", "Default timezone for API timestamps")
	verbose       = flag.Bool("verbose", false, "Log every reading")
	lockMemory    = flag.Bool("lock-memory", false, "Lock process memory to avoid page faults in the sampling loop")
	sinkBuffer    = flag.Int("sink-buffer", 256, "Readings queued for the database writer before dropping")
	publishBuffer = flag.Int("publish-buffer", 64, "Readings queued for each serial or MQTT publisher before dropping")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("sonar %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if flag.NArg() > 0 && flag.Arg(0) == "migrate" {
		if *dbPath == "" {
			log.Fatal("migrate requires -db")
		}
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid units %q, expected one of: %s", *unitsFlag, units.GetValidUnitsString())
	}
	if !units.IsTimezoneValid(*tzFlag) {
		log.Fatalf("invalid timezone %q", *tzFlag)
	}
	monitoring.SetVerbose(*verbose)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	driverCfg := cfg.ToDriverConfig()
	hwCfg := cfg.GetHardware()

	if *lockMemory || hwCfg.LockMemory {
		if err := hw.LockMemory(); err != nil {
			log.Printf("failed to lock memory, continuing: %v", err)
		}
	}

	clock := timeutil.RealClock{}
	dev, err := hw.Open(hardwareOptions(hwCfg, driverCfg, *backend, *devMode, clock))
	if err != nil {
		log.Fatalf("failed to open sensor hardware: %v", err)
	}
	defer dev.Close()

	var pubs sonar.MultiPublisher

	hub := telemetry.NewHub()
	defer hub.Close()
	pubs = append(pubs, hub)

	var store *db.DB
	var sink *db.Sink
	var session *db.Session
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()

		session, err = store.StartSession(context.Background(), backendName(hwCfg, *backend, *devMode), driverCfg, time.Now())
		if err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		log.Printf("recording session %s to %s", session.ID, *dbPath)
		sink = db.NewSink(store, session.ID, *sinkBuffer)
		pubs = append(pubs, sink)
	}

	var link *telemetry.SerialLink[serial.Port]
	if path, opts := serialOptions(cfg.Serial, *serialPort); path != "" {
		link, err = telemetry.OpenSerialLink(path, opts)
		if err != nil {
			log.Fatalf("failed to open serial link: %v", err)
		}
		defer link.Close()
		q := telemetry.NewQueue("serial", link, *publishBuffer)
		defer q.Close()
		pubs = append(pubs, q)
		log.Printf("streaming readings to serial port %s", path)
	}

	if opts := mqttOptions(cfg.MQTT, *mqttBroker); opts.Broker != "" {
		mq, err := telemetry.DialMQTT(opts)
		if err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
		defer mq.Close()
		q := telemetry.NewQueue("mqtt", mq, *publishBuffer)
		defer q.Close()
		pubs = append(pubs, q)
	}

	driver, err := sonar.NewDriver(driverCfg, dev.Trigger, dev.Echo, pubs, sonar.WithClock(clock))
	if err != nil {
		log.Fatalf("invalid driver configuration: %v", err)
	}
	task := sonar.NewTask(driver)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := task.Start(ctx); err != nil {
		log.Fatalf("failed to start sonar: %v", err)
	}
	log.Printf("sonar started: %s", driverCfg.SensorType)

	// the serial console accepts the same commands as the HTTP API
	if link != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := link.Monitor(ctx, task); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(task, store, *unitsFlag, *tzFlag).ServeMux()
		telemetry.AttachAdminRoutes(mux, hub, task)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	task.Stop()
	status := driver.Status()
	log.Printf("sonar stopped: %d cycles, %d valid, %d invalid, %d watchdog recoveries, %d publish errors",
		status.Cycles, status.ValidReadings, status.InvalidReadings, status.WatchdogRecoveries, status.PublishErrors)

	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Printf("failed to flush readings: %v", err)
		}
		if err := store.EndSession(context.Background(), session.ID, time.Now(), status); err != nil {
			log.Printf("failed to end session %s: %v", session.ID, err)
		}
	}
	log.Printf("Graceful shutdown complete")
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: sonar [flags]\n       sonar [-db path] migrate <action>\n\nFlags:\n")
	flag.PrintDefaults()
	fmt.Fprintln(out)
	db.PrintMigrateHelp(out)
}
