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
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/rover.control/internal/api"
	"github.com/banshee-data/rover.control/internal/config"
	"github.com/banshee-data/rover.control/internal/db"
	"github.com/banshee-data/rover.control/internal/monitoring"
	"github.com/banshee-data/rover.control/internal/version"
)

var (
	devMode        = flag.Bool("dev", false, "Replay fixture lines instead of reading the serial port")
	fixturesPath   = flag.String("fixtures", "fixtures/thumbstick.txt", "Fixture lines replayed in dev mode")
	replayInterval = flag.Duration("replay-interval", 50*time.Millisecond, "Delay between replayed fixture lines")
	listen         = flag.String("listen", ":8080", "Listen address")
	configPath     = flag.String("config", "", "Path to control config JSON (built-in defaults when empty)")
	carURL         = flag.String("car-url", "", "Car base URL (overrides config)")
	port           = flag.String("port", "", "Thumbstick serial port (overrides config)")
	baudRate       = flag.Int("baud", 0, "Serial baud rate (overrides config)")
	thumbstickOn   = flag.Bool("thumbstick", false, "Start with thumbstick input enabled (overrides config)")
	noBridge       = flag.Bool("no-bridge", false, "Do not forward thumbstick motor directions to the car controller")
	disableSerial  = flag.Bool("disable-serial", false, "Run without a serial port")
	dbPath         = flag.String("db", "rover.db", "Journal database path")
	noJournal      = flag.Bool("no-journal", false, "Disable the dispatch journal")
	debugLog       = flag.Bool("debug", false, "Enable diagnostic logging")
	traceLog       = flag.Bool("trace", false, "Enable per-sample trace logging")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

// Main
func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n       %s [flags] migrate <command>\n\n", os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("rover", version.String())
		return
	}

	monitoring.SetLogWriters(logWriters(*debugLog, *traceLog))

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdin, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyOverrides(cfg, set)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	opts := appOptions{
		Config:         cfg,
		ReplayInterval: *replayInterval,
		DisableSerial:  *disableSerial,
	}
	if !*noJournal {
		opts.DBPath = *dbPath
	}
	if *devMode {
		lines, err := readFixtures(*fixturesPath)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		opts.Replay = lines
	}

	a, err := newApp(opts)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer a.close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.run(ctx)
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:              *listen,
			Handler:           api.LoggingMiddleware(a.mux),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			monitoring.Opsf("listening on %s, car at %s", *listen, cfg.GetCarURL())
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		monitoring.Opsf("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Opsf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Opsf("HTTP server force close error: %v", err)
			}
		}

		monitoring.Diagf("HTTP server routine stopped")
	}()

	wg.Wait()
	monitoring.Opsf("Graceful shutdown complete")
}

func logWriters(debug, trace bool) monitoring.LogWriters {
	w := monitoring.LogWriters{Ops: os.Stderr}
	if debug || trace {
		w.Diag = os.Stderr
	}
	if trace {
		w.Trace = os.Stderr
	}
	return w
}

func loadConfig(path string) (*config.ControlConfig, error) {
	if path == "" {
		return config.DefaultControlConfig(), nil
	}
	return config.LoadControlConfig(path)
}

// applyOverrides copies explicitly set flags onto cfg.
func applyOverrides(cfg *config.ControlConfig, set map[string]bool) {
	if set["car-url"] {
		cfg.CarURL = carURL
	}
	if set["port"] {
		cfg.SerialPort = port
	}
	if set["baud"] {
		cfg.BaudRate = baudRate
	}
	if set["thumbstick"] {
		cfg.ThumbstickEnabled = thumbstickOn
	}
	if set["no-bridge"] {
		bridge := !*noBridge
		cfg.BridgeCar = &bridge
	}
}

// readFixtures returns the non-blank lines of path.
func readFixtures(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: no fixture lines", path)
	}
	return lines, nil
}
