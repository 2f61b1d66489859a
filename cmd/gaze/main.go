// Gaze - point-of-gaze tracking from a remote eye detector
// Calibrates against a fixation grid, scores the mapping on random targets,
// then tracks where the user is looking on screen.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/epog"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}
	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := New(cfg, log.L())
	if err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// parseFlags loads the config file and environment, then applies flags.
func parseFlags() (config.Config, error) {
	configPath := flag.String("config", "", "KEY=VALUE config file (GAZE_* env vars override it)")
	preset := flag.String("preset", "", "Tracker preset: default, stable, pursuit")
	source := flag.String("source", "", "Detector source: dial, ingest, replay")
	detectorURL := flag.String("detector", "", "Detector websocket URL (dial source)")
	listen := flag.String("listen", "", "Detector ingest address (ingest source)")
	replay := flag.String("replay", "", "Recorded JSON-lines session (replay source)")
	record := flag.String("record", "", "Record received frames to this JSON-lines file")
	dashboard := flag.String("dashboard", "", "Dashboard listen address, e.g. :8080")
	errlogDir := flag.String("errlog", "", "Directory for accuracy test error logs")
	sqlitePath := flag.String("sqlite", "", "SQLite database for accuracy test errors")
	mqttBroker := flag.String("mqtt", "", "MQTT broker for the estimate stream, e.g. tcp://localhost:1883")
	headless := flag.Bool("headless", false, "Run without the OpenCV window")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}

	overrides := map[string]string{
		"SOURCE":          *source,
		"DETECTOR_URL":    *detectorURL,
		"DETECTOR_LISTEN": *listen,
		"REPLAY_PATH":     *replay,
		"DASHBOARD_ADDR":  *dashboard,
		"ERRLOG_DIR":      *errlogDir,
		"SQLITE_PATH":     *sqlitePath,
		"RECORD_PATH":     *record,
		"MQTT_BROKER":     *mqttBroker,
	}
	if *replay != "" && *source == "" {
		overrides["SOURCE"] = config.SourceReplay
	}
	if *listen != "" && *source == "" {
		overrides["SOURCE"] = config.SourceIngest
	}
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := cfg.Set(key, v); err != nil {
			return config.Config{}, err
		}
	}
	if *preset != "" {
		// A preset flag replaces the tracker tuning wholesale.
		tc, err := epog.Preset(*preset)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Preset, cfg.Tracker = *preset, tc
	}
	if *headless {
		cfg.Headless = true
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}
