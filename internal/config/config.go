// Package config loads go-gaze settings from a KEY=VALUE file and GAZE_*
// environment variables.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-gaze/pkg/epog"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/stabilize"
)

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "GAZE_"

// Detector sources.
const (
	SourceDial   = "dial"
	SourceIngest = "ingest"
	SourceReplay = "replay"
)

// Default values.
const (
	DefaultScreenWidth    = 1920
	DefaultScreenHeight   = 1080
	DefaultDetectorURL    = "ws://127.0.0.1:8765/frames"
	DefaultDetectorListen = ":8090"
	DefaultDetectorBuffer = 64
	DefaultErrLogPrefix   = "test"
	DefaultMQTTClientID   = "go-gaze"
	DefaultMQTTTopic      = "gaze"
)

// Config holds all application configuration values.
type Config struct {
	Preset  string
	Tracker epog.Config

	// Display
	Screen   gaze.Screen
	Headless bool

	// Detector
	Source         string
	DetectorURL    string // dial
	DetectorListen string // ingest
	DetectorBuffer int
	ReplayPath     string
	ReplayInterval time.Duration // 0 replays as fast as frames are consumed
	RecordPath     string        // JSON-lines copy of received frames, disabled when empty

	// Dashboard, disabled when empty
	DashboardAddr  string
	DashboardEvery int

	// MQTT estimate stream, disabled when MQTTBroker is empty
	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	// Accuracy test error logs
	ErrLogDir    string // text logs, disabled when empty
	ErrLogPrefix string
	SQLitePath   string // disabled when empty

	LogLevel string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Preset:         "default",
		Tracker:        epog.DefaultConfig(),
		Screen:         gaze.Screen{Width: DefaultScreenWidth, Height: DefaultScreenHeight},
		Source:         SourceDial,
		DetectorURL:    DefaultDetectorURL,
		DetectorListen: DefaultDetectorListen,
		DetectorBuffer: DefaultDetectorBuffer,
		DashboardEvery: 1,
		MQTTClientID:   DefaultMQTTClientID,
		MQTTTopic:      DefaultMQTTTopic,
		ErrLogPrefix:   DefaultErrLogPrefix,
		LogLevel:       "info",
	}
}

type entry struct {
	key, value string
	origin     string
}

// Load reads the optional config file at path, then GAZE_* environment
// variables. Environment values win over the file. PRESET is applied
// before any other key so tuning keys refine the chosen preset.
func Load(path string) (Config, error) {
	var entries []entry
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()
		if entries, err = parse(f); err != nil {
			return Config{}, err
		}
	}
	entries = append(entries, environ(os.LookupEnv)...)
	return build(entries)
}

// Parse reads KEY=VALUE lines from r on top of the defaults.
func Parse(r io.Reader) (Config, error) {
	entries, err := parse(r)
	if err != nil {
		return Config{}, err
	}
	return build(entries)
}

func parse(r io.Reader) ([]entry, error) {
	var entries []entry
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}
		key = strings.TrimSpace(key)
		if _, known := setters[key]; !known && key != "PRESET" {
			return nil, fmt.Errorf("config line %d: unknown key %q", lineNum, key)
		}
		entries = append(entries, entry{
			key:    key,
			value:  strings.TrimSpace(value),
			origin: fmt.Sprintf("config line %d", lineNum),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return entries, nil
}

// environ collects the GAZE_* variables for every known key, in a stable
// order.
func environ(lookup func(string) (string, bool)) []entry {
	var entries []entry
	if v, ok := lookup(EnvPrefix + "PRESET"); ok {
		entries = append(entries, entry{key: "PRESET", value: v, origin: EnvPrefix + "PRESET"})
	}
	for _, key := range keys {
		if v, ok := lookup(EnvPrefix + key); ok {
			entries = append(entries, entry{key: key, value: v, origin: EnvPrefix + key})
		}
	}
	return entries
}

func build(entries []entry) (Config, error) {
	cfg := Default()
	for _, e := range entries {
		if e.key != "PRESET" {
			continue
		}
		tc, err := epog.Preset(e.value)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.origin, err)
		}
		cfg.Preset = e.value
		cfg.Tracker = tc
	}
	for _, e := range entries {
		if e.key == "PRESET" {
			continue
		}
		if err := cfg.Set(e.key, e.value); err != nil {
			return Config{}, fmt.Errorf("%s: %w", e.origin, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Set assigns one key. PRESET is not settable here.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}
	if err := set(c, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Validate checks the tracker configuration and the app settings.
func (c Config) Validate() error {
	var errs []error
	if err := c.Tracker.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Screen.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Source {
	case SourceDial:
		if c.DetectorURL == "" {
			errs = append(errs, errors.New("config: DETECTOR_URL is required for the dial source"))
		}
	case SourceIngest:
		if c.DetectorListen == "" {
			errs = append(errs, errors.New("config: DETECTOR_LISTEN is required for the ingest source"))
		}
	case SourceReplay:
		if c.ReplayPath == "" {
			errs = append(errs, errors.New("config: REPLAY_PATH is required for the replay source"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown source %q", c.Source))
	}
	if c.DetectorBuffer < 1 {
		errs = append(errs, fmt.Errorf("config: DETECTOR_BUFFER must be >= 1, got %d", c.DetectorBuffer))
	}
	if c.ReplayInterval < 0 {
		errs = append(errs, fmt.Errorf("config: negative REPLAY_INTERVAL %s", c.ReplayInterval))
	}
	return errors.Join(errs...)
}

// keys lists the settable keys in environment lookup order.
var keys = []string{
	"STABILIZE",
	"GRID_ROWS", "GRID_COLS", "GRID_MARGIN",
	"DWELL_INSTRUCTION", "DWELL_FIXATION", "DWELL_SAMPLING",
	"TEST_POINTS", "TEST_DWELL", "TEST_MARGIN", "TEST_SEED",
	"CLUSTER_CAPACITY", "RADIUS_FRACTION", "RADIUS_BASE",
	"CONFIRM_MOVEMENT", "SAME_DIRECTION", "MAX_FLIPS",
	"REGION_WIDTH_MARGIN", "REGION_HEIGHT_MARGIN",
	"SCREEN_WIDTH", "SCREEN_HEIGHT", "HEADLESS",
	"SOURCE", "DETECTOR_URL", "DETECTOR_LISTEN", "DETECTOR_BUFFER",
	"REPLAY_PATH", "REPLAY_INTERVAL", "RECORD_PATH",
	"DASHBOARD_ADDR", "DASHBOARD_EVERY",
	"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_TOPIC",
	"ERRLOG_DIR", "ERRLOG_PREFIX", "SQLITE_PATH",
	"LOG_LEVEL",
}

var setters = map[string]func(c *Config, v string) error{
	"STABILIZE": boolField(func(c *Config) *bool { return &c.Tracker.Stabilize }),

	"GRID_ROWS":   intField(func(c *Config) *int { return &c.Tracker.Grid.Rows }),
	"GRID_COLS":   intField(func(c *Config) *int { return &c.Tracker.Grid.Cols }),
	"GRID_MARGIN": intField(func(c *Config) *int { return &c.Tracker.Grid.Margin }),

	"DWELL_INSTRUCTION": intField(func(c *Config) *int { return &c.Tracker.Dwell.Instruction }),
	"DWELL_FIXATION":    intField(func(c *Config) *int { return &c.Tracker.Dwell.Fixation }),
	"DWELL_SAMPLING":    intField(func(c *Config) *int { return &c.Tracker.Dwell.Sampling }),

	"TEST_POINTS": intField(func(c *Config) *int { return &c.Tracker.Test.Points }),
	"TEST_DWELL":  intField(func(c *Config) *int { return &c.Tracker.Test.Dwell }),
	"TEST_MARGIN": intField(func(c *Config) *int { return &c.Tracker.Test.Margin }),
	"TEST_SEED": func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		c.Tracker.Seed = n
		return nil
	},

	"CLUSTER_CAPACITY": intField(func(c *Config) *int { return &c.Tracker.Stabilizer.Capacity }),
	"RADIUS_FRACTION":  floatField(func(c *Config) *float64 { return &c.Tracker.Stabilizer.RadiusFraction }),
	"RADIUS_BASE": func(c *Config, v string) error {
		b, err := stabilize.ParseRadiusBase(v)
		if err != nil {
			return err
		}
		c.Tracker.Stabilizer.RadiusBase = b
		return nil
	},
	"CONFIRM_MOVEMENT": boolField(func(c *Config) *bool { return &c.Tracker.Stabilizer.ConfirmMovement }),
	"SAME_DIRECTION":   intField(func(c *Config) *int { return &c.Tracker.Stabilizer.SameDirection }),
	"MAX_FLIPS":        intField(func(c *Config) *int { return &c.Tracker.Stabilizer.MaxFlips }),

	"REGION_WIDTH_MARGIN":  floatField(func(c *Config) *float64 { return &c.Tracker.Region.WidthMargin }),
	"REGION_HEIGHT_MARGIN": floatField(func(c *Config) *float64 { return &c.Tracker.Region.HeightMargin }),

	"SCREEN_WIDTH":  intField(func(c *Config) *int { return &c.Screen.Width }),
	"SCREEN_HEIGHT": intField(func(c *Config) *int { return &c.Screen.Height }),
	"HEADLESS":      boolField(func(c *Config) *bool { return &c.Headless }),

	"SOURCE":          stringField(func(c *Config) *string { return &c.Source }),
	"DETECTOR_URL":    stringField(func(c *Config) *string { return &c.DetectorURL }),
	"DETECTOR_LISTEN": stringField(func(c *Config) *string { return &c.DetectorListen }),
	"DETECTOR_BUFFER": intField(func(c *Config) *int { return &c.DetectorBuffer }),
	"REPLAY_PATH":     stringField(func(c *Config) *string { return &c.ReplayPath }),
	"RECORD_PATH":     stringField(func(c *Config) *string { return &c.RecordPath }),
	"REPLAY_INTERVAL": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.ReplayInterval = d
		return nil
	},

	"DASHBOARD_ADDR":  stringField(func(c *Config) *string { return &c.DashboardAddr }),
	"DASHBOARD_EVERY": intField(func(c *Config) *int { return &c.DashboardEvery }),

	"MQTT_BROKER":    stringField(func(c *Config) *string { return &c.MQTTBroker }),
	"MQTT_CLIENT_ID": stringField(func(c *Config) *string { return &c.MQTTClientID }),
	"MQTT_TOPIC":     stringField(func(c *Config) *string { return &c.MQTTTopic }),

	"ERRLOG_DIR":    stringField(func(c *Config) *string { return &c.ErrLogDir }),
	"ERRLOG_PREFIX": stringField(func(c *Config) *string { return &c.ErrLogPrefix }),
	"SQLITE_PATH":   stringField(func(c *Config) *string { return &c.SQLitePath }),

	"LOG_LEVEL": stringField(func(c *Config) *string { return &c.LogLevel }),
}

func stringField(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func intField(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatField(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolField(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}
