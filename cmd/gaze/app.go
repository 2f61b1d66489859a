package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/pkg/calibration"
	"github.com/teslashibe/go-gaze/pkg/detector"
	"github.com/teslashibe/go-gaze/pkg/epog"
	"github.com/teslashibe/go-gaze/pkg/errlog"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/publish"
	"github.com/teslashibe/go-gaze/pkg/render"
	"github.com/teslashibe/go-gaze/pkg/render/cvwindow"
	"github.com/teslashibe/go-gaze/pkg/web"
)

// App owns one tracking run: detector source, tracker, display and the
// optional dashboard and error stores.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	screen  gaze.Screen
	tracker *epog.Tracker
	display render.Display
	style   render.Style

	source   detector.Source
	recorder *detector.Recorder
	record   *os.File

	store      *errlog.Store
	dashboard  *web.Server
	mqtt       *publish.Publisher
	disconnect func()

	// Serves the dashboard and the detector ingest endpoint
	httpApp *fiber.App
	httpWG  sync.WaitGroup
	cancel  context.CancelFunc

	closeOnce sync.Once
}

// New validates cfg and builds the tracker. Nothing is opened until Run.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	screen, err := gaze.FixedScreen(cfg.Screen).ScreenSize()
	if err != nil {
		return nil, err
	}
	tracker, err := epog.New(cfg.Tracker, screen, logger)
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:     cfg,
		logger:  logger,
		screen:  screen,
		tracker: tracker,
		style:   render.DefaultStyle(),
	}, nil
}

// Run opens every collaborator and drives the frame loop until the frame
// stream ends, the user presses Esc, or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if err := a.openStores(); err != nil {
		return err
	}
	if err := a.openDisplay(); err != nil {
		return err
	}
	if err := a.openPublisher(); err != nil {
		return err
	}
	a.openDashboard()
	if err := a.openSource(ctx); err != nil {
		return err
	}
	if err := a.serveDashboard(ctx); err != nil {
		return err
	}

	a.logger.Info("tracking started",
		"screen", fmt.Sprintf("%dx%d", a.screen.Width, a.screen.Height),
		"source", a.cfg.Source, "preset", a.cfg.Preset, "stabilize", a.cfg.Tracker.Stabilize)
	return a.loop(ctx)
}

func (a *App) loop(ctx context.Context) error {
	frames := a.source.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				a.logger.Info("detector stream ended")
				if rs, isReplay := a.source.(interface{ Err() error }); isReplay {
					return rs.Err()
				}
				return nil
			}
			if err := a.frame(f); err != nil {
				return err
			}
			if a.display.Quit() {
				a.logger.Info("quit requested")
				return nil
			}
		}
	}
}

// frame steps the tracker once and redraws.
func (a *App) frame(f detector.Frame) error {
	if a.recorder != nil {
		if err := a.recorder.Record(f); err != nil {
			a.logger.Warn("record frame", "error", err)
		}
	}

	u, err := a.tracker.Step(f)
	switch {
	case err == nil, errors.Is(err, calibration.ErrSink):
	case a.tracker.Mode() == epog.ModeFailed:
		// Interactive runs start over instead of exiting.
		a.logger.Warn("calibration failed, restarting", "error", err)
		a.tracker.Recalibrate()
	default:
		return err
	}

	return a.display.Render(render.Compose(u, a.screen, a.style))
}

func (a *App) openStores() error {
	if a.cfg.SQLitePath != "" {
		store, err := errlog.OpenStore(a.cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.store = store
	}
	dir, prefix, stab := a.cfg.ErrLogDir, a.cfg.ErrLogPrefix, a.cfg.Tracker.Stabilize
	if dir == "" && a.store == nil {
		return nil
	}
	a.tracker.SetSinkFactory(func() (calibration.ErrorSink, error) {
		var sinks []calibration.ErrorSink
		if dir != "" {
			ts, err := errlog.CreateText(dir, prefix, stab, time.Now())
			if err != nil {
				return nil, err
			}
			a.logger.Info("writing test errors", "path", ts.Path())
			sinks = append(sinks, ts)
		}
		if a.store != nil {
			ss, err := a.store.NewSink(prefix, stab)
			if err != nil {
				for _, s := range sinks {
					s.Close()
				}
				return nil, err
			}
			sinks = append(sinks, ss)
		}
		return errlog.Multi(sinks...), nil
	})
	return nil
}

func (a *App) openDisplay() error {
	if a.cfg.Headless {
		a.display = render.Headless{}
		return nil
	}
	w, err := cvwindow.Open("gaze", a.screen)
	if err != nil {
		return err
	}
	a.display = w
	return nil
}

func (a *App) openPublisher() error {
	if a.cfg.MQTTBroker == "" {
		return nil
	}
	p, disconnect, err := publish.Connect(a.cfg.MQTTBroker, a.cfg.MQTTClientID, a.cfg.MQTTTopic, a.logger)
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	a.mqtt, a.disconnect = p, disconnect
	a.tracker.SetObserver(p)
	return nil
}

func (a *App) openDashboard() {
	if a.cfg.DashboardAddr == "" {
		return
	}
	a.dashboard = web.NewServer(a.tracker, a.cfg.DashboardEvery, a.logger)
	if a.mqtt != nil {
		a.tracker.SetObserver(epog.Observers(a.mqtt, a.dashboard))
	} else {
		a.tracker.SetObserver(a.dashboard)
	}
	if a.store != nil {
		a.dashboard.SetStore(a.store)
	}
	a.httpApp = a.dashboard.App()
}

// serveDashboard starts listening once every route is registered.
func (a *App) serveDashboard(ctx context.Context) error {
	if a.dashboard == nil {
		return nil
	}
	ln, err := net.Listen("tcp", a.cfg.DashboardAddr)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	a.serve(func() error { return a.dashboard.Serve(ctx, ln) })
	return nil
}

func (a *App) openSource(ctx context.Context) error {
	if a.cfg.RecordPath != "" {
		f, err := os.Create(a.cfg.RecordPath)
		if err != nil {
			return err
		}
		a.record = f
		a.recorder = detector.NewRecorder(f)
	}

	switch a.cfg.Source {
	case config.SourceDial:
		src, err := detector.Dial(ctx, a.cfg.DetectorURL, a.logger)
		if err != nil {
			return err
		}
		a.source = src

	case config.SourceIngest:
		in := detector.NewIngest(a.cfg.DetectorBuffer, a.logger)
		a.source = in
		if a.httpApp != nil && a.cfg.DetectorListen == a.cfg.DashboardAddr {
			// Share the dashboard listener.
			in.RegisterRoutes(a.httpApp)
			return nil
		}
		app := fiber.New(fiber.Config{DisableStartupMessage: true})
		in.RegisterRoutes(app)
		ln, err := net.Listen("tcp", a.cfg.DetectorListen)
		if err != nil {
			return fmt.Errorf("detector ingest: %w", err)
		}
		a.logger.Info("waiting for detector", "addr", ln.Addr().String())
		a.serve(func() error { return app.Listener(ln) })
		go func() {
			<-ctx.Done()
			app.Shutdown()
		}()

	case config.SourceReplay:
		f, err := os.Open(a.cfg.ReplayPath)
		if err != nil {
			return err
		}
		a.source = &replayFile{ReplaySource: detector.Replay(f, a.cfg.ReplayInterval, a.logger), f: f}

	default:
		return fmt.Errorf("unknown source %q", a.cfg.Source)
	}
	return nil
}

func (a *App) serve(fn func() error) {
	a.httpWG.Add(1)
	go func() {
		defer a.httpWG.Done()
		if err := fn(); err != nil {
			a.logger.Error("http server", "error", err)
		}
	}()
}

// Shutdown closes everything Run opened. It is safe to call more than once.
func (a *App) Shutdown() {
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		if a.source != nil {
			if err := a.source.Close(); err != nil && !errors.Is(err, detector.ErrClosed) {
				a.logger.Warn("close detector source", "error", err)
			}
		}
		if err := a.tracker.Close(); err != nil {
			a.logger.Warn("close test error sink", "error", err)
		}
		a.httpWG.Wait()

		if a.display != nil {
			a.display.Close()
		}
		if a.record != nil {
			a.record.Close()
		}
		if a.store != nil {
			a.store.Close()
		}
		if a.disconnect != nil {
			a.disconnect()
		}
		a.logger.Info("shutdown complete", "frames", a.tracker.Status().Frames)
	})
}

// replayFile closes the underlying file along with the replay.
type replayFile struct {
	*detector.ReplaySource
	f *os.File
}

func (r *replayFile) Close() error {
	return errors.Join(r.ReplaySource.Close(), r.f.Close())
}
