// Package web provides the live tracking dashboard: a small REST API and a
// websocket stream of tracker updates.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/pkg/epog"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// Tracker is the part of epog.Tracker the dashboard uses.
type Tracker interface {
	Status() epog.Status
	Recalibrate()
}

// Server is the dashboard server
type Server struct {
	app     *fiber.App
	tracker Tracker
	logger  *slog.Logger

	// Hub for websocket broadcast
	gazeHub *hub.Hub

	// Streams every Nth update to websocket clients
	every int

	// Accuracy test history, optional
	store SessionStore
}

// NewServer creates the dashboard. Updates are streamed every Nth frame;
// n < 1 streams all of them.
func NewServer(tracker Tracker, every int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if every < 1 {
		every = 1
	}
	s := &Server{
		tracker: tracker,
		logger:  logger.With("component", "web"),
		gazeHub: hub.New("gaze", logger),
		every:   every,
	}
	s.gazeHub.OnMessage(s.handleClientMessage)

	app := fiber.New(fiber.Config{
		AppName:               "Gaze Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/recalibrate", s.handleRecalibrate)
	s.registerSessionRoutes(app)

	app.Use("/ws/gaze", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/gaze", websocket.New(s.handleGazeWS))

	s.app = app
	return s
}

// App returns the fiber app so other endpoints can share the listener.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve runs the hub and serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.gazeHub.Run(ctx)

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()
	s.logger.Info("dashboard listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			return err
		}
		return nil
	case err := <-errc:
		return err
	}
}

// ListenAndServe listens on addr (e.g. ":8080") and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	err = s.Serve(ctx, ln)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// OnUpdate implements epog.Observer.
func (s *Server) OnUpdate(u epog.Update) {
	if s.gazeHub.ClientCount() == 0 || u.Seq%int64(s.every) != 0 {
		return
	}
	msg, err := protocol.NewMessage(protocol.TypeUpdate, u)
	if err != nil {
		s.logger.Warn("encode update", "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	s.gazeHub.Broadcast(hub.Message(data))
}

func (s *Server) statusMessage() ([]byte, error) {
	msg, err := protocol.NewMessage(protocol.TypeStatus, s.tracker.Status())
	if err != nil {
		return nil, err
	}
	return msg.Bytes()
}

// handleStatus returns the tracker snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.tracker.Status())
}

// handleRecalibrate restarts calibration
func (s *Server) handleRecalibrate(c *fiber.Ctx) error {
	s.tracker.Recalibrate()
	s.logger.Info("recalibration requested", "source", "api")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "recalibrating"})
}

// handleGazeWS streams updates to a dashboard client, starting with the
// current status.
func (s *Server) handleGazeWS(c *websocket.Conn) {
	if data, err := s.statusMessage(); err == nil {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	hub.NewClient(s.gazeHub, c).Run()
}

// handleClientMessage accepts commands sent over the websocket.
func (s *Server) handleClientMessage(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Debug("bad client message", "error", err)
		return
	}
	if msg.Type != protocol.TypeCommand {
		return
	}
	cmd, err := msg.GetCommandData()
	if err != nil {
		return
	}
	switch cmd.Name {
	case protocol.CommandRecalibrate:
		s.tracker.Recalibrate()
		s.logger.Info("recalibration requested", "source", "websocket")
	default:
		s.logger.Debug("unknown command", "name", cmd.Name)
	}
}
