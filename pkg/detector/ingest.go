package detector

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// IngestStats counts ingest traffic.
type IngestStats struct {
	Connected int    `json:"connected"`
	Received  uint64 `json:"received"`
	Dropped   uint64 `json:"dropped"`
	Malformed uint64 `json:"malformed"`
}

// Ingest is a WebSocket endpoint that detector processes push frames to.
// Frames from every connected detector are merged into one stream; when
// the consumer falls behind, new frames are dropped rather than blocking
// the detector.
type Ingest struct {
	frames chan Frame
	logger *slog.Logger

	mu        sync.RWMutex
	detectors map[string]time.Time
	closed    bool

	received  atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

// NewIngest creates an ingest endpoint buffering up to buffer frames.
func NewIngest(buffer int, logger *slog.Logger) *Ingest {
	if buffer < 1 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingest{
		frames:    make(chan Frame, buffer),
		logger:    logger.With("component", "ingest"),
		detectors: make(map[string]time.Time),
	}
}

// RegisterRoutes mounts /ws/detector and /ws/detector/:id on app.
func (in *Ingest) RegisterRoutes(app fiber.Router) {
	app.Use("/ws/detector", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/detector", websocket.New(in.handleDetector))
	app.Get("/ws/detector/:id", websocket.New(in.handleDetector))
}

func (in *Ingest) handleDetector(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	in.mu.Lock()
	in.detectors[id] = time.Now()
	count := len(in.detectors)
	in.mu.Unlock()
	in.logger.Info("detector connected", "id", id, "total", count)

	defer func() {
		in.mu.Lock()
		delete(in.detectors, id)
		count := len(in.detectors)
		in.mu.Unlock()
		in.logger.Info("detector disconnected", "id", id, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			in.logger.Debug("detector read", "id", id, "error", err)
			return
		}

		if msg, err := protocol.ParseMessage(data); err == nil && msg.Type == protocol.TypePing {
			in.pong(c, id, msg.Timestamp)
			continue
		}

		f, err := ParseFrame(data)
		if err != nil {
			in.malformed.Add(1)
			in.logger.Debug("skip malformed frame", "id", id, "error", err)
			continue
		}
		in.received.Add(1)
		in.push(f)
	}
}

// messageWriter is the write half of a detector connection.
type messageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

func (in *Ingest) pong(w messageWriter, id string, pingTS int64) {
	msg, err := protocol.NewPongMessage(pingTS)
	if err != nil {
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	if err := w.WriteMessage(websocket.TextMessage, data); err != nil {
		in.logger.Debug("pong", "id", id, "error", err)
	}
}

func (in *Ingest) push(f Frame) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.closed {
		return
	}
	select {
	case in.frames <- f:
	default:
		in.dropped.Add(1)
	}
}

// Frames implements Source.
func (in *Ingest) Frames() <-chan Frame {
	return in.frames
}

// Close stops accepting frames and closes the stream. Connected detectors
// stay connected until the HTTP server shuts down.
func (in *Ingest) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return ErrClosed
	}
	in.closed = true
	close(in.frames)
	return nil
}

// Stats returns traffic counters.
func (in *Ingest) Stats() IngestStats {
	in.mu.RLock()
	n := len(in.detectors)
	in.mu.RUnlock()
	return IngestStats{
		Connected: n,
		Received:  in.received.Load(),
		Dropped:   in.dropped.Load(),
		Malformed: in.malformed.Load(),
	}
}
