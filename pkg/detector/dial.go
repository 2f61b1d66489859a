package detector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// DialSource reads frames from a detector process that serves them over a
// WebSocket.
type DialSource struct {
	conn   *websocket.Conn
	frames chan Frame
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to a detector at url (ws:// or wss://). The connection
// attempt is bounded by ctx and a 10 second handshake timeout.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*DialSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("detector: dial %s: %w", url, err)
	}

	s := &DialSource{
		conn:   conn,
		frames: make(chan Frame, 64),
		logger: logger.With("component", "detector", "url", url),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	s.logger.Info("detector connected")
	return s, nil
}

func (s *DialSource) readLoop() {
	defer close(s.frames)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("detector read", "error", err)
			}
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err == nil && msg.Type == protocol.TypePing {
			s.pong(msg.Timestamp)
			continue
		}

		f, err := ParseFrame(data)
		if err != nil {
			s.logger.Debug("skip malformed frame", "error", err)
			continue
		}
		select {
		case s.frames <- f:
		case <-s.done:
			return
		}
	}
}

func (s *DialSource) pong(pingTS int64) {
	msg, err := protocol.NewPongMessage(pingTS)
	if err != nil {
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("pong", "error", err)
	}
}

// Frames implements Source.
func (s *DialSource) Frames() <-chan Frame {
	return s.frames
}

// Close sends a close frame and tears down the connection.
func (s *DialSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
