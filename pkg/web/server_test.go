package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/epog"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

type fakeTracker struct {
	recalibrations atomic.Int32
}

func (f *fakeTracker) Status() epog.Status {
	return epog.Status{Mode: epog.ModeTracking, Frames: 42}
}

func (f *fakeTracker) Recalibrate() {
	f.recalibrations.Add(1)
}

func TestServer_Status(t *testing.T) {
	s := NewServer(&fakeTracker{}, 1, nil)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "tracking", got["mode"])
	assert.Equal(t, float64(42), got["frames"])
}

func TestServer_Recalibrate(t *testing.T) {
	tr := &fakeTracker{}
	s := NewServer(tr, 1, nil)

	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/recalibrate", nil))
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)
	assert.EqualValues(t, 1, tr.recalibrations.Load())
}

func TestServer_WebsocketRequiresUpgrade(t *testing.T) {
	s := NewServer(&fakeTracker{}, 1, nil)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/gaze", nil))
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

func TestServer_GazeStream(t *testing.T) {
	tr := &fakeTracker{}
	s := NewServer(tr, 1, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/gaze", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// First message is the current status.
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeStatus, msg.Type)

	require.Eventually(t, func() bool { return s.gazeHub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	s.OnUpdate(epog.Update{Seq: 3, Mode: epog.ModeTracking, Estimate: gaze.Estimate{
		Located: true, Raw: gaze.Point{X: 10, Y: 20}, Stable: gaze.Point{X: 10, Y: 20},
	}})
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	msg, err = protocol.ParseMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeUpdate, msg.Type)
	var u epog.Update
	require.NoError(t, msg.ParseData(&u))
	assert.Equal(t, int64(3), u.Seq)

	cmd, err := protocol.NewCommandMessage(protocol.CommandRecalibrate)
	require.NoError(t, err)
	out, err := cmd.Bytes()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, out))
	require.Eventually(t, func() bool { return tr.recalibrations.Load() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestServer_UpdateThrottle(t *testing.T) {
	s := NewServer(&fakeTracker{}, 0, nil)
	assert.Equal(t, 1, s.every)
}
