package detector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// detectorServer serves the given messages to each client and then
// records whatever the client sends back.
func detectorServer(t *testing.T, msgs []string, got chan<- []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if got != nil {
				got <- data
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDial_ReceivesFrames(t *testing.T) {
	t.Parallel()
	replies := make(chan []byte, 4)
	srv := detectorServer(t, []string{
		`{"type":"ping","ts":77}`,
		`{"seq":1,"located":true,"hr":0.6,"vr":0.8}`,
		`garbage`,
		`{"type":"frame","data":{"seq":2,"located":false}}`,
	}, replies)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src, err := Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	defer src.Close()

	var seqs []int64
	for len(seqs) < 2 {
		select {
		case f := <-src.Frames():
			seqs = append(seqs, f.Seq)
		case <-ctx.Done():
			t.Fatal("timed out waiting for frames")
		}
	}
	assert.Equal(t, []int64{1, 2}, seqs)

	select {
	case data := <-replies:
		msg, err := protocol.ParseMessage(data)
		require.NoError(t, err)
		assert.Equal(t, protocol.TypePong, msg.Type)
		var p protocol.PongData
		require.NoError(t, msg.ParseData(&p))
		assert.Equal(t, int64(77), p.PingTS)
	case <-ctx.Done():
		t.Fatal("no pong")
	}
}

func TestDial_CloseEndsStream(t *testing.T) {
	t.Parallel()
	srv := detectorServer(t, nil, nil)
	src, err := Dial(context.Background(), wsURL(srv), nil)
	require.NoError(t, err)
	require.NoError(t, src.Close())
	assert.Empty(t, collect(t, src))
}

func TestDial_Unreachable(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/ws", nil)
	assert.Error(t, err)
}
