package rig

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rigServer accepts one WebSocket connection and forwards decoded commands.
func rigServer(t *testing.T) (*httptest.Server, <-chan Command) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	commands := make(chan Command, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var cmd Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			commands <- cmd
		}
	}))
	t.Cleanup(srv.Close)
	return srv, commands
}

func waitConnected(t *testing.T, c *WSClient) {
	t.Helper()
	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond, "client never connected")
}

func recvCommand(t *testing.T, commands <-chan Command) Command {
	t.Helper()
	select {
	case cmd := <-commands:
		return cmd
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
		return Command{}
	}
}

func TestWSClient_SendsCommands(t *testing.T) {
	srv, commands := rigServer(t)
	c := NewWSClient(srv.URL, nil, zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	waitConnected(t, c)

	require.NoError(t, c.SetVariable("face_talk", 0.8, 5*time.Millisecond))
	cmd := recvCommand(t, commands)
	assert.Equal(t, CmdSetVariable, cmd.Type)
	assert.Equal(t, "face_talk", cmd.Name)
	assert.InDelta(t, 0.8, cmd.Value, 1e-9)
	assert.Equal(t, int64(5), cmd.DurationMs)

	require.NoError(t, c.SetCoord(100, -40, 0))
	cmd = recvCommand(t, commands)
	assert.Equal(t, CmdSetCoord, cmd.Type)
	assert.Equal(t, 100, cmd.X)
	assert.Equal(t, -40, cmd.Y)

	require.NoError(t, c.Play("idle_breathe"))
	cmd = recvCommand(t, commands)
	assert.Equal(t, CmdPlay, cmd.Type)
	assert.Equal(t, "idle_breathe", cmd.Name)

	require.NoError(t, c.StopAllTimelines())
	assert.Equal(t, CmdStopAllTimelines, recvCommand(t, commands).Type)
}

func TestWSClient_BackoffResetsAfterReconnect(t *testing.T) {
	// reserve a port and keep it closed so the first dials fail and the
	// backoff ladder climbs to its ceiling
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := NewWSClient("http://"+addr, nil, zerolog.Nop())
	c.backoffMin = 10 * time.Millisecond
	c.backoffMax = 500 * time.Millisecond
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	time.Sleep(1200 * time.Millisecond) // enough failures to reach the ceiling

	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 4)
	listener, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	})}
	go srv.Serve(listener)
	t.Cleanup(func() { srv.Close() })

	waitConnected(t, c)
	var first *websocket.Conn
	select {
	case first = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	// drop the live connection; the redial must wait only the minimum
	// backoff, not the ceiling accumulated while the server was down
	require.NoError(t, first.Close())
	select {
	case <-conns:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("reconnect after a healthy connection dropped waited the stale backoff")
	}
}

func TestWSClient_ErrNotConnected(t *testing.T) {
	c := NewWSClient("http://127.0.0.1:1", nil, zerolog.Nop())
	assert.ErrorIs(t, c.SetVariable("face_talk", 1, 0), ErrNotConnected)
}

func TestWSClient_DisconnectStopsSending(t *testing.T) {
	srv, _ := rigServer(t)
	c := NewWSClient(srv.URL, nil, zerolog.Nop())
	require.NoError(t, c.Connect(context.Background()))
	waitConnected(t, c)

	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.SetScale(1.5, 0), ErrNotConnected)
}
