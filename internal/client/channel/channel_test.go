package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherchat/internal/errs"
	"cipherchat/internal/models"
)

var testUpgrader = websocket.Upgrader{}

// startEchoServer reflects every inbound packet back to the client and
// records the bearer token of the handshake.
func startEchoServer(t *testing.T) (addr string, gotToken *string) {
	t.Helper()

	var token string
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("Authorization")
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(kind, raw); err != nil {
				return
			}
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://"), &token
}

func TestConn_EmitAndDispatch(t *testing.T) {
	addr, gotToken := startEchoServer(t)

	conn, err := Dial(addr, "tok-123")
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	received := make(chan json.RawMessage, 1)
	conn.On("ping", func(data json.RawMessage) { received <- data })

	require.NoError(t, conn.Emit("ping", map[string]string{"k": "v"}))

	select {
	case data := <-received:
		var payload map[string]string
		require.NoError(t, json.Unmarshal(data, &payload))
		assert.Equal(t, "v", payload["k"])
	case <-time.After(2 * time.Second):
		t.Fatal("echo never dispatched")
	}

	assert.Equal(t, "Bearer tok-123", *gotToken)
}

func TestConn_OffStopsDelivery(t *testing.T) {
	addr, _ := startEchoServer(t)

	conn, err := Dial(addr, "")
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	received := make(chan json.RawMessage, 4)
	other := make(chan json.RawMessage, 4)
	conn.On("ping", func(data json.RawMessage) { received <- data })
	conn.On("pong", func(data json.RawMessage) { other <- data })
	conn.Off("ping")

	require.NoError(t, conn.Emit("ping", "ignored"))
	require.NoError(t, conn.Emit("pong", "seen"))

	select {
	case <-other:
	case <-time.After(2 * time.Second):
		t.Fatal("pong never arrived")
	}
	assert.Empty(t, received, "deregistered handler must not fire")
}

func TestConn_UnknownEventIgnored(t *testing.T) {
	addr, _ := startEchoServer(t)

	conn, err := Dial(addr, "")
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	marker := make(chan json.RawMessage, 1)
	conn.On("known", func(data json.RawMessage) { marker <- data })

	require.NoError(t, conn.Emit("nobody-listens", "x"))
	require.NoError(t, conn.Emit("known", "y"))

	select {
	case <-marker:
	case <-time.After(2 * time.Second):
		t.Fatal("known event never arrived")
	}
}

func TestConn_PeerDisconnectSurfacesErrorEvent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// drop the connection without a close handshake
		conn.UnderlyingConn().Close()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	conn, err := Dial(strings.TrimPrefix(srv.URL, "http://"), "")
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	errCh := make(chan json.RawMessage, 1)
	conn.On(models.EventError, func(data json.RawMessage) { errCh <- data })

	select {
	case data := <-errCh:
		var reason string
		require.NoError(t, json.Unmarshal(data, &reason))
		assert.NotEmpty(t, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("no error event on abnormal disconnect")
	}

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after disconnect")
	}
}

func TestConn_CloseIsIdempotentAndEmitFailsAfter(t *testing.T) {
	addr, _ := startEchoServer(t)

	conn, err := Dial(addr, "")
	require.NoError(t, err)

	conn.Close()
	conn.Close()

	err = conn.Emit("ping", "x")
	assert.ErrorIs(t, err, errs.ErrClosed)
}
