package realtime

import (
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer mounts h on /ws and returns the ws:// base URL.
func wsServer(t *testing.T, h echo.HandlerFunc) string {
	t.Helper()
	e := echo.New()
	e.GET("/ws", h)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f map[string]any
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func uidParam(c echo.Context) uint64 {
	n, _ := strconv.ParseUint(c.QueryParam("uid"), 10, 64)
	return n
}

func TestNotificationHubFanout(t *testing.T) {
	hub := NewNotificationHub(zerolog.Nop())
	defer hub.Stop()
	url := wsServer(t, func(c echo.Context) error {
		cl, err := Upgrade(c, "notifications", zerolog.Nop())
		if err != nil {
			return err
		}
		cl.UserID = uidParam(c)
		hub.Register(cl)
		defer hub.Unregister(cl)
		cl.Send(Connected(Frame{"user_id": cl.UserID}))
		cl.ReadLoop(nil)
		return nil
	})

	alice := dial(t, url+"?uid=1")
	bob := dial(t, url+"?uid=2")
	anon := dial(t, url)
	for _, conn := range []*websocket.Conn{alice, bob, anon} {
		f := readFrame(t, conn)
		assert.Equal(t, "connection", f["type"])
		assert.Equal(t, "connected", f["status"])
	}
	assert.Equal(t, 3, hub.Connections())

	assert.Equal(t, 1, hub.SendPersonal(1, Frame{"type": "notification", "title": "hi"}))
	assert.Equal(t, "hi", readFrame(t, alice)["title"])

	assert.Equal(t, 3, hub.SendGlobal(Frame{"type": "notification", "title": "all"}))
	for _, conn := range []*websocket.Conn{alice, bob, anon} {
		assert.Equal(t, "all", readFrame(t, conn)["title"])
	}

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("ping")))
	assert.Equal(t, "pong", readFrame(t, alice)["type"])

	assert.Equal(t, 0, hub.SendPersonal(99, Frame{"type": "notification"}))
}

func TestRejectClosesWithPolicyViolation(t *testing.T) {
	url := wsServer(t, func(c echo.Context) error {
		return Reject(c, "notifications", "invalid token", zerolog.Nop())
	})
	conn := dial(t, url)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestChatHubPresence(t *testing.T) {
	hub := NewChatHub(zerolog.Nop())
	defer hub.Stop()
	url := wsServer(t, func(c echo.Context) error {
		cl, err := Upgrade(c, "chat", zerolog.Nop())
		if err != nil {
			return err
		}
		cl.UserID = uidParam(c)
		hub.Join(cl, func(n int) Frame { return Connected(Frame{"online_count": n}) })
		defer hub.Leave(cl)
		cl.ReadLoop(nil)
		return nil
	})

	for i := 0; i < 20; i++ {
		conn := dial(t, url+"?uid=100")
		f := readFrame(t, conn)
		require.Equal(t, "connection", f["type"], "iteration %d", i)
		require.NoError(t, conn.Close())
		require.Eventually(t, func() bool { return hub.Online() == 0 }, 2*time.Second, 10*time.Millisecond)
	}

	first := dial(t, url+"?uid=1")
	greeting := readFrame(t, first)
	assert.Equal(t, "connection", greeting["type"])
	assert.Equal(t, float64(1), greeting["online_count"])
	assert.Equal(t, 1, hub.Online())

	other := dial(t, url+"?uid=2")
	greeting = readFrame(t, other)
	assert.Equal(t, "connection", greeting["type"])
	assert.Equal(t, float64(2), greeting["online_count"])
	assert.Equal(t, 2, hub.Online())
	joined := readFrame(t, first)
	assert.Equal(t, "online_count", joined["type"])
	assert.Equal(t, float64(2), joined["count"])

	// a second socket for user 1 replaces the first without changing the count
	replacement := dial(t, url+"?uid=1")
	assert.Equal(t, "connection", readFrame(t, replacement)["type"])
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Equal(t, 2, hub.Online())

	assert.Equal(t, 2, hub.Broadcast(Frame{"type": "new_message", "id": 7}))
	assert.Equal(t, float64(7), readFrame(t, replacement)["id"])

	require.NoError(t, other.Close())
	assert.Eventually(t, func() bool { return hub.Online() == 1 }, 2*time.Second, 10*time.Millisecond)
}

// detached builds a hub member with no connection behind it.
func detached(uid uint64) *Client {
	return &Client{UserID: uid, send: make(chan []byte, sendBufferSize), closed: make(chan struct{}), log: zerolog.Nop()}
}

func queued(t *testing.T, c *Client) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case b := <-c.send:
			var f map[string]any
			require.NoError(t, json.Unmarshal(b, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestChatHubAnnouncesEvictions(t *testing.T) {
	hub := NewChatHub(zerolog.Nop())
	defer hub.Stop()
	alice, bob := detached(1), detached(2)
	hub.Join(alice, func(n int) Frame { return Connected(Frame{"online_count": n}) })
	hub.Join(bob, nil)
	require.Equal(t, 2, hub.Online())

	// bob's socket dies without a Leave
	bob.CloseWith(websocket.CloseGoingAway, "")
	assert.Equal(t, 1, hub.Broadcast(Frame{"type": "new_message", "id": 3}))
	assert.Equal(t, 1, hub.Online())

	frames := queued(t, alice)
	require.Len(t, frames, 4)
	assert.Equal(t, "connection", frames[0]["type"])
	assert.Equal(t, float64(2), frames[1]["count"])
	assert.Equal(t, "new_message", frames[2]["type"])
	assert.Equal(t, "online_count", frames[3]["type"])
	assert.Equal(t, float64(1), frames[3]["count"])
}

func TestSupportHubDeliver(t *testing.T) {
	hub := NewSupportHub(zerolog.Nop())
	defer hub.Stop()
	url := wsServer(t, func(c echo.Context) error {
		cl, err := Upgrade(c, "support", zerolog.Nop())
		if err != nil {
			return err
		}
		cl.UserID = uidParam(c)
		cl.IsAdmin = c.QueryParam("admin") == "1"
		ticket, _ := strconv.ParseUint(c.QueryParam("ticket"), 10, 64)
		hub.Join(ticket, cl)
		defer hub.Leave(ticket, cl)
		cl.Send(Connected(Frame{"ticket_id": ticket}))
		cl.ReadLoop(nil)
		return nil
	})

	ownerOnTicket := dial(t, url+"?uid=5&ticket=1")
	ownerElsewhere := dial(t, url+"?uid=5&ticket=2")
	admin := dial(t, url+"?uid=9&admin=1&ticket=3")
	for _, conn := range []*websocket.Conn{ownerOnTicket, ownerElsewhere, admin} {
		readFrame(t, conn)
	}
	assert.Equal(t, 1, hub.Watchers(1))

	n := hub.Deliver(1, 5, true, Frame{"type": "new_message", "text": "hello"}, Frame{"type": "ticket_update", "ticket_id": 1})
	assert.Equal(t, 2, n)
	assert.Equal(t, "hello", readFrame(t, ownerOnTicket)["text"])
	assert.Equal(t, "ticket_update", readFrame(t, ownerElsewhere)["type"])

	n = hub.Deliver(1, 5, false, Frame{"type": "new_message", "text": "thanks"}, Frame{"type": "ticket_update", "ticket_id": 1})
	assert.Equal(t, 2, n)
	assert.Equal(t, "thanks", readFrame(t, ownerOnTicket)["text"])
	assert.Equal(t, "ticket_update", readFrame(t, admin)["type"])
}

func TestStoppedHubRefusesWork(t *testing.T) {
	hub := NewNotificationHub(zerolog.Nop())
	hub.Stop()
	hub.Stop()
	assert.Equal(t, 0, hub.SendGlobal(Frame{"type": "x"}))
	assert.Equal(t, 0, hub.Connections())
}
