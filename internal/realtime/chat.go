package realtime

import (
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ChatHub keeps one live socket per user for the global chat and tracks how
// many users are online.
type ChatHub struct {
	*hub
	online int
}

func NewChatHub(log zerolog.Logger) *ChatHub {
	return &ChatHub{hub: newHub(log.With().Str("hub", "chat").Logger())}
}

func onlineFrame(n int) Frame { return Frame{"type": "online_count", "count": n} }

// Join makes c the user's socket and queues the greeting built from the
// current count before anything else reaches it. A previous socket of the
// same user is closed and replaced without touching the online count; a
// first socket increments it and the new count goes to everyone else.
func (h *ChatHub) Join(c *Client, greeting func(online int) Frame) int {
	n := 0
	h.exec(func(r rooms) {
		key := userRoom(c.UserID)
		prev, had := r[key]
		for old := range prev {
			r.remove(key, old)
			old.CloseWith(websocket.ClosePolicyViolation, "replaced by a newer connection")
		}
		r.add(key, c)
		if !had {
			h.online++
		}
		n = h.online
		if greeting != nil {
			c.Send(greeting(n))
		}
		if !had {
			h.broadcast(r, onlineFrame(h.online), key)
		}
	})
	return n
}

// Leave drops c. When it was the user's live socket the count goes down and
// is broadcast.
func (h *ChatHub) Leave(c *Client) {
	h.exec(func(r rooms) {
		if !r.remove(userRoom(c.UserID), c) {
			return
		}
		if _, still := r[userRoom(c.UserID)]; still {
			return
		}
		if h.online > 0 {
			h.online--
		}
		h.broadcast(r, onlineFrame(h.online), "")
	})
}

// Broadcast sends v to every connected user.
func (h *ChatHub) Broadcast(v any) int {
	n := 0
	h.exec(func(r rooms) { n = h.broadcast(r, v, "") })
	return n
}

// broadcast fans v out to every room but skip. Sockets evicted on the way
// are users going offline, so the lowered count is announced until a pass
// evicts nobody.
func (h *ChatHub) broadcast(r rooms, v any, skip string) int {
	b, ok := h.encode(v)
	if !ok {
		return 0
	}
	n, gone := h.fanoutAll(r, b, skip)
	for gone > 0 {
		h.online -= gone
		if h.online < 0 {
			h.online = 0
		}
		b, _ = h.encode(onlineFrame(h.online))
		_, gone = h.fanoutAll(r, b, "")
	}
	return n
}

func (h *ChatHub) fanoutAll(r rooms, b []byte, skip string) (sent, gone int) {
	before := len(r)
	for key := range r {
		if key != skip {
			sent += r.fanout(key, b)
		}
	}
	return sent, before - len(r)
}

// Online is the number of users with a live socket.
func (h *ChatHub) Online() int {
	n := 0
	h.exec(func(rooms) { n = h.online })
	return n
}
