package realtime

import (
	"strconv"

	"github.com/rs/zerolog"
)

const globalRoom = "global"

func userRoom(id uint64) string { return "user:" + strconv.FormatUint(id, 10) }

// NotificationHub tracks per-user sockets plus anonymous "global" sockets.
type NotificationHub struct{ *hub }

func NewNotificationHub(log zerolog.Logger) *NotificationHub {
	return &NotificationHub{newHub(log.With().Str("hub", "notifications").Logger())}
}

func roomOf(c *Client) string {
	if c.UserID == 0 {
		return globalRoom
	}
	return userRoom(c.UserID)
}

// Register adds c to its user's set, or to the global set when the socket
// carries no identity.
func (h *NotificationHub) Register(c *Client) {
	h.exec(func(r rooms) { r.add(roomOf(c), c) })
}

func (h *NotificationHub) Unregister(c *Client) {
	h.exec(func(r rooms) { r.remove(roomOf(c), c) })
}

// SendPersonal delivers v to every socket of userID and returns how many
// accepted it.
func (h *NotificationHub) SendPersonal(userID uint64, v any) int {
	b, ok := h.encode(v)
	if !ok {
		return 0
	}
	n := 0
	h.exec(func(r rooms) { n = r.fanout(userRoom(userID), b) })
	return n
}

// SendGlobal delivers v to the global sockets and to every user socket.
func (h *NotificationHub) SendGlobal(v any) int {
	b, ok := h.encode(v)
	if !ok {
		return 0
	}
	n := 0
	h.exec(func(r rooms) {
		for key := range r {
			n += r.fanout(key, b)
		}
	})
	return n
}

// Connections counts live sockets.
func (h *NotificationHub) Connections() int {
	n := 0
	h.exec(func(r rooms) {
		for _, set := range r {
			n += len(set)
		}
	})
	return n
}
