package realtime

import (
	"strconv"

	"github.com/rs/zerolog"
)

const adminRoom = "admins"

func ticketRoom(id uint64) string { return "ticket:" + strconv.FormatUint(id, 10) }

// SupportHub holds per-ticket rooms plus the admin set and per-user sets
// used for notifications about tickets the socket is not watching.
type SupportHub struct{ *hub }

func NewSupportHub(log zerolog.Logger) *SupportHub {
	return &SupportHub{newHub(log.With().Str("hub", "support").Logger())}
}

func sideRoom(c *Client) string {
	if c.IsAdmin {
		return adminRoom
	}
	return userRoom(c.UserID)
}

// Join subscribes c to the ticket room. Access has already been checked.
func (h *SupportHub) Join(ticketID uint64, c *Client) {
	h.exec(func(r rooms) {
		r.add(ticketRoom(ticketID), c)
		r.add(sideRoom(c), c)
	})
}

func (h *SupportHub) Leave(ticketID uint64, c *Client) {
	h.exec(func(r rooms) {
		r.remove(ticketRoom(ticketID), c)
		r.remove(sideRoom(c), c)
	})
}

// Deliver sends msg to the ticket room. notice goes to the other party's
// sockets that are not in the room: the owner's for an admin reply, the
// admins' for a user message.
func (h *SupportHub) Deliver(ticketID, ownerID uint64, fromAdmin bool, msg, notice any) int {
	mb, ok := h.encode(msg)
	if !ok {
		return 0
	}
	nb, ok := h.encode(notice)
	if !ok {
		return 0
	}
	target := adminRoom
	if fromAdmin {
		target = userRoom(ownerID)
	}
	n := 0
	h.exec(func(r rooms) {
		watching := r[ticketRoom(ticketID)]
		n = r.fanout(ticketRoom(ticketID), mb)
		for c := range r[target] {
			if _, in := watching[c]; in {
				continue
			}
			if c.SendRaw(nb) {
				n++
			} else {
				r.remove(target, c)
			}
		}
	})
	return n
}

// SendTicket sends v to the ticket room only.
func (h *SupportHub) SendTicket(ticketID uint64, v any) int {
	b, ok := h.encode(v)
	if !ok {
		return 0
	}
	n := 0
	h.exec(func(r rooms) { n = r.fanout(ticketRoom(ticketID), b) })
	return n
}

// Watchers counts sockets in a ticket room.
func (h *SupportHub) Watchers(ticketID uint64) int {
	n := 0
	h.exec(func(r rooms) { n = len(r[ticketRoom(ticketID)]) })
	return n
}
