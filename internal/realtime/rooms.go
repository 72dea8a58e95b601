package realtime

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// rooms is the state owned by a hub goroutine: room key to member sockets.
type rooms map[string]map[*Client]struct{}

func (r rooms) add(key string, c *Client) {
	set, ok := r[key]
	if !ok {
		set = make(map[*Client]struct{})
		r[key] = set
	}
	set[c] = struct{}{}
}

// remove reports whether c was a member.
func (r rooms) remove(key string, c *Client) bool {
	set, ok := r[key]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r, key)
	}
	return true
}

// fanout delivers b to every member of key and evicts sockets that refuse
// it.
func (r rooms) fanout(key string, b []byte) int {
	n := 0
	for c := range r[key] {
		if c.SendRaw(b) {
			n++
		} else {
			r.remove(key, c)
		}
	}
	return n
}

// hub serializes every room mutation and fan-out through one goroutine.
// Callers never touch the map directly; they submit closures via exec.
type hub struct {
	ops   chan func(rooms)
	quit  chan struct{}
	once  sync.Once
	log   zerolog.Logger
	state rooms
}

func newHub(log zerolog.Logger) *hub {
	h := &hub{
		ops:   make(chan func(rooms)),
		quit:  make(chan struct{}),
		log:   log,
		state: rooms{},
	}
	go h.run()
	return h
}

func (h *hub) run() {
	for {
		select {
		case op := <-h.ops:
			op(h.state)
		case <-h.quit:
			for _, set := range h.state {
				for c := range set {
					c.CloseWith(1001, "server shutting down")
				}
			}
			h.state = rooms{}
			return
		}
	}
}

// exec runs fn on the hub goroutine and waits for it. It reports false when
// the hub has been stopped.
func (h *hub) exec(fn func(rooms)) bool {
	done := make(chan struct{})
	select {
	case h.ops <- func(r rooms) { fn(r); close(done) }:
	case <-h.quit:
		return false
	}
	<-done
	return true
}

// Stop closes every socket and ends the hub goroutine.
func (h *hub) Stop() { h.once.Do(func() { close(h.quit) }) }

func (h *hub) encode(v any) ([]byte, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("ws: marshal frame")
		return nil, false
	}
	return b, true
}
