package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rover.control/internal/dispatch"
	"github.com/banshee-data/rover.control/internal/motion"
)

const (
	eventBuffer       = 64
	keepaliveInterval = 15 * time.Second
)

// Event is one observer notification as streamed on /api/events.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// eventStream turns observer callbacks into a channel of Events. Slow
// clients lose events rather than stalling the notifier.
type eventStream struct {
	ch      chan Event
	dropped atomic.Uint64
}

func newEventStream() *eventStream {
	return &eventStream{ch: make(chan Event, eventBuffer)}
}

func (e *eventStream) push(typ string, data any) {
	select {
	case e.ch <- Event{Type: typ, At: time.Now(), Data: data}:
	default:
		e.dropped.Add(1)
	}
}

func (e *eventStream) observer(raw bool) dispatch.Observer {
	f := dispatch.ObserverFuncs{
		OnConnectivity: func(connected bool) { e.push("connectivity", map[string]bool{"connected": connected}) },
		OnCommand:      func(cmd motion.MotionCommand) { e.push("command", cmd) },
		OnSpeed:        func(speed int) { e.push("speed", map[string]int{"speed": speed}) },
		OnDispatched:   func(rec dispatch.Record) { e.push("dispatched", rec) },
		OnFailed: func(rec dispatch.Record, err error) {
			e.push("failed", map[string]any{"record": rec, "error": err.Error()})
		},
	}
	if raw {
		f.OnRawData = func(line string) { e.push("raw", map[string]string{"line": line}) }
	}
	return f
}

// handleEvents streams notifications as server-sent events. Raw serial
// lines are only included with ?raw=1.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	raw := r.URL.Query().Get("raw")
	stream := newEventStream()
	id := s.cfg.Observers.Register(stream.observer(raw == "1" || raw == "true"))
	defer s.cfg.Observers.Unregister(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Initial snapshot so clients render before the first change.
	if err := writeEvent(w, Event{Type: "status", At: time.Now(), Data: s.status()}); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-stream.ch:
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, b)
	return err
}
