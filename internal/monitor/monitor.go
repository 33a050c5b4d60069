// Package monitor streams driver progress to websocket observers.
package monitor

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/m-lab/shapebench/internal/driver"
	"github.com/m-lab/shapebench/internal/plan"
	"github.com/m-lab/shapebench/pkg/experiment/model"
	"github.com/m-lab/shapebench/pkg/experiment/spec"
)

const (
	// maxHistory is the number of events replayed to new observers.
	maxHistory = 4096
	// queueSize is the number of events buffered per observer. Events are
	// dropped for observers that fall further behind.
	queueSize = 256

	writeTimeout = 5 * time.Second
)

// EventType is the kind of an Event.
type EventType string

const (
	EventSweepStart    = EventType("sweep_start")
	EventTransferStart = EventType("transfer_start")
	EventRecord        = EventType("record")
	EventError         = EventType("error")
	EventSummary       = EventType("summary")
)

// Event is the JSON message sent to observers.
type Event struct {
	Type      EventType
	Time      time.Time
	Group     model.TestGroup   `json:",omitempty"`
	Sweep     string            `json:",omitempty"`
	Points    int               `json:",omitempty"`
	Record    *model.TestRecord `json:",omitempty"`
	Error     string            `json:",omitempty"`
	Transfers int               `json:",omitempty"`
	Failed    int               `json:",omitempty"`
}

// Upgrade takes a HTTP request and upgrades the connection to WebSocket.
// Returns a websocket Conn if the upgrade succeeded, and an error otherwise.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	if r.Header.Get("Sec-WebSocket-Protocol") != spec.SecWebSocketProtocol {
		w.WriteHeader(http.StatusBadRequest)
		return nil, errors.New("missing Sec-WebSocket-Protocol header")
	}
	h := http.Header{}
	h.Add("Sec-WebSocket-Protocol", spec.SecWebSocketProtocol)
	u := websocket.Upgrader{
		// Allow cross-origin resource sharing.
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return u.Upgrade(w, r, h)
}

// Broadcaster is a driver.Emitter sending every event to the connected
// observers. New observers first receive the events emitted so far.
type Broadcaster struct {
	mu        sync.Mutex
	observers map[chan Event]struct{}
	history   []Event
	closed    bool
}

// New returns a Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{observers: map[chan Event]struct{}{}}
}

func (b *Broadcaster) publish(ev Event) {
	ev.Time = time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if len(b.history) < maxHistory {
		b.history = append(b.history, ev)
	}
	for ch := range b.observers {
		select {
		case ch <- ev:
		default:
			log.Warn("Monitor observer is too slow, dropping event", "type", ev.Type)
		}
	}
}

// subscribe registers a new observer and returns the events to replay.
func (b *Broadcaster) subscribe() (chan Event, []Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, queueSize)
	if b.closed {
		close(ch)
	} else {
		b.observers[ch] = struct{}{}
	}
	return ch, append([]Event{}, b.history...)
}

func (b *Broadcaster) unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.observers[ch]; ok {
		delete(b.observers, ch)
		close(ch)
	}
}

// Observers returns the number of connected observers.
func (b *Broadcaster) Observers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

// Close disconnects every observer. Later events are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.observers {
		delete(b.observers, ch)
		close(ch)
	}
}

// ServeHTTP upgrades the connection and streams events until the observer
// disconnects or the Broadcaster is closed.
func (b *Broadcaster) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	conn, err := Upgrade(rw, req)
	if err != nil {
		log.Info("Websocket upgrade failed", "source", req.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	ch, replay := b.subscribe()
	defer b.unsubscribe(ch)
	log.Debug("Monitor observer connected", "source", req.RemoteAddr)

	// Observers are not expected to send anything. Reading is needed to
	// process control frames and detect disconnection.
	go func() {
		defer b.unsubscribe(ch)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(ev Event) error {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(ev)
	}
	for _, ev := range replay {
		if err := write(ev); err != nil {
			return
		}
	}
	for ev := range ch {
		if err := write(ev); err != nil {
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

// OnSweepStart implements driver.Emitter.
func (b *Broadcaster) OnSweepStart(s plan.Sweep) {
	b.publish(Event{Type: EventSweepStart, Group: s.Group, Sweep: s.Name,
		Points: len(s.Points)})
}

// OnTransferStart implements driver.Emitter.
func (b *Broadcaster) OnTransferStart(r model.TestRecord) {
	b.publish(Event{Type: EventTransferStart, Group: r.Point.Group, Record: &r})
}

// OnRecord implements driver.Emitter.
func (b *Broadcaster) OnRecord(r model.TestRecord) {
	b.publish(Event{Type: EventRecord, Group: r.Point.Group, Record: &r})
}

// OnError implements driver.Emitter.
func (b *Broadcaster) OnError(err error) {
	b.publish(Event{Type: EventError, Error: err.Error()})
}

// OnDebug implements driver.Emitter. Debug messages are not broadcast.
func (b *Broadcaster) OnDebug(string) {}

// OnSummary implements driver.Emitter.
func (b *Broadcaster) OnSummary(records []model.TestRecord) {
	failed := 0
	for _, r := range records {
		if r.Status != model.StatusSuccess {
			failed++
		}
	}
	b.publish(Event{Type: EventSummary, Transfers: len(records), Failed: failed})
}

var _ driver.Emitter = &Broadcaster{}
