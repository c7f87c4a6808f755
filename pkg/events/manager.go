package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// writeTimeout bounds a single websocket write to a connected client; a
// client that cannot accept a frame within it ends its connection's
// handler. Publish itself never waits on it.
const writeTimeout = 5 * time.Second

// sessionState is the per-session slice of bus state: the event-ID
// counter, the ring buffer, the durable log, and whoever is currently
// listening live.
type sessionState struct {
	nextID atomic.Uint64
	ring   *ring
	log    *sessionLog

	subMu sync.Mutex
	subs  map[string]chan Event
}

// Bus is the process-local event bus. One Bus instance is
// shared for the process lifetime; there is no cross-process fan-out —
// the admission layer already pins a session to the worker goroutine that
// runs its graph, so a single in-memory bus is sufficient.
type Bus struct {
	logDir string

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// NewBus constructs a Bus that persists JSONL logs under logDir, one file
// per session at events/<session_id>.jsonl.
func NewBus(logDir string) *Bus {
	return &Bus{
		logDir:   logDir,
		sessions: make(map[string]*sessionState),
	}
}

func (b *Bus) state(sessionID string) (*sessionState, error) {
	b.mu.RLock()
	st, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if ok {
		return st, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.sessions[sessionID]; ok {
		return st, nil
	}
	l, err := openSessionLog(b.logDir, sessionID)
	if err != nil {
		return nil, err
	}
	st = &sessionState{
		ring: newRing(),
		log:  l,
		subs: make(map[string]chan Event),
	}
	b.sessions[sessionID] = st
	return st, nil
}

// Publish appends eventType/payload to sessionID's stream: it assigns the
// next monotonic ID, writes the ring buffer and JSONL log, then fans the
// event out to every live subscriber. Publish never blocks on a slow
// subscriber — each send is non-blocking, and a subscriber whose channel
// is full misses the event (it stays in the ring buffer and JSONL log).
func (b *Bus) Publish(sessionID, eventType string, payload map[string]any) (Event, error) {
	st, err := b.state(sessionID)
	if err != nil {
		return Event{}, err
	}

	e := Event{
		ID:        st.nextID.Add(1),
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	st.ring.push(e)
	if err := st.log.append(e); err != nil {
		slog.Error("events: failed to persist event", "session_id", sessionID, "error", err)
	}

	st.subMu.Lock()
	chans := make([]chan Event, 0, len(st.subs))
	for _, ch := range st.subs {
		chans = append(chans, ch)
	}
	st.subMu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- e:
		default:
			// Subscriber's channel is full (catching up too slowly, or
			// wedged) — drop rather than block Publish; the JSONL log is
			// the subscriber's fallback for whatever it misses.
		}
	}

	return e, nil
}

// Replay returns every event after lastEventID for sessionID, consulting
// the in-memory ring first and falling back to the JSONL log for
// anything older than the ring still retains.
func (b *Bus) Replay(sessionID string, lastEventID uint64) ([]Event, error) {
	st, err := b.state(sessionID)
	if err != nil {
		return nil, err
	}
	fromRing, truncated := st.ring.since(lastEventID)
	if !truncated {
		return fromRing, nil
	}
	fromDisk, err := readSince(b.logDir, sessionID, lastEventID)
	if err != nil {
		return nil, err
	}
	return fromDisk, nil
}

// subscribe registers a new live-delivery channel for sessionID and
// returns it along with an unsubscribe func. Buffered to ringCapacity so
// a brief stall doesn't immediately start dropping events.
func (b *Bus) subscribe(sessionID string) (id string, ch chan Event, unsubscribe func()) {
	st, err := b.state(sessionID)
	if err != nil {
		// openSessionLog failure here means disk is unusable; the caller
		// still gets a channel so live delivery degrades gracefully to
		// in-memory-only.
		st = &sessionState{ring: newRing(), subs: make(map[string]chan Event)}
	}

	id = uuid.New().String()
	ch = make(chan Event, ringCapacity)

	st.subMu.Lock()
	st.subs[id] = ch
	st.subMu.Unlock()

	return id, ch, func() {
		st.subMu.Lock()
		delete(st.subs, id)
		st.subMu.Unlock()
		close(ch)
	}
}

// Subscribe opens a catch-up-then-live stream for the SSE handler: it
// replays everything after lastEventID synchronously, then returns a
// channel of events published from this point on, plus the unsubscribe
// func the caller must invoke when the client disconnects.
func (b *Bus) Subscribe(sessionID string, lastEventID uint64) (backlog []Event, live <-chan Event, unsubscribe func(), err error) {
	backlog, err = b.Replay(sessionID, lastEventID)
	if err != nil {
		return nil, nil, nil, err
	}
	_, ch, unsub := b.subscribe(sessionID)
	return backlog, ch, unsub, nil
}

// CloseSession releases a session's in-memory state and closes its JSONL
// log handle. Called once the session reaches a terminal status and its
// event stream will never be appended to again.
func (b *Bus) CloseSession(sessionID string) error {
	b.mu.Lock()
	st, ok := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	st.subMu.Lock()
	for id, ch := range st.subs {
		delete(st.subs, id)
		close(ch)
	}
	st.subMu.Unlock()

	if st.log != nil {
		return st.log.close()
	}
	return nil
}

// HandleConnection drives a single WebSocket client for one session's
// event stream, as served over GET /ws/sessions/{id}. Follows the
// connection-lifecycle shape of a PostgreSQL-NOTIFY-backed connection
// manager, simplified to a single fixed channel per connection (one
// session per socket) instead of dynamic multi-channel subscribe/
// unsubscribe, since this bus has no cross-process LISTEN/UNLISTEN to
// manage.
func HandleConnection(parentCtx context.Context, bus *Bus, sessionID string, conn *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "")

	backlog, live, unsubscribe, err := bus.Subscribe(sessionID, 0)
	if err != nil {
		slog.Error("events: subscribe failed", "connection_id", connID, "session_id", sessionID, "error", err)
		return
	}
	defer unsubscribe()

	sendJSON(ctx, conn, map[string]string{"type": "connection.established", "connection_id": connID})
	for _, e := range backlog {
		if err := sendEvent(ctx, conn, e); err != nil {
			return
		}
	}

	// Read loop: the client may send {"action":"ping"} keepalives or a
	// catchup request with last_event_id after a brief local buffering
	// gap; anything else is ignored. Read also detects client-initiated
	// close.
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				cancel()
				return
			}
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			switch msg.Action {
			case "ping":
				sendJSON(ctx, conn, map[string]string{"type": "pong"})
			case "catchup":
				if msg.LastEventID != nil {
					if events, err := bus.Replay(sessionID, *msg.LastEventID); err == nil {
						for _, e := range events {
							if err := sendEvent(ctx, conn, e); err != nil {
								return
							}
						}
					}
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-live:
			if !ok {
				return
			}
			if err := sendEvent(ctx, conn, e); err != nil {
				return
			}
		}
	}
}

func sendEvent(ctx context.Context, conn *websocket.Conn, e Event) error {
	return sendJSON(ctx, conn, e)
}

func sendJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
