package spotapi

import (
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

// StateCache answers "what is the player doing" over a realtime session.
// Live accessors refresh the cluster snapshot on every call; Saved
// accessors return the last snapshot, fetching only when none exists yet.
type StateCache struct {
	mu      sync.Mutex
	session *RealtimeSession
	dump    *ClusterDump
}

// NewStateCache registers the session's device so the cluster accepts it as
// an observer.
func NewStateCache(session *RealtimeSession) (*StateCache, error) {
	if err := session.RegisterDevice(); err != nil {
		return nil, err
	}
	return &StateCache{session: session}, nil
}

// Refresh fetches a fresh cluster snapshot and replaces the cache.
func (c *StateCache) Refresh() error {
	dump, err := c.session.ConnectState()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.dump = dump
	c.mu.Unlock()
	return nil
}

// State returns the live player state.
func (c *StateCache) State() (*PlayerState, error) {
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	return c.savedState()
}

// SavedState returns the cached player state, fetching once if the cache is
// empty.
func (c *StateCache) SavedState() (*PlayerState, error) {
	c.mu.Lock()
	empty := c.dump == nil
	c.mu.Unlock()
	if empty {
		if err := c.Refresh(); err != nil {
			return nil, err
		}
	}
	return c.savedState()
}

func (c *StateCache) savedState() (*PlayerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dump == nil || c.dump.PlayerState == nil {
		return nil, newWebSocketError("could not get player state", "")
	}
	return c.dump.PlayerState, nil
}

// Devices returns the live device cluster.
func (c *StateCache) Devices() (map[string]Device, error) {
	if err := c.Refresh(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dump == nil || c.dump.Devices == nil {
		return nil, newWebSocketError("could not get devices", "")
	}
	return c.dump.Devices, nil
}

// ActiveDeviceID returns the live active device id.
func (c *StateCache) ActiveDeviceID() (string, error) {
	if err := c.Refresh(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dump == nil || c.dump.ActiveDeviceID == "" {
		return "", newWebSocketError("could not get active device id", "")
	}
	return c.dump.ActiveDeviceID, nil
}

// NextInQueue returns the upcoming track, or nil when the queue is empty.
func (c *StateCache) NextInQueue() (*Track, error) {
	state, err := c.State()
	if err != nil {
		return nil, err
	}
	if len(state.NextTracks) == 0 {
		return nil, nil
	}
	return &state.NextTracks[0], nil
}

// LastPlayed returns the most recently played track, or nil when there is
// no history.
func (c *StateCache) LastPlayed() (*Track, error) {
	state, err := c.State()
	if err != nil {
		return nil, err
	}
	if len(state.PrevTracks) == 0 {
		return nil, nil
	}
	return &state.PrevTracks[len(state.PrevTracks)-1], nil
}

// Handler receives one frame payload matching the event it subscribed to.
type Handler func(payload FramePayload)

type handlerEntry struct {
	id reflect.Value
	fn Handler
}

// EventManager fans dealer frames out to subscribers keyed by the
// payload's update reason. One listener goroutine owns the receive loop;
// subscription bookkeeping takes its own lock so Subscribe never contends
// with socket reads.
type EventManager struct {
	session *RealtimeSession
	cache   *StateCache
	log     *logrus.Entry

	wmu  sync.Mutex
	subs map[string][]handlerEntry
	wg   sync.WaitGroup
}

// NewEventManager wires a bus over the session: it registers the device,
// performs the initial state fetch that activates push delivery, and starts
// the listener.
func NewEventManager(session *RealtimeSession) (*EventManager, error) {
	cache, err := NewStateCache(session)
	if err != nil {
		return nil, err
	}
	if _, err := cache.State(); err != nil {
		return nil, err
	}

	m := &EventManager{
		session: session,
		cache:   cache,
		log:     session.log.WithField("component", "events"),
		subs:    make(map[string][]handlerEntry),
	}
	m.wg.Add(1)
	go m.listen()
	return m, nil
}

// Cache exposes the state cache the manager fetched through.
func (m *EventManager) Cache() *StateCache { return m.cache }

// Subscribe registers fn for an event. Registering the same function twice
// for the same event is an error.
func (m *EventManager) Subscribe(event string, fn Handler) error {
	if fn == nil {
		return newClientError("handler must not be nil", "")
	}
	id := reflect.ValueOf(fn)

	m.wmu.Lock()
	defer m.wmu.Unlock()
	for _, entry := range m.subs[event] {
		if entry.id.Pointer() == id.Pointer() {
			return newClientError("function already subscribed to event "+event, "")
		}
	}
	m.subs[event] = append(m.subs[event], handlerEntry{id: id, fn: fn})
	return nil
}

// Unsubscribe removes fn from an event. Unknown subscriptions are ignored.
func (m *EventManager) Unsubscribe(event string, fn Handler) {
	id := reflect.ValueOf(fn)

	m.wmu.Lock()
	defer m.wmu.Unlock()
	entries := m.subs[event]
	for i, entry := range entries {
		if entry.id.Pointer() == id.Pointer() {
			m.subs[event] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// listen pumps frames until the socket dies. Frames without payloads are
// keepalive noise and are skipped.
func (m *EventManager) listen() {
	defer m.wg.Done()
	for {
		frame, err := m.session.ReadFrame()
		if err != nil {
			m.log.WithField("event", "listener").WithError(err).Debug("listener stopped")
			return
		}
		for _, payload := range frame.Payloads {
			m.emit(payload)
		}
	}
}

// emit dispatches to a snapshot of the subscriber list so handlers can
// subscribe or unsubscribe without deadlocking. Handlers run in
// registration order on the listener goroutine.
func (m *EventManager) emit(payload FramePayload) {
	m.wmu.Lock()
	entries := make([]handlerEntry, len(m.subs[payload.UpdateReason]))
	copy(entries, m.subs[payload.UpdateReason])
	m.wmu.Unlock()

	for _, entry := range entries {
		entry.fn(payload)
	}
}

// Close tears down the session; the listener exits when its blocking read
// fails.
func (m *EventManager) Close() error {
	err := m.session.Close()
	m.wg.Wait()
	return err
}
