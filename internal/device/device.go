// Package device holds the notion of "the device the user paired with". It
// observes transport lifecycle events from a Connector, binds a fresh
// session whenever the transport changes, transplants the registered push
// callbacks onto every new session, and publishes state changes to
// observers.
package device

import (
	"sync"

	"flipper-bridge/internal/proto"
	"flipper-bridge/internal/session"
	"flipper-bridge/pkg/log"
	"flipper-bridge/pkg/metrics"
)

// State is the identity state of the physical peripheral associated with
// this device slot.
type State int

const (
	// StateNoPeripheral means no peripheral is associated; the session is
	// the no-op Closed session.
	StateNoPeripheral State = iota
	// StatePeripheralBound means a peripheral is associated. The link may
	// still be down between reconnects; see Snapshot.Connected.
	StatePeripheralBound
)

// PeripheralInfo is the advertised identity of a connected peripheral.
type PeripheralInfo struct {
	Name     string
	Serial   string
	Hardware string
}

// EventKind tags a connector lifecycle event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
)

// Event is one transport lifecycle notification.
type Event struct {
	Kind       EventKind
	Transport  session.Transport
	Peripheral PeripheralInfo
}

// Connector produces transport lifecycle events for one peripheral.
type Connector interface {
	Events() <-chan Event
	Close() error
}

// Identity combines advertised peripheral fields with caller-set fields.
// Advertised fields are refreshed on every peripheral change; caller-set
// fields (Color) and the last known storage summary are carried over, since
// the peripheral does not re-advertise them on reconnect.
type Identity struct {
	Name     string
	Serial   string
	Hardware string
	Color    string
	Storage  *proto.StorageInfo
}

// Snapshot is what observers receive on every state change.
type Snapshot struct {
	State     State
	Connected bool
	Identity  Identity
}

// Device is the paired-device slot. At most one session is live at a time;
// a superseded session is torn down before its replacement is bound.
type Device struct {
	mu        sync.RWMutex
	state     State
	connected bool
	sess      session.IO
	callbacks *session.Callbacks
	identity  Identity
	everBound bool

	subMu   sync.Mutex
	subs    map[uint64]chan Snapshot
	nextSub uint64
}

// New creates a device slot consuming the connector's events. A nil
// connector is allowed; tests drive Bind and Drop directly.
func New(connector Connector) *Device {
	d := &Device{
		state:     StateNoPeripheral,
		sess:      session.Closed{},
		callbacks: session.NewCallbacks(),
		subs:      make(map[uint64]chan Snapshot),
	}
	if connector != nil {
		go d.run(connector)
	}
	return d
}

func (d *Device) run(connector Connector) {
	for ev := range connector.Events() {
		switch ev.Kind {
		case EventConnected:
			d.Bind(ev.Transport, ev.Peripheral)
		case EventDisconnected:
			d.Drop()
		}
	}
}

// Session returns the current session. While no live link exists this is
// the Closed session, which fails every operation with ErrNotConnected.
func (d *Device) Session() session.IO {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sess
}

// Callbacks returns the push-frame callback set. The set survives session
// replacement: Bind transplants it onto each new session.
func (d *Device) Callbacks() *session.Callbacks { return d.callbacks }

// State returns the peripheral identity state.
func (d *Device) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Identity returns the current identity fields.
func (d *Device) Identity() Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.identity
}

// SetColor records the user-chosen display color. It is a caller-set field
// and survives reconnects.
func (d *Device) SetColor(color string) {
	d.mu.Lock()
	d.identity.Color = color
	snap := d.snapshotLocked()
	d.mu.Unlock()
	d.publish(snap)
}

// SetStorageSummary caches the last known storage summary on the identity.
func (d *Device) SetStorageSummary(info proto.StorageInfo) {
	d.mu.Lock()
	d.identity.Storage = &info
	snap := d.snapshotLocked()
	d.mu.Unlock()
	d.publish(snap)
}

// Bind associates a newly connected peripheral: the previous session is torn
// down, a fresh session is bound to the transport, and the registered
// callback set is transplanted onto it. Advertised identity fields are
// refreshed; caller-set fields are carried over.
func (d *Device) Bind(tr session.Transport, p PeripheralInfo) {
	d.mu.Lock()
	old := d.sess
	next := session.New(tr, d.callbacks)
	d.sess = next
	d.state = StatePeripheralBound
	d.connected = true
	d.identity.Name = p.Name
	d.identity.Serial = p.Serial
	d.identity.Hardware = p.Hardware
	if d.everBound {
		metrics.Reconnects.Inc()
	}
	d.everBound = true
	snap := d.snapshotLocked()
	d.mu.Unlock()

	old.Close()
	metrics.SessionLive.Set(1)
	log.Info("device: peripheral bound", "name", p.Name, "serial", p.Serial)
	d.publish(snap)
}

// Drop tears down the live session after a transport loss. The peripheral
// stays associated; pending requests on the old session fail promptly.
func (d *Device) Drop() {
	d.mu.Lock()
	old := d.sess
	d.sess = session.Closed{}
	d.connected = false
	snap := d.snapshotLocked()
	d.mu.Unlock()

	old.Close()
	metrics.SessionLive.Set(0)
	log.Info("device: transport lost")
	d.publish(snap)
}

// Forget dissociates the peripheral entirely: the session is torn down and
// cached identity and storage metadata are cleared.
func (d *Device) Forget() {
	d.mu.Lock()
	old := d.sess
	d.sess = session.Closed{}
	d.state = StateNoPeripheral
	d.connected = false
	d.identity = Identity{}
	snap := d.snapshotLocked()
	d.mu.Unlock()

	old.Close()
	metrics.SessionLive.Set(0)
	log.Info("device: peripheral forgotten")
	d.publish(snap)
}

func (d *Device) snapshotLocked() Snapshot {
	return Snapshot{State: d.state, Connected: d.connected, Identity: d.identity}
}

// Subscribe registers an observer. The returned cancel func must be called
// when the observer goes away; subscriptions are never collected implicitly.
func (d *Device) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.subMu.Unlock()

	cancel := func() {
		d.subMu.Lock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
		d.subMu.Unlock()
	}
	return ch, cancel
}

func (d *Device) publish(snap Snapshot) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	for id, ch := range d.subs {
		select {
		case ch <- snap:
		default:
			log.Warn("device: observer lagging, dropping snapshot", "subscriber", id)
		}
	}
}
