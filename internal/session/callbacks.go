package session

import (
	"fmt"
	"sync"

	"flipper-bridge/internal/proto"
	"flipper-bridge/pkg/log"
)

// Callbacks is the set of named push-frame callback slots. The set is owned
// by the paired device and transplanted onto each freshly bound session, so
// upper layers register once and keep receiving push frames across
// reconnects.
type Callbacks struct {
	mu          sync.RWMutex
	screenFrame func(proto.ScreenFrame)
	appState    func(proto.AppStateChanged)
}

// NewCallbacks returns an empty callback set.
func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// OnScreenFrame sets the screen-frame slot. A nil fn clears it.
func (c *Callbacks) OnScreenFrame(fn func(proto.ScreenFrame)) {
	c.mu.Lock()
	c.screenFrame = fn
	c.mu.Unlock()
}

// OnAppStateChanged sets the app-state slot. A nil fn clears it.
func (c *Callbacks) OnAppStateChanged(fn func(proto.AppStateChanged)) {
	c.mu.Lock()
	c.appState = fn
	c.mu.Unlock()
}

// dispatch routes one push message to its slot. Unroutable push traffic is a
// logged anomaly, never an error.
func (c *Callbacks) dispatch(msg proto.Message) {
	c.mu.RLock()
	screenFrame := c.screenFrame
	appState := c.appState
	c.mu.RUnlock()

	switch m := msg.(type) {
	case proto.ScreenFrame:
		if screenFrame != nil {
			screenFrame(m)
		}
	case proto.AppStateChanged:
		if appState != nil {
			appState(m)
		}
	default:
		log.Debug("session: unhandled push frame", "type", typeName(msg))
	}
}

func typeName(msg proto.Message) string {
	if msg == nil {
		return "empty"
	}
	return fmt.Sprintf("%T", msg)
}
