package device

import (
	"net"
	"sync"
	"time"

	"flipper-bridge/pkg/backoff"
	"flipper-bridge/pkg/log"
)

// TCPConnector maintains a TCP link to a serial bridge and reports transport
// lifecycle events. When the link drops it redials with exponential backoff
// and jitter; each successful dial resets the backoff.
type TCPConnector struct {
	addr   string
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// DialTCP starts a connector for the given address. Events begin flowing
// immediately; the first successful dial emits EventConnected.
func DialTCP(addr string) *TCPConnector {
	c := &TCPConnector{
		addr:   addr,
		events: make(chan Event, 4),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

// Events returns the lifecycle event stream.
func (c *TCPConnector) Events() <-chan Event { return c.events }

// Close stops the connector and closes the event stream.
func (c *TCPConnector) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *TCPConnector) run() {
	defer close(c.events)
	bo := backoff.NewWithJitter(time.Second, 30*time.Second)
	for {
		conn, err := net.Dial("tcp", c.addr)
		if err != nil {
			delay := bo.Next()
			log.Warn("connector: dial failed", "addr", c.addr, "retryIn", delay.String(), "error", err)
			select {
			case <-time.After(delay):
				continue
			case <-c.done:
				return
			}
		}
		bo.Reset()

		closed := make(chan struct{})
		tr := &notifyingConn{Conn: conn, closed: closed}
		select {
		case c.events <- Event{
			Kind:      EventConnected,
			Transport: tr,
			Peripheral: PeripheralInfo{
				Name:   c.addr,
				Serial: conn.RemoteAddr().String(),
			},
		}:
		case <-c.done:
			conn.Close()
			return
		}

		// Wait for the session (or the peer) to close the transport
		// before reporting the loss and redialing.
		select {
		case <-closed:
		case <-c.done:
			conn.Close()
			return
		}
		select {
		case c.events <- Event{Kind: EventDisconnected}:
		case <-c.done:
			return
		}
	}
}

// notifyingConn signals on its channel the first time Close is called, so
// the connector learns about session teardown without polling.
type notifyingConn struct {
	net.Conn
	once   sync.Once
	closed chan struct{}
}

func (n *notifyingConn) Close() error {
	err := n.Conn.Close()
	n.once.Do(func() { close(n.closed) })
	return err
}
