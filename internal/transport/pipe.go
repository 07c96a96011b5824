package transport

import "sync"

const pipeBuffer = 256

type pipeConn struct {
	peerID string
	recv   chan []byte
	peer   *pipeConn

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

// Pipe returns two connected in-memory conns. a reports bID as its peer
// and b reports aID. Closing either end closes both.
func Pipe(aID, bID string) (Conn, Conn) {
	a := &pipeConn{peerID: bID, recv: make(chan []byte, pipeBuffer), done: make(chan struct{})}
	b := &pipeConn{peerID: aID, recv: make(chan []byte, pipeBuffer), done: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

func (c *pipeConn) PeerID() string {
	return c.peerID
}

func (c *pipeConn) Send(data []byte) error {
	msg := make([]byte, len(data))
	copy(msg, data)

	c.peer.mu.Lock()
	defer c.peer.mu.Unlock()

	if c.peer.closed {
		return ErrConnClosed
	}
	select {
	case c.peer.recv <- msg:
		return nil
	case <-c.peer.done:
		return ErrConnClosed
	}
}

func (c *pipeConn) Recv() <-chan []byte {
	return c.recv
}

func (c *pipeConn) Close() error {
	c.shutdown()
	c.peer.shutdown()
	return nil
}

func (c *pipeConn) shutdown() {
	c.once.Do(func() {
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.closed = true
		close(c.recv)
	})
}
