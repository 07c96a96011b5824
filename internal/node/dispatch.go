package node

import (
	"errors"

	"github.com/rudransh-shrivastava/peer-watch/internal/protocol"
	"github.com/rudransh-shrivastava/peer-watch/internal/transfer"
)

// dispatch routes one decoded message from l. Receiver errors are logged
// here; session failures additionally surface as events.
func (n *Node) dispatch(l *link, msg protocol.Message) {
	peerID := l.conn.PeerID()

	var err error
	switch m := msg.(type) {
	case *protocol.VideoMetadata:
		err = l.receiver.OnMetadata(m.Size, m.MimeDescriptor)
	case *protocol.VideoChunk:
		err = l.receiver.OnChunk(m.Offset, m.Data)
	case *protocol.VideoComplete:
		err = l.receiver.OnComplete()
	case *protocol.VideoRequest:
		n.mu.Lock()
		if n.closed {
			n.mu.Unlock()
			return
		}
		n.wg.Add(1)
		n.mu.Unlock()
		go n.serve(peerID)
	case *protocol.Control:
		n.controller.OnRemote(*m)
	default:
		n.logger.Debugf("Ignoring %s from %s", msg.Type(), peerID)
	}

	if err != nil && !errors.Is(err, transfer.ErrReceiverClosed) {
		n.logger.Warnf("Rejected %s from %s: %v", msg.Type(), peerID, err)
	}
}
