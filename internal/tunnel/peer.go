// Package tunnel implements the Tunnel Message Router (spec.md §4.8 / C8):
// a single-threaded dispatcher over a duplex peer channel that routes the
// closed tunnel message taxonomy, correlates streaming responses by
// taskId, and tears requests down on sink cancellation.
package tunnel

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
)

// Peer is the abstract duplex channel the Router dispatches over (spec.md
// §4.8, GLOSSARY "Peer"). The actual p2p transport binary is out of scope;
// this interface lets any transport front the router, with one concrete
// websocket implementation provided for local/gateway-stub development.
type Peer interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}

// wsPeer adapts a *websocket.Conn to Peer, grounded on the teacher's device
// pairing transport (internal/node/manager.go's conn.Read/conn.Write calls).
type wsPeer struct {
	conn *websocket.Conn
}

// NewWebSocketPeer wraps an already-accepted or already-dialed websocket
// connection as a Peer.
func NewWebSocketPeer(conn *websocket.Conn) Peer {
	return &wsPeer{conn: conn}
}

func (p *wsPeer) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := p.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("tunnel: read: %w", err)
	}
	return data, nil
}

func (p *wsPeer) WriteMessage(ctx context.Context, data []byte) error {
	if err := p.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("tunnel: write: %w", err)
	}
	return nil
}

func (p *wsPeer) Close() error {
	return p.conn.Close(websocket.StatusNormalClosure, "tunnel closed")
}

var _ Peer = (*wsPeer)(nil)

const dialTimeout = 10 * time.Second

// DialWebSocketPeer dials a gateway's tunnel endpoint and wraps the
// resulting connection as a Peer.
func DialWebSocketPeer(ctx context.Context, url string) (Peer, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tunnel: dial %s: %w", url, err)
	}
	return NewWebSocketPeer(conn), nil
}
