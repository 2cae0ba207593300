package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Mauryavnshi/massa/crypto"
	"github.com/Mauryavnshi/massa/observability/logging"
	"github.com/Mauryavnshi/massa/protocol"
)

// Config carries the transport tunables.
type Config struct {
	ListenAddress    string
	ChainID          uint64
	GenesisHash      []byte
	ClientVersion    string
	MaxPeers         int
	MaxMessageBytes  int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
}

func (c Config) normalize() Config {
	if c.MaxPeers <= 0 {
		c.MaxPeers = 64
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 90 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "massad/dev"
	}
	return c
}

// MessageHandler consumes inbound wire messages.
type MessageHandler interface {
	HandleMessage(sender crypto.PeerID, msg *protocol.Message) error
}

// PeerEvents receives connection lifecycle notifications. Admitted fires as
// soon as the remote identity is known; Promoted fires once the handshake
// signature verified.
type PeerEvents interface {
	PeerAdmitted(id crypto.PeerID)
	PeerPromoted(id crypto.PeerID)
	PeerDisconnected(id crypto.PeerID)
}

// Reputation is the slice of the peer database the transport needs: banned
// peers are refused at admission and punished on wire-level violations.
type Reputation interface {
	IsBanned(id crypto.PeerID) bool
	BanPeer(id crypto.PeerID)
}

// Registry owns the live connection set. It implements
// protocol.ConnectionRegistry.
type Registry struct {
	cfg      Config
	identity *crypto.Identity
	logger   *slog.Logger
	now      func() time.Time

	handler    MessageHandler
	events     PeerEvents
	reputation Reputation

	mu       sync.RWMutex
	peers    map[crypto.PeerID]*peer
	listener net.Listener

	quit sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewRegistry builds the transport. Attach a handler and events with the
// setters before Start.
func NewRegistry(cfg Config, identity *crypto.Identity, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg.normalize(),
		identity: identity,
		logger:   logger,
		now:      time.Now,
		peers:    make(map[crypto.PeerID]*peer),
		done:     make(chan struct{}),
	}
}

// SetHandler wires the inbound message consumer.
func (r *Registry) SetHandler(h MessageHandler) { r.handler = h }

// SetPeerEvents wires the lifecycle listener.
func (r *Registry) SetPeerEvents(e PeerEvents) { r.events = e }

// SetReputation wires the peer database.
func (r *Registry) SetReputation(rep Reputation) { r.reputation = rep }

// Start begins accepting inbound connections.
func (r *Registry) Start() error {
	listener, err := net.Listen("tcp", r.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.cfg.ListenAddress, err)
	}
	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()
	r.logger.Info("transport listening", slog.String("address", listener.Addr().String()))

	r.wg.Add(1)
	go r.acceptLoop(listener)
	return nil
}

// ListenAddr reports the bound address, useful when the configured port is 0.
func (r *Registry) ListenAddr() net.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *Registry) acceptLoop(listener net.Listener) {
	defer r.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}
			r.logger.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handleConn(conn, true)
		}()
	}
}

// Dial connects to a remote node and runs the handshake.
func (r *Registry) Dial(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, r.cfg.HandshakeTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.handleConn(conn, false)
	}()
	return nil
}

func (r *Registry) handleConn(conn net.Conn, inbound bool) {
	reader := bufio.NewReader(conn)
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.HandshakeTimeout)
	packet, err := r.exchangeHandshake(ctx, conn, reader)
	cancel()
	if err != nil {
		r.logger.Debug("handshake exchange failed",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("error", err.Error()),
		)
		conn.Close()
		return
	}

	id := packet.peerID
	if id == r.identity.PeerID {
		conn.Close()
		return
	}
	if r.reputation != nil && r.reputation.IsBanned(id) {
		r.logger.Debug("refusing banned peer", logging.PeerField("peer", id))
		conn.Close()
		return
	}
	if r.events != nil {
		r.events.PeerAdmitted(id)
	}

	if err := r.verifyHandshake(packet); err != nil {
		r.logger.Warn("handshake verification failed",
			logging.PeerField("peer", id),
			slog.String("error", err.Error()),
		)
		conn.Close()
		if r.events != nil {
			r.events.PeerDisconnected(id)
		}
		return
	}

	p := newPeer(id, conn, reader, r, inbound)
	if !r.registerPeer(p) {
		conn.Close()
		if r.events != nil {
			r.events.PeerDisconnected(id)
		}
		return
	}
	if r.events != nil {
		r.events.PeerPromoted(id)
	}
	r.logger.Info("peer connected",
		logging.PeerField("peer", id),
		slog.Bool("inbound", inbound),
	)
	p.start()
}

func (r *Registry) registerPeer(p *peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return false
	default:
	}
	if len(r.peers) >= r.cfg.MaxPeers {
		return false
	}
	if _, exists := r.peers[p.id]; exists {
		return false
	}
	r.peers[p.id] = p
	return true
}

func (r *Registry) removePeer(p *peer, reason error) {
	r.mu.Lock()
	current, ok := r.peers[p.id]
	if ok && current == p {
		delete(r.peers, p.id)
	}
	r.mu.Unlock()
	if !ok || current != p {
		return
	}

	if reason != nil && !errors.Is(reason, net.ErrClosed) {
		r.logger.Debug("peer disconnected",
			logging.PeerField("peer", p.id),
			slog.String("reason", reason.Error()),
		)
	}
	if r.events != nil {
		r.events.PeerDisconnected(p.id)
	}
}

func (r *Registry) deliver(p *peer, msg *protocol.Message) {
	if r.handler == nil {
		return
	}
	if err := r.handler.HandleMessage(p.id, msg); err != nil {
		r.logger.Debug("message rejected",
			logging.PeerField("peer", p.id),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Registry) handleOversized(p *peer, size int) {
	if r.reputation != nil {
		r.reputation.BanPeer(p.id)
	}
	r.logger.Warn("oversized message",
		logging.PeerField("peer", p.id),
		slog.Int("bytes", size),
	)
	p.terminate(fmt.Errorf("message exceeds max size (%d bytes)", size))
}

func (r *Registry) handleUnparseable(p *peer, err error) {
	if r.reputation != nil {
		r.reputation.BanPeer(p.id)
	}
	r.logger.Warn("malformed wire message",
		logging.PeerField("peer", p.id),
		slog.String("error", err.Error()),
	)
	p.terminate(fmt.Errorf("malformed message: %w", err))
}

// PeerIDsConnected returns the ids of every live connection.
func (r *Registry) PeerIDsConnected() map[crypto.PeerID]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[crypto.PeerID]struct{}, len(r.peers))
	for id := range r.peers {
		out[id] = struct{}{}
	}
	return out
}

// ShutdownConnection closes the peer's connection and does not return until
// it has left the connected set.
func (r *Registry) ShutdownConnection(id crypto.PeerID) {
	r.mu.RLock()
	p, ok := r.peers[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	p.terminate(fmt.Errorf("connection shut down"))
	<-p.closed
}

// Send queues a message to one connected peer.
func (r *Registry) Send(id crypto.PeerID, msg *protocol.Message) error {
	r.mu.RLock()
	p, ok := r.peers[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("peer %s not connected", id)
	}
	return p.enqueue(msg)
}

// Stop closes the listener and every live connection.
func (r *Registry) Stop() {
	r.quit.Do(func() {
		close(r.done)
		r.mu.Lock()
		listener := r.listener
		peers := make([]*peer, 0, len(r.peers))
		for _, p := range r.peers {
			peers = append(peers, p)
		}
		r.mu.Unlock()

		if listener != nil {
			listener.Close()
		}
		for _, p := range peers {
			p.terminate(fmt.Errorf("registry stopping"))
		}
		r.wg.Wait()
	})
}
