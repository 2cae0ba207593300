package network

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Mauryavnshi/massa/crypto"
	"github.com/Mauryavnshi/massa/protocol"
)

const outboundQueueSize = 128

var errQueueFull = errors.New("peer outbound queue full")

type peer struct {
	id         crypto.PeerID
	conn       net.Conn
	reader     *bufio.Reader
	outbound   chan *protocol.Message
	registry   *Registry
	remoteAddr string
	inbound    bool

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    chan struct{}
}

func newPeer(id crypto.PeerID, conn net.Conn, reader *bufio.Reader, registry *Registry, inbound bool) *peer {
	ctx, cancel := context.WithCancel(context.Background())
	return &peer{
		id:         id,
		conn:       conn,
		reader:     reader,
		outbound:   make(chan *protocol.Message, outboundQueueSize),
		registry:   registry,
		remoteAddr: conn.RemoteAddr().String(),
		inbound:    inbound,
		ctx:        ctx,
		cancel:     cancel,
		closed:     make(chan struct{}),
	}
}

func (p *peer) start() {
	go p.readLoop()
	go p.writeLoop()
}

func (p *peer) enqueue(msg *protocol.Message) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("peer shutting down")
	default:
	}

	select {
	case p.outbound <- msg:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("peer shutting down")
	default:
		return errQueueFull
	}
}

func (p *peer) readLoop() {
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		if err := p.conn.SetReadDeadline(time.Now().Add(p.registry.cfg.ReadTimeout)); err != nil {
			p.terminate(fmt.Errorf("set read deadline: %w", err))
			return
		}

		line, err := p.reader.ReadBytes('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				p.terminate(fmt.Errorf("peer %s read timeout", p.id))
				return
			}
			if errors.Is(err, io.EOF) {
				p.terminate(io.EOF)
				return
			}
			p.terminate(fmt.Errorf("read error: %w", err))
			return
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		if len(trimmed) > p.registry.cfg.MaxMessageBytes {
			p.registry.handleOversized(p, len(trimmed))
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			p.registry.handleUnparseable(p, err)
			return
		}

		p.registry.deliver(p, &msg)
	}
}

func (p *peer) writeLoop() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case msg := <-p.outbound:
			ctx, cancel := context.WithTimeout(p.ctx, p.registry.cfg.WriteTimeout)
			err := p.writeMessage(ctx, msg)
			cancel()
			if err != nil {
				p.terminate(fmt.Errorf("write error: %w", err))
				return
			}
		}
	}
}

func (p *peer) writeMessage(ctx context.Context, msg *protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := p.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer p.conn.SetWriteDeadline(time.Time{})
	}
	_, err = p.conn.Write(append(data, '\n'))
	return err
}

func (p *peer) terminate(reason error) {
	p.closeOnce.Do(func() {
		p.cancel()
		p.conn.Close()
		close(p.closed)
		p.registry.removePeer(p, reason)
	})
}
