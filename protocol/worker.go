package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Mauryavnshi/massa/core/types"
	"github.com/Mauryavnshi/massa/observability/logging"
)

type inboundMsg struct {
	sender PeerID
	msg    *Message
}

// Worker is the protocol front end. It dispatches inbound messages to the
// validation gateway, runs the wishlist scheduler and unban timer, and
// serves asks from other nodes. Block-class and operation messages are
// processed on separate goroutines so a burst of one cannot starve the
// other.
type Worker struct {
	cfg Config

	peers     *PeerDB
	conns     ConnectionRegistry
	tracker   *PropagationTracker
	gateway   *Gateway
	scheduler *Scheduler
	unban     *UnbanTimer
	attack    *AttackHandler

	provider BlockProvider

	blockMsgs chan inboundMsg
	opMsgs    chan inboundMsg
	quit      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	logger  *slog.Logger
	metrics *Metrics
}

// NewWorker assembles the protocol worker. consensus and pool receive
// validated data; provider serves block-info asks and may be nil.
func NewWorker(cfg Config, peers *PeerDB, conns ConnectionRegistry, consensus ConsensusSink, pool OperationSink, provider BlockProvider, currentPeriod func() uint64, logger *slog.Logger) *Worker {
	cfg = cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	tracker := NewPropagationTracker(cfg.MaxPropagationRecords)
	w := &Worker{
		cfg:       cfg,
		peers:     peers,
		conns:     conns,
		tracker:   tracker,
		gateway:   NewGateway(peers, conns, tracker, consensus, pool, currentPeriod, cfg.MaxOperationBatch, logger),
		scheduler: NewScheduler(peers, conns, tracker, cfg, logger),
		unban:     NewUnbanTimer(peers, cfg.UnbanEveryoneInterval, logger),
		attack:    NewAttackHandler(peers, conns, tracker, logger),
		provider:  provider,
		blockMsgs: make(chan inboundMsg, 256),
		opMsgs:    make(chan inboundMsg, 256),
		quit:      make(chan struct{}),
		logger:    logger,
		metrics:   coreMetrics(),
	}
	return w
}

// Tracker exposes the propagation tracker, mainly for serving header asks.
func (w *Worker) Tracker() *PropagationTracker { return w.tracker }

// Start launches the message loops, the scheduler, and the unban timer.
func (w *Worker) Start() {
	w.startOnce.Do(func() {
		w.scheduler.Start()
		w.unban.Start()
		w.wg.Add(2)
		go w.blockLoop()
		go w.opLoop()
	})
}

// Stop halts every background goroutine.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		w.wg.Wait()
		w.scheduler.Stop()
		w.unban.Stop()
	})
}

// HandleMessage enqueues an inbound message from sender. Messages from
// banned peers are dropped. It returns ErrWorkerStopped after Stop.
func (w *Worker) HandleMessage(sender PeerID, msg *Message) error {
	if w.peers.IsBanned(sender) {
		w.metrics.IncMessage(msgTypeName(msg.Type), "banned_sender")
		if w.conns != nil {
			w.conns.ShutdownConnection(sender)
		}
		return nil
	}
	in := inboundMsg{sender: sender, msg: msg}
	var queue chan inboundMsg
	switch msg.Type {
	case MsgTypeOperations:
		queue = w.opMsgs
	case MsgTypeHeader, MsgTypeAskHeader, MsgTypeAskBlockInfo, MsgTypeBlockInfo:
		queue = w.blockMsgs
	default:
		w.gateway.banFor(sender, "unknown_message_type", fmt.Errorf("%w: type 0x%02x", ErrMalformedPayload, msg.Type))
		return fmt.Errorf("%w: type 0x%02x", ErrMalformedPayload, msg.Type)
	}
	select {
	case <-w.quit:
		return ErrWorkerStopped
	default:
	}
	select {
	case queue <- in:
		return nil
	case <-w.quit:
		return ErrWorkerStopped
	}
}

func (w *Worker) blockLoop() {
	defer w.wg.Done()
	for {
		select {
		case in := <-w.blockMsgs:
			w.dispatchBlockMsg(in.sender, in.msg)
		case <-w.quit:
			return
		}
	}
}

func (w *Worker) opLoop() {
	defer w.wg.Done()
	for {
		select {
		case in := <-w.opMsgs:
			w.dispatchOpMsg(in.sender, in.msg)
		case <-w.quit:
			return
		}
	}
}

func (w *Worker) dispatchBlockMsg(sender PeerID, msg *Message) {
	switch msg.Type {
	case MsgTypeHeader:
		var payload HeaderPayload
		if !w.decode(sender, msg, &payload) {
			return
		}
		if err := w.gateway.HandleHeader(sender, payload); err != nil {
			return
		}
		w.scheduler.HeaderReceived(payload.BlockID, payload.Header)

	case MsgTypeAskHeader:
		var payload AskHeaderPayload
		if !w.decode(sender, msg, &payload) {
			return
		}
		w.serveHeaderAsk(sender, payload.BlockID)

	case MsgTypeAskBlockInfo:
		var payload AskBlockInfoPayload
		if !w.decode(sender, msg, &payload) {
			return
		}
		w.serveBlockInfoAsk(sender, payload.BlockID)

	case MsgTypeBlockInfo:
		var payload BlockInfoPayload
		if !w.decode(sender, msg, &payload) {
			return
		}
		if err := w.gateway.HandleBlockInfo(sender, payload); err != nil {
			return
		}
		w.scheduler.Satisfied(payload.BlockID)
	}
}

func (w *Worker) dispatchOpMsg(sender PeerID, msg *Message) {
	var payload OperationsPayload
	if !w.decode(sender, msg, &payload) {
		return
	}
	_ = w.gateway.HandleOperations(sender, payload)
}

// decode parses a payload; a malformed one is a violation.
func (w *Worker) decode(sender PeerID, msg *Message, dst any) bool {
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		w.gateway.banFor(sender, "malformed_payload", fmt.Errorf("%w: %v", ErrMalformedPayload, err))
		return false
	}
	return true
}

func (w *Worker) serveHeaderAsk(sender PeerID, id types.BlockID) {
	header, ok := w.tracker.Header(id)
	if !ok {
		return
	}
	msg, err := NewHeaderMessage(id, header)
	if err != nil {
		w.logger.Error("encode header reply", slog.String("error", err.Error()))
		return
	}
	if err := w.conns.Send(sender, msg); err != nil {
		w.logger.Debug("header reply send failed", logging.PeerField("peer", sender))
	}
}

func (w *Worker) serveBlockInfoAsk(sender PeerID, id types.BlockID) {
	if w.provider == nil {
		return
	}
	ops, ok := w.provider.BlockOperations(id)
	if !ok {
		return
	}
	msg, err := NewBlockInfoMessage(id, ops)
	if err != nil {
		w.logger.Error("encode block info reply", slog.String("error", err.Error()))
		return
	}
	if err := w.conns.Send(sender, msg); err != nil {
		w.logger.Debug("block info reply send failed", logging.PeerField("peer", sender))
	}
}

// SendWishlistDelta updates the wanted block set. Add entries may carry the
// header when the caller already holds it. The intent is accepted as a unit;
// it only fails once the worker has stopped.
func (w *Worker) SendWishlistDelta(add map[types.BlockID]*types.Header, remove []types.BlockID) error {
	select {
	case <-w.quit:
		return ErrWorkerStopped
	default:
	}
	w.scheduler.ApplyDelta(add, remove)
	return nil
}

// NotifyBlockAttack bans every propagator of the flagged block.
func (w *Worker) NotifyBlockAttack(id types.BlockID) {
	w.attack.NotifyBlockAttack(id)
}

// PeerAdmitted records a freshly connected peer in the in-test state.
func (w *Worker) PeerAdmitted(id PeerID) {
	w.peers.AddPeer(id)
	w.scheduler.PeerConnected(id)
}

// PeerPromoted marks a peer trusted after its handshake verified.
func (w *Worker) PeerPromoted(id PeerID) {
	w.peers.Promote(id)
}

// PeerDisconnected re-queues any asks in flight to the peer.
func (w *Worker) PeerDisconnected(id PeerID) {
	w.scheduler.PeerDisconnected(id)
}

func msgTypeName(t byte) string {
	switch t {
	case MsgTypeHeader:
		return "header"
	case MsgTypeOperations:
		return "operations"
	case MsgTypeAskHeader:
		return "ask_header"
	case MsgTypeAskBlockInfo:
		return "ask_block_info"
	case MsgTypeBlockInfo:
		return "block_info"
	default:
		return "unknown"
	}
}
