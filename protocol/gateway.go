package protocol

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mauryavnshi/massa/core/types"
	"github.com/Mauryavnshi/massa/observability/logging"
)

// Gateway validates inbound protocol payloads before anything downstream
// sees them. A cryptographic or structural violation bans the sender and
// tears down its connection.
type Gateway struct {
	peers   *PeerDB
	conns   ConnectionRegistry
	tracker *PropagationTracker

	consensus ConsensusSink
	pool      OperationSink

	currentPeriod func() uint64
	maxBatch      int
	logger        *slog.Logger
	metrics       *Metrics
}

// NewGateway wires the validation path. currentPeriod supplies the chain
// clock used for operation expiry; a nil func disables expiry checks.
func NewGateway(peers *PeerDB, conns ConnectionRegistry, tracker *PropagationTracker, consensus ConsensusSink, pool OperationSink, currentPeriod func() uint64, maxBatch int, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBatch <= 0 {
		maxBatch = defaultMaxOperationBatch
	}
	return &Gateway{
		peers:         peers,
		conns:         conns,
		tracker:       tracker,
		consensus:     consensus,
		pool:          pool,
		currentPeriod: currentPeriod,
		maxBatch:      maxBatch,
		logger:        logger,
		metrics:       coreMetrics(),
	}
}

// banFor punishes a protocol violation: the sender is banned, its connection
// is shut down, and the cause is logged.
func (g *Gateway) banFor(sender PeerID, reason string, err error) {
	g.peers.BanPeer(sender)
	if g.conns != nil {
		g.conns.ShutdownConnection(sender)
	}
	g.metrics.IncBan(reason)
	g.logger.Warn("protocol violation",
		logging.PeerField("peer", sender),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
}

// HandleHeader authenticates an announced header. The declared block id must
// match the header content hash and the creator signature must verify. On
// success the announce is recorded and the header handed to consensus.
func (g *Gateway) HandleHeader(sender PeerID, payload HeaderPayload) error {
	if payload.Header == nil {
		err := fmt.Errorf("%w: header payload without header", ErrMalformedPayload)
		g.banFor(sender, "malformed_header", err)
		return err
	}
	id, err := payload.Header.ID()
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		g.banFor(sender, "malformed_header", wrapped)
		return wrapped
	}
	if id != payload.BlockID {
		err := fmt.Errorf("%w: declared %s computed %s", ErrIDMismatch, payload.BlockID.Hex(), id.Hex())
		g.banFor(sender, "header_id_mismatch", err)
		return err
	}
	if err := payload.Header.Verify(); err != nil {
		g.banFor(sender, "header_signature", err)
		return err
	}

	g.tracker.RecordHeader(id, payload.Header, sender)
	g.peers.RecordAnnounce(sender, payload.Header)
	g.metrics.SetPropagationRecords(g.tracker.Len())
	g.metrics.IncMessage("header", "accepted")
	if g.consensus != nil {
		g.consensus.RegisterBlockHeader(id, payload.Header)
	}
	return nil
}

// HandleOperations validates a batch of operations. The batch is fail-closed:
// one invalid or expired operation bans the sender and nothing from the batch
// reaches the pool.
func (g *Gateway) HandleOperations(sender PeerID, payload OperationsPayload) error {
	if len(payload.Operations) > g.maxBatch {
		err := fmt.Errorf("%w: %d operations, limit %d", ErrBatchTooLarge, len(payload.Operations), g.maxBatch)
		g.banFor(sender, "operation_batch_size", err)
		return err
	}
	for _, op := range payload.Operations {
		if op == nil {
			err := fmt.Errorf("%w: nil operation in batch", ErrMalformedPayload)
			g.banFor(sender, "malformed_operation", err)
			return err
		}
		if err := op.Verify(); err != nil {
			g.banFor(sender, "operation_signature", err)
			return err
		}
		if g.currentPeriod != nil && op.Expired(g.currentPeriod()) {
			err := fmt.Errorf("%w: expire period %d", ErrOperationExpired, op.ExpirePeriod)
			g.banFor(sender, "operation_expired", err)
			return err
		}
	}

	g.metrics.IncMessage("operations", "accepted")
	if g.pool != nil && len(payload.Operations) > 0 {
		g.pool.AddOperations(payload.Operations)
	}
	return nil
}

// HandleBlockInfo validates an operation id list answering one of our asks.
// A reply for a block whose header we never validated is dropped without
// punishment. A list that does not hash to the header's operations root is a
// violation.
func (g *Gateway) HandleBlockInfo(sender PeerID, payload BlockInfoPayload) error {
	header, ok := g.tracker.Header(payload.BlockID)
	if !ok {
		g.metrics.IncMessage("block_info", "unknown_block")
		g.logger.Debug("block info for unknown block, dropping",
			logging.PeerField("peer", sender),
			slog.String("block_id", payload.BlockID.Hex()),
		)
		return nil
	}
	if types.OperationsRoot(payload.OperationIDs) != header.OperationsRoot {
		err := fmt.Errorf("%w: block %s", ErrCommitmentMismatch, payload.BlockID.Hex())
		g.banFor(sender, "operations_root_mismatch", err)
		return err
	}

	g.metrics.IncMessage("block_info", "accepted")
	if g.consensus != nil {
		g.consensus.RegisterBlock(payload.BlockID, header, payload.OperationIDs)
	}
	return nil
}

// IsViolation reports whether err represents a bannable protocol violation.
func IsViolation(err error) bool {
	return errors.Is(err, ErrIDMismatch) ||
		errors.Is(err, ErrOperationExpired) ||
		errors.Is(err, ErrCommitmentMismatch) ||
		errors.Is(err, ErrBatchTooLarge) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, types.ErrInvalidSignature) ||
		errors.Is(err, types.ErrMissingSignature)
}
