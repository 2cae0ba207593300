package protocol

import (
	"log/slog"

	"github.com/Mauryavnshi/massa/core/types"
	"github.com/Mauryavnshi/massa/observability/logging"
)

// AttackHandler punishes every propagator of a block that consensus flagged
// as an attack.
type AttackHandler struct {
	peers   *PeerDB
	conns   ConnectionRegistry
	tracker *PropagationTracker
	logger  *slog.Logger
	metrics *Metrics
}

// NewAttackHandler wires the attack response path.
func NewAttackHandler(peers *PeerDB, conns ConnectionRegistry, tracker *PropagationTracker, logger *slog.Logger) *AttackHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttackHandler{
		peers:   peers,
		conns:   conns,
		tracker: tracker,
		logger:  logger,
		metrics: coreMetrics(),
	}
}

// NotifyBlockAttack bans and disconnects every peer that announced the
// flagged block, then drops the propagation record.
func (h *AttackHandler) NotifyBlockAttack(id types.BlockID) {
	propagators := h.tracker.Propagators(id)
	for _, peer := range propagators {
		h.peers.BanPeer(peer)
		if h.conns != nil {
			h.conns.ShutdownConnection(peer)
		}
		h.metrics.IncBan("block_attack")
		h.logger.Warn("banned block attack propagator",
			logging.PeerField("peer", peer),
			slog.String("block_id", id.Hex()),
		)
	}
	h.tracker.Resolve(id)
	h.metrics.SetPropagationRecords(h.tracker.Len())
}
