package protocol

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Mauryavnshi/massa/core/types"
	"github.com/Mauryavnshi/massa/observability/logging"
)

type wishEntry struct {
	header  *types.Header
	askedTo PeerID
	askedAt time.Time
}

func (e *wishEntry) resetAsk() {
	e.askedTo = ""
	e.askedAt = time.Time{}
}

// Scheduler routes the block wishlist. Each wanted block is asked to one
// eligible peer at a time; banned peers are never asked, and a want with no
// eligible peer stays deferred until a peer connects or is unbanned.
type Scheduler struct {
	mu     sync.Mutex
	wanted map[types.BlockID]*wishEntry

	peers   *PeerDB
	conns   ConnectionRegistry
	tracker *PropagationTracker

	askTimeout    time.Duration
	retryInterval time.Duration
	now           func() time.Time

	kick chan struct{}
	quit chan struct{}
	wg   sync.WaitGroup

	logger  *slog.Logger
	metrics *Metrics
}

// NewScheduler builds a wishlist scheduler. Start must be called before it
// routes anything.
func NewScheduler(peers *PeerDB, conns ConnectionRegistry, tracker *PropagationTracker, cfg Config, logger *slog.Logger) *Scheduler {
	cfg = cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		wanted:        make(map[types.BlockID]*wishEntry),
		peers:         peers,
		conns:         conns,
		tracker:       tracker,
		askTimeout:    cfg.AskTimeout,
		retryInterval: cfg.RetryInterval,
		now:           time.Now,
		kick:          make(chan struct{}, 1),
		quit:          make(chan struct{}),
		logger:        logger,
		metrics:       coreMetrics(),
	}
}

// Start launches the routing loop and the ban watcher.
func (s *Scheduler) Start() {
	banCh, cancel := s.peers.WatchBans()
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer cancel()
		for {
			select {
			case id := <-banCh:
				s.peerIneligible(id)
			case <-s.quit:
				return
			}
		}
	}()
	go s.loop()
}

// Stop halts the routing loop.
func (s *Scheduler) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.kick:
			s.schedule()
		case <-ticker.C:
			s.schedule()
		case <-s.quit:
			return
		}
	}
}

func (s *Scheduler) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// ApplyDelta updates the wishlist atomically: remove settles wants, add
// registers new ones. An add may carry the header when the caller already
// knows it; otherwise the tracker seeds the entry if it saw an announce.
func (s *Scheduler) ApplyDelta(add map[types.BlockID]*types.Header, remove []types.BlockID) {
	s.mu.Lock()
	for _, id := range remove {
		delete(s.wanted, id)
	}
	for id, header := range add {
		if existing, ok := s.wanted[id]; ok {
			if existing.header == nil && header != nil {
				existing.header = header
				existing.resetAsk()
			}
			continue
		}
		entry := &wishEntry{header: header}
		if entry.header == nil {
			if tracked, ok := s.tracker.Header(id); ok {
				entry.header = tracked
			}
		}
		s.wanted[id] = entry
	}
	pending := len(s.wanted)
	s.mu.Unlock()

	s.metrics.SetWishlistPending(pending)
	s.wake()
}

// HeaderReceived records that the header for a wanted block arrived. The
// want switches to asking for block info.
func (s *Scheduler) HeaderReceived(id types.BlockID, header *types.Header) {
	s.mu.Lock()
	entry, ok := s.wanted[id]
	if ok && entry.header == nil {
		entry.header = header
		entry.resetAsk()
	}
	s.mu.Unlock()
	if ok {
		s.wake()
	}
}

// Satisfied removes a fulfilled want.
func (s *Scheduler) Satisfied(id types.BlockID) {
	s.mu.Lock()
	delete(s.wanted, id)
	pending := len(s.wanted)
	s.mu.Unlock()
	s.metrics.SetWishlistPending(pending)
}

// PeerConnected nudges the loop so deferred wants get routed.
func (s *Scheduler) PeerConnected(PeerID) {
	s.wake()
}

// PeerDisconnected re-queues asks that were in flight to the peer.
func (s *Scheduler) PeerDisconnected(id PeerID) {
	s.peerIneligible(id)
}

func (s *Scheduler) peerIneligible(id PeerID) {
	s.mu.Lock()
	changed := false
	for _, entry := range s.wanted {
		if entry.askedTo == id {
			entry.resetAsk()
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.wake()
	}
}

// Pending returns the ids still wanted, for inspection.
func (s *Scheduler) Pending() []types.BlockID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.BlockID, 0, len(s.wanted))
	for id := range s.wanted {
		out = append(out, id)
	}
	return out
}

func (s *Scheduler) schedule() {
	connected := s.conns.PeerIDsConnected()
	eligible := make([]PeerID, 0, len(connected))
	for id := range connected {
		if s.peers.IsBanned(id) {
			continue
		}
		eligible = append(eligible, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for blockID, entry := range s.wanted {
		if entry.askedTo != "" {
			if now.Sub(entry.askedAt) < s.askTimeout {
				continue
			}
			entry.resetAsk()
		}
		target, ok := s.pickTarget(entry, eligible)
		if !ok {
			continue
		}
		msg, err := s.askMessage(blockID, entry)
		if err != nil {
			s.logger.Error("wishlist: encode ask", slog.String("error", err.Error()))
			continue
		}
		if err := s.conns.Send(target, msg); err != nil {
			s.logger.Debug("wishlist: ask send failed, deferring",
				logging.PeerField("peer", target),
				slog.String("block_id", blockID.Hex()),
			)
			continue
		}
		entry.askedTo = target
		entry.askedAt = now
	}
}

// pickTarget prefers connected propagators of the block, then any eligible
// peer. Banned peers never appear in eligible.
func (s *Scheduler) pickTarget(entry *wishEntry, eligible []PeerID) (PeerID, bool) {
	if len(eligible) == 0 {
		return "", false
	}
	eligibleSet := make(map[PeerID]struct{}, len(eligible))
	for _, id := range eligible {
		eligibleSet[id] = struct{}{}
	}
	if entry.header != nil {
		if id, err := entry.header.ID(); err == nil {
			for _, peer := range s.tracker.Propagators(id) {
				if _, ok := eligibleSet[peer]; ok {
					return peer, true
				}
			}
		}
	}
	return eligible[0], true
}

func (s *Scheduler) askMessage(id types.BlockID, entry *wishEntry) (*Message, error) {
	if entry.header != nil {
		return NewAskBlockInfoMessage(id)
	}
	return NewAskHeaderMessage(id)
}
