package protocol

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Mauryavnshi/massa/core/types"
	"github.com/Mauryavnshi/massa/observability/logging"
)

// PeerState classifies how much a peer is currently trusted.
type PeerState int

const (
	// PeerInTest marks a peer that connected but has not yet proven its
	// identity. New peers start here.
	PeerInTest PeerState = iota
	// PeerTrusted marks a peer that completed the handshake.
	PeerTrusted
	// PeerBanned marks a peer excluded from routing and disconnected on
	// sight.
	PeerBanned
)

func (s PeerState) String() string {
	switch s {
	case PeerInTest:
		return "in_test"
	case PeerTrusted:
		return "trusted"
	case PeerBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// PeerInfo is what the database remembers about one peer.
type PeerInfo struct {
	// LastAnnounce is the most recent header the peer announced, if any.
	LastAnnounce *types.Header
	// LastAnnounceAt is when that announce was validated.
	LastAnnounceAt time.Time
	// State is the peer's trust classification.
	State PeerState
}

type banSubscriber struct {
	ch chan PeerID
}

// PeerDB is the in-memory reputation database. All methods are safe for
// concurrent use. Ban events are delivered to watchers after the state
// change is committed.
type PeerDB struct {
	mu    sync.RWMutex
	peers map[PeerID]PeerInfo

	subMu sync.Mutex
	subs  map[*banSubscriber]struct{}

	store  *Peerstore
	logger *slog.Logger
	now    func() time.Time
}

// NewPeerDB returns an empty database.
func NewPeerDB(logger *slog.Logger) *PeerDB {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeerDB{
		peers:  make(map[PeerID]PeerInfo),
		subs:   make(map[*banSubscriber]struct{}),
		logger: logger,
		now:    time.Now,
	}
}

// AttachStore wires a persistent peerstore. Existing records are loaded into
// memory; subsequent state changes are written through.
func (db *PeerDB) AttachStore(store *Peerstore) error {
	records, err := store.Load()
	if err != nil {
		return err
	}
	db.mu.Lock()
	db.store = store
	for _, rec := range records {
		if _, ok := db.peers[rec.PeerID]; ok {
			continue
		}
		db.peers[rec.PeerID] = PeerInfo{
			State:          rec.State,
			LastAnnounceAt: rec.LastAnnounceAt,
		}
	}
	db.mu.Unlock()
	return nil
}

func (db *PeerDB) persistLocked(id PeerID) {
	if db.store == nil {
		return
	}
	info := db.peers[id]
	if err := db.store.Put(PeerRecord{
		PeerID:         id,
		State:          info.State,
		LastAnnounceAt: info.LastAnnounceAt,
	}); err != nil {
		db.logger.Warn("peerdb: persist failed", logging.PeerField("peer", id), slog.String("error", err.Error()))
	}
}

// AddPeer records a newly connected peer in the in-test state. Known peers
// keep their current state.
func (db *PeerDB) AddPeer(id PeerID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.peers[id]; ok {
		return
	}
	db.peers[id] = PeerInfo{State: PeerInTest}
	db.persistLocked(id)
}

// Promote marks an in-test peer as trusted. Banned peers stay banned.
func (db *PeerDB) Promote(id PeerID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	info, ok := db.peers[id]
	if !ok || info.State != PeerInTest {
		return
	}
	info.State = PeerTrusted
	db.peers[id] = info
	db.persistLocked(id)
}

// RecordAnnounce stores the latest validated header announce from a peer.
func (db *PeerDB) RecordAnnounce(id PeerID, header *types.Header) {
	db.mu.Lock()
	defer db.mu.Unlock()
	info := db.peers[id]
	info.LastAnnounce = header
	info.LastAnnounceAt = db.now()
	db.peers[id] = info
	db.persistLocked(id)
}

// GetPeers returns a snapshot of the database.
func (db *PeerDB) GetPeers() map[PeerID]PeerInfo {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[PeerID]PeerInfo, len(db.peers))
	for id, info := range db.peers {
		out[id] = info
	}
	return out
}

// UpdatePeers runs fn with exclusive access to the live peer map. State
// changes made by fn are persisted.
func (db *PeerDB) UpdatePeers(fn func(peers map[PeerID]PeerInfo)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	fn(db.peers)
	for id := range db.peers {
		db.persistLocked(id)
	}
}

// BanPeer moves a peer to the banned state. Unknown peers get a banned
// entry. Watchers are notified after the change commits; repeated bans of an
// already banned peer do not re-notify.
func (db *PeerDB) BanPeer(id PeerID) {
	db.mu.Lock()
	info, ok := db.peers[id]
	if ok && info.State == PeerBanned {
		db.mu.Unlock()
		return
	}
	info.State = PeerBanned
	db.peers[id] = info
	db.persistLocked(id)
	db.mu.Unlock()

	db.notifyBan(id)
}

func (db *PeerDB) notifyBan(id PeerID) {
	db.subMu.Lock()
	defer db.subMu.Unlock()
	for sub := range db.subs {
		select {
		case sub.ch <- id:
		default:
			// Slow watcher, drop the event.
		}
	}
}

// UnbanPeer restores a banned peer to trusted. Peers in any other state are
// left untouched.
func (db *PeerDB) UnbanPeer(id PeerID) {
	db.mu.Lock()
	defer db.mu.Unlock()
	info, ok := db.peers[id]
	if !ok || info.State != PeerBanned {
		return
	}
	info.State = PeerTrusted
	db.peers[id] = info
	db.persistLocked(id)
}

// UnbanAll restores every banned peer to trusted and returns the ids that
// changed state.
func (db *PeerDB) UnbanAll() []PeerID {
	db.mu.Lock()
	defer db.mu.Unlock()
	var unbanned []PeerID
	for id, info := range db.peers {
		if info.State != PeerBanned {
			continue
		}
		info.State = PeerTrusted
		db.peers[id] = info
		db.persistLocked(id)
		unbanned = append(unbanned, id)
	}
	return unbanned
}

// IsBanned reports whether the peer is currently banned.
func (db *PeerDB) IsBanned(id PeerID) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	info, ok := db.peers[id]
	return ok && info.State == PeerBanned
}

// GetOldestPeer returns the peer with the earliest last announce. It reports
// false when the database is empty.
func (db *PeerDB) GetOldestPeer() (PeerID, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var (
		oldest   PeerID
		oldestAt time.Time
		found    bool
	)
	for id, info := range db.peers {
		if !found || info.LastAnnounceAt.Before(oldestAt) {
			oldest = id
			oldestAt = info.LastAnnounceAt
			found = true
		}
	}
	return oldest, found
}

// GetRandPeersToSend returns up to n non-banned peers in random order.
func (db *PeerDB) GetRandPeersToSend(n int) []PeerID {
	db.mu.RLock()
	candidates := make([]PeerID, 0, len(db.peers))
	for id, info := range db.peers {
		if info.State == PeerBanned {
			continue
		}
		candidates = append(candidates, id)
	}
	db.mu.RUnlock()

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if n < len(candidates) {
		candidates = candidates[:n]
	}
	return candidates
}

// GetPeersInTest returns the peers still awaiting promotion.
func (db *PeerDB) GetPeersInTest() []PeerID {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []PeerID
	for id, info := range db.peers {
		if info.State == PeerInTest {
			out = append(out, id)
		}
	}
	return out
}

// WatchBans returns a channel that receives the id of every peer banned
// after the call. The cancel function releases the subscription.
func (db *PeerDB) WatchBans() (<-chan PeerID, func()) {
	sub := &banSubscriber{ch: make(chan PeerID, 64)}
	db.subMu.Lock()
	db.subs[sub] = struct{}{}
	db.subMu.Unlock()

	cancel := func() {
		db.subMu.Lock()
		delete(db.subs, sub)
		db.subMu.Unlock()
	}
	return sub.ch, cancel
}
