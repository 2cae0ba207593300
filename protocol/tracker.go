package protocol

import (
	"sync"
	"time"

	"github.com/Mauryavnshi/massa/core/types"
)

type propagationRecord struct {
	header    *types.Header
	peers     map[PeerID]struct{}
	firstSeen time.Time
}

// PropagationTracker remembers, per candidate block, which peers announced
// its header. The record is the evidence base for attack response: when a
// block is flagged, every recorded propagator is banned.
type PropagationTracker struct {
	mu         sync.RWMutex
	records    map[types.BlockID]*propagationRecord
	maxRecords int
	now        func() time.Time
}

// NewPropagationTracker returns a tracker holding at most maxRecords blocks.
// When the cap is exceeded the record with the earliest first announce is
// evicted.
func NewPropagationTracker(maxRecords int) *PropagationTracker {
	if maxRecords <= 0 {
		maxRecords = defaultMaxPropagationRecords
	}
	return &PropagationTracker{
		records:    make(map[types.BlockID]*propagationRecord),
		maxRecords: maxRecords,
		now:        time.Now,
	}
}

// RecordHeader notes that sender announced the header for id. The first
// announce stores the header itself.
func (t *PropagationTracker) RecordHeader(id types.BlockID, header *types.Header, sender PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		rec = &propagationRecord{
			header:    header,
			peers:     make(map[PeerID]struct{}),
			firstSeen: t.now(),
		}
		t.records[id] = rec
		t.evictLocked()
	}
	rec.peers[sender] = struct{}{}
}

func (t *PropagationTracker) evictLocked() {
	for len(t.records) > t.maxRecords {
		var (
			oldestID types.BlockID
			oldestAt time.Time
			found    bool
		)
		for id, rec := range t.records {
			if !found || rec.firstSeen.Before(oldestAt) {
				oldestID = id
				oldestAt = rec.firstSeen
				found = true
			}
		}
		if !found {
			return
		}
		delete(t.records, oldestID)
	}
}

// Header returns the stored header for id, if any.
func (t *PropagationTracker) Header(id types.BlockID) (*types.Header, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[id]
	if !ok {
		return nil, false
	}
	return rec.header, true
}

// Propagators returns every peer that announced id.
func (t *PropagationTracker) Propagators(id types.BlockID) []PeerID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[id]
	if !ok {
		return nil
	}
	out := make([]PeerID, 0, len(rec.peers))
	for peer := range rec.peers {
		out = append(out, peer)
	}
	return out
}

// Resolve drops the record for id once the block's fate is settled.
func (t *PropagationTracker) Resolve(id types.BlockID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, id)
}

// Len reports the number of tracked blocks.
func (t *PropagationTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}
