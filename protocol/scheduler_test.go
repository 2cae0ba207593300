package protocol

import (
	"testing"
	"time"

	"github.com/Mauryavnshi/massa/core/types"
)

func testSchedulerConfig() Config {
	return Config{
		AskTimeout:    50 * time.Millisecond,
		RetryInterval: 10 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSchedulerAsksConnectedPeer(t *testing.T) {
	peers := NewPeerDB(nil)
	peer := testPeerID(t)
	registry := newFakeRegistry(peer)
	tracker := NewPropagationTracker(64)
	sched := NewScheduler(peers, registry, tracker, testSchedulerConfig(), nil)
	sched.Start()
	defer sched.Stop()

	wanted := types.BlockID{0x01}
	sched.ApplyDelta(map[types.BlockID]*types.Header{wanted: nil}, nil)

	waitFor(t, "ask to connected peer", func() bool {
		return len(registry.sentTo(peer)) > 0
	})
	sent := registry.sentTo(peer)[0]
	if sent.msg.Type != MsgTypeAskHeader {
		t.Fatalf("sent type = 0x%02x, want ask header", sent.msg.Type)
	}
}

func TestSchedulerNeverAsksBannedPeer(t *testing.T) {
	peers := NewPeerDB(nil)
	banned := testPeerID(t)
	clean := testPeerID(t)
	registry := newFakeRegistry(banned, clean)
	peers.BanPeer(banned)

	sched := NewScheduler(peers, registry, NewPropagationTracker(64), testSchedulerConfig(), nil)
	sched.Start()
	defer sched.Stop()

	sched.ApplyDelta(map[types.BlockID]*types.Header{{0x01}: nil, {0x02}: nil}, nil)

	waitFor(t, "asks to the clean peer", func() bool {
		return len(registry.sentTo(clean)) >= 2
	})
	if got := registry.sentTo(banned); len(got) != 0 {
		t.Fatalf("banned peer received %d asks", len(got))
	}
}

func TestSchedulerDefersWithoutEligiblePeer(t *testing.T) {
	peers := NewPeerDB(nil)
	registry := newFakeRegistry()
	sched := NewScheduler(peers, registry, NewPropagationTracker(64), testSchedulerConfig(), nil)
	sched.Start()
	defer sched.Stop()

	wanted := types.BlockID{0x01}
	sched.ApplyDelta(map[types.BlockID]*types.Header{wanted: nil}, nil)

	time.Sleep(100 * time.Millisecond)
	if registry.sentCount() != 0 {
		t.Fatalf("scheduler sent %d asks with no eligible peer", registry.sentCount())
	}
	if got := sched.Pending(); len(got) != 1 || got[0] != wanted {
		t.Fatalf("pending = %v, want [%s]", got, wanted.Hex())
	}

	// A peer connecting unblocks the deferred want.
	late := testPeerID(t)
	registry.mu.Lock()
	registry.connected[late] = struct{}{}
	registry.mu.Unlock()
	sched.PeerConnected(late)

	waitFor(t, "deferred ask routed after connect", func() bool {
		return len(registry.sentTo(late)) > 0
	})
}

func TestSchedulerPrefersPropagatorForBlockInfo(t *testing.T) {
	peers := NewPeerDB(nil)
	propagator := testPeerID(t)
	other := testPeerID(t)
	registry := newFakeRegistry(propagator, other)
	tracker := NewPropagationTracker(64)

	header, id := signedHeader(t, 3, nil)
	tracker.RecordHeader(id, header, propagator)

	sched := NewScheduler(peers, registry, tracker, testSchedulerConfig(), nil)
	sched.Start()
	defer sched.Stop()

	sched.ApplyDelta(map[types.BlockID]*types.Header{id: nil}, nil)

	waitFor(t, "block info ask to the propagator", func() bool {
		return len(registry.sentTo(propagator)) > 0
	})
	sent := registry.sentTo(propagator)[0]
	if sent.msg.Type != MsgTypeAskBlockInfo {
		t.Fatalf("sent type = 0x%02x, want ask block info", sent.msg.Type)
	}
	if got := registry.sentTo(other); len(got) != 0 {
		t.Fatalf("non-propagator received %d asks", len(got))
	}
}

func TestSchedulerReroutesWhenTargetBanned(t *testing.T) {
	peers := NewPeerDB(nil)
	first := testPeerID(t)
	registry := newFakeRegistry(first)
	sched := NewScheduler(peers, registry, NewPropagationTracker(64), testSchedulerConfig(), nil)
	sched.Start()
	defer sched.Stop()

	wanted := types.BlockID{0x01}
	sched.ApplyDelta(map[types.BlockID]*types.Header{wanted: nil}, nil)
	waitFor(t, "initial ask", func() bool {
		return len(registry.sentTo(first)) > 0
	})

	second := testPeerID(t)
	registry.mu.Lock()
	registry.connected[second] = struct{}{}
	registry.mu.Unlock()

	peers.BanPeer(first)
	registry.ShutdownConnection(first)

	waitFor(t, "re-routed ask", func() bool {
		return len(registry.sentTo(second)) > 0
	})
}

func TestSchedulerHeaderReceivedSwitchesAsk(t *testing.T) {
	peers := NewPeerDB(nil)
	peer := testPeerID(t)
	registry := newFakeRegistry(peer)
	tracker := NewPropagationTracker(64)
	sched := NewScheduler(peers, registry, tracker, testSchedulerConfig(), nil)
	sched.Start()
	defer sched.Stop()

	header, id := signedHeader(t, 3, nil)
	sched.ApplyDelta(map[types.BlockID]*types.Header{id: nil}, nil)
	waitFor(t, "header ask", func() bool {
		return len(registry.sentTo(peer)) > 0
	})

	tracker.RecordHeader(id, header, peer)
	sched.HeaderReceived(id, header)

	waitFor(t, "block info ask after header arrival", func() bool {
		for _, s := range registry.sentTo(peer) {
			if s.msg.Type == MsgTypeAskBlockInfo {
				return true
			}
		}
		return false
	})
}

func TestSchedulerSatisfiedStopsAsking(t *testing.T) {
	peers := NewPeerDB(nil)
	peer := testPeerID(t)
	registry := newFakeRegistry(peer)
	sched := NewScheduler(peers, registry, NewPropagationTracker(64), testSchedulerConfig(), nil)
	sched.Start()
	defer sched.Stop()

	wanted := types.BlockID{0x01}
	sched.ApplyDelta(map[types.BlockID]*types.Header{wanted: nil}, nil)
	waitFor(t, "initial ask", func() bool {
		return len(registry.sentTo(peer)) > 0
	})

	sched.Satisfied(wanted)
	if got := sched.Pending(); len(got) != 0 {
		t.Fatalf("pending = %v after Satisfied", got)
	}

	before := registry.sentCount()
	time.Sleep(150 * time.Millisecond)
	if registry.sentCount() != before {
		t.Fatal("scheduler kept asking after the want was satisfied")
	}
}
