package protocol

import (
	"testing"
	"time"
)

func TestTrackerRecordsPropagators(t *testing.T) {
	tracker := NewPropagationTracker(16)
	header, id := signedHeader(t, 1, nil)
	alice := testPeerID(t)
	bob := testPeerID(t)

	tracker.RecordHeader(id, header, alice)
	tracker.RecordHeader(id, header, bob)
	tracker.RecordHeader(id, header, alice)

	got, ok := tracker.Header(id)
	if !ok || got != header {
		t.Fatal("stored header not returned")
	}

	propagators := tracker.Propagators(id)
	if len(propagators) != 2 {
		t.Fatalf("got %d propagators, want 2", len(propagators))
	}
	found := map[PeerID]bool{}
	for _, p := range propagators {
		found[p] = true
	}
	if !found[alice] || !found[bob] {
		t.Fatalf("propagators %v missing alice or bob", propagators)
	}
}

func TestTrackerResolve(t *testing.T) {
	tracker := NewPropagationTracker(16)
	header, id := signedHeader(t, 1, nil)
	tracker.RecordHeader(id, header, testPeerID(t))

	tracker.Resolve(id)
	if _, ok := tracker.Header(id); ok {
		t.Fatal("resolved record still present")
	}
	if got := tracker.Propagators(id); got != nil {
		t.Fatalf("resolved record still has propagators %v", got)
	}
	if tracker.Len() != 0 {
		t.Fatalf("Len = %d after resolve, want 0", tracker.Len())
	}
}

func TestTrackerEvictsOldest(t *testing.T) {
	tracker := NewPropagationTracker(2)
	now := time.Unix(1700000000, 0)
	tracker.now = func() time.Time { return now }

	headerA, idA := signedHeader(t, 1, nil)
	tracker.RecordHeader(idA, headerA, testPeerID(t))

	now = now.Add(time.Second)
	headerB, idB := signedHeader(t, 2, nil)
	tracker.RecordHeader(idB, headerB, testPeerID(t))

	now = now.Add(time.Second)
	headerC, idC := signedHeader(t, 3, nil)
	tracker.RecordHeader(idC, headerC, testPeerID(t))

	if tracker.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tracker.Len())
	}
	if _, ok := tracker.Header(idA); ok {
		t.Fatal("oldest record survived eviction")
	}
	if _, ok := tracker.Header(idB); !ok {
		t.Fatal("second record was evicted")
	}
	if _, ok := tracker.Header(idC); !ok {
		t.Fatal("newest record was evicted")
	}
}
