package protocol

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, dir string) *Peerstore {
	t.Helper()
	store, err := OpenPeerstore(filepath.Join(dir, "peers"))
	if err != nil {
		t.Fatalf("open peerstore: %v", err)
	}
	return store
}

func TestPeerstoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := openTestStore(t, dir)
	defer store.Close()

	rec := PeerRecord{
		PeerID:         testPeerID(t),
		State:          PeerBanned,
		LastAnnounceAt: time.Unix(1700000000, 0).UTC(),
	}
	if err := store.Put(rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	records, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("loaded %d records, want 1", len(records))
	}
	got := records[0]
	if got.PeerID != rec.PeerID || got.State != rec.State || !got.LastAnnounceAt.Equal(rec.LastAnnounceAt) {
		t.Fatalf("round trip mismatch: %+v != %+v", got, rec)
	}

	if err := store.Delete(rec.PeerID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	records, err = store.Load()
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("loaded %d records after delete, want 0", len(records))
	}
}

func TestPeerstorePutEmptyID(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()

	if err := store.Put(PeerRecord{}); err == nil {
		t.Fatal("put with empty peer id must fail")
	}
}

func TestPeerDBSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	banned := testPeerID(t)
	trusted := testPeerID(t)

	store := openTestStore(t, dir)
	db := NewPeerDB(nil)
	if err := db.AttachStore(store); err != nil {
		t.Fatalf("attach store: %v", err)
	}
	db.AddPeer(trusted)
	db.Promote(trusted)
	db.BanPeer(banned)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store = openTestStore(t, dir)
	defer store.Close()
	db = NewPeerDB(nil)
	if err := db.AttachStore(store); err != nil {
		t.Fatalf("attach store after restart: %v", err)
	}

	if !db.IsBanned(banned) {
		t.Fatal("ban did not survive restart")
	}
	if got := db.GetPeers()[trusted].State; got != PeerTrusted {
		t.Fatalf("trusted peer state after restart = %v, want trusted", got)
	}
}
