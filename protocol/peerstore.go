package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const peerRecordPrefix = "peer:"

// PeerRecord is the persisted form of a peer's reputation state.
type PeerRecord struct {
	PeerID         PeerID    `json:"peerId"`
	State          PeerState `json:"state"`
	LastAnnounceAt time.Time `json:"lastAnnounceAt"`
}

// Peerstore persists peer records in a local LevelDB database so reputation
// survives restarts.
type Peerstore struct {
	db *leveldb.DB
}

// OpenPeerstore opens or creates the peerstore at path.
func OpenPeerstore(path string) (*Peerstore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open peerstore: %w", err)
	}
	return &Peerstore{db: db}, nil
}

// Close releases the underlying database.
func (s *Peerstore) Close() error {
	return s.db.Close()
}

func recordKey(id PeerID) []byte {
	return []byte(peerRecordPrefix + string(id))
}

// Put writes one peer record.
func (s *Peerstore) Put(rec PeerRecord) error {
	if rec.PeerID == "" {
		return fmt.Errorf("peerstore: empty peer id")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode peer record: %w", err)
	}
	if err := s.db.Put(recordKey(rec.PeerID), raw, nil); err != nil {
		return fmt.Errorf("write peer record: %w", err)
	}
	return nil
}

// Delete removes one peer record. Missing records are not an error.
func (s *Peerstore) Delete(id PeerID) error {
	if err := s.db.Delete(recordKey(id), nil); err != nil {
		return fmt.Errorf("delete peer record: %w", err)
	}
	return nil
}

// Load reads every peer record. Corrupt entries are skipped.
func (s *Peerstore) Load() ([]PeerRecord, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(peerRecordPrefix)), nil)
	defer iter.Release()

	var records []PeerRecord
	for iter.Next() {
		var rec PeerRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if rec.PeerID == "" {
			key := string(iter.Key())
			rec.PeerID = PeerID(strings.TrimPrefix(key, peerRecordPrefix))
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan peerstore: %w", err)
	}
	return records, nil
}
