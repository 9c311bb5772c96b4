package pipeline

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// GenesisSeal is the prev_seal_hash value of the first seal in a chain.
const GenesisSeal = "GENESIS"

// PipelineSeal is one entry in seal_chain.log (distinct from the
// transparency-log Seal of C14, which chains whole decision episodes
// rather than pipeline snapshots).
type PipelineSeal struct {
	SealHash     string    `json:"seal_hash"`
	PrevSealHash string    `json:"prev_seal_hash"`
	PolicyHash   string    `json:"policy_hash"`
	SnapshotHash string    `json:"snapshot_hash"`
	SealedAt     time.Time `json:"sealed_at"`
	Role         string    `json:"role"`
	ChainLength  uint64    `json:"chain_length"`
}

// SealAuthority reads aggregate snapshots and chains them into
// seal_chain.log.
type SealAuthority struct {
	Log   *logstore.Log
	Clock func() time.Time

	mu   sync.Mutex
	head string // last seal_hash, or "" before genesis
	n    uint64
}

// NewSealAuthority constructs a SealAuthority bound to its own
// seal_chain.log, restoring head/length from any seals already persisted.
func NewSealAuthority(log *logstore.Log) (*SealAuthority, error) {
	sa := &SealAuthority{Log: log, Clock: time.Now}

	it, err := log.Iterate()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for {
		var s PipelineSeal
		err := it.Next(&s)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		sa.head = s.SealHash
		sa.n++
	}
	return sa, nil
}

// Seal chains snapshotHash into a new seal, computing seal_hash over the
// canonical form with seal_hash="".
func (sa *SealAuthority) Seal(policyHash, snapshotHash, role string) (PipelineSeal, error) {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	prev := sa.head
	if prev == "" {
		prev = GenesisSeal
	}

	s := PipelineSeal{
		PrevSealHash: prev,
		PolicyHash:   policyHash,
		SnapshotHash: snapshotHash,
		SealedAt:     sa.Clock(),
		Role:         role,
		ChainLength:  sa.n + 1,
	}

	hash, err := canonicalize.HashWithBlankedField(&s, "seal_hash")
	if err != nil {
		return PipelineSeal{}, meshrr.Wrap(meshrr.KindInputInvalid, err, "seal authority: compute seal_hash")
	}
	s.SealHash = hash

	if err := sa.Log.Append(s); err != nil {
		return PipelineSeal{}, err
	}

	sa.head = s.SealHash
	sa.n = s.ChainLength
	return s, nil
}

// VerifyChain re-derives every seal_hash from a loaded sequence and checks
// prev_seal_hash continuity end-to-end.
func VerifyChain(seals []PipelineSeal) error {
	prev := GenesisSeal
	for i, s := range seals {
		if s.PrevSealHash != prev {
			return meshrr.New(meshrr.KindChainBreak, fmt.Sprintf("seal chain broken at position %d", i))
		}
		recomputed, err := canonicalize.HashWithBlankedField(&s, "seal_hash")
		if err != nil {
			return meshrr.Wrap(meshrr.KindChainBreak, err, "cannot recompute seal_hash")
		}
		if recomputed != s.SealHash {
			return meshrr.New(meshrr.KindChainBreak, fmt.Sprintf("seal_hash mismatch at position %d", i))
		}
		prev = s.SealHash
	}
	return nil
}
