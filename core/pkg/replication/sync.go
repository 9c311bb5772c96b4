package replication

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Cursors tracks the next-cursor each peer has last reported, so a caller
// can resume Pull (or target Push) from the right point per peer.
type Cursors struct {
	byPeer map[string]int64
}

// NewCursors builds an empty Cursors tracker.
func NewCursors() *Cursors {
	return &Cursors{byPeer: make(map[string]int64)}
}

// Get returns the last known cursor for peerID, or 0 if unseen.
func (c *Cursors) Get(peerID string) int64 { return c.byPeer[peerID] }

// Set records the cursor to resume peerID from next.
func (c *Cursors) Set(peerID string, cursor int64) { c.byPeer[peerID] = cursor }

// SyncAll pulls from every peer registered on m concurrently, fanning out
// with errgroup the way the teacher's pipeline worker pool fans out
// per-record verification (pkg/pipeline/workers.go), and records each
// peer's returned batch via onBatch. A failing peer's error is already
// captured by its own health state machine inside Transport.Pull, so
// SyncAll swallows per-peer errors rather than aborting the whole sync:
// replication exists precisely to tolerate partial peer unavailability
// (spec §4.15).
func SyncAll(ctx context.Context, t *Transport, m *Manager, cursors *Cursors, onBatch func(peerID string, batch *Batch)) error {
	peers := m.Peers()
	g, gctx := errgroup.WithContext(ctx)

	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			cursor := cursors.Get(peer.Config().PeerID)
			batch, err := t.Pull(gctx, peer, cursor)
			if err != nil {
				return nil
			}
			cursors.Set(peer.Config().PeerID, batch.NextCursor)
			if onBatch != nil {
				onBatch(peer.Config().PeerID, batch)
			}
			return nil
		})
	}

	return g.Wait()
}
