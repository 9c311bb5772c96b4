package incident_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distributed-credibility/mesh/core/pkg/incident"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

func TestLogRecordsStructuredEntry(t *testing.T) {
	store, err := logstore.Open(t.TempDir())
	require.NoError(t, err)

	fixed := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	log := incident.NewLog(store, "tenant-a", "node-1").WithClock(func() time.Time { return fixed })

	err = log.Record("seal", meshrr.New(meshrr.KindLedgerTamper, "chain discontinuity at entry 4"))
	require.NoError(t, err)

	all, err := log.All()
	require.NoError(t, err)
	require.Len(t, all, 1)

	rec := all[0]
	assert.Equal(t, "tenant-a", rec.Tenant)
	assert.Equal(t, "node-1", rec.Node)
	assert.Equal(t, meshrr.KindLedgerTamper, rec.Kind)
	assert.Equal(t, "seal", rec.Component)
	assert.Equal(t, fixed, rec.OccurredAt)
	assert.NotEmpty(t, rec.ID)
}

func TestLogAppendsInOrder(t *testing.T) {
	store, err := logstore.Open(t.TempDir())
	require.NoError(t, err)

	log := incident.NewLog(store, "tenant-a", "node-1")
	require.NoError(t, log.Record("authority", meshrr.New(meshrr.KindAuthorityDeny, "first")))
	require.NoError(t, log.Record("replication", meshrr.New(meshrr.KindTimeout, "second")))

	all, err := log.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Detail)
	assert.Equal(t, "second", all[1].Detail)
	assert.NotEqual(t, all[0].ID, all[1].ID)
}

func TestDifferentNodesHaveSeparateLogs(t *testing.T) {
	store, err := logstore.Open(t.TempDir())
	require.NoError(t, err)

	a := incident.NewLog(store, "tenant-a", "node-1")
	b := incident.NewLog(store, "tenant-a", "node-2")

	require.NoError(t, a.Record("seal", meshrr.New(meshrr.KindCorrupt, "bad frame")))

	allA, err := a.All()
	require.NoError(t, err)
	assert.Len(t, allA, 1)

	allB, err := b.All()
	require.NoError(t, err)
	assert.Empty(t, allB)
}
