// Package incident implements the node incident log spec §7 requires:
// "every fatal error MUST append a structured record to the node's
// incident log." No [MODULE] block owns this directly; it is a thin
// shared package every component boundary can call into when it
// translates a lower-level failure into one of meshrr's fatal kinds.
//
// Grounded on the teacher's audit.Logger/StoreLogger split (pkg/audit/
// logger.go, store_logger.go): a narrow recording interface plus a
// logstore-backed implementation, the same division the teacher drew
// between an in-memory/stdout audit sink and a persisted one.
package incident

import (
	"fmt"
	"io"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
)

// Record is one structured incident entry, keyed by (tenant, node) at
// the log level (one incident log per tenant/node pair) and carrying the
// meshrr.Kind, component, and detail of the fatal error.
type Record struct {
	ID            string    `json:"id"`
	Tenant        string    `json:"tenant"`
	Node          string    `json:"node"`
	Kind          meshrr.Kind `json:"kind"`
	Component     string    `json:"component"`
	Detail        string    `json:"detail"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Logger records fatal errors. Components depend on this interface, not
// on *Log, the same way the teacher's guardian/audit code depends on
// audit.Logger rather than a concrete store.
type Logger interface {
	Record(component string, err *meshrr.Error) error
}

// Log is the logstore-backed incident.Logger for one (tenant, node) pair.
type Log struct {
	tenant string
	node   string
	log    *logstore.Log
	clock  func() time.Time
	nextID func() string
}

// NewLog opens the incident log for (tenant, node) against store's key
// space, using a counter-based ID scheme unless overridden by WithIDFunc.
func NewLog(store *logstore.Store, tenant, node string) *Log {
	counter := 0
	l := &Log{
		tenant: tenant,
		node:   node,
		log:    store.Log(logstore.Key{Tenant: tenant, Node: node, Kind: "incident"}),
		clock:  time.Now,
	}
	l.nextID = func() string {
		counter++
		return fmt.Sprintf("%s-%s-%06d", tenant, node, counter)
	}
	return l
}

// WithClock overrides the log's clock, for deterministic tests.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Record appends a structured incident entry for err, raised by
// component. It never returns an error that would itself need
// recording — a failure here is reported to the caller so a fatal
// error is never silently swallowed twice over.
func (l *Log) Record(component string, err *meshrr.Error) error {
	rec := Record{
		ID:            l.nextID(),
		Tenant:        l.tenant,
		Node:          l.node,
		Kind:          err.Kind,
		Component:     component,
		Detail:        err.Detail,
		CorrelationID: err.CorrelationID,
		OccurredAt:    l.clock(),
	}
	return l.log.Append(rec)
}

// All streams every recorded incident in append order.
func (l *Log) All() ([]Record, error) {
	it, err := l.log.Iterate()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Record
	for {
		var rec Record
		if err := it.Next(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
