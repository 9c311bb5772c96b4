package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/meshrr"
	"github.com/distributed-credibility/mesh/core/pkg/memorygraph"
	"github.com/distributed-credibility/mesh/core/pkg/replication"
)

// PipelineLogs is the four C6 pipeline logs a tenant exposes to replication
// peers: the same logs "mesh ingest" appends through Edge, Validator,
// Aggregator, and SealAuthority. Push/pull move these logs between nodes
// record-for-record; nothing else in a tenant's state is replicated.
type PipelineLogs struct {
	Envelopes   *logstore.Log
	Validations *logstore.Log
	Aggregates  *logstore.Log
	Seals       *logstore.Log
}

// meshBatch is the wire shape of spec §6's replication protocol: "POST
// .../push body {envelopes|validations|aggregates|seals: [...]}". Each
// record travels as opaque canonical JSON — the receiving node appends it
// to its own matching log unparsed, the way logstore.Log.Append already
// treats any interface{} as a pre-formed JSON value.
type meshBatch struct {
	Envelopes   []json.RawMessage `json:"envelopes,omitempty"`
	Validations []json.RawMessage `json:"validations,omitempty"`
	Aggregates  []json.RawMessage `json:"aggregates,omitempty"`
	Seals       []json.RawMessage `json:"seals,omitempty"`
	NextCursor  int64             `json:"next_cursor"`
}

// handleMeshPush implements spec §6's "POST /mesh/{tenant}/{node}/push":
// append every record in the request batch to this tenant's matching
// pipeline log, in the order received.
func (s *Server) handleMeshPush(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveMeshNode(w, r)
	if !ok {
		return
	}
	if t.Pipeline == nil {
		WriteErrorR(w, r, http.StatusNotFound, meshrr.KindInputInvalid, "tenant has no pipeline logs configured for replication")
		return
	}

	var batch meshBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	accepted := map[string]int{}
	for _, group := range []struct {
		name string
		log  *logstore.Log
		recs []json.RawMessage
	}{
		{"envelopes", t.Pipeline.Envelopes, batch.Envelopes},
		{"validations", t.Pipeline.Validations, batch.Validations},
		{"aggregates", t.Pipeline.Aggregates, batch.Aggregates},
		{"seals", t.Pipeline.Seals, batch.Seals},
	} {
		for _, rec := range group.recs {
			if err := group.log.Append(rec); err != nil {
				WriteInternal(w, err)
				return
			}
			accepted[group.name]++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"accepted": accepted})
}

// handleMeshPull implements spec §6's "GET /mesh/{tenant}/{node}/pull?since=
// {cursor}": every record past the given line-number cursor in each of the
// tenant's four pipeline logs, plus the cursor a subsequent pull should
// resume from (the furthest line reached across all four logs).
func (s *Server) handleMeshPull(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveMeshNode(w, r)
	if !ok {
		return
	}
	if t.Pipeline == nil {
		writeJSON(w, http.StatusOK, meshBatch{})
		return
	}

	since, err := parseCursor(r.URL.Query().Get("since"))
	if err != nil {
		WriteBadRequest(w, "invalid since cursor: "+err.Error())
		return
	}

	var batch meshBatch
	var next int
	for _, group := range []struct {
		log  *logstore.Log
		dest *[]json.RawMessage
	}{
		{t.Pipeline.Envelopes, &batch.Envelopes},
		{t.Pipeline.Validations, &batch.Validations},
		{t.Pipeline.Aggregates, &batch.Aggregates},
		{t.Pipeline.Seals, &batch.Seals},
	} {
		recs, line, err := readSince(group.log, since)
		if err != nil {
			WriteInternal(w, err)
			return
		}
		*group.dest = recs
		if line > next {
			next = line
		}
	}
	batch.NextCursor = int64(next)

	writeJSON(w, http.StatusOK, batch)
}

// readSince streams log from the start and returns every record past the
// 1-based since line, plus the log's final line count — logstore.Log has no
// seek-to-line primitive, so a full streaming pass is the cost of every
// pull, matching the constant-memory-per-record guarantee the rest of
// logstore already holds to.
func readSince(log *logstore.Log, since int) ([]json.RawMessage, int, error) {
	it, err := log.Iterate()
	if err != nil {
		return nil, since, err
	}
	defer it.Close()

	var out []json.RawMessage
	for {
		var raw json.RawMessage
		if err := it.Next(&raw); err == io.EOF {
			break
		} else if err != nil {
			return nil, since, err
		}
		if it.Line() > since {
			out = append(out, raw)
		}
	}
	return out, it.Line(), nil
}

func parseCursor(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// handleMeshStatus implements spec §6's "GET /mesh/{tenant}/{node}/status":
// a snapshot of this tenant's pipeline log depths and memory graph tallies,
// the information a peer needs to decide whether it's behind.
func (s *Server) handleMeshStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveMeshNode(w, r)
	if !ok {
		return
	}

	graphStatus, err := t.Graph.Status()
	if err != nil {
		WriteInternal(w, err)
		return
	}

	pipeline := map[string]int{}
	if t.Pipeline != nil {
		for name, log := range map[string]*logstore.Log{
			"envelopes":   t.Pipeline.Envelopes,
			"validations": t.Pipeline.Validations,
			"aggregates":  t.Pipeline.Aggregates,
			"seals":       t.Pipeline.Seals,
		} {
			n, err := log.Count()
			if err != nil {
				WriteInternal(w, err)
				return
			}
			pipeline[name] = n
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":    r.PathValue("tenant"),
		"node_id":      s.nodeID,
		"pipeline":     pipeline,
		"memory_graph": graphStatusView(graphStatus),
	})
}

func graphStatusView(st memorygraph.Status) map[string]any {
	return map[string]any{
		"count_by_kind": st.CountByKind,
	}
}

// handleMeshTopology implements spec §6's "GET /mesh/{tenant}/topology":
// the set of replication peers this node knows about and their health,
// process-wide rather than per-tenant (every tenant a node serves shares
// the same peer mesh), threaded through the request context the same way
// handleSync is.
func (s *Server) handleMeshTopology(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.resolveTenant(w, r); !ok {
		return
	}
	mgr, _ := r.Context().Value(replicationManagerKey{}).(*replication.Manager)
	if mgr == nil {
		writeJSON(w, http.StatusOK, map[string]any{"node_id": s.nodeID, "peers": []any{}})
		return
	}
	peers := mgr.Peers()
	out := make([]map[string]any, 0, len(peers))
	for _, p := range peers {
		out = append(out, map[string]any{
			"peer_id": p.Config().PeerID,
			"health":  p.Health(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"node_id": s.nodeID, "peers": out})
}
