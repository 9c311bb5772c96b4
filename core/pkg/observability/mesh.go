// Package observability provides mesh-specific instrumentation helpers:
// semantic-convention attribute keys and span helpers for the operations
// that cross node boundaries (sealing, drift handling, authority grants,
// replication, quorum verdicts).
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Mesh semantic convention attributes.
var (
	// Decision/seal attributes
	AttrDecisionID  = attribute.Key("mesh.decision.id")
	AttrCommitHash  = attribute.Key("mesh.seal.commit_hash")
	AttrSignerKeyID = attribute.Key("mesh.seal.signer_key_id")

	// Drift attributes
	AttrDriftID       = attribute.Key("mesh.drift.id")
	AttrDriftType     = attribute.Key("mesh.drift.type")
	AttrDriftSeverity = attribute.Key("mesh.drift.severity")
	AttrPatchID       = attribute.Key("mesh.patch.id")
	AttrPatchStatus   = attribute.Key("mesh.patch.status")

	// Authority attributes
	AttrAuthorityID  = attribute.Key("mesh.authority.id")
	AttrActorID      = attribute.Key("mesh.authority.actor_id")
	AttrGrantType    = attribute.Key("mesh.authority.grant_type")
	AttrScopeBound   = attribute.Key("mesh.authority.scope_bound")

	// Replication attributes
	AttrPeerNodeID     = attribute.Key("mesh.replication.peer_node_id")
	AttrReplicationDir = attribute.Key("mesh.replication.direction") // push | pull
	AttrEntriesSynced  = attribute.Key("mesh.replication.entries_synced")

	// Quorum/verdict attributes
	AttrQuorumSize   = attribute.Key("mesh.quorum.size")
	AttrQuorumVotes  = attribute.Key("mesh.quorum.votes")
	AttrVerdict      = attribute.Key("mesh.quorum.verdict")
	AttrTenantID     = attribute.Key("mesh.tenant.id")
	AttrNodeID       = attribute.Key("mesh.node.id")
)

// SealOperation creates attributes for a seal build or verify.
func SealOperation(decisionID, commitHash, signerKeyID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDecisionID.String(decisionID),
		AttrCommitHash.String(commitHash),
		AttrSignerKeyID.String(signerKeyID),
	}
}

// DriftOperation creates attributes for a drift signal being recorded.
func DriftOperation(driftID, driftType, severity string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDriftID.String(driftID),
		AttrDriftType.String(driftType),
		AttrDriftSeverity.String(severity),
	}
}

// PatchOperation creates attributes for a patch moving through its lifecycle.
func PatchOperation(patchID, driftID, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPatchID.String(patchID),
		AttrDriftID.String(driftID),
		AttrPatchStatus.String(status),
	}
}

// AuthorityOperation creates attributes for an authority ledger append.
func AuthorityOperation(authorityID, actorID, grantType, scopeBound string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAuthorityID.String(authorityID),
		AttrActorID.String(actorID),
		AttrGrantType.String(grantType),
		AttrScopeBound.String(scopeBound),
	}
}

// ReplicationOperation creates attributes for a push/pull replication round
// with a peer node.
func ReplicationOperation(peerNodeID, direction string, entriesSynced int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPeerNodeID.String(peerNodeID),
		AttrReplicationDir.String(direction),
		AttrEntriesSynced.Int64(entriesSynced),
	}
}

// QuorumOperation creates attributes for a quorum verdict.
func QuorumOperation(quorumSize, votes int, verdict string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrQuorumSize.Int(quorumSize),
		AttrQuorumVotes.Int(votes),
		AttrVerdict.String(verdict),
	}
}

// NodeScope creates attributes identifying the tenant and node an operation
// runs under, suitable to prepend to any of the operation helpers above.
func NodeScope(tenantID, nodeID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTenantID.String(tenantID),
		AttrNodeID.String(nodeID),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span, if any.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
