// Package observability provides OpenTelemetry tracing and RED metrics for
// mesh nodes, plus an in-process audit timeline and SLI/SLO tracker for
// autonomy-health signals (credibility score, drift burn rate, quorum
// margin).
//
// # Tracing and metrics
//
// Initialize a provider at node startup:
//
//	p, err := observability.New(ctx, observability.DefaultConfig())
//	defer p.Shutdown(ctx)
//
// Track an operation from start to finish:
//
//	ctx, finish := p.TrackOperation(ctx, "seal.build", observability.SealOperation("dec-1", "sha256:abc", "node-a")...)
//	err := doWork(ctx)
//	finish(err)
//
// # Audit timeline
//
// Every sealing, drift, and replication event can be appended to a queryable
// timeline scoped by run and tenant:
//
//	tl := observability.NewAuditTimeline()
//	tl.Record(observability.TimelineEntry{
//		EntryType: observability.EntryTypeProof,
//		RunID:     "run-1",
//		TenantID:  "tenant-a",
//		Summary:   "seal committed",
//	})
//
// # SLIs and SLOs
//
// Register indicators tied to mesh operations and track their burn rate:
//
//	slis := observability.NewSLIRegistry()
//	slis.Register(&observability.SLI{SLIID: "sli-seal-latency", Name: "Seal Latency", Operation: "seal"})
//
//	slos := observability.NewSLOTracker()
//	slos.SetTarget(&observability.SLOTarget{SLOID: "slo-seal", Operation: "seal", SuccessRate: 0.999})
package observability
