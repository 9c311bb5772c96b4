package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/distributed-credibility/mesh/core/pkg/api"
	"github.com/distributed-credibility/mesh/core/pkg/config"
	"github.com/distributed-credibility/mesh/core/pkg/logstore"
	"github.com/distributed-credibility/mesh/core/pkg/observability"
	"github.com/distributed-credibility/mesh/core/pkg/replication"
)

// runRunCmd starts the node's HTTP server: the Query API of spec §6
// fronting this node's single tenant, wrapped in the teacher's rate
// limiter and idempotency-replay middleware, plus the replication
// manager tracking configured peers for the sync endpoint.
func runRunCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	port := fs.String("port", "", "listen port (default: PORT env or 8080)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}

	logger := slog.Default()

	node, err := openNode(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "mesh run: %v\n", err)
		return 1
	}

	pipelineKey := func(kind string) logstore.Key {
		return logstore.Key{Tenant: cfg.TenantID, Node: cfg.NodeID, Kind: kind}
	}
	tenantState := api.NewTenantState(node.Graph, node.TLog, node.Signer).WithPipelineLogs(&api.PipelineLogs{
		Envelopes:   node.Store.Log(pipelineKey("pipeline_envelope")),
		Validations: node.Store.Log(pipelineKey("pipeline_validation")),
		Aggregates:  node.Store.Log(pipelineKey("pipeline_aggregate")),
		Seals:       node.Store.Log(pipelineKey("pipeline_seal")),
	})

	srv := api.NewServer().WithClock(cfg.Clock()).WithNodeID(cfg.NodeID)
	srv.RegisterTenant(cfg.TenantID, tenantState)
	srv.RegisterTenantResources(cfg.TenantID,
		pipelineKey("pipeline_envelope").Filename(),
		pipelineKey("pipeline_validation").Filename(),
		pipelineKey("pipeline_aggregate").Filename(),
		pipelineKey("pipeline_seal").Filename(),
	)

	bootCtx := context.Background()
	obsProvider, err := observability.New(bootCtx, &observability.Config{
		ServiceName:  "mesh-node-" + cfg.NodeID,
		Environment:  cfg.NodeRole,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
		Enabled:      cfg.ObservabilityEnabled,
		Insecure:     true,
	})
	if err != nil {
		fmt.Fprintf(stderr, "mesh run: observability: %v\n", err)
		return 1
	}

	transport := replication.NewTransport(nil).WithObservability(obsProvider)

	mgr := replication.NewManager()
	for _, peerURL := range cfg.PeerURLs {
		peerCfg := replication.DefaultConfig(peerURL, peerURL)
		peerCfg.Tenant = cfg.TenantID
		peerCfg.Node = cfg.NodeID
		mgr.AddPeer(peerCfg)
	}

	limiter := api.NewGlobalRateLimiter(20, 40)
	idem := api.NewIdempotencyStore(10 * time.Minute)

	var handler http.Handler = srv.Routes()
	handler = api.IdempotencyMiddleware(idem)(handler)
	handler = limiter.Middleware(handler)
	handler = api.WithReplicationManager(mgr, handler)
	handler = observabilityMiddleware(obsProvider, cfg.TenantID, cfg.NodeID, handler)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		logger.Info("mesh node listening", "tenant", cfg.TenantID, "node", cfg.NodeID, "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
		}
	}()

	syncStop := make(chan struct{})
	if len(cfg.PeerURLs) > 0 && cfg.ReplicationSyncInterval > 0 {
		go runReplicationSync(syncStop, transport, mgr, tenantState, cfg.ReplicationSyncInterval, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	close(syncStop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		fmt.Fprintf(stderr, "mesh run: shutdown: %v\n", err)
		return 1
	}
	if err := obsProvider.Shutdown(ctx); err != nil {
		logger.Error("observability shutdown", "error", err)
	}
	if err := closeNode(node); err != nil {
		fmt.Fprintf(stderr, "mesh run: close node registry: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "mesh node stopped")
	return 0
}

// observabilityMiddleware wraps every HTTP request in a span and RED
// metrics the way spec §1's ambient stack requires for the node's Query
// API, the other blocking operation (alongside replication) named in §5.
func observabilityMiddleware(obs *observability.Provider, tenantID, nodeID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attrs := append(observability.NodeScope(tenantID, nodeID),
			attrsMethodPath(r)...,
		)
		ctx, done := obs.TrackOperation(r.Context(), "mesh.http.request", attrs...)
		next.ServeHTTP(w, r.WithContext(ctx))
		done(nil)
	})
}

func attrsMethodPath(r *http.Request) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("http.method", r.Method),
		attribute.String("http.path", r.URL.Path),
	}
}

// runReplicationSync polls every configured peer on interval, applying each
// peer's pulled batch into this node's own pipeline logs so "mesh run"
// actually exercises Transport.Pull in production rather than leaving it a
// client with no real caller (spec §6's replication wire protocol).
func runReplicationSync(stop <-chan struct{}, t *replication.Transport, mgr *replication.Manager, tenant *api.TenantState, interval time.Duration, logger *slog.Logger) {
	cursors := replication.NewCursors()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := replication.SyncAll(ctx, t, mgr, cursors, func(peerID string, batch *replication.Batch) {
				applyPulledBatch(tenant, batch, logger)
			})
			cancel()
			if err != nil {
				logger.Warn("replication sync", "error", err)
			}
		}
	}
}

func applyPulledBatch(tenant *api.TenantState, batch *replication.Batch, logger *slog.Logger) {
	if tenant.Pipeline == nil || batch == nil {
		return
	}
	appendAll := func(log *logstore.Log, records []json.RawMessage) {
		for _, rec := range records {
			if err := log.Append(rec); err != nil {
				logger.Warn("replication sync: append", "error", err)
			}
		}
	}
	appendAll(tenant.Pipeline.Envelopes, batch.Envelopes)
	appendAll(tenant.Pipeline.Validations, batch.Validations)
	appendAll(tenant.Pipeline.Aggregates, batch.Aggregates)
	appendAll(tenant.Pipeline.Seals, batch.Seals)
}
