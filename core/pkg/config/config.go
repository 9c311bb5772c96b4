package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
)

// ClockMode selects whether a node's clock is the system clock or a fixed
// instant, used by scenario replay and deterministic tests (spec §6).
type ClockMode string

const (
	ClockSystem ClockMode = "system"
	ClockFixed  ClockMode = "fixed"
)

// Config holds the full recognized environment surface of spec §6:
// "tenant_id, node_id, node_role, storage_root, crypto_backend, peer_urls,
// max_retries, backoff_base, suspect_after_failures, offline_after_failures,
// recovery_successes, scoring_policy_hash, clock_mode, fixed_clock".
type Config struct {
	Port        string
	LogLevel    string
	TenantID    string
	NodeID      string
	NodeRole    string
	StorageRoot string

	CryptoBackend cryptoprovider.Backend

	PeerURLs             []string
	MaxRetries           int
	BackoffBase          time.Duration
	SuspectAfterFailures int
	OfflineAfterFailures int
	RecoverySuccesses    int

	ScoringPolicyHash string

	// PolicyBundleDir, when set, is a directory of signed policy bundles
	// (pkg/policyloader) the node's lifecycle registry compiles its
	// scoring policy from at boot; empty falls back to scoring.DefaultPolicy.
	PolicyBundleDir string

	ClockMode  ClockMode
	FixedClock time.Time

	// PatchStoreDSN, when set, backs the patch store with Postgres
	// (pkg/patch.PostgresStore) instead of keeping patch records only in
	// the caller's memory — an addition beyond spec §6's literal env
	// surface, for multi-node deployments that need patch records visible
	// across processes.
	PatchStoreDSN string

	// ObservabilityEnabled turns on the OTel tracer/meter providers
	// wrapping "mesh run"'s HTTP server and replication transport; off by
	// default so a node started with no collector nearby doesn't block
	// boot dialing one.
	ObservabilityEnabled bool
	OTLPEndpoint         string

	// ReplicationSyncInterval controls how often "mesh run" polls its
	// configured peers for new pipeline records; 0 disables the
	// background sync loop (a node with no PeerURLs never starts one
	// regardless of this value).
	ReplicationSyncInterval time.Duration
}

// Clock returns the injectable clock function spec §6's clock_mode implies:
// the system clock in "system" mode, or a constant instant in "fixed" mode,
// mirroring the teacher's WithClock pattern used throughout ledger/evidence/store.
func (c *Config) Clock() func() time.Time {
	if c.ClockMode == ClockFixed {
		fixed := c.FixedClock
		return func() time.Time { return fixed }
	}
	return time.Now
}

// Load loads configuration from environment variables, applying the same
// defaults-then-override shape as the teacher's config.Load.
func Load() *Config {
	port := envOr("PORT", "8080")
	logLevel := envOr("LOG_LEVEL", "INFO")
	tenantID := envOr("TENANT_ID", "default")
	nodeID := envOr("NODE_ID", "node-1")
	nodeRole := envOr("NODE_ROLE", "edge")
	storageRoot := envOr("STORAGE_ROOT", "./data")

	backend := cryptoprovider.Backend(envOr("CRYPTO_BACKEND", string(cryptoprovider.BackendEd25519A)))

	peerURLs := splitNonEmpty(os.Getenv("PEER_URLS"), ",")

	maxRetries := envInt("MAX_RETRIES", 5)
	backoffBase := envDuration("BACKOFF_BASE", 200*time.Millisecond)
	suspectAfter := envInt("SUSPECT_AFTER_FAILURES", 3)
	offlineAfter := envInt("OFFLINE_AFTER_FAILURES", 6)
	recoverySuccesses := envInt("RECOVERY_SUCCESSES", 2)

	scoringPolicyHash := os.Getenv("SCORING_POLICY_HASH")
	policyBundleDir := os.Getenv("POLICY_BUNDLE_DIR")
	patchStoreDSN := os.Getenv("PATCH_STORE_DSN")

	observabilityEnabled := envBool("OBSERVABILITY_ENABLED", false)
	otlpEndpoint := envOr("OTLP_ENDPOINT", "localhost:4317")
	replicationSyncInterval := envDuration("REPLICATION_SYNC_INTERVAL", 30*time.Second)

	clockMode := ClockMode(envOr("CLOCK_MODE", string(ClockSystem)))
	fixedClock := time.Unix(0, 0)
	if raw := os.Getenv("FIXED_CLOCK"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			fixedClock = t
		}
	}

	return &Config{
		Port:                 port,
		LogLevel:             logLevel,
		TenantID:             tenantID,
		NodeID:               nodeID,
		NodeRole:             nodeRole,
		StorageRoot:          storageRoot,
		CryptoBackend:        backend,
		PeerURLs:             peerURLs,
		MaxRetries:           maxRetries,
		BackoffBase:          backoffBase,
		SuspectAfterFailures: suspectAfter,
		OfflineAfterFailures: offlineAfter,
		RecoverySuccesses:    recoverySuccesses,
		ScoringPolicyHash:    scoringPolicyHash,
		PolicyBundleDir:      policyBundleDir,
		ClockMode:            clockMode,
		FixedClock:           fixedClock,
		PatchStoreDSN:        patchStoreDSN,

		ObservabilityEnabled:    observabilityEnabled,
		OTLPEndpoint:            otlpEndpoint,
		ReplicationSyncInterval: replicationSyncInterval,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(raw, sep string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
