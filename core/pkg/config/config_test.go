package config_test

import (
	"testing"
	"time"

	"github.com/distributed-credibility/mesh/core/pkg/config"
	"github.com/distributed-credibility/mesh/core/pkg/cryptoprovider"
	"github.com/stretchr/testify/assert"
)

// Invariant: a node must boot with safe defaults when no environment
// variables are set.
func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "TENANT_ID", "NODE_ID", "NODE_ROLE", "STORAGE_ROOT",
		"CRYPTO_BACKEND", "PEER_URLS", "MAX_RETRIES", "BACKOFF_BASE",
		"SUSPECT_AFTER_FAILURES", "OFFLINE_AFTER_FAILURES", "RECOVERY_SUCCESSES",
		"SCORING_POLICY_HASH", "CLOCK_MODE", "FIXED_CLOCK",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "default", cfg.TenantID)
	assert.Equal(t, "node-1", cfg.NodeID)
	assert.Equal(t, cryptoprovider.BackendEd25519A, cfg.CryptoBackend)
	assert.Nil(t, cfg.PeerURLs)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 3, cfg.SuspectAfterFailures)
	assert.Equal(t, 6, cfg.OfflineAfterFailures)
	assert.Equal(t, 2, cfg.RecoverySuccesses)
	assert.Equal(t, config.ClockSystem, cfg.ClockMode)
}

// Invariant: ops can control config via standard 12-factor env vars.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("TENANT_ID", "acme")
	t.Setenv("NODE_ID", "node-7")
	t.Setenv("NODE_ROLE", "validator")
	t.Setenv("CRYPTO_BACKEND", "hmac_demo")
	t.Setenv("PEER_URLS", "https://a.mesh,https://b.mesh")
	t.Setenv("MAX_RETRIES", "9")
	t.Setenv("BACKOFF_BASE", "500ms")
	t.Setenv("SUSPECT_AFTER_FAILURES", "2")
	t.Setenv("OFFLINE_AFTER_FAILURES", "4")
	t.Setenv("RECOVERY_SUCCESSES", "1")
	t.Setenv("CLOCK_MODE", "fixed")
	t.Setenv("FIXED_CLOCK", "2026-01-01T00:00:00Z")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "acme", cfg.TenantID)
	assert.Equal(t, "node-7", cfg.NodeID)
	assert.Equal(t, "validator", cfg.NodeRole)
	assert.Equal(t, cryptoprovider.BackendHMACDemo, cfg.CryptoBackend)
	assert.Equal(t, []string{"https://a.mesh", "https://b.mesh"}, cfg.PeerURLs)
	assert.Equal(t, 9, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 2, cfg.SuspectAfterFailures)
	assert.Equal(t, 4, cfg.OfflineAfterFailures)
	assert.Equal(t, 1, cfg.RecoverySuccesses)
	assert.Equal(t, config.ClockFixed, cfg.ClockMode)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), cfg.FixedClock)

	fixed := cfg.Clock()
	assert.Equal(t, cfg.FixedClock, fixed())
}
