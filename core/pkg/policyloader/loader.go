// Package policyloader loads signed YAML policy bundles carrying the
// credibility-scoring weights/CEL expression (Open Question 3) and the
// default Authority Boundary Primitive fields a tenant boots with,
// letting policy change without a code deployment.
//
// Grounded on the teacher's pkg/trust.PackLoader (directory-watching
// bundle loader with an OnReload callback) generalized from JSON
// compliance packs to YAML scoring/ABP bundles, and on
// pkg/kernel.CELDPEvaluator's "policy as data, compiled once" idiom that
// pkg/scoring itself follows for the compiled CEL program.
package policyloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/distributed-credibility/mesh/core/pkg/abp"
	"github.com/distributed-credibility/mesh/core/pkg/canonicalize"
	"github.com/distributed-credibility/mesh/core/pkg/scoring"
)

// ABPDefaults mirrors abp.BuildConfig's policy-controlled fields in a
// YAML-friendly shape (BuildConfig itself carries time.Time/pointer fields
// unsuited to a bundle document).
type ABPDefaults struct {
	ABPVersion string         `yaml:"abp_version"`
	Objectives abp.Objectives `yaml:"objectives"`
	Tools      abp.Tools      `yaml:"tools"`
	Data       abp.Data       `yaml:"data"`
	Approvals  abp.Approvals  `yaml:"approvals"`
	Escalation abp.Escalation `yaml:"escalation"`
	Runtime    abp.Runtime    `yaml:"runtime"`
	Proof      abp.Proof      `yaml:"proof"`
}

// BuildConfig converts the YAML defaults into an abp.BuildConfig, filling
// in effective_at/expires_at from the caller since those are per-ABP, not
// per-bundle.
func (d ABPDefaults) BuildConfig(effectiveAt time.Time, expiresAt *time.Time) abp.BuildConfig {
	return abp.BuildConfig{
		ABPVersion:  d.ABPVersion,
		Objectives:  d.Objectives,
		Tools:       d.Tools,
		Data:        d.Data,
		Approvals:   d.Approvals,
		Escalation:  d.Escalation,
		Runtime:     d.Runtime,
		Proof:       d.Proof,
		EffectiveAt: effectiveAt,
		ExpiresAt:   expiresAt,
	}
}

// Bundle is a versioned, hash-addressed policy document: the scoring
// policy's CEL expression and weights, plus the ABP defaults new tenants
// boot with.
type Bundle struct {
	Version     string          `yaml:"version"`
	Name        string          `yaml:"name"`
	ScoringExpr string          `yaml:"scoring_expr"`
	Weights     scoring.Weights `yaml:"weights"`
	ABPDefaults ABPDefaults     `yaml:"abp_defaults"`
	CreatedAt   time.Time       `yaml:"created_at"`
	Hash        string          `yaml:"-"`
}

// Loader loads and caches policy bundles from a directory of YAML files.
type Loader struct {
	mu        sync.RWMutex
	bundles   map[string]*Bundle
	bundleDir string
	onReload  func(bundle *Bundle)
}

// NewLoader creates a policy bundle loader reading from bundleDir.
func NewLoader(bundleDir string) *Loader {
	return &Loader{
		bundles:   make(map[string]*Bundle),
		bundleDir: bundleDir,
	}
}

// OnReload registers a callback invoked whenever a bundle is (re)loaded.
func (l *Loader) OnReload(fn func(bundle *Bundle)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// LoadAll loads every .yaml/.yml bundle file in the configured directory.
func (l *Loader) LoadAll() error {
	entries, err := os.ReadDir(l.bundleDir)
	if err != nil {
		return fmt.Errorf("policyloader: read dir %s: %w", l.bundleDir, err)
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(l.bundleDir, entry.Name())
		if err := l.LoadFile(path); err != nil {
			return fmt.Errorf("policyloader: load %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// LoadFile loads a single policy bundle from a YAML file, stamping its
// canonical content hash.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var bundle Bundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	if bundle.Name == "" {
		bundle.Name = filepath.Base(path)
	}

	hash, err := canonicalize.Hash(struct {
		Version     string          `json:"version"`
		ScoringExpr string          `json:"scoring_expr"`
		Weights     scoring.Weights `json:"weights"`
		ABPDefaults ABPDefaults     `json:"abp_defaults"`
	}{bundle.Version, bundle.ScoringExpr, bundle.Weights, bundle.ABPDefaults})
	if err != nil {
		return fmt.Errorf("hash bundle: %w", err)
	}
	bundle.Hash = hash

	l.mu.Lock()
	l.bundles[bundle.Name] = &bundle
	callback := l.onReload
	l.mu.Unlock()

	if callback != nil {
		callback(&bundle)
	}

	return nil
}

// GetBundle returns a loaded bundle by name.
func (l *Loader) GetBundle(name string) (*Bundle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bundles[name]
	return b, ok
}

// AllBundles returns every loaded bundle.
func (l *Loader) AllBundles() []*Bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Bundle, 0, len(l.bundles))
	for _, b := range l.bundles {
		result = append(result, b)
	}
	return result
}

// CompileScoringPolicy compiles the named bundle's scoring expression and
// weights into a *scoring.Policy ready for use by pkg/scoring.
func (l *Loader) CompileScoringPolicy(name string) (*scoring.Policy, error) {
	b, ok := l.GetBundle(name)
	if !ok {
		return nil, fmt.Errorf("policyloader: bundle %q not loaded", name)
	}
	if b.ScoringExpr == "" {
		return scoring.DefaultPolicy()
	}
	return scoring.CompilePolicy(b.ScoringExpr, b.Weights)
}
