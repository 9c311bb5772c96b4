// Package cryptoprovider implements C2: a capability set
// {sign(payload)->sig, verify(payload, sig, key)->bool, key_id()} with three
// interchangeable variants — Ed25519 (stdlib), Ed25519 via an alternate
// library (go-jose EdDSA JWS), and HMAC-SHA256 (explicitly labeled DEMO).
// Selection happens once at process boot; every signed envelope records
// key_id and algorithm so old key_ids keep verifying historical records
// after rotation (spec §4.2).
package cryptoprovider

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// Algorithm names recorded alongside every signature.
const (
	AlgEd25519Stdlib = "ed25519-stdlib"
	AlgEd25519Alt    = "ed25519-josejws"
	AlgHMACDemo      = "hmac-sha256-demo"
)

// Signature bundles the raw signature with the algorithm and key used, so
// envelopes are self-describing across rotations.
type Signature struct {
	Algorithm string `json:"algorithm"`
	KeyID     string `json:"key_id"`
	Value     string `json:"value"` // hex or compact-JWS depending on algorithm
}

// Provider is the stable capability set every variant implements.
type Provider interface {
	Sign(payload []byte) (Signature, error)
	Verify(payload []byte, sig Signature) (bool, error)
	KeyID() string
	Algorithm() string
}

// ---- Variant A: Ed25519 via the standard library ----

type ed25519StdlibProvider struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewEd25519Stdlib generates (or wraps, if priv is non-nil) an Ed25519
// keypair using crypto/ed25519 directly.
func NewEd25519Stdlib(keyID string, priv ed25519.PrivateKey) (Provider, error) {
	if priv == nil {
		var err error
		_, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("cryptoprovider: generate ed25519 key: %w", err)
		}
	}
	return &ed25519StdlibProvider{
		priv:  priv,
		pub:   priv.Public().(ed25519.PublicKey),
		keyID: keyID,
	}, nil
}

func (p *ed25519StdlibProvider) Sign(payload []byte) (Signature, error) {
	sig := ed25519.Sign(p.priv, payload)
	return Signature{Algorithm: AlgEd25519Stdlib, KeyID: p.keyID, Value: hex.EncodeToString(sig)}, nil
}

func (p *ed25519StdlibProvider) Verify(payload []byte, sig Signature) (bool, error) {
	if sig.Algorithm != AlgEd25519Stdlib {
		return false, fmt.Errorf("cryptoprovider: algorithm mismatch: %s", sig.Algorithm)
	}
	raw, err := hex.DecodeString(sig.Value)
	if err != nil {
		return false, fmt.Errorf("cryptoprovider: bad signature hex: %w", err)
	}
	// ed25519.Verify is already constant-time with respect to the signature.
	return ed25519.Verify(p.pub, payload, raw), nil
}

func (p *ed25519StdlibProvider) KeyID() string    { return p.keyID }
func (p *ed25519StdlibProvider) Algorithm() string { return AlgEd25519Stdlib }

// PublicKeyHex exposes the verification key for distribution to peers.
func (p *ed25519StdlibProvider) PublicKeyHex() string { return hex.EncodeToString(p.pub) }

// ---- Variant B: Ed25519 via go-jose (the "alternate library") ----

type ed25519JoseProvider struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewEd25519Jose builds the alternate-library Ed25519 variant: signatures
// are produced/verified through go-jose's JWS machinery (EdDSA alg) rather
// than calling crypto/ed25519 directly, satisfying spec's requirement for
// two independent Ed25519 code paths.
func NewEd25519Jose(keyID string, priv ed25519.PrivateKey) (Provider, error) {
	if priv == nil {
		var err error
		_, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("cryptoprovider: generate ed25519 key: %w", err)
		}
	}
	return &ed25519JoseProvider{priv: priv, pub: priv.Public().(ed25519.PublicKey), keyID: keyID}, nil
}

func (p *ed25519JoseProvider) Sign(payload []byte) (Signature, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: p.priv}, nil)
	if err != nil {
		return Signature{}, fmt.Errorf("cryptoprovider: jose signer: %w", err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return Signature{}, fmt.Errorf("cryptoprovider: jose sign: %w", err)
	}
	compact, err := obj.CompactSerialize()
	if err != nil {
		return Signature{}, fmt.Errorf("cryptoprovider: jose serialize: %w", err)
	}
	return Signature{Algorithm: AlgEd25519Alt, KeyID: p.keyID, Value: compact}, nil
}

func (p *ed25519JoseProvider) Verify(payload []byte, sig Signature) (bool, error) {
	if sig.Algorithm != AlgEd25519Alt {
		return false, fmt.Errorf("cryptoprovider: algorithm mismatch: %s", sig.Algorithm)
	}
	jws, err := jose.ParseSigned(sig.Value, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return false, fmt.Errorf("cryptoprovider: parse jws: %w", err)
	}
	out, err := jws.Verify(p.pub)
	if err != nil {
		return false, nil // verification failure is not an error, just a false verdict
	}
	return subtle.ConstantTimeCompare(out, payload) == 1, nil
}

func (p *ed25519JoseProvider) KeyID() string    { return p.keyID }
func (p *ed25519JoseProvider) Algorithm() string { return AlgEd25519Alt }

// ---- Variant C: HMAC-SHA256, explicitly labeled DEMO ----

type hmacDemoProvider struct {
	secret []byte
	keyID  string
}

// NewHMACDemo builds the symmetric-key DEMO variant. Signatures are
// represented as compact HS256 JWTs (golang-jwt) so key_id/alg travel with
// the token the same way the other variants self-describe.
func NewHMACDemo(keyID string, secret []byte) Provider {
	return &hmacDemoProvider{secret: secret, keyID: keyID}
}

func (p *hmacDemoProvider) Sign(payload []byte) (Signature, error) {
	claims := jwt.MapClaims{"payload_hash": hex.EncodeToString(sha256Sum(payload))}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = p.keyID
	signed, err := tok.SignedString(p.secret)
	if err != nil {
		return Signature{}, fmt.Errorf("cryptoprovider: hmac demo sign: %w", err)
	}
	return Signature{Algorithm: AlgHMACDemo, KeyID: p.keyID, Value: signed}, nil
}

func (p *hmacDemoProvider) Verify(payload []byte, sig Signature) (bool, error) {
	if sig.Algorithm != AlgHMACDemo {
		return false, fmt.Errorf("cryptoprovider: algorithm mismatch: %s", sig.Algorithm)
	}
	tok, err := jwt.Parse(sig.Value, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil || !tok.Valid {
		return false, nil
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return false, nil
	}
	want, _ := claims["payload_hash"].(string)
	got := hex.EncodeToString(sha256Sum(payload))
	return hmac.Equal([]byte(want), []byte(got)), nil
}

func (p *hmacDemoProvider) KeyID() string    { return p.keyID }
func (p *hmacDemoProvider) Algorithm() string { return AlgHMACDemo }

func sha256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// Backend enumerates selectable crypto backends per §6 env config.
type Backend string

const (
	BackendEd25519A Backend = "ed25519_a"
	BackendEd25519B Backend = "ed25519_b"
	BackendHMACDemo Backend = "hmac_demo"
)

// Select constructs the configured variant. secret is only used for
// BackendHMACDemo; priv is only used for the Ed25519 variants (nil
// generates a fresh key).
func Select(backend Backend, keyID string, priv ed25519.PrivateKey, secret []byte) (Provider, error) {
	switch backend {
	case BackendEd25519A:
		return NewEd25519Stdlib(keyID, priv)
	case BackendEd25519B:
		return NewEd25519Jose(keyID, priv)
	case BackendHMACDemo:
		return NewHMACDemo(keyID, secret), nil
	default:
		return nil, fmt.Errorf("cryptoprovider: unknown backend %q", backend)
	}
}
